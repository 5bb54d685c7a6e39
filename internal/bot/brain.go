// Package bot implements BotBrain: the per-bot AI state machine that drives
// idle/patrol/chase/attack/flee behavior, target selection under
// field-of-view and line-of-sight constraints, and difficulty-parameterized
// aiming and firing.
//
// Grounded on the teacher's game/player.go AI loop (findTarget/
// combatBehavior/wander/attack), restructured into an explicit named-state
// FSM rather than an implicit if/else cascade, per the redesign guidance
// carried into the expanded design notes. Targeting's FOV/LOS gating and
// aim-noise model follow the same file's distance/angle bookkeeping,
// generalized from a 2D bearing to a 3D forward-vector/FOV cone using
// internal/mathutil and internal/los.
package bot

import (
	"context"
	"math"
	"math/rand"

	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/los"
	"ctf-arena-server/internal/mathutil"
	"ctf-arena-server/internal/meshphys"
	"ctf-arena-server/internal/weapons"
)

// State names for Bot.AIState.
const (
	StateIdle   = "idle"
	StatePatrol = "patrol"
	StateChase  = "chase"
	StateAttack = "attack"
	StateFlee   = "flee"
	StateDead   = "dead"
)

// ThinkIntervalMs is how often a bot re-evaluates its FSM; continuous motion
// between think ticks reuses the cached MoveTarget (spec.md §4.4).
const ThinkIntervalMs = 100

// MaxLOSDistance is the distance up to which a candidate target needs an LOS
// ray query before being accepted; a farther target that passes the FOV test
// is accepted without one (spec.md §4.4).
const MaxLOSDistance = 40.0

// Config holds the per-difficulty tuning spec.md §4.4 lists.
type Config struct {
	ReactionTimeMs float64
	Accuracy       float64
	Aggressiveness float64
	FOVDeg         float64
	SightRange     float64
}

// Configs maps each Difficulty to its tuning tuple.
var Configs = map[entity.Difficulty]Config{
	entity.DifficultyEasy:   {ReactionTimeMs: 500, Accuracy: 0.3, Aggressiveness: 0.3, FOVDeg: 90, SightRange: 30},
	entity.DifficultyMedium: {ReactionTimeMs: 300, Accuracy: 0.6, Aggressiveness: 0.6, FOVDeg: 110, SightRange: 50},
	entity.DifficultyHard:   {ReactionTimeMs: 150, Accuracy: 0.85, Aggressiveness: 0.8, FOVDeg: 130, SightRange: 70},
}

// World is the read-only environment Think consults: the collision mesh for
// ray fire resolution and the LOS worker pool for visibility batching.
type World struct {
	Mesh *meshphys.World
	LOS  *los.Pool
}

// FireResult describes a shot a Think call decided to take; the caller
// (Room) runs the actual raycast against all entities and applies damage,
// since only the room has the full entity list and BVH in scope.
type FireResult struct {
	Origin mathutil.Vec3
	Aim    mathutil.Vec3 // unit direction, already perturbed by inaccuracy
	Weapon weapons.Type
}

// Think advances bot's FSM by one think tick (gated internally by
// NextThinkTime so callers may invoke it every server tick without
// over-running the 100ms cadence). others is every other entity's Player
// view, dead ones included (human players and other bots' embedded Player),
// used for target selection; dead entries are never chosen. Returns a non-nil FireResult if the bot decided to
// shoot this think.
func Think(bot *entity.Bot, others []*entity.Player, world World, nowMs float64) *FireResult {
	if !bot.Alive {
		bot.AIState = StateDead
		return nil
	}
	if nowMs < bot.NextThinkTime {
		return nil
	}
	bot.NextThinkTime = nowMs + ThinkIntervalMs

	cfg := Configs[bot.Difficulty]
	target, visible := selectTarget(bot, others, world, cfg)
	if visible {
		bot.LastTargetSeen = nowMs
		bot.LastSeenPos = target.Position
	}

	transition(bot, target, visible, others, nowMs, cfg)

	switch bot.AIState {
	case StatePatrol:
		patrol(bot, nowMs)
	case StateChase:
		chaseMove(bot, target)
	case StateAttack:
		return attack(bot, target, world, nowMs, cfg)
	case StateFlee:
		flee(bot, target)
	}
	return nil
}

func setState(bot *entity.Bot, state string, nowMs float64) {
	if bot.AIState != state {
		bot.AIState = state
		bot.StateEnteredAt = nowMs
	}
}

// transition applies the state table from spec.md §4.4.
func transition(bot *entity.Bot, target *entity.Player, visible bool, others []*entity.Player, nowMs float64, cfg Config) {
	switch bot.AIState {
	case StateIdle:
		if visible {
			if bot.FirstSeenTargetAt == 0 {
				bot.FirstSeenTargetAt = nowMs
			}
			if nowMs-bot.FirstSeenTargetAt >= cfg.ReactionTimeMs {
				bot.TargetID = target.ID
				setState(bot, StateAttack, nowMs)
			}
			return
		}
		bot.FirstSeenTargetAt = 0
		if nowMs-bot.StateEnteredAt >= 500 {
			setState(bot, StatePatrol, nowMs)
		}

	case StatePatrol:
		if visible {
			bot.TargetID = target.ID
			setState(bot, StateAttack, nowMs)
			return
		}
		if bot.TargetID != "" && nowMs-bot.LostTargetAt < 5000 {
			bot.MoveTarget = bot.LastSeenPos
			bot.HasMoveTarget = true
			setState(bot, StateChase, nowMs)
		}

	case StateChase:
		if visible {
			bot.TargetID = target.ID
			setState(bot, StateAttack, nowMs)
			return
		}
		reachedOrStale := !bot.HasMoveTarget ||
			bot.Position.DistanceTo(bot.MoveTarget) < 2 ||
			nowMs-bot.LostTargetAt > 10000
		if reachedOrStale {
			setState(bot, StatePatrol, nowMs)
		}

	case StateAttack:
		if !visible {
			// No LOS this think. If the remembered target is still alive,
			// pursue its last seen position; otherwise it is dead or gone.
			if findAlive(others, bot.TargetID) == nil {
				bot.TargetID = ""
				setState(bot, StatePatrol, nowMs)
				return
			}
			bot.LostTargetAt = nowMs
			bot.MoveTarget = bot.LastSeenPos
			bot.HasMoveTarget = true
			setState(bot, StateChase, nowMs)
			return
		}
		bot.TargetID = target.ID
		if bot.Health < 30 && rand.Float64() > cfg.Aggressiveness {
			bot.FleeStartedAt = nowMs
			setState(bot, StateFlee, nowMs)
		}

	case StateFlee:
		if nowMs-bot.FleeStartedAt >= 3000 {
			setState(bot, StatePatrol, nowMs)
		}

	default: // "" on first think, or dead->alive after respawn
		setState(bot, StateIdle, nowMs)
	}
}

// findAlive resolves an entity id against the think's candidate list,
// returning nil for dead, departed, or empty ids.
func findAlive(others []*entity.Player, id string) *entity.Player {
	if id == "" {
		return nil
	}
	for _, o := range others {
		if o.ID == id && o.Alive {
			return o
		}
	}
	return nil
}

// selectTarget implements spec.md §4.4's per-think candidate scan: nearest
// alive opposing-team entity (or any alive entity in FFA, signaled by
// bot.Team == entity.TeamSpectator) passing a squared-distance check, an FOV
// cone test, and (within MAX_LOS_DISTANCE) an LOS ray query.
func selectTarget(bot *entity.Bot, others []*entity.Player, world World, cfg Config) (*entity.Player, bool) {
	forward := mathutil.YawPitchToForward(bot.Yaw, bot.Pitch)
	fovCos := math.Cos(cfg.FOVDeg * math.Pi / 360) // half-angle
	sightRangeSq := cfg.SightRange * cfg.SightRange

	var best *entity.Player
	bestDistSq := math.MaxFloat64
	var losQueries []los.Query
	var losCandidates []*entity.Player

	for _, o := range others {
		if o.ID == bot.ID || !o.Alive {
			continue
		}
		if bot.Team != entity.TeamSpectator && o.Team == bot.Team {
			continue
		}

		toTarget := o.Position.Sub(bot.Position)
		distSq := toTarget.LengthSq()
		if distSq > sightRangeSq {
			continue
		}

		dist := math.Sqrt(distSq)
		if dist > 1e-6 {
			dir := toTarget.Scale(1 / dist)
			if forward.Dot(dir) < fovCos {
				continue
			}
		}

		if dist > MaxLOSDistance {
			if distSq < bestDistSq {
				best = o
				bestDistSq = distSq
			}
			continue
		}

		losQueries = append(losQueries, los.Query{From: bot.Position, To: o.Position})
		losCandidates = append(losCandidates, o)
	}

	if len(losQueries) > 0 {
		results := make([]bool, len(losQueries))
		if world.LOS != nil {
			results = world.LOS.BatchLineOfSight(context.Background(), losQueries)
		} else {
			// No pool wired: same FOV-only fallback as a watchdog expiry.
			for i := range results {
				results[i] = true
			}
		}
		for i, visible := range results {
			if !visible {
				continue
			}
			o := losCandidates[i]
			distSq := o.Position.Sub(bot.Position).LengthSq()
			if distSq < bestDistSq {
				best = o
				bestDistSq = distSq
			}
		}
	}

	return best, best != nil
}

func patrol(bot *entity.Bot, nowMs float64) {
	if !bot.HasMoveTarget || bot.Position.DistanceTo(bot.MoveTarget) < 1.5 {
		bot.WanderAngle = rand.Float64() * 2 * math.Pi
		radius := 8.0 + rand.Float64()*8
		bot.MoveTarget = bot.Position.Add(mathutil.Vec3{
			X: math.Cos(bot.WanderAngle) * radius,
			Z: math.Sin(bot.WanderAngle) * radius,
		})
		bot.HasMoveTarget = true
	}
	steerToward(bot, bot.MoveTarget, 0.5)
}

func chaseMove(bot *entity.Bot, _ *entity.Player) {
	if bot.HasMoveTarget {
		steerToward(bot, bot.MoveTarget, 1.0)
	}
}

func flee(bot *entity.Bot, target *entity.Player) {
	if target == nil {
		return
	}
	away := bot.Position.Sub(target.Position).Normalize()
	dest := bot.Position.Add(away.Scale(10))
	steerToward(bot, dest, 1.0)
}

// steerToward sets bot.Velocity toward dest at PlayerMoveSpeed*speedScale
// and faces the bot's yaw along the travel direction.
func steerToward(bot *entity.Bot, dest mathutil.Vec3, speedScale float64) {
	const playerMoveSpeed = 5.0
	toDest := mathutil.Vec3{X: dest.X - bot.Position.X, Z: dest.Z - bot.Position.Z}
	dist := toDest.Length()
	if dist < 1e-6 {
		bot.Velocity.X, bot.Velocity.Z = 0, 0
		return
	}
	dir := toDest.Scale(1 / dist)
	bot.Velocity.X = dir.X * playerMoveSpeed * speedScale
	bot.Velocity.Z = dir.Z * playerMoveSpeed * speedScale
	bot.Yaw = math.Atan2(-dir.X, -dir.Z)
}

// attack implements spec.md §4.4's attack-state movement and firing rules.
func attack(bot *entity.Bot, target *entity.Player, world World, nowMs float64, cfg Config) *FireResult {
	if target == nil {
		return nil
	}

	w, _ := bot.ActiveWeapon()
	def := weapons.Get(w.Type)

	toTarget := target.Position.Sub(bot.Position)
	d := toTarget.Length()
	optimal := 0.5 * def.Range

	var moveDir float64
	switch {
	case d > optimal+5:
		moveDir = 1
	case d < optimal-5:
		moveDir = -1
	default:
		moveDir = 0
	}

	if moveDir != 0 && d > 1e-6 {
		fwd := toTarget.Scale(1 / d)
		bot.Velocity.X = fwd.X * 5.0 * moveDir
		bot.Velocity.Z = fwd.Z * 5.0 * moveDir
	} else if d > 1e-6 {
		strafeSign := 1.0
		if math.Sin(nowMs*0.002) < 0 {
			strafeSign = -1.0
		}
		right := mathutil.YawToRight(bot.Yaw)
		bot.Velocity.X = right.X * 3.0 * strafeSign
		bot.Velocity.Z = right.Z * 3.0 * strafeSign
	}
	bot.Yaw = math.Atan2(-toTarget.X, -toTarget.Z)

	if nowMs < bot.NextFireTime || d > def.Range {
		return nil
	}

	// Fire from eye height at the target's eye, like a human client does.
	eye := mathutil.Vec3{Y: entity.EyeHeight}
	origin := bot.Position.Add(eye)
	aimDir := target.Position.Add(eye).Sub(origin).Normalize()
	noise := (1 - cfg.Accuracy) * 0.2
	aimDir = perturb(aimDir, noise)

	bot.NextFireTime = nowMs + cfg.ReactionTimeMs + def.FireIntervalMillis()

	return &FireResult{Origin: origin, Aim: aimDir, Weapon: w.Type}
}

// perturb adds Gaussian-like yaw/pitch noise of the given magnitude (radians)
// to a unit direction, approximating inaccuracy the way the teacher's
// critical-hit roll approximates variance: a bounded pseudo-random jitter
// rather than a full normal distribution.
func perturb(dir mathutil.Vec3, magnitude float64) mathutil.Vec3 {
	if magnitude <= 0 {
		return dir
	}
	yaw := math.Atan2(-dir.X, -dir.Z)
	pitch := math.Asin(mathutil.Clamp(dir.Y, -1, 1))

	yaw += gaussianish() * magnitude
	pitch += gaussianish() * magnitude

	return mathutil.YawPitchToForward(yaw, pitch)
}

// gaussianish sums three uniform samples (Irwin-Hall) and rescales them into
// a cheap bell-shaped sample in [-1, 1] with standard deviation 1/3 (not a
// standard normal), avoiding a dependency on
// math/rand's NormFloat64 seeding semantics.
func gaussianish() float64 {
	return (rand.Float64() + rand.Float64() + rand.Float64() - 1.5) / 1.5
}
