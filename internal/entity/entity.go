// Package entity defines the authoritative per-connection and per-bot
// record a Room owns: position, health, inventory, and the bookkeeping the
// tick loop and combat resolution mutate every frame.
//
// Grounded on the teacher's game/player.go Player struct and its
// TakeDamage/Respawn/ResolveCollisions methods, generalized from a flat 2D
// position+HP record into the eye-position/yaw-pitch/armor/per-slot
// inventory shape a first-person match needs, and on game/team.go for the
// Team enumeration.
package entity

import (
	"ctf-arena-server/internal/mathutil"
	"ctf-arena-server/internal/weapons"
)

// Team is a player or bot's side.
type Team string

const (
	TeamT          Team = "T"
	TeamCT         Team = "CT"
	TeamSpectator  Team = "SPECTATOR"
)

// Difficulty is a bot's AI tuning tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Input is one client input frame: movement axes, orientation, and the
// client-assigned monotonic sequence number used for ack/reconciliation.
type Input struct {
	Forward  float64 `json:"forward"` // -1..1
	Strafe   float64 `json:"strafe"`  // -1..1
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	Jump     bool    `json:"jump"`
	Crouch   bool    `json:"crouch"`
	Sequence uint32  `json:"sequence"`
}

// Player is the authoritative record for one connected client. Bots embed
// the same fields (see Bot) so combat, movement, and snapshot code operate
// on a single shape regardless of whether a slot is human- or AI-controlled.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Team     Team   `json:"team"`

	Position mathutil.Vec3 `json:"position"` // feet; add EyeHeight for the camera/aim origin
	Velocity mathutil.Vec3 `json:"velocity"`
	Yaw      float64       `json:"yaw"`
	Pitch    float64       `json:"pitch"`

	Health float64 `json:"health"` // 0..100
	Armor  float64 `json:"armor"`  // 0..100
	Alive  bool    `json:"isAlive"`

	CurrentWeapon weapons.Slot                      `json:"currentWeapon"`
	Weapons       map[weapons.Slot]weapons.Instance `json:"weapons"`

	Money  int `json:"money"`
	Kills  int `json:"kills"`
	Deaths int `json:"deaths"`

	LastInputSequence uint32 `json:"lastInputSequence"`

	OnGround bool `json:"-"`
	// PrevGroundY/HasPrevGroundY carry meshphys.MoveState's tunneling-guard
	// memory across ticks without importing meshphys here (avoids an import
	// cycle: meshphys has no reason to know about Player).
	PrevGroundY    float64 `json:"-"`
	HasPrevGroundY bool    `json:"-"`
}

// NewPlayer returns a freshly joined player with the default spawn
// inventory: pistol in the sidearm slot and a knife in the melee slot.
func NewPlayer(id, name string, team Team) *Player {
	p := &Player{
		ID:            id,
		Name:          name,
		Team:          team,
		Health:        100,
		Armor:         0,
		Alive:         true,
		CurrentWeapon: weapons.SlotSidearm,
		Weapons:       make(map[weapons.Slot]weapons.Instance, 2),
	}
	p.resetInventory()
	return p
}

func (p *Player) resetInventory() {
	p.Weapons = map[weapons.Slot]weapons.Instance{
		weapons.SlotMelee:   weapons.NewInstance(weapons.Knife),
		weapons.SlotSidearm: weapons.NewInstance(weapons.Pistol),
	}
	p.CurrentWeapon = weapons.SlotSidearm
}

// Respawn resets health, armor, and inventory for the start of a new round;
// position is set by the caller (Room picks an unused spawn point).
func (p *Player) Respawn() {
	p.Health = 100
	p.Armor = 0
	p.Alive = true
	p.Velocity = mathutil.Vec3{}
	p.OnGround = false
	p.HasPrevGroundY = false
	p.resetInventory()
}

// ActiveWeapon returns the instance occupying CurrentWeapon, and whether one
// is equipped (it always should be, but callers check defensively before
// firing).
func (p *Player) ActiveWeapon() (weapons.Instance, bool) {
	w, ok := p.Weapons[p.CurrentWeapon]
	return w, ok
}

// SetActiveWeapon writes back the (mutated) active weapon instance.
func (p *Player) SetActiveWeapon(w weapons.Instance) {
	p.Weapons[p.CurrentWeapon] = w
}

// EyeHeight is the vertical offset from feet to eye, used as the shot
// origin, the bot aim origin, and the headshot line.
const EyeHeight = 1.6

// ApplyDamage applies dmg using the armor-absorption formula (kept exactly
// as originally specified: health loses dmg minus half of min(armor, dmg/2),
// and that same min(armor, dmg/2) is removed from armor). Returns whether
// the hit was fatal.
func (p *Player) ApplyDamage(dmg float64) bool {
	absorbed := dmg / 2
	if absorbed > p.Armor {
		absorbed = p.Armor
	}
	actual := dmg - absorbed*0.5
	p.Health -= actual
	p.Armor -= absorbed

	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
		p.Deaths++
		return true
	}
	return false
}

// Bot is a Player plus the AI-only bookkeeping BotBrain needs. Bots are
// otherwise addressed identically to players by combat, movement, and
// snapshot code (spec.md §3: "superset of Player fields").
type Bot struct {
	Player

	Difficulty     Difficulty    `json:"difficulty"`
	TargetID       string        `json:"-"`
	LastTargetSeen float64       `json:"-"` // ms, monotonic; when TargetID was last confirmed visible
	LastSeenPos    mathutil.Vec3 `json:"-"` // where the target was last confirmed visible
	WanderAngle    float64       `json:"-"`
	NextFireTime   float64       `json:"-"`

	// AIState is set and read exclusively by internal/bot; kept as a plain
	// string here so entity has no dependency on the bot package.
	AIState        string  `json:"-"`
	StateEnteredAt float64 `json:"-"` // ms, monotonic; when AIState was last entered
	NextThinkTime  float64 `json:"-"` // ms; think is a no-op before this

	// FirstSeenTargetAt supports the idle->attack reactionTime gate: the
	// timestamp a currently-visible target was first spotted this idle
	// period, or 0 if none is pending.
	FirstSeenTargetAt float64 `json:"-"`
	LostTargetAt      float64 `json:"-"`
	FleeStartedAt     float64 `json:"-"`

	// MoveTarget is the point the bot currently steers toward between
	// think ticks (chase/patrol); cached so motion stays continuous at the
	// tick rate even though think only runs every 100ms.
	MoveTarget    mathutil.Vec3 `json:"-"`
	HasMoveTarget bool          `json:"-"`
}

// NewBot returns a freshly spawned bot with the default inventory and idle
// AI state.
func NewBot(id, name string, team Team, difficulty Difficulty) *Bot {
	return &Bot{
		Player:     *NewPlayer(id, name, team),
		Difficulty: difficulty,
		AIState:    "idle",
	}
}

// DroppedWeapon is a weapon instance left on the ground, either from a
// drop_weapon action or from a killed player/bot.
type DroppedWeapon struct {
	ID          string        `json:"id"`
	Type        weapons.Type  `json:"type"`
	Position    mathutil.Vec3 `json:"position"`
	CurrentAmmo int           `json:"currentAmmo"`
	ReserveAmmo int           `json:"reserveAmmo"`
	DroppedAt   float64       `json:"droppedAt"` // ms, monotonic
}

// SpawnPoint is a map-authored spawn location.
type SpawnPoint struct {
	Position mathutil.Vec3 `json:"position"` // feet
	Yaw      float64       `json:"yaw"`
	Team     Team          `json:"team"` // T, CT, or DM (spectator used as wildcard)
}
