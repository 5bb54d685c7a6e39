// Package room implements GameRunner: the authoritative, single-threaded
// per-room tick loop that applies input, integrates physics, runs bot
// thinking, resolves combat, and broadcasts snapshots.
//
// Grounded on the teacher's game/engine.go Engine (tick/broadcast tickers
// owned by the room, a tick counter, start/stop via a stop channel) and on
// the pack's vector-racer-v2 room.go (separate physics/broadcast tickers,
// snapshot-by-value broadcast, room-owned player map), generalized from a
// single flat Engine running one shared arena to one GameRunner per Room
// instance so many independent matches can run concurrently.
package room

import (
	"math/rand"
	"sync"
	"time"

	"ctf-arena-server/internal/bot"
	"ctf-arena-server/internal/chat"
	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/los"
	"ctf-arena-server/internal/mapdata"
	"ctf-arena-server/internal/meshphys"
	"ctf-arena-server/internal/metrics"
	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/weapons"
)

// Phase is one state of the round state machine (spec.md §4.5).
type Phase string

const (
	PhasePreMatch Phase = "pre_match"
	PhaseWarmup   Phase = "warmup"
	PhaseFreeze   Phase = "freeze"
	PhaseLive     Phase = "live"
	PhaseRoundEnd Phase = "round_end"
	PhaseHalftime Phase = "halftime"
	PhaseMatchEnd Phase = "match_end"
)

// Timing constants, named exactly as spec.md §4.5 lists them (milliseconds).
const (
	WarmupTimeMs       = 5_000
	FreezeTimeCompMs   = 15_000
	FreezeTimeDMMs     = 5_000
	RoundTimeMs        = 120_000
	RoundEndDelayMs    = 3_000
	RoundsToWinComp    = 7
	RoundsToWinDM      = 10
	PlayerMoveSpeed    = 5.0
	JumpVelocity       = 6.0
	PickupRangeMeters  = 3.0
	PitchClampMargin   = 0.1
)

// Config is a room's tunable parameters, overridable per create_room
// request (spec.md §6).
type Config struct {
	TickRate      int
	BroadcastRate int
	Competitive   bool
	MaxPlayers    int
	Password      string
	RoundsToWin   int
	MapName       string
	FriendlyFire  bool
	Economy       weapons.EconomyConfig
}

// DefaultConfig mirrors the teacher's config.go default-construction style:
// one function returning sane defaults, overridden field-by-field by the
// caller (RoomManager.CreateRoom / internal/config's env overrides).
func DefaultConfig() Config {
	return Config{
		TickRate:      60,
		BroadcastRate: 20,
		Competitive:   true,
		MaxPlayers:    10,
		RoundsToWin:   RoundsToWinComp,
		Economy:       weapons.DefaultEconomyConfig,
	}
}

// Broadcaster is how a Room hands outgoing messages to the transport layer,
// keeping this package free of any websocket/HTTP dependency.
type Broadcaster interface {
	SendToClient(clientID string, msg protocol.ServerMessage)
	BroadcastToRoom(roomID string, msg protocol.ServerMessage)
}

type queuedInput struct {
	clientID string
	msg      protocol.ClientMessage
}

// Room owns one authoritative match: its players, bots, dropped weapons,
// phase state, and the tick/broadcast goroutine driving all of it.
type Room struct {
	ID     string
	Config Config
	Map    *mapdata.Map

	Phase          Phase
	PhaseStartedAt float64 // ms, monotonic
	Tick           uint64
	RoundNumber    int
	TScore         int
	CTScore        int
	RoundWinner    entity.Team

	Players        map[string]*entity.Player
	Bots           map[string]*entity.Bot
	DroppedWeapons map[string]*entity.DroppedWeapon
	usedSpawns     map[int]bool

	// stateMu guards Players/Bots/DroppedWeapons against concurrent
	// Join/Leave/AddBot calls arriving from RoomManager's goroutine while
	// the tick goroutine iterates the same maps. The tick loop holds it for
	// the whole of runTick/broadcastSnapshot so simulation code otherwise
	// reads and mutates those maps lock-free, as spec.md §5 intends; the
	// lock's only job is to serialize the async membership entry points in
	// membership.go against that one goroutine.
	stateMu sync.Mutex

	losPool *los.Pool
	world   meshphys.World

	tickInterval      time.Duration
	broadcastInterval time.Duration
	lastTickAt        time.Time
	startedAt         time.Time

	inputMu sync.Mutex
	inputs  []queuedInput

	stop    chan struct{}
	running bool

	broadcaster Broadcaster

	// ChatLimiter gates applyChat; nil means unthrottled (used by tests).
	// RoomManager sets this to its single shared *chat.Limiter before
	// Start so every room in the process shares one cleanup goroutine.
	ChatLimiter *chat.Limiter

	nextDropID int
}

// NewRoom constructs a room over m, not yet started.
func NewRoom(id string, cfg Config, m *mapdata.Map) *Room {
	r := &Room{
		ID:                id,
		Config:            cfg,
		Map:               m,
		Phase:             PhasePreMatch,
		Players:           make(map[string]*entity.Player),
		Bots:              make(map[string]*entity.Bot),
		DroppedWeapons:    make(map[string]*entity.DroppedWeapon),
		usedSpawns:        make(map[int]bool),
		tickInterval:      time.Second / time.Duration(cfg.TickRate),
		broadcastInterval: time.Second / time.Duration(cfg.BroadcastRate),
		stop:              make(chan struct{}),
	}
	r.world = meshphys.World{Mesh: m.Mesh, BVH: m.BVH}
	r.losPool = los.NewPool(2, m.Mesh.Triangles())
	return r
}

// Start begins the room's tick and broadcast goroutine. Safe to call once;
// subsequent calls are no-ops, matching the teacher's Start idempotency.
func (r *Room) Start(b Broadcaster) {
	if r.running {
		return
	}
	r.running = true
	r.broadcaster = b
	r.startedAt = time.Now()
	r.lastTickAt = r.startedAt
	r.Phase = PhaseWarmup
	r.PhaseStartedAt = r.nowMs()

	go r.loop()
}

// Stop halts the tick goroutine and drops the LOS worker pool. Any pending
// input or LOS messages in flight are simply abandoned; late responses are
// never read because nothing selects on their channels after this returns.
func (r *Room) Stop() {
	if !r.running {
		return
	}
	r.running = false
	close(r.stop)
	r.losPool.Stop()
}

func (r *Room) loop() {
	tickTicker := time.NewTicker(r.tickInterval)
	broadcastTicker := time.NewTicker(r.broadcastInterval)
	defer tickTicker.Stop()
	defer broadcastTicker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-tickTicker.C:
			r.runTick()
		case <-broadcastTicker.C:
			r.broadcastSnapshot()
		}
	}
}

// nowMs returns milliseconds elapsed since the room started, used uniformly
// as the monotonic clock every phase/weapon timer compares against.
func (r *Room) nowMs() float64 {
	return float64(time.Since(r.startedAt).Microseconds()) / 1000.0
}

// Enqueue appends one client message to the room's inbound queue; the tick
// loop drains it at the top of the next tick (spec.md §5).
func (r *Room) Enqueue(clientID string, msg protocol.ClientMessage) {
	r.inputMu.Lock()
	r.inputs = append(r.inputs, queuedInput{clientID: clientID, msg: msg})
	r.inputMu.Unlock()
}

func (r *Room) drainInputs() []queuedInput {
	r.inputMu.Lock()
	defer r.inputMu.Unlock()
	if len(r.inputs) == 0 {
		return nil
	}
	drained := r.inputs
	r.inputs = nil
	return drained
}

// runTick executes one authoritative tick: drain inputs, advance the phase
// machine, move living entities, think bots, advance reloads.
func (r *Room) runTick() {
	tickStart := time.Now()
	defer func() { metrics.RecordTick(time.Since(tickStart)) }()

	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	now := time.Now()
	dt := now.Sub(r.lastTickAt).Seconds()
	r.lastTickAt = now
	r.Tick++

	nowMs := r.nowMs()

	for _, qi := range r.drainInputs() {
		r.applyClientMessage(qi.clientID, qi.msg)
	}

	r.updatePhase(nowMs)

	if r.Phase == PhaseLive || r.Phase == PhaseWarmup {
		for _, p := range r.Players {
			if p.Alive {
				r.integratePhysics(p, dt)
			}
		}
		for _, b := range r.Bots {
			if b.Alive {
				r.thinkBot(b, nowMs)
				r.integratePhysics(&b.Player, dt)
			}
		}
	}

	r.advanceReloads(nowMs)
}

// integratePhysics runs gravity + mesh collision + world-bounds clamp for
// one living entity (spec.md §4.5 step 3).
func (r *Room) integratePhysics(p *entity.Player, dt float64) {
	const gravity = -18.0
	state := meshphys.MoveState{
		Pos:            p.Position,
		Vel:            p.Velocity,
		OnGround:       p.OnGround,
		PrevGroundY:    p.PrevGroundY,
		HasPrevGroundY: p.HasPrevGroundY,
	}
	if !state.OnGround {
		state.Vel.Y += gravity * dt
	}

	state = meshphys.MoveWithMesh(state, r.world, dt)
	state.Pos = r.Map.Bounds.Clamp(state.Pos)

	p.Position = state.Pos
	p.Velocity = state.Vel
	p.OnGround = state.OnGround
	p.PrevGroundY = state.PrevGroundY
	p.HasPrevGroundY = state.HasPrevGroundY
}

func (r *Room) thinkBot(b *entity.Bot, nowMs float64) {
	others := r.allEntities(b.ID)
	fired := bot.Think(b, others, bot.World{Mesh: &r.world, LOS: r.losPool}, nowMs)
	if fired != nil {
		r.resolveFire(&b.Player, fired.Origin, fired.Aim, fired.Weapon, nowMs)
	}
}

// allEntities returns every other player's Player view, living or dead
// (including bots, via their embedded Player), for targeting and hit-scan
// purposes; callers skip the dead ones.
func (r *Room) allEntities(excludeID string) []*entity.Player {
	out := make([]*entity.Player, 0, len(r.Players)+len(r.Bots))
	for _, p := range r.Players {
		if p.ID != excludeID {
			out = append(out, p)
		}
	}
	for _, b := range r.Bots {
		if b.ID != excludeID {
			out = append(out, &b.Player)
		}
	}
	return out
}

func (r *Room) advanceReloads(nowMs float64) {
	for _, p := range r.Players {
		r.advanceReloadsFor(p, nowMs)
	}
	for _, b := range r.Bots {
		r.advanceReloadsFor(&b.Player, nowMs)
	}
}

func (r *Room) advanceReloadsFor(p *entity.Player, nowMs float64) {
	for slot, w := range p.Weapons {
		w.AdvanceReload(nowMs)
		p.Weapons[slot] = w
	}
}

func (r *Room) broadcastSnapshot() {
	if r.broadcaster == nil {
		return
	}
	r.stateMu.Lock()
	snap := r.buildSnapshot()
	r.stateMu.Unlock()
	r.broadcaster.BroadcastToRoom(r.ID, protocol.GameStateMsg{State: snap})
}

// pickSpawn returns an unused spawn point for team, marking it used;
// usedSpawns is cleared at the start of every round.
func (r *Room) pickSpawn(team entity.Team) entity.SpawnPoint {
	var candidates []int
	for i, sp := range r.Map.SpawnPoints {
		if r.usedSpawns[i] {
			continue
		}
		if sp.Team == team || sp.Team == entity.TeamSpectator {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		for i := range r.Map.SpawnPoints {
			if !r.usedSpawns[i] {
				candidates = append(candidates, i)
			}
		}
	}
	if len(candidates) == 0 {
		// Every spawn used; recycle index 0 rather than fail the round.
		return r.Map.SpawnPoints[0]
	}
	idx := candidates[rand.Intn(len(candidates))]
	r.usedSpawns[idx] = true
	return r.Map.SpawnPoints[idx]
}
