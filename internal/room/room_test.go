package room

import (
	"math"
	"testing"
	"time"

	"ctf-arena-server/internal/collision"
	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/mapdata"
	"ctf-arena-server/internal/mathutil"
	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/weapons"
)

// recordingBroadcaster captures everything a room would have sent, letting
// tests drive tick-loop methods directly without a transport layer.
type recordingBroadcaster struct {
	direct map[string][]protocol.ServerMessage
	room   []protocol.ServerMessage
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{direct: make(map[string][]protocol.ServerMessage)}
}

func (b *recordingBroadcaster) SendToClient(clientID string, msg protocol.ServerMessage) {
	b.direct[clientID] = append(b.direct[clientID], msg)
}

func (b *recordingBroadcaster) BroadcastToRoom(_ string, msg protocol.ServerMessage) {
	b.room = append(b.room, msg)
}

func (b *recordingBroadcaster) lastRoomOfType(match func(protocol.ServerMessage) bool) protocol.ServerMessage {
	for i := len(b.room) - 1; i >= 0; i-- {
		if match(b.room[i]) {
			return b.room[i]
		}
	}
	return nil
}

// newTestRoom builds an unstarted room over the flat arena with its clock
// wound back one minute, so nowMs is comfortably past every fire-rate and
// reaction-time gate.
func newTestRoom(t *testing.T) (*Room, *recordingBroadcaster) {
	t.Helper()
	r := NewRoom("room-test", DefaultConfig(), mapdata.FlatTestArena())
	b := newRecordingBroadcaster()
	r.broadcaster = b
	r.startedAt = time.Now().Add(-time.Minute)
	r.lastTickAt = time.Now()
	t.Cleanup(func() { r.losPool.Stop() })
	return r, b
}

func join(t *testing.T, r *Room, id, name string) *entity.Player {
	t.Helper()
	p, err := r.Join(id, name)
	if err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return p
}

func giveWeapon(p *entity.Player, typ weapons.Type) {
	def := weapons.Get(typ)
	p.Weapons[def.Slot] = weapons.NewInstance(typ)
	p.CurrentWeapon = def.Slot
}

func TestSniperHeadshotIsOneShotKill(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseLive

	attacker := join(t, r, "p1", "Alice")
	target := join(t, r, "p2", "Bob")
	if attacker.Team == target.Team {
		t.Fatal("expected join to balance onto opposing teams")
	}

	attacker.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 0}
	attacker.Yaw = math.Pi // forward is +Z
	attacker.Pitch = 0
	target.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 5}
	giveWeapon(attacker, weapons.Sniper)

	r.applyFire(attacker)

	hit, ok := b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.HitEventMsg)
		return ok
	}).(protocol.HitEventMsg)
	if !ok {
		t.Fatal("expected a hit_event")
	}
	if !hit.Headshot {
		t.Fatal("expected headshot at eye level")
	}
	if math.Abs(hit.Damage-287.5) > 1e-9 {
		t.Fatalf("expected damage 287.5, got %v", hit.Damage)
	}

	if target.Health != 0 || target.Alive {
		t.Fatalf("expected target dead, got health=%v alive=%v", target.Health, target.Alive)
	}
	if attacker.Kills != 1 || target.Deaths != 1 {
		t.Fatalf("expected kills=1 deaths=1, got %d/%d", attacker.Kills, target.Deaths)
	}

	kill, ok := b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.KillEventMsg)
		return ok
	}).(protocol.KillEventMsg)
	if !ok {
		t.Fatal("expected a kill_event")
	}
	if kill.KillerID != attacker.ID || kill.VictimID != target.ID {
		t.Fatalf("unexpected kill attribution: %+v", kill)
	}

	wantMoney := r.Config.Economy.StartingMoney + weapons.KillReward[weapons.Sniper]
	if attacker.Money != wantMoney {
		t.Fatalf("expected kill reward applied, got money=%d want=%d", attacker.Money, wantMoney)
	}

	w, _ := attacker.ActiveWeapon()
	if w.CurrentAmmo != weapons.Get(weapons.Sniper).MagazineSize-1 {
		t.Fatalf("expected one round spent, got %d", w.CurrentAmmo)
	}
}

func TestRifleBodyShotWoundsWithoutKilling(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseLive

	attacker := join(t, r, "p1", "Alice")
	target := join(t, r, "p2", "Bob")

	attacker.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 0}
	attacker.Yaw = math.Pi
	// Aim below the chest line: eye is at 1.7, target chest cutoff at 1.5.
	attacker.Pitch = -0.216
	target.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 5}
	giveWeapon(attacker, weapons.Rifle)

	r.applyFire(attacker)

	hit, ok := b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.HitEventMsg)
		return ok
	}).(protocol.HitEventMsg)
	if !ok {
		t.Fatal("expected a hit_event")
	}
	if hit.Headshot {
		t.Fatal("expected body shot, not headshot")
	}
	if math.Abs(hit.Damage-33) > 1e-9 {
		t.Fatalf("expected rifle base damage 33, got %v", hit.Damage)
	}
	if !target.Alive || target.Health != 67 {
		t.Fatalf("expected wounded survivor at 67hp, got health=%v alive=%v", target.Health, target.Alive)
	}
}

func TestFireBlockedByWall(t *testing.T) {
	// A wall at z=2 fully separates shooter (z=0) from target (z=5).
	mesh := collision.NewMesh([][3]mathutil.Vec3{
		{{X: -10, Y: -5, Z: 2}, {X: 10, Y: -5, Z: 2}, {X: 10, Y: 10, Z: 2}},
		{{X: -10, Y: -5, Z: 2}, {X: 10, Y: 10, Z: 2}, {X: -10, Y: 10, Z: 2}},
	})
	m := &mapdata.Map{
		Bounds:      mapdata.Bounds{Min: mathutil.Vec3{X: -50, Y: -5, Z: -50}, Max: mathutil.Vec3{X: 50, Y: 50, Z: 50}},
		SpawnPoints: mapdata.FlatTestArena().SpawnPoints,
		Mesh:        mesh,
		BVH:         collision.Build(mesh),
	}
	r := NewRoom("room-wall", DefaultConfig(), m)
	b := newRecordingBroadcaster()
	r.broadcaster = b
	r.startedAt = time.Now().Add(-time.Minute)
	t.Cleanup(func() { r.losPool.Stop() })
	r.Phase = PhaseLive

	attacker := join(t, r, "p1", "Alice")
	target := join(t, r, "p2", "Bob")
	attacker.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 0}
	attacker.Yaw = math.Pi
	target.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 5}
	giveWeapon(attacker, weapons.Sniper)

	r.applyFire(attacker)

	if msg := b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.HitEventMsg)
		return ok
	}); msg != nil {
		t.Fatalf("expected no hit through the wall, got %+v", msg)
	}
	if target.Health != 100 {
		t.Fatalf("expected target untouched, got %v", target.Health)
	}
}

func TestFriendlyFireDisabledByDefault(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseLive

	attacker := join(t, r, "p1", "Alice")
	ally := join(t, r, "p2", "Bob")
	ally.Team = attacker.Team

	attacker.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 0}
	attacker.Yaw = math.Pi
	ally.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 5}
	giveWeapon(attacker, weapons.Sniper)

	r.applyFire(attacker)

	if ally.Health != 100 {
		t.Fatalf("expected teammate unhurt, got %v", ally.Health)
	}
}

func TestBuyGatedByPhase(t *testing.T) {
	r, _ := newTestRoom(t)
	p := join(t, r, "p1", "Alice")
	p.Money = 5000

	r.Phase = PhaseLive
	r.applyBuyWeapon(p, weapons.Rifle)
	if p.Money != 5000 {
		t.Fatalf("expected buy refused during live, money=%d", p.Money)
	}
	if _, ok := p.Weapons[weapons.SlotPrimary]; ok {
		t.Fatal("expected no rifle granted during live")
	}

	r.Phase = PhaseFreeze
	r.applyBuyWeapon(p, weapons.Rifle)
	wantMoney := 5000 - weapons.Get(weapons.Rifle).Cost
	if p.Money != wantMoney {
		t.Fatalf("expected money %d after buy, got %d", wantMoney, p.Money)
	}
	w, ok := p.Weapons[weapons.SlotPrimary]
	if !ok || w.Type != weapons.Rifle {
		t.Fatal("expected rifle in the primary slot")
	}
	if p.CurrentWeapon != weapons.SlotPrimary {
		t.Fatal("expected purchased weapon selected")
	}
}

func TestBuyRefusedWithoutMoney(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseFreeze
	p := join(t, r, "p1", "Alice")
	p.Money = 100

	r.applyBuyWeapon(p, weapons.Sniper)
	if p.Money != 100 {
		t.Fatalf("expected refusal, money=%d", p.Money)
	}
}

func TestReloadMovesAmmoAfterReloadTime(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")

	p.Weapons[weapons.SlotSidearm] = weapons.Instance{Type: weapons.Pistol, CurrentAmmo: 3, ReserveAmmo: 12}
	p.CurrentWeapon = weapons.SlotSidearm

	r.applyReload(p)
	w, _ := p.ActiveWeapon()
	if !w.IsReloading {
		t.Fatal("expected reload started")
	}
	if w.CurrentAmmo != 3 {
		t.Fatal("expected no ammo moved before reload time elapses")
	}

	reloadMs := weapons.Get(weapons.Pistol).ReloadTime * 1000
	r.advanceReloads(r.nowMs() + reloadMs + 1)

	w, _ = p.ActiveWeapon()
	if w.CurrentAmmo != 12 || w.ReserveAmmo != 3 {
		t.Fatalf("expected 12/3 after reload, got %d/%d", w.CurrentAmmo, w.ReserveAmmo)
	}
	if w.IsReloading {
		t.Fatal("expected reload completed")
	}
}

func TestRoundEndsByElimination(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseLive
	r.PhaseStartedAt = r.nowMs()

	t1 := join(t, r, "p1", "T One")
	ct := join(t, r, "p2", "CT One")
	t2 := join(t, r, "p3", "T Two")
	t1.Team, t2.Team = entity.TeamT, entity.TeamT
	ct.Team = entity.TeamCT

	ct.Health = 0
	ct.Alive = false

	r.updatePhase(r.nowMs())

	if r.Phase != PhaseRoundEnd {
		t.Fatalf("expected round_end, got %s", r.Phase)
	}
	if r.RoundWinner != entity.TeamT || r.TScore != 1 || r.CTScore != 0 {
		t.Fatalf("expected T round win, got winner=%s t=%d ct=%d", r.RoundWinner, r.TScore, r.CTScore)
	}

	pc, ok := b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.PhaseChangeMsg)
		return ok
	}).(protocol.PhaseChangeMsg)
	if !ok || pc.Phase != string(PhaseRoundEnd) {
		t.Fatalf("expected phase_change to round_end, got %+v", pc)
	}

	// Economy: winners get the win bonus, the loser the lose bonus.
	wantWin := r.Config.Economy.StartingMoney + r.Config.Economy.RoundWinBonus
	wantLose := r.Config.Economy.StartingMoney + r.Config.Economy.RoundLoseBonus
	if t1.Money != wantWin || t2.Money != wantWin {
		t.Fatalf("expected winners at %d, got %d/%d", wantWin, t1.Money, t2.Money)
	}
	if ct.Money != wantLose {
		t.Fatalf("expected loser at %d, got %d", wantLose, ct.Money)
	}
}

func TestBothTeamsWipedFavorsCT(t *testing.T) {
	r, _ := newTestRoom(t)
	tp := join(t, r, "p1", "T")
	ct := join(t, r, "p2", "CT")
	tp.Team, ct.Team = entity.TeamT, entity.TeamCT
	tp.Alive, ct.Alive = false, false

	winner, over := r.checkRoundEnd()
	if !over || winner != entity.TeamCT {
		t.Fatalf("expected CT tiebreak, got %s over=%v", winner, over)
	}
}

func TestTimeoutWinnerTieFavorsCT(t *testing.T) {
	r, _ := newTestRoom(t)
	tp := join(t, r, "p1", "T")
	ct := join(t, r, "p2", "CT")
	tp.Team, ct.Team = entity.TeamT, entity.TeamCT

	if got := r.getTimeoutWinner(); got != entity.TeamCT {
		t.Fatalf("expected CT on tie, got %s", got)
	}

	ct.Alive = false
	if got := r.getTimeoutWinner(); got != entity.TeamT {
		t.Fatalf("expected T with more alive, got %s", got)
	}
}

func TestWarmupAdvancesToFreezeAndRespawns(t *testing.T) {
	r, _ := newTestRoom(t)
	p := join(t, r, "p1", "Alice")
	p.Health = 40
	p.Money = 1000

	r.Phase = PhaseWarmup
	r.PhaseStartedAt = r.nowMs() - WarmupTimeMs - 1

	r.updatePhase(r.nowMs())

	if r.Phase != PhaseFreeze {
		t.Fatalf("expected freeze after warmup, got %s", r.Phase)
	}
	if r.RoundNumber != 1 {
		t.Fatalf("expected round 1, got %d", r.RoundNumber)
	}
	if p.Health != 100 || !p.Alive {
		t.Fatalf("expected respawn reset, got health=%v", p.Health)
	}
	w, ok := p.ActiveWeapon()
	if !ok || w.Type != weapons.Pistol {
		t.Fatal("expected base inventory with pistol selected")
	}
}

func TestRoundEndAdvancesToMatchEndAtRoundsToWin(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "p1", "Alice")

	r.TScore = r.roundsToWin()
	r.Phase = PhaseRoundEnd
	r.PhaseStartedAt = r.nowMs() - RoundEndDelayMs - 1

	r.updatePhase(r.nowMs())
	if r.Phase != PhaseMatchEnd {
		t.Fatalf("expected match_end, got %s", r.Phase)
	}
}

func TestInputAckEchoesSequenceAndPosition(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")
	p.Position = mathutil.Vec3{X: 0, Y: 0.1, Z: 0}

	r.applyInput(p, &protocol.InputMsg{
		Input:    entity.Input{Forward: 1, Yaw: 0},
		Sequence: 42,
	})

	if p.LastInputSequence != 42 {
		t.Fatalf("expected sequence stored, got %d", p.LastInputSequence)
	}

	msgs := b.direct[p.ID]
	if len(msgs) == 0 {
		t.Fatal("expected an input_ack")
	}
	ack, ok := msgs[len(msgs)-1].(protocol.InputAckMsg)
	if !ok {
		t.Fatalf("expected InputAckMsg, got %T", msgs[len(msgs)-1])
	}
	if ack.Sequence != 42 {
		t.Fatalf("expected ack sequence 42, got %d", ack.Sequence)
	}
	want := [3]float64{p.Position.X, p.Position.Y, p.Position.Z}
	if ack.Position != want {
		t.Fatalf("expected ack position %v, got %v", want, ack.Position)
	}
	// Forward input at yaw 0 moves along -Z.
	if p.Position.Z >= 0 {
		t.Fatalf("expected movement along -Z, got z=%v", p.Position.Z)
	}
}

func TestInputDuringFreezeKeepsPositionUpdatesYaw(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseFreeze
	p := join(t, r, "p1", "Alice")
	before := p.Position

	r.applyInput(p, &protocol.InputMsg{
		Input:    entity.Input{Forward: 1, Yaw: 1.25, Pitch: 0.3},
		Sequence: 7,
	})

	if p.Position != before {
		t.Fatalf("expected frozen position, moved from %+v to %+v", before, p.Position)
	}
	if p.Yaw != 1.25 || p.Pitch != 0.3 {
		t.Fatalf("expected orientation updated, got yaw=%v pitch=%v", p.Yaw, p.Pitch)
	}
	if p.LastInputSequence != 7 {
		t.Fatalf("expected sequence stored, got %d", p.LastInputSequence)
	}
}

func TestPitchClamped(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")

	r.applyInput(p, &protocol.InputMsg{Input: entity.Input{Pitch: 3}, Sequence: 1})
	if p.Pitch >= math.Pi/2 {
		t.Fatalf("expected pitch clamped below pi/2, got %v", p.Pitch)
	}
	r.applyInput(p, &protocol.InputMsg{Input: entity.Input{Pitch: -3}, Sequence: 2})
	if p.Pitch <= -math.Pi/2 {
		t.Fatalf("expected pitch clamped above -pi/2, got %v", p.Pitch)
	}
}

func TestDropAndPickupWeapon(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")
	p.Weapons[weapons.SlotPrimary] = weapons.Instance{Type: weapons.Rifle, CurrentAmmo: 10, ReserveAmmo: 50}
	p.CurrentWeapon = weapons.SlotPrimary

	r.applyDropWeapon(p)

	if _, ok := p.Weapons[weapons.SlotPrimary]; ok {
		t.Fatal("expected rifle removed from inventory")
	}
	if p.CurrentWeapon != weapons.SlotMelee {
		t.Fatal("expected fallback to melee after drop")
	}
	if len(r.DroppedWeapons) != 1 {
		t.Fatalf("expected one dropped weapon, got %d", len(r.DroppedWeapons))
	}
	if b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.WeaponDroppedMsg)
		return ok
	}) == nil {
		t.Fatal("expected weapon_dropped broadcast")
	}

	var dropID string
	for id, dw := range r.DroppedWeapons {
		dropID = id
		if dw.CurrentAmmo != 10 || dw.ReserveAmmo != 50 {
			t.Fatalf("expected ammo preserved on drop, got %d/%d", dw.CurrentAmmo, dw.ReserveAmmo)
		}
	}

	r.applyPickupWeapon(p, dropID)

	w, ok := p.Weapons[weapons.SlotPrimary]
	if !ok || w.Type != weapons.Rifle || w.CurrentAmmo != 10 || w.ReserveAmmo != 50 {
		t.Fatalf("expected rifle restored with stored ammo, got %+v", w)
	}
	if len(r.DroppedWeapons) != 0 {
		t.Fatal("expected dropped weapon consumed")
	}
}

func TestPickupRefusedOutOfRange(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")
	p.Weapons[weapons.SlotPrimary] = weapons.Instance{Type: weapons.Rifle, CurrentAmmo: 5, ReserveAmmo: 5}
	p.CurrentWeapon = weapons.SlotPrimary

	r.applyDropWeapon(p)
	var dropID string
	for id := range r.DroppedWeapons {
		dropID = id
	}

	p.Position = p.Position.Add(mathutil.Vec3{X: 10})
	r.applyPickupWeapon(p, dropID)

	if _, ok := p.Weapons[weapons.SlotPrimary]; ok {
		t.Fatal("expected out-of-range pickup refused")
	}
	if len(r.DroppedWeapons) != 1 {
		t.Fatal("expected dropped weapon still on the ground")
	}
}

func TestKnifeCannotBeDropped(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")
	p.CurrentWeapon = weapons.SlotMelee

	r.applyDropWeapon(p)
	if len(r.DroppedWeapons) != 0 {
		t.Fatal("expected knife drop refused")
	}
	if _, ok := p.Weapons[weapons.SlotMelee]; !ok {
		t.Fatal("expected knife still in inventory")
	}
}

func TestDeadPlayerActionsIgnored(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")
	p.Alive = false
	p.Health = 0
	giveWeapon(p, weapons.Rifle)

	before := len(b.room)
	r.applyFire(p)
	r.applyReload(p)
	r.applyDropWeapon(p)
	if len(b.room) != before {
		t.Fatal("expected no events from a dead player's actions")
	}
}

func TestTickCounterMonotonic(t *testing.T) {
	r, _ := newTestRoom(t)
	for i := 0; i < 5; i++ {
		r.runTick()
	}
	if r.Tick != 5 {
		t.Fatalf("expected tick 5, got %d", r.Tick)
	}
}

func TestRunTickHoldsInventoryInvariants(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseLive
	p := join(t, r, "p1", "Alice")
	giveWeapon(p, weapons.Rifle)
	r.Enqueue(p.ID, protocol.FireMsg{})
	r.Enqueue(p.ID, protocol.ReloadMsg{})

	for i := 0; i < 10; i++ {
		r.runTick()
	}

	for slot, w := range p.Weapons {
		def := weapons.Get(w.Type)
		if w.CurrentAmmo < 0 || w.CurrentAmmo > def.MagazineSize {
			t.Fatalf("slot %s: magazine out of bounds: %d", slot, w.CurrentAmmo)
		}
		if w.ReserveAmmo < 0 {
			t.Fatalf("slot %s: negative reserve: %d", slot, w.ReserveAmmo)
		}
	}
	if p.Money < 0 || p.Money > r.Config.Economy.MaxMoney {
		t.Fatalf("money out of bounds: %d", p.Money)
	}
}

func TestSnapshotCarriesEntitiesAndScores(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Phase = PhaseLive
	r.PhaseStartedAt = r.nowMs()
	r.Tick = 17
	r.TScore = 2
	r.CTScore = 1
	join(t, r, "p1", "Alice")
	r.AddBot("bot1", "Bot", entity.TeamCT, entity.DifficultyEasy)

	snap := r.buildSnapshot()

	if snap.Tick != 17 || snap.Phase != string(PhaseLive) {
		t.Fatalf("unexpected header: %+v", snap)
	}
	if len(snap.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(snap.Entities))
	}
	if snap.TScore != 2 || snap.CTScore != 1 {
		t.Fatalf("unexpected scores: %d/%d", snap.TScore, snap.CTScore)
	}
	if snap.RoundTimeLeft <= 0 || snap.RoundTimeLeft > RoundTimeMs/1000 {
		t.Fatalf("unexpected round time left: %v", snap.RoundTimeLeft)
	}
}

func TestRoomFullRejectsJoin(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Config.MaxPlayers = 1
	join(t, r, "p1", "Alice")

	if _, err := r.Join("p2", "Bob"); err == nil {
		t.Fatal("expected room-full error")
	}
}

func TestReadyAndStartGameShortCircuitWarmup(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseWarmup
	r.PhaseStartedAt = r.nowMs()
	p := join(t, r, "p1", "Alice")

	r.applyClientMessage(p.ID, protocol.ReadyMsg{})
	ready, ok := b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.PlayerReadyMsg)
		return ok
	}).(protocol.PlayerReadyMsg)
	if !ok || ready.PlayerID != p.ID {
		t.Fatalf("expected player_ready broadcast, got %+v", ready)
	}

	r.applyClientMessage(p.ID, protocol.StartGameMsg{})
	if b.lastRoomOfType(func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.GameStartingMsg)
		return ok
	}) == nil {
		t.Fatal("expected game_starting broadcast")
	}
	if r.Phase != PhaseFreeze || r.RoundNumber != 1 {
		t.Fatalf("expected start_game to begin round 1 freeze, got phase=%s round=%d", r.Phase, r.RoundNumber)
	}

	// Once live, a second start_game is ignored.
	r.Phase = PhaseLive
	r.applyClientMessage(p.ID, protocol.StartGameMsg{})
	if r.RoundNumber != 1 {
		t.Fatalf("expected start_game ignored mid-match, round=%d", r.RoundNumber)
	}
}

func TestChangeTeamOnlyBeforeMatch(t *testing.T) {
	r, b := newTestRoom(t)
	r.Phase = PhaseWarmup
	p := join(t, r, "p1", "Alice")
	other := entity.TeamCT
	if p.Team == entity.TeamCT {
		other = entity.TeamT
	}

	r.applyClientMessage(p.ID, &protocol.ChangeTeamMsg{Team: other})
	if p.Team != other {
		t.Fatalf("expected team change honored during warmup, got %s", p.Team)
	}
	msgs := b.direct[p.ID]
	if len(msgs) == 0 {
		t.Fatal("expected assigned_team reply")
	}
	if _, ok := msgs[len(msgs)-1].(protocol.AssignedTeamMsg); !ok {
		t.Fatalf("expected AssignedTeamMsg, got %T", msgs[len(msgs)-1])
	}

	r.Phase = PhaseLive
	r.applyClientMessage(p.ID, &protocol.ChangeTeamMsg{Team: entity.TeamSpectator})
	if p.Team == entity.TeamSpectator {
		t.Fatal("expected team change refused during live play")
	}
}

func TestSelectWeaponRequiresOccupiedSlot(t *testing.T) {
	r, _ := newTestRoom(t)
	p := join(t, r, "p1", "Alice")

	r.applySelectWeapon(p, weapons.SlotPrimary)
	if p.CurrentWeapon == weapons.SlotPrimary {
		t.Fatal("expected empty slot selection refused")
	}

	r.applySelectWeapon(p, weapons.SlotMelee)
	if p.CurrentWeapon != weapons.SlotMelee {
		t.Fatal("expected melee selection honored")
	}
}
