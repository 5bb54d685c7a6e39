package room

import (
	"fmt"
	"math"
	"math/rand"

	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/mathutil"
	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/weapons"
)

// applyClientMessage dispatches one drained input-queue message. Messages
// for a client that no longer has a player (disconnected mid-queue) are
// silently dropped; RuleViolation cases are also silent per spec.md §7 —
// the next snapshot is the client's correction signal.
func (r *Room) applyClientMessage(clientID string, msg protocol.ClientMessage) {
	p := r.Players[clientID]
	if p == nil {
		return // not a lobby-scope message and the player already left
	}

	switch m := msg.(type) {
	case *protocol.InputMsg:
		r.applyInput(p, m)
	case protocol.FireMsg:
		r.applyFire(p)
	case protocol.ReloadMsg:
		r.applyReload(p)
	case protocol.DropWeaponMsg:
		r.applyDropWeapon(p)
	case *protocol.BuyWeaponMsg:
		r.applyBuyWeapon(p, m.WeaponName)
	case *protocol.PickupWeaponMsg:
		r.applyPickupWeapon(p, m.WeaponID)
	case *protocol.SelectWeaponMsg:
		r.applySelectWeapon(p, m.Slot)
	case *protocol.ChatMsg:
		r.applyChat(p, m)
	case protocol.ReadyMsg:
		if r.broadcaster != nil {
			r.broadcaster.BroadcastToRoom(r.ID, protocol.PlayerReadyMsg{PlayerID: p.ID})
		}
	case protocol.StartGameMsg:
		// Short-circuits the warmup countdown; ignored once a match is live.
		if r.Phase == PhaseWarmup || r.Phase == PhasePreMatch {
			if r.broadcaster != nil {
				r.broadcaster.BroadcastToRoom(r.ID, protocol.GameStartingMsg{})
			}
			r.startRound(r.nowMs())
		}
	case *protocol.ChangeTeamMsg:
		if r.Phase == PhaseWarmup || r.Phase == PhasePreMatch {
			p.Team = m.Team
			if r.broadcaster != nil {
				r.broadcaster.SendToClient(p.ID, protocol.AssignedTeamMsg{Team: p.Team})
			}
		}
	}
}

// applyInput implements spec.md §4.5's input-application rule: yaw always
// updates; during freeze/round_end only the sequence is stored (position
// frozen); otherwise movement and jump apply, then an ack is sent with the
// authoritative position.
func (r *Room) applyInput(p *entity.Player, m *protocol.InputMsg) {
	if !p.Alive {
		p.LastInputSequence = m.Sequence
		return
	}

	p.Yaw = m.Input.Yaw
	p.Pitch = mathutil.Clamp(m.Input.Pitch, -math.Pi/2+PitchClampMargin, math.Pi/2-PitchClampMargin)

	if r.Phase != PhaseFreeze && r.Phase != PhaseRoundEnd {
		forward := mathutil.YawPitchToForward(p.Yaw, 0)
		right := mathutil.YawToRight(p.Yaw)
		move := forward.Scale(m.Input.Forward).Add(right.Scale(m.Input.Strafe))
		if move.LengthSq() > 0 {
			move = move.Normalize()
		}
		p.Position = p.Position.Add(move.Scale(PlayerMoveSpeed * r.tickInterval.Seconds()))

		if m.Input.Jump && p.OnGround {
			p.Velocity.Y = JumpVelocity
			p.OnGround = false
		}
	}

	p.LastInputSequence = m.Sequence

	if r.broadcaster != nil {
		r.broadcaster.SendToClient(p.ID, protocol.InputAckMsg{
			Sequence: m.Sequence,
			Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		})
	}
}

// applyFire gates on spec.md §4.5's fire rule and delegates hit resolution
// to resolveFire.
func (r *Room) applyFire(p *entity.Player) {
	if !p.Alive {
		return
	}
	w, ok := p.ActiveWeapon()
	if !ok {
		return
	}
	nowMs := r.nowMs()
	if !w.CanFire(nowMs) {
		return
	}

	w.CurrentAmmo--
	w.LastFireTime = nowMs
	p.SetActiveWeapon(w)

	def := weapons.Get(w.Type)
	aimDir := mathutil.YawPitchToForward(p.Yaw, p.Pitch)
	aimDir = applySpread(aimDir, def.SpreadDeg)

	origin := p.Position.Add(mathutil.Vec3{Y: entity.EyeHeight})

	if r.broadcaster != nil {
		r.broadcaster.BroadcastToRoom(r.ID, protocol.FireEventMsg{
			ShooterID: p.ID,
			Origin:    [3]float64{origin.X, origin.Y, origin.Z},
			Direction: [3]float64{aimDir.X, aimDir.Y, aimDir.Z},
			Weapon:    w.Type,
		})
	}

	r.resolveFire(p, origin, aimDir, w.Type, nowMs)
}

func applySpread(dir mathutil.Vec3, spreadDeg float64) mathutil.Vec3 {
	if spreadDeg <= 0 {
		return dir
	}
	rad := spreadDeg * math.Pi / 180
	yaw := math.Atan2(-dir.X, -dir.Z)
	pitch := math.Asin(mathutil.Clamp(dir.Y, -1, 1))
	yaw += (rand.Float64()*2 - 1) * rad
	pitch += (rand.Float64()*2 - 1) * rad
	return mathutil.YawPitchToForward(yaw, pitch)
}

func (r *Room) applyReload(p *entity.Player) {
	if !p.Alive {
		return
	}
	w, ok := p.ActiveWeapon()
	if !ok {
		return
	}
	if w.StartReload(r.nowMs()) {
		p.SetActiveWeapon(w)
	}
}

func (r *Room) applyDropWeapon(p *entity.Player) {
	if !p.Alive || p.CurrentWeapon == weapons.SlotMelee {
		return
	}
	w, ok := p.Weapons[p.CurrentWeapon]
	if !ok {
		return
	}
	delete(p.Weapons, p.CurrentWeapon)
	p.CurrentWeapon = weapons.SlotMelee

	r.nextDropID++
	id := fmt.Sprintf("drop-%d", r.nextDropID)
	dropped := &entity.DroppedWeapon{
		ID:          id,
		Type:        w.Type,
		Position:    p.Position,
		CurrentAmmo: w.CurrentAmmo,
		ReserveAmmo: w.ReserveAmmo,
		DroppedAt:   r.nowMs(),
	}
	r.DroppedWeapons[id] = dropped

	if r.broadcaster != nil {
		r.broadcaster.BroadcastToRoom(r.ID, protocol.WeaponDroppedMsg{
			WeaponID: id,
			Type:     w.Type,
			Position: [3]float64{dropped.Position.X, dropped.Position.Y, dropped.Position.Z},
		})
	}
}

func (r *Room) applyBuyWeapon(p *entity.Player, name weapons.Type) {
	if r.Phase != PhaseFreeze && r.Phase != PhaseWarmup {
		return
	}
	def := weapons.Get(name)
	if p.Money < def.Cost {
		return
	}
	p.Money -= def.Cost
	p.Weapons[def.Slot] = weapons.NewInstance(name)
	p.CurrentWeapon = def.Slot
}

func (r *Room) applyPickupWeapon(p *entity.Player, weaponID string) {
	if !p.Alive {
		return
	}
	dw, ok := r.DroppedWeapons[weaponID]
	if !ok {
		return
	}
	if p.Position.DistanceTo(dw.Position) > PickupRangeMeters {
		return
	}
	def := weapons.Get(dw.Type)
	p.Weapons[def.Slot] = weapons.Instance{Type: dw.Type, CurrentAmmo: dw.CurrentAmmo, ReserveAmmo: dw.ReserveAmmo}
	p.CurrentWeapon = def.Slot
	delete(r.DroppedWeapons, weaponID)

	if r.broadcaster != nil {
		r.broadcaster.BroadcastToRoom(r.ID, protocol.WeaponPickedUpMsg{WeaponID: weaponID, PlayerID: p.ID})
	}
}

func (r *Room) applySelectWeapon(p *entity.Player, slot weapons.Slot) {
	if _, ok := p.Weapons[slot]; ok {
		p.CurrentWeapon = slot
	}
}

func (r *Room) applyChat(p *entity.Player, m *protocol.ChatMsg) {
	if r.broadcaster == nil {
		return
	}
	if r.ChatLimiter != nil && !r.ChatLimiter.Allow(p.ID) {
		return // RuleViolation-equivalent: silently drop, spec.md §7
	}
	out := protocol.ChatReceivedMsg{PlayerID: p.ID, Message: m.Message, TeamOnly: m.TeamOnly}
	if !m.TeamOnly {
		r.broadcaster.BroadcastToRoom(r.ID, out)
		return
	}
	for _, other := range r.Players {
		if other.Team == p.Team {
			r.broadcaster.SendToClient(other.ID, out)
		}
	}
}
