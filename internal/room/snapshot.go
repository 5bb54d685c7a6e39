package room

import (
	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/weapons"
)

// buildSnapshot projects the room's authoritative state into the wire shape
// broadcast at BroadcastRate (spec.md §4.5): positions, health, scores, and
// dropped weapons, with no AI or input-queue internals leaking out.
func (r *Room) buildSnapshot() protocol.Snapshot {
	nowMs := r.nowMs()

	entities := make([]protocol.EntitySnapshot, 0, len(r.Players)+len(r.Bots))
	for _, p := range r.Players {
		entities = append(entities, entitySnapshotOf(p))
	}
	for _, b := range r.Bots {
		entities = append(entities, entitySnapshotOf(&b.Player))
	}

	dropped := make([]protocol.DroppedWeaponSnapshot, 0, len(r.DroppedWeapons))
	for _, dw := range r.DroppedWeapons {
		dropped = append(dropped, protocol.DroppedWeaponSnapshot{
			ID:       dw.ID,
			Type:     dw.Type,
			Position: [3]float64{dw.Position.X, dw.Position.Y, dw.Position.Z},
		})
	}

	elapsedSec := (nowMs - r.PhaseStartedAt) / 1000

	var roundTimeLeft, freezeTimeLeft float64
	switch r.Phase {
	case PhaseLive:
		roundTimeLeft = clampNonNegative(RoundTimeMs/1000 - elapsedSec)
	case PhaseFreeze:
		freezeTimeLeft = clampNonNegative(r.freezeDurationMs()/1000 - elapsedSec)
	}

	return protocol.Snapshot{
		Tick:           r.Tick,
		TimestampMs:    nowMs,
		Phase:          string(r.Phase),
		RoundNumber:    r.RoundNumber,
		RoundTimeLeft:  roundTimeLeft,
		FreezeTimeLeft: freezeTimeLeft,
		Entities:       entities,
		DroppedWeapons: dropped,
		TScore:         r.TScore,
		CTScore:        r.CTScore,
	}
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func entitySnapshotOf(p *entity.Player) protocol.EntitySnapshot {
	weaponType := weapons.Knife
	if w, ok := p.ActiveWeapon(); ok {
		weaponType = w.Type
	}
	return protocol.EntitySnapshot{
		ID:            p.ID,
		Name:          p.Name,
		Position:      [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Yaw:           p.Yaw,
		Pitch:         p.Pitch,
		Health:        p.Health,
		Armor:         p.Armor,
		Team:          string(p.Team),
		Alive:         p.Alive,
		CurrentWeapon: weaponType,
		Money:         p.Money,
		Kills:         p.Kills,
		Deaths:        p.Deaths,
	}
}
