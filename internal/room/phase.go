package room

import (
	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/protocol"
)

// updatePhase advances the phase state machine (spec.md §4.5):
//
//	warmup (WARMUP_TIME) -> startRound
//	freeze (15s competitive, 5s deathmatch) -> live
//	live (ROUND_TIME, or earlier via checkRoundEnd) -> round_end(winner)
//	round_end (ROUND_END_DELAY): score >= roundsToWin -> match_end; else -> startRound
func (r *Room) updatePhase(nowMs float64) {
	elapsed := nowMs - r.PhaseStartedAt

	switch r.Phase {
	case PhaseWarmup:
		if elapsed >= WarmupTimeMs {
			r.startRound(nowMs)
		}

	case PhaseFreeze:
		if elapsed >= r.freezeDurationMs() {
			r.setPhase(PhaseLive, nowMs)
		}

	case PhaseLive:
		if winner, ok := r.checkRoundEnd(); ok {
			r.endRound(winner, nowMs)
			return
		}
		if elapsed >= RoundTimeMs {
			r.endRound(r.getTimeoutWinner(), nowMs)
		}

	case PhaseRoundEnd:
		if elapsed >= RoundEndDelayMs {
			if r.TScore >= r.roundsToWin() || r.CTScore >= r.roundsToWin() {
				r.setPhase(PhaseMatchEnd, nowMs)
			} else {
				r.startRound(nowMs)
			}
		}
	}
}

func (r *Room) roundsToWin() int {
	if r.Config.RoundsToWin > 0 {
		return r.Config.RoundsToWin
	}
	if r.Config.Competitive {
		return RoundsToWinComp
	}
	return RoundsToWinDM
}

func (r *Room) freezeDurationMs() float64 {
	if r.Config.Competitive {
		return FreezeTimeCompMs
	}
	return FreezeTimeDMMs
}

func (r *Room) setPhase(p Phase, nowMs float64) {
	r.Phase = p
	r.PhaseStartedAt = nowMs
	if r.broadcaster != nil {
		r.broadcaster.BroadcastToRoom(r.ID, protocol.PhaseChangeMsg{
			Phase:        string(p),
			RoundNumber:  r.RoundNumber,
			RemainingSec: r.phaseRemainingSec(p, nowMs),
		})
	}
}

func (r *Room) phaseRemainingSec(p Phase, nowMs float64) float64 {
	switch p {
	case PhaseFreeze:
		return r.freezeDurationMs() / 1000
	case PhaseLive:
		return RoundTimeMs / 1000
	case PhaseRoundEnd:
		return RoundEndDelayMs / 1000
	default:
		return 0
	}
}

// checkRoundEnd counts alive entities per team; if one side has zero alive
// and the other has at least one, the other side wins; if both have zero,
// CT wins.
func (r *Room) checkRoundEnd() (entity.Team, bool) {
	tAlive, ctAlive := r.aliveCounts()
	switch {
	case tAlive == 0 && ctAlive == 0:
		return entity.TeamCT, true // deterministic tiebreak
	case tAlive == 0:
		return entity.TeamCT, true
	case ctAlive == 0:
		return entity.TeamT, true
	default:
		return "", false
	}
}

// getTimeoutWinner resolves a round that hit ROUND_TIME without elimination:
// whichever side has more alive entities; a tie favors CT.
func (r *Room) getTimeoutWinner() entity.Team {
	tAlive, ctAlive := r.aliveCounts()
	if tAlive > ctAlive {
		return entity.TeamT
	}
	return entity.TeamCT
}

func (r *Room) aliveCounts() (tAlive, ctAlive int) {
	for _, p := range r.Players {
		if !p.Alive {
			continue
		}
		switch p.Team {
		case entity.TeamT:
			tAlive++
		case entity.TeamCT:
			ctAlive++
		}
	}
	for _, b := range r.Bots {
		if !b.Alive {
			continue
		}
		switch b.Team {
		case entity.TeamT:
			tAlive++
		case entity.TeamCT:
			ctAlive++
		}
	}
	return
}

// startRound clears dropped weapons and used spawns, respawns every
// entity, and begins the freeze phase for the new round.
func (r *Room) startRound(nowMs float64) {
	r.RoundNumber++
	r.usedSpawns = make(map[int]bool)
	r.DroppedWeapons = make(map[string]*entity.DroppedWeapon)

	for _, p := range r.Players {
		r.respawnEntity(p)
	}
	for _, b := range r.Bots {
		r.respawnEntity(&b.Player)
	}

	r.setPhase(PhaseFreeze, nowMs)
}

func (r *Room) respawnEntity(p *entity.Player) {
	p.Respawn()
	sp := r.pickSpawn(p.Team)
	p.Position = sp.Position
	p.Yaw = sp.Yaw
	if r.broadcaster != nil {
		r.broadcaster.BroadcastToRoom(r.ID, protocol.SpawnEventMsg{
			EntityID: p.ID,
			Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		})
	}
}

// endRound updates scores and awards economy money, then transitions to
// round_end.
func (r *Room) endRound(winner entity.Team, nowMs float64) {
	r.RoundWinner = winner
	if winner == entity.TeamT {
		r.TScore++
	} else {
		r.CTScore++
	}

	cfg := r.Config.Economy
	award := func(p *entity.Player) {
		won := p.Team == winner
		p.Money = cfg.ClampMoney(p.Money + cfg.RoundReward(won))
	}
	for _, p := range r.Players {
		award(p)
	}
	for _, b := range r.Bots {
		award(&b.Player)
	}

	r.setPhase(PhaseRoundEnd, nowMs)
}
