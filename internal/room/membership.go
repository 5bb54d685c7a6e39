package room

import (
	"fmt"

	"ctf-arena-server/internal/entity"
)

// Join/Leave/AddBot/PlayerCount/Summary are the Room entry points called from
// RoomManager's goroutine (besides Enqueue, which takes only inputMu) rather
// than the room's own tick goroutine; they take stateMu (declared on Room) while every tick-loop method runs
// single-threaded and needs no lock (spec.md §5).

// ErrRoomFull is returned by Join when the room is already at MaxPlayers.
type ErrRoomFull struct{ RoomID string }

func (e *ErrRoomFull) Error() string { return fmt.Sprintf("room %s is full", e.RoomID) }

// Join admits a new connected client as a living player, balancing onto the
// smaller of T/CT (T on a tie). The player starts
// mid-round with default inventory; it is respawned at the next round start
// like everyone else.
func (r *Room) Join(clientID, name string) (*entity.Player, error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if r.Config.MaxPlayers > 0 && len(r.Players)+len(r.Bots) >= r.Config.MaxPlayers {
		return nil, &ErrRoomFull{RoomID: r.ID}
	}

	team := r.balancedTeam()
	p := entity.NewPlayer(clientID, name, team)
	p.Money = r.Config.Economy.StartingMoney
	sp := r.pickSpawn(team)
	p.Position = sp.Position
	p.Yaw = sp.Yaw
	r.Players[clientID] = p
	return p, nil
}

// Leave removes a player (human disconnect). It is a no-op for an unknown
// clientID, matching the idempotent teardown the RoomManager relies on when
// a client disconnects mid-message-processing.
func (r *Room) Leave(clientID string) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	delete(r.Players, clientID)
}

// AddBot inserts a bot under its own synthetic id, used by create_room's
// fill-with-bots option and by tests.
func (r *Room) AddBot(id, name string, team entity.Team, difficulty entity.Difficulty) *entity.Bot {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	b := entity.NewBot(id, name, team, difficulty)
	b.Money = r.Config.Economy.StartingMoney
	sp := r.pickSpawn(team)
	b.Position = sp.Position
	b.Yaw = sp.Yaw
	r.Bots[id] = b
	return b
}

// PlayerCount returns the number of connected human players (not bots),
// used by the manager's room_list summary and empty-room eviction timer.
func (r *Room) PlayerCount() int {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return len(r.Players)
}

// Summary is a point-in-time, lock-safe read of the fields RoomManager's
// list_rooms response needs; Phase and the entity maps are otherwise only
// safe to read from the tick goroutine.
type Summary struct {
	ID          string
	PlayerCount int
	MaxPlayers  int
	Phase       string
}

func (r *Room) Summary() Summary {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return Summary{
		ID:          r.ID,
		PlayerCount: len(r.Players),
		MaxPlayers:  r.Config.MaxPlayers,
		Phase:       string(r.Phase),
	}
}

// balancedTeam assigns a new joiner to whichever of T/CT has fewer members,
// favoring T on a tie (arbitrary but deterministic).
func (r *Room) balancedTeam() entity.Team {
	var t, ct int
	for _, p := range r.Players {
		switch p.Team {
		case entity.TeamT:
			t++
		case entity.TeamCT:
			ct++
		}
	}
	for _, b := range r.Bots {
		switch b.Team {
		case entity.TeamT:
			t++
		case entity.TeamCT:
			ct++
		}
	}
	if ct < t {
		return entity.TeamCT
	}
	return entity.TeamT
}
