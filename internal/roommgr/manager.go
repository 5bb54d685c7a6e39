// Package roommgr implements RoomManager: the lobby-scope message handler
// that creates rooms, routes a connected client into and out of them, and
// forwards in-room messages to the owning Room's input queue (spec.md §4.6).
//
// Grounded on the pack's FenixDeveloper-vector-racer-v2 room lifecycle
// (AddPlayer/RemovePlayer with explicit capacity errors) generalized from a
// single room to a manager over many concurrent rooms, and on the teacher's
// cmd/server/main.go shutdown sequencing for StopAll.
package roommgr

import (
	"fmt"
	"log"
	"sync"
	"time"

	"ctf-arena-server/internal/chat"
	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/mapdata"
	"ctf-arena-server/internal/metrics"
	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/room"
)

// EmptyRoomGrace is how long a room with zero connected players is kept
// alive before the manager tears it down (spec.md §4.6).
const EmptyRoomGrace = 30 * time.Second

// sweepInterval is how often the manager checks for empty rooms to evict.
const sweepInterval = 5 * time.Second

// Config bounds the manager's resource usage (spec.md §4.6: "Hard cap:
// maxRooms, maxPlayersPerRoom").
type Config struct {
	MaxRooms          int
	MaxPlayersPerRoom int
}

type managedRoom struct {
	room      *room.Room
	emptyFrom time.Time // zero value means "not currently empty"
}

// Manager owns every live room and the client->room routing table. A single
// Manager instance serves the whole process; cmd/server constructs one at
// startup and internal/api's hub calls HandleMessage for every decoded
// client frame.
type Manager struct {
	cfg         Config
	broadcaster room.Broadcaster
	chatLimiter *chat.Limiter

	mu          sync.Mutex
	rooms       map[string]*managedRoom
	clientRoom  map[string]string
	nextRoomNum int

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Manager bounded by cfg. SetBroadcaster must be called
// before any client traffic arrives; Start begins the empty-room sweep.
func New(cfg Config) *Manager {
	if cfg.MaxRooms <= 0 {
		cfg.MaxRooms = 100
	}
	if cfg.MaxPlayersPerRoom <= 0 {
		cfg.MaxPlayersPerRoom = 10
	}
	return &Manager{
		cfg:         cfg,
		chatLimiter: chat.NewLimiter(chat.DefaultConfig),
		rooms:       make(map[string]*managedRoom),
		clientRoom:  make(map[string]string),
		stop:        make(chan struct{}),
	}
}

// SetBroadcaster wires the transport-layer sender every room broadcasts
// through and the manager uses for direct lobby replies.
func (m *Manager) SetBroadcaster(b room.Broadcaster) {
	m.broadcaster = b
}

// Start launches the background goroutine that evicts rooms empty for
// longer than EmptyRoomGrace.
func (m *Manager) Start() {
	go m.sweepLoop()
}

// StopAll halts the eviction sweep and every live room's tick loop, in
// preparation for process shutdown (spec.md §5: "Server shutdown signals
// all rooms to stop").
func (m *Manager) StopAll() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mr := range m.rooms {
		mr.room.Stop()
	}
	m.chatLimiter.Stop()
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictEmptyRooms()
		}
	}
}

func (m *Manager) evictEmptyRooms() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	totalPlayers := 0
	for id, mr := range m.rooms {
		count := mr.room.PlayerCount()
		totalPlayers += count
		if count > 0 {
			mr.emptyFrom = time.Time{}
			continue
		}
		if mr.emptyFrom.IsZero() {
			mr.emptyFrom = now
			continue
		}
		if now.Sub(mr.emptyFrom) >= EmptyRoomGrace {
			mr.room.Stop()
			delete(m.rooms, id)
			log.Printf("roommgr: evicted empty room %s", id)
		}
	}
	metrics.SetRoomCount(len(m.rooms))
	metrics.SetPlayerCount(totalPlayers)
}

// mapFor resolves a RoomConfigRequest's map name to a built-in test map;
// this is the seam spec.md §1 names ("the core consumes a pre-built
// triangle mesh and spawn list") until an external map pipeline is wired.
func mapFor(name string) *mapdata.Map {
	switch name {
	case "stepped":
		return mapdata.SteppedTestArena()
	default:
		return mapdata.FlatTestArena()
	}
}

// newRoom allocates and registers a room from req, starting its tick loop if
// a broadcaster is already wired. Returns an error once the manager is at
// its room-count ceiling.
func (m *Manager) newRoom(req protocol.RoomConfigRequest) (*room.Room, error) {
	m.mu.Lock()
	if len(m.rooms) >= m.cfg.MaxRooms {
		m.mu.Unlock()
		return nil, fmt.Errorf("roommgr: server is at max room capacity")
	}

	m.nextRoomNum++
	id := fmt.Sprintf("room-%d", m.nextRoomNum)

	cfg := room.DefaultConfig()
	cfg.Competitive = req.Competitive
	if req.TickRate > 0 {
		cfg.TickRate = req.TickRate
	}
	if req.BroadcastRate > 0 {
		cfg.BroadcastRate = req.BroadcastRate
	}
	if req.MaxPlayers > 0 {
		cfg.MaxPlayers = req.MaxPlayers
	}
	if cfg.MaxPlayers > m.cfg.MaxPlayersPerRoom {
		cfg.MaxPlayers = m.cfg.MaxPlayersPerRoom
	}
	cfg.Password = req.Password
	cfg.FriendlyFire = req.FriendlyFire

	r := room.NewRoom(id, cfg, mapFor(req.MapName))
	r.ChatLimiter = m.chatLimiter
	m.rooms[id] = &managedRoom{room: r}
	m.mu.Unlock()

	if m.broadcaster != nil {
		r.Start(m.broadcaster)
	}
	return r, nil
}

// CreateRoom handles create_room: builds a new Room from the requested
// config and immediately joins the requester, matching the only
// server->client acks the protocol defines (room_joined / room_error).
func (m *Manager) CreateRoom(clientID, playerName string, req protocol.RoomConfigRequest) {
	r, err := m.newRoom(req)
	if err != nil {
		m.sendError(clientID, err.Error())
		return
	}
	m.joinExisting(r, clientID, playerName, req.Password)
}

// CreateEmptyRoom handles POST /api/rooms: builds a room from req without
// joining anyone, for callers outside the WebSocket session flow (e.g. a
// matchmaker or admin tool provisioning a room ahead of time).
func (m *Manager) CreateEmptyRoom(req protocol.RoomConfigRequest) (protocol.RoomSummary, error) {
	r, err := m.newRoom(req)
	if err != nil {
		return protocol.RoomSummary{}, err
	}
	s := r.Summary()
	return protocol.RoomSummary{ID: s.ID, PlayerCount: s.PlayerCount, MaxPlayers: s.MaxPlayers, Phase: s.Phase}, nil
}

// JoinRoom handles join_room: looks up the room, checks its password, and
// admits the client as a living player.
func (m *Manager) JoinRoom(clientID, roomID, playerName, password string) {
	m.mu.Lock()
	mr, ok := m.rooms[roomID]
	m.mu.Unlock()
	if !ok {
		m.sendError(clientID, "room not found")
		return
	}
	m.joinExisting(mr.room, clientID, playerName, password)
}

func (m *Manager) joinExisting(r *room.Room, clientID, playerName, password string) {
	if r.Config.Password != "" && password != r.Config.Password {
		m.sendError(clientID, "wrong password")
		return
	}

	p, err := r.Join(clientID, playerName)
	if err != nil {
		m.sendError(clientID, err.Error())
		return
	}

	m.mu.Lock()
	if prev, had := m.clientRoom[clientID]; had && prev != r.ID {
		m.leaveRoomLocked(clientID, prev)
	}
	m.clientRoom[clientID] = r.ID
	m.mu.Unlock()

	if m.broadcaster == nil {
		return
	}
	m.broadcaster.SendToClient(clientID, protocol.RoomJoinedMsg{RoomID: r.ID, PlayerID: p.ID, Team: p.Team})
	m.broadcaster.SendToClient(clientID, protocol.AssignedTeamMsg{Team: p.Team})
	m.broadcaster.BroadcastToRoom(r.ID, protocol.PlayerJoinedMsg{PlayerID: p.ID, Name: p.Name, Team: p.Team})
}

// LeaveRoom handles leave_room for the currently connected client.
func (m *Manager) LeaveRoom(clientID string) {
	m.mu.Lock()
	roomID, ok := m.clientRoom[clientID]
	if ok {
		m.leaveRoomLocked(clientID, roomID)
	}
	m.mu.Unlock()
}

// leaveRoomLocked must be called with mu held.
func (m *Manager) leaveRoomLocked(clientID, roomID string) {
	delete(m.clientRoom, clientID)
	m.chatLimiter.Forget(clientID)
	mr, ok := m.rooms[roomID]
	if !ok {
		return
	}
	mr.room.Leave(clientID)
	if m.broadcaster != nil {
		m.broadcaster.BroadcastToRoom(roomID, protocol.PlayerLeftMsg{PlayerID: clientID})
	}
}

// HandleDisconnect removes clientID from whatever room it occupied; called
// by the transport layer when a connection drops (spec.md §4.6).
func (m *Manager) HandleDisconnect(clientID string) {
	m.LeaveRoom(clientID)
}

// ClientsInRoom returns every connected client id currently routed to
// roomID, used by internal/api's hub to fan a BroadcastToRoom call out to
// the right set of WebSocket connections.
func (m *Manager) ClientsInRoom(roomID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for clientID, rid := range m.clientRoom {
		if rid == roomID {
			out = append(out, clientID)
		}
	}
	return out
}

// ListRooms handles list_rooms, returning a summary of every live room.
func (m *Manager) ListRooms() []protocol.RoomSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]protocol.RoomSummary, 0, len(m.rooms))
	for _, mr := range m.rooms {
		s := mr.room.Summary()
		out = append(out, protocol.RoomSummary{
			ID:          s.ID,
			PlayerCount: s.PlayerCount,
			MaxPlayers:  s.MaxPlayers,
			Phase:       s.Phase,
		})
	}
	return out
}

// HandleMessage dispatches one decoded client message: lobby-scope types are
// handled here directly; everything else is forwarded to the client's
// current room's input queue, or silently dropped if the client is not in a
// room (spec.md §7: unrouteable messages never crash the server).
func (m *Manager) HandleMessage(clientID string, msg protocol.ClientMessage) {
	switch mm := msg.(type) {
	case protocol.ListRoomsMsg:
		if m.broadcaster != nil {
			m.broadcaster.SendToClient(clientID, protocol.RoomListMsg{Rooms: m.ListRooms()})
		}
	case *protocol.CreateRoomMsg:
		m.CreateRoom(clientID, "player-"+clientID, mm.Config)
	case *protocol.JoinRoomMsg:
		m.JoinRoom(clientID, mm.RoomID, mm.PlayerName, mm.Password)
	case protocol.LeaveRoomMsg:
		m.LeaveRoom(clientID)
	default:
		m.forward(clientID, msg)
	}
}

func (m *Manager) forward(clientID string, msg protocol.ClientMessage) {
	m.mu.Lock()
	roomID, ok := m.clientRoom[clientID]
	var mr *managedRoom
	if ok {
		mr, ok = m.rooms[roomID]
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	mr.room.Enqueue(clientID, msg)
}

func (m *Manager) sendError(clientID, reason string) {
	if m.broadcaster != nil {
		m.broadcaster.SendToClient(clientID, protocol.RoomErrorMsg{Reason: reason})
	}
}

// AddBot exposes Room.AddBot through the manager for tests and local dev
// tooling that wants to populate a room without a connected client driving
// a join_room message.
func (m *Manager) AddBot(roomID, botID, name string, team entity.Team, difficulty entity.Difficulty) error {
	m.mu.Lock()
	mr, ok := m.rooms[roomID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("roommgr: room %s not found", roomID)
	}
	mr.room.AddBot(botID, name, team, difficulty)
	return nil
}
