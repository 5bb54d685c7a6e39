// Package api is the server harness: the chi HTTP router, the gorilla
// WebSocket hub that is every Room's transport-layer Broadcaster, and the
// Prometheus metrics/health endpoints. Generalized from the teacher's
// single-Engine internal/api (router.go, websocket.go, observability.go)
// to a RoomManager-backed lobby plus per-client WebSocket routing.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ctf-arena-server/internal/metrics"
	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/roommgr"

	"github.com/gorilla/websocket"
)

// MessageRouter is the subset of *roommgr.Manager the hub needs; kept as an
// interface so tests can swap in a stub without spinning up real rooms.
type MessageRouter interface {
	HandleMessage(clientID string, msg protocol.ClientMessage)
	HandleDisconnect(clientID string)
	ClientsInRoom(roomID string) []string
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 32 * 1024
	sendBufferSize = 64
)

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks every open WebSocket connection keyed by the client id assigned
// at connect time, and implements room.Broadcaster so every Room's tick
// loop can hand it outgoing messages without knowing anything about HTTP or
// WebSocket framing.
type Hub struct {
	router   MessageRouter
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[string]*wsClient
	nextID   atomic.Uint64
	origins  []string
}

// NewHub constructs a Hub routing decoded client messages through router.
// allowedOrigins mirrors the CORS origin list; a WebSocket upgrade is
// accepted when its Origin header is empty, starts with "http://localhost"
// or "http://127.0.0.1", or equals an entry, and is rejected otherwise.
func NewHub(router MessageRouter, allowedOrigins []string) *Hub {
	h := &Hub{
		router:  router,
		origins: allowedOrigins,
		clients: make(map[string]*wsClient),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients (CLI bots, tests) send no Origin header
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, allowed := range h.origins {
		if origin == allowed {
			return true
		}
	}
	log.Printf("api: rejected websocket connection from origin %q", origin)
	return false
}

// SendToClient implements room.Broadcaster.
func (h *Hub) SendToClient(clientID string, msg protocol.ServerMessage) {
	data, err := protocol.EncodeServer(msg)
	if err != nil {
		log.Printf("api: encode error for %s: %v", clientID, err)
		return
	}
	h.send(clientID, data)
}

// BroadcastToRoom implements room.Broadcaster.
func (h *Hub) BroadcastToRoom(roomID string, msg protocol.ServerMessage) {
	data, err := protocol.EncodeServer(msg)
	if err != nil {
		log.Printf("api: encode error for room %s: %v", roomID, err)
		return
	}
	for _, clientID := range h.router.ClientsInRoom(roomID) {
		h.send(clientID, data)
	}
}

func (h *Hub) send(clientID string, data []byte) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- data:
		metrics.IncWSMessages()
	default:
		log.Printf("api: dropping message to %s, send buffer full", clientID)
	}
}

// ServeWS upgrades the request, assigns the connection a fresh client id,
// and starts its read/write pumps. Every message off the read pump is
// decoded and handed to h.router; a malformed frame is dropped per spec.md
// §7 (ProtocolError: drop, never crash the room).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: ws upgrade error: %v", err)
		return
	}

	id := fmt.Sprintf("%s-%d", time.Now().UTC().Format("20060102T150405"), h.nextID.Add(1))
	c := &wsClient{id: id, conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	metrics.SetWSConnections(h.count())

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		metrics.SetWSConnections(h.count())
		h.router.HandleDisconnect(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeClient(raw)
		if err != nil {
			continue // ProtocolError: dropped, never propagated (spec.md §7)
		}
		h.router.HandleMessage(c.id, msg)
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// roomListJSON is the plain-HTTP equivalent of the list_rooms/room_list
// WebSocket round trip, used by GET /api/rooms.
func roomListJSON(mgr *roommgr.Manager) ([]byte, error) {
	return json.Marshal(mgr.ListRooms())
}
