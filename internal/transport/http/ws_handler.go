package http

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/game"
)

// WSHandler upgrades HTTP requests to websockets and hosts one hub per room.
// The hub is the room's broadcast primitive; each connection gets a buffered
// outbound queue drained by a dedicated writer goroutine so the room never
// blocks on a slow client.
type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu   sync.Mutex
	hubs map[string]*roomHub
}

func NewWSHandler(service *app.RoomService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:  log,
		hubs: make(map[string]*roomHub),
	}
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServeWS wires a websocket into its room. Query params: room (required) and
// role (optional, "admin" unlocks the administrative command set).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	role := game.RolePlayer
	if r.URL.Query().Get("role") == "admin" {
		role = game.RoleAdmin
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	hub := h.hub(roomID)
	room, err := h.service.Room(r.Context(), roomID, hub)
	if err != nil {
		_ = conn.WriteJSON(errorMessage{Type: "error", Message: err.Error()})
		h.dropHubIfIdle(roomID)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		role: role,
		send: make(chan any, 16),
	}
	hub.add(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Str("conn", c.id).Msg("ws write error")
				return
			}
		}
	}()

	room.HandleConnect(c)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		room.HandleMessage(data, c)
	}

	hub.remove(c)
	room.HandleClose(c.id)
	c.close()
	<-writerDone

	// The room holds the hub as its broadcaster, so the hub must outlive the
	// sockets: players are expected to drop and reconnect mid-game. It is only
	// dropped once the repository reclaims the room itself.
	if h.service.Release(roomID) {
		h.dropHubIfIdle(roomID)
	}
}

func (h *WSHandler) hub(roomID string) *roomHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	hub, ok := h.hubs[roomID]
	if !ok {
		hub = &roomHub{clients: make(map[string]*client)}
		h.hubs[roomID] = hub
	}
	return hub
}

// dropHubIfIdle removes the hub once its last socket is gone and reports
// whether it did. Callers invoke it only when no room references the hub
// anymore (resolve failed, or the room was just reclaimed).
func (h *WSHandler) dropHubIfIdle(roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	hub, ok := h.hubs[roomID]
	if !ok {
		return false
	}
	if hub.size() > 0 {
		return false
	}
	delete(h.hubs, roomID)
	return true
}

// roomHub fans a payload out to every connection in one room.
type roomHub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func (hub *roomHub) Broadcast(v any) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, c := range hub.clients {
		_ = c.Send(v)
	}
}

func (hub *roomHub) add(c *client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.clients[c.id] = c
}

func (hub *roomHub) remove(c *client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	delete(hub.clients, c.id)
}

func (hub *roomHub) size() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// client is one websocket connection as the room sees it.
type client struct {
	id   string
	role game.Role

	mu     sync.Mutex
	send   chan any
	closed bool
}

func (c *client) ID() string      { return c.id }
func (c *client) Role() game.Role { return c.role }

// Send enqueues without blocking; when the queue is full the oldest pending
// message is dropped, since a newer snapshot supersedes it anyway.
func (c *client) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	select {
	case c.send <- v:
	default:
		select {
		case <-c.send:
		default:
		}
		c.send <- v
	}
	return nil
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
