package signaling

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/easecampusghana/extraclasses-live/internal/models"
)

// Client is one connected participant of a room.
type Client struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	UserID    uuid.UUID
	Role      models.Role
	Name      string

	Conn *websocket.Conn
	Send chan Envelope
	Done chan struct{}

	closeOnce sync.Once
}

// Close shuts the client down. Safe to call more than once; the read and
// write pumps both reach for it during teardown.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Room holds the at-most-two participants of one video session.
type Room struct {
	SessionID uuid.UUID

	mu      sync.RWMutex
	teacher *Client
	student *Client
}

// Hub tracks the rooms with at least one live websocket. Keyed by video
// session id; the persisted signaling log is handled elsewhere.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]*Room),
		log:   log.With().Str("component", "signaling_hub").Logger(),
	}
}

// AddClient registers a client with its session's room, creating the room if
// needed. A duplicate connection for the same role evicts the old one so a
// reconnecting tab doesn't leave a zombie socket holding the slot.
func (h *Hub) AddClient(client *Client) *Room {
	h.mu.Lock()
	room, ok := h.rooms[client.SessionID]
	if !ok {
		room = &Room{SessionID: client.SessionID}
		h.rooms[client.SessionID] = room
	}
	h.mu.Unlock()

	room.mu.Lock()
	var evicted *Client
	if client.Role == models.RoleTeacher {
		if room.teacher != nil && room.teacher.ID != client.ID {
			evicted = room.teacher
		}
		room.teacher = client
	} else {
		if room.student != nil && room.student.ID != client.ID {
			evicted = room.student
		}
		room.student = client
	}
	room.mu.Unlock()

	if evicted != nil {
		h.log.Warn().
			Str("session_id", client.SessionID.String()).
			Str("role", string(client.Role)).
			Msg("evicting duplicate connection")
		evicted.Close()
	}

	return room
}

// RemoveClient drops a client from its room, deleting the room once empty.
// Only removes the exact client passed in; a newer connection that already
// took the slot is left alone.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.SessionID]
	if !ok {
		return
	}

	room.mu.Lock()
	if room.teacher == client {
		room.teacher = nil
	}
	if room.student == client {
		room.student = nil
	}
	empty := room.teacher == nil && room.student == nil
	room.mu.Unlock()

	if empty {
		delete(h.rooms, client.SessionID)
	}
}

// GetRoom returns the room for a session id, or nil.
func (h *Hub) GetRoom(sessionID uuid.UUID) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[sessionID]
}

// BothPresent reports whether teacher and student are both connected.
func (r *Room) BothPresent() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teacher != nil && r.student != nil
}

// Counterparty returns the other side's client, if connected.
func (r *Room) Counterparty(role models.Role) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role == models.RoleTeacher {
		return r.student
	}
	return r.teacher
}

// Forward delivers an envelope to the counterparty of its sender role.
// Returns ErrClientNotFound when the other side is not connected; the
// append-only log still has the message for a later backfill.
func (r *Room) Forward(senderRole models.Role, env Envelope) error {
	target := r.Counterparty(senderRole)
	if target == nil {
		return ErrClientNotFound
	}
	return target.Deliver(env)
}

// Broadcast sends an envelope to every connected participant.
func (r *Room) Broadcast(env Envelope) {
	r.mu.RLock()
	teacher, student := r.teacher, r.student
	r.mu.RUnlock()

	if teacher != nil {
		_ = teacher.Deliver(env)
	}
	if student != nil {
		_ = student.Deliver(env)
	}
}

// Deliver queues an envelope on the client's send buffer without blocking
// the caller. A full buffer means the write pump is wedged; dropping is the
// lesser evil since negotiation retries flow through the persisted log.
func (c *Client) Deliver(env Envelope) error {
	select {
	case c.Send <- env:
		return nil
	case <-c.Done:
		return ErrClientNotFound
	default:
		return ErrSendBufferFull
	}
}
