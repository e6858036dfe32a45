// Package call is the client core of a video session: the signaling channel
// adapter, the call phase state machine, the Pion-backed peer connection
// manager and the shell controller that wires them together.
//
// The package talks to the rest of the platform only through small injected
// ports (Channel, Directory, SessionStore) so every piece is testable
// without a server, a camera or a network.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

var (
	ErrChannelClosed     = errors.New("signaling channel closed")
	ErrAlreadySubscribed = errors.New("channel already has a subscriber")
)

// Channel is the client's view of the signaling relay: typed envelopes in,
// typed envelopes out. Delivery is asynchronous, best-effort and new-only:
// a subscription never replays messages consumed before it existed. Callers
// wanting history issue a bounded read through the directory API instead.
type Channel interface {
	// Send publishes one message to the session's counterparty.
	Send(ctx context.Context, msgType string, payload any) error
	// Subscribe returns a stream of newly arriving envelopes and a cancel
	// function. It returns an error, never a silent dead stream, when the
	// channel cannot deliver.
	Subscribe(ctx context.Context) (<-chan signaling.Envelope, func(), error)
}

// ---- websocket-backed channel ----

// WSChannel is the production Channel: a single websocket to the relay.
type WSChannel struct {
	conn *websocket.Conn

	mu         sync.Mutex
	subscribed bool
	closed     bool
}

// DialChannel connects to the relay for one room. Connectivity problems
// surface here as an error; there is no silent retry.
func DialChannel(ctx context.Context, baseURL, roomCode, token string) (*WSChannel, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/ws/rooms"
	q := u.Query()
	q.Set("room_code", roomCode)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &WSChannel{conn: conn}, nil
}

type outgoingMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *WSChannel) Send(ctx context.Context, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	return c.conn.WriteJSON(outgoingMessage{Type: msgType, Payload: raw})
}

// Subscribe starts the single read loop. The relay already serializes
// per-sender delivery; keeping one reader preserves that order end to end.
func (c *WSChannel) Subscribe(ctx context.Context) (<-chan signaling.Envelope, func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrChannelClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return nil, nil, ErrAlreadySubscribed
	}
	c.subscribed = true
	c.mu.Unlock()

	out := make(chan signaling.Envelope, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			var env signaling.Envelope
			if err := c.conn.ReadJSON(&env); err != nil {
				return
			}
			select {
			case out <- env:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			c.Close()
		})
	}
	return out, cancel, nil
}

// Close sends a best-effort leave and tears the socket down.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteJSON(outgoingMessage{Type: "leave", Payload: json.RawMessage(`{}`)})
	return c.conn.Close()
}

// ---- in-memory relay (tests, local loopback) ----

// MemoryRelay is an in-process stand-in for the hosted relay: every endpoint
// sees messages sent by the others, keyed by one session id.
type MemoryRelay struct {
	sessionID uuid.UUID

	mu        sync.Mutex
	endpoints []*memoryEndpoint
}

func NewMemoryRelay(sessionID uuid.UUID) *MemoryRelay {
	return &MemoryRelay{sessionID: sessionID}
}

// Endpoint creates one participant's Channel.
func (r *MemoryRelay) Endpoint(senderID uuid.UUID) Channel {
	ep := &memoryEndpoint{relay: r, senderID: senderID}
	r.mu.Lock()
	r.endpoints = append(r.endpoints, ep)
	r.mu.Unlock()
	return ep
}

func (r *MemoryRelay) publish(env signaling.Envelope) {
	r.mu.Lock()
	endpoints := make([]*memoryEndpoint, len(r.endpoints))
	copy(endpoints, r.endpoints)
	r.mu.Unlock()

	for _, ep := range endpoints {
		if ep.senderID == env.SenderID {
			continue
		}
		ep.deliver(env)
	}
}

type memoryEndpoint struct {
	relay    *MemoryRelay
	senderID uuid.UUID

	mu  sync.Mutex
	sub chan signaling.Envelope
}

func (ep *memoryEndpoint) Send(ctx context.Context, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ep.relay.publish(signaling.Envelope{
		ID:        uuid.New(),
		SessionID: ep.relay.sessionID,
		SenderID:  ep.senderID,
		Type:      msgType,
		Payload:   raw,
		CreatedAt: time.Now(),
	})
	return nil
}

func (ep *memoryEndpoint) Subscribe(ctx context.Context) (<-chan signaling.Envelope, func(), error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.sub != nil {
		return nil, nil, ErrAlreadySubscribed
	}
	ch := make(chan signaling.Envelope, 256)
	ep.sub = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ep.mu.Lock()
			ep.sub = nil
			close(ch)
			ep.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (ep *memoryEndpoint) deliver(env signaling.Envelope) {
	// Send under the lock so cancel can't close the channel mid-delivery.
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.sub == nil {
		return
	}
	select {
	case ep.sub <- env:
	default:
		// Subscriber wedged; the relay is best-effort.
	}
}
