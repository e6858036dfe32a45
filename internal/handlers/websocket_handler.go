package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/easecampusghana/extraclasses-live/internal/middlewares"
	"github.com/easecampusghana/extraclasses-live/internal/services"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler is the hosted side of the signaling channel: it upgrades
// authenticated connections, appends every relayed message to the signaling
// log and forwards it to the counterparty.
type WebSocketHandler struct {
	svc      *services.VideoSessionService
	hub      *signaling.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWebSocketHandler(svc *services.VideoSessionService, hub *signaling.Hub, allowedOrigins []string, log zerolog.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WebSocketHandler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowed[r.Header.Get("Origin")]
			},
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

// incomingMessage is what a client writes on the socket. The relay stamps
// identity server-side; a client cannot spoof sender or session.
type incomingMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandleWebSocket upgrades the connection and starts the pumps.
// Must run behind WebSocketAuthMiddleware.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	auth, err := middlewares.GetWebSocketAuth(c)
	if err != nil {
		h.log.Error().Err(err).Msg("missing websocket auth context")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &signaling.Client{
		ID:        uuid.New(),
		SessionID: auth.Session.ID,
		UserID:    auth.UserID,
		Role:      auth.Role,
		Name:      auth.UserName,
		Conn:      conn,
		Send:      make(chan signaling.Envelope, 256),
		Done:      make(chan struct{}),
	}

	room := h.hub.AddClient(client)
	h.log.Info().
		Str("session_id", client.SessionID.String()).
		Str("role", string(client.Role)).
		Msg("participant connected")

	h.announcePresence(room, client, signaling.NotifyTypePeerJoined)

	go h.readPump(client, room)
	go h.writePump(client)
}

// announcePresence tells the counterparty someone arrived or left. Presence
// is relay-originated and ephemeral, never written to the signaling log.
func (h *WebSocketHandler) announcePresence(room *signaling.Room, client *signaling.Client, notifyType string) {
	payload, _ := json.Marshal(signaling.PeerPresencePayload{
		Role: string(client.Role),
		Name: client.Name,
	})
	_ = room.Forward(client.Role, signaling.Envelope{
		ID:        uuid.New(),
		SessionID: client.SessionID,
		SenderID:  client.UserID,
		Type:      notifyType,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
}

// readPump reads client messages, persists them and forwards to the other
// participant. One goroutine per connection; per-sender arrival order is
// preserved because this loop is the only reader.
func (h *WebSocketHandler) readPump(client *signaling.Client, room *signaling.Room) {
	defer func() {
		h.hub.RemoveClient(client)
		h.announcePresence(room, client, signaling.NotifyTypePeerLeft)
		client.Close()
		h.log.Info().
			Str("session_id", client.SessionID.String()).
			Str("role", string(client.Role)).
			Msg("participant disconnected")
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg incomingMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		if signaling.IsControl(msg.Type) {
			if h.handleControl(client, msg.Type) {
				return
			}
			continue
		}

		if msg.Type == "" {
			continue
		}

		env := signaling.Envelope{
			SessionID: client.SessionID,
			SenderID:  client.UserID,
			Type:      msg.Type,
			Payload:   msg.Payload,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := h.svc.AppendSignal(ctx, &env)
		cancel()
		if err != nil {
			// The relay is best-effort: a log write failure must not drop
			// the live message, it only loses the backfill copy.
			h.log.Error().Err(err).Str("type", msg.Type).Msg("signal persist failed")
			env.ID = uuid.New()
			env.CreatedAt = time.Now()
		}

		if err := room.Forward(client.Role, env); err != nil {
			// Counterparty not connected yet; the message waits in the log.
			h.log.Debug().
				Str("type", msg.Type).
				Str("session_id", client.SessionID.String()).
				Msg("no counterparty connected, message logged only")
		}
	}
}

// handleControl services relay-directed messages. Returns true when the
// connection should close.
func (h *WebSocketHandler) handleControl(client *signaling.Client, msgType string) bool {
	switch msgType {
	case "leave":
		return true
	case "ping":
		_ = client.Deliver(signaling.Envelope{
			ID:        uuid.New(),
			SessionID: client.SessionID,
			Type:      "pong",
			Payload:   json.RawMessage(`{}`),
			CreatedAt: time.Now(),
		})
	}
	return false
}

// writePump drains the send buffer onto the socket and keeps the connection
// alive with pings.
func (h *WebSocketHandler) writePump(client *signaling.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case env, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(env); err != nil {
				h.log.Warn().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done:
			return
		}
	}
}
