package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/easecampusghana/extraclasses-live/internal/dtos"
	"github.com/easecampusghana/extraclasses-live/internal/middlewares"
	"github.com/easecampusghana/extraclasses-live/internal/models"
	"github.com/easecampusghana/extraclasses-live/internal/services"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

// RoomHandler serves the session-directory endpoints: room creation for the
// booking system, room-code lookup, the ready/end phase transitions and the
// bounded signaling backfill.
type RoomHandler struct {
	svc          *services.VideoSessionService
	hub          *signaling.Hub
	historyLimit int
	log          zerolog.Logger
}

func NewRoomHandler(svc *services.VideoSessionService, hub *signaling.Hub, historyLimit int, log zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		svc:          svc,
		hub:          hub,
		historyLimit: historyLimit,
		log:          log.With().Str("component", "room_handler").Logger(),
	}
}

// CreateRoom creates the video session for a confirmed booking.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dtos.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	session, err := h.svc.CreateForBooking(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		h.log.Error().Err(err).Str("booking_id", req.BookingID).Msg("create room failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dtos.CreateRoomResponse{
		SessionID: session.ID,
		RoomCode:  session.RoomCode,
		Status:    string(session.Status),
	})
}

// LookupRoom resolves a room code for the authenticated participant. An
// ended session is a 200 with status "ended", a terminal steady state the
// client renders, not an error. Unknown codes are 404.
func (h *RoomHandler) LookupRoom(c *gin.Context) {
	userID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	resp, err := h.svc.LookupRoom(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// MarkReady is the waiting-room "join" transition: device check passed, the
// participant confirmed. Safe to call twice; started_at is set exactly once.
func (h *RoomHandler) MarkReady(c *gin.Context) {
	userID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	session, role, err := h.svc.ResolveParticipant(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	if session.Status == models.VideoSessionStatusEnded {
		c.JSON(http.StatusGone, gin.H{"error": "session already ended"})
		return
	}

	if err := h.svc.MarkReady(c.Request.Context(), session, role); err != nil {
		if errors.Is(err, models.ErrOutsideJoinGap) {
			c.JSON(http.StatusForbidden, gin.H{"error": "outside the session's join window"})
			return
		}
		h.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("mark ready failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// EndRoom is the in-call "end" transition. Idempotent; either participant
// may end the call for both.
func (h *RoomHandler) EndRoom(c *gin.Context) {
	userID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	session, _, err := h.svc.ResolveParticipant(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	if err := h.svc.EndSession(c.Request.Context(), session.ID); err != nil {
		h.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("end session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not end session"})
		return
	}

	// Anyone still on the relay hears the call is over, not just the
	// participant who pressed the button.
	if room := h.hub.GetRoom(session.ID); room != nil {
		room.Broadcast(signaling.Envelope{
			ID:        uuid.New(),
			SessionID: session.ID,
			SenderID:  userID,
			Type:      signaling.NotifyTypeCallEnded,
			Payload:   json.RawMessage(`{}`),
			CreatedAt: time.Now(),
		})
	}
	c.Status(http.StatusNoContent)
}

// SignalHistory returns the bounded backfill of signaling messages a client
// may read when it enters the room. Live traffic flows over the websocket.
func (h *RoomHandler) SignalHistory(c *gin.Context) {
	userID, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	session, _, err := h.svc.ResolveParticipant(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	messages, err := h.svc.SignalHistory(c.Request.Context(), session.ID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("signal history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load history"})
		return
	}

	resp := dtos.SignalHistoryResponse{Messages: make([]dtos.SignalMessage, 0, len(messages))}
	for _, msg := range messages {
		senderRole, _ := session.RoleOf(msg.SenderID)
		resp.Messages = append(resp.Messages, dtos.SignalMessage{
			ID:        msg.ID,
			SenderID:  msg.SenderID,
			Role:      string(senderRole),
			Type:      msg.MessageType,
			Payload:   json.RawMessage(msg.Payload),
			CreatedAt: msg.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RoomHandler) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, models.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this session"})
	default:
		h.log.Error().Err(err).Msg("room lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
