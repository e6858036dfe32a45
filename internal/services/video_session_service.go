package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/easecampusghana/extraclasses-live/internal/dtos"
	"github.com/easecampusghana/extraclasses-live/internal/models"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
	"github.com/easecampusghana/extraclasses-live/internal/utils"
)

// VideoSessionStore is the persistence surface the service needs.
// Satisfied by repositories.VideoSessionRepository.
type VideoSessionStore interface {
	Create(ctx context.Context, session *models.VideoSession) error
	GetByRoomCode(ctx context.Context, roomCode string) (*models.VideoSession, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.VideoSession, error)
	MarkJoined(ctx context.Context, sessionID uuid.UUID, role models.Role) error
	Activate(ctx context.Context, sessionID uuid.UUID) error
	End(ctx context.Context, sessionID uuid.UUID) error
}

// BookingStore reads the marketplace's side of the data.
type BookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// SignalingLog is the append-only message store.
type SignalingLog interface {
	Append(ctx context.Context, msg *models.SignalingMessage) error
	ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.SignalingMessage, error)
}

type VideoSessionService struct {
	sessions  VideoSessionStore
	bookings  BookingStore
	signals   SignalingLog
	hub       *signaling.Hub
	joinGrace time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewVideoSessionService(
	sessions VideoSessionStore,
	bookings BookingStore,
	signals SignalingLog,
	hub *signaling.Hub,
	joinGrace time.Duration,
	log zerolog.Logger,
) *VideoSessionService {
	return &VideoSessionService{
		sessions:  sessions,
		bookings:  bookings,
		signals:   signals,
		hub:       hub,
		joinGrace: joinGrace,
		log:       log.With().Str("component", "video_session_service").Logger(),
		now:       time.Now,
	}
}

// CreateForBooking creates the video session for a confirmed booking,
// generating its room code. Idempotent per booking: a session that already
// exists is returned as-is, the code is never regenerated.
func (s *VideoSessionService) CreateForBooking(ctx context.Context, bookingID uuid.UUID) (*models.VideoSession, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("booking %s is %s, want confirmed", bookingID, booking.Status)
	}

	if existing, err := s.sessions.GetByBookingID(ctx, bookingID); err == nil {
		return existing, nil
	} else if !errors.Is(err, models.ErrSessionNotFound) {
		return nil, err
	}

	// Redraw on the (unlikely) code collision rather than failing the booking.
	for attempt := 0; attempt < 3; attempt++ {
		session := &models.VideoSession{
			ID:        uuid.New(),
			RoomCode:  utils.NewRoomCode(),
			BookingID: booking.ID,
			TeacherID: booking.TeacherID,
			StudentID: booking.StudentID,
			Status:    models.VideoSessionStatusWaiting,
		}
		err := s.sessions.Create(ctx, session)
		if errors.Is(err, models.ErrRoomCodeCollided) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.Info().
			Str("session_id", session.ID.String()).
			Str("booking_id", bookingID.String()).
			Msg("video session created")
		return session, nil
	}
	return nil, models.ErrRoomCodeCollided
}

// LookupRoom resolves a room code for a participant: the session, the
// caller's role (derived from the session row, never trusted from the
// client), the booked window and the counterparty identity.
//
// Callers distinguish three outcomes: ErrSessionNotFound, an ended session
// (returned, not an error; a terminal steady state), and a
// joinable/waiting session.
func (s *VideoSessionService) LookupRoom(ctx context.Context, roomCode string, userID uuid.UUID) (*dtos.RoomLookupResponse, error) {
	session, err := s.sessions.GetByRoomCode(ctx, utils.NormalizeRoomCode(roomCode))
	if err != nil {
		return nil, err
	}

	role, ok := session.RoleOf(userID)
	if !ok {
		return nil, models.ErrNotParticipant
	}

	booking, err := s.bookings.GetByID(ctx, session.BookingID)
	if err != nil {
		return nil, err
	}

	otherName, err := s.bookings.DisplayName(ctx, s.counterpartyID(session, role))
	if err != nil {
		s.log.Warn().Err(err).Msg("counterparty name lookup failed")
		otherName = ""
	}

	resp := &dtos.RoomLookupResponse{
		SessionID:      session.ID,
		RoomCode:       session.RoomCode,
		BookingID:      session.BookingID,
		Status:         string(session.Status),
		Role:           string(role),
		Subject:        booking.Subject,
		StartTime:      booking.StartTime,
		EndTime:        booking.EndTime,
		StartedAt:      session.StartedAt,
		OtherPartyName: otherName,
	}

	if session.Status == models.VideoSessionStatusEnded {
		resp.CanJoin = false
		resp.Message = "This session has ended."
		return resp, nil
	}

	canJoin, msg := utils.ValidateJoinWindow(booking.StartTime, booking.EndTime, s.joinGrace, s.now())
	resp.CanJoin = canJoin
	resp.Message = msg

	// Joined covers a counterparty that confirmed ready and dropped off the
	// relay; live presence covers one still in its waiting room.
	resp.OtherPartyJoined = session.Joined(role.Other())
	if room := s.hub.GetRoom(session.ID); room != nil && room.Counterparty(role) != nil {
		resp.OtherPartyJoined = true
	}

	return resp, nil
}

// ResolveParticipant resolves a room code and verifies the caller is one of
// the session's two participants, returning the derived role.
func (s *VideoSessionService) ResolveParticipant(ctx context.Context, roomCode string, userID uuid.UUID) (*models.VideoSession, models.Role, error) {
	session, err := s.sessions.GetByRoomCode(ctx, utils.NormalizeRoomCode(roomCode))
	if err != nil {
		return nil, "", err
	}
	role, ok := session.RoleOf(userID)
	if !ok {
		return nil, "", models.ErrNotParticipant
	}
	return session, role, nil
}

// MarkReady handles the waiting-room "I'm ready" transition for one
// participant: sets the monotonic join flag and promotes the session to
// active. Both halves are idempotent, so a duplicate ready click or both
// participants racing the transition leaves started_at with its first value.
// Joining outside the booked window (plus grace) is rejected with
// ErrOutsideJoinGap; the lookup's CanJoin is advisory, this is the guard.
func (s *VideoSessionService) MarkReady(ctx context.Context, session *models.VideoSession, role models.Role) error {
	booking, err := s.bookings.GetByID(ctx, session.BookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}
	if ok, _ := utils.ValidateJoinWindow(booking.StartTime, booking.EndTime, s.joinGrace, s.now()); !ok {
		return models.ErrOutsideJoinGap
	}

	if err := s.sessions.MarkJoined(ctx, session.ID, role); err != nil {
		return fmt.Errorf("mark joined: %w", err)
	}
	if err := s.sessions.Activate(ctx, session.ID); err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	return nil
}

// EndSession marks the session ended. Idempotent; the first caller's
// timestamp wins. Terminal: there is no path back out of ended.
func (s *VideoSessionService) EndSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessions.End(ctx, sessionID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	s.log.Info().Str("session_id", sessionID.String()).Msg("video session ended")
	return nil
}

// AppendSignal persists one signaling message to the append-only log and
// stamps its id and created_at.
func (s *VideoSessionService) AppendSignal(ctx context.Context, env *signaling.Envelope) error {
	msg := &models.SignalingMessage{
		ID:             uuid.New(),
		VideoSessionID: env.SessionID,
		SenderID:       env.SenderID,
		MessageType:    env.Type,
		Payload:        env.Payload,
	}
	if err := s.signals.Append(ctx, msg); err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	env.ID = msg.ID
	env.CreatedAt = msg.CreatedAt
	return nil
}

// SignalHistory returns the bounded backfill for a session entry.
func (s *VideoSessionService) SignalHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.SignalingMessage, error) {
	return s.signals.ListRecent(ctx, sessionID, limit)
}

func (s *VideoSessionService) counterpartyID(session *models.VideoSession, role models.Role) uuid.UUID {
	if role == models.RoleTeacher {
		return session.StudentID
	}
	return session.TeacherID
}
