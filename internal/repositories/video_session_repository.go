package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/easecampusghana/extraclasses-live/internal/models"
)

type VideoSessionRepository struct {
	db *sql.DB
}

func NewVideoSessionRepository(db *sql.DB) *VideoSessionRepository {
	return &VideoSessionRepository{db: db}
}

// Create inserts a new waiting session. The room code is immutable from here
// on; a collision surfaces as ErrRoomCodeCollided so the caller can redraw.
func (r *VideoSessionRepository) Create(ctx context.Context, session *models.VideoSession) error {
	const query = `
	INSERT INTO video_sessions (
		id, room_code, booking_id, teacher_id, student_id, status,
		created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		session.ID,
		session.RoomCode,
		session.BookingID,
		session.TeacherID,
		session.StudentID,
		session.Status,
	).Scan(&session.CreatedAt, &session.UpdatedAt)

	if err != nil && isUniqueViolation(err) {
		return models.ErrRoomCodeCollided
	}
	return err
}

const sessionColumns = `
	id, room_code, booking_id, teacher_id, student_id, status,
	teacher_joined, student_joined, started_at, ended_at,
	created_at, updated_at`

// GetByRoomCode resolves a room code to its session.
func (r *VideoSessionRepository) GetByRoomCode(ctx context.Context, roomCode string) (*models.VideoSession, error) {
	query := `SELECT` + sessionColumns + `
	FROM video_sessions
	WHERE room_code = $1
	LIMIT 1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, roomCode))
}

// GetByBookingID returns the session for a booking, if one was created.
func (r *VideoSessionRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.VideoSession, error) {
	query := `SELECT` + sessionColumns + `
	FROM video_sessions
	WHERE booking_id = $1
	LIMIT 1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, bookingID))
}

func (r *VideoSessionRepository) scanOne(row *sql.Row) (*models.VideoSession, error) {
	var session models.VideoSession
	err := row.Scan(
		&session.ID,
		&session.RoomCode,
		&session.BookingID,
		&session.TeacherID,
		&session.StudentID,
		&session.Status,
		&session.TeacherJoined,
		&session.StudentJoined,
		&session.StartedAt,
		&session.EndedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// MarkJoined sets the join flag for a role. Flags are monotonic: the column
// is only ever set to TRUE, never reset, so a reconnect can't erase a join.
func (r *VideoSessionRepository) MarkJoined(ctx context.Context, sessionID uuid.UUID, role models.Role) error {
	column := "student_joined"
	if role == models.RoleTeacher {
		column = "teacher_joined"
	}

	query := `
	UPDATE video_sessions
	SET ` + column + ` = TRUE, updated_at = NOW()
	WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, sessionID)
	return err
}

// Activate flips waiting -> active and stamps started_at, but only once.
// Both participants race this on join; the status guard plus COALESCE make
// the second call a no-op instead of an overwrite.
func (r *VideoSessionRepository) Activate(ctx context.Context, sessionID uuid.UUID) error {
	const query = `
	UPDATE video_sessions
	SET status = $1,
	    started_at = COALESCE(started_at, NOW()),
	    updated_at = NOW()
	WHERE id = $2 AND status = $3
	`

	_, err := r.db.ExecContext(ctx, query,
		models.VideoSessionStatusActive, sessionID, models.VideoSessionStatusWaiting)
	return err
}

// End marks the session ended and stamps ended_at. Idempotent: an already
// ended session is left untouched, so the first ended_at wins.
func (r *VideoSessionRepository) End(ctx context.Context, sessionID uuid.UUID) error {
	const query = `
	UPDATE video_sessions
	SET status = $1,
	    ended_at = COALESCE(ended_at, NOW()),
	    updated_at = NOW()
	WHERE id = $2 AND status <> $1
	`

	_, err := r.db.ExecContext(ctx, query, models.VideoSessionStatusEnded, sessionID)
	return err
}

func isUniqueViolation(err error) bool {
	// lib/pq unique_violation SQLSTATE
	type sqlState interface{ SQLState() string }
	var state sqlState
	if errors.As(err, &state) {
		return state.SQLState() == "23505"
	}
	return false
}
