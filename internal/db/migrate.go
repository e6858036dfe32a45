package db

import (
	"database/sql"
	"fmt"
)

// Migrate creates the tables this service owns. Bookings and users belong to
// the marketplace schema; the statements here only add what the call service
// needs and are safe to re-run.
func Migrate(conn *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS video_sessions (
			id UUID PRIMARY KEY,
			room_code TEXT NOT NULL UNIQUE,
			booking_id UUID NOT NULL,
			teacher_id UUID NOT NULL,
			student_id UUID NOT NULL,
			status TEXT NOT NULL DEFAULT 'waiting',
			teacher_joined BOOLEAN NOT NULL DEFAULT FALSE,
			student_joined BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_video_sessions_booking
			ON video_sessions (booking_id)`,
		`CREATE TABLE IF NOT EXISTS signaling_messages (
			id UUID PRIMARY KEY,
			video_session_id UUID NOT NULL REFERENCES video_sessions (id),
			sender_id UUID NOT NULL,
			message_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signaling_messages_session_created
			ON signaling_messages (video_session_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
