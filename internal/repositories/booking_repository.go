package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/easecampusghana/extraclasses-live/internal/models"
)

// BookingRepository reads the marketplace's bookings table. This service
// never writes bookings.
type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	const query = `
	SELECT id, teacher_id, student_id, subject, start_time, end_time, status
	FROM bookings
	WHERE id = $1
	LIMIT 1
	`

	var booking models.Booking
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&booking.TeacherID,
		&booking.StudentID,
		&booking.Subject,
		&booking.StartTime,
		&booking.EndTime,
		&booking.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// DisplayName resolves a participant's public display name.
func (r *BookingRepository) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	const query = `SELECT display_name FROM users WHERE id = $1 LIMIT 1`

	var name string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}
