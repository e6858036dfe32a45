package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is the parent record a VideoSession hangs off. Bookings are owned
// by the marketplace side of the platform; this service only reads them to
// validate the join window and to resolve participant identities.
type Booking struct {
	ID        uuid.UUID     `db:"id"`
	TeacherID uuid.UUID     `db:"teacher_id"`
	StudentID uuid.UUID     `db:"student_id"`
	Subject   string        `db:"subject"`
	StartTime time.Time     `db:"start_time"`
	EndTime   time.Time     `db:"end_time"`
	Status    BookingStatus `db:"status"`
}
