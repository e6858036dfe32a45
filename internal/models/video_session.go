package models

import (
	"time"

	"github.com/google/uuid"
)

type VideoSessionStatus string

const (
	VideoSessionStatusWaiting VideoSessionStatus = "waiting"
	VideoSessionStatusActive  VideoSessionStatus = "active"
	VideoSessionStatusEnded   VideoSessionStatus = "ended"
)

// Role identifies which side of a two-party call a participant is on.
// The teacher initiates the offer (caller), the student answers (callee).
// Derived once from the session row at lookup time, never from client input.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Other returns the counterparty role.
func (r Role) Other() Role {
	if r == RoleTeacher {
		return RoleStudent
	}
	return RoleTeacher
}

// IsCaller reports whether this role creates and sends the SDP offer.
func (r Role) IsCaller() bool { return r == RoleTeacher }

// VideoSession is one video call instance, tied 1:1 to a booked session.
// RoomCode is unique and immutable once created. Status only moves forward:
// waiting -> active -> ended; an ended session is never resurrected under
// the same room code.
type VideoSession struct {
	ID        uuid.UUID `db:"id"`
	RoomCode  string    `db:"room_code"`
	BookingID uuid.UUID `db:"booking_id"`
	TeacherID uuid.UUID `db:"teacher_id"`
	StudentID uuid.UUID `db:"student_id"`

	Status        VideoSessionStatus `db:"status"`
	TeacherJoined bool               `db:"teacher_joined"`
	StudentJoined bool               `db:"student_joined"`

	StartedAt *time.Time `db:"started_at"`
	EndedAt   *time.Time `db:"ended_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// RoleOf maps a user id onto its role in this session.
// Returns false when the user is not a participant.
func (s *VideoSession) RoleOf(userID uuid.UUID) (Role, bool) {
	switch userID {
	case s.TeacherID:
		return RoleTeacher, true
	case s.StudentID:
		return RoleStudent, true
	}
	return "", false
}

// Joined reports whether the given role's join flag is set.
func (s *VideoSession) Joined(role Role) bool {
	if role == RoleTeacher {
		return s.TeacherJoined
	}
	return s.StudentJoined
}
