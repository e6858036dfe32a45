package dtos

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// CreateRoomRequest is sent by the booking system once a booking is
// confirmed and paid for.
type CreateRoomRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
}

func (r *CreateRoomRequest) Validate() error {
	return validate.Struct(r)
}

// CreateRoomResponse returns the shareable room code for a new (or already
// existing) video session.
type CreateRoomResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	RoomCode  string    `json:"room_code"`
	Status    string    `json:"status"`
}

// RoomLookupResponse is the session-directory answer for a room code: the
// session, its booked window, the caller's role and the counterparty's
// display identity. An ended session still answers 200 with status "ended";
// only unknown codes and non-participants are HTTP errors.
type RoomLookupResponse struct {
	SessionID        uuid.UUID  `json:"session_id"`
	RoomCode         string     `json:"room_code"`
	BookingID        uuid.UUID  `json:"booking_id"`
	Status           string     `json:"status"`
	Role             string     `json:"role"`
	Subject          string     `json:"subject"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	OtherPartyName   string     `json:"other_party_name"`
	OtherPartyJoined bool       `json:"other_party_joined"`
	CanJoin          bool       `json:"can_join"`
	Message          string     `json:"message,omitempty"`
}

// SignalHistoryResponse is the bounded backfill a client may request when it
// enters a room.
type SignalHistoryResponse struct {
	Messages []SignalMessage `json:"messages"`
}

// SignalMessage carries one logged message. Role is the sender's side of the
// session, so a replaying client can tell the counterparty's messages from
// its own without knowing user ids.
type SignalMessage struct {
	ID        uuid.UUID       `json:"id"`
	SenderID  uuid.UUID       `json:"sender_id"`
	Role      string          `json:"role"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
