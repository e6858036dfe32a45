package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message types carried over the signaling channel. The relay forwards
// unknown types untouched; consumers ignore what they don't recognize.
const (
	MessageTypeOffer        = "offer"
	MessageTypeAnswer       = "answer"
	MessageTypeICECandidate = "ice-candidate"
	MessageTypeChat         = "chat"
	MessageTypeWhiteboard   = "whiteboard"
)

// IsNegotiation reports whether a message type is part of the WebRTC
// handshake. Negotiation messages must be consumed in arrival order per
// sender; everything else is ordered only by CreatedAt.
func IsNegotiation(messageType string) bool {
	switch messageType {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		return true
	}
	return false
}

// SignalingMessage is one event within a video session. Rows are append-only
// and immutable once written; ordering is established by created_at alone.
type SignalingMessage struct {
	ID             uuid.UUID       `db:"id"`
	VideoSessionID uuid.UUID       `db:"video_session_id"`
	SenderID       uuid.UUID       `db:"sender_id"`
	MessageType    string          `db:"message_type"`
	Payload        json.RawMessage `db:"payload"`
	CreatedAt      time.Time       `db:"created_at"`
}
