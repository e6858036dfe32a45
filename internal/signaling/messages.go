package signaling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format for every message on the channel. Payload is
// opaque to the relay; only the client cores interpret it.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	SenderID  uuid.UUID       `json:"sender_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Control types consumed by the relay itself, never forwarded or persisted.
const (
	controlTypePing  = "ping"
	controlTypePong  = "pong"
	controlTypeLeave = "leave"
)

// Notifications the relay originates.
const (
	NotifyTypePeerJoined = "peer-joined"
	NotifyTypePeerLeft   = "peer-left"
	NotifyTypeCallEnded  = "call-ended"
)

// IsControl reports whether a type addresses the relay rather than the peer.
func IsControl(messageType string) bool {
	switch messageType {
	case controlTypePing, controlTypePong, controlTypeLeave:
		return true
	}
	return false
}

// SDPPayload carries an offer or answer.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload carries one ICE candidate. Mid and MLineIndex can be
// null per the WebRTC spec.
type ICECandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// ChatPayload is one chat line.
type ChatPayload struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// WhiteboardPayload is one drawing event. Points are interpreted by the
// client; the relay and the persistence layer treat them as opaque.
type WhiteboardPayload struct {
	Action string       `json:"action"` // draw, erase, clear
	Color  string       `json:"color,omitempty"`
	Width  float64      `json:"width,omitempty"`
	Points [][2]float64 `json:"points,omitempty"`
}

// PeerPresencePayload announces a participant joining or leaving the relay.
type PeerPresencePayload struct {
	Role string `json:"role"`
	Name string `json:"name"`
}
