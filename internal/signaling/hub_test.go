package signaling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easecampusghana/extraclasses-live/internal/models"
)

func newTestClient(sessionID uuid.UUID, role models.Role) *Client {
	return &Client{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    uuid.New(),
		Role:      role,
		Send:      make(chan Envelope, 8),
		Done:      make(chan struct{}),
	}
}

func testEnvelope(sessionID, senderID uuid.UUID, msgType string) Envelope {
	return Envelope{
		ID:        uuid.New(),
		SessionID: sessionID,
		SenderID:  senderID,
		Type:      msgType,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: time.Now(),
	}
}

func TestForwardReachesCounterparty(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()

	teacher := newTestClient(sessionID, models.RoleTeacher)
	student := newTestClient(sessionID, models.RoleStudent)
	hub.AddClient(teacher)
	room := hub.AddClient(student)

	require.True(t, room.BothPresent())

	env := testEnvelope(sessionID, teacher.UserID, "offer")
	require.NoError(t, room.Forward(models.RoleTeacher, env))

	select {
	case got := <-student.Send:
		assert.Equal(t, "offer", got.Type)
		assert.Equal(t, teacher.UserID, got.SenderID)
	default:
		t.Fatal("student received nothing")
	}

	// Nothing echoed back to the sender.
	assert.Empty(t, teacher.Send)
}

func TestForwardWithoutCounterparty(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()

	teacher := newTestClient(sessionID, models.RoleTeacher)
	room := hub.AddClient(teacher)

	err := room.Forward(models.RoleTeacher, testEnvelope(sessionID, teacher.UserID, "offer"))
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestDuplicateConnectionEvictsOld(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()

	first := newTestClient(sessionID, models.RoleStudent)
	second := newTestClient(sessionID, models.RoleStudent)
	hub.AddClient(first)
	room := hub.AddClient(second)

	select {
	case <-first.Done:
		// evicted
	default:
		t.Fatal("first connection should have been closed")
	}

	// The new connection holds the slot.
	teacher := newTestClient(sessionID, models.RoleTeacher)
	hub.AddClient(teacher)
	require.NoError(t, room.Forward(models.RoleTeacher, testEnvelope(sessionID, teacher.UserID, "chat")))
	assert.Len(t, second.Send, 1)
}

func TestBroadcastReachesBothSides(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()

	teacher := newTestClient(sessionID, models.RoleTeacher)
	student := newTestClient(sessionID, models.RoleStudent)
	hub.AddClient(teacher)
	room := hub.AddClient(student)

	room.Broadcast(testEnvelope(sessionID, teacher.UserID, NotifyTypeCallEnded))

	// Unlike Forward, the sender hears it too: whoever pressed end still
	// needs the notification to tear down its own call.
	require.Len(t, teacher.Send, 1)
	require.Len(t, student.Send, 1)
	assert.Equal(t, NotifyTypeCallEnded, (<-student.Send).Type)
}

func TestRemoveClientDeletesEmptyRoom(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()

	teacher := newTestClient(sessionID, models.RoleTeacher)
	student := newTestClient(sessionID, models.RoleStudent)
	hub.AddClient(teacher)
	hub.AddClient(student)

	hub.RemoveClient(teacher)
	require.NotNil(t, hub.GetRoom(sessionID), "room should survive while one side is connected")

	hub.RemoveClient(student)
	assert.Nil(t, hub.GetRoom(sessionID))
}

func TestRemoveClientLeavesNewerConnection(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()

	old := newTestClient(sessionID, models.RoleTeacher)
	hub.AddClient(old)
	replacement := newTestClient(sessionID, models.RoleTeacher)
	room := hub.AddClient(replacement)

	// The evicted connection's cleanup must not knock out the replacement.
	hub.RemoveClient(old)
	assert.Same(t, replacement, room.Counterparty(models.RoleStudent))
}

func TestDeliverFullBuffer(t *testing.T) {
	c := newTestClient(uuid.New(), models.RoleTeacher)
	for i := 0; i < cap(c.Send); i++ {
		require.NoError(t, c.Deliver(testEnvelope(c.SessionID, uuid.New(), "chat")))
	}
	assert.ErrorIs(t, c.Deliver(testEnvelope(c.SessionID, uuid.New(), "chat")), ErrSendBufferFull)
}

func TestIsControl(t *testing.T) {
	assert.True(t, IsControl("ping"))
	assert.True(t, IsControl("leave"))
	assert.False(t, IsControl("offer"))
	assert.False(t, IsControl("chat"))
	assert.False(t, IsControl("reaction")) // unknown types are forwarded, not control
}
