package call

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

func TestChatFeedRoundTrip(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	teacherEP := relay.Endpoint(uuid.New())
	studentEP := relay.Endpoint(uuid.New())

	teacherChat := NewChatFeed(teacherEP, "Mr. Owusu")
	studentChat := NewChatFeed(studentEP, "Ama")

	stream, cancel, err := studentEP.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, teacherChat.Send(context.Background(), "Open your textbook to page 12"))

	// What arrives at the student renders identically to the teacher's echo.
	studentChat.Handle(receiveOne(t, stream))

	sent := teacherChat.Messages()
	got := studentChat.Messages()
	require.Len(t, sent, 1)
	require.Len(t, got, 1)
	assert.Equal(t, sent[0].Text, got[0].Text)
	assert.Equal(t, sent[0].Sender, got[0].Sender)
	assert.True(t, sent[0].Local)
	assert.False(t, got[0].Local)
}

func TestChatFeedNoEchoOnFailedSend(t *testing.T) {
	ws := &WSChannel{closed: true}
	chat := NewChatFeed(ws, "Ama")

	err := chat.Send(context.Background(), "lost line")

	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Empty(t, chat.Messages())
}

func TestChatFeedDropsMalformedPayload(t *testing.T) {
	chat := NewChatFeed(NewMemoryRelay(uuid.New()).Endpoint(uuid.New()), "Ama")

	chat.Handle(signaling.Envelope{Type: "chat", Payload: []byte(`not json`)})

	assert.Empty(t, chat.Messages())
}

func TestWhiteboardFeedAppliesOpsInOrder(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	board := NewWhiteboardFeed(relay.Endpoint(uuid.New()))

	require.NoError(t, board.Draw(context.Background(), signaling.WhiteboardPayload{
		Action: "draw", Color: "#000", Width: 2, Points: [][2]float64{{0, 0}, {10, 10}},
	}))
	require.NoError(t, board.Draw(context.Background(), signaling.WhiteboardPayload{
		Action: "draw", Color: "#f00", Width: 4, Points: [][2]float64{{5, 5}},
	}))

	ops := board.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, "#000", ops[0].Color)
	assert.Equal(t, "#f00", ops[1].Color)
}

func TestWhiteboardFeedClearResetsLog(t *testing.T) {
	board := NewWhiteboardFeed(NewMemoryRelay(uuid.New()).Endpoint(uuid.New()))

	require.NoError(t, board.Draw(context.Background(), signaling.WhiteboardPayload{Action: "draw"}))
	require.NoError(t, board.Draw(context.Background(), signaling.WhiteboardPayload{Action: "clear"}))

	assert.Empty(t, board.Ops())
}

func TestWhiteboardFeedIgnoresMalformedEvents(t *testing.T) {
	board := NewWhiteboardFeed(NewMemoryRelay(uuid.New()).Endpoint(uuid.New()))

	board.Handle(signaling.Envelope{Type: "whiteboard", Payload: []byte(`{{`)})
	board.Handle(signaling.Envelope{Type: "whiteboard", Payload: []byte(`{}`)})

	assert.Empty(t, board.Ops())
}
