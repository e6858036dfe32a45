package call

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/easecampusghana/extraclasses-live/internal/models"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

// ChatMessage is one line in the in-call chat, local or remote.
type ChatMessage struct {
	Text   string
	Sender string
	Local  bool
}

// ChatFeed is the chat panel's state: sends go out on the channel and echo
// locally, receives append in arrival order.
type ChatFeed struct {
	channel   Channel
	localName string

	mu       sync.Mutex
	messages []ChatMessage
}

func NewChatFeed(channel Channel, localName string) *ChatFeed {
	return &ChatFeed{channel: channel, localName: localName}
}

// Send publishes a chat line and appends the local echo. The echo happens
// only after the send succeeds so the two transcripts cannot diverge on a
// dead channel.
func (f *ChatFeed) Send(ctx context.Context, text string) error {
	err := f.channel.Send(ctx, models.MessageTypeChat, signaling.ChatPayload{
		Text:   text,
		Sender: f.localName,
	})
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.messages = append(f.messages, ChatMessage{Text: text, Sender: f.localName, Local: true})
	f.mu.Unlock()
	return nil
}

// Handle consumes one incoming chat envelope. Malformed payloads are dropped.
func (f *ChatFeed) Handle(env signaling.Envelope) {
	var p signaling.ChatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	f.mu.Lock()
	f.messages = append(f.messages, ChatMessage{Text: p.Text, Sender: p.Sender})
	f.mu.Unlock()
}

// Restore appends one line recovered from the signaling log, keeping the
// local flag of the original sender so a rejoining participant sees the
// transcript as it was.
func (f *ChatFeed) Restore(env signaling.Envelope, local bool) {
	var p signaling.ChatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	f.mu.Lock()
	f.messages = append(f.messages, ChatMessage{Text: p.Text, Sender: p.Sender, Local: local})
	f.mu.Unlock()
}

// Messages returns a copy of the transcript.
func (f *ChatFeed) Messages() []ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ChatMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

// WhiteboardFeed mirrors the shared whiteboard: an ordered op log that a
// renderer replays. A clear op resets the log.
type WhiteboardFeed struct {
	channel Channel

	mu  sync.Mutex
	ops []signaling.WhiteboardPayload
}

func NewWhiteboardFeed(channel Channel) *WhiteboardFeed {
	return &WhiteboardFeed{channel: channel}
}

// Draw publishes one drawing op and applies it locally.
func (w *WhiteboardFeed) Draw(ctx context.Context, op signaling.WhiteboardPayload) error {
	if err := w.channel.Send(ctx, models.MessageTypeWhiteboard, op); err != nil {
		return err
	}
	w.apply(op)
	return nil
}

// Handle consumes one incoming whiteboard envelope.
func (w *WhiteboardFeed) Handle(env signaling.Envelope) {
	var p signaling.WhiteboardPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	if p.Action == "" {
		return
	}
	w.apply(p)
}

func (w *WhiteboardFeed) apply(op signaling.WhiteboardPayload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if op.Action == "clear" {
		w.ops = w.ops[:0]
		return
	}
	w.ops = append(w.ops, op)
}

// Ops returns a copy of the current op log.
func (w *WhiteboardFeed) Ops() []signaling.WhiteboardPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]signaling.WhiteboardPayload, len(w.ops))
	copy(out, w.ops)
	return out
}
