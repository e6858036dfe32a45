package call

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/easecampusghana/extraclasses-live/internal/dtos"
	"github.com/easecampusghana/extraclasses-live/internal/models"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

// ControllerCallbacks are the shell's upward notifications to whatever
// renders the call. All optional.
type ControllerCallbacks struct {
	OnPhase     func(Phase)
	OnPeerState func(ConnState)
	OnPresence  func(present bool, name string)
}

// HistoryReader is the optional bounded-backfill side of a Directory.
// Channel subscriptions are new-only, so the log read is the only way to
// recover messages sent before this participant connected.
type HistoryReader interface {
	History(ctx context.Context, roomCode string, limit int) ([]dtos.SignalMessage, error)
}

// backfillLimit bounds the session-entry history read.
const backfillLimit = 200

// Controller is the call shell: it owns the phase machine, the peer manager
// and the side panels, and routes every channel message to its consumer.
// One Controller per room-code visit.
type Controller struct {
	machine   *Machine
	directory Directory
	channel   Channel
	source    MediaSource
	localName string
	callbacks ControllerCallbacks
	log       zerolog.Logger

	mu           sync.Mutex
	peer         *Manager
	chat         *ChatFeed
	board        *WhiteboardFeed
	peerPresent  bool
	peerName     string
	cancelSub    func()
	dispatchDone chan struct{}
}

func NewController(directory Directory, store SessionStore, channel Channel, source MediaSource, localName string, callbacks ControllerCallbacks, log zerolog.Logger) *Controller {
	c := &Controller{
		directory: directory,
		channel:   channel,
		source:    source,
		localName: localName,
		callbacks: callbacks,
		log:       log.With().Str("component", "call_controller").Logger(),
	}
	c.machine = NewMachine(directory, store, callbacks.OnPhase)
	c.chat = NewChatFeed(channel, localName)
	c.board = NewWhiteboardFeed(channel)
	return c
}

// Join resolves the room and, when it is joinable, subscribes to the
// signaling channel and builds the peer manager for the resolved role.
// An ended session or a lookup failure stops here: no capture, no
// subscription, no media side effects.
func (c *Controller) Join(ctx context.Context, roomCode string) Phase {
	phase := c.machine.Load(ctx, roomCode)
	if phase != PhaseWaitingRoom {
		return phase
	}

	room := c.machine.Room()
	peer := NewManager(c.channel, c.source, room.Role, ManagerCallbacks{
		OnStateChange: func(s ConnState) {
			if s == ConnStateFailed {
				c.machine.Fail("The connection to the other participant failed.")
			}
			if c.callbacks.OnPeerState != nil {
				c.callbacks.OnPeerState(s)
			}
		},
		OnRemoteTrack: func(kind webrtc.RTPCodecType) {
			c.log.Info().Str("kind", kind.String()).Msg("receiving remote media")
		},
	}, c.log)

	c.mu.Lock()
	c.peer = peer
	c.peerPresent = room.OtherPartyJoined
	c.mu.Unlock()

	stream, cancel, err := c.channel.Subscribe(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("signaling subscribe failed")
		c.machine.Fail("Unable to Join: could not reach the call service.")
		return c.machine.Phase()
	}

	// History before dispatch: subscribing first means no gap between the
	// log read and the live stream, and the replayed ids dedupe the overlap.
	replayed := c.replayHistory(ctx, room)

	done := make(chan struct{})
	c.mu.Lock()
	c.cancelSub = cancel
	c.dispatchDone = done
	c.mu.Unlock()

	go c.dispatch(stream, done, replayed)
	return PhaseWaitingRoom
}

// replayHistory reads the bounded signaling backfill and replays it: chat
// and whiteboard rebuild their panels, and the counterparty's negotiation
// messages feed the peer manager, which holds them until StartCall. This is
// how an offer sent before this participant ever connected still reaches it.
func (c *Controller) replayHistory(ctx context.Context, room *RoomInfo) map[uuid.UUID]struct{} {
	reader, ok := c.directory.(HistoryReader)
	if !ok {
		return nil
	}
	messages, err := reader.History(ctx, room.RoomCode, backfillLimit)
	if err != nil {
		c.log.Warn().Err(err).Msg("signal backfill failed")
		return nil
	}

	replayed := make(map[uuid.UUID]struct{}, len(messages))
	for _, msg := range messages {
		replayed[msg.ID] = struct{}{}
		own := msg.Role == string(room.Role)
		env := signaling.Envelope{
			ID:        msg.ID,
			SessionID: room.SessionID,
			SenderID:  msg.SenderID,
			Type:      msg.Type,
			Payload:   msg.Payload,
			CreatedAt: msg.CreatedAt,
		}
		switch {
		case models.IsNegotiation(msg.Type):
			// Own negotiation history belongs to this side's previous
			// connection; replaying it would corrupt the fresh one.
			if own {
				continue
			}
			c.handleNegotiation(ctx, env)
		case msg.Type == models.MessageTypeChat:
			c.chat.Restore(env, own)
		case msg.Type == models.MessageTypeWhiteboard:
			c.board.Handle(env)
		}
	}
	return replayed
}

// dispatch routes incoming envelopes until the subscription closes.
// Negotiation messages reach the peer manager from this single goroutine,
// preserving per-sender arrival order.
func (c *Controller) dispatch(stream <-chan signaling.Envelope, done chan struct{}, replayed map[uuid.UUID]struct{}) {
	defer close(done)
	for env := range stream {
		if _, ok := replayed[env.ID]; ok {
			continue
		}
		switch env.Type {
		case models.MessageTypeChat:
			c.chat.Handle(env)

		case models.MessageTypeWhiteboard:
			c.board.Handle(env)

		case signaling.NotifyTypePeerJoined:
			c.setPresence(true, env)

		case signaling.NotifyTypePeerLeft:
			c.setPresence(false, env)

		case signaling.NotifyTypeCallEnded:
			// The counterparty already persisted the end transition.
			c.machine.EndedRemotely()

		case "pong":

		default:
			if models.IsNegotiation(env.Type) {
				c.handleNegotiation(context.Background(), env)
				continue
			}
			// Forward-compatible: newer message types pass through the
			// relay and are dropped here.
			c.log.Debug().Str("type", env.Type).Msg("ignoring unknown message type")
		}
	}
}

func (c *Controller) handleNegotiation(ctx context.Context, env signaling.Envelope) {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return
	}
	if err := peer.HandleSignal(ctx, env); err != nil {
		c.log.Warn().Err(err).Str("type", env.Type).Msg("negotiation message rejected")
	}
}

func (c *Controller) setPresence(present bool, env signaling.Envelope) {
	name := ""
	var p signaling.PeerPresencePayload
	if err := json.Unmarshal(env.Payload, &p); err == nil {
		name = p.Name
	}

	c.mu.Lock()
	c.peerPresent = present
	if name != "" {
		c.peerName = name
	}
	name = c.peerName
	c.mu.Unlock()

	if c.callbacks.OnPresence != nil {
		c.callbacks.OnPresence(present, name)
	}
}

// StartDeviceTest enters the device check from the waiting room.
func (c *Controller) StartDeviceTest() error { return c.machine.StartDeviceTest() }

// ConfirmReady performs the join: persists the transition, then brings up
// the peer connection.
func (c *Controller) ConfirmReady(ctx context.Context) error {
	if err := c.machine.ConfirmReady(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return ErrCallNotStarted
	}
	return peer.StartCall(ctx)
}

// EndCall persists the end of the session and tears everything down.
func (c *Controller) EndCall(ctx context.Context) error {
	err := c.machine.End(ctx)
	c.teardown()
	return err
}

// Leave disconnects this participant without ending the session; the
// counterparty can keep waiting or end it themselves.
func (c *Controller) Leave() {
	c.teardown()
}

func (c *Controller) teardown() {
	c.mu.Lock()
	peer := c.peer
	cancel := c.cancelSub
	done := c.dispatchDone
	c.cancelSub = nil
	c.mu.Unlock()

	if peer != nil {
		_ = peer.Close()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Fail routes an external fatal error into the phase machine.
func (c *Controller) Fail(reason string) { c.machine.Fail(reason) }

func (c *Controller) Phase() Phase    { return c.machine.Phase() }
func (c *Controller) Room() *RoomInfo { return c.machine.Room() }
func (c *Controller) Failure() string { return c.machine.Failure() }

func (c *Controller) Chat() *ChatFeed { return c.chat }

func (c *Controller) Whiteboard() *WhiteboardFeed { return c.board }

// PeerPresent reports whether the counterparty is currently on the relay.
func (c *Controller) PeerPresent() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerPresent, c.peerName
}

// Media control pass-throughs. All return ErrCallNotStarted before Join.

func (c *Controller) ToggleAudio() (bool, error) {
	peer, err := c.requirePeer()
	if err != nil {
		return false, err
	}
	return peer.ToggleAudio(), nil
}

func (c *Controller) ToggleVideo() (bool, error) {
	peer, err := c.requirePeer()
	if err != nil {
		return false, err
	}
	return peer.ToggleVideo(), nil
}

func (c *Controller) StartScreenShare() error {
	peer, err := c.requirePeer()
	if err != nil {
		return err
	}
	return peer.StartScreenShare()
}

func (c *Controller) StopScreenShare() error {
	peer, err := c.requirePeer()
	if err != nil {
		return err
	}
	return peer.StopScreenShare()
}

func (c *Controller) StartRecording(videoOut, audioOut io.Writer) error {
	peer, err := c.requirePeer()
	if err != nil {
		return err
	}
	return peer.StartRecording(videoOut, audioOut)
}

func (c *Controller) StopRecording() error {
	peer, err := c.requirePeer()
	if err != nil {
		return err
	}
	return peer.StopRecording()
}

// PeerState snapshots the media controls, or zero state before Join.
func (c *Controller) PeerState() ManagerState {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return ManagerState{Conn: ConnStateNew, AudioEnabled: true, VideoEnabled: true}
	}
	return peer.State()
}

func (c *Controller) requirePeer() (*Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		return nil, ErrCallNotStarted
	}
	return c.peer, nil
}
