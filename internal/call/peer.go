package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/easecampusghana/extraclasses-live/internal/models"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

// ConnState is the peer connection state as the UI sees it.
type ConnState string

const (
	ConnStateNew          ConnState = "new"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateConnected    ConnState = "connected"
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateFailed       ConnState = "failed"
)

var (
	ErrCallNotStarted = errors.New("call not started")
	ErrNoVideoSender  = errors.New("no video sender on the connection")
)

// ManagerState is a point-in-time snapshot of the local media controls.
type ManagerState struct {
	Conn          ConnState
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
	Recording     bool
}

// ManagerCallbacks are the manager's upward notifications. All fields are
// optional. Callbacks fire on pion's goroutines; keep them short.
type ManagerCallbacks struct {
	OnStateChange  func(ConnState)
	OnRemoteTrack  func(kind webrtc.RTPCodecType)
	OnSignalingErr func(error)
}

// Manager owns the single peer connection of a 1:1 call. The teacher side
// creates the offer; the student side answers. Everything else is symmetric.
//
// Role assignment is fixed by the session directory, so glare (both sides
// offering at once) cannot happen.
type Manager struct {
	channel   Channel
	source    MediaSource
	role      models.Role
	callbacks ManagerCallbacks
	log       zerolog.Logger

	mu             sync.Mutex
	pc             *webrtc.PeerConnection
	audioSender    *webrtc.RTPSender
	videoSender    *webrtc.RTPSender
	cameraTrack    webrtc.TrackLocal
	pendingICE     []webrtc.ICECandidateInit
	pendingSignals []signaling.Envelope
	draining       bool
	remoteSet      bool
	started        bool
	closed         bool
	state          ConnState
	audioEnabled   bool
	videoEnabled   bool
	screenSharing  bool
	recorder       *Recorder
}

func NewManager(channel Channel, source MediaSource, role models.Role, callbacks ManagerCallbacks, log zerolog.Logger) *Manager {
	return &Manager{
		channel:      channel,
		source:       source,
		role:         role,
		callbacks:    callbacks,
		log:          log.With().Str("component", "peer_manager").Logger(),
		state:        ConnStateNew,
		audioEnabled: true,
		videoEnabled: true,
	}
}

// newPeerConnection builds a PeerConnection with the default codecs and
// interceptor chain and a public STUN server.
func newPeerConnection() (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i))

	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
}

// StartCall brings the connection up: local tracks attached, handlers wired
// and, on the caller side, the offer sent. Idempotent; a second call while
// the connection lives is a no-op.
func (m *Manager) StartCall(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrChannelClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	pc, err := newPeerConnection()
	if err != nil {
		m.markFailed()
		return fmt.Errorf("create peer connection: %w", err)
	}

	audio, err := m.source.AudioTrack()
	if err != nil {
		pc.Close()
		m.markFailed()
		return fmt.Errorf("acquire audio: %w", err)
	}
	camera, err := m.source.CameraTrack()
	if err != nil {
		pc.Close()
		m.markFailed()
		return fmt.Errorf("acquire camera: %w", err)
	}

	audioSender, err := pc.AddTrack(audio)
	if err != nil {
		pc.Close()
		m.markFailed()
		return err
	}
	videoSender, err := pc.AddTrack(camera)
	if err != nil {
		pc.Close()
		m.markFailed()
		return err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		err := m.channel.Send(context.Background(), models.MessageTypeICECandidate, signaling.ICECandidatePayload{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
		if err != nil {
			m.signalingErr(fmt.Errorf("send ice candidate: %w", err))
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.setState(mapConnState(s))
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.log.Info().Str("kind", track.Kind().String()).Msg("remote track arrived")
		if m.callbacks.OnRemoteTrack != nil {
			m.callbacks.OnRemoteTrack(track.Kind())
		}
		go m.readRemote(track)
	})

	m.mu.Lock()
	m.pc = pc
	m.audioSender = audioSender
	m.videoSender = videoSender
	m.cameraTrack = camera
	m.mu.Unlock()

	m.setState(ConnStateConnecting)

	if m.role.IsCaller() {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			m.markFailed()
			return fmt.Errorf("create offer: %w", err)
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			m.markFailed()
			return fmt.Errorf("set local offer: %w", err)
		}
		if err := m.channel.Send(ctx, models.MessageTypeOffer, signaling.SDPPayload{SDP: offer.SDP}); err != nil {
			m.markFailed()
			return fmt.Errorf("send offer: %w", err)
		}
	}

	m.drainPendingSignals(ctx)
	return nil
}

// readRemote pumps a remote track's RTP into the recorder. Packets arriving
// while recording is off are consumed and dropped; without a reader pion
// would stall the track.
func (m *Manager) readRemote(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.log.Debug().Err(err).Msg("remote track read ended")
			}
			return
		}
		m.mu.Lock()
		rec := m.recorder
		m.mu.Unlock()
		if rec != nil {
			if err := rec.WriteRTP(track.Kind(), pkt); err != nil {
				m.log.Warn().Err(err).Msg("recording write failed")
			}
		}
	}
}

// HandleSignal consumes one negotiation message from the counterparty.
// Non-negotiation types are ignored here; the controller routes them.
//
// Messages arriving before StartCall are buffered and replayed once the
// connection comes up: the counterparty may confirm ready first and its
// offer must survive until this side joins. Candidates arriving before the
// remote description are likewise buffered and applied once it lands.
func (m *Manager) HandleSignal(ctx context.Context, env signaling.Envelope) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrCallNotStarted
	}
	if m.pc == nil || m.draining {
		m.pendingSignals = append(m.pendingSignals, env)
		m.mu.Unlock()
		return nil
	}
	pc := m.pc
	m.mu.Unlock()
	return m.process(ctx, pc, env)
}

// drainPendingSignals replays the negotiation messages that arrived before
// StartCall, in arrival order. Messages landing mid-drain queue behind the
// backlog so ordering holds.
func (m *Manager) drainPendingSignals(ctx context.Context) {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.pendingSignals) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		env := m.pendingSignals[0]
		m.pendingSignals = m.pendingSignals[1:]
		pc := m.pc
		m.mu.Unlock()

		if err := m.process(ctx, pc, env); err != nil {
			m.log.Warn().Err(err).Str("type", env.Type).Msg("buffered negotiation message rejected")
		}
	}
}

func (m *Manager) process(ctx context.Context, pc *webrtc.PeerConnection, env signaling.Envelope) error {
	switch env.Type {
	case models.MessageTypeOffer:
		var p signaling.SDPPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  p.SDP,
		}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		m.drainPendingICE(pc)

		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		return m.channel.Send(ctx, models.MessageTypeAnswer, signaling.SDPPayload{SDP: answer.SDP})

	case models.MessageTypeAnswer:
		var p signaling.SDPPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  p.SDP,
		}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		m.drainPendingICE(pc)
		return nil

	case models.MessageTypeICECandidate:
		var p signaling.ICECandidatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode ice candidate: %w", err)
		}
		init := webrtc.ICECandidateInit{
			Candidate:     p.Candidate,
			SDPMid:        p.SDPMid,
			SDPMLineIndex: p.SDPMLineIndex,
		}
		m.mu.Lock()
		if !m.remoteSet {
			m.pendingICE = append(m.pendingICE, init)
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		return pc.AddICECandidate(init)

	default:
		return nil
	}
}

func (m *Manager) drainPendingICE(pc *webrtc.PeerConnection) {
	m.mu.Lock()
	m.remoteSet = true
	pending := m.pendingICE
	m.pendingICE = nil
	m.mu.Unlock()

	for _, init := range pending {
		if err := pc.AddICECandidate(init); err != nil {
			m.log.Warn().Err(err).Msg("buffered ice candidate rejected")
		}
	}
}

// ToggleAudio flips the microphone without renegotiating; the track stays
// attached, the source just stops feeding it. Returns the new flag.
func (m *Manager) ToggleAudio() bool {
	m.mu.Lock()
	m.audioEnabled = !m.audioEnabled
	enabled := m.audioEnabled
	m.mu.Unlock()
	m.source.SetAudioEnabled(enabled)
	return enabled
}

// ToggleVideo flips the camera the same way.
func (m *Manager) ToggleVideo() bool {
	m.mu.Lock()
	m.videoEnabled = !m.videoEnabled
	enabled := m.videoEnabled
	m.mu.Unlock()
	m.source.SetVideoEnabled(enabled)
	return enabled
}

// StartScreenShare swaps the outgoing video to the screen track via
// ReplaceTrack. Audio is untouched and no renegotiation happens. No-op if
// already sharing.
func (m *Manager) StartScreenShare() error {
	m.mu.Lock()
	if m.screenSharing {
		m.mu.Unlock()
		return nil
	}
	sender := m.videoSender
	m.mu.Unlock()
	if sender == nil {
		return ErrNoVideoSender
	}

	screen, err := m.source.ScreenTrack()
	if err != nil {
		return fmt.Errorf("acquire screen: %w", err)
	}
	if err := sender.ReplaceTrack(screen); err != nil {
		return fmt.Errorf("replace video track: %w", err)
	}

	m.mu.Lock()
	m.screenSharing = true
	m.mu.Unlock()
	return nil
}

// StopScreenShare restores the camera on the video sender. No-op if not
// sharing.
func (m *Manager) StopScreenShare() error {
	m.mu.Lock()
	if !m.screenSharing {
		m.mu.Unlock()
		return nil
	}
	sender := m.videoSender
	camera := m.cameraTrack
	m.mu.Unlock()

	if err := sender.ReplaceTrack(camera); err != nil {
		return fmt.Errorf("restore camera track: %w", err)
	}

	m.mu.Lock()
	m.screenSharing = false
	m.mu.Unlock()
	return nil
}

// StartRecording begins writing remote media to the given writers. No-op if
// already recording.
func (m *Manager) StartRecording(videoOut, audioOut io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recorder != nil {
		return nil
	}
	rec, err := NewRecorder(videoOut, audioOut)
	if err != nil {
		return err
	}
	m.recorder = rec
	return nil
}

// StopRecording finalizes the containers. No-op if not recording.
func (m *Manager) StopRecording() error {
	m.mu.Lock()
	rec := m.recorder
	m.recorder = nil
	m.mu.Unlock()
	if rec == nil {
		return nil
	}
	return rec.Close()
}

// State returns a snapshot of the local controls.
func (m *Manager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerState{
		Conn:          m.state,
		AudioEnabled:  m.audioEnabled,
		VideoEnabled:  m.videoEnabled,
		ScreenSharing: m.screenSharing,
		Recording:     m.recorder != nil,
	}
}

// Close tears down the connection, the recorder and the media source.
// Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pc := m.pc
	rec := m.recorder
	m.recorder = nil
	m.mu.Unlock()

	if rec != nil {
		_ = rec.Close()
	}
	var err error
	if pc != nil {
		err = pc.Close()
	}
	if cerr := m.source.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (m *Manager) setState(s ConnState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.log.Info().Str("state", string(s)).Msg("peer connection state")
	if m.callbacks.OnStateChange != nil {
		m.callbacks.OnStateChange(s)
	}
}

func (m *Manager) markFailed() {
	m.setState(ConnStateFailed)
}

func (m *Manager) signalingErr(err error) {
	m.log.Error().Err(err).Msg("signaling send failed")
	if m.callbacks.OnSignalingErr != nil {
		m.callbacks.OnSignalingErr(err)
	}
}

// mapConnState collapses pion's connection states onto the UI's. A failed
// connection is terminal here: the manager never redials on its own, the
// shell decides whether to offer a rejoin.
func mapConnState(s webrtc.PeerConnectionState) ConnState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return ConnStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ConnStateDisconnected
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		return ConnStateFailed
	default:
		return ConnStateNew
	}
}
