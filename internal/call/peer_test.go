package call

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easecampusghana/extraclasses-live/internal/models"
	"github.com/easecampusghana/extraclasses-live/internal/signaling"
)

// receiveType drains the stream until an envelope of the wanted type shows
// up, skipping interleaved ICE candidates and presence chatter.
func receiveType(t *testing.T, ch <-chan signaling.Envelope, want string) signaling.Envelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env, ok := <-ch:
			require.True(t, ok, "subscription closed while waiting for %s", want)
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func newTestManager(t *testing.T, relay *MemoryRelay, role models.Role) (*Manager, *StaticSource) {
	t.Helper()
	source := NewStaticSource()
	m := NewManager(relay.Endpoint(uuid.New()), source, role, ManagerCallbacks{}, zerolog.Nop())
	t.Cleanup(func() { m.Close() })
	return m, source
}

func TestManagerTogglesFlipSourceWithoutTeardown(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	m, source := newTestManager(t, relay, models.RoleStudent)

	assert.False(t, m.ToggleAudio())
	assert.False(t, source.AudioEnabled())
	assert.True(t, m.ToggleAudio())
	assert.True(t, source.AudioEnabled())

	assert.False(t, m.ToggleVideo())
	assert.True(t, m.ToggleVideo())
	assert.True(t, source.VideoEnabled())

	state := m.State()
	assert.True(t, state.AudioEnabled)
	assert.True(t, state.VideoEnabled)
	assert.Equal(t, ConnStateNew, state.Conn)
}

func TestManagerScreenShareRequiresStartedCall(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	m, _ := newTestManager(t, relay, models.RoleTeacher)

	assert.ErrorIs(t, m.StartScreenShare(), ErrNoVideoSender)
}

func TestManagerBuffersOfferUntilStart(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	teacher, _ := newTestManager(t, relay, models.RoleTeacher)
	student, _ := newTestManager(t, relay, models.RoleStudent)

	toStudent, cancelS, err := relay.Endpoint(uuid.New()).Subscribe(context.Background())
	require.NoError(t, err)
	defer cancelS()
	toTeacher, cancelT, err := relay.Endpoint(uuid.New()).Subscribe(context.Background())
	require.NoError(t, err)
	defer cancelT()

	// The teacher confirms ready first: its offer lands while the student
	// is still in the waiting room.
	require.NoError(t, teacher.StartCall(context.Background()))
	offer := receiveType(t, toStudent, models.MessageTypeOffer)
	require.NoError(t, student.HandleSignal(context.Background(), offer))

	// The offer must survive until the student joins; the teacher never
	// re-sends it.
	require.NoError(t, student.StartCall(context.Background()))
	answer := receiveType(t, toTeacher, models.MessageTypeAnswer)
	require.NoError(t, teacher.HandleSignal(context.Background(), answer))
}

func TestManagerHandleSignalAfterClose(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	m, _ := newTestManager(t, relay, models.RoleStudent)
	require.NoError(t, m.Close())

	err := m.HandleSignal(context.Background(), signaling.Envelope{
		Type:    models.MessageTypeOffer,
		Payload: []byte(`{"sdp":"v=0"}`),
	})
	assert.ErrorIs(t, err, ErrCallNotStarted)
}

func TestManagerCallerSendsExactlyOneOffer(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	teacher, _ := newTestManager(t, relay, models.RoleTeacher)

	observer := relay.Endpoint(uuid.New())
	stream, cancel, err := observer.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, teacher.StartCall(context.Background()))
	require.NoError(t, teacher.StartCall(context.Background()))

	receiveType(t, stream, models.MessageTypeOffer)
	select {
	case env := <-stream:
		assert.NotEqual(t, models.MessageTypeOffer, env.Type, "second StartCall re-sent the offer")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestManagerCalleeDoesNotOffer(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	student, _ := newTestManager(t, relay, models.RoleStudent)

	observer := relay.Endpoint(uuid.New())
	stream, cancel, err := observer.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, student.StartCall(context.Background()))

	select {
	case env := <-stream:
		assert.NotEqual(t, models.MessageTypeOffer, env.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestManagerOfferAnswerHandshake(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	teacher, _ := newTestManager(t, relay, models.RoleTeacher)
	student, _ := newTestManager(t, relay, models.RoleStudent)

	// Each side also subscribes so the test can play the controller's
	// routing role by hand.
	teacherEye := relay.Endpoint(uuid.New())
	studentEye := relay.Endpoint(uuid.New())
	toStudent, cancelS, err := studentEye.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancelS()
	toTeacher, cancelT, err := teacherEye.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancelT()

	require.NoError(t, teacher.StartCall(context.Background()))
	offer := receiveType(t, toStudent, models.MessageTypeOffer)

	require.NoError(t, student.StartCall(context.Background()))
	require.NoError(t, student.HandleSignal(context.Background(), offer))

	answer := receiveType(t, toTeacher, models.MessageTypeAnswer)
	require.NoError(t, teacher.HandleSignal(context.Background(), answer))
}

func TestManagerBuffersEarlyICECandidates(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	student, _ := newTestManager(t, relay, models.RoleStudent)
	require.NoError(t, student.StartCall(context.Background()))

	// No remote description yet; the candidate must be held, not rejected.
	err := student.HandleSignal(context.Background(), signaling.Envelope{
		Type:    models.MessageTypeICECandidate,
		Payload: []byte(`{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host","sdpMid":"0"}`),
	})
	assert.NoError(t, err)
}

func TestManagerScreenShareSwapsVideoAndLeavesAudioAlone(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	teacher, source := newTestManager(t, relay, models.RoleTeacher)
	require.NoError(t, teacher.StartCall(context.Background()))

	camera, err := source.CameraTrack()
	require.NoError(t, err)
	audio, err := source.AudioTrack()
	require.NoError(t, err)
	require.True(t, teacher.videoSender.Track() == camera)

	require.NoError(t, teacher.StartScreenShare())
	screen, err := source.ScreenTrack()
	require.NoError(t, err)
	assert.True(t, teacher.videoSender.Track() == screen, "outgoing video must be the screen track")
	assert.True(t, teacher.audioSender.Track() == audio, "audio sender must be untouched")
	state := teacher.State()
	assert.True(t, state.ScreenSharing)
	assert.True(t, state.AudioEnabled)

	// Idempotent both ways, and stop puts the camera itself back, not a
	// fresh capture.
	require.NoError(t, teacher.StartScreenShare())
	require.NoError(t, teacher.StopScreenShare())
	require.NoError(t, teacher.StopScreenShare())
	assert.True(t, teacher.videoSender.Track() == camera, "camera track must be restored")
	assert.True(t, teacher.audioSender.Track() == audio)
	assert.False(t, teacher.State().ScreenSharing)
}

func TestManagerRecordingLifecycle(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	m, _ := newTestManager(t, relay, models.RoleStudent)

	var video, audio bytes.Buffer
	require.NoError(t, m.StartRecording(&video, &audio))
	assert.True(t, m.State().Recording)

	// Second start is a no-op, not a second recorder.
	require.NoError(t, m.StartRecording(&video, &audio))

	require.NoError(t, m.StopRecording())
	require.NoError(t, m.StopRecording())
	assert.False(t, m.State().Recording)
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	relay := NewMemoryRelay(uuid.New())
	m, _ := newTestManager(t, relay, models.RoleTeacher)
	require.NoError(t, m.StartCall(context.Background()))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.StartCall(context.Background()), ErrChannelClosed)
}

func TestMapConnState(t *testing.T) {
	cases := []struct {
		in   webrtc.PeerConnectionState
		want ConnState
	}{
		{webrtc.PeerConnectionStateNew, ConnStateNew},
		{webrtc.PeerConnectionStateConnecting, ConnStateConnecting},
		{webrtc.PeerConnectionStateConnected, ConnStateConnected},
		{webrtc.PeerConnectionStateDisconnected, ConnStateDisconnected},
		{webrtc.PeerConnectionStateFailed, ConnStateFailed},
		{webrtc.PeerConnectionStateClosed, ConnStateFailed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapConnState(tc.in), tc.in.String())
	}
}
