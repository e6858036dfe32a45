package call

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// MediaSource supplies the local tracks the peer connection publishes.
// Implementations own device capture; the call core only asks for tracks
// and flips mute flags. A headless implementation backs the tests and the
// loopback command.
type MediaSource interface {
	AudioTrack() (webrtc.TrackLocal, error)
	CameraTrack() (webrtc.TrackLocal, error)
	// ScreenTrack acquires the screen capture track. Called lazily, only
	// when screen share starts.
	ScreenTrack() (webrtc.TrackLocal, error)
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	Close() error
}

var ErrSourceClosed = errors.New("media source closed")

// StaticSource is a MediaSource built on sample-fed static tracks. Nothing
// pushes samples into it by itself, which is exactly what headless runs and
// tests need: real webrtc.TrackLocal values without a device stack.
type StaticSource struct {
	mu           sync.Mutex
	audio        *webrtc.TrackLocalStaticSample
	camera       *webrtc.TrackLocalStaticSample
	screen       *webrtc.TrackLocalStaticSample
	audioEnabled bool
	videoEnabled bool
	closed       bool
}

func NewStaticSource() *StaticSource {
	return &StaticSource{audioEnabled: true, videoEnabled: true}
}

func (s *StaticSource) AudioTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.audio == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "extraclasses-audio",
		)
		if err != nil {
			return nil, err
		}
		s.audio = track
	}
	return s.audio, nil
}

func (s *StaticSource) CameraTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.camera == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "extraclasses-camera",
		)
		if err != nil {
			return nil, err
		}
		s.camera = track
	}
	return s.camera, nil
}

func (s *StaticSource) ScreenTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.screen == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"screen", "extraclasses-screen",
		)
		if err != nil {
			return nil, err
		}
		s.screen = track
	}
	return s.screen, nil
}

func (s *StaticSource) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	s.audioEnabled = enabled
	s.mu.Unlock()
}

func (s *StaticSource) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	s.videoEnabled = enabled
	s.mu.Unlock()
}

// AudioEnabled reports the current mute flag. Test hook; production callers
// read state from the Manager.
func (s *StaticSource) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioEnabled
}

func (s *StaticSource) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoEnabled
}

func (s *StaticSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
