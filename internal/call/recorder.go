package call

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Recorder captures the remote participant's media to IVF (video) and Ogg
// (audio) containers. It never starts itself; the manager feeds it RTP only
// while recording is on.
type Recorder struct {
	mu    sync.Mutex
	video *ivfwriter.IVFWriter
	audio *oggwriter.OggWriter
	open  bool
}

// NewRecorder writes video to vw and audio to aw. Either writer may be nil
// to record one kind only.
func NewRecorder(vw, aw io.Writer) (*Recorder, error) {
	r := &Recorder{open: true}
	if vw != nil {
		w, err := ivfwriter.NewWith(vw)
		if err != nil {
			return nil, err
		}
		r.video = w
	}
	if aw != nil {
		w, err := oggwriter.NewWith(aw, 48000, 2)
		if err != nil {
			return nil, err
		}
		r.audio = w
	}
	return r, nil
}

var errRecorderClosed = errors.New("recorder closed")

// WriteRTP routes one packet to the container matching the track kind.
// Packets for kinds without a writer are dropped.
func (r *Recorder) WriteRTP(kind webrtc.RTPCodecType, pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return errRecorderClosed
	}
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		if r.video != nil {
			return r.video.WriteRTP(pkt)
		}
	case webrtc.RTPCodecTypeAudio:
		if r.audio != nil {
			return r.audio.WriteRTP(pkt)
		}
	}
	return nil
}

// Close finalizes both containers. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil
	}
	r.open = false

	var first error
	if r.video != nil {
		if err := r.video.Close(); err != nil {
			first = err
		}
	}
	if r.audio != nil {
		if err := r.audio.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
