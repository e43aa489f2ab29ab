package rtc

import (
	"errors"
	"sync"
	"sync/atomic"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaKind is the source of a local track. Screen tracks travel on the
// video line.
type MediaKind int

const (
	KindAudio MediaKind = iota
	KindVideo
	KindScreen
)

func (k MediaKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// RTPKind is the media line the kind is sent on.
func (k MediaKind) RTPKind() pion.RTPCodecType {
	if k == KindAudio {
		return pion.RTPCodecTypeAudio
	}
	return pion.RTPCodecTypeVideo
}

var ErrTrackStopped = errors.New("track stopped")

// LocalTrack is a sample-fed outbound track with enable and stop semantics.
// Samples written while disabled are dropped, so the peer sees silence or a
// frozen frame rather than a renegotiation.
type LocalTrack struct {
	kind    MediaKind
	track   *pion.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	onEnded func()
}

func NewLocalTrack(kind MediaKind, streamID string) (*LocalTrack, error) {
	codec := pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}
	if kind == KindAudio {
		codec = pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}
	}

	track, err := pion.NewTrackLocalStaticSample(codec, kind.String(), streamID)
	if err != nil {
		return nil, err
	}

	t := &LocalTrack{kind: kind, track: track}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) Kind() MediaKind {
	return t.kind
}

func (t *LocalTrack) Track() pion.TrackLocal {
	return t.track
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *LocalTrack) Stopped() bool {
	return t.stopped.Load()
}

// OnEnded registers f to run when the source ends the track.
func (t *LocalTrack) OnEnded(f func()) {
	t.mu.Lock()
	t.onEnded = f
	t.mu.Unlock()
}

func (t *LocalTrack) WriteSample(s media.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(s)
}

// Stop ends the track from our side. It never fires the ended callback.
func (t *LocalTrack) Stop() {
	t.stopped.Store(true)
}

// End is called by the capture source when the track ends on its own, for
// example when the user stops a screen share from the system picker. Only
// the first stop, from either side, counts.
func (t *LocalTrack) End() {
	if !t.stopped.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	f := t.onEnded
	t.mu.Unlock()
	if f != nil {
		f()
	}
}

// Capabilities tells the media layer which sender operations a transport
// supports, so it never has to inspect the transport's concrete type.
type Capabilities struct {
	// ReplaceTrack swaps a sender's track in place, without renegotiation.
	ReplaceTrack bool
	// AddRemoveTrack adds and removes senders and renegotiates.
	AddRemoveTrack bool
}
