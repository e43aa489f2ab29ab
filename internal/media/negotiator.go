package media

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	pion "github.com/pion/webrtc/v4"
)

var ErrNoLocalTrack = errors.New("no local track of that kind")

// Surface is the media side of the active transport.
type Surface interface {
	Capabilities() rtc.Capabilities
	HasSender(kind pion.RTPCodecType) bool
	AttachMedia(tracks ...pion.TrackLocal) error
	ReplaceMedia(kind pion.RTPCodecType, track pion.TrackLocal) error
	DetachMedia(kind pion.RTPCodecType) error
}

// Negotiator owns the session's local tracks and keeps the transport's
// senders in line with them. Every operation is best-effort per kind: one
// kind failing never stops the others from being stopped or released.
type Negotiator struct {
	surface Surface
	source  Source
	logger  *slog.Logger

	audio  *rtc.LocalTrack
	camera *rtc.LocalTrack
	screen *rtc.LocalTrack

	inCall bool

	onScreenEnded func()
}

// NewNegotiator wires a negotiator to surface. onScreenEnded runs when the
// capture source ends a screen share by itself; the caller should respond
// with StopScreenShare.
func NewNegotiator(surface Surface, source Source, logger *slog.Logger, onScreenEnded func()) *Negotiator {
	return &Negotiator{
		surface:       surface,
		source:        source,
		logger:        logger.With("component", "media"),
		onScreenEnded: onScreenEnded,
	}
}

// AttachInitial captures and attaches the media enabled at session start.
func (n *Negotiator) AttachInitial(ctx context.Context, audio, video bool) error {
	var errs []error
	if audio {
		errs = append(errs, n.ensureAudio(ctx))
	}
	if video {
		errs = append(errs, n.ensureCamera(ctx))
	}
	return errors.Join(errs...)
}

// StartCall makes sure a microphone track, and a camera track for video
// calls, are on the wire.
func (n *Negotiator) StartCall(ctx context.Context, video bool) error {
	errs := []error{n.ensureAudio(ctx)}
	if video {
		errs = append(errs, n.ensureCamera(ctx))
	}
	err := errors.Join(errs...)
	if n.audio != nil || n.camera != nil {
		n.inCall = true
	}
	return err
}

// EndCall stops every local track and clears the senders.
func (n *Negotiator) EndCall() error {
	var errs []error

	if n.screen != nil {
		n.screen.Stop()
		n.screen = nil
	}
	for _, t := range []*rtc.LocalTrack{n.audio, n.camera} {
		if t != nil {
			t.Stop()
		}
	}

	if n.audio != nil {
		errs = append(errs, n.clear(pion.RTPCodecTypeAudio))
	}
	if n.camera != nil || n.surface.HasSender(pion.RTPCodecTypeVideo) {
		errs = append(errs, n.clear(pion.RTPCodecTypeVideo))
	}

	n.audio = nil
	n.camera = nil
	n.inCall = false
	return errors.Join(errs...)
}

// ToggleMute flips the microphone and returns the new muted state.
func (n *Negotiator) ToggleMute() (bool, error) {
	if n.audio == nil {
		return false, failure.Wrap("toggle mute", failure.ErrInvalidState, ErrNoLocalTrack)
	}
	n.audio.SetEnabled(!n.audio.Enabled())
	return !n.audio.Enabled(), nil
}

// ToggleCamera flips the camera and returns whether it is now off.
func (n *Negotiator) ToggleCamera() (bool, error) {
	if n.camera == nil {
		return false, failure.Wrap("toggle camera", failure.ErrInvalidState, ErrNoLocalTrack)
	}
	n.camera.SetEnabled(!n.camera.Enabled())
	return !n.camera.Enabled(), nil
}

// StartScreenShare puts a screen track on the video line. The camera track
// is kept so StopScreenShare can put it back.
func (n *Negotiator) StartScreenShare(ctx context.Context) error {
	if n.screen != nil {
		return nil
	}

	screen, err := n.source.Capture(ctx, rtc.KindScreen)
	if err != nil {
		return err
	}

	if err := n.put(screen); err != nil {
		screen.Stop()
		return err
	}

	screen.OnEnded(n.onScreenEnded)
	n.screen = screen
	return nil
}

// StopScreenShare restores the camera track, or clears the video line when
// there is none, and stops the screen track.
func (n *Negotiator) StopScreenShare() error {
	if n.screen == nil {
		return nil
	}

	var err error
	if n.camera != nil && !n.camera.Stopped() {
		err = n.put(n.camera)
	} else {
		err = n.clear(pion.RTPCodecTypeVideo)
	}

	n.screen.Stop()
	n.screen = nil
	return err
}

// Release stops every owned track. It does not touch the transport, which
// is being closed by the caller.
func (n *Negotiator) Release() {
	for _, t := range []*rtc.LocalTrack{n.audio, n.camera, n.screen} {
		if t != nil {
			t.Stop()
		}
	}
	n.audio, n.camera, n.screen = nil, nil, nil
	n.inCall = false
}

func (n *Negotiator) InCall() bool  { return n.inCall }
func (n *Negotiator) Sharing() bool { return n.screen != nil }

func (n *Negotiator) Muted() bool {
	return n.audio != nil && !n.audio.Enabled()
}

func (n *Negotiator) CameraOff() bool {
	return n.camera != nil && !n.camera.Enabled()
}

// Tracks lists the live local tracks.
func (n *Negotiator) Tracks() []*rtc.LocalTrack {
	var tracks []*rtc.LocalTrack
	for _, t := range []*rtc.LocalTrack{n.audio, n.camera, n.screen} {
		if t != nil {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

func (n *Negotiator) ensureAudio(ctx context.Context) error {
	if n.audio != nil {
		return nil
	}
	track, err := n.source.Capture(ctx, rtc.KindAudio)
	if err != nil {
		n.logger.Warn("microphone unavailable", "error", err)
		return err
	}
	if err := n.put(track); err != nil {
		track.Stop()
		return err
	}
	n.audio = track
	return nil
}

func (n *Negotiator) ensureCamera(ctx context.Context) error {
	if n.camera != nil {
		return nil
	}
	track, err := n.source.Capture(ctx, rtc.KindVideo)
	if err != nil {
		n.logger.Warn("camera unavailable", "error", err)
		return err
	}
	// A running screen share keeps the video line; the camera waits.
	if n.screen == nil {
		if err := n.put(track); err != nil {
			track.Stop()
			return err
		}
	}
	n.camera = track
	return nil
}

// put adds the track when no sender of its kind exists and replaces the
// sender's track otherwise.
func (n *Negotiator) put(t *rtc.LocalTrack) error {
	kind := t.Kind().RTPKind()

	if !n.surface.HasSender(kind) {
		if err := n.surface.AttachMedia(t.Track()); err != nil {
			return failure.Wrap("attach "+t.Kind().String(), failure.ErrSendFailure, err)
		}
		return nil
	}

	if n.surface.Capabilities().ReplaceTrack {
		if err := n.surface.ReplaceMedia(kind, t.Track()); err != nil {
			return failure.Wrap("replace "+t.Kind().String(), failure.ErrSendFailure, err)
		}
		return nil
	}

	if err := n.surface.DetachMedia(kind); err != nil {
		return failure.Wrap("detach "+kind.String(), failure.ErrSendFailure, err)
	}
	if err := n.surface.AttachMedia(t.Track()); err != nil {
		return failure.Wrap("attach "+t.Kind().String(), failure.ErrSendFailure, err)
	}
	return nil
}

func (n *Negotiator) clear(kind pion.RTPCodecType) error {
	if !n.surface.HasSender(kind) {
		return nil
	}

	var err error
	if n.surface.Capabilities().ReplaceTrack {
		err = n.surface.ReplaceMedia(kind, nil)
	} else {
		err = n.surface.DetachMedia(kind)
	}
	if err != nil {
		return failure.Wrap("clear "+kind.String(), failure.ErrSendFailure, err)
	}
	return nil
}
