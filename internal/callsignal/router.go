package callsignal

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Warpchat/internal/protocol"
)

var (
	ErrUnknownAction  = errors.New("unknown control action")
	ErrMissingPayload = errors.New("control action missing its payload")
)

// EventKind is what the peer did.
type EventKind int

const (
	PeerVoiceCallStarted EventKind = iota + 1
	PeerVideoCallStarted
	PeerCallEnded
	PeerMuteToggled
	PeerCameraToggled
	PeerScreenShareToggled
)

func (k EventKind) String() string {
	switch k {
	case PeerVoiceCallStarted:
		return "voice call started"
	case PeerVideoCallStarted:
		return "video call started"
	case PeerCallEnded:
		return "call ended"
	case PeerMuteToggled:
		return "mute toggled"
	case PeerCameraToggled:
		return "camera toggled"
	case PeerScreenShareToggled:
		return "screen share toggled"
	default:
		return "unknown"
	}
}

// Event mirrors a toggle on the peer's side. It never implies a local action.
type Event struct {
	Kind      EventKind
	Muted     bool
	CameraOff bool
	Sharing   bool
}

// Describe renders the event as a status line.
func (e Event) Describe() string {
	switch e.Kind {
	case PeerVoiceCallStarted:
		return "Stranger started a voice call"
	case PeerVideoCallStarted:
		return "Stranger started a video call"
	case PeerCallEnded:
		return "Stranger ended the call"
	case PeerMuteToggled:
		if e.Muted {
			return "Stranger muted their microphone"
		}
		return "Stranger unmuted their microphone"
	case PeerCameraToggled:
		if e.CameraOff {
			return "Stranger turned their camera off"
		}
		return "Stranger turned their camera on"
	case PeerScreenShareToggled:
		if e.Sharing {
			return "Stranger is sharing their screen"
		}
		return "Stranger stopped sharing their screen"
	default:
		return "Stranger sent an unknown signal"
	}
}

// Route translates one inbound control message. It is a pure mapping.
func Route(c protocol.Control) (Event, error) {
	switch c.Action {
	case protocol.ActionVoiceCallStart:
		return Event{Kind: PeerVoiceCallStarted}, nil
	case protocol.ActionVideoCallStart:
		return Event{Kind: PeerVideoCallStarted}, nil
	case protocol.ActionCallEnd:
		return Event{Kind: PeerCallEnded}, nil
	case protocol.ActionMuteToggle:
		if c.Muted == nil {
			return Event{}, fmt.Errorf("%s: %w", c.Action, ErrMissingPayload)
		}
		return Event{Kind: PeerMuteToggled, Muted: *c.Muted}, nil
	case protocol.ActionCameraToggle:
		if c.CameraOff == nil {
			return Event{}, fmt.Errorf("%s: %w", c.Action, ErrMissingPayload)
		}
		return Event{Kind: PeerCameraToggled, CameraOff: *c.CameraOff}, nil
	case protocol.ActionScreenShareToggle:
		if c.Sharing == nil {
			return Event{}, fmt.Errorf("%s: %w", c.Action, ErrMissingPayload)
		}
		return Event{Kind: PeerScreenShareToggled, Sharing: *c.Sharing}, nil
	default:
		return Event{}, fmt.Errorf("%q: %w", c.Action, ErrUnknownAction)
	}
}
