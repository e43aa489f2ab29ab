package callsignal

import (
	"errors"
	"testing"

	"github.com/BioHazard786/Warpchat/internal/protocol"
)

// loopback parses every sent control the way the peer would.
type loopback struct {
	received []protocol.Message
}

func (l *loopback) SendControl(c protocol.Control) error {
	b, err := protocol.EncodeControl(c)
	if err != nil {
		return err
	}
	l.received = append(l.received, protocol.Parse(b, true))
	return nil
}

func TestMuteToggleRoundTrip(t *testing.T) {
	wire := &loopback{}
	if err := NewNotifier(wire).MuteToggled(true); err != nil {
		t.Fatal(err)
	}

	ctrl, ok := wire.received[0].(protocol.Control)
	if !ok {
		t.Fatalf("peer parsed %T, want Control", wire.received[0])
	}
	ev, err := Route(ctrl)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if ev.Kind != PeerMuteToggled || !ev.Muted {
		t.Errorf("event = %+v, want mute-toggle muted=true", ev)
	}
}

func TestNotifierActions(t *testing.T) {
	wire := &loopback{}
	n := NewNotifier(wire)

	steps := []struct {
		send func() error
		want Event
	}{
		{func() error { return n.CallStarted(false) }, Event{Kind: PeerVoiceCallStarted}},
		{func() error { return n.CallStarted(true) }, Event{Kind: PeerVideoCallStarted}},
		{func() error { return n.CameraToggled(true) }, Event{Kind: PeerCameraToggled, CameraOff: true}},
		{func() error { return n.ScreenShareToggled(false) }, Event{Kind: PeerScreenShareToggled}},
		{n.CallEnded, Event{Kind: PeerCallEnded}},
	}

	for i, step := range steps {
		if err := step.send(); err != nil {
			t.Fatal(err)
		}
		ev, err := Route(wire.received[i].(protocol.Control))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev != step.want {
			t.Errorf("step %d: event = %+v, want %+v", i, ev, step.want)
		}
	}
}

func TestRouteRejectsUnknownAndIncomplete(t *testing.T) {
	if _, err := Route(protocol.Control{Action: "dance"}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Route(dance) = %v, want ErrUnknownAction", err)
	}
	if _, err := Route(protocol.Control{Action: protocol.ActionMuteToggle}); !errors.Is(err, ErrMissingPayload) {
		t.Errorf("Route(mute without payload) = %v, want ErrMissingPayload", err)
	}
}

func TestDescribe(t *testing.T) {
	ev := Event{Kind: PeerCameraToggled, CameraOff: true}
	if got := ev.Describe(); got != "Stranger turned their camera off" {
		t.Errorf("Describe = %q", got)
	}
}
