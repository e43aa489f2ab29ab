package callsignal

import "github.com/BioHazard786/Warpchat/internal/protocol"

// ControlSender is the outbound side of the message protocol.
type ControlSender interface {
	SendControl(protocol.Control) error
}

// Notifier tells the peer about a local call or media toggle. Call it right
// after the local effect has been applied.
type Notifier struct {
	out ControlSender
}

func NewNotifier(out ControlSender) *Notifier {
	return &Notifier{out: out}
}

func (n *Notifier) CallStarted(video bool) error {
	action := protocol.ActionVoiceCallStart
	if video {
		action = protocol.ActionVideoCallStart
	}
	return n.out.SendControl(protocol.Control{Action: action})
}

func (n *Notifier) CallEnded() error {
	return n.out.SendControl(protocol.Control{Action: protocol.ActionCallEnd})
}

func (n *Notifier) MuteToggled(muted bool) error {
	return n.out.SendControl(protocol.NewMuteToggle(muted))
}

func (n *Notifier) CameraToggled(cameraOff bool) error {
	return n.out.SendControl(protocol.NewCameraToggle(cameraOff))
}

func (n *Notifier) ScreenShareToggled(sharing bool) error {
	return n.out.SendControl(protocol.NewScreenShareToggle(sharing))
}
