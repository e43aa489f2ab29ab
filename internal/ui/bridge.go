package ui

import (
	"sync"

	"github.com/BioHazard786/Warpchat/internal/callsignal"
	"github.com/BioHazard786/Warpchat/internal/session"
	"github.com/BioHazard786/Warpchat/internal/transfer"
	tea "github.com/charmbracelet/bubbletea"
	pion "github.com/pion/webrtc/v4"
)

type (
	stateMsg       struct{ state session.State }
	descriptionMsg struct{ sdpType, text string }
	chatMsg        struct{ text string }
	callMsg        struct{ event callsignal.Event }
	fileMsg        struct{ artifact transfer.Artifact }
	trackMsg       struct{ kind pion.RTPCodecType }
	errorMsg       struct{ err error }

	progressMsg struct {
		dir     transfer.Direction
		name    string
		percent int
	}
)

// Bridge turns supervisor callbacks into messages for the chat screen.
// Progress updates are dropped when the screen falls behind; everything
// else waits for it.
type Bridge struct {
	msgs chan tea.Msg
	done chan struct{}
	once sync.Once
}

var _ session.Listener = (*Bridge)(nil)

func NewBridge() *Bridge {
	return &Bridge{
		msgs: make(chan tea.Msg, 256),
		done: make(chan struct{}),
	}
}

// Messages is read by the chat model.
func (b *Bridge) Messages() <-chan tea.Msg { return b.msgs }

// Close releases any callback still waiting for the screen.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	case <-b.done:
	}
}

func (b *Bridge) StateChanged(st session.State) { b.push(stateMsg{st}) }

func (b *Bridge) LocalDescription(sdpType, text string) {
	b.push(descriptionMsg{sdpType: sdpType, text: text})
}

func (b *Bridge) ChatReceived(text string)         { b.push(chatMsg{text}) }
func (b *Bridge) CallEvent(ev callsignal.Event)    { b.push(callMsg{ev}) }
func (b *Bridge) FileReceived(a transfer.Artifact) { b.push(fileMsg{a}) }
func (b *Bridge) RemoteTrack(t *pion.TrackRemote)  { b.push(trackMsg{t.Kind()}) }
func (b *Bridge) Error(err error)                  { b.push(errorMsg{err}) }

func (b *Bridge) TransferProgress(dir transfer.Direction, name string, percent int) {
	select {
	case b.msgs <- progressMsg{dir: dir, name: name, percent: percent}:
	default:
	}
}
