package session

import (
	"github.com/BioHazard786/Warpchat/internal/callsignal"
	"github.com/BioHazard786/Warpchat/internal/transfer"
	pion "github.com/pion/webrtc/v4"
)

// Listener receives everything the user should see. Methods are called from
// the supervisor loop and from the file sender; they must not block and
// must not call back into the supervisor.
type Listener interface {
	StateChanged(State)

	// LocalDescription hands over offer or answer text for manual exchange.
	LocalDescription(sdpType, text string)

	ChatReceived(text string)
	CallEvent(callsignal.Event)
	TransferProgress(dir transfer.Direction, name string, percent int)
	FileReceived(transfer.Artifact)
	RemoteTrack(track *pion.TrackRemote)
	Error(err error)
}

// NopListener ignores everything. Embed it to implement only some methods.
type NopListener struct{}

func (NopListener) StateChanged(State) {}
func (NopListener) LocalDescription(string, string) {}
func (NopListener) ChatReceived(string) {}
func (NopListener) CallEvent(callsignal.Event) {}
func (NopListener) TransferProgress(transfer.Direction, string, int) {}
func (NopListener) FileReceived(transfer.Artifact) {}
func (NopListener) RemoteTrack(*pion.TrackRemote) {}
func (NopListener) Error(error) {}
