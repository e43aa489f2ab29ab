// Package transport hides how a session reaches its peer. Both
// implementations expose the same data channel and media surface.
package transport

import (
	"context"
	"errors"

	"github.com/BioHazard786/Warpchat/internal/protocol"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	pion "github.com/pion/webrtc/v4"
)

var (
	ErrClosed      = errors.New("transport closed")
	ErrNotBound    = errors.New("no peer bound yet")
	ErrUnsupported = errors.New("not supported by this transport")
)

// Kind is how a transport finds its peer.
type Kind int

const (
	KindDirect Kind = iota
	KindMatchmaking
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindMatchmaking:
		return "matchmaking"
	default:
		return "unknown"
	}
}

// State is the transport's connection state.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lost reports whether the state ends the session.
func (s State) Lost() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

func fromPeerState(s pion.PeerConnectionState) State {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return StateConnecting
	case pion.PeerConnectionStateConnected:
		return StateConnected
	case pion.PeerConnectionStateDisconnected:
		return StateDisconnected
	case pion.PeerConnectionStateFailed:
		return StateFailed
	case pion.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

// Handlers are bound when a transport is built. They run on transport
// goroutines and must not block.
type Handlers struct {
	OnStateChange  func(State)
	OnMessage      func(payload []byte, isText bool)
	OnChannelOpen  func()
	OnChannelClose func()
	OnTrack        func(*pion.TrackRemote)
}

// Transport is one connection attempt to one peer.
type Transport interface {
	Kind() Kind

	// Open blocks until the data channel is open and returns it.
	Open(ctx context.Context) (protocol.Channel, error)

	Send(data []byte) error
	SendText(text string) error
	State() State

	// Close releases everything. It is idempotent and never fires handlers.
	Close() error

	AttachMedia(tracks ...pion.TrackLocal) error
	ReplaceMedia(kind pion.RTPCodecType, track pion.TrackLocal) error
	DetachMedia(kind pion.RTPCodecType) error
	HasSender(kind pion.RTPCodecType) bool
	Capabilities() rtc.Capabilities
}
