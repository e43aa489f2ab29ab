// Package session runs the one active peer session: transport setup, the
// message protocol on its channel, file transfers, and call media.
package session

import (
	"context"

	"github.com/BioHazard786/Warpchat/internal/callsignal"
	"github.com/BioHazard786/Warpchat/internal/media"
	"github.com/BioHazard786/Warpchat/internal/protocol"
	"github.com/BioHazard786/Warpchat/internal/transfer"
	"github.com/BioHazard786/Warpchat/internal/transport"
)

// State is where the session is in its lifecycle.
type State int32

const (
	Idle State = iota
	Offering
	AwaitingRemote
	Matching
	Connecting
	Connected
	Disconnected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case AwaitingRemote:
		return "awaiting remote"
	case Matching:
		return "matching"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Mode is how the session finds its peer.
type Mode int32

const (
	ModeDirect Mode = iota
	ModeMatchmaking
)

func (m Mode) String() string {
	if m == ModeMatchmaking {
		return "matchmaking"
	}
	return "direct"
}

// Session is the state of one peer engagement. Only the supervisor loop
// reads or writes it.
type Session struct {
	ID    uint64
	Mode  Mode
	State State

	transport transport.Transport
	direct    DirectTransport

	writer     *protocol.Writer
	notifier   *callsignal.Notifier
	negotiator *media.Negotiator
	receiver   *transfer.Receiver

	direction  transfer.Direction
	cancelSend context.CancelFunc
	cancelOpen context.CancelFunc
}

// Stats counts what moved over every session since the supervisor started.
type Stats struct {
	MessagesSent     int
	MessagesReceived int
	FilesSent        int
	FilesReceived    int
	BytesSent        int64
	BytesReceived    int64
	Sessions         int
}
