package session

import (
	"context"

	"github.com/BioHazard786/Warpchat/internal/transport"
)

// DirectTransport is a transport negotiated by pasting descriptions.
type DirectTransport interface {
	transport.Transport
	Offer(ctx context.Context) (string, error)
	Answer(ctx context.Context, offer string) (string, error)
	Accept(answer string) error
}

// Factory builds the transports a session runs on.
type Factory interface {
	Resolve() transport.Result
	NewDirect(h transport.Handlers) (DirectTransport, error)
	NewMatchmaking(h transport.Handlers) (transport.Transport, error)
}

type transportFactory struct {
	f *transport.Factory
}

// FromTransportFactory adapts the real transport factory.
func FromTransportFactory(f *transport.Factory) Factory {
	return transportFactory{f: f}
}

func (t transportFactory) Resolve() transport.Result {
	return t.f.Resolve()
}

func (t transportFactory) NewDirect(h transport.Handlers) (DirectTransport, error) {
	d, err := t.f.Direct(h)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (t transportFactory) NewMatchmaking(h transport.Handlers) (transport.Transport, error) {
	m, err := t.f.Matchmaking(h)
	if err != nil {
		return nil, err
	}
	return m, nil
}
