package signaling

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Negotiation kinds carried inside relayed tracker signals.
const (
	SignalOffer       = "offer"
	SignalAnswer      = "answer"
	SignalRenegotiate = "renegotiate"
)

// SignalPayload is what one peer relays to the other through the tracker.
// Candidates are inlined in SDP, so there is no separate candidate kind.
type SignalPayload struct {
	Type string `msgpack:"type"`
	SDP  string `msgpack:"sdp,omitempty"`
}

func encodeSignal(p SignalPayload) ([]byte, error) {
	return msgpack.Marshal(&p)
}

func decodeSignal(data []byte) (SignalPayload, error) {
	var p SignalPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode signal: %w", err)
	}
	switch p.Type {
	case SignalOffer, SignalAnswer:
		if p.SDP == "" {
			return p, fmt.Errorf("decode signal: %s without sdp", p.Type)
		}
	case SignalRenegotiate:
	default:
		return p, fmt.Errorf("decode signal: unknown type %q", p.Type)
	}
	return p, nil
}
