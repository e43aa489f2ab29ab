package tracker

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message is the envelope of every tracker frame. Frames are msgpack
// encoded and travel as websocket binary messages.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`

	// client is the connection the message arrived on. Only the hub uses it.
	client *Client `msgpack:"-"`
}

// Message types.
const (
	TypeAnnounce = "announce"
	TypeSignal   = "signal"
	TypeLeave    = "leave"

	TypePeer     = "peer"
	TypePeerLeft = "peer_left"
	TypeWarning  = "warning"
	TypeError    = "error"
)

// Announce asks the tracker to pair this client inside a swarm.
type Announce struct {
	Swarm  string `msgpack:"swarm"`
	PeerID string `msgpack:"peerId"`
}

// Signal carries opaque negotiation data between paired peers. Clients
// fill To; the tracker replaces it with From when relaying.
type Signal struct {
	To   string `msgpack:"to,omitempty"`
	From string `msgpack:"from,omitempty"`
	Data []byte `msgpack:"data"`
}

// PeerFound tells a client who it was paired with. Exactly one side of a
// pair is the initiator.
type PeerFound struct {
	PeerID    string `msgpack:"peerId"`
	Initiator bool   `msgpack:"initiator"`
}

type PeerLeft struct {
	PeerID string `msgpack:"peerId"`
}

// Notice is the payload of warning and error frames.
type Notice struct {
	Message string `msgpack:"message"`
}

// Encode builds a frame. A nil payload produces a frame with only a type.
func Encode(typ string, payload any) ([]byte, error) {
	msg := Message{Type: typ}
	if payload != nil {
		raw, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		msg.Payload = raw
	}
	return msgpack.Marshal(&msg)
}

// Decode parses a frame envelope. The payload stays raw until DecodePayload.
func Decode(frame []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &msg, nil
}

// DecodePayload unpacks the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", m.Type)
	}
	if err := msgpack.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s payload: %w", m.Type, err)
	}
	return nil
}
