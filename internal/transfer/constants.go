package transfer

import "time"

const (
	// ChunkSize is the fixed size of every binary chunk but the last.
	ChunkSize = 16 * 1024

	// BufferThreshold is the buffered-bytes level above which the send loop
	// pauses. It may be exceeded by up to one chunk.
	BufferThreshold = 64 * 1024

	PollInterval = 50 * time.Millisecond
	SettleDelay  = 100 * time.Millisecond
	StallTimeout = 60 * time.Second
)

// Direction of the session's file transfer. Never both at once.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionSending
	DirectionReceiving
)

func (d Direction) String() string {
	switch d {
	case DirectionSending:
		return "sending"
	case DirectionReceiving:
		return "receiving"
	default:
		return "none"
	}
}
