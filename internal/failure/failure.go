package failure

import (
	"errors"
	"fmt"
)

var (
	ErrMediaAccessDenied    = errors.New("media access denied")
	ErrSignaling            = errors.New("session description failed")
	ErrSignalingParse       = errors.New("malformed session description")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrSendFailure          = errors.New("send failed")
	ErrPeerDisconnected     = errors.New("peer disconnected")
	ErrFileTransferAborted  = errors.New("file transfer aborted")
	ErrInvalidState         = errors.New("invalid state")
	ErrTimeout              = errors.New("timeout")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrMediaAccessDenied, "MediaAccessDenied"},
	{ErrSignalingParse, "SignalingParseError"},
	{ErrSignaling, "SignalingError"},
	{ErrTransportUnavailable, "TransportUnavailable"},
	{ErrSendFailure, "SendFailure"},
	{ErrPeerDisconnected, "PeerDisconnected"},
	{ErrFileTransferAborted, "FileTransferAborted"},
	{ErrInvalidState, "InvalidState"},
	{ErrTimeout, "Timeout"},
}

// Error ties a failure kind to the operation that hit it and the underlying cause.
type Error struct {
	Op      string
	Kind    error
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func New(op string, kind error) *Error {
	return &Error{Op: op, Kind: kind}
}

func Wrap(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func WrapDetails(op string, kind error, details string) *Error {
	return &Error{Op: op, Kind: kind, Details: details}
}

// KindOf returns the taxonomy name carried by err, or "Unknown".
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}
