package protocol

import (
	"errors"
	"sync"

	"github.com/BioHazard786/Warpchat/internal/failure"
)

var ErrChannelNotOpen = errors.New("channel not open")

// Channel is the raw bidirectional, message-oriented channel a transport supplies.
type Channel interface {
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	Ready() bool
}

// Writer serializes every outbound frame of one session. Chunk reassembly
// relies on send order being arrival order, so no two frames may interleave.
type Writer struct {
	mu     sync.Mutex
	ch     Channel
	closed bool
}

func NewWriter(ch Channel) *Writer {
	return &Writer{ch: ch}
}

func (w *Writer) SendText(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.check("send text"); err != nil {
		return err
	}
	if err := w.ch.SendText(text); err != nil {
		return failure.Wrap("send text", failure.ErrSendFailure, err)
	}
	return nil
}

func (w *Writer) SendControl(c Control) error {
	b, err := EncodeControl(c)
	if err != nil {
		return failure.Wrap("encode control", failure.ErrSendFailure, err)
	}
	return w.sendFrame("send control", b)
}

func (w *Writer) SendFileMetadata(m FileMetadata) error {
	b, err := EncodeFileMetadata(m)
	if err != nil {
		return failure.Wrap("encode file metadata", failure.ErrSendFailure, err)
	}
	return w.sendFrame("send file metadata", b)
}

func (w *Writer) SendFileComplete() error {
	b, err := EncodeFileComplete()
	if err != nil {
		return failure.Wrap("encode file complete", failure.ErrSendFailure, err)
	}
	return w.sendFrame("send file complete", b)
}

func (w *Writer) SendChunk(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.check("send chunk"); err != nil {
		return err
	}
	if err := w.ch.Send(data); err != nil {
		return failure.Wrap("send chunk", failure.ErrSendFailure, err)
	}
	return nil
}

// BufferedAmount reports bytes queued on the channel but not yet sent.
func (w *Writer) BufferedAmount() uint64 {
	return w.ch.BufferedAmount()
}

// Close makes every later send fail. It does not close the channel.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *Writer) sendFrame(op string, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.check(op); err != nil {
		return err
	}
	if err := w.ch.SendText(string(b)); err != nil {
		return failure.Wrap(op, failure.ErrSendFailure, err)
	}
	return nil
}

func (w *Writer) check(op string) error {
	if w.closed || !w.ch.Ready() {
		return failure.Wrap(op, failure.ErrSendFailure, ErrChannelNotOpen)
	}
	return nil
}
