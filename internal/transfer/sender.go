package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/protocol"
)

// ChunkWriter is the framed outbound side of a channel, normally a
// *protocol.Writer.
type ChunkWriter interface {
	SendFileMetadata(protocol.FileMetadata) error
	SendChunk(data []byte) error
	SendFileComplete() error
	BufferedAmount() uint64
}

// File is one outbound file. Reader must yield exactly Size bytes.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}

type Sender struct {
	w      ChunkWriter
	logger *slog.Logger

	ChunkSize    int
	Threshold    uint64
	PollInterval time.Duration
	SettleDelay  time.Duration
	StallTimeout time.Duration

	onProgress ProgressFunc
}

func NewSender(w ChunkWriter, logger *slog.Logger, onProgress ProgressFunc) *Sender {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	return &Sender{
		w:            w,
		logger:       logger.With("component", "transfer.sender"),
		ChunkSize:    ChunkSize,
		Threshold:    BufferThreshold,
		PollInterval: PollInterval,
		SettleDelay:  SettleDelay,
		StallTimeout: StallTimeout,
		onProgress:   onProgress,
	}
}

// Send streams f as metadata, ordered chunks, then a completion frame. Any
// failure aborts the transfer; nothing is retried.
func (s *Sender) Send(ctx context.Context, f File) error {
	meta := protocol.FileMetadata{Name: f.Name, Size: f.Size, MimeType: f.MimeType}
	if err := s.w.SendFileMetadata(meta); err != nil {
		return s.abort(f.Name, "send metadata", err)
	}

	if err := sleepCtx(ctx, s.SettleDelay); err != nil {
		return s.abort(f.Name, "send metadata", err)
	}

	var sent int64
	for sent < f.Size {
		if err := s.waitForWindow(ctx); err != nil {
			return s.abort(f.Name, "wait for window", err)
		}

		n := int64(s.ChunkSize)
		if remaining := f.Size - sent; remaining < n {
			n = remaining
		}

		chunk := make([]byte, n)
		if _, err := io.ReadFull(f.Reader, chunk); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				err = ErrShortRead
			}
			return s.abort(f.Name, "read chunk", err)
		}

		if err := s.w.SendChunk(chunk); err != nil {
			return s.abort(f.Name, "send chunk", err)
		}

		sent += n
		s.onProgress(Percent(sent, f.Size))
	}

	if f.Size == 0 {
		s.onProgress(100)
	}

	if err := s.w.SendFileComplete(); err != nil {
		return s.abort(f.Name, "send complete", err)
	}

	s.logger.Debug("file sent", "name", f.Name, "size", f.Size, "chunks", ChunkCount(f.Size))
	return nil
}

// waitForWindow polls until the channel's buffered amount drops to the
// threshold. A buffer that stops draining for StallTimeout is an error.
func (s *Sender) waitForWindow(ctx context.Context) error {
	buffered := s.w.BufferedAmount()
	if buffered <= s.Threshold {
		return nil
	}

	lastProgress := time.Now()
	for buffered > s.Threshold {
		if err := sleepCtx(ctx, s.PollInterval); err != nil {
			return err
		}

		now := s.w.BufferedAmount()
		if now < buffered {
			lastProgress = time.Now()
		} else if s.StallTimeout > 0 && time.Since(lastProgress) > s.StallTimeout {
			return WrapError("send", ErrBufferTimeout, "buffer not draining")
		}
		buffered = now
	}
	return nil
}

func (s *Sender) abort(name, op string, err error) error {
	if errors.Is(err, context.Canceled) {
		err = ErrTransferCancelled
	}
	s.logger.Warn("file send aborted", "name", name, "op", op, "error", err)
	return failure.Wrap("send file", failure.ErrFileTransferAborted, NewFileError(op, name, err))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
