package transfer

import (
	"bytes"
	"log/slog"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/protocol"
)

// Receiver reassembles one inbound file at a time. It is owned by a single
// goroutine and does no locking of its own.
type Receiver struct {
	logger     *slog.Logger
	onProgress ProgressFunc

	receiving bool
	meta      protocol.FileMetadata
	chunks    [][]byte
	received  int64
}

func NewReceiver(logger *slog.Logger, onProgress ProgressFunc) *Receiver {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	return &Receiver{
		logger:     logger.With("component", "transfer.receiver"),
		onProgress: onProgress,
	}
}

// HandleMetadata starts a new receive, dropping anything buffered so far.
func (r *Receiver) HandleMetadata(meta protocol.FileMetadata) {
	if r.receiving {
		r.logger.Warn("metadata while receiving, restarting", "previous", r.meta.Name, "next", meta.Name)
	}
	if meta.MimeType == "" {
		meta.MimeType = protocol.DefaultMimeType
	}
	r.receiving = true
	r.meta = meta
	r.chunks = nil
	r.received = 0
}

// HandleChunk appends one chunk. Chunks outside a receive return
// ErrUnexpectedChunk and change nothing.
func (r *Receiver) HandleChunk(data []byte) error {
	if !r.receiving {
		return NewError("receive chunk", ErrUnexpectedChunk)
	}

	if r.received+int64(len(data)) > r.meta.Size {
		name := r.meta.Name
		r.reset()
		return failure.Wrap("receive file", failure.ErrFileTransferAborted, NewFileError("receive chunk", name, ErrSizeExceeded))
	}

	r.chunks = append(r.chunks, data)
	r.received += int64(len(data))
	r.onProgress(Percent(r.received, r.meta.Size))
	return nil
}

// HandleComplete concatenates the buffered chunks. It reports false when no
// receive is in progress, in which case the completion is ignored.
func (r *Receiver) HandleComplete() (Artifact, bool) {
	if !r.receiving {
		r.logger.Debug("file complete while not receiving, ignored")
		return Artifact{}, false
	}

	if r.received != r.meta.Size {
		r.logger.Warn("file completed short", "name", r.meta.Name, "received", r.received, "size", r.meta.Size)
	}

	art := Artifact{
		Name:     r.meta.Name,
		MimeType: r.meta.MimeType,
		Data:     bytes.Join(r.chunks, nil),
	}
	if r.meta.Size == 0 {
		r.onProgress(100)
	}
	r.reset()
	return art, true
}

// Abort discards partial data. It reports whether a receive was in progress.
func (r *Receiver) Abort() bool {
	was := r.receiving
	if was {
		r.logger.Info("partial file discarded", "name", r.meta.Name, "received", r.received, "size", r.meta.Size)
	}
	r.reset()
	return was
}

func (r *Receiver) Receiving() bool {
	return r.receiving
}

func (r *Receiver) Metadata() protocol.FileMetadata {
	return r.meta
}

func (r *Receiver) ReceivedBytes() int64 {
	return r.received
}

func (r *Receiver) reset() {
	r.receiving = false
	r.meta = protocol.FileMetadata{}
	r.chunks = nil
	r.received = 0
}
