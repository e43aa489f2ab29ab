package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentFrame struct {
	kind protocol.Kind
	meta protocol.FileMetadata
	data []byte
}

// fakeWriter models a channel buffer that grows on every chunk and drains a
// fixed amount each time the sender polls it.
type fakeWriter struct {
	mu         sync.Mutex
	frames     []sentFrame
	buffered   uint64
	drain      uint64
	polls      int
	atSend     []uint64
	failChunkN int
}

func (w *fakeWriter) SendFileMetadata(m protocol.FileMetadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, sentFrame{kind: protocol.KindFileMetadata, meta: m})
	return nil
}

func (w *fakeWriter) SendChunk(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	chunks := 0
	for _, f := range w.frames {
		if f.kind == protocol.KindChunk {
			chunks++
		}
	}
	if w.failChunkN > 0 && chunks+1 == w.failChunkN {
		return failure.Wrap("send chunk", failure.ErrSendFailure, protocol.ErrChannelNotOpen)
	}
	w.atSend = append(w.atSend, w.buffered)
	w.buffered += uint64(len(data))
	w.frames = append(w.frames, sentFrame{kind: protocol.KindChunk, data: data})
	return nil
}

func (w *fakeWriter) SendFileComplete() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, sentFrame{kind: protocol.KindFileComplete})
	return nil
}

func (w *fakeWriter) BufferedAmount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
	current := w.buffered
	if w.buffered > w.drain {
		w.buffered -= w.drain
	} else {
		w.buffered = 0
	}
	return current
}

func newTestSender(w ChunkWriter, onProgress ProgressFunc) *Sender {
	s := NewSender(w, testLogger(), onProgress)
	s.SettleDelay = 0
	s.PollInterval = time.Millisecond
	return s
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func TestSendSplitsFiftyThousandBytes(t *testing.T) {
	w := &fakeWriter{drain: 1 << 20}
	var progress []int
	s := newTestSender(w, func(p int) { progress = append(progress, p) })

	data := randomBytes(50000)
	err := s.Send(context.Background(), File{Name: "a.bin", Size: 50000, Reader: bytes.NewReader(data)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(w.frames) != 6 {
		t.Fatalf("frames = %d, want 6 (metadata, 4 chunks, complete)", len(w.frames))
	}
	if w.frames[0].kind != protocol.KindFileMetadata || w.frames[0].meta.Size != 50000 {
		t.Errorf("first frame = %+v, want metadata of 50000 bytes", w.frames[0])
	}
	if w.frames[5].kind != protocol.KindFileComplete {
		t.Errorf("last frame kind = %v, want file-complete", w.frames[5].kind)
	}

	wantSizes := []int{16384, 16384, 16384, 848}
	for i, want := range wantSizes {
		f := w.frames[i+1]
		if f.kind != protocol.KindChunk || len(f.data) != want {
			t.Errorf("chunk %d: kind=%v len=%d, want chunk of %d", i, f.kind, len(f.data), want)
		}
	}

	if got := ChunkCount(50000); got != 4 {
		t.Errorf("ChunkCount(50000) = %d, want 4", got)
	}
	if len(progress) != 4 || progress[len(progress)-1] != 100 {
		t.Errorf("progress = %v, want 4 reports ending at 100", progress)
	}
	if progress[0] != 33 {
		t.Errorf("first progress = %d, want round(16384/50000*100) = 33", progress[0])
	}
}

func TestSendHoldsChunksWhileAboveThreshold(t *testing.T) {
	w := &fakeWriter{drain: 4096}
	s := newTestSender(w, nil)

	size := 20 * ChunkSize
	err := s.Send(context.Background(), File{Name: "big.bin", Size: int64(size), Reader: bytes.NewReader(randomBytes(size))})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	for i, b := range w.atSend {
		if b > BufferThreshold {
			t.Errorf("chunk %d sent with %d bytes buffered, above threshold %d", i, b, BufferThreshold)
		}
	}
	if w.polls <= len(w.atSend) {
		t.Errorf("polls = %d for %d chunks, expected the sender to wait", w.polls, len(w.atSend))
	}
}

func TestSendStalledBufferAborts(t *testing.T) {
	w := &fakeWriter{buffered: 10 * BufferThreshold}
	s := newTestSender(w, nil)
	s.StallTimeout = 20 * time.Millisecond

	err := s.Send(context.Background(), File{Name: "stuck.bin", Size: 10, Reader: bytes.NewReader(make([]byte, 10))})
	if !errors.Is(err, failure.ErrFileTransferAborted) {
		t.Fatalf("Send = %v, want ErrFileTransferAborted", err)
	}
	if !errors.Is(err, ErrBufferTimeout) {
		t.Errorf("Send = %v, want ErrBufferTimeout cause", err)
	}
}

func TestSendCancelledStopsLoop(t *testing.T) {
	w := &fakeWriter{buffered: 10 * BufferThreshold}
	s := newTestSender(w, nil)
	s.StallTimeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Send(ctx, File{Name: "x", Size: 10, Reader: bytes.NewReader(make([]byte, 10))})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTransferCancelled) || !errors.Is(err, failure.ErrFileTransferAborted) {
			t.Fatalf("Send = %v, want cancelled abort", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not return after cancel")
	}

	for _, f := range w.frames {
		if f.kind == protocol.KindChunk || f.kind == protocol.KindFileComplete {
			t.Errorf("unexpected %v frame after cancel", f.kind)
		}
	}
}

func TestSendFailureDoesNotComplete(t *testing.T) {
	w := &fakeWriter{drain: 1 << 20, failChunkN: 2}
	s := newTestSender(w, nil)

	err := s.Send(context.Background(), File{Name: "a", Size: 40000, Reader: bytes.NewReader(make([]byte, 40000))})
	if !errors.Is(err, failure.ErrFileTransferAborted) || !errors.Is(err, failure.ErrSendFailure) {
		t.Fatalf("Send = %v, want aborted send failure", err)
	}
	if last := w.frames[len(w.frames)-1]; last.kind == protocol.KindFileComplete {
		t.Error("file-complete sent after a failed chunk")
	}
}

func TestSendShortReaderAborts(t *testing.T) {
	w := &fakeWriter{drain: 1 << 20}
	s := newTestSender(w, nil)

	err := s.Send(context.Background(), File{Name: "a", Size: 100, Reader: bytes.NewReader(make([]byte, 60))})
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("Send = %v, want ErrShortRead", err)
	}
}

func TestSendEmptyFile(t *testing.T) {
	w := &fakeWriter{}
	var progress []int
	s := newTestSender(w, func(p int) { progress = append(progress, p) })

	if err := s.Send(context.Background(), File{Name: "empty", Reader: bytes.NewReader(nil)}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(w.frames) != 2 {
		t.Errorf("frames = %d, want metadata and complete only", len(w.frames))
	}
	if len(progress) != 1 || progress[0] != 100 {
		t.Errorf("progress = %v, want [100]", progress)
	}
}

func TestReceiverRoundTrip(t *testing.T) {
	w := &fakeWriter{drain: 1 << 20}
	s := newTestSender(w, nil)
	data := randomBytes(50000)
	if err := s.Send(context.Background(), File{Name: "photo.jpg", MimeType: "image/jpeg", Size: 50000, Reader: bytes.NewReader(data)}); err != nil {
		t.Fatal(err)
	}

	var progress []int
	r := NewReceiver(testLogger(), func(p int) { progress = append(progress, p) })

	var got Artifact
	var completed bool
	for i, f := range w.frames {
		switch f.kind {
		case protocol.KindFileMetadata:
			r.HandleMetadata(f.meta)
		case protocol.KindChunk:
			if err := r.HandleChunk(f.data); err != nil {
				t.Fatalf("HandleChunk %d: %v", i, err)
			}
			if completed {
				t.Fatal("artifact exposed before completion")
			}
		case protocol.KindFileComplete:
			got, completed = r.HandleComplete()
		}
	}

	if !completed {
		t.Fatal("no artifact after completion")
	}
	if !bytes.Equal(got.Data, data) {
		t.Error("reassembled data differs from source")
	}
	if got.Name != "photo.jpg" || got.MimeType != "image/jpeg" {
		t.Errorf("artifact = %s %s", got.Name, got.MimeType)
	}
	if r.Receiving() {
		t.Error("receiver still receiving after completion")
	}
	if progress[len(progress)-1] != 100 {
		t.Errorf("final progress = %d, want 100", progress[len(progress)-1])
	}
}

func TestReceiverChunkOutsideReceive(t *testing.T) {
	r := NewReceiver(testLogger(), nil)
	err := r.HandleChunk([]byte{1, 2, 3})
	if !errors.Is(err, ErrUnexpectedChunk) {
		t.Fatalf("HandleChunk = %v, want ErrUnexpectedChunk", err)
	}
	if r.Receiving() || r.ReceivedBytes() != 0 {
		t.Error("stray chunk changed receiver state")
	}
}

func TestReceiverCompleteWhileIdleIgnored(t *testing.T) {
	r := NewReceiver(testLogger(), nil)
	if _, ok := r.HandleComplete(); ok {
		t.Fatal("HandleComplete produced an artifact without a receive")
	}
}

func TestReceiverAbortMidReceive(t *testing.T) {
	r := NewReceiver(testLogger(), nil)
	r.HandleMetadata(protocol.FileMetadata{Name: "half.bin", Size: 50000})
	if err := r.HandleChunk(make([]byte, ChunkSize)); err != nil {
		t.Fatal(err)
	}

	if !r.Abort() {
		t.Fatal("Abort reported no receive in progress")
	}
	if r.Receiving() || r.ReceivedBytes() != 0 {
		t.Errorf("state after abort: receiving=%v received=%d", r.Receiving(), r.ReceivedBytes())
	}
	if _, ok := r.HandleComplete(); ok {
		t.Error("stale completion produced an artifact after abort")
	}
	if r.Abort() {
		t.Error("second Abort reported a receive in progress")
	}
}

func TestReceiverRejectsOversize(t *testing.T) {
	r := NewReceiver(testLogger(), nil)
	r.HandleMetadata(protocol.FileMetadata{Name: "small", Size: 10})

	err := r.HandleChunk(make([]byte, 11))
	if !errors.Is(err, failure.ErrFileTransferAborted) || !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("HandleChunk = %v, want aborted size exceeded", err)
	}
	if r.Receiving() {
		t.Error("receiver kept receiving after oversize chunk")
	}
}

func TestReceiverMetadataResets(t *testing.T) {
	r := NewReceiver(testLogger(), nil)
	r.HandleMetadata(protocol.FileMetadata{Name: "first", Size: 100})
	if err := r.HandleChunk(make([]byte, 40)); err != nil {
		t.Fatal(err)
	}

	r.HandleMetadata(protocol.FileMetadata{Name: "second", Size: 3})
	if r.ReceivedBytes() != 0 {
		t.Fatalf("ReceivedBytes = %d after new metadata", r.ReceivedBytes())
	}
	if err := r.HandleChunk([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	art, ok := r.HandleComplete()
	if !ok || string(art.Data) != "abc" || art.MimeType != protocol.DefaultMimeType {
		t.Errorf("artifact = %+v ok=%v", art, ok)
	}
}

func TestArtifactSave(t *testing.T) {
	dir := t.TempDir()
	art := Artifact{Name: "../../etc/notes.txt", Data: []byte("hi")}

	first, err := art.Save(dir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first != filepath.Join(dir, "notes.txt") {
		t.Errorf("Save path = %q", first)
	}

	second, err := art.Save(dir)
	if err != nil {
		t.Fatal(err)
	}
	if second != filepath.Join(dir, "notes (1).txt") {
		t.Errorf("second Save path = %q", second)
	}

	b, err := os.ReadFile(second)
	if err != nil || string(b) != "hi" {
		t.Errorf("saved content = %q, %v", b, err)
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"":                  fallbackName,
		"..":                fallbackName,
		"dir\\evil.exe":     "evil.exe",
		"plain.txt":         "plain.txt",
		"/abs/path/doc.pdf": "doc.pdf",
	}
	for in, want := range tests {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(0, 0); got != 100 {
		t.Errorf("Percent(0,0) = %d", got)
	}
	if got := Percent(49152, 50000); got != 98 {
		t.Errorf("Percent(49152,50000) = %d, want 98", got)
	}
}
