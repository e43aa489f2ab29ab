package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BioHazard786/Warpchat/internal/callsignal"
	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/logging"
	"github.com/BioHazard786/Warpchat/internal/media"
	"github.com/BioHazard786/Warpchat/internal/protocol"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	"github.com/BioHazard786/Warpchat/internal/transfer"
	"github.com/BioHazard786/Warpchat/internal/transport"
	pion "github.com/pion/webrtc/v4"
)

const validOffer = `{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}`

type frame struct {
	data   []byte
	isText bool
}

type fakeChannel struct {
	mu       sync.Mutex
	frames   []frame
	ready    atomic.Bool
	buffered atomic.Uint64
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame{data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame{data: []byte(text), isText: true})
	return nil
}

func (c *fakeChannel) BufferedAmount() uint64 { return c.buffered.Load() }
func (c *fakeChannel) Ready() bool            { return c.ready.Load() }

func (c *fakeChannel) sent() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.frames...)
}

// fakeTransport is a direct transport whose connection the test controls.
type fakeTransport struct {
	kind transport.Kind
	h    transport.Handlers
	ch   *fakeChannel

	offerErr error
	offered  atomic.Bool

	opened   chan struct{}
	openOnce sync.Once
	closes   atomic.Int32

	mu      sync.Mutex
	senders map[pion.RTPCodecType]pion.TrackLocal
}

func newFakeTransport(kind transport.Kind, h transport.Handlers) *fakeTransport {
	return &fakeTransport{
		kind:   kind,
		h:      h,
		ch:     &fakeChannel{},
		opened: make(chan struct{}),
		senders: map[pion.RTPCodecType]pion.TrackLocal{
			pion.RTPCodecTypeAudio: nil,
			pion.RTPCodecTypeVideo: nil,
		},
	}
}

func (f *fakeTransport) Kind() transport.Kind { return f.kind }

func (f *fakeTransport) Offer(context.Context) (string, error) {
	if f.offerErr != nil {
		return "", f.offerErr
	}
	f.offered.Store(true)
	return `{"type":"offer","sdp":"fake"}`, nil
}

func (f *fakeTransport) Answer(context.Context, string) (string, error) {
	return `{"type":"answer","sdp":"fake"}`, nil
}

func (f *fakeTransport) Accept(text string) error {
	if !f.offered.Load() {
		return failure.New("accept answer", failure.ErrInvalidState)
	}
	if text == "garbage" {
		return failure.New("accept answer", failure.ErrSignalingParse)
	}
	return nil
}

func (f *fakeTransport) Open(ctx context.Context) (protocol.Channel, error) {
	select {
	case <-f.opened:
		return f.ch, nil
	case <-ctx.Done():
		return nil, failure.Wrap("open channel", failure.ErrTimeout, ctx.Err())
	}
}

// connect plays the transport's channel-open signal.
func (f *fakeTransport) connect() {
	f.ch.ready.Store(true)
	f.openOnce.Do(func() { close(f.opened) })
	f.h.OnChannelOpen()
}

// deliver feeds frames as if the peer had sent them.
func (f *fakeTransport) deliver(frames ...frame) {
	for _, fr := range frames {
		f.h.OnMessage(fr.data, fr.isText)
	}
}

func (f *fakeTransport) Send(data []byte) error     { return f.ch.Send(data) }
func (f *fakeTransport) SendText(text string) error { return f.ch.SendText(text) }
func (f *fakeTransport) State() transport.State     { return transport.StateNew }

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeTransport) AttachMedia(tracks ...pion.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		f.senders[t.Kind()] = t
	}
	return nil
}

func (f *fakeTransport) ReplaceMedia(kind pion.RTPCodecType, track pion.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.senders[kind] = track
	return nil
}

func (f *fakeTransport) DetachMedia(kind pion.RTPCodecType) error {
	return f.ReplaceMedia(kind, nil)
}

func (f *fakeTransport) HasSender(kind pion.RTPCodecType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.senders[kind]
	return ok
}

func (f *fakeTransport) Capabilities() rtc.Capabilities {
	return rtc.Capabilities{ReplaceTrack: true}
}

type fakeFactory struct {
	matchmaking bool
	offerErr    error

	mu    sync.Mutex
	built []*fakeTransport
}

func (f *fakeFactory) Resolve() transport.Result {
	if !f.matchmaking {
		return transport.Result{Reason: "no announce endpoints configured"}
	}
	return transport.Result{Available: true}
}

func (f *fakeFactory) NewDirect(h transport.Handlers) (DirectTransport, error) {
	t := newFakeTransport(transport.KindDirect, h)
	t.offerErr = f.offerErr
	f.add(t)
	return t, nil
}

func (f *fakeFactory) NewMatchmaking(h transport.Handlers) (transport.Transport, error) {
	t := newFakeTransport(transport.KindMatchmaking, h)
	f.add(t)
	return t, nil
}

func (f *fakeFactory) add(t *fakeTransport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, t)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[len(f.built)-1]
}

type recorder struct {
	NopListener

	mu     sync.Mutex
	states []State
	descs  []string
	chats  []string
	calls  []callsignal.Event
	files  []transfer.Artifact
	errs   []error
}

func (r *recorder) StateChanged(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) LocalDescription(_, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descs = append(r.descs, text)
}

func (r *recorder) ChatReceived(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, text)
}

func (r *recorder) CallEvent(ev callsignal.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ev)
}

func (r *recorder) FileReceived(a transfer.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, a)
}

func (r *recorder) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) sawError(kind error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, err := range r.errs {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func newSupervisor(t *testing.T, f *fakeFactory) (*Supervisor, *recorder) {
	t.Helper()
	return newSupervisorWith(t, f, Options{ConnectTimeout: 5 * time.Second})
}

func newSupervisorWith(t *testing.T, f *fakeFactory, opts Options) (*Supervisor, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := New(f, &media.SampleSource{}, rec, opts, logging.Discard())
	t.Cleanup(func() { s.Close() })
	return s, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return s.State() == want })
}

// connectDirect drives s through offer, answer and channel open.
func connectDirect(t *testing.T, s *Supervisor, f *fakeFactory) *fakeTransport {
	t.Helper()
	if _, err := s.StartDirect(context.Background()); err != nil {
		t.Fatalf("StartDirect: %v", err)
	}
	if err := s.AcceptAnswer(`{"type":"answer","sdp":"fake"}`); err != nil {
		t.Fatalf("AcceptAnswer: %v", err)
	}
	ft := f.last()
	ft.connect()
	waitState(t, s, Connected)
	return ft
}

func TestStartDirectPublishesOffer(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisor(t, f)

	text, err := s.StartDirect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != AwaitingRemote || s.Mode() != ModeDirect {
		t.Errorf("state=%v mode=%v", s.State(), s.Mode())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.descs) != 1 || rec.descs[0] != text {
		t.Errorf("descriptions = %v", rec.descs)
	}
}

func TestStartDirectFailureStaysIdle(t *testing.T) {
	f := &fakeFactory{offerErr: failure.New("create offer", failure.ErrSignaling)}
	s, _ := newSupervisor(t, f)

	if _, err := s.StartDirect(context.Background()); !errors.Is(err, failure.ErrSignaling) {
		t.Fatalf("StartDirect = %v", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if f.last().closes.Load() != 1 {
		t.Error("failed transport not closed")
	}
}

func TestAcceptAnswerBeforeOffer(t *testing.T) {
	s, _ := newSupervisor(t, &fakeFactory{})

	err := s.AcceptAnswer(`{"type":"answer","sdp":"v=0"}`)
	if !errors.Is(err, failure.ErrInvalidState) {
		t.Fatalf("AcceptAnswer = %v, want ErrInvalidState", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v", s.State())
	}
}

func TestAcceptMalformedAnswerKeepsState(t *testing.T) {
	s, _ := newSupervisor(t, &fakeFactory{})
	if _, err := s.StartDirect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.AcceptAnswer("garbage"); !errors.Is(err, failure.ErrSignalingParse) {
		t.Fatalf("AcceptAnswer = %v", err)
	}
	if s.State() != AwaitingRemote {
		t.Errorf("state = %v, want awaiting remote", s.State())
	}
}

func TestGenerateAnswerRejectsBadOfferWithoutTeardown(t *testing.T) {
	f := &fakeFactory{}
	s, _ := newSupervisor(t, f)
	if _, err := s.StartDirect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GenerateAnswer(context.Background(), "{not json"); !errors.Is(err, failure.ErrSignalingParse) {
		t.Fatalf("GenerateAnswer = %v", err)
	}
	if s.State() != AwaitingRemote || f.last().closes.Load() != 0 {
		t.Error("bad offer disturbed the running session")
	}

	if _, err := s.GenerateAnswer(context.Background(), validOffer); err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	if s.State() != Connecting {
		t.Errorf("state = %v, want connecting", s.State())
	}
}

func TestAnswererOutlastsConnectTimeout(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisorWith(t, f, Options{ConnectTimeout: 50 * time.Millisecond})

	if _, err := s.GenerateAnswer(context.Background(), validOffer); err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}

	// The answer is being carried back by hand.
	time.Sleep(150 * time.Millisecond)
	if s.State() != Connecting || rec.sawError(failure.ErrTimeout) {
		t.Fatalf("state = %v after the hand-back, timeout reported = %v", s.State(), rec.sawError(failure.ErrTimeout))
	}

	f.last().connect()
	waitState(t, s, Connected)
}

func TestAnswerWaitTimeoutTearsDown(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisorWith(t, f, Options{
		ConnectTimeout: 5 * time.Second,
		AnswerTimeout:  50 * time.Millisecond,
	})

	if _, err := s.GenerateAnswer(context.Background(), validOffer); err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	waitState(t, s, Idle)
	if !rec.sawError(failure.ErrTimeout) {
		t.Error("expired answer wait not reported")
	}
	if n := f.last().closes.Load(); n != 1 {
		t.Errorf("transport closed %d times", n)
	}
}

func TestConnectedOnlyOnTransportSignal(t *testing.T) {
	f := &fakeFactory{}
	s, _ := newSupervisor(t, f)

	if _, err := s.StartDirect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.AcceptAnswer(`{"type":"answer","sdp":"fake"}`); err != nil {
		t.Fatal(err)
	}
	if s.State() != Connecting {
		t.Fatalf("state = %v, want connecting", s.State())
	}
	if err := s.SendText("too early"); !errors.Is(err, failure.ErrInvalidState) {
		t.Errorf("SendText before connect = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if s.State() != Connecting {
		t.Fatalf("state moved to %v without a signal", s.State())
	}

	f.last().connect()
	waitState(t, s, Connected)

	if err := s.SendText("hi"); err != nil {
		t.Fatal(err)
	}
	sent := f.last().ch.sent()
	if len(sent) != 1 || string(sent[0].data) != "hi" || !sent[0].isText {
		t.Errorf("sent = %+v", sent)
	}
}

func TestLeaveTwiceIsNoop(t *testing.T) {
	f := &fakeFactory{}
	s, _ := newSupervisor(t, f)
	ft := connectDirect(t, s, f)

	if err := s.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if err := s.Leave(); err != nil {
		t.Fatalf("second Leave: %v", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v", s.State())
	}
	if n := ft.closes.Load(); n != 1 {
		t.Errorf("transport closed %d times, want 1", n)
	}
}

func TestLeaveWithoutSession(t *testing.T) {
	s, _ := newSupervisor(t, &fakeFactory{})
	if err := s.Leave(); err != nil {
		t.Errorf("Leave on idle = %v", err)
	}
}

func TestLeaveStopsMedia(t *testing.T) {
	f := &fakeFactory{}
	s, _ := newSupervisor(t, f)
	connectDirect(t, s, f)

	if err := s.StartCall(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	var tracks []*rtc.LocalTrack
	s.do(func() error {
		tracks = s.sess.negotiator.Tracks()
		return nil
	})
	if len(tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(tracks))
	}

	s.Leave()
	for _, tr := range tracks {
		if !tr.Stopped() {
			t.Errorf("%s track still running after leave", tr.Kind())
		}
	}
}

func TestMatchmakingUnavailable(t *testing.T) {
	f := &fakeFactory{}
	s, _ := newSupervisor(t, f)
	if _, err := s.StartDirect(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := s.StartMatchmaking(context.Background())
	if !errors.Is(err, failure.ErrTransportUnavailable) {
		t.Fatalf("StartMatchmaking = %v", err)
	}
	if s.State() != AwaitingRemote {
		t.Errorf("unavailable matchmaking disturbed the direct session: %v", s.State())
	}
}

func TestMatchmakingFlow(t *testing.T) {
	f := &fakeFactory{matchmaking: true}
	s, rec := newSupervisor(t, f)

	if err := s.StartMatchmaking(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.State() != Matching || s.Mode() != ModeMatchmaking {
		t.Fatalf("state=%v mode=%v", s.State(), s.Mode())
	}

	ft := f.last()
	ft.h.OnStateChange(transport.StateConnecting)
	waitState(t, s, Connecting)
	ft.connect()
	waitState(t, s, Connected)

	rec.mu.Lock()
	got := append([]State(nil), rec.states...)
	rec.mu.Unlock()
	want := []State{Matching, Connecting, Connected}
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}

	if err := s.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if s.State() != Matching || f.last() == ft {
		t.Error("Next did not restart matchmaking with a new transport")
	}
	if ft.closes.Load() != 1 {
		t.Error("old transport not closed by Next")
	}
}

func TestChatReceived(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisor(t, f)
	ft := connectDirect(t, s, f)

	ft.deliver(frame{data: []byte("hello there"), isText: true})
	waitFor(t, "chat", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.chats) == 1 && rec.chats[0] == "hello there"
	})
	if st := s.Stats(); st.MessagesReceived != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestControlRoundTrip(t *testing.T) {
	fa, fb := &fakeFactory{}, &fakeFactory{}
	a, _ := newSupervisor(t, fa)
	b, recB := newSupervisor(t, fb)
	ta := connectDirect(t, a, fa)
	tb := connectDirect(t, b, fb)

	if err := a.StartCall(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	muted, err := a.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("ToggleMute = %v, %v", muted, err)
	}

	tb.deliver(ta.ch.sent()...)

	waitFor(t, "call events", func() bool {
		recB.mu.Lock()
		defer recB.mu.Unlock()
		return len(recB.calls) == 2
	})
	recB.mu.Lock()
	last := recB.calls[1]
	recB.mu.Unlock()
	if last.Kind != callsignal.PeerMuteToggled || !last.Muted {
		t.Errorf("event = %+v, want mute toggled muted=true", last)
	}

	// The peer's mute is informational only.
	if _, err := b.ToggleMute(); !errors.Is(err, failure.ErrInvalidState) {
		t.Errorf("B has local audio after a remote toggle: %v", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	fa, fb := &fakeFactory{}, &fakeFactory{}
	a, _ := newSupervisor(t, fa)
	b, recB := newSupervisor(t, fb)
	ta := connectDirect(t, a, fa)
	tb := connectDirect(t, b, fb)

	data := bytes.Repeat([]byte("warpchat"), 6250)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.SendFile(context.Background(), path); err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	sent := ta.ch.sent()
	var chunks int
	for _, fr := range sent {
		if !fr.isText {
			chunks++
		}
	}
	if chunks != 4 {
		t.Errorf("chunks = %d, want 4", chunks)
	}

	tb.deliver(sent...)
	waitFor(t, "artifact", func() bool {
		recB.mu.Lock()
		defer recB.mu.Unlock()
		return len(recB.files) == 1
	})

	recB.mu.Lock()
	got := recB.files[0]
	recB.mu.Unlock()
	if got.Name != "notes.txt" || !bytes.Equal(got.Data, data) {
		t.Errorf("artifact %q with %d bytes", got.Name, len(got.Data))
	}

	if st := a.Stats(); st.FilesSent != 1 || st.BytesSent != int64(len(data)) {
		t.Errorf("sender stats = %+v", st)
	}
}

func TestDisconnectMidReceiveDiscardsPartial(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisor(t, f)
	ft := connectDirect(t, s, f)

	meta, _ := protocol.EncodeFileMetadata(protocol.FileMetadata{Name: "big.bin", Size: 50000})
	ft.deliver(
		frame{data: meta, isText: true},
		frame{data: make([]byte, 16384)},
	)
	waitFor(t, "receive start", func() bool {
		var receiving bool
		s.do(func() error {
			receiving = s.sess != nil && s.sess.direction == transfer.DirectionReceiving
			return nil
		})
		return receiving
	})

	ft.h.OnStateChange(transport.StateDisconnected)
	waitState(t, s, Idle)

	// Anything the old transport still reports is dropped.
	complete, _ := protocol.EncodeFileComplete()
	ft.deliver(frame{data: complete, isText: true})
	time.Sleep(20 * time.Millisecond)

	rec.mu.Lock()
	files := len(rec.files)
	rec.mu.Unlock()
	if files != 0 {
		t.Errorf("artifact exposed after disconnect")
	}
	if !rec.sawError(failure.ErrPeerDisconnected) {
		t.Error("PeerDisconnected not reported")
	}
	if !rec.sawError(failure.ErrFileTransferAborted) {
		t.Error("aborted receive not reported")
	}
	if ft.closes.Load() != 1 {
		t.Errorf("transport closed %d times", ft.closes.Load())
	}
}

func TestInboundFileIgnoredWhileSending(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisor(t, f)
	ft := connectDirect(t, s, f)

	s.do(func() error {
		s.sess.direction = transfer.DirectionSending
		return nil
	})

	meta, _ := protocol.EncodeFileMetadata(protocol.FileMetadata{Name: "x", Size: 10})
	ft.deliver(
		frame{data: meta, isText: true},
		frame{data: []byte("marker"), isText: true},
	)
	waitFor(t, "marker", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.chats) == 1
	})

	var dir transfer.Direction
	s.do(func() error {
		dir = s.sess.direction
		return nil
	})
	if dir != transfer.DirectionSending {
		t.Errorf("direction = %v, want sending", dir)
	}
}

func TestTeardownDuringSendAborts(t *testing.T) {
	tests := []struct {
		name string
		stop func(*Supervisor, *fakeTransport)
	}{
		{"leave", func(s *Supervisor, _ *fakeTransport) { s.Leave() }},
		{"disconnect", func(_ *Supervisor, ft *fakeTransport) { ft.h.OnStateChange(transport.StateDisconnected) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFactory{}
			s, _ := newSupervisor(t, f)
			ft := connectDirect(t, s, f)

			path := filepath.Join(t.TempDir(), "x.bin")
			if err := os.WriteFile(path, make([]byte, 50000), 0o644); err != nil {
				t.Fatal(err)
			}

			// The peer never drains, so the send parks at the window.
			ft.ch.buffered.Store(1 << 20)
			errc := make(chan error, 1)
			go func() { errc <- s.SendFile(context.Background(), path) }()

			waitFor(t, "metadata on the wire", func() bool { return len(ft.ch.sent()) > 0 })
			tt.stop(s, ft)

			select {
			case err := <-errc:
				if !errors.Is(err, failure.ErrFileTransferAborted) {
					t.Errorf("SendFile = %v, want ErrFileTransferAborted", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("send loop still running after teardown")
			}

			waitState(t, s, Idle)
			for _, fr := range ft.ch.sent() {
				switch protocol.Parse(fr.data, fr.isText).(type) {
				case protocol.Chunk:
					t.Error("chunk sent while the window was closed")
				case protocol.FileComplete:
					t.Error("file-complete sent for an aborted transfer")
				}
			}
			if n := ft.closes.Load(); n != 1 {
				t.Errorf("transport closed %d times", n)
			}
			if st := s.Stats(); st.FilesSent != 0 {
				t.Errorf("aborted send counted: %+v", st)
			}
		})
	}
}

func TestMalformedMetadataDoesNotStartReceive(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisor(t, f)
	ft := connectDirect(t, s, f)

	ft.deliver(
		frame{data: []byte(`{"type":"file-metadata","name":"x","size":-5}`), isText: true},
		frame{data: []byte("marker"), isText: true},
	)
	waitFor(t, "marker", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.chats) == 1
	})

	var dir transfer.Direction
	s.do(func() error {
		dir = s.sess.direction
		return nil
	})
	if dir != transfer.DirectionNone {
		t.Errorf("direction = %v, want none", dir)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.chats[0] != "marker" {
		t.Errorf("malformed frame surfaced as chat: %q", rec.chats[0])
	}
}

func TestSendFileRequiresConnection(t *testing.T) {
	s, _ := newSupervisor(t, &fakeFactory{})
	path := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(path, []byte("a"), 0o644)

	if err := s.SendFile(context.Background(), path); !errors.Is(err, failure.ErrInvalidState) {
		t.Errorf("SendFile while idle = %v", err)
	}
}

func TestCloseStopsOperations(t *testing.T) {
	f := &fakeFactory{}
	s, rec := newSupervisor(t, f)
	ft := connectDirect(t, s, f)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Closed || ft.closes.Load() != 1 {
		t.Errorf("state=%v closes=%d", s.State(), ft.closes.Load())
	}
	if err := s.Leave(); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("Leave after Close = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.states[len(rec.states)-1] != Closed {
		t.Errorf("last state = %v", rec.states[len(rec.states)-1])
	}
}
