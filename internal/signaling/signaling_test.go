package signaling

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Warpchat/internal/dns"
	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/logging"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	"github.com/BioHazard786/Warpchat/internal/tracker"
)

func startTracker(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := tracker.NewHub(logging.Discard())
	go hub.Run(ctx)

	srv := httptest.NewServer(tracker.NewRouter(hub, logging.Discard(), false))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/announce"
}

type recorder struct {
	mu       sync.Mutex
	matches  chan Match
	signals  chan []byte
	left     chan string
	errs     chan error
	warnings []error
}

func newRecorder() *recorder {
	return &recorder{
		matches: make(chan Match, 4),
		signals: make(chan []byte, 4),
		left:    make(chan string, 1),
		errs:    make(chan error, 1),
	}
}

func (r *recorder) handlers() DiscoveryHandlers {
	return DiscoveryHandlers{
		OnPeer:     func(m Match) { r.matches <- m },
		OnSignal:   func(_ string, data []byte) { r.signals <- data },
		OnPeerLeft: func(id string) { r.left <- id },
		OnError:    func(err error) { r.errs <- err },
		OnWarning: func(err error) {
			r.mu.Lock()
			r.warnings = append(r.warnings, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) warningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func waitMatch(t *testing.T, r *recorder) Match {
	t.Helper()
	select {
	case m := <-r.matches:
		return m
	case err := <-r.errs:
		t.Fatalf("discovery failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no match")
	}
	return Match{}
}

func newDiscovery(peerID string, endpoints []string, r *recorder) *Discovery {
	cfg := DiscoveryConfig{SwarmID: "swarm", PeerID: peerID, Endpoints: endpoints}
	return NewDiscovery(cfg, dns.NewResolver(logging.Discard()), r.handlers(), logging.Discard())
}

func TestDecodeSignal(t *testing.T) {
	data, err := encodeSignal(SignalPayload{Type: SignalOffer, SDP: "v=0"})
	if err != nil {
		t.Fatal(err)
	}
	if sig, err := decodeSignal(data); err != nil || sig.SDP != "v=0" {
		t.Errorf("decodeSignal = %+v, %v", sig, err)
	}

	bad, _ := encodeSignal(SignalPayload{Type: SignalAnswer})
	if _, err := decodeSignal(bad); err == nil {
		t.Error("answer without sdp accepted")
	}
	unknown, _ := encodeSignal(SignalPayload{Type: "candidate"})
	if _, err := decodeSignal(unknown); err == nil {
		t.Error("unknown type accepted")
	}
}

func TestDiscoveryPairsAndRelays(t *testing.T) {
	endpoint := startTracker(t)

	ra, rb := newRecorder(), newRecorder()
	a := newDiscovery("alice", []string{endpoint}, ra)
	b := newDiscovery("bob", []string{endpoint}, rb)
	defer a.Close()
	defer b.Close()

	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ma, mb := waitMatch(t, ra), waitMatch(t, rb)
	if ma.PeerID != "bob" || mb.PeerID != "alice" {
		t.Fatalf("matches = %+v / %+v", ma, mb)
	}
	if ma.Initiator == mb.Initiator {
		t.Fatalf("both sides initiator=%v", ma.Initiator)
	}

	if err := a.Signal([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	select {
	case data := <-rb.signals:
		if string(data) != "hello" {
			t.Errorf("relayed %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("signal not relayed")
	}

	a.Close()
	select {
	case id := <-rb.left:
		if id != "alice" {
			t.Errorf("peer_left for %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no peer_left after Close")
	}
}

func TestDiscoverySurvivesOneDeadEndpoint(t *testing.T) {
	endpoint := startTracker(t)
	dead := "ws://127.0.0.1:1/announce"

	ra, rb := newRecorder(), newRecorder()
	a := newDiscovery("alice", []string{dead, endpoint}, ra)
	b := newDiscovery("bob", []string{endpoint}, rb)
	defer a.Close()
	defer b.Close()

	a.Start(context.Background())
	b.Start(context.Background())

	waitMatch(t, ra)
	waitMatch(t, rb)

	if ra.warningCount() == 0 {
		t.Error("dead endpoint produced no warning")
	}
}

func TestDiscoveryAllEndpointsFail(t *testing.T) {
	r := newRecorder()
	d := newDiscovery("alice", []string{"ws://127.0.0.1:1/a", "ws://127.0.0.1:1/b"}, r)
	defer d.Close()

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-r.errs:
		if !errors.Is(err, failure.ErrTransportUnavailable) {
			t.Errorf("error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no error event")
	}
	if got := r.warningCount(); got != 2 {
		t.Errorf("warnings = %d, want 2", got)
	}
}

func TestDiscoveryWithoutEndpoints(t *testing.T) {
	d := newDiscovery("alice", nil, newRecorder())
	if err := d.Start(context.Background()); !errors.Is(err, failure.ErrTransportUnavailable) {
		t.Errorf("Start = %v", err)
	}
	if err := d.Signal([]byte("x")); !errors.Is(err, failure.ErrSignaling) {
		t.Errorf("Signal before match = %v", err)
	}
}

func TestPeersConnectOverRelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var a, b *Peer
	connected := make(chan string, 2)
	received := make(chan string, 1)

	relayTo := func(target **Peer) SignalFunc {
		return func(data []byte) error {
			// Errors after the test ends come from torn-down peers.
			go (*target).HandleSignal(ctx, data)
			return nil
		}
	}

	var err error
	a, err = NewPeer(PeerConfig{Initiator: true, GatherTimeout: 5 * time.Second}, relayTo(&b),
		PeerHandlers{OnConnect: func() { connected <- "a" }}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	b, err = NewPeer(PeerConfig{GatherTimeout: 5 * time.Second}, relayTo(&a), PeerHandlers{
		OnConnect: func() { connected <- "b" },
		OnData: func(payload []byte, isText bool) {
			if isText {
				received <- string(payload)
			}
		},
	}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for range 2 {
		select {
		case <-connected:
		case <-ctx.Done():
			t.Fatal("peers never connected")
		}
	}

	if !a.Ready() {
		t.Fatal("initiator channel not ready after connect")
	}
	if err := a.SendText("hi"); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-received:
		if got != "hi" {
			t.Errorf("received %q", got)
		}
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}

	track, err := rtc.NewLocalTrack(rtc.KindAudio, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.AddTrack(track.Track()); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if !b.HasSender(track.Track().Kind()) {
		t.Error("sender not recorded")
	}
	if err := b.RemoveTrack(track.Track().Kind()); err != nil {
		t.Errorf("RemoveTrack: %v", err)
	}
	if err := b.RemoveTrack(track.Track().Kind()); !errors.Is(err, ErrNoSender) {
		t.Errorf("second RemoveTrack = %v", err)
	}
}

func TestPeerSendBeforeConnect(t *testing.T) {
	p, err := NewPeer(PeerConfig{Initiator: true}, func([]byte) error { return nil }, PeerHandlers{}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.SendText("x"); err == nil {
		t.Error("SendText before open succeeded")
	}
	if p.Ready() {
		t.Error("Ready before open")
	}

	answer, _ := encodeSignal(SignalPayload{Type: SignalAnswer, SDP: "v=0"})
	if err := p.HandleSignal(context.Background(), answer); !errors.Is(err, failure.ErrInvalidState) {
		t.Errorf("answer without offer = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	p.Close()
}
