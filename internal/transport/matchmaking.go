package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Warpchat/internal/dns"
	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/protocol"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	"github.com/BioHazard786/Warpchat/internal/signaling"
	pion "github.com/pion/webrtc/v4"
)

type MatchmakingConfig struct {
	Discovery     signaling.DiscoveryConfig
	ICE           rtc.ICEConfig
	GatherTimeout time.Duration
	MatchTimeout  time.Duration
}

// MatchmakingTransport pairs with a stranger through the announce
// trackers. The first match binds; negotiation is relayed by the tracker
// that made it.
type MatchmakingTransport struct {
	cfg      MatchmakingConfig
	h        Handlers
	resolver *dns.Resolver
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	discovery *signaling.Discovery
	peer      *signaling.Peer
	state     State
	closed    bool
	err       error

	signals chan []byte

	opened   chan struct{}
	openOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func NewMatchmaking(cfg MatchmakingConfig, resolver *dns.Resolver, h Handlers, logger *slog.Logger) *MatchmakingTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &MatchmakingTransport{
		cfg:      cfg,
		h:        h,
		resolver: resolver,
		logger:   logger.With("component", "transport", "kind", KindMatchmaking.String()),
		ctx:      ctx,
		cancel:   cancel,
		signals:  make(chan []byte, 16),
		opened:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *MatchmakingTransport) Kind() Kind { return KindMatchmaking }

// Open announces on every endpoint and blocks until the matched peer's
// channel opens or MatchTimeout passes.
func (t *MatchmakingTransport) Open(ctx context.Context) (protocol.Channel, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, failure.Wrap("match", failure.ErrInvalidState, ErrClosed)
	}
	if t.discovery != nil {
		t.mu.Unlock()
		return nil, failure.WrapDetails("match", failure.ErrInvalidState, "already opened")
	}
	t.discovery = signaling.NewDiscovery(t.cfg.Discovery, t.resolver, signaling.DiscoveryHandlers{
		OnPeer:     t.bind,
		OnSignal:   t.queueSignal,
		OnPeerLeft: func(string) { t.lost(failure.New("peer left", failure.ErrPeerDisconnected)) },
		OnWarning: func(err error) {
			t.logger.Warn("announce endpoint problem", "error", err)
		},
		OnError: t.abort,
	}, t.logger)
	discovery := t.discovery
	t.mu.Unlock()

	if t.cfg.MatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.MatchTimeout)
		defer cancel()
	}

	if err := discovery.Start(t.ctx); err != nil {
		return nil, err
	}

	select {
	case <-t.opened:
		return t.currentPeer(), nil
	case <-t.done:
		t.mu.Lock()
		err := t.err
		t.mu.Unlock()
		if err == nil {
			err = failure.Wrap("match", failure.ErrPeerDisconnected, ErrClosed)
		}
		return nil, err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, failure.WrapDetails("match", failure.ErrTimeout, "no peer connected in "+t.cfg.MatchTimeout.String())
		}
		return nil, failure.Wrap("match", failure.ErrSignaling, ctx.Err())
	}
}

func (t *MatchmakingTransport) Send(data []byte) error {
	p := t.currentPeer()
	if p == nil {
		return protocol.ErrChannelNotOpen
	}
	return p.Send(data)
}

func (t *MatchmakingTransport) SendText(text string) error {
	p := t.currentPeer()
	if p == nil {
		return protocol.ErrChannelNotOpen
	}
	return p.SendText(text)
}

func (t *MatchmakingTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *MatchmakingTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.state = StateClosed
	discovery, peer := t.discovery, t.peer
	t.mu.Unlock()

	t.cancel()
	t.doneOnce.Do(func() { close(t.done) })

	var err error
	if peer != nil {
		err = peer.Close()
	}
	if discovery != nil {
		discovery.Close()
	}
	return err
}

func (t *MatchmakingTransport) AttachMedia(tracks ...pion.TrackLocal) error {
	p := t.currentPeer()
	if p == nil {
		return ErrNotBound
	}
	return p.AddTrack(tracks...)
}

// ReplaceMedia is not offered; callers detach and attach instead.
func (t *MatchmakingTransport) ReplaceMedia(pion.RTPCodecType, pion.TrackLocal) error {
	return ErrUnsupported
}

func (t *MatchmakingTransport) DetachMedia(kind pion.RTPCodecType) error {
	p := t.currentPeer()
	if p == nil {
		return ErrNotBound
	}
	return p.RemoveTrack(kind)
}

func (t *MatchmakingTransport) HasSender(kind pion.RTPCodecType) bool {
	p := t.currentPeer()
	return p != nil && p.HasSender(kind)
}

func (t *MatchmakingTransport) Capabilities() rtc.Capabilities {
	return rtc.Capabilities{AddRemoveTrack: true}
}

// bind builds the peer for the first match. Discovery only reports one.
func (t *MatchmakingTransport) bind(m signaling.Match) {
	t.mu.Lock()
	if t.closed || t.peer != nil {
		t.mu.Unlock()
		return
	}
	discovery := t.discovery
	t.mu.Unlock()

	peer, err := signaling.NewPeer(signaling.PeerConfig{
		ICE:           t.cfg.ICE,
		Initiator:     m.Initiator,
		GatherTimeout: t.cfg.GatherTimeout,
	}, discovery.Signal, signaling.PeerHandlers{
		OnData: func(payload []byte, isText bool) {
			if t.h.OnMessage != nil {
				t.h.OnMessage(payload, isText)
			}
		},
		OnConnect: func() {
			t.setState(StateConnected)
			t.openOnce.Do(func() { close(t.opened) })
			if t.h.OnChannelOpen != nil {
				t.h.OnChannelOpen()
			}
		},
		OnClose: func() {
			if t.h.OnChannelClose != nil {
				t.h.OnChannelClose()
			}
			t.lost(failure.New("peer closed", failure.ErrPeerDisconnected))
		},
		OnError: func(err error) {
			t.logger.Warn("peer negotiation error", "error", err)
		},
		OnTrack: t.h.OnTrack,
		OnStateChange: func(s pion.PeerConnectionState) {
			if st := fromPeerState(s); st == StateDisconnected || st == StateFailed {
				t.lost(failure.WrapDetails("peer connection", failure.ErrPeerDisconnected, st.String()))
			}
		},
	}, t.logger)
	if err != nil {
		t.abort(err)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		peer.Close()
		return
	}
	t.peer = peer
	t.mu.Unlock()
	t.logger.Info("matched", "peer", m.PeerID, "endpoint", m.Endpoint, "initiator", m.Initiator)

	t.setState(StateConnecting)
	go t.runSignals(peer)

	go func() {
		if err := peer.Start(t.ctx); err != nil {
			t.abort(err)
		}
	}()
}

func (t *MatchmakingTransport) queueSignal(_ string, data []byte) {
	select {
	case t.signals <- data:
	case <-t.done:
	default:
		t.logger.Warn("signal queue full, dropping")
	}
}

// runSignals applies relayed signals one at a time so an answer can never
// overtake its offer.
func (t *MatchmakingTransport) runSignals(peer *signaling.Peer) {
	for {
		select {
		case data := <-t.signals:
			if err := peer.HandleSignal(t.ctx, data); err != nil {
				t.logger.Warn("bad signal", "error", err)
			}
		case <-t.done:
			return
		}
	}
}

func (t *MatchmakingTransport) currentPeer() *signaling.Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer
}

// abort fails an open that has not connected yet.
func (t *MatchmakingTransport) abort(err error) {
	t.mu.Lock()
	if t.closed || t.err != nil {
		t.mu.Unlock()
		return
	}
	t.err = err
	t.mu.Unlock()

	t.setState(StateFailed)
}

// lost ends a bound session.
func (t *MatchmakingTransport) lost(err error) {
	t.mu.Lock()
	if t.closed || t.err != nil {
		t.mu.Unlock()
		return
	}
	t.err = err
	t.mu.Unlock()

	t.setState(StateDisconnected)
}

func (t *MatchmakingTransport) setState(s State) {
	t.mu.Lock()
	if t.closed || t.state == s || t.state.Lost() {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()

	t.logger.Debug("state", "state", s.String())
	if s.Lost() {
		t.doneOnce.Do(func() { close(t.done) })
	}
	if t.h.OnStateChange != nil {
		t.h.OnStateChange(s)
	}
}
