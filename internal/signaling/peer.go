package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/protocol"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	pion "github.com/pion/webrtc/v4"
)

var ErrNoSender = errors.New("no sender for that kind")

// SignalFunc relays encoded negotiation data to the remote peer.
type SignalFunc func(data []byte) error

type PeerConfig struct {
	ICE           rtc.ICEConfig
	Initiator     bool
	GatherTimeout time.Duration
}

// PeerHandlers are the peer's events. OnConnect fires when the chat
// channel opens and OnClose once when the connection goes away for any
// reason other than Close.
type PeerHandlers struct {
	OnData        func(payload []byte, isText bool)
	OnConnect     func()
	OnClose       func()
	OnError       func(error)
	OnTrack       func(*pion.TrackRemote)
	OnStateChange func(pion.PeerConnectionState)
}

// Peer is one WebRTC connection negotiated through tracker signals. It is
// also the raw channel the message protocol writes to.
type Peer struct {
	cfg    PeerConfig
	h      PeerHandlers
	relay  SignalFunc
	logger *slog.Logger

	pc     *pion.PeerConnection
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	channel     *rtc.DataChannel
	senders     map[pion.RTPCodecType]*pion.RTPSender
	negotiating bool
	pending     bool
	closed      bool

	closeOnce sync.Once
}

func NewPeer(cfg PeerConfig, relay SignalFunc, h PeerHandlers, logger *slog.Logger) (*Peer, error) {
	pc, err := rtc.NewPeerConnection(cfg.ICE)
	if err != nil {
		return nil, failure.Wrap("create peer connection", failure.ErrSignaling, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		cfg:     cfg,
		h:       h,
		relay:   relay,
		logger:  logger.With("component", "peer", "initiator", cfg.Initiator),
		pc:      pc,
		ctx:     ctx,
		cancel:  cancel,
		senders: make(map[pion.RTPCodecType]*pion.RTPSender),
	}

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.logger.Debug("connection state", "state", state.String())
		if p.h.OnStateChange != nil {
			p.h.OnStateChange(state)
		}
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			p.remoteClosed()
		}
	})

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		if p.h.OnTrack != nil {
			p.h.OnTrack(track)
		}
	})

	if cfg.Initiator {
		dc, err := rtc.CreateDataChannel(pc)
		if err != nil {
			pc.Close()
			cancel()
			return nil, failure.Wrap("create data channel", failure.ErrSignaling, err)
		}
		p.bindChannel(dc)
	} else {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != rtc.ChannelLabel {
				p.logger.Debug("ignoring data channel", "label", dc.Label())
				return
			}
			p.bindChannel(dc)
		})
	}

	return p, nil
}

func (p *Peer) bindChannel(dc *pion.DataChannel) {
	p.mu.Lock()
	p.channel = rtc.NewDataChannel(dc)
	p.mu.Unlock()

	dc.OnOpen(func() {
		if p.h.OnConnect != nil {
			p.h.OnConnect()
		}
	})
	dc.OnClose(p.remoteClosed)
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if p.h.OnData != nil {
			p.h.OnData(msg.Data, msg.IsString)
		}
	})
}

// Start sends the first offer when this side initiates. The responder
// waits for it in HandleSignal.
func (p *Peer) Start(ctx context.Context) error {
	if !p.cfg.Initiator {
		return nil
	}
	p.mu.Lock()
	p.negotiating = true
	p.mu.Unlock()
	return p.offer(ctx)
}

// HandleSignal applies one relayed negotiation message.
func (p *Peer) HandleSignal(ctx context.Context, data []byte) error {
	sig, err := decodeSignal(data)
	if err != nil {
		return failure.Wrap("handle signal", failure.ErrSignalingParse, err)
	}

	switch sig.Type {
	case SignalOffer:
		if p.cfg.Initiator {
			p.logger.Warn("initiator got an offer, ignoring")
			return nil
		}
		offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sig.SDP}
		answer, err := rtc.CreateAnswer(ctx, p.pc, offer, p.cfg.GatherTimeout)
		if err != nil {
			return err
		}
		return p.send(SignalPayload{Type: SignalAnswer, SDP: answer.SDP})

	case SignalAnswer:
		if p.pc.SignalingState() != pion.SignalingStateHaveLocalOffer {
			return failure.WrapDetails("apply answer", failure.ErrInvalidState, "no offer in flight")
		}
		answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP}
		if err := p.pc.SetRemoteDescription(answer); err != nil {
			p.finishNegotiation()
			return failure.Wrap("apply answer", failure.ErrSignalingParse, err)
		}
		p.finishNegotiation()
		return nil

	case SignalRenegotiate:
		if p.cfg.Initiator {
			p.negotiate()
		}
	}
	return nil
}

// AddTrack puts tracks on new senders and renegotiates.
func (p *Peer) AddTrack(tracks ...pion.TrackLocal) error {
	p.mu.Lock()
	for _, t := range tracks {
		sender, err := p.pc.AddTrack(t)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.senders[t.Kind()] = sender
		go drainRTCP(sender)
	}
	p.mu.Unlock()

	p.negotiate()
	return nil
}

// RemoveTrack drops the sender of kind and renegotiates.
func (p *Peer) RemoveTrack(kind pion.RTPCodecType) error {
	p.mu.Lock()
	sender, ok := p.senders[kind]
	if !ok {
		p.mu.Unlock()
		return ErrNoSender
	}
	delete(p.senders, kind)
	err := p.pc.RemoveTrack(sender)
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.negotiate()
	return nil
}

func (p *Peer) HasSender(kind pion.RTPCodecType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.senders[kind]
	return ok
}

func (p *Peer) Send(data []byte) error {
	ch, err := p.openChannel()
	if err != nil {
		return err
	}
	return ch.Send(data)
}

func (p *Peer) SendText(text string) error {
	ch, err := p.openChannel()
	if err != nil {
		return err
	}
	return ch.SendText(text)
}

func (p *Peer) BufferedAmount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return 0
	}
	return p.channel.BufferedAmount()
}

func (p *Peer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel != nil && p.channel.Ready()
}

// ConnectionState reports the underlying peer connection state.
func (p *Peer) ConnectionState() pion.PeerConnectionState {
	return p.pc.ConnectionState()
}

// Close tears the connection down without firing OnClose. It is
// idempotent.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cancel()
		err = p.pc.Close()
	})
	return err
}

func (p *Peer) openChannel() (*rtc.DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil || !p.channel.Ready() {
		return nil, protocol.ErrChannelNotOpen
	}
	return p.channel, nil
}

// negotiate starts a new offer round, or asks the initiator to start one.
// Rounds never overlap; a change during a round queues one more.
func (p *Peer) negotiate() {
	if !p.cfg.Initiator {
		if err := p.send(SignalPayload{Type: SignalRenegotiate}); err != nil {
			p.fail(err)
		}
		return
	}

	p.mu.Lock()
	if p.negotiating {
		p.pending = true
		p.mu.Unlock()
		return
	}
	p.negotiating = true
	p.pending = false
	p.mu.Unlock()

	go func() {
		if err := p.offer(p.ctx); err != nil {
			p.fail(err)
		}
	}()
}

// offer runs one offer round. The caller has set negotiating.
func (p *Peer) offer(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return failure.New("offer", failure.ErrInvalidState)
	}

	desc, err := rtc.CreateOffer(ctx, p.pc, p.cfg.GatherTimeout)
	if err != nil {
		p.finishNegotiation()
		return err
	}
	if err := p.send(SignalPayload{Type: SignalOffer, SDP: desc.SDP}); err != nil {
		p.finishNegotiation()
		return err
	}
	return nil
}

func (p *Peer) finishNegotiation() {
	p.mu.Lock()
	p.negotiating = false
	again := p.pending && !p.closed
	p.mu.Unlock()

	if again {
		p.negotiate()
	}
}

func (p *Peer) send(sig SignalPayload) error {
	data, err := encodeSignal(sig)
	if err != nil {
		return failure.Wrap("encode signal", failure.ErrSignaling, err)
	}
	return p.relay(data)
}

func (p *Peer) remoteClosed() {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cancel()

		// pion fires the state callback from inside Close; close on a
		// separate goroutine so that callback never waits on itself.
		go p.pc.Close()

		if p.h.OnClose != nil {
			p.h.OnClose()
		}
	})
}

func (p *Peer) fail(err error) {
	p.logger.Warn("negotiation failed", "error", err)
	if p.h.OnError != nil {
		p.h.OnError(err)
	}
}

// drainRTCP reads sender reports so interceptors keep working.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
