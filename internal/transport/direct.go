package transport

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

type DirectConfig struct {
	ICE           rtc.ICEConfig
	GatherTimeout time.Duration
}

// DirectTransport is negotiated by hand: one side pastes the other's offer
// and returns an answer. Audio and video transceivers exist from the first
// offer, so media changes are track swaps and never renegotiate.
type DirectTransport struct {
	cfg    DirectConfig
	h      Handlers
	logger *slog.Logger

	pc      *pion.PeerConnection
	senders map[pion.RTPCodecType]*pion.RTPSender

	mu      sync.Mutex
	channel *rtc.DataChannel
	state   State
	closed  bool

	opened   chan struct{}
	openOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func NewDirect(cfg DirectConfig, h Handlers, logger *slog.Logger) (*DirectTransport, error) {
	pc, err := rtc.NewPeerConnection(cfg.ICE)
	if err != nil {
		return nil, failure.Wrap("create peer connection", failure.ErrSignaling, err)
	}

	t := &DirectTransport{
		cfg:     cfg,
		h:       h,
		logger:  logger.With("component", "transport", "kind", KindDirect.String()),
		pc:      pc,
		senders: make(map[pion.RTPCodecType]*pion.RTPSender),
		opened:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		tr, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			pc.Close()
			return nil, failure.Wrap("add "+kind.String()+" transceiver", failure.ErrSignaling, err)
		}
		t.senders[kind] = tr.Sender()
	}

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		t.setState(fromPeerState(s))
	})
	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		if t.h.OnTrack != nil {
			t.h.OnTrack(track)
		}
	})
	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != rtc.ChannelLabel {
			t.logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		t.bindChannel(dc)
	})

	return t, nil
}

func (t *DirectTransport) Kind() Kind { return KindDirect }

// Offer creates the data channel and returns the offer text once ICE
// gathering has finished.
func (t *DirectTransport) Offer(ctx context.Context) (string, error) {
	if t.pc.SignalingState() != pion.SignalingStateStable || t.pc.LocalDescription() != nil {
		return "", failure.WrapDetails("create offer", failure.ErrInvalidState, "offer already created")
	}

	dc, err := rtc.CreateDataChannel(t.pc)
	if err != nil {
		return "", failure.Wrap("create data channel", failure.ErrSignaling, err)
	}
	t.bindChannel(dc)

	desc, err := rtc.CreateOffer(ctx, t.pc, t.cfg.GatherTimeout)
	if err != nil {
		return "", err
	}
	return rtc.EncodeDescription(desc)
}

// Answer applies a pasted offer and returns the answer text.
func (t *DirectTransport) Answer(ctx context.Context, offerText string) (string, error) {
	if t.pc.SignalingState() != pion.SignalingStateStable || t.pc.RemoteDescription() != nil {
		return "", failure.WrapDetails("create answer", failure.ErrInvalidState, "already negotiated")
	}

	offer, err := rtc.DecodeDescription(offerText, pion.SDPTypeOffer)
	if err != nil {
		return "", err
	}

	desc, err := rtc.CreateAnswer(ctx, t.pc, offer, t.cfg.GatherTimeout)
	if err != nil {
		return "", err
	}
	t.setState(StateConnecting)
	return rtc.EncodeDescription(desc)
}

// Accept applies the pasted answer to our offer.
func (t *DirectTransport) Accept(answerText string) error {
	if t.pc.SignalingState() != pion.SignalingStateHaveLocalOffer {
		return failure.WrapDetails("accept answer", failure.ErrInvalidState, "no offer in flight")
	}

	answer, err := rtc.DecodeDescription(answerText, pion.SDPTypeAnswer)
	if err != nil {
		return err
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return failure.Wrap("accept answer", failure.ErrSignalingParse, err)
	}

	t.setState(StateConnecting)
	return nil
}

func (t *DirectTransport) Open(ctx context.Context) (protocol.Channel, error) {
	select {
	case <-t.opened:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.channel, nil
	case <-t.done:
		return nil, failure.Wrap("open channel", failure.ErrPeerDisconnected, ErrClosed)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, failure.Wrap("open channel", failure.ErrTimeout, ctx.Err())
		}
		return nil, failure.Wrap("open channel", failure.ErrSignaling, ctx.Err())
	}
}

func (t *DirectTransport) Send(data []byte) error {
	ch, err := t.openChannel()
	if err != nil {
		return err
	}
	return ch.Send(data)
}

func (t *DirectTransport) SendText(text string) error {
	ch, err := t.openChannel()
	if err != nil {
		return err
	}
	return ch.SendText(text)
}

func (t *DirectTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *DirectTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.state = StateClosed
	t.mu.Unlock()

	t.doneOnce.Do(func() { close(t.done) })
	return t.pc.Close()
}

// AttachMedia swaps tracks onto the pre-created senders.
func (t *DirectTransport) AttachMedia(tracks ...pion.TrackLocal) error {
	for _, track := range tracks {
		if err := t.ReplaceMedia(track.Kind(), track); err != nil {
			return err
		}
	}
	return nil
}

func (t *DirectTransport) ReplaceMedia(kind pion.RTPCodecType, track pion.TrackLocal) error {
	sender, ok := t.senders[kind]
	if !ok {
		return ErrUnsupported
	}
	return sender.ReplaceTrack(track)
}

func (t *DirectTransport) DetachMedia(kind pion.RTPCodecType) error {
	return t.ReplaceMedia(kind, nil)
}

func (t *DirectTransport) HasSender(kind pion.RTPCodecType) bool {
	_, ok := t.senders[kind]
	return ok
}

func (t *DirectTransport) Capabilities() rtc.Capabilities {
	return rtc.Capabilities{ReplaceTrack: true}
}

func (t *DirectTransport) bindChannel(dc *pion.DataChannel) {
	t.mu.Lock()
	t.channel = rtc.NewDataChannel(dc)
	t.mu.Unlock()

	dc.OnOpen(func() {
		t.openOnce.Do(func() { close(t.opened) })
		if t.h.OnChannelOpen != nil {
			t.h.OnChannelOpen()
		}
	})
	dc.OnClose(func() {
		if t.isClosed() {
			return
		}
		if t.h.OnChannelClose != nil {
			t.h.OnChannelClose()
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if t.h.OnMessage != nil {
			t.h.OnMessage(msg.Data, msg.IsString)
		}
	})
}

func (t *DirectTransport) openChannel() (*rtc.DataChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.channel == nil || !t.channel.Ready() {
		return nil, protocol.ErrChannelNotOpen
	}
	return t.channel, nil
}

func (t *DirectTransport) setState(s State) {
	t.mu.Lock()
	if t.closed || t.state == s || s == StateNew {
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

func (t *DirectTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
