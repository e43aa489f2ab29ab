package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpchat/internal/dns"
	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/tracker"
)

var (
	ErrNoEndpoints = errors.New("no announce endpoints")
	ErrNotMatched  = errors.New("no peer matched yet")
)

// DiscoveryConfig names the swarm to join, the local peer id and the
// tracker endpoints to announce on.
type DiscoveryConfig struct {
	SwarmID   string
	PeerID    string
	Endpoints []string
}

// Match is the first peer any endpoint paired us with.
type Match struct {
	PeerID    string
	Initiator bool
	Endpoint  string
}

// DiscoveryHandlers receive discovery events. They run on endpoint reader
// goroutines and must not block.
type DiscoveryHandlers struct {
	OnPeer     func(Match)
	OnSignal   func(from string, data []byte)
	OnPeerLeft func(peerID string)
	OnWarning  func(error)
	OnError    func(error)
}

// Discovery announces on every endpoint at once. The first endpoint to
// pair us wins and the others are closed.
type Discovery struct {
	cfg      DiscoveryConfig
	h        DiscoveryHandlers
	resolver *dns.Resolver
	logger   *slog.Logger

	mu      sync.Mutex
	clients []*Client
	winner  *Client
	match   Match
	failed  map[*Client]bool
	errored bool
	closed  bool
}

func NewDiscovery(cfg DiscoveryConfig, resolver *dns.Resolver, h DiscoveryHandlers, logger *slog.Logger) *Discovery {
	return &Discovery{
		cfg:      cfg,
		h:        h,
		resolver: resolver,
		logger:   logger.With("component", "discovery", "swarm", cfg.SwarmID),
		failed:   make(map[*Client]bool),
	}
}

// Start connects to every endpoint in the background. Results arrive
// through the handlers.
func (d *Discovery) Start(ctx context.Context) error {
	if len(d.cfg.Endpoints) == 0 {
		return failure.Wrap("discover", failure.ErrTransportUnavailable, ErrNoEndpoints)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return failure.New("discover", failure.ErrInvalidState)
	}

	for _, endpoint := range d.cfg.Endpoints {
		c := NewClient(endpoint, d.resolver, d.logger)
		d.clients = append(d.clients, c)
		go d.run(ctx, c)
	}
	return nil
}

// Signal relays negotiation data to the matched peer.
func (d *Discovery) Signal(data []byte) error {
	d.mu.Lock()
	winner, to := d.winner, d.match.PeerID
	d.mu.Unlock()

	if winner == nil {
		return failure.Wrap("relay signal", failure.ErrSignaling, ErrNotMatched)
	}
	if err := winner.Send(tracker.TypeSignal, tracker.Signal{To: to, Data: data}); err != nil {
		return failure.Wrap("relay signal", failure.ErrSignaling, err)
	}
	return nil
}

// Close leaves the swarm and drops every endpoint. It is idempotent.
func (d *Discovery) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	clients, winner := d.clients, d.winner
	d.mu.Unlock()

	if winner != nil {
		winner.Send(tracker.TypeLeave, nil)
	}
	for _, c := range clients {
		c.Close()
	}
}

func (d *Discovery) run(ctx context.Context, c *Client) {
	if err := c.Connect(ctx); err != nil {
		d.endpointFailed(c, err)
		return
	}

	if err := c.Send(tracker.TypeAnnounce, tracker.Announce{Swarm: d.cfg.SwarmID, PeerID: d.cfg.PeerID}); err != nil {
		d.endpointFailed(c, err)
		return
	}
	d.logger.Debug("announced", "endpoint", c.Endpoint())

	for msg := range c.Incoming() {
		d.handle(c, msg)
	}

	d.mu.Lock()
	won, closed := d.winner == c, d.closed
	d.mu.Unlock()

	switch {
	case closed:
	case won:
		d.logger.Warn("tracker connection lost after match", "endpoint", c.Endpoint())
	default:
		d.endpointFailed(c, ErrClientClosed)
	}
}

func (d *Discovery) handle(c *Client, msg *tracker.Message) {
	switch msg.Type {
	case tracker.TypePeer:
		var found tracker.PeerFound
		if err := msg.DecodePayload(&found); err != nil {
			d.logger.Debug("bad peer frame", "error", err)
			return
		}
		d.bind(c, found)

	case tracker.TypeSignal:
		var s tracker.Signal
		if err := msg.DecodePayload(&s); err != nil {
			d.logger.Debug("bad signal frame", "error", err)
			return
		}
		if !d.fromWinner(c, s.From) {
			d.logger.Debug("ignoring signal from unbound peer", "from", s.From)
			return
		}
		if d.h.OnSignal != nil {
			d.h.OnSignal(s.From, s.Data)
		}

	case tracker.TypePeerLeft:
		var left tracker.PeerLeft
		if err := msg.DecodePayload(&left); err != nil {
			return
		}
		if d.fromWinner(c, left.PeerID) && d.h.OnPeerLeft != nil {
			d.h.OnPeerLeft(left.PeerID)
		}

	case tracker.TypeWarning:
		var n tracker.Notice
		msg.DecodePayload(&n)
		d.warn(fmt.Errorf("%s: %s", c.Endpoint(), n.Message))

	case tracker.TypeError:
		var n tracker.Notice
		msg.DecodePayload(&n)
		err := fmt.Errorf("tracker error: %s", n.Message)

		d.mu.Lock()
		won := d.winner == c
		d.mu.Unlock()

		if won {
			d.warn(fmt.Errorf("%s: %w", c.Endpoint(), err))
			return
		}
		// An endpoint that refuses the announce is as good as down.
		c.Close()
		d.endpointFailed(c, err)
	}
}

// bind keeps the first match and closes every other endpoint.
func (d *Discovery) bind(c *Client, found tracker.PeerFound) {
	d.mu.Lock()
	if d.closed || d.winner != nil {
		d.mu.Unlock()
		d.logger.Debug("ignoring extra match", "endpoint", c.Endpoint(), "peer", found.PeerID)
		return
	}
	d.winner = c
	d.match = Match{PeerID: found.PeerID, Initiator: found.Initiator, Endpoint: c.Endpoint()}
	match := d.match
	var losers []*Client
	for _, other := range d.clients {
		if other != c {
			losers = append(losers, other)
		}
	}
	d.mu.Unlock()

	for _, other := range losers {
		other.Close()
	}

	d.logger.Info("matched", "peer", match.PeerID, "initiator", match.Initiator, "endpoint", match.Endpoint)
	if d.h.OnPeer != nil {
		d.h.OnPeer(match)
	}
}

func (d *Discovery) fromWinner(c *Client, peerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.winner == c && d.match.PeerID == peerID
}

func (d *Discovery) endpointFailed(c *Client, err error) {
	d.mu.Lock()
	if d.closed || d.winner != nil || d.failed[c] {
		d.mu.Unlock()
		return
	}
	d.failed[c] = true
	all := len(d.failed) >= len(d.cfg.Endpoints) && !d.errored
	if all {
		d.errored = true
	}
	d.mu.Unlock()

	d.warn(failure.Wrap("announce on "+c.Endpoint(), failure.ErrSignaling, err))

	if all && d.h.OnError != nil {
		d.h.OnError(failure.WrapDetails("discover", failure.ErrTransportUnavailable,
			fmt.Sprintf("all %d announce endpoints failed", len(d.cfg.Endpoints))))
	}
}

func (d *Discovery) warn(err error) {
	d.logger.Warn("discovery warning", "error", err)
	if d.h.OnWarning != nil {
		d.h.OnWarning(err)
	}
}
