package tracker

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Stats is a snapshot of the hub, served on /stats.
type Stats struct {
	Clients int `json:"clients"`
	Swarms  int `json:"swarms"`
	Waiting int `json:"waiting"`
	Paired  int `json:"paired"`
}

// Hub pairs announcing clients and relays signals between partners.
// Run is the single goroutine that touches swarms and clients.
type Hub struct {
	swarms  map[string]*Swarm
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan *Message
	stats      chan chan Stats

	// done is closed when Run returns so pumps never block on a dead hub.
	done chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		swarms:     make(map[string]*Swarm),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Message),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

// Connect wraps an upgraded connection in a client, registers it and
// starts its pumps.
func (h *Hub) Connect(conn *websocket.Conn) *Client {
	id := uuid.NewString()
	c := &Client{
		ID:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		logger: h.logger.With("client", id),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return c
	}

	go c.WritePump()
	go c.ReadPump()
	return c
}

// Stats asks the run loop for a snapshot.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, context.Canceled
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Run processes registrations and inbound frames until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Info("client registered", "client", c.ID, "remote", c.conn.RemoteAddr())

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			h.logger.Info("client unregistered", "client", c.ID, "peer", c.PeerID)
			h.leave(c)
			delete(h.clients, c)
			close(c.send)

		case msg := <-h.inbound:
			h.handle(msg)

		case reply := <-h.stats:
			reply <- h.snapshot()
		}
	}
}

func (h *Hub) dispatch(msg *Message) bool {
	select {
	case h.inbound <- msg:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) handle(msg *Message) {
	c := msg.client
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch msg.Type {
	case TypeAnnounce:
		var a Announce
		if err := msg.DecodePayload(&a); err != nil {
			h.fail(c, "Malformed announce")
			return
		}
		h.announce(c, a)

	case TypeSignal:
		var s Signal
		if err := msg.DecodePayload(&s); err != nil {
			h.fail(c, "Malformed signal")
			return
		}
		h.relay(c, s)

	case TypeLeave:
		h.leave(c)

	default:
		h.logger.Debug("unknown message type", "type", msg.Type, "client", c.ID)
		h.post(c, TypeWarning, Notice{Message: "Unknown message type " + msg.Type})
	}
}

func (h *Hub) announce(c *Client, a Announce) {
	if a.Swarm == "" || a.PeerID == "" {
		h.fail(c, "Announce needs a swarm and a peer id")
		return
	}
	if c.Swarm != "" {
		h.fail(c, "Already announced")
		return
	}

	swarm, ok := h.swarms[a.Swarm]
	if !ok {
		swarm = newSwarm(a.Swarm)
		h.swarms[a.Swarm] = swarm
	}
	if swarm.has(a.PeerID) {
		h.fail(c, "Peer id already in use")
		return
	}

	c.Swarm = a.Swarm
	c.PeerID = a.PeerID
	swarm.add(c)
	h.logger.Info("announce", "swarm", a.Swarm, "peer", a.PeerID)

	initiator, responder, ok := swarm.pair()
	if !ok {
		return
	}
	h.logger.Info("paired", "swarm", swarm.ID, "initiator", initiator.PeerID, "responder", responder.PeerID)
	h.post(initiator, TypePeer, PeerFound{PeerID: responder.PeerID, Initiator: true})
	h.post(responder, TypePeer, PeerFound{PeerID: initiator.PeerID, Initiator: false})
}

func (h *Hub) relay(c *Client, s Signal) {
	target := c.partner
	if target == nil {
		h.fail(c, "Not paired")
		return
	}
	if s.To != "" && s.To != target.PeerID {
		h.fail(c, "Unknown peer "+s.To)
		return
	}
	h.post(target, TypeSignal, Signal{From: c.PeerID, Data: s.Data})
}

// leave drops c from its swarm and tells its partner. The connection stays
// open so the client may announce again.
func (h *Hub) leave(c *Client) {
	if partner := c.partner; partner != nil {
		partner.partner = nil
		c.partner = nil
		h.post(partner, TypePeerLeft, PeerLeft{PeerID: c.PeerID})
	}

	if swarm, ok := h.swarms[c.Swarm]; ok {
		swarm.remove(c)
		if swarm.empty() {
			delete(h.swarms, swarm.ID)
			h.logger.Debug("swarm deleted", "swarm", swarm.ID)
		}
	}
	c.Swarm = ""
	c.PeerID = ""
}

func (h *Hub) fail(c *Client, message string) {
	h.logger.Info("rejecting client request", "client", c.ID, "reason", message)
	h.post(c, TypeError, Notice{Message: message})
}

// post queues a frame for c. A client that stops reading loses frames
// rather than stalling the hub.
func (h *Hub) post(c *Client, typ string, payload any) {
	frame, err := Encode(typ, payload)
	if err != nil {
		h.logger.Error("encode failed", "type", typ, "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
		h.logger.Warn("client send buffer full, dropping frame", "client", c.ID, "type", typ)
	}
}

func (h *Hub) snapshot() Stats {
	s := Stats{Clients: len(h.clients), Swarms: len(h.swarms)}
	for _, swarm := range h.swarms {
		s.Waiting += len(swarm.waiting)
		for _, c := range swarm.members {
			if c.partner != nil {
				s.Paired++
			}
		}
	}
	return s
}
