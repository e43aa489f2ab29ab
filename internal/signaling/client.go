package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/Warpchat/internal/dns"
	"github.com/BioHazard786/Warpchat/internal/tracker"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClientClosed = errors.New("tracker connection closed")

// Client manages the websocket connection to one tracker endpoint.
type Client struct {
	endpoint string
	resolver *dns.Resolver
	logger   *slog.Logger

	conn     *websocket.Conn
	incoming chan *tracker.Message
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once
}

func NewClient(endpoint string, resolver *dns.Resolver, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		resolver: resolver,
		logger:   logger.With("endpoint", endpoint),
		incoming: make(chan *tracker.Message, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Connect dials the endpoint through the fallback resolver and starts the
// pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid tracker URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = c.resolver.DialContext

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	select {
	case <-c.done:
		conn.Close()
		return ErrClientClosed
	default:
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump decodes frames until the connection drops, then closes Incoming.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := tracker.Decode(frame)
		if err != nil {
			c.logger.Debug("dropping bad frame", "error", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Flush whatever was queued before the close, typically a leave.
		drain:
			for {
				select {
				case frame := <-c.outgoing:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.BinaryMessage, frame)
				default:
					break drain
				}
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues one frame for the tracker.
func (c *Client) Send(typ string, payload any) error {
	frame, err := tracker.Encode(typ, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

// Incoming is closed when the connection drops.
func (c *Client) Incoming() <-chan *tracker.Message {
	return c.incoming
}

// Close stops the pumps. It is safe to call more than once and before
// Connect, which then fails with ErrClientClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
