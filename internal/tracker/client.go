package tracker

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Offers carry every gathered
	// candidate, so this is larger than a bare SDP needs.
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection to the tracker.
type Client struct {
	// ID identifies the connection in logs.
	ID string

	hub  *Hub
	conn *websocket.Conn

	// send is drained by WritePump. Only the hub closes it.
	send chan []byte

	// Swarm and PeerID are set by a successful announce.
	Swarm  string
	PeerID string

	partner *Client
	logger  *slog.Logger
}

// ReadPump pumps frames from the websocket connection to the hub. There is
// at most one reader per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			c.logger.Debug("ignoring non-binary frame")
			continue
		}

		msg, err := Decode(frame)
		if err != nil {
			c.logger.Debug("bad frame", "error", err)
			continue
		}
		msg.client = c

		if !c.hub.dispatch(msg) {
			return
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection and
// keeps it alive with pings. There is at most one writer per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
