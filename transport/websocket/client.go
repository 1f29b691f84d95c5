package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong (or any frame) from the peer.
	pongWait = staleAfter

	// Send protocol pings at this interval; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound buffer per client; a full buffer drops the client.
	sendBufferSize = 256
)

// Client is one connected user socket owned by this process.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// sendMu guards send against a concurrent close: broadcasts enqueue
	// from registry snapshots that may outlive unregistration.
	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// Immutable handshake identity.
	ID         string
	UserID     string
	SessionID  string
	CampaignID string
	IsGM       bool

	// lastPing is the unix-nano time of the last inbound frame.
	lastPing atomic.Int64
}

// touch records inbound activity for the heartbeat sweep.
func (c *Client) touch() {
	c.lastPing.Store(time.Now().UnixNano())
}

// LastPing returns the time of the client's last inbound activity.
func (c *Client) LastPing() time.Time {
	return time.Unix(0, c.lastPing.Load())
}

// enqueue hands a frame to the write pump without blocking. It reports
// whether the frame was accepted; frames for a closed client are
// discarded, not refused.
func (c *Client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Stale references held
// by in-flight broadcasts then discard instead of sending on a closed
// channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendEnvelope JSON-encodes an envelope onto the client's send buffer.
func (c *Client) sendEnvelope(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal envelope for client %s: %v", c.ID, err)
		return
	}
	if !c.enqueue(data) {
		c.hub.dropClient(c, "send buffer full")
	}
}

// readPump reads envelopes from the socket and dispatches them until the
// connection errors or closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c, true)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Client %s read error: %v", c.ID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Malformed inbound messages are logged and dropped.
			log.Printf("Client %s sent malformed message: %v", c.ID, err)
			continue
		}
		env.SessionID = c.SessionID
		env.UserID = c.UserID
		if env.Timestamp == 0 {
			env.Timestamp = time.Now().UnixMilli()
		}
		c.hub.dispatch(c, env)
	}
}

// writePump writes queued frames to the socket and pings the peer on a
// ticker, until the send channel closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
