package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// sendBuffer bounds the per-client outbound queue. A client that
	// cannot drain it is dropped rather than allowed to stall fan-out.
	sendBuffer = 256

	maxMessageSize = 8192
)

// Client is one live websocket connection bound to a player.
type Client struct {
	broker   *Broker
	conn     *websocket.Conn
	send     chan []byte
	playerID string

	// matchID is the room the client has joined, if any. Written only
	// from the broker under its lock.
	matchID   string
	spectator bool

	// sendMu serializes sends with closeSend: room broadcasts snapshot
	// members under the broker lock but send outside it, so without this
	// a disconnect could close the channel mid-send and panic.
	sendMu sync.Mutex
	closed bool
}

// trySend enqueues an already-encoded frame. Returns false when the
// client's buffer is full, which marks it dead. Frames for a client
// already torn down are silently dropped.
func (c *Client) trySend(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once, fencing off any
// concurrent trySend.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendEnvelope(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		c.broker.logger.Error("failed to encode envelope",
			zap.String("type", env.Type),
			zap.Error(err),
		)
		return
	}
	if !c.trySend(frame) {
		c.broker.dropSlowClient(c)
	}
}

func (c *Client) sendError(code, message string) {
	c.sendEnvelope(Envelope{
		Type: msgError,
		Data: mustMarshal(errorData{Code: code, Message: message}),
	})
}

// readPump reads frames until the connection dies. Pong handling feeds
// the heartbeat: a client that misses enough pongs blows its read
// deadline and falls out of the loop.
func (c *Client) readPump() {
	defer func() {
		c.broker.unregister(c)
		c.conn.Close()
	}()

	deadline := c.broker.heartbeatInterval * time.Duration(c.broker.heartbeatMisses)
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.broker.logger.Debug("websocket read error",
					zap.String("player_id", c.playerID),
					zap.Error(err),
				)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.sendError("BAD_ENVELOPE", "message is not a valid envelope")
			continue
		}
		c.broker.handleMessage(c, env)
	}
}

// writePump writes queued frames and drives the protocol-level ping.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.broker.heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.broker.writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.broker.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
