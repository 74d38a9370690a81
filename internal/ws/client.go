package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/session"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong before the connection is considered dead
	pongWait = 60 * time.Second

	// Ping interval; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size
	maxMessageSize = 64 * 1024

	// Buffer size for outgoing envelopes
	sendBufferSize = 256
)

var errConnClosed = errors.New("connection closed")

// client owns the write side of one websocket connection. All outbound
// envelopes funnel through the send channel into a single write pump, so a
// handler reply and a concurrent push can never interleave mid-frame.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Ensure client satisfies the session connection contract
var _ session.Conn = (*client)(nil)

func newClient(parent context.Context, conn *websocket.Conn, rl *RateLimitConfig) *client {
	ctx, cancel := context.WithCancel(parent)

	var limiter *rate.Limiter
	if rl != nil && rl.Enabled {
		limiter = rate.NewLimiter(rl.MessagesPerSecond, rl.Burst)
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writePump()
	return c
}

// Send marshals the envelope and queues it for delivery as one text frame
func (c *client) Send(ctx context.Context, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.mu.Unlock()

	// The select below picks randomly among ready cases, so a queued send
	// could win against an already-dead pump and report success for an
	// envelope nothing will ever write.
	if c.ctx.Err() != nil {
		return errConnClosed
	}

	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errConnClosed
	}
}

// Close attempts a graceful close handshake and releases the connection.
// Safe to call more than once; errors during the final close are swallowed.
func (c *client) Close(ctx context.Context) error {
	return c.closeWithCode(websocket.CloseNormalClosure, "")
}

func (c *client) closeWithCode(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

// allow reports whether the connection is within its message rate budget
func (c *client) allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// writePump moves queued envelopes onto the wire and keeps the connection
// alive with periodic pings. It is the only goroutine that writes data frames.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
