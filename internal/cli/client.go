package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rkoval/playlink/internal/protocol"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Client is a websocket client for the connection server
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the server's websocket endpoint
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Send marshals the payload into an envelope and writes it as a text frame
func (c *Client) Send(msgType string, payload any) error {
	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop reads envelopes until the connection closes, delivering each
// to the handler. It returns nil on a normal close.
func (c *Client) ReadLoop(handler func(protocol.Envelope)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Skip frames we cannot parse rather than dropping the connection
			continue
		}
		handler(env)
	}
}

// Close sends a close frame and closes the underlying connection
func (c *Client) Close() error {
	deadline := time.Now().Add(writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return c.conn.Close()
}
