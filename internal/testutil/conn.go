package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rkoval/playlink/internal/protocol"
)

// CaptureConn is a session.Conn that records every envelope sent through it.
// Safe for concurrent Send.
type CaptureConn struct {
	mu     sync.Mutex
	sent   []protocol.Envelope
	closed bool
}

// NewCaptureConn creates an empty capture connection
func NewCaptureConn() *CaptureConn {
	return &CaptureConn{}
}

func (c *CaptureConn) Send(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *CaptureConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Sent returns a copy of everything sent so far
func (c *CaptureConn) Sent() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

// Closed reports whether Close was called
func (c *CaptureConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Last returns the most recent envelope, failing the test if none was sent
func (c *CaptureConn) Last(t *testing.T) protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no envelope was sent")
	}
	return c.sent[len(c.sent)-1]
}

// DecodeLast unmarshals the most recent envelope's payload into out and
// returns its type tag.
func (c *CaptureConn) DecodeLast(t *testing.T, out any) string {
	t.Helper()
	env := c.Last(t)
	if err := json.Unmarshal(env.Payload, out); err != nil {
		t.Fatalf("failed to decode %s payload: %v", env.Type, err)
	}
	return env.Type
}
