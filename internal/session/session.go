package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/protocol"
)

// Conn is the write side of one client connection. Implementations must
// deliver each envelope as a single frame and must tolerate concurrent Send
// calls (a handler's reply and a push racing for the same socket).
type Conn interface {
	Send(ctx context.Context, env protocol.Envelope) error
	Close(ctx context.Context) error
}

// Session represents one accepted connection. It is owned by the connection
// loop that created it; other components hold it only by id via the Registry.
type Session struct {
	ID   model.SessionID
	conn Conn

	// playerID is set once on successful login. It is read and written only
	// from the session's own receive loop, so it needs no lock.
	playerID model.PlayerID
}

// New wraps a connection in a Session with a fresh id
func New(conn Conn) *Session {
	return &Session{
		ID:   model.SessionID(uuid.NewString()),
		conn: conn,
	}
}

// PlayerID returns the associated player identity, or "" before login
func (s *Session) PlayerID() model.PlayerID {
	return s.playerID
}

// Authenticated reports whether a login has succeeded on this session
func (s *Session) Authenticated() bool {
	return s.playerID != ""
}

// Associate binds the session to a player identity after a successful login
func (s *Session) Associate(playerID model.PlayerID) {
	s.playerID = playerID
}

// Send writes one envelope to the session's connection as a single frame
func (s *Session) Send(ctx context.Context, env protocol.Envelope) error {
	return s.conn.Send(ctx, env)
}

// SendError sends an ErrorResponse envelope on the session's own connection
func (s *Session) SendError(ctx context.Context, code, details string) error {
	return s.conn.Send(ctx, protocol.NewError(code, details))
}

// Close closes the underlying connection
func (s *Session) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
