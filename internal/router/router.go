package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/session"
)

// Handler is the unit of logic bound to one request type tag.
type Handler interface {
	// Type returns the request type tag this handler serves
	Type() string

	// Handle processes one request. The handler sends its own reply (and any
	// push) over the sessions involved; errors that belong on the wire go out
	// as Error envelopes, not up the stack.
	Handle(ctx context.Context, sess *session.Session, payload json.RawMessage)
}

// Router dispatches request envelopes to handlers by type tag.
// The handler set is fixed at construction; lookup is case-insensitive.
type Router struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// New builds a router over the given handlers
func New(logger *slog.Logger, handlers ...Handler) *Router {
	m := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		m[strings.ToLower(h.Type())] = h
	}
	return &Router{
		handlers: m,
		logger:   logger.With(slog.String("component", "router")),
	}
}

// Dispatch routes one decoded envelope to its handler. An unregistered type
// tag yields an UnknownType error reply on the session; the connection stays
// open either way.
func (r *Router) Dispatch(ctx context.Context, sess *session.Session, msgType string, payload json.RawMessage) {
	h, ok := r.handlers[strings.ToLower(msgType)]
	if !ok {
		r.logger.Warn("unknown message type",
			slog.String("type", msgType),
			slog.String("session_id", string(sess.ID)))
		_ = sess.SendError(ctx, protocol.CodeUnknownType, msgType)
		return
	}
	h.Handle(ctx, sess, payload)
}
