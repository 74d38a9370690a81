package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rkoval/playlink/internal/middleware"
	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/router"
	"github.com/rkoval/playlink/internal/session"
	"github.com/rkoval/playlink/internal/store"
)

// ServerConfig holds configuration for the connection server
type ServerConfig struct {
	Host            string
	Port            int
	Path            string
	ShutdownTimeout time.Duration
	RateLimit       *RateLimitConfig
	CheckOrigin     func(r *http.Request) bool
}

// RateLimitConfig bounds how many messages one connection may send.
// Exceeding the budget closes the connection with close code 1008.
type RateLimitConfig struct {
	MessagesPerSecond rate.Limit
	Burst             int
	Enabled           bool
}

// DefaultServerConfig returns sensible defaults for the connection server
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "",
		Port:            8080,
		Path:            "/ws",
		ShutdownTimeout: 30 * time.Second,
		RateLimit: &RateLimitConfig{
			MessagesPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Server accepts websocket connections, runs one receive loop per connection
// and hands decoded envelopes to the router.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	players  store.PlayerStore
	registry *session.Registry
	router   *router.Router

	server   *http.Server
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	// live connections, for forced close on shutdown
	conns sync.Map // model.SessionID -> *client
}

// NewServer creates a connection server. Handler wiring happens before this
// call; the router is read-only from here on.
func NewServer(config ServerConfig, players store.PlayerStore, registry *session.Registry, r *router.Router, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	s := &Server{
		config:   config,
		logger:   logger.With(slog.String("component", "ws")),
		players:  players,
		registry: registry,
		router:   r,
		ctx:      ctx,
		cancel:   cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}

	m := mux.NewRouter()
	// Logging first so Recovery sees the wrapped writer and can tell whether
	// the connection was already hijacked when a panic hits.
	m.Use(middleware.Logging(logger))
	m.Use(middleware.Recovery(logger))
	m.HandleFunc(config.Path, s.handleUpgrade).Methods(http.MethodGet)
	m.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: m,
	}
	return s
}

// Handler exposes the route tree, for tests running under httptest
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the server's listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start begins accepting connections. Blocks until Shutdown or a listen error.
func (s *Server) Start() error {
	s.logger.Info("starting connection server",
		slog.String("addr", s.server.Addr),
		slog.String("path", s.config.Path))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and closes every live session.
// In-flight handler calls finish; blocked reads are unblocked by the close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down connection server")
	s.cancel()

	s.conns.Range(func(_, value any) bool {
		if c, ok := value.(*client); ok {
			_ = c.closeWithCode(websocket.CloseGoingAway, "server shutdown")
		}
		return true
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("connection server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleUpgrade promotes the HTTP request to a websocket connection and runs
// the connection's receive loop on this goroutine. Requests for any other
// path never reach here; the mux rejects them before upgrade.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the client error status
		s.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(s.ctx, conn, s.config.RateLimit)
	sess := session.New(c)

	s.conns.Store(sess.ID, c)
	s.registry.Register(sess)

	s.logger.Info("client connected",
		slog.String("session_id", string(sess.ID)),
		slog.String("remote_addr", r.RemoteAddr))

	s.receiveLoop(sess, c)
}

// receiveLoop processes inbound frames strictly in arrival order. Handlers
// run inline, so a connection's requests are never handled concurrently.
func (s *Server) receiveLoop(sess *session.Session, c *client) {
	start := time.Now()
	defer func() {
		s.registry.Unregister(sess.ID)
		s.conns.Delete(sess.ID)
		if sess.Authenticated() {
			// Teardown must not use s.ctx: Shutdown cancels it before the
			// loops unwind, and the presence entry still has to be removed.
			if err := s.players.Logout(context.Background(), sess.PlayerID()); err != nil {
				s.logger.Warn("logout failed",
					slog.String("player_id", string(sess.PlayerID())),
					slog.String("error", err.Error()))
			}
		}
		_ = c.Close(context.Background())
		s.logger.Info("client disconnected",
			slog.String("session_id", string(sess.ID)),
			slog.Duration("connection_duration", time.Since(start)))
	}()

	conn := c.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	// Pong traffic doubles as the presence heartbeat for stores whose
	// presence entries expire. The handler runs on this goroutine, inside
	// ReadMessage, so reading the session's player id is safe.
	refresher, _ := s.players.(store.PresenceRefresher)
	conn.SetPongHandler(func(string) error {
		if refresher != nil && sess.Authenticated() {
			_ = refresher.RefreshPresence(s.ctx, sess.PlayerID())
		}
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Close frame, shutdown, or transport failure; all exit the same way
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read error",
					slog.String("session_id", string(sess.ID)),
					slog.String("error", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}

		if !c.allow() {
			s.logger.Warn("rate limit exceeded", slog.String("session_id", string(sess.ID)))
			_ = c.closeWithCode(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		s.dispatch(sess, data)

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

// dispatch decodes one frame into an envelope and routes it. Malformed frames
// get a BadRequest reply and the loop continues; the client may retry.
func (s *Server) dispatch(sess *session.Session, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		_ = sess.SendError(s.ctx, protocol.CodeBadRequest, err.Error())
		return
	}
	if env.Type == "" {
		_ = sess.SendError(s.ctx, protocol.CodeBadRequest, "missing Type")
		return
	}

	payload := env.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	s.router.Dispatch(s.ctx, sess, env.Type, payload)
}

// SessionCount returns the number of live connections
func (s *Server) SessionCount() int {
	return s.registry.Len()
}
