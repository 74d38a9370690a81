package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/rkoval/playlink/internal/dependencies/clock"
	"github.com/rkoval/playlink/internal/handlers"
	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/router"
	"github.com/rkoval/playlink/internal/session"
	"github.com/rkoval/playlink/internal/store/memory"
	redisstore "github.com/rkoval/playlink/internal/store/redis"
	"github.com/rkoval/playlink/internal/testutil"
)

const readTimeout = 5 * time.Second

type ServerSuite struct {
	suite.Suite
	store    *memory.Store
	registry *session.Registry
	server   *Server
	ts       *httptest.Server
	ctx      context.Context
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.server, s.ts = s.newTestServer(DefaultServerConfig())
	s.ctx = context.Background()
}

func (s *ServerSuite) TearDownTest() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.ts.Close()
}

// newTestServer wires a full server over an in-memory store and serves it
// through httptest.
func (s *ServerSuite) newTestServer(cfg ServerConfig) (*Server, *httptest.Server) {
	logger := testutil.NopLogger()
	s.store = memory.New()
	s.registry = session.NewRegistry()

	r := router.New(logger,
		handlers.NewLogin(s.store, logger),
		handlers.NewUpdateResources(s.store, logger),
		handlers.NewSendGift(s.store, s.registry, clock.New(), logger),
	)

	server := NewServer(cfg, s.store, s.registry, r, logger)
	return server, httptest.NewServer(server.Handler())
}

func (s *ServerSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + s.server.config.Path
}

func (s *ServerSuite) dial() *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), nil)
	s.Require().NoError(err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *ServerSuite) send(conn *websocket.Conn, msgType string, payload any) {
	env, err := protocol.NewEnvelope(msgType, payload)
	s.Require().NoError(err)
	data, err := json.Marshal(env)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, data))
}

func (s *ServerSuite) read(conn *websocket.Conn) protocol.Envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := conn.ReadMessage()
	s.Require().NoError(err)

	var env protocol.Envelope
	s.Require().NoError(json.Unmarshal(data, &env))
	return env
}

func (s *ServerSuite) decode(env protocol.Envelope, out any) {
	s.Require().NoError(json.Unmarshal(env.Payload, out))
}

// login performs a Login round trip on the connection and returns the player id
func (s *ServerSuite) login(conn *websocket.Conn, deviceID string) model.PlayerID {
	s.send(conn, protocol.TypeLogin, protocol.LoginRequest{DeviceID: deviceID})

	env := s.read(conn)
	s.Require().Equal(protocol.TypeLoginResponse, env.Type)

	var resp protocol.LoginResponse
	s.decode(env, &resp)
	s.Require().Equal("OK", resp.Message)
	s.Require().NotEmpty(resp.PlayerID)
	return resp.PlayerID
}

// Connection tests

func (s *ServerSuite) TestLoginRoundTrip() {
	conn := s.dial()
	playerID := s.login(conn, "device-a")

	online, err := s.store.IsOnline(s.ctx, playerID)
	s.Require().NoError(err)
	s.True(online)
	s.Equal(1, s.server.SessionCount())
}

func (s *ServerSuite) TestUpdateAndGiftScenario() {
	alice := s.dial()
	aliceID := s.login(alice, "device-alice")

	bob := s.dial()
	bobID := s.login(bob, "device-bob")

	// Alice spends 30 coins
	s.send(alice, protocol.TypeUpdateResources, protocol.UpdateResourcesRequest{
		ResourceType:  model.ResourceCoins,
		ResourceValue: -30,
	})
	env := s.read(alice)
	s.Require().Equal(protocol.TypeUpdateResourcesResponse, env.Type)

	var update protocol.UpdateResourcesResponse
	s.decode(env, &update)
	s.Equal(model.StartingCoins-30, update.NewBalance)

	// Alice gifts Bob 5 rolls
	s.send(alice, protocol.TypeSendGift, protocol.SendGiftRequest{
		FriendPlayerID: bobID,
		ResourceType:   model.ResourceRolls,
		ResourceValue:  5,
	})

	env = s.read(alice)
	s.Require().Equal(protocol.TypeSendGiftResponse, env.Type)
	var gift protocol.SendGiftResponse
	s.decode(env, &gift)
	s.Equal("OK", gift.Status)
	s.Equal(model.StartingRolls+5, gift.FriendNewBalance)

	// Bob is pushed a gift notification he never asked for
	env = s.read(bob)
	s.Require().Equal(protocol.TypeGiftEvent, env.Type)
	var event protocol.GiftEvent
	s.decode(env, &event)
	s.Equal(aliceID, event.FromPlayerID)
	s.Equal(model.ResourceRolls, event.ResourceType)
	s.Equal(5, event.ResourceValue)
	s.False(event.SentAtUTC.IsZero())
}

func (s *ServerSuite) TestUnknownTypeKeepsConnectionOpen() {
	conn := s.dial()

	s.send(conn, "Foo", struct{}{})

	env := s.read(conn)
	s.Require().Equal(protocol.TypeError, env.Type)
	var resp protocol.ErrorResponse
	s.decode(env, &resp)
	s.Equal(protocol.CodeUnknownType, resp.Error)

	// The connection survives and a valid request still works
	s.login(conn, "device-a")
}

func (s *ServerSuite) TestMalformedFrameKeepsConnectionOpen() {
	conn := s.dial()

	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"Type": "Login",`)))

	env := s.read(conn)
	s.Require().Equal(protocol.TypeError, env.Type)
	var resp protocol.ErrorResponse
	s.decode(env, &resp)
	s.Equal(protocol.CodeBadRequest, resp.Error)

	s.login(conn, "device-a")
}

func (s *ServerSuite) TestMissingTypeTag() {
	conn := s.dial()

	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"Payload": {}, "Version": 1}`)))

	env := s.read(conn)
	s.Require().Equal(protocol.TypeError, env.Type)
	var resp protocol.ErrorResponse
	s.decode(env, &resp)
	s.Equal(protocol.CodeBadRequest, resp.Error)
	s.Equal("missing Type", resp.Details)
}

func (s *ServerSuite) TestBinaryFramesAreIgnored() {
	conn := s.dial()

	s.Require().NoError(conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	// No reply for the binary frame; the next text frame is handled normally
	s.login(conn, "device-a")
}

func (s *ServerSuite) TestDisconnectMarksPlayerOffline() {
	conn := s.dial()
	playerID := s.login(conn, "device-a")

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.Require().NoError(conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	_ = conn.Close()

	s.Eventually(func() bool {
		online, err := s.store.IsOnline(s.ctx, playerID)
		return err == nil && !online
	}, readTimeout, 10*time.Millisecond)

	s.Eventually(func() bool {
		return s.server.SessionCount() == 0
	}, readTimeout, 10*time.Millisecond)
}

func (s *ServerSuite) TestReconnectAfterDisconnect() {
	first := s.dial()
	firstID := s.login(first, "device-a")

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.Require().NoError(first.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	_ = first.Close()

	s.Eventually(func() bool {
		online, err := s.store.IsOnline(s.ctx, firstID)
		return err == nil && !online
	}, readTimeout, 10*time.Millisecond)

	second := s.dial()
	secondID := s.login(second, "device-a")
	s.Equal(firstID, secondID)
}

func (s *ServerSuite) TestHealthEndpoint() {
	resp, err := http.Get(s.ts.URL + "/healthz")
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("application/json", resp.Header.Get("Content-Type"))
}

func (s *ServerSuite) TestUnknownPathRejected() {
	resp, err := http.Get(s.ts.URL + "/other")
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *ServerSuite) TestPlainHTTPOnWebsocketPath() {
	resp, err := http.Get(s.ts.URL + s.server.config.Path)
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

// Graceful shutdown must release presence even when the store outlives the
// process, so this runs against the redis backend.

func TestShutdownReleasesRedisPresence(t *testing.T) {
	logger := testutil.NopLogger()

	mini := miniredis.RunT(t)
	players := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mini.Addr()}), redisstore.DefaultConfig())
	defer func() { _ = players.Close() }()

	registry := session.NewRegistry()
	r := router.New(logger, handlers.NewLogin(players, logger))

	server := NewServer(DefaultServerConfig(), players, registry, r, logger)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	env, err := protocol.NewEnvelope(protocol.TypeLogin, protocol.LoginRequest{DeviceID: "device-a"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var reply protocol.Envelope
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatal(err)
	}
	var login protocol.LoginResponse
	if err := json.Unmarshal(reply.Payload, &login); err != nil {
		t.Fatal(err)
	}
	if login.Message != "OK" || login.PlayerID == "" {
		t.Fatalf("login failed: %+v", login)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}

	// The teardown logout must succeed despite the server context being
	// canceled, or the player stays locked out across restarts
	deadline := time.Now().Add(readTimeout)
	for {
		online, err := players.IsOnline(context.Background(), login.PlayerID)
		if err != nil {
			t.Fatal(err)
		}
		if !online {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("presence entry survived graceful shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Rate limiting gets its own server with a tiny budget

func TestRateLimitClosesConnection(t *testing.T) {
	logger := testutil.NopLogger()
	playerStore := memory.New()
	registry := session.NewRegistry()

	r := router.New(logger, handlers.NewLogin(playerStore, logger))

	cfg := DefaultServerConfig()
	cfg.RateLimit = &RateLimitConfig{
		MessagesPerSecond: 1,
		Burst:             3,
		Enabled:           true,
	}

	server := NewServer(cfg, playerStore, registry, r, logger)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+cfg.Path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	// Blow through the burst budget
	for i := 0; i < 20; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"Type":"Foo","Version":1}`)); err != nil {
			break
		}
	}

	// The server must close with a policy violation once the budget runs out
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("expected close code %d, got %v", websocket.ClosePolicyViolation, err)
			}
			return
		}
	}
}
