package factory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/session"
	"github.com/rkoval/playlink/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

// connect registers a fresh session the way a new connection would
func (s *IntegrationSuite) connect() (*session.Session, *testutil.CaptureConn) {
	conn := testutil.NewCaptureConn()
	sess := session.New(conn)
	s.app.Registry.Register(sess)
	return sess, conn
}

func (s *IntegrationSuite) dispatch(sess *session.Session, msgType string, payload any) {
	data, err := json.Marshal(payload)
	s.Require().NoError(err)
	s.app.Router.Dispatch(s.ctx, sess, msgType, data)
}

// Test: complete flow from login through gifting across two sessions
func (s *IntegrationSuite) TestCompleteGiftFlow() {
	// Step 1: Alice logs in
	alice, aliceConn := s.connect()
	s.dispatch(alice, protocol.TypeLogin, protocol.LoginRequest{DeviceID: "device-alice"})

	var aliceLogin protocol.LoginResponse
	s.Require().Equal(protocol.TypeLoginResponse, aliceConn.DecodeLast(s.T(), &aliceLogin))
	s.Require().Equal("OK", aliceLogin.Message)

	// Step 2: Bob logs in on his own connection
	bob, bobConn := s.connect()
	s.dispatch(bob, protocol.TypeLogin, protocol.LoginRequest{DeviceID: "device-bob"})

	var bobLogin protocol.LoginResponse
	s.Require().Equal(protocol.TypeLoginResponse, bobConn.DecodeLast(s.T(), &bobLogin))
	s.Require().Equal("OK", bobLogin.Message)

	// Step 3: Alice spends coins
	s.dispatch(alice, protocol.TypeUpdateResources, protocol.UpdateResourcesRequest{
		ResourceType:  model.ResourceCoins,
		ResourceValue: -30,
	})

	var update protocol.UpdateResourcesResponse
	s.Require().Equal(protocol.TypeUpdateResourcesResponse, aliceConn.DecodeLast(s.T(), &update))
	s.Equal(model.StartingCoins-30, update.NewBalance)

	// Step 4: Alice gifts Bob rolls; the clock stamps the event
	s.app.MockClock.Advance(time.Minute)
	s.dispatch(alice, protocol.TypeSendGift, protocol.SendGiftRequest{
		FriendPlayerID: bobLogin.PlayerID,
		ResourceType:   model.ResourceRolls,
		ResourceValue:  5,
	})

	var gift protocol.SendGiftResponse
	s.Require().Equal(protocol.TypeSendGiftResponse, aliceConn.DecodeLast(s.T(), &gift))
	s.Equal("OK", gift.Status)
	s.Equal(model.StartingRolls+5, gift.FriendNewBalance)

	// Step 5: Bob got the push with the mocked timestamp
	var event protocol.GiftEvent
	s.Require().Equal(protocol.TypeGiftEvent, bobConn.DecodeLast(s.T(), &event))
	s.Equal(aliceLogin.PlayerID, event.FromPlayerID)
	s.Equal(5, event.ResourceValue)
	s.True(s.app.MockClock.Now().UTC().Equal(event.SentAtUTC))

	// Step 6: balances reflect both sides of the gift
	aliceState, err := s.app.Players.GetPlayer(s.ctx, aliceLogin.PlayerID)
	s.Require().NoError(err)
	s.Equal(model.StartingRolls-5, aliceState.Rolls)

	bobState, err := s.app.Players.GetPlayer(s.ctx, bobLogin.PlayerID)
	s.Require().NoError(err)
	s.Equal(model.StartingRolls+5, bobState.Rolls)
}

func TestNewDefaultsToMemoryStore(t *testing.T) {
	app, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = app.Close() }()

	if app.Players == nil || app.Router == nil || app.Registry == nil {
		t.Fatal("expected a fully wired app")
	}
}

func TestNewRejectsUnknownStoreType(t *testing.T) {
	_, err := New(Config{StoreType: "cassandra"})
	if err == nil {
		t.Fatal("expected an error for unknown store type")
	}
}

func TestNewRedisRequiresConfig(t *testing.T) {
	_, err := New(Config{StoreType: StoreTypeRedis})
	if err == nil {
		t.Fatal("expected an error when RedisConfig is missing")
	}
}
