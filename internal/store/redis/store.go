package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/store"
)

// Store is a Redis-backed implementation of the player store. Per-player
// atomicity comes from Redis itself: presence uses SETNX check-then-act and
// balance updates run as a Lua script, so no in-process locking is needed.
type Store struct {
	client *redis.Client
	cfg    Config
}

// updateScript applies a delta to one balance field, rejecting the update if
// it would drive the balance negative. Returns {-1, 0} for a missing player,
// {0, balance} for a rejected delta, {1, newBalance} on success.
var updateScript = redis.NewScript(`
local bal = redis.call('HGET', KEYS[1], ARGV[1])
if not bal then
  return {-1, 0}
end
bal = tonumber(bal)
local delta = tonumber(ARGV[2])
if bal + delta < 0 then
  return {0, bal}
end
bal = redis.call('HINCRBY', KEYS[1], ARGV[1], delta)
return {1, bal}
`)

// New creates a new Redis player store
func New(cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Store{client: client, cfg: cfg}, nil
}

// NewWithClient creates a Redis store with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Store {
	return &Store{client: client, cfg: cfg}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ensure Store implements the interfaces
var (
	_ store.PlayerStore       = (*Store)(nil)
	_ store.PresenceRefresher = (*Store)(nil)
)

// resolve maps a device id to a player id, creating the player record on
// first sight. SETNX picks a single winner under concurrent first logins;
// HSETNX makes record creation idempotent for the loser.
func (s *Store) resolve(ctx context.Context, deviceID string) (model.PlayerID, error) {
	dk := deviceKey(deviceID)

	id, err := s.client.Get(ctx, dk).Result()
	if errors.Is(err, redis.Nil) {
		candidate := uuid.NewString()
		if err := s.client.SetNX(ctx, dk, candidate, 0).Err(); err != nil {
			return "", err
		}
		// Re-read: a concurrent login may have won the SETNX
		if id, err = s.client.Get(ctx, dk).Result(); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	playerID := model.PlayerID(id)
	pk := playerKey(playerID)

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, pk, "device_id", deviceID)
	pipe.HSetNX(ctx, pk, "coins", model.StartingCoins)
	pipe.HSetNX(ctx, pk, "rolls", model.StartingRolls)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return playerID, nil
}

func (s *Store) Login(ctx context.Context, sessionID model.SessionID, deviceID string) (*model.Player, error) {
	playerID, err := s.resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	ok, err := s.client.SetNX(ctx, onlineKey(playerID), string(sessionID), s.cfg.PresenceTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrAlreadyOnline
	}

	return s.GetPlayer(ctx, playerID)
}

func (s *Store) Logout(ctx context.Context, playerID model.PlayerID) error {
	return s.client.Del(ctx, onlineKey(playerID)).Err()
}

// RefreshPresence renews the TTL on the player's presence entry. The
// connection server calls this on pong traffic while the session lives.
func (s *Store) RefreshPresence(ctx context.Context, playerID model.PlayerID) error {
	if s.cfg.PresenceTTL <= 0 {
		return nil
	}
	return s.client.Expire(ctx, onlineKey(playerID), s.cfg.PresenceTTL).Err()
}

func (s *Store) GetPlayer(ctx context.Context, playerID model.PlayerID) (*model.Player, error) {
	fields, err := s.client.HGetAll(ctx, playerKey(playerID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, model.ErrPlayerNotFound
	}

	coins, err := strconv.Atoi(fields["coins"])
	if err != nil {
		return nil, err
	}
	rolls, err := strconv.Atoi(fields["rolls"])
	if err != nil {
		return nil, err
	}

	return &model.Player{
		ID:       playerID,
		DeviceID: fields["device_id"],
		Coins:    coins,
		Rolls:    rolls,
	}, nil
}

func (s *Store) IsOnline(ctx context.Context, playerID model.PlayerID) (bool, error) {
	n, err := s.client.Exists(ctx, onlineKey(playerID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) OnlineSession(ctx context.Context, playerID model.PlayerID) (model.SessionID, error) {
	id, err := s.client.Get(ctx, onlineKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", model.ErrPlayerNotFound
	}
	if err != nil {
		return "", err
	}
	return model.SessionID(id), nil
}

func (s *Store) UpdateResource(ctx context.Context, playerID model.PlayerID, resource model.ResourceType, delta int) (int, error) {
	if !resource.Valid() {
		return 0, model.ErrUnknownResource
	}

	res, err := updateScript.Run(ctx, s.client, []string{playerKey(playerID)}, string(resource), delta).Slice()
	if err != nil {
		return 0, err
	}
	if len(res) != 2 {
		return 0, errors.New("unexpected script reply")
	}

	status, _ := res[0].(int64)
	balance, _ := res[1].(int64)

	switch status {
	case 1:
		return int(balance), nil
	case 0:
		return int(balance), model.ErrInsufficientBalance
	default:
		return 0, model.ErrPlayerNotFound
	}
}
