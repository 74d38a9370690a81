package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/rkoval/playlink/internal/dependencies/clock"
	"github.com/rkoval/playlink/internal/handlers"
	"github.com/rkoval/playlink/internal/router"
	"github.com/rkoval/playlink/internal/session"
	"github.com/rkoval/playlink/internal/store"
	"github.com/rkoval/playlink/internal/store/memory"
	redisstore "github.com/rkoval/playlink/internal/store/redis"
)

// Store type constants
const (
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Player state
	Players store.PlayerStore

	// External dependencies
	Clock clock.Clock

	// Connection-facing components
	Registry *session.Registry
	Router   *router.Router
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StoreType selects the player store backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StoreType string
	// RedisConfig holds Redis connection settings (required if StoreType is "redis")
	RedisConfig *redisstore.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create the player store based on type
	var players store.PlayerStore
	storeType := cfg.StoreType
	if storeType == "" {
		storeType = StoreTypeMemory
	}

	switch storeType {
	case StoreTypeMemory:
		players = memory.New()
	case StoreTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StoreType is redis")
		}
		redisStore, err := redisstore.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		players = redisStore
	default:
		return nil, errors.New("invalid StoreType: must be 'memory' or 'redis'")
	}

	return newWithDependencies(players, clock.New(), logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(players store.PlayerStore, clk clock.Clock, logger *slog.Logger) *App {
	registry := session.NewRegistry()

	r := router.New(logger,
		handlers.NewLogin(players, logger),
		handlers.NewUpdateResources(players, logger),
		handlers.NewSendGift(players, registry, clk, logger),
	)

	return &App{
		Players:  players,
		Clock:    clk,
		Registry: registry,
		Router:   r,
	}
}

// Close releases backend resources held by the app
func (a *App) Close() error {
	if closer, ok := a.Players.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
