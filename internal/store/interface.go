package store

import (
	"context"

	"github.com/rkoval/playlink/internal/model"
)

// PlayerStore owns all player records and the presence map.
//
// Implementations must serialize mutation per player: two concurrent logins
// for the same device must not both succeed or create duplicate records, and
// concurrent UpdateResource calls for the same player must not lose updates.
// Operations on different players must not contend on a shared lock.
type PlayerStore interface {
	// Login resolves or creates the player for deviceID and marks it online
	// for sessionID. Returns model.ErrAlreadyOnline if the player already has
	// a live session.
	Login(ctx context.Context, sessionID model.SessionID, deviceID string) (*model.Player, error)

	// Logout removes the player's presence entry. Idempotent.
	Logout(ctx context.Context, playerID model.PlayerID) error

	// GetPlayer returns the player or model.ErrPlayerNotFound.
	GetPlayer(ctx context.Context, playerID model.PlayerID) (*model.Player, error)

	// IsOnline reports whether the player currently has a live session.
	IsOnline(ctx context.Context, playerID model.PlayerID) (bool, error)

	// OnlineSession returns the session currently representing the player,
	// or model.ErrPlayerNotFound if the player is offline.
	OnlineSession(ctx context.Context, playerID model.PlayerID) (model.SessionID, error)

	// UpdateResource atomically applies delta to the player's balance of the
	// given resource type and returns the new balance. Fails with
	// model.ErrPlayerNotFound, model.ErrUnknownResource, or
	// model.ErrInsufficientBalance (balance unchanged) without applying.
	UpdateResource(ctx context.Context, playerID model.PlayerID, resource model.ResourceType, delta int) (int, error)
}

// PresenceRefresher is implemented by stores whose presence entries expire
// unless periodically renewed. The in-memory store has no use for it: its
// presence map dies with the process that owns the connections.
type PresenceRefresher interface {
	RefreshPresence(ctx context.Context, playerID model.PlayerID) error
}
