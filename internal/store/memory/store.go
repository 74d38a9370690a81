package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/store"
)

// Store is the in-memory implementation of the player store.
//
// The maps are guarded by mu; balance mutation and the login check-then-act
// are serialized by a per-player mutex so unrelated players never contend.
type Store struct {
	mu sync.RWMutex

	byDevice map[string]*playerState
	byID     map[model.PlayerID]*playerState
	online   map[model.PlayerID]model.SessionID
}

// playerState carries the mutable record plus the lock that serializes
// mutation of this one player.
type playerState struct {
	mu     sync.Mutex
	player model.Player
}

// New creates a new in-memory player store
func New() *Store {
	return &Store{
		byDevice: make(map[string]*playerState),
		byID:     make(map[model.PlayerID]*playerState),
		online:   make(map[model.PlayerID]model.SessionID),
	}
}

// Ensure Store implements the interface
var _ store.PlayerStore = (*Store)(nil)

// resolve looks up or creates the player record for a device id.
func (s *Store) resolve(deviceID string) *playerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byDevice[deviceID]; ok {
		return st
	}
	st := &playerState{player: model.Player{
		ID:       model.PlayerID(uuid.NewString()),
		DeviceID: deviceID,
		Coins:    model.StartingCoins,
		Rolls:    model.StartingRolls,
	}}
	s.byDevice[deviceID] = st
	s.byID[st.player.ID] = st
	return st
}

func (s *Store) Login(ctx context.Context, sessionID model.SessionID, deviceID string) (*model.Player, error) {
	st := s.resolve(deviceID)

	// The per-player lock makes the presence check-then-insert atomic with
	// respect to a concurrent login for the same player.
	st.mu.Lock()
	defer st.mu.Unlock()

	s.mu.Lock()
	if _, online := s.online[st.player.ID]; online {
		s.mu.Unlock()
		return nil, model.ErrAlreadyOnline
	}
	s.online[st.player.ID] = sessionID
	s.mu.Unlock()

	p := st.player
	return &p, nil
}

func (s *Store) Logout(ctx context.Context, playerID model.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, playerID)
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, playerID model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	st, ok := s.byID[playerID]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrPlayerNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	p := st.player
	return &p, nil
}

func (s *Store) IsOnline(ctx context.Context, playerID model.PlayerID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[playerID]
	return ok, nil
}

func (s *Store) OnlineSession(ctx context.Context, playerID model.PlayerID) (model.SessionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.online[playerID]
	if !ok {
		return "", model.ErrPlayerNotFound
	}
	return sessionID, nil
}

func (s *Store) UpdateResource(ctx context.Context, playerID model.PlayerID, resource model.ResourceType, delta int) (int, error) {
	if !resource.Valid() {
		return 0, model.ErrUnknownResource
	}

	s.mu.RLock()
	st, ok := s.byID[playerID]
	s.mu.RUnlock()
	if !ok {
		return 0, model.ErrPlayerNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	current := st.player.Balance(resource)
	if current+delta < 0 {
		return current, model.ErrInsufficientBalance
	}
	switch resource {
	case model.ResourceCoins:
		st.player.Coins += delta
		return st.player.Coins, nil
	default:
		st.player.Rolls += delta
		return st.player.Rolls, nil
	}
}
