package session

import (
	"sync"

	"github.com/rkoval/playlink/internal/model"
)

// Registry maps session ids to live sessions. It is a pure lookup table;
// lifetime of each session stays with the connection loop that registered it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[model.SessionID]*Session)}
}

// Register adds a session to the registry
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Unregister removes a session by id. Idempotent.
func (r *Registry) Unregister(id model.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// TryGet returns the session for id, if it is still connected
func (r *Registry) TryGet(id model.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
