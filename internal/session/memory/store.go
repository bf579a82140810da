// Package memory provides the volatile, process-local session store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/roastd/internal/roast"
)

// DefaultRetention is how long a session survives before Sweep removes it.
const DefaultRetention = 60 * time.Minute

// Config controls Store behavior.
type Config struct {
	Retention time.Duration `mapstructure:"retention"`
}

// Store is an in-memory roast.SessionStore.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]roast.Session
	clock     roast.Clock
	retention time.Duration
}

// NewStore constructs a Store.
func NewStore(cfg Config, clock roast.Clock) *Store {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Store{
		sessions:  make(map[string]roast.Session),
		clock:     clock,
		retention: cfg.Retention,
	}
}

// Create inserts a session, merging patch over the defaults. A second create
// for the same id overwrites the first.
func (s *Store) Create(_ context.Context, id string, patch roast.SessionPatch) {
	session := roast.NewSession(id, s.clock.Now(), patch)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = session
}

// Get returns a copy of the session.
func (s *Store) Get(_ context.Context, id string) (roast.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return roast.Session{}, false
	}
	return session.Clone(), true
}

// Update merges patch into an existing, non-terminal session.
func (s *Store) Update(_ context.Context, id string, patch roast.SessionPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.Status.Terminal() {
		return
	}
	s.sessions[id] = patch.Apply(session)
}

// Remove deletes a session.
func (s *Store) Remove(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Sweep deletes every session older than the retention window, regardless of
// status, and returns how many were removed.
func (s *Store) Sweep(_ context.Context) int {
	cutoff := s.clock.Now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.Timestamp.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports how many sessions are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
