// Package memory provides the in-memory session store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/repository"
)

// Store is a mutex-guarded in-memory session registry. It is the default
// store for single-node deployments; for multi-node deployments, use the
// Redis-backed implementation.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	byUser   map[string]map[string]struct{}
	logger   zerolog.Logger
}

// New creates a new in-memory session store.
func New(logger zerolog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
		byUser:   make(map[string]map[string]struct{}),
		logger:   logger.With().Str("component", "memory-session-store").Logger(),
	}
}

// Put inserts or replaces a session record.
func (s *Store) Put(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session.Clone()

	ids, ok := s.byUser[session.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[session.UserID] = ids
	}
	ids[session.ID] = struct{}{}

	return nil
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return session.Clone(), nil
}

// Delete removes the session with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.remove(session)
	return nil
}

// remove deletes a session from both indexes. Caller holds the write lock.
func (s *Store) remove(session *domain.Session) {
	delete(s.sessions, session.ID)
	if ids, ok := s.byUser[session.UserID]; ok {
		delete(ids, session.ID)
		if len(ids) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
}

// ListByUser returns all sessions owned by the given user.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	sessions := make([]*domain.Session, 0, len(ids))
	for id := range ids {
		if session, ok := s.sessions[id]; ok {
			sessions = append(sessions, session.Clone())
		}
	}
	return sessions, nil
}

// List returns all active sessions.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session.Clone())
	}
	return sessions, nil
}

// SweepExpired removes all sessions whose absolute expiry precedes now.
// Expired ids are snapshotted under a read lock first so the write lock is
// held only for the removals themselves.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	var expired []string
	for id, session := range s.sessions {
		if session.ExpiresAt.Before(now) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return 0, nil
	}

	removed := 0
	s.mu.Lock()
	for _, id := range expired {
		session, ok := s.sessions[id]
		if !ok || !session.ExpiresAt.Before(now) {
			continue
		}
		s.remove(session)
		removed++
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("swept expired sessions")
	}
	return removed, nil
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Verify interface compliance
var _ repository.SessionStore = (*Store)(nil)
