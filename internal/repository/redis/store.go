// Package redis provides a Redis-backed session store for multi-node
// deployments where the session registry must be shared across instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/repository"
)

const (
	sessionKeyPrefix = "sentinel:session:"
	userKeyPrefix    = "sentinel:user:"
	indexKey         = "sentinel:sessions"
)

// Store is a Redis-backed session registry. Sessions are stored as JSON with
// a TTL matching their absolute expiry, so Redis itself evicts stale records;
// SweepExpired only prunes the secondary indexes.
type Store struct {
	client redis.Cmdable
	logger zerolog.Logger
}

// New creates a Redis-backed session store.
func New(client redis.Cmdable, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With().Str("component", "redis-session-store").Logger(),
	}
}

func sessionKey(id string) string  { return sessionKeyPrefix + id }
func userKey(userID string) string { return userKeyPrefix + userID + ":sessions" }

// Put inserts or replaces a session record.
func (s *Store) Put(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.client.Set(ctx, sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if err := s.client.SAdd(ctx, userKey(session.UserID), session.ID).Err(); err != nil {
		return fmt.Errorf("failed to index session by user: %w", err)
	}
	if err := s.client.SAdd(ctx, indexKey, session.ID).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// Get returns the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session := &domain.Session{}
	if err := json.Unmarshal(payload, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

// Delete removes the session with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := s.client.SRem(ctx, userKey(session.UserID), id).Err(); err != nil {
		return fmt.Errorf("failed to unindex session by user: %w", err)
	}
	if err := s.client.SRem(ctx, indexKey, id).Err(); err != nil {
		return fmt.Errorf("failed to unindex session: %w", err)
	}
	return nil
}

// ListByUser returns all live sessions owned by the given user.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	return s.collect(ctx, ids)
}

// List returns all live sessions.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return s.collect(ctx, ids)
}

func (s *Store) collect(ctx context.Context, ids []string) ([]*domain.Session, error) {
	sessions := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// TTL evicted the record; the index entry is pruned on sweep.
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// SweepExpired prunes index entries whose session keys have been evicted by
// TTL or whose expiry precedes now.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for sweep: %w", err)
	}

	removed := 0
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			if err := s.client.SRem(ctx, indexKey, id).Err(); err != nil {
				return removed, fmt.Errorf("failed to prune session index: %w", err)
			}
			removed++
			continue
		}
		if err != nil {
			return removed, err
		}
		if session.ExpiresAt.Before(now) {
			if err := s.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return removed, err
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("swept expired sessions")
	}
	return removed, nil
}

// Verify interface compliance
var _ repository.SessionStore = (*Store)(nil)
