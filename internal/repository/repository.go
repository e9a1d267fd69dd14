// Package repository defines storage interfaces for the Sentinel engine.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prn-tf/sentinel/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SessionStore is the registry of active sessions keyed by session id.
//
// The registry carries no persistence guarantee beyond process lifetime for
// the in-memory implementation: the session cookie remains authoritative for
// identity, and losing the registry only forces full re-validation as a new
// session.
type SessionStore interface {
	// Put inserts or replaces a session record.
	Put(ctx context.Context, session *domain.Session) error

	// Get returns the session with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Delete removes the session with the given id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// ListByUser returns all sessions owned by the given user.
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)

	// List returns all active sessions.
	List(ctx context.Context) ([]*domain.Session, error)

	// SweepExpired removes all sessions whose absolute expiry precedes now
	// and reports the number removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
