// Package postgres provides a PostgreSQL-backed session store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/repository"
)

const sessionColumns = `id, user_id, username, fingerprint, ip_address, user_agent,
	previous_ips, issued_at, last_active, last_rotated, expires_at,
	idle_timeout_ms, absolute_timeout_ms, extensions, login_method,
	has_mfa, privileges, high_risk_actions, activity_count`

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	username TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	ip_address TEXT,
	user_agent TEXT,
	previous_ips TEXT[],
	issued_at TIMESTAMPTZ NOT NULL,
	last_active TIMESTAMPTZ NOT NULL,
	last_rotated TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	idle_timeout_ms BIGINT NOT NULL,
	absolute_timeout_ms BIGINT NOT NULL,
	extensions INT NOT NULL DEFAULT 0,
	login_method TEXT,
	has_mfa BOOLEAN NOT NULL DEFAULT FALSE,
	privileges TEXT[],
	high_risk_actions TEXT[],
	activity_count BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

// Store is a PostgreSQL-backed session registry for deployments that want
// sessions to survive restarts.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New connects to PostgreSQL and returns a session store.
func New(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger.With().Str("component", "postgres-session-store").Logger(),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Put inserts or replaces a session record.
func (s *Store) Put(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			ip_address = EXCLUDED.ip_address,
			previous_ips = EXCLUDED.previous_ips,
			last_active = EXCLUDED.last_active,
			last_rotated = EXCLUDED.last_rotated,
			expires_at = EXCLUDED.expires_at,
			extensions = EXCLUDED.extensions,
			has_mfa = EXCLUDED.has_mfa,
			high_risk_actions = EXCLUDED.high_risk_actions,
			activity_count = EXCLUDED.activity_count
	`

	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Username,
		session.Fingerprint,
		session.IPAddress,
		session.UserAgent,
		session.PreviousIPs,
		session.IssuedAt,
		session.LastActive,
		session.LastRotated,
		session.ExpiresAt,
		session.IdleTimeout.Milliseconds(),
		session.AbsoluteTimeout.Milliseconds(),
		session.Extensions,
		session.LoginMethod,
		session.HasMFA,
		session.Privileges,
		session.HighRiskActions,
		session.ActivityCount,
	)
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

// Get returns the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Delete removes the session with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByUser returns all sessions owned by the given user.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY issued_at ASC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions by user: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// List returns all active sessions.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY issued_at ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// SweepExpired removes all sessions whose absolute expiry precedes now.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}

	removed := int(result.RowsAffected())
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("swept expired sessions")
	}
	return removed, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	session := &domain.Session{}
	var idleMS, absoluteMS int64
	var ipAddress, userAgent, loginMethod *string

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Username,
		&session.Fingerprint,
		&ipAddress,
		&userAgent,
		&session.PreviousIPs,
		&session.IssuedAt,
		&session.LastActive,
		&session.LastRotated,
		&session.ExpiresAt,
		&idleMS,
		&absoluteMS,
		&session.Extensions,
		&loginMethod,
		&session.HasMFA,
		&session.Privileges,
		&session.HighRiskActions,
		&session.ActivityCount,
	)
	if err != nil {
		return nil, err
	}

	session.IdleTimeout = time.Duration(idleMS) * time.Millisecond
	session.AbsoluteTimeout = time.Duration(absoluteMS) * time.Millisecond
	if ipAddress != nil {
		session.IPAddress = *ipAddress
	}
	if userAgent != nil {
		session.UserAgent = *userAgent
	}
	if loginMethod != nil {
		session.LoginMethod = *loginMethod
	}

	return session, nil
}

func collectSessions(rows pgx.Rows) ([]*domain.Session, error) {
	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Verify interface compliance
var _ repository.SessionStore = (*Store)(nil)
