// Package sqlitesink provides a SQLite-backed audit trail so security and
// audit events survive process restarts even in single-node deployments.
package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/prn-tf/sentinel/internal/alert"
)

const schema = `
CREATE TABLE IF NOT EXISTS security_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	details TEXT,
	source TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_security_events_subject ON security_events(subject);
CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events(created_at);
`

// Sink is a SQLite-backed Auditor implementation.
type Sink struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens (creating if needed) the audit database at path.
func New(path string, logger zerolog.Logger) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &Sink{
		db:     db,
		logger: logger.With().Str("component", "sqlite-audit-sink").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Sink) Close() error {
	return s.db.Close()
}

// LogSecurityEvent persists a security event.
func (s *Sink) LogSecurityEvent(ctx context.Context, subject, message string, details map[string]any, sourceIP string) error {
	return s.insert(ctx, "security", subject, message, details, sourceIP)
}

// LogAuditEvent persists an audit event.
func (s *Sink) LogAuditEvent(ctx context.Context, actor, message string, details map[string]any, scope string) error {
	return s.insert(ctx, "audit", actor, message, details, scope)
}

func (s *Sink) insert(ctx context.Context, kind, subject, message string, details map[string]any, source string) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	query := `
		INSERT INTO security_events (kind, subject, message, details, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		kind,
		subject,
		message,
		string(detailsJSON),
		source,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s event: %w", kind, err)
	}
	return nil
}

// Event is one persisted audit-trail entry.
type Event struct {
	ID        int64          `json:"id"`
	Kind      string         `json:"kind"`
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Source    string         `json:"source,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recent returns the most recent events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, kind, subject, message, details, source, created_at
		FROM security_events
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var details, createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &e.Message, &details, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				s.logger.Warn().Err(err).Int64("event_id", e.ID).Msg("corrupt event details")
			}
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// Verify interface compliance
var _ alert.Auditor = (*Sink)(nil)
