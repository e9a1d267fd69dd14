// Package domain contains the core entities for the Sentinel security engine.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const (
	// SessionIDLength is the length of session identifiers in bytes (32 bytes = 64 hex chars).
	SessionIDLength = 32

	// DefaultIdleTimeout is the default inactivity window before a session is destroyed.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultAbsoluteTimeout is the default hard session lifetime.
	DefaultAbsoluteTimeout = 8 * time.Hour

	// DefaultRotationInterval is the default interval between session id rotations.
	DefaultRotationInterval = 1 * time.Hour
)

// Session represents one authenticated login context.
// Sessions are exclusively owned by the SessionStore; the guard holds only a
// transient reference while a request is in flight.
type Session struct {
	// ID is the opaque session identifier.
	ID string `json:"id"`

	// UserID is the id of the authenticated user.
	UserID string `json:"user_id"`

	// Username is the login name of the authenticated user.
	Username string `json:"username"`

	// Fingerprint is the device identity hash stamped at creation.
	Fingerprint string `json:"fingerprint"`

	// IPAddress is the client IP the session was last validated against.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the client user agent string.
	UserAgent string `json:"user_agent,omitempty"`

	// PreviousIPs is the deduplicated set of IPs previously seen on this session.
	PreviousIPs []string `json:"previous_ips,omitempty"`

	// IssuedAt is when the session was created. Preserved across rotations.
	IssuedAt time.Time `json:"issued_at"`

	// LastActive is the time of the most recent validated request.
	LastActive time.Time `json:"last_active"`

	// LastRotated is when the session id was last regenerated.
	LastRotated time.Time `json:"last_rotated"`

	// ExpiresAt is the absolute expiry. Extendable up to a capped count.
	ExpiresAt time.Time `json:"expires_at"`

	// IdleTimeout is the inactivity window for this session.
	IdleTimeout time.Duration `json:"idle_timeout"`

	// AbsoluteTimeout is the hard lifetime this session was issued with.
	AbsoluteTimeout time.Duration `json:"absolute_timeout"`

	// Extensions is the number of expiry extensions already granted.
	Extensions int `json:"extensions"`

	// LoginMethod records how the session was established (password, sso, ...).
	LoginMethod string `json:"login_method,omitempty"`

	// HasMFA is true once the session has completed multi-factor authentication.
	HasMFA bool `json:"has_mfa"`

	// Privileges are the roles granted to the session.
	Privileges []string `json:"privileges,omitempty"`

	// HighRiskActions is the list of sensitive actions performed on this session.
	HighRiskActions []string `json:"high_risk_actions,omitempty"`

	// ActivityCount is the number of validated requests on this session.
	ActivityCount int64 `json:"activity_count"`
}

// NewSessionID generates a cryptographically secure session identifier.
func NewSessionID() (string, error) {
	bytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// IsExpired returns true if the session's absolute expiry has passed.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsIdle returns true if the session has exceeded its inactivity window.
func (s *Session) IsIdle(now time.Time) bool {
	return now.Sub(s.LastActive) > s.IdleTimeout
}

// NeedsRotation returns true if the rotation interval has elapsed.
func (s *Session) NeedsRotation(now time.Time, interval time.Duration) bool {
	return now.After(s.LastRotated.Add(interval))
}

// RecordIP appends ip to PreviousIPs if it has not been seen before.
func (s *Session) RecordIP(ip string) {
	for _, seen := range s.PreviousIPs {
		if seen == ip {
			return
		}
	}
	s.PreviousIPs = append(s.PreviousIPs, ip)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	cp := *s
	cp.PreviousIPs = append([]string(nil), s.PreviousIPs...)
	cp.Privileges = append([]string(nil), s.Privileges...)
	cp.HighRiskActions = append([]string(nil), s.HighRiskActions...)
	return &cp
}

// SessionInfo contains minimal session information for administrative display.
type SessionInfo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	IssuedAt      time.Time `json:"issued_at"`
	LastActive    time.Time `json:"last_active"`
	ExpiresAt     time.Time `json:"expires_at"`
	HasMFA        bool      `json:"has_mfa"`
	ActivityCount int64     `json:"activity_count"`
}

// ToInfo converts a session to its administrative summary.
func (s *Session) ToInfo() *SessionInfo {
	return &SessionInfo{
		ID:            s.ID,
		UserID:        s.UserID,
		Username:      s.Username,
		IPAddress:     s.IPAddress,
		UserAgent:     s.UserAgent,
		IssuedAt:      s.IssuedAt,
		LastActive:    s.LastActive,
		ExpiresAt:     s.ExpiresAt,
		HasMFA:        s.HasMFA,
		ActivityCount: s.ActivityCount,
	}
}
