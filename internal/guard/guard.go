// Package guard is the request-time session policy engine: fingerprint
// validation, timeout enforcement, rotation, concurrency caps, and the
// MFA step-up gate.
package guard

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/alert"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/metrics"
	"github.com/prn-tf/sentinel/internal/pkg/crypto"
	"github.com/prn-tf/sentinel/internal/repository"
)

// Stable machine-readable rejection codes.
const (
	CodeValidationFailed = "session_validation_failed"
	CodeExpired          = "session_expired"
	CodeIdleTimeout      = "session_idle_timeout"
	CodeLocationChange   = "session_location_change"
	CodeMFARequired      = "mfa_required"
)

// lockStripes is the number of per-session mutex stripes.
const lockStripes = 64

// ErrSessionNotFound is returned by session operations for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// RiskSource exposes the behavior profiler's risk score to the MFA gate.
type RiskSource interface {
	RiskScore(username string) int
}

// Request carries the per-request metadata the guard validates against.
type Request struct {
	// SessionID is the id presented by the client, empty if none.
	SessionID string

	// UserID and Username identify the already-authenticated principal.
	UserID   string
	Username string

	IPAddress      string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string

	// LoginMethod and Privileges seed a newly initialized session.
	LoginMethod string
	Privileges  []string
}

// Outcome is the terminal result of a per-request validation pass.
type Outcome struct {
	// Allow is true when the request may proceed.
	Allow bool

	// StatusCode, Code, and Message describe the rejection when Allow is false.
	StatusCode int
	Code       string
	Message    string

	// SessionID is the id the client should continue with. It differs from
	// the presented id after initialization or rotation.
	SessionID string

	// Session is the validated session, nil on rejection.
	Session *domain.Session
}

func continueWith(s *domain.Session) Outcome {
	return Outcome{Allow: true, SessionID: s.ID, Session: s}
}

func reject(status int, code, message string) Outcome {
	return Outcome{Allow: false, StatusCode: status, Code: code, Message: message}
}

// Guard enforces session policy for every authenticated request.
type Guard struct {
	store      repository.SessionStore
	risk       RiskSource
	auditor    alert.Auditor
	dispatcher alert.Dispatcher
	policy     domain.SessionPolicy
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	// locks serializes all mutations on the same session id so concurrent
	// requests never race a rotation or lose counter updates.
	locks [lockStripes]sync.Mutex
}

// New creates a session guard. The policy is resolved once at construction.
func New(
	store repository.SessionStore,
	risk RiskSource,
	auditor alert.Auditor,
	dispatcher alert.Dispatcher,
	policy domain.SessionPolicy,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Guard {
	return &Guard{
		store:      store,
		risk:       risk,
		auditor:    auditor,
		dispatcher: dispatcher,
		policy:     policy,
		metrics:    m,
		logger:     logger.With().Str("component", "session-guard").Logger(),
	}
}

func (g *Guard) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &g.locks[h.Sum32()%lockStripes]
}

// Check runs the per-request validation sequence and returns a terminal
// outcome. Policy rejections are outcomes, never errors; internal store
// failures surface as errors.
func (g *Guard) Check(ctx context.Context, req Request) (Outcome, error) {
	return g.check(ctx, req, time.Now())
}

func (g *Guard) check(ctx context.Context, req Request, now time.Time) (Outcome, error) {
	mu := g.lockFor(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	// Step 1: no session yet, or the presented id is unknown (already
	// destroyed sessions behave as uninitialized).
	var session *domain.Session
	if req.SessionID != "" {
		var err error
		session, err = g.store.Get(ctx, req.SessionID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return Outcome{}, err
		}
	}
	if session == nil {
		session, err := g.initialize(ctx, req, now)
		if err != nil {
			return Outcome{}, err
		}
		return continueWith(session), nil
	}

	// Step 2: fingerprint validation.
	if g.policy.FingerprintValidation {
		current := crypto.Fingerprint(req.UserAgent, req.AcceptLanguage, req.AcceptEncoding)
		if current != session.Fingerprint {
			g.logSecurityEvent(ctx, session, "session fingerprint mismatch", map[string]any{
				"expected": session.Fingerprint,
				"received": current,
			}, req.IPAddress)
			_ = g.dispatcher.SendAlert(ctx, alert.Alert{
				Severity: domain.SeverityHigh,
				Type:     alert.TypeSessionHijacking,
				Message:  "session fingerprint mismatch, possible hijacking",
				Details: map[string]any{
					"session_id": session.ID,
					"user_id":    session.UserID,
				},
				Subject:  session.Username,
				SourceIP: req.IPAddress,
			})
			if err := g.destroy(ctx, session, "fingerprint_mismatch"); err != nil {
				return Outcome{}, err
			}
			g.metrics.RequestsRejected.WithLabelValues(CodeValidationFailed).Inc()
			return reject(http.StatusUnauthorized, CodeValidationFailed, "Session validation failed"), nil
		}
	}

	// Step 3: absolute expiry.
	if session.IsExpired(now) {
		g.logSecurityEvent(ctx, session, "session expired", map[string]any{
			"expires_at": session.ExpiresAt,
		}, req.IPAddress)
		if err := g.destroy(ctx, session, "absolute_timeout"); err != nil {
			return Outcome{}, err
		}
		g.metrics.RequestsRejected.WithLabelValues(CodeExpired).Inc()
		return reject(http.StatusUnauthorized, CodeExpired, "Session expired"), nil
	}

	// Step 4: idle timeout.
	if session.IsIdle(now) {
		g.logSecurityEvent(ctx, session, "session idle timeout", map[string]any{
			"last_active":  session.LastActive,
			"idle_timeout": session.IdleTimeout.String(),
		}, req.IPAddress)
		if err := g.destroy(ctx, session, "idle_timeout"); err != nil {
			return Outcome{}, err
		}
		g.metrics.RequestsRejected.WithLabelValues(CodeIdleTimeout).Inc()
		return reject(http.StatusUnauthorized, CodeIdleTimeout, "Session expired due to inactivity"), nil
	}

	// Step 5: IP change policy.
	if session.IPAddress != req.IPAddress && g.policy.IPChange != domain.IPChangeAllow {
		g.logSecurityEvent(ctx, session, "session ip change", map[string]any{
			"previous_ip": session.IPAddress,
			"new_ip":      req.IPAddress,
			"policy":      g.policy.IPChange,
		}, req.IPAddress)

		if g.policy.IPChange == domain.IPChangeBlock {
			_ = g.dispatcher.SendAlert(ctx, alert.Alert{
				Severity: domain.SeverityMedium,
				Type:     alert.TypeSessionAnomaly,
				Message:  "session terminated on ip change",
				Details: map[string]any{
					"session_id":  session.ID,
					"previous_ip": session.IPAddress,
					"new_ip":      req.IPAddress,
				},
				Subject:  session.Username,
				SourceIP: req.IPAddress,
			})
			if err := g.destroy(ctx, session, "ip_change"); err != nil {
				return Outcome{}, err
			}
			g.metrics.RequestsRejected.WithLabelValues(CodeLocationChange).Inc()
			return reject(http.StatusUnauthorized, CodeLocationChange, "Session invalid due to location change"), nil
		}

		// Warn: record the new IP and continue.
		session.IPAddress = req.IPAddress
	}

	// Step 6: previous-IP tracking.
	if g.policy.TrackPreviousIPs {
		session.RecordIP(req.IPAddress)
	}

	// Step 7: rotation.
	if session.NeedsRotation(now, g.policy.RotationInterval) {
		rotated, err := g.rotate(ctx, session, now)
		if err != nil {
			return Outcome{}, err
		}
		session = rotated
	}

	// Step 8: MFA step-up gate. The session survives; the caller may
	// upgrade and retry.
	if g.policy.RequireMFAForHighRisk && !session.HasMFA {
		if score := g.risk.RiskScore(session.Username); score >= g.policy.RiskScoreThreshold {
			g.logSecurityEvent(ctx, session, "mfa step-up required", map[string]any{
				"risk_score": score,
				"threshold":  g.policy.RiskScoreThreshold,
			}, req.IPAddress)
			g.metrics.RequestsRejected.WithLabelValues(CodeMFARequired).Inc()
			return reject(http.StatusForbidden, CodeMFARequired, "MFA Required"), nil
		}
	}

	// Step 9: concurrency enforcement.
	if err := g.enforceConcurrency(ctx, session); err != nil {
		return Outcome{}, err
	}

	// Step 10: record activity.
	session.LastActive = now
	session.ActivityCount++
	if err := g.store.Put(ctx, session); err != nil {
		return Outcome{}, err
	}

	return continueWith(session), nil
}

// initialize creates and registers a fresh session for the request.
func (g *Guard) initialize(ctx context.Context, req Request, now time.Time) (*domain.Session, error) {
	id, err := domain.NewSessionID()
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:              id,
		UserID:          req.UserID,
		Username:        req.Username,
		Fingerprint:     crypto.Fingerprint(req.UserAgent, req.AcceptLanguage, req.AcceptEncoding),
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
		IssuedAt:        now,
		LastActive:      now,
		LastRotated:     now,
		ExpiresAt:       now.Add(g.policy.AbsoluteTimeout),
		IdleTimeout:     g.policy.IdleTimeout,
		AbsoluteTimeout: g.policy.AbsoluteTimeout,
		LoginMethod:     req.LoginMethod,
		Privileges:      req.Privileges,
		ActivityCount:   1,
	}
	if err := g.store.Put(ctx, session); err != nil {
		return nil, err
	}

	g.metrics.ActiveSessions.Inc()
	g.logger.Debug().
		Str("session_id", session.ID).
		Str("user_id", session.UserID).
		Msg("session initialized")

	if err := g.enforceConcurrency(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// rotate regenerates the session id while preserving the payload, including
// the original issue and expiry times. Runs under the per-session lock, so a
// race between two requests rotating simultaneously cannot drop the payload.
func (g *Guard) rotate(ctx context.Context, session *domain.Session, now time.Time) (*domain.Session, error) {
	newID, err := domain.NewSessionID()
	if err != nil {
		return nil, err
	}

	rotated := session.Clone()
	rotated.ID = newID
	rotated.LastRotated = now

	if err := g.store.Put(ctx, rotated); err != nil {
		return nil, err
	}
	if err := g.store.Delete(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	g.logger.Debug().
		Str("old_session_id", session.ID).
		Str("new_session_id", newID).
		Msg("session rotated")
	return rotated, nil
}

// enforceConcurrency applies the single-session policy or the
// max-concurrent-sessions cap, terminating the oldest excess sessions.
func (g *Guard) enforceConcurrency(ctx context.Context, current *domain.Session) error {
	single := g.policy.SingleSession
	cap := g.policy.MaxConcurrentSessions
	if !single && cap <= 0 {
		return nil
	}

	sessions, err := g.store.ListByUser(ctx, current.UserID)
	if err != nil {
		return err
	}

	var victims []*domain.Session
	if single {
		for _, s := range sessions {
			if s.ID != current.ID {
				victims = append(victims, s)
			}
		}
	} else if len(sessions) > cap {
		others := make([]*domain.Session, 0, len(sessions))
		for _, s := range sessions {
			if s.ID != current.ID {
				others = append(others, s)
			}
		}
		sort.Slice(others, func(i, j int) bool {
			return others[i].IssuedAt.Before(others[j].IssuedAt)
		})
		excess := len(sessions) - cap
		if excess > len(others) {
			excess = len(others)
		}
		victims = others[:excess]
	}

	if len(victims) == 0 {
		return nil
	}

	reason := "concurrent_session_limit"
	if single {
		reason = "single_session_policy"
	}
	for _, victim := range victims {
		if err := g.destroy(ctx, victim, reason); err != nil {
			return err
		}
	}

	g.logSecurityEvent(ctx, current, "concurrent sessions terminated", map[string]any{
		"terminated": len(victims),
		"reason":     reason,
	}, current.IPAddress)
	g.logger.Info().
		Str("user_id", current.UserID).
		Int("terminated", len(victims)).
		Str("reason", reason).
		Msg("concurrency cap enforced")
	return nil
}

// destroy removes a session from the store. Already-gone sessions are not an
// error; the destroy decision stands regardless of collaborator outcome.
func (g *Guard) destroy(ctx context.Context, session *domain.Session, cause string) error {
	err := g.store.Delete(ctx, session.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err == nil {
		g.metrics.ActiveSessions.Dec()
		g.metrics.SessionsTerminated.WithLabelValues(cause).Inc()
	}
	return nil
}

func (g *Guard) logSecurityEvent(ctx context.Context, session *domain.Session, message string, details map[string]any, sourceIP string) {
	if details == nil {
		details = map[string]any{}
	}
	details["session_id"] = session.ID
	details["user_id"] = session.UserID
	_ = g.auditor.LogSecurityEvent(ctx, session.Username, message, details, sourceIP)
}
