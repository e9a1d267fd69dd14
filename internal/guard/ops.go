package guard

import (
	"context"
	"errors"
	"time"

	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/repository"
)

// ExtendSession pushes a session's expiry to now plus the given number of
// minutes. Returns false when the extension cap has been reached; the session
// is left untouched in that case.
func (g *Guard) ExtendSession(ctx context.Context, sessionID string, minutes int) (bool, error) {
	mu := g.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := g.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, err
	}

	if session.Extensions >= g.policy.MaxExtensions {
		g.logger.Warn().
			Str("session_id", sessionID).
			Int("extensions", session.Extensions).
			Msg("session extension denied, cap reached")
		return false, nil
	}

	session.ExpiresAt = time.Now().Add(time.Duration(minutes) * time.Minute)
	session.Extensions++
	if err := g.store.Put(ctx, session); err != nil {
		return false, err
	}

	_ = g.auditor.LogAuditEvent(ctx, session.Username, "session extended", map[string]any{
		"session_id": sessionID,
		"minutes":    minutes,
		"extensions": session.Extensions,
		"expires_at": session.ExpiresAt,
	}, "session")
	return true, nil
}

// UpgradeMFASession marks a session as having completed multi-factor
// authentication, clearing the step-up gate.
func (g *Guard) UpgradeMFASession(ctx context.Context, sessionID string) error {
	mu := g.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := g.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	session.HasMFA = true
	if err := g.store.Put(ctx, session); err != nil {
		return err
	}

	_ = g.auditor.LogAuditEvent(ctx, session.Username, "session upgraded to mfa", map[string]any{
		"session_id": sessionID,
	}, "session")
	return nil
}

// TrackHighRiskAction records a sensitive operation against the session and
// writes a security event for the audit trail.
func (g *Guard) TrackHighRiskAction(ctx context.Context, sessionID, action string) error {
	mu := g.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := g.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	session.HighRiskActions = append(session.HighRiskActions, action)
	if err := g.store.Put(ctx, session); err != nil {
		return err
	}

	g.logSecurityEvent(ctx, session, "high risk action performed", map[string]any{
		"action": action,
		"total":  len(session.HighRiskActions),
	}, session.IPAddress)
	return nil
}

// TerminateSession forcibly destroys a session on behalf of an administrator.
func (g *Guard) TerminateSession(ctx context.Context, sessionID, reason, actor string) error {
	mu := g.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := g.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	if err := g.destroy(ctx, session, "terminated"); err != nil {
		return err
	}

	_ = g.auditor.LogAuditEvent(ctx, actor, "session terminated", map[string]any{
		"session_id": sessionID,
		"user_id":    session.UserID,
		"reason":     reason,
	}, "session")
	return nil
}

// TerminateAllUserSessions destroys every session belonging to a user and
// returns the number terminated.
func (g *Guard) TerminateAllUserSessions(ctx context.Context, userID, reason, actor string) (int, error) {
	sessions, err := g.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	terminated := 0
	for _, session := range sessions {
		mu := g.lockFor(session.ID)
		mu.Lock()
		err := g.destroy(ctx, session, "terminated")
		mu.Unlock()
		if err != nil {
			return terminated, err
		}
		terminated++
	}

	_ = g.auditor.LogAuditEvent(ctx, actor, "all user sessions terminated", map[string]any{
		"user_id":    userID,
		"terminated": terminated,
		"reason":     reason,
	}, "session")
	return terminated, nil
}

// GetSessions returns administrative summaries of a user's active sessions.
func (g *Guard) GetSessions(ctx context.Context, userID string) ([]*domain.SessionInfo, error) {
	sessions, err := g.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toInfos(sessions), nil
}

// GetAllSessions returns administrative summaries of every active session.
func (g *Guard) GetAllSessions(ctx context.Context) ([]*domain.SessionInfo, error) {
	sessions, err := g.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return toInfos(sessions), nil
}

// SweepExpired removes all sessions past their absolute expiry and returns
// the number removed.
func (g *Guard) SweepExpired(ctx context.Context) (int, error) {
	removed, err := g.store.SweepExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		g.metrics.ActiveSessions.Sub(float64(removed))
		for i := 0; i < removed; i++ {
			g.metrics.SessionsTerminated.WithLabelValues("sweep").Inc()
		}
		g.logger.Info().Int("removed", removed).Msg("expired sessions swept")
	}
	return removed, nil
}

func toInfos(sessions []*domain.Session) []*domain.SessionInfo {
	infos := make([]*domain.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.ToInfo())
	}
	return infos
}
