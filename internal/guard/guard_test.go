package guard

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel/internal/alert"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/metrics"
	"github.com/prn-tf/sentinel/internal/repository"
	"github.com/prn-tf/sentinel/internal/repository/memory"
)

// captureSink records alerts and events for assertions.
type captureSink struct {
	mu       sync.Mutex
	alerts   []alert.Alert
	security []string
	audits   []string
}

func (c *captureSink) SendAlert(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureSink) LogSecurityEvent(_ context.Context, _, message string, _ map[string]any, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.security = append(c.security, message)
	return nil
}

func (c *captureSink) LogAuditEvent(_ context.Context, _, message string, _ map[string]any, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audits = append(c.audits, message)
	return nil
}

func (c *captureSink) alertCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type stubRisk struct {
	score int
}

func (s *stubRisk) RiskScore(string) int { return s.score }

func testPolicy() domain.SessionPolicy {
	return domain.DefaultSecuritySettings().Session
}

func newTestGuard(t *testing.T, policy domain.SessionPolicy, risk *stubRisk) (*Guard, *memory.Store, *captureSink) {
	t.Helper()
	store := memory.New(zerolog.Nop())
	sink := &captureSink{}
	m := metrics.New(prometheus.NewRegistry())
	return New(store, risk, sink, sink, policy, m, zerolog.Nop()), store, sink
}

func baseRequest() Request {
	return Request{
		UserID:         "u1",
		Username:       "alice",
		IPAddress:      "10.0.0.1",
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip",
		LoginMethod:    "password",
	}
}

func TestCheck_InitializesSession(t *testing.T) {
	g, store, _ := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()
	now := time.Now()

	outcome, err := g.check(ctx, baseRequest(), now)
	require.NoError(t, err)
	assert.True(t, outcome.Allow)
	assert.Len(t, outcome.SessionID, 64)

	session, err := store.Get(ctx, outcome.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.NotEmpty(t, session.Fingerprint)
	assert.Equal(t, now.Add(testPolicy().AbsoluteTimeout).Unix(), session.ExpiresAt.Unix())
}

func TestCheck_UnknownSessionTreatedAsNew(t *testing.T) {
	g, _, _ := newTestGuard(t, testPolicy(), &stubRisk{})

	req := baseRequest()
	req.SessionID = "deadbeef"

	outcome, err := g.check(context.Background(), req, time.Now())
	require.NoError(t, err)
	assert.True(t, outcome.Allow)
	assert.NotEqual(t, "deadbeef", outcome.SessionID)
}

func TestCheck_IdleTimeout(t *testing.T) {
	g, store, sink := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	outcome, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)

	req := baseRequest()
	req.SessionID = outcome.SessionID

	outcome, err = g.check(ctx, req, t0.Add(31*time.Minute))
	require.NoError(t, err)
	assert.False(t, outcome.Allow)
	assert.Equal(t, http.StatusUnauthorized, outcome.StatusCode)
	assert.Equal(t, CodeIdleTimeout, outcome.Code)

	// Session is destroyed and the rejection carries no alert.
	_, err = store.Get(ctx, req.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Zero(t, sink.alertCount())

	// Presenting the dead id again starts a fresh session.
	outcome, err = g.check(ctx, req, t0.Add(32*time.Minute))
	require.NoError(t, err)
	assert.True(t, outcome.Allow)
	assert.NotEqual(t, req.SessionID, outcome.SessionID)
}

func TestCheck_AbsoluteExpiry(t *testing.T) {
	g, store, sink := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	outcome, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)

	// Keep touching the session so it never goes idle, then cross the
	// absolute limit.
	req := baseRequest()
	req.SessionID = outcome.SessionID
	for i := 1; i <= 16; i++ {
		outcome, err = g.check(ctx, req, t0.Add(time.Duration(i)*29*time.Minute))
		require.NoError(t, err)
		require.True(t, outcome.Allow)
		req.SessionID = outcome.SessionID
	}

	outcome, err = g.check(ctx, req, t0.Add(8*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.False(t, outcome.Allow)
	assert.Equal(t, CodeExpired, outcome.Code)
	assert.Zero(t, sink.alertCount())

	_, err = store.Get(ctx, req.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCheck_FingerprintMismatch(t *testing.T) {
	g, store, sink := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	outcome, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)

	req := baseRequest()
	req.SessionID = outcome.SessionID
	req.UserAgent = "curl/8.0"

	outcome, err = g.check(ctx, req, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, outcome.Allow)
	assert.Equal(t, http.StatusUnauthorized, outcome.StatusCode)
	assert.Equal(t, CodeValidationFailed, outcome.Code)

	_, err = store.Get(ctx, req.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Exactly one hijacking alert at high severity.
	require.Equal(t, 1, sink.alertCount())
	assert.Equal(t, alert.TypeSessionHijacking, sink.alerts[0].Type)
	assert.Equal(t, domain.SeverityHigh, sink.alerts[0].Severity)
}

func TestCheck_IPChangeWarnRecordsAndContinues(t *testing.T) {
	policy := testPolicy()
	policy.IPChange = domain.IPChangeWarn
	g, store, sink := newTestGuard(t, policy, &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	outcome, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)

	req := baseRequest()
	req.SessionID = outcome.SessionID
	req.IPAddress = "10.0.0.2"

	outcome, err = g.check(ctx, req, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, outcome.Allow)
	assert.Zero(t, sink.alertCount())

	session, err := store.Get(ctx, outcome.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", session.IPAddress)
	assert.Contains(t, session.PreviousIPs, "10.0.0.2")
}

func TestCheck_IPChangeBlock(t *testing.T) {
	policy := testPolicy()
	policy.IPChange = domain.IPChangeBlock
	g, store, sink := newTestGuard(t, policy, &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	outcome, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)

	req := baseRequest()
	req.SessionID = outcome.SessionID
	req.IPAddress = "203.0.113.9"

	outcome, err = g.check(ctx, req, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, outcome.Allow)
	assert.Equal(t, CodeLocationChange, outcome.Code)

	_, err = store.Get(ctx, req.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1, sink.alertCount())
}

func TestCheck_Rotation(t *testing.T) {
	policy := testPolicy()
	policy.IdleTimeout = 2 * time.Hour
	g, store, _ := newTestGuard(t, policy, &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	outcome, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)
	originalID := outcome.SessionID

	req := baseRequest()
	req.SessionID = originalID

	outcome, err = g.check(ctx, req, t0.Add(61*time.Minute))
	require.NoError(t, err)
	assert.True(t, outcome.Allow)
	assert.NotEqual(t, originalID, outcome.SessionID)

	// Old id is gone; the rotated session keeps its issue and expiry times.
	_, err = store.Get(ctx, originalID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	rotated, err := store.Get(ctx, outcome.SessionID)
	require.NoError(t, err)
	assert.Equal(t, t0.Unix(), rotated.IssuedAt.Unix())
	assert.Equal(t, t0.Add(policy.AbsoluteTimeout).Unix(), rotated.ExpiresAt.Unix())
}

func TestCheck_MFAGate(t *testing.T) {
	risk := &stubRisk{}
	g, store, _ := newTestGuard(t, testPolicy(), risk)
	ctx := context.Background()
	t0 := time.Now()

	outcome, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)
	id := outcome.SessionID

	risk.score = 80

	req := baseRequest()
	req.SessionID = id

	outcome, err = g.check(ctx, req, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, outcome.Allow)
	assert.Equal(t, http.StatusForbidden, outcome.StatusCode)
	assert.Equal(t, CodeMFARequired, outcome.Code)

	// The session survives; completing MFA clears the gate.
	_, err = store.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, g.UpgradeMFASession(ctx, id))
	outcome, err = g.check(ctx, req, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, outcome.Allow)
}

func TestCheck_ConcurrencyCap(t *testing.T) {
	policy := testPolicy()
	policy.MaxConcurrentSessions = 2
	g, store, _ := newTestGuard(t, policy, &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	first, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)
	second, err := g.check(ctx, baseRequest(), t0.Add(time.Second))
	require.NoError(t, err)
	third, err := g.check(ctx, baseRequest(), t0.Add(2*time.Second))
	require.NoError(t, err)

	// The oldest session is terminated to make room.
	_, err = store.Get(ctx, first.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Get(ctx, second.SessionID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, third.SessionID)
	assert.NoError(t, err)

	sessions, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestCheck_SingleSessionPolicy(t *testing.T) {
	policy := testPolicy()
	policy.SingleSession = true
	g, store, _ := newTestGuard(t, policy, &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	first, err := g.check(ctx, baseRequest(), t0)
	require.NoError(t, err)
	second, err := g.check(ctx, baseRequest(), t0.Add(time.Second))
	require.NoError(t, err)

	_, err = store.Get(ctx, first.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Get(ctx, second.SessionID)
	assert.NoError(t, err)
}

func TestExtendSession(t *testing.T) {
	policy := testPolicy()
	policy.MaxExtensions = 1
	g, store, _ := newTestGuard(t, policy, &stubRisk{})
	ctx := context.Background()

	outcome, err := g.check(ctx, baseRequest(), time.Now())
	require.NoError(t, err)
	id := outcome.SessionID

	extended, err := g.ExtendSession(ctx, id, 45)
	require.NoError(t, err)
	assert.True(t, extended)

	session, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Extensions)
	assert.WithinDuration(t, time.Now().Add(45*time.Minute), session.ExpiresAt, 5*time.Second)

	// Cap reached; the session is untouched.
	extended, err = g.ExtendSession(ctx, id, 45)
	require.NoError(t, err)
	assert.False(t, extended)

	after, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Extensions)
	assert.Equal(t, session.ExpiresAt.Unix(), after.ExpiresAt.Unix())
}

func TestExtendSession_NotFound(t *testing.T) {
	g, _, _ := newTestGuard(t, testPolicy(), &stubRisk{})

	_, err := g.ExtendSession(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTrackHighRiskAction(t *testing.T) {
	g, store, sink := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()

	outcome, err := g.check(ctx, baseRequest(), time.Now())
	require.NoError(t, err)

	require.NoError(t, g.TrackHighRiskAction(ctx, outcome.SessionID, "delete_account"))
	require.NoError(t, g.TrackHighRiskAction(ctx, outcome.SessionID, "export_data"))

	session, err := store.Get(ctx, outcome.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete_account", "export_data"}, session.HighRiskActions)
	assert.Contains(t, sink.security, "high risk action performed")
}

func TestTerminateSession(t *testing.T) {
	g, store, _ := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()

	outcome, err := g.check(ctx, baseRequest(), time.Now())
	require.NoError(t, err)

	require.NoError(t, g.TerminateSession(ctx, outcome.SessionID, "test", "admin"))
	_, err = store.Get(ctx, outcome.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, g.TerminateSession(ctx, outcome.SessionID, "test", "admin"), ErrSessionNotFound)
}

func TestTerminateAllUserSessions(t *testing.T) {
	policy := testPolicy()
	policy.MaxConcurrentSessions = 10
	g, store, _ := newTestGuard(t, policy, &stubRisk{})
	ctx := context.Background()
	t0 := time.Now()

	for i := 0; i < 3; i++ {
		_, err := g.check(ctx, baseRequest(), t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	other := baseRequest()
	other.UserID = "u2"
	other.Username = "bob"
	kept, err := g.check(ctx, other, t0)
	require.NoError(t, err)

	terminated, err := g.TerminateAllUserSessions(ctx, "u1", "offboarding", "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, terminated)

	_, err = store.Get(ctx, kept.SessionID)
	assert.NoError(t, err)
}

func TestGetSessions(t *testing.T) {
	g, _, _ := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()

	outcome, err := g.check(ctx, baseRequest(), time.Now())
	require.NoError(t, err)

	infos, err := g.GetSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, outcome.SessionID, infos[0].ID)
	assert.Equal(t, "alice", infos[0].Username)

	all, err := g.GetAllSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSweepExpired(t *testing.T) {
	g, store, _ := newTestGuard(t, testPolicy(), &stubRisk{})
	ctx := context.Background()

	expired := &domain.Session{
		ID:        "expired",
		UserID:    "u1",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Put(ctx, expired))

	removed, err := g.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
