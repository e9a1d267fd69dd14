package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
	events []string
	err    error
	panics bool
}

func (r *recordingSink) SendAlert(_ context.Context, a Alert) error {
	if r.panics {
		panic("sink exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingSink) LogSecurityEvent(_ context.Context, _, message string, _ map[string]any, _ string) error {
	if r.panics {
		panic("sink exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, message)
	return r.err
}

func (r *recordingSink) LogAuditEvent(_ context.Context, _, message string, _ map[string]any, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, message)
	return r.err
}

func (r *recordingSink) alertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestAsync_DeliversAlerts(t *testing.T) {
	sink := &recordingSink{}
	async := NewAsync(sink, sink, zerolog.Nop(), AsyncConfig{})

	err := async.SendAlert(context.Background(), Alert{
		Severity: domain.SeverityHigh,
		Type:     TypeSessionHijacking,
		Message:  "test",
	})
	require.NoError(t, err)

	async.Close()
	assert.Equal(t, 1, sink.alertCount())
}

func TestAsync_FailuresDoNotReachCaller(t *testing.T) {
	sink := &recordingSink{err: errors.New("downstream unavailable")}
	async := NewAsync(sink, sink, zerolog.Nop(), AsyncConfig{})

	assert.NoError(t, async.SendAlert(context.Background(), Alert{Message: "a"}))
	assert.NoError(t, async.LogSecurityEvent(context.Background(), "alice", "event", nil, "10.0.0.1"))
	assert.NoError(t, async.LogAuditEvent(context.Background(), "admin", "event", nil, "system"))

	async.Close()
}

func TestAsync_PanicsAreContained(t *testing.T) {
	sink := &recordingSink{panics: true}
	async := NewAsync(sink, sink, zerolog.Nop(), AsyncConfig{})

	assert.NotPanics(t, func() {
		_ = async.SendAlert(context.Background(), Alert{Message: "boom"})
		_ = async.LogSecurityEvent(context.Background(), "alice", "boom", nil, "")
		async.Close()
	})
}

func TestAsync_CallerContextCancellationIgnored(t *testing.T) {
	sink := &recordingSink{}
	async := NewAsync(sink, sink, zerolog.Nop(), AsyncConfig{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Delivery is detached from the request context.
	require.NoError(t, async.SendAlert(ctx, Alert{Message: "detached"}))
	async.Close()
	assert.Equal(t, 1, sink.alertCount())
}
