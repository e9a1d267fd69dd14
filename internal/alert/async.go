package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDispatchTimeout bounds each outbound audit/alert call.
const DefaultDispatchTimeout = 5 * time.Second

// DefaultMaxInFlight bounds the number of concurrent dispatch goroutines.
const DefaultMaxInFlight = 64

// Async wraps a Dispatcher and an Auditor with best-effort, non-blocking
// delivery. Calls return immediately; delivery happens on a bounded pool of
// goroutines with a per-call timeout. Failures and panics are logged locally
// and never reach the caller, so a security decision is never lost to a
// collaborator outage.
type Async struct {
	dispatcher Dispatcher
	auditor    Auditor
	timeout    time.Duration
	sem        chan struct{}
	wg         sync.WaitGroup
	logger     zerolog.Logger
}

// AsyncConfig configures the async wrapper.
type AsyncConfig struct {
	// Timeout bounds each delivery attempt (default: 5s).
	Timeout time.Duration

	// MaxInFlight bounds concurrent deliveries (default: 64). When the
	// bound is reached, further events are dropped with a local log entry
	// rather than blocking the request path.
	MaxInFlight int
}

// NewAsync creates the async wrapper around the given collaborators.
func NewAsync(dispatcher Dispatcher, auditor Auditor, logger zerolog.Logger, config AsyncConfig) *Async {
	if config.Timeout <= 0 {
		config.Timeout = DefaultDispatchTimeout
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultMaxInFlight
	}

	return &Async{
		dispatcher: dispatcher,
		auditor:    auditor,
		timeout:    config.Timeout,
		sem:        make(chan struct{}, config.MaxInFlight),
		logger:     logger.With().Str("component", "alert-async").Logger(),
	}
}

// SendAlert queues an alert for delivery and returns immediately.
func (a *Async) SendAlert(ctx context.Context, alrt Alert) error {
	a.submit("alert", func(ctx context.Context) error {
		return a.dispatcher.SendAlert(ctx, alrt)
	})
	return nil
}

// LogSecurityEvent queues a security event and returns immediately.
func (a *Async) LogSecurityEvent(ctx context.Context, subject, message string, details map[string]any, sourceIP string) error {
	a.submit("security_event", func(ctx context.Context) error {
		return a.auditor.LogSecurityEvent(ctx, subject, message, details, sourceIP)
	})
	return nil
}

// LogAuditEvent queues an audit event and returns immediately.
func (a *Async) LogAuditEvent(ctx context.Context, actor, message string, details map[string]any, scope string) error {
	a.submit("audit_event", func(ctx context.Context) error {
		return a.auditor.LogAuditEvent(ctx, actor, message, details, scope)
	})
	return nil
}

// submit runs fn on the dispatch pool. Deliberately detached from the
// caller's context: the request finishing must not cancel delivery.
func (a *Async) submit(kind string, fn func(ctx context.Context) error) {
	select {
	case a.sem <- struct{}{}:
	default:
		a.logger.Warn().Str("kind", kind).Msg("dispatch pool saturated, dropping event")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() { <-a.sem }()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error().Str("kind", kind).Interface("panic", r).Msg("collaborator panicked during dispatch")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			a.logger.Error().Err(err).Str("kind", kind).Msg("dispatch failed")
		}
	}()
}

// Close waits for in-flight deliveries to finish.
func (a *Async) Close() {
	a.wg.Wait()
}

// Verify interface compliance
var _ Dispatcher = (*Async)(nil)
var _ Auditor = (*Async)(nil)
