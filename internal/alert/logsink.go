package alert

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/domain"
)

// LogSink implements Dispatcher and Auditor on top of structured logging.
// It is the default sink when no external alerting collaborator is wired.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a logging-backed sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "alert-sink").Logger()}
}

// SendAlert logs the alert at a level matching its severity.
func (s *LogSink) SendAlert(ctx context.Context, a Alert) error {
	event := s.logger.Warn()
	if a.Severity.Rank() >= domain.SeverityHigh.Rank() {
		event = s.logger.Error()
	}
	event.
		Str("severity", string(a.Severity)).
		Str("type", a.Type).
		Str("subject", a.Subject).
		Str("source_ip", a.SourceIP).
		Interface("details", a.Details).
		Msg(a.Message)
	return nil
}

// LogSecurityEvent records a security event.
func (s *LogSink) LogSecurityEvent(ctx context.Context, subject, message string, details map[string]any, sourceIP string) error {
	s.logger.Warn().
		Str("event", "security").
		Str("subject", subject).
		Str("source_ip", sourceIP).
		Interface("details", details).
		Msg(message)
	return nil
}

// LogAuditEvent records an audit event.
func (s *LogSink) LogAuditEvent(ctx context.Context, actor, message string, details map[string]any, scope string) error {
	s.logger.Info().
		Str("event", "audit").
		Str("actor", actor).
		Str("scope", scope).
		Interface("details", details).
		Msg(message)
	return nil
}

// Verify interface compliance
var _ Dispatcher = (*LogSink)(nil)
var _ Auditor = (*LogSink)(nil)
