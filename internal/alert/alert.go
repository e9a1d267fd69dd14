// Package alert defines the audit and alerting ports consumed by the
// Sentinel engine, plus a fire-and-forget dispatch wrapper. Delivery
// transport (email, SMS, webhook) is a collaborator concern; this package
// only guarantees that a slow or failing collaborator never blocks or
// fails the security decision already made.
package alert

import (
	"context"

	"github.com/prn-tf/sentinel/internal/domain"
)

// Alert types raised by the engine.
const (
	TypeSessionHijacking = "session_hijacking"
	TypeSessionAnomaly   = "session_anomaly"
	TypeBehaviorAnomaly  = "behavior_anomaly"
	TypeSystem           = "system"
)

// Alert is one outbound alert.
type Alert struct {
	Severity domain.Severity `json:"severity"`
	Type     string          `json:"type"`
	Message  string          `json:"message"`
	Details  map[string]any  `json:"details,omitempty"`
	Subject  string          `json:"subject,omitempty"`
	SourceIP string          `json:"source_ip,omitempty"`
}

// Dispatcher delivers alerts to the outside world.
type Dispatcher interface {
	SendAlert(ctx context.Context, a Alert) error
}

// Auditor records security and audit events.
type Auditor interface {
	// LogSecurityEvent records a security-relevant event about a subject.
	LogSecurityEvent(ctx context.Context, subject, message string, details map[string]any, sourceIP string) error

	// LogAuditEvent records an administrative action by an actor.
	LogAuditEvent(ctx context.Context, actor, message string, details map[string]any, scope string) error
}
