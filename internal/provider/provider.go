// Package provider defines the read-only collaborator ports that feed the
// Sentinel engine: security settings, incident history, and API key
// inventory. A missing settings provider is a startup-time fatal condition,
// never a per-request one.
package provider

import (
	"context"

	"github.com/prn-tf/sentinel/internal/domain"
)

// SettingsProvider exposes the resolved security configuration.
type SettingsProvider interface {
	SecuritySettings() domain.SecuritySettings
}

// IncidentSource exposes the security incident history consumed by the
// incident-response scoring category.
type IncidentSource interface {
	AllIncidents(ctx context.Context) ([]domain.SecurityIncident, error)
}

// APIKeySource exposes the API key inventory consumed by the
// data-protection scoring category.
type APIKeySource interface {
	AllKeys(ctx context.Context) ([]domain.APIKey, error)
}
