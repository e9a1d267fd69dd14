package domain

import "time"

// IncidentStatus is the lifecycle state of a security incident.
type IncidentStatus string

const (
	IncidentOpen      IncidentStatus = "open"
	IncidentMitigated IncidentStatus = "mitigated"
	IncidentResolved  IncidentStatus = "resolved"
)

// SecurityIncident is the read-only incident view consumed by the
// incident-response scoring category.
type SecurityIncident struct {
	ID         string         `json:"id"`
	Status     IncidentStatus `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// APIKeyStatus is the lifecycle state of an API key.
type APIKeyStatus string

const (
	APIKeyActive  APIKeyStatus = "active"
	APIKeyExpired APIKeyStatus = "expired"
	APIKeyRotated APIKeyStatus = "rotated"
)

// APIKey is the read-only key view consumed by the data-protection
// scoring category.
type APIKey struct {
	ID     string       `json:"id"`
	Status APIKeyStatus `json:"status"`
	Scopes []string     `json:"scopes,omitempty"`
}
