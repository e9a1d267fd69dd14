package provider

import (
	"context"
	"sync"
	"time"

	"github.com/prn-tf/sentinel/internal/domain"
)

// Static is a SettingsProvider over a configuration resolved once at
// startup. The settings value is copied in and never mutated.
type Static struct {
	settings domain.SecuritySettings
}

// NewStatic creates a static settings provider.
func NewStatic(settings domain.SecuritySettings) *Static {
	return &Static{settings: settings}
}

// SecuritySettings returns the resolved settings.
func (s *Static) SecuritySettings() domain.SecuritySettings {
	return s.settings
}

// IncidentLog is an in-memory IncidentSource that the administrative
// surface can append to and resolve.
type IncidentLog struct {
	mu        sync.RWMutex
	incidents []domain.SecurityIncident
}

// NewIncidentLog creates an empty incident log.
func NewIncidentLog() *IncidentLog {
	return &IncidentLog{}
}

// Record appends an incident.
func (l *IncidentLog) Record(incident domain.SecurityIncident) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.incidents = append(l.incidents, incident)
}

// Resolve marks the incident with the given id resolved.
func (l *IncidentLog) Resolve(id string, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.incidents {
		if l.incidents[i].ID == id {
			l.incidents[i].Status = domain.IncidentResolved
			resolved := at
			l.incidents[i].ResolvedAt = &resolved
			return true
		}
	}
	return false
}

// AllIncidents returns a copy of the incident history.
func (l *IncidentLog) AllIncidents(ctx context.Context) ([]domain.SecurityIncident, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.SecurityIncident(nil), l.incidents...), nil
}

// KeyRegistry is an in-memory APIKeySource.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys []domain.APIKey
}

// NewKeyRegistry creates an empty key registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{}
}

// Register adds a key to the inventory.
func (r *KeyRegistry) Register(key domain.APIKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

// AllKeys returns a copy of the key inventory.
func (r *KeyRegistry) AllKeys(ctx context.Context) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.APIKey(nil), r.keys...), nil
}

// Verify interface compliance
var _ SettingsProvider = (*Static)(nil)
var _ IncidentSource = (*IncidentLog)(nil)
var _ APIKeySource = (*KeyRegistry)(nil)
