package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/provider"
)

// InventoryHandler manages the incident log and API key inventory that feed
// the posture scorer.
type InventoryHandler struct {
	incidents *provider.IncidentLog
	keys      *provider.KeyRegistry
	logger    zerolog.Logger
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(incidents *provider.IncidentLog, keys *provider.KeyRegistry, logger zerolog.Logger) *InventoryHandler {
	return &InventoryHandler{
		incidents: incidents,
		keys:      keys,
		logger:    logger.With().Str("handler", "inventory").Logger(),
	}
}

// ListIncidents returns the recorded incident history.
func (h *InventoryHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.incidents.AllIncidents(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list incidents")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents, "count": len(incidents)})
}

// RecordIncident appends a new open incident.
func (h *InventoryHandler) RecordIncident(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.IncidentStatus `json:"status"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Status == "" {
		body.Status = domain.IncidentOpen
	}

	incident := domain.SecurityIncident{
		ID:        uuid.NewString(),
		Status:    body.Status,
		Timestamp: time.Now(),
	}
	h.incidents.Record(incident)
	writeJSON(w, http.StatusCreated, incident)
}

// ResolveIncident marks an incident resolved.
func (h *InventoryHandler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "incidentID")
	if !h.incidents.Resolve(id, time.Now()) {
		writeError(w, http.StatusNotFound, "incident_not_found", "Incident not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true})
}

// ListKeys returns the API key inventory.
func (h *InventoryHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.AllKeys(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list keys")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

// RegisterKey adds a key to the inventory.
func (h *InventoryHandler) RegisterKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.APIKeyStatus `json:"status"`
		Scopes []string            `json:"scopes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Status == "" {
		body.Status = domain.APIKeyActive
	}

	key := domain.APIKey{
		ID:     uuid.NewString(),
		Status: body.Status,
		Scopes: body.Scopes,
	}
	h.keys.Register(key)
	writeJSON(w, http.StatusCreated, key)
}
