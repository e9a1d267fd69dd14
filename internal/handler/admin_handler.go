package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/behavior"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/guard"
	"github.com/prn-tf/sentinel/internal/posture"
)

// AdminHandler exposes the administrative security API.
type AdminHandler struct {
	guard    *guard.Guard
	profiler *behavior.Profiler
	scorer   *posture.Scorer
	logger   zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(g *guard.Guard, profiler *behavior.Profiler, scorer *posture.Scorer, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		guard:    g,
		profiler: profiler,
		scorer:   scorer,
		logger:   logger.With().Str("handler", "admin").Logger(),
	}
}

// actor returns the administrative principal performing the request.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Username"); a != "" {
		return a
	}
	return "admin"
}

// ListSessions returns every active session.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.guard.GetAllSessions(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list sessions")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// ListUserSessions returns the active sessions for one user.
func (h *AdminHandler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sessions, err := h.guard.GetSessions(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list user sessions")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// TerminateSession forcibly destroys one session.
func (h *AdminHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "administrative action"
	}

	err := h.guard.TerminateSession(r.Context(), id, body.Reason, actor(r))
	if err != nil {
		if errors.Is(err, guard.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to terminate session")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to terminate session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"terminated": true})
}

// TerminateUserSessions destroys every session belonging to a user.
func (h *AdminHandler) TerminateUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "administrative action"
	}

	terminated, err := h.guard.TerminateAllUserSessions(r.Context(), userID, body.Reason, actor(r))
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to terminate user sessions")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to terminate sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"terminated": terminated})
}

// ExtendSession pushes a session's expiry forward.
func (h *AdminHandler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Minutes <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "minutes must be a positive integer")
		return
	}

	extended, err := h.guard.ExtendSession(r.Context(), id, body.Minutes)
	if err != nil {
		if errors.Is(err, guard.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to extend session")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to extend session")
		return
	}
	if !extended {
		writeError(w, http.StatusConflict, "extension_limit_reached", "Session extension limit reached")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"extended": true})
}

// UpgradeMFA marks a session as MFA-verified.
func (h *AdminHandler) UpgradeMFA(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if err := h.guard.UpgradeMFASession(r.Context(), id); err != nil {
		if errors.Is(err, guard.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to upgrade session")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to upgrade session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upgraded": true})
}

// TrackHighRiskAction records a sensitive operation against a session.
func (h *AdminHandler) TrackHighRiskAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Action == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "action is required")
		return
	}

	if err := h.guard.TrackHighRiskAction(r.Context(), id, body.Action); err != nil {
		if errors.Is(err, guard.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to track action")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to track action")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracked": true})
}

// GetRiskScore returns a user's current behavioral risk score.
func (h *AdminHandler) GetRiskScore(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	writeJSON(w, http.StatusOK, map[string]any{
		"username":   username,
		"risk_score": h.profiler.RiskScore(username),
	})
}

// GetProfileSummary returns a user's behavior profile summary.
func (h *AdminHandler) GetProfileSummary(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	summary, ok := h.profiler.ProfileSummary(username)
	if !ok {
		writeError(w, http.StatusNotFound, "profile_not_found", "No behavior profile for user")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ResetRiskScore zeroes a user's risk score.
func (h *AdminHandler) ResetRiskScore(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !h.profiler.ResetRiskScore(r.Context(), username, actor(r)) {
		writeError(w, http.StatusNotFound, "profile_not_found", "No behavior profile for user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// GetPostureScore returns the current security posture score.
func (h *AdminHandler) GetPostureScore(w http.ResponseWriter, r *http.Request) {
	score := h.scorer.Current()
	if score == nil {
		var err error
		score, err = h.scorer.Calculate(r.Context(), nil)
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to calculate score")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to calculate score")
			return
		}
	}
	writeJSON(w, http.StatusOK, score)
}

// RecalculatePosture forces a fresh posture calculation, optionally with
// one-off category weight overrides.
func (h *AdminHandler) RecalculatePosture(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Weights map[domain.Category]float64 `json:"weights"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	score, err := h.scorer.Calculate(r.Context(), body.Weights)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to calculate score")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to calculate score")
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// GetPostureHistory returns score snapshots for the requested window.
func (h *AdminHandler) GetPostureHistory(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "days must be a positive integer")
			return
		}
		days = parsed
	}

	history := h.scorer.History(days)
	writeJSON(w, http.StatusOK, map[string]any{"history": history, "days": days})
}

// UpdateRecommendation transitions a recommendation's lifecycle state.
func (h *AdminHandler) UpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recommendationID")

	var body struct {
		Status domain.RecommendationStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}

	err := h.scorer.UpdateRecommendationStatus(r.Context(), id, body.Status, actor(r))
	if err != nil {
		switch {
		case errors.Is(err, posture.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, "invalid_status", "Unknown recommendation status")
		case errors.Is(err, posture.ErrRecommendationNotFound):
			writeError(w, http.StatusNotFound, "recommendation_not_found", "Recommendation not found")
		default:
			h.logger.Error().Err(err).Str("recommendation_id", id).Msg("failed to update recommendation")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update recommendation")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}
