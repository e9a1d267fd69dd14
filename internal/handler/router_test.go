package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel/internal/alert"
	"github.com/prn-tf/sentinel/internal/behavior"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/guard"
	"github.com/prn-tf/sentinel/internal/metrics"
	"github.com/prn-tf/sentinel/internal/posture"
	"github.com/prn-tf/sentinel/internal/provider"
	"github.com/prn-tf/sentinel/internal/repository/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := zerolog.Nop()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	sink := alert.NewLogSink(logger)

	settings := domain.DefaultSecuritySettings()
	store := memory.New(logger)
	profiler := behavior.New(behavior.DefaultConfig(), sink, sink, m, logger)
	incidentLog := provider.NewIncidentLog()
	keyRegistry := provider.NewKeyRegistry()
	scorer := posture.New(posture.Config{},
		provider.NewStatic(settings), incidentLog, keyRegistry,
		sink, sink, m, logger)
	sessionGuard := guard.New(store, profiler, sink, sink, settings.Session, m, logger)

	return NewRouter(RouterConfig{
		AdminHandler:     NewAdminHandler(sessionGuard, profiler, scorer, logger),
		InventoryHandler: NewInventoryHandler(incidentLog, keyRegistry, logger),
		GuardMiddleware:  GuardMiddleware(sessionGuard, logger),
		RecordMiddleware: RecordMiddleware(profiler),
		MetricsRegistry:  registry,
		Logger:           logger,
	})
}

func authedRequest(method, target string, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("X-User-Id", "u1")
	r.Header.Set("X-Username", "alice")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("Accept-Language", "en-US")
	r.Header.Set("Accept-Encoding", "gzip")
	r.RemoteAddr = "10.0.0.1:52314"
	return r
}

func TestRouter_HealthBypassesGuard(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(SessionHeader))
}

func TestRouter_MetricsExposed(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_GuardInitializesSession(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/admin/security/sessions", ""))

	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(SessionHeader)
	assert.Len(t, id, 64)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestRouter_GuardRejectsTamperedFingerprint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/admin/security/sessions", ""))
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(SessionHeader)

	tampered := authedRequest(http.MethodGet, "/admin/security/sessions", "")
	tampered.Header.Set(SessionHeader, id)
	tampered.Header.Set("User-Agent", "curl/8.0")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, tampered)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, guard.CodeValidationFailed, body["error"].Code)
}

func TestRouter_SessionReuse(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/admin/security/sessions", ""))
	id := w.Header().Get(SessionHeader)

	again := authedRequest(http.MethodGet, "/admin/security/sessions", "")
	again.Header.Set(SessionHeader, id)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, again)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, w.Header().Get(SessionHeader))

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestRouter_PostureEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/admin/security/posture/", ""))

	require.Equal(t, http.StatusOK, w.Code)
	var score domain.SecurityScore
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &score))
	assert.Equal(t, 55, score.Overall)
	assert.Len(t, score.Categories, 7)
}

func TestRouter_BehaviorRiskEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/admin/security/behavior/alice/risk", ""))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Username  string `json:"username"`
		RiskScore int    `json:"risk_score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Username)
	assert.Equal(t, 0, body.RiskScore)
}

func TestRouter_ExtendValidation(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/admin/security/sessions/abc/extend", `{"minutes":0}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_TerminateUnknownSession(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodDelete, "/admin/security/sessions/unknown", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_IncidentLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/admin/security/incidents/", `{}`))
	require.Equal(t, http.StatusCreated, w.Code)

	var incident domain.SecurityIncident
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &incident))
	assert.Equal(t, domain.IncidentOpen, incident.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/admin/security/incidents/"+incident.ID+"/resolve", ""))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/admin/security/incidents/unknown/resolve", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/admin/security/incidents/", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
}

func TestRouter_KeyRegistration(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/admin/security/keys/", `{"scopes":["read"]}`))
	require.Equal(t, http.StatusCreated, w.Code)

	var key domain.APIKey
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &key))
	assert.Equal(t, domain.APIKeyActive, key.Status)
	assert.Equal(t, []string{"read"}, key.Scopes)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/admin/security/keys/", ""))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 192.0.2.1")
	assert.Equal(t, "203.0.113.5", clientIP(r))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-Ip", "203.0.113.6")
	assert.Equal(t, "203.0.113.6", clientIP(r))
}
