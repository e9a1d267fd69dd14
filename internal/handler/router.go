package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	AdminHandler     *AdminHandler
	InventoryHandler *InventoryHandler
	GuardMiddleware  func(http.Handler) http.Handler
	RecordMiddleware func(http.Handler) http.Handler
	MetricsRegistry  *prometheus.Registry
	Logger           zerolog.Logger
}

// NewRouter builds the HTTP routing tree. The health and metrics endpoints
// sit outside the session guard; everything else passes through it.
func NewRouter(config RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(config.MetricsRegistry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(config.GuardMiddleware)
		r.Use(config.RecordMiddleware)

		admin := config.AdminHandler
		r.Route("/admin/security", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", admin.ListSessions)
				r.Get("/user/{userID}", admin.ListUserSessions)
				r.Delete("/user/{userID}", admin.TerminateUserSessions)
				r.Delete("/{sessionID}", admin.TerminateSession)
				r.Post("/{sessionID}/extend", admin.ExtendSession)
				r.Post("/{sessionID}/mfa", admin.UpgradeMFA)
				r.Post("/{sessionID}/high-risk", admin.TrackHighRiskAction)
			})

			r.Route("/behavior/{username}", func(r chi.Router) {
				r.Get("/risk", admin.GetRiskScore)
				r.Get("/summary", admin.GetProfileSummary)
				r.Post("/reset", admin.ResetRiskScore)
			})

			inventory := config.InventoryHandler
			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", inventory.ListIncidents)
				r.Post("/", inventory.RecordIncident)
				r.Post("/{incidentID}/resolve", inventory.ResolveIncident)
			})
			r.Route("/keys", func(r chi.Router) {
				r.Get("/", inventory.ListKeys)
				r.Post("/", inventory.RegisterKey)
			})

			r.Route("/posture", func(r chi.Router) {
				r.Get("/", admin.GetPostureScore)
				r.Post("/recalculate", admin.RecalculatePosture)
				r.Get("/history", admin.GetPostureHistory)
				r.Put("/recommendations/{recommendationID}", admin.UpdateRecommendation)
			})
		})
	})

	return r
}
