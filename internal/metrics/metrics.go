// Package metrics exposes Prometheus instrumentation for the Sentinel engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// ActiveSessions is the number of sessions currently registered.
	ActiveSessions prometheus.Gauge

	// SessionsTerminated counts destroyed sessions by cause.
	SessionsTerminated *prometheus.CounterVec

	// RequestsRejected counts guard rejections by reason code.
	RequestsRejected *prometheus.CounterVec

	// AnomaliesDetected counts behavioral anomalies by type.
	AnomaliesDetected *prometheus.CounterVec

	// PostureScore is the most recent overall security posture score.
	PostureScore prometheus.Gauge
}

// New creates and registers the engine collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "active_sessions",
			Help:      "Number of sessions currently registered.",
		}),
		SessionsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "sessions_terminated_total",
			Help:      "Sessions destroyed, by cause.",
		}, []string{"cause"}),
		RequestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "requests_rejected_total",
			Help:      "Requests rejected by the session guard, by reason code.",
		}, []string{"code"}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "anomalies_detected_total",
			Help:      "Behavioral anomalies detected, by type.",
		}, []string{"type"}),
		PostureScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "posture_score",
			Help:      "Most recent overall security posture score.",
		}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.SessionsTerminated,
		m.RequestsRejected,
		m.AnomaliesDetected,
		m.PostureScore,
	)
	return m
}
