package domain

import "time"

// Severity classifies security events and anomalies.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordering value for severity comparison.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// RiskPoints returns the risk score increment contributed by an anomaly
// of this severity.
func (s Severity) RiskPoints() int {
	switch s {
	case SeverityLow:
		return 5
	case SeverityMedium:
		return 15
	case SeverityHigh:
		return 25
	case SeverityCritical:
		return 40
	default:
		return 0
	}
}

// ActivityRecord is a single access event in a user's behavior history.
type ActivityRecord struct {
	Endpoint       string        `json:"endpoint"`
	Method         string        `json:"method"`
	Timestamp      time.Time     `json:"timestamp"`
	IPAddress      string        `json:"ip_address"`
	UserAgent      string        `json:"user_agent"`
	SessionID      string        `json:"session_id"`
	ProcessingTime time.Duration `json:"processing_time"`
	StatusCode     int           `json:"status_code"`
}

// Anomaly types detected by the behavior profiler.
const (
	AnomalyUnusualIP        = "unusual_ip"
	AnomalyUnusualTime      = "unusual_time"
	AnomalyUnusualUserAgent = "unusual_user_agent"
	AnomalyHighActivityRate = "high_activity_rate"
)

// Anomaly is a detected deviation from a user's typical access pattern.
type Anomaly struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BehaviorMetrics are the derived statistics of a user's activity history.
// They are recomputed once enough history exists.
type BehaviorMetrics struct {
	// RequestsPerHour is total requests divided by distinct hour buckets observed.
	RequestsPerHour float64 `json:"requests_per_hour"`

	// AvgSessionDuration is the mean span between a session's first and last event.
	AvgSessionDuration time.Duration `json:"avg_session_duration"`

	// RequestsPerSession is the mean event count per session.
	RequestsPerSession float64 `json:"requests_per_session"`
}

// IPCount pairs an IP address with its observed frequency.
type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// ProfileSummary is the externally visible view of a behavior profile.
type ProfileSummary struct {
	Username        string          `json:"username"`
	RiskScore       int             `json:"risk_score"`
	TotalEvents     int             `json:"total_events"`
	TopIPs          []IPCount       `json:"top_ips"`
	HourHistogram   map[int]int     `json:"hour_histogram"`
	RecentAnomalies []Anomaly       `json:"recent_anomalies"`
	Metrics         BehaviorMetrics `json:"metrics"`
	LastActivity    time.Time       `json:"last_activity"`
}
