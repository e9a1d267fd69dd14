// Package behavior maintains per-user activity profiles and flags
// deviations from each user's typical access pattern as risk-scored
// anomalies.
package behavior

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/alert"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/metrics"
)

// Config contains the profiler's tuning knobs.
type Config struct {
	// HistoryLimit caps each user's activity history (default: 1000).
	HistoryLimit int

	// AnomalyLogLimit caps each user's anomaly log (default: 100).
	AnomalyLogLimit int

	// MetricsMinHistory is the history length required before derived
	// metrics are computed (default: 20).
	MetricsMinHistory int

	// DetectionMinHistory is the history length required before anomaly
	// detection runs (default: 10).
	DetectionMinHistory int

	// RetentionPeriod is how long history and anomalies are kept (default: 30 days).
	RetentionPeriod time.Duration

	// RiskDecayStep is subtracted from each user's risk score per cleanup
	// pass, floored at zero (default: 5).
	RiskDecayStep int

	// RiskActionThreshold is the score above which protective action is
	// expected from the session guard (default: 75).
	RiskActionThreshold int

	// CleanupInterval is how often the maintenance pass runs (default: 10m).
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:        1000,
		AnomalyLogLimit:     100,
		MetricsMinHistory:   20,
		DetectionMinHistory: 10,
		RetentionPeriod:     30 * 24 * time.Hour,
		RiskDecayStep:       5,
		RiskActionThreshold: 75,
		CleanupInterval:     10 * time.Minute,
	}
}

// profile is the mutable per-user state. Mutations are serialized by the
// profile's own mutex so concurrent requests for the same user never lose
// counter updates.
type profile struct {
	mu           sync.Mutex
	username     string
	history      []domain.ActivityRecord // most-recent-first
	ipCounts     map[string]int
	uaCounts     map[string]int
	hourCounts   map[int]int
	dayCounts    map[int]int
	metrics      domain.BehaviorMetrics
	riskScore    int
	anomalies    []domain.Anomaly // most-recent-first
	lastActivity time.Time
}

func newProfile(username string) *profile {
	return &profile{
		username:   username,
		ipCounts:   make(map[string]int),
		uaCounts:   make(map[string]int),
		hourCounts: make(map[int]int),
		dayCounts:  make(map[int]int),
	}
}

// Profiler builds behavioral profiles from recorded request activity.
// Profiles are created lazily on first activity and never explicitly
// destroyed; risk decays toward zero over time.
type Profiler struct {
	config     Config
	auditor    alert.Auditor
	dispatcher alert.Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu       sync.RWMutex
	profiles map[string]*profile

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New creates a behavior profiler.
func New(config Config, auditor alert.Auditor, dispatcher alert.Dispatcher, m *metrics.Metrics, logger zerolog.Logger) *Profiler {
	def := DefaultConfig()
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = def.HistoryLimit
	}
	if config.AnomalyLogLimit <= 0 {
		config.AnomalyLogLimit = def.AnomalyLogLimit
	}
	if config.MetricsMinHistory <= 0 {
		config.MetricsMinHistory = def.MetricsMinHistory
	}
	if config.DetectionMinHistory <= 0 {
		config.DetectionMinHistory = def.DetectionMinHistory
	}
	if config.RetentionPeriod <= 0 {
		config.RetentionPeriod = def.RetentionPeriod
	}
	if config.RiskDecayStep <= 0 {
		config.RiskDecayStep = def.RiskDecayStep
	}
	if config.RiskActionThreshold <= 0 {
		config.RiskActionThreshold = def.RiskActionThreshold
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	return &Profiler{
		config:     config,
		auditor:    auditor,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With().Str("component", "behavior-profiler").Logger(),
		profiles:   make(map[string]*profile),
		shutdownCh: make(chan struct{}),
	}
}

func (p *Profiler) getOrCreate(username string) *profile {
	p.mu.RLock()
	prof, ok := p.profiles[username]
	p.mu.RUnlock()
	if ok {
		return prof
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prof, ok = p.profiles[username]; ok {
		return prof
	}
	prof = newProfile(username)
	p.profiles[username] = prof
	return prof
}

// RecordActivity records one access event for a user and runs anomaly
// detection over the updated profile. Anonymous identities are ignored.
func (p *Profiler) RecordActivity(ctx context.Context, username string, rec domain.ActivityRecord) {
	if username == "" || username == "anonymous" {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	prof := p.getOrCreate(username)

	prof.mu.Lock()

	// Unshift into bounded history, oldest dropped.
	prof.history = append([]domain.ActivityRecord{rec}, prof.history...)
	if len(prof.history) > p.config.HistoryLimit {
		prof.history = prof.history[:p.config.HistoryLimit]
	}

	prof.ipCounts[rec.IPAddress]++
	prof.uaCounts[rec.UserAgent]++
	prof.hourCounts[rec.Timestamp.Hour()]++
	prof.dayCounts[int(rec.Timestamp.Weekday())]++
	prof.lastActivity = rec.Timestamp

	if len(prof.history) > p.config.MetricsMinHistory {
		prof.updateMetrics()
	}

	var detected []domain.Anomaly
	if len(prof.history) >= p.config.DetectionMinHistory {
		detected = p.detect(prof, rec)
	}

	previousScore := prof.riskScore
	for _, a := range detected {
		prof.riskScore = clampScore(prof.riskScore + a.Severity.RiskPoints())
		prof.anomalies = append([]domain.Anomaly{a}, prof.anomalies...)
	}
	if len(prof.anomalies) > p.config.AnomalyLogLimit {
		prof.anomalies = prof.anomalies[:p.config.AnomalyLogLimit]
	}
	newScore := prof.riskScore

	prof.mu.Unlock()

	if len(detected) == 0 {
		return
	}

	maxSeverity := domain.SeverityLow
	for _, a := range detected {
		p.metrics.AnomaliesDetected.WithLabelValues(a.Type).Inc()
		if a.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = a.Severity
		}
		_ = p.auditor.LogSecurityEvent(ctx, username, "behavioral anomaly detected", map[string]any{
			"anomaly_type": a.Type,
			"severity":     a.Severity,
			"details":      a.Details,
			"risk_score":   newScore,
		}, rec.IPAddress)
	}

	if maxSeverity.Rank() > domain.SeverityLow.Rank() || newScore > p.config.RiskActionThreshold {
		_ = p.dispatcher.SendAlert(ctx, alert.Alert{
			Severity: maxSeverity,
			Type:     alert.TypeBehaviorAnomaly,
			Message:  "behavioral anomalies detected",
			Details: map[string]any{
				"username":   username,
				"anomalies":  len(detected),
				"risk_score": newScore,
			},
			Subject:  username,
			SourceIP: rec.IPAddress,
		})
	}

	// Crossing the action threshold is logged here; blocking is the
	// session guard's responsibility.
	if previousScore <= p.config.RiskActionThreshold && newScore > p.config.RiskActionThreshold {
		p.logger.Warn().
			Str("username", username).
			Int("risk_score", newScore).
			Msg("risk score crossed protective action threshold")
		_ = p.auditor.LogSecurityEvent(ctx, username, "protective action threshold crossed", map[string]any{
			"risk_score": newScore,
			"threshold":  p.config.RiskActionThreshold,
		}, rec.IPAddress)
	}
}

// updateMetrics recomputes the derived metrics. Caller holds the profile lock.
func (prof *profile) updateMetrics() {
	total := len(prof.history)

	distinctHours := 0
	for _, count := range prof.hourCounts {
		if count > 0 {
			distinctHours++
		}
	}
	if distinctHours > 0 {
		prof.metrics.RequestsPerHour = float64(total) / float64(distinctHours)
	}

	type span struct {
		first, last time.Time
		count       int
	}
	sessions := make(map[string]*span)
	for _, rec := range prof.history {
		s, ok := sessions[rec.SessionID]
		if !ok {
			sessions[rec.SessionID] = &span{first: rec.Timestamp, last: rec.Timestamp, count: 1}
			continue
		}
		if rec.Timestamp.Before(s.first) {
			s.first = rec.Timestamp
		}
		if rec.Timestamp.After(s.last) {
			s.last = rec.Timestamp
		}
		s.count++
	}

	if len(sessions) > 0 {
		var totalDuration time.Duration
		totalRequests := 0
		for _, s := range sessions {
			totalDuration += s.last.Sub(s.first)
			totalRequests += s.count
		}
		prof.metrics.AvgSessionDuration = totalDuration / time.Duration(len(sessions))
		prof.metrics.RequestsPerSession = float64(totalRequests) / float64(len(sessions))
	}
}

// detect runs the anomaly rules against the current event. Caller holds the
// profile lock. Frequency ratios include the event just recorded.
func (p *Profiler) detect(prof *profile, rec domain.ActivityRecord) []domain.Anomaly {
	var detected []domain.Anomaly
	total := len(prof.history)
	now := rec.Timestamp

	if total > 20 {
		ipRatio := float64(prof.ipCounts[rec.IPAddress]) / float64(total)
		if ipRatio < 0.1 {
			detected = append(detected, domain.Anomaly{
				ID:       uuid.NewString(),
				Type:     domain.AnomalyUnusualIP,
				Severity: domain.SeverityMedium,
				Details: map[string]any{
					"ip":    rec.IPAddress,
					"ratio": ipRatio,
				},
				Timestamp: now,
			})
		}

		uaRatio := float64(prof.uaCounts[rec.UserAgent]) / float64(total)
		if uaRatio < 0.1 {
			detected = append(detected, domain.Anomaly{
				ID:       uuid.NewString(),
				Type:     domain.AnomalyUnusualUserAgent,
				Severity: domain.SeverityMedium,
				Details: map[string]any{
					"user_agent": rec.UserAgent,
					"ratio":      uaRatio,
				},
				Timestamp: now,
			})
		}
	}

	if total > 50 {
		hourRatio := float64(prof.hourCounts[now.Hour()]) / float64(total)
		if hourRatio < 0.05 {
			detected = append(detected, domain.Anomaly{
				ID:       uuid.NewString(),
				Type:     domain.AnomalyUnusualTime,
				Severity: domain.SeverityLow,
				Details: map[string]any{
					"hour":  now.Hour(),
					"ratio": hourRatio,
				},
				Timestamp: now,
			})
		}
	}

	if prof.metrics.RequestsPerSession > 0 {
		sessionCount := 0
		for _, h := range prof.history {
			if h.SessionID == rec.SessionID {
				sessionCount++
			}
		}
		if sessionCount > 20 && float64(sessionCount) > 2*prof.metrics.RequestsPerSession {
			detected = append(detected, domain.Anomaly{
				ID:       uuid.NewString(),
				Type:     domain.AnomalyHighActivityRate,
				Severity: domain.SeverityMedium,
				Details: map[string]any{
					"session_id":       rec.SessionID,
					"session_requests": sessionCount,
					"typical":          prof.metrics.RequestsPerSession,
				},
				Timestamp: now,
			})
		}
	}

	return detected
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RiskScore returns the user's current risk score, zero if no profile exists.
func (p *Profiler) RiskScore(username string) int {
	p.mu.RLock()
	prof, ok := p.profiles[username]
	p.mu.RUnlock()
	if !ok {
		return 0
	}

	prof.mu.Lock()
	defer prof.mu.Unlock()
	return prof.riskScore
}

// ResetRiskScore sets the user's risk score back to zero. The reset is
// audit-logged with the acting administrator.
func (p *Profiler) ResetRiskScore(ctx context.Context, username, actor string) bool {
	p.mu.RLock()
	prof, ok := p.profiles[username]
	p.mu.RUnlock()
	if !ok {
		return false
	}

	prof.mu.Lock()
	previous := prof.riskScore
	prof.riskScore = 0
	prof.mu.Unlock()

	_ = p.auditor.LogAuditEvent(ctx, actor, "risk score reset", map[string]any{
		"username":       username,
		"previous_score": previous,
	}, "behavior")
	return true
}

// ProfileSummary returns the externally visible view of a user's profile.
func (p *Profiler) ProfileSummary(username string) (*domain.ProfileSummary, bool) {
	p.mu.RLock()
	prof, ok := p.profiles[username]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}

	prof.mu.Lock()
	defer prof.mu.Unlock()

	summary := &domain.ProfileSummary{
		Username:      username,
		RiskScore:     prof.riskScore,
		TotalEvents:   len(prof.history),
		TopIPs:        topIPs(prof.ipCounts, 3),
		HourHistogram: make(map[int]int, len(prof.hourCounts)),
		Metrics:       prof.metrics,
		LastActivity:  prof.lastActivity,
	}
	for hour, count := range prof.hourCounts {
		summary.HourHistogram[hour] = count
	}

	recent := prof.anomalies
	if len(recent) > 10 {
		recent = recent[:10]
	}
	summary.RecentAnomalies = append([]domain.Anomaly(nil), recent...)

	return summary, true
}

func topIPs(counts map[string]int, n int) []domain.IPCount {
	all := make([]domain.IPCount, 0, len(counts))
	for ip, count := range counts {
		all = append(all, domain.IPCount{IP: ip, Count: count})
	}
	// Insertion sort by count descending; profiles track few distinct IPs.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Count > all[j-1].Count; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Start begins the periodic maintenance pass.
func (p *Profiler) Start(ctx context.Context) {
	p.logger.Info().
		Dur("cleanup_interval", p.config.CleanupInterval).
		Dur("retention", p.config.RetentionPeriod).
		Msg("starting behavior profiler maintenance")

	p.wg.Add(1)
	go p.cleanupLoop(ctx)
}

// Stop gracefully shuts down the maintenance loop.
func (p *Profiler) Stop() {
	close(p.shutdownCh)
	p.wg.Wait()
}

func (p *Profiler) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(time.Now())
		}
	}
}

// Cleanup prunes stale history, decays risk scores, and rebuilds frequency
// maps from the retained history. The profile list is snapshotted first so
// no global lock is held while individual profiles are processed.
func (p *Profiler) Cleanup(now time.Time) {
	p.mu.RLock()
	profs := make([]*profile, 0, len(p.profiles))
	for _, prof := range p.profiles {
		profs = append(profs, prof)
	}
	p.mu.RUnlock()

	cutoff := now.Add(-p.config.RetentionPeriod)
	for _, prof := range profs {
		prof.mu.Lock()
		p.cleanupProfile(prof, cutoff)
		prof.mu.Unlock()
	}

	p.logger.Debug().Int("profiles", len(profs)).Msg("behavior cleanup pass complete")
}

// cleanupProfile prunes one profile. Caller holds the profile lock.
func (p *Profiler) cleanupProfile(prof *profile, cutoff time.Time) {
	retained := prof.history[:0]
	for _, rec := range prof.history {
		if !rec.Timestamp.Before(cutoff) {
			retained = append(retained, rec)
		}
	}
	prof.history = retained

	retainedAnomalies := prof.anomalies[:0]
	for _, a := range prof.anomalies {
		if !a.Timestamp.Before(cutoff) {
			retainedAnomalies = append(retainedAnomalies, a)
		}
	}
	prof.anomalies = retainedAnomalies

	prof.riskScore = clampScore(prof.riskScore - p.config.RiskDecayStep)

	// Rebuild frequency maps from retained history rather than decrementing,
	// so the maps stay consistent with the pruned history.
	prof.ipCounts = make(map[string]int)
	prof.uaCounts = make(map[string]int)
	prof.hourCounts = make(map[int]int)
	prof.dayCounts = make(map[int]int)
	for _, rec := range prof.history {
		prof.ipCounts[rec.IPAddress]++
		prof.uaCounts[rec.UserAgent]++
		prof.hourCounts[rec.Timestamp.Hour()]++
		prof.dayCounts[int(rec.Timestamp.Weekday())]++
	}

	if len(prof.history) > p.config.MetricsMinHistory {
		prof.updateMetrics()
	}
}
