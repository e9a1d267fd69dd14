package posture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/alert"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/metrics"
	"github.com/prn-tf/sentinel/internal/provider"
)

const (
	// historyLimit caps the score history at a year of daily snapshots.
	historyLimit = 365

	// alertDelta is the absolute score change that triggers an alert.
	alertDelta = 5

	// DefaultRecalcInterval is how often the score is recomputed.
	DefaultRecalcInterval = 24 * time.Hour
)

// ErrRecommendationNotFound is returned for an unknown recommendation id.
var ErrRecommendationNotFound = errors.New("recommendation not found")

// ErrInvalidStatus is returned for an unknown recommendation status.
var ErrInvalidStatus = errors.New("invalid recommendation status")

// Config contains scorer configuration.
type Config struct {
	// RecalcInterval is how often the score is recomputed (default: daily).
	RecalcInterval time.Duration

	// Weights overrides the default category weights. Partial overrides are
	// merged over the defaults and renormalized to sum to 100; unknown
	// categories are ignored.
	Weights map[domain.Category]float64
}

// Scorer computes the aggregate security posture score.
type Scorer struct {
	config     Config
	settings   provider.SettingsProvider
	incidents  provider.IncidentSource
	keys       provider.APIKeySource
	auditor    alert.Auditor
	dispatcher alert.Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu      sync.RWMutex
	current *domain.SecurityScore
	history []domain.ScoreSnapshot

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New creates a posture scorer.
func New(
	config Config,
	settings provider.SettingsProvider,
	incidents provider.IncidentSource,
	keys provider.APIKeySource,
	auditor alert.Auditor,
	dispatcher alert.Dispatcher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Scorer {
	if config.RecalcInterval <= 0 {
		config.RecalcInterval = DefaultRecalcInterval
	}

	return &Scorer{
		config:     config,
		settings:   settings,
		incidents:  incidents,
		keys:       keys,
		auditor:    auditor,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With().Str("component", "posture-scorer").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// normalizeWeights merges overrides over the configured weights and scales
// the result to sum to 100. Weights for categories outside the known set are
// dropped so they cannot dilute the real ones after renormalization.
func (s *Scorer) normalizeWeights(overrides map[domain.Category]float64) map[domain.Category]float64 {
	active := domain.DefaultWeights()
	for category, weight := range s.config.Weights {
		if _, known := active[category]; !known {
			s.logger.Warn().Str("category", string(category)).Msg("ignoring weight for unknown category")
			continue
		}
		active[category] = weight
	}
	for category, weight := range overrides {
		if _, known := active[category]; !known {
			s.logger.Warn().Str("category", string(category)).Msg("ignoring weight for unknown category")
			continue
		}
		active[category] = weight
	}

	sum := 0.0
	for _, weight := range active {
		sum += weight
	}
	if sum == 0 {
		return active
	}

	normalized := make(map[domain.Category]float64, len(active))
	for category, weight := range active {
		normalized[category] = weight / sum * 100
	}
	return normalized
}

// Calculate computes a fresh posture score, appends it to the history, and
// alerts on significant changes. Weight overrides apply to this invocation
// only.
func (s *Scorer) Calculate(ctx context.Context, overrides map[domain.Category]float64) (*domain.SecurityScore, error) {
	incidents, err := s.incidents.AllIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read incidents: %w", err)
	}
	keys, err := s.keys.AllKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read api keys: %w", err)
	}

	in := Inputs{
		Settings:  s.settings.SecuritySettings(),
		Incidents: incidents,
		Keys:      keys,
	}

	categories := make(map[domain.Category]int, len(domain.Categories()))
	for _, category := range domain.Categories() {
		categories[category] = categoryScore(category, in)
	}

	weights := s.normalizeWeights(overrides)
	weighted := 0.0
	for category, score := range categories {
		weighted += float64(score) * weights[category] / 100
	}
	overall := int(math.Round(weighted))

	score := &domain.SecurityScore{
		Overall:         overall,
		Categories:      categories,
		LastCalculated:  time.Now(),
		Recommendations: generateRecommendations(categories),
	}

	s.mu.Lock()
	if s.current != nil {
		previous := s.current.Overall
		change := overall - previous
		score.PreviousScore = &previous
		score.ScoreChange = &change
	}
	s.current = score

	s.history = append(s.history, domain.ScoreSnapshot{
		Timestamp:  score.LastCalculated,
		Overall:    overall,
		Categories: categories,
	})
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	s.mu.Unlock()

	s.metrics.PostureScore.Set(float64(overall))

	details := map[string]any{
		"score":      overall,
		"categories": categories,
	}
	if score.ScoreChange != nil {
		details["change"] = *score.ScoreChange
	}
	_ = s.auditor.LogSecurityEvent(ctx, "system", "security score calculated", details, "system")

	if score.ScoreChange != nil && abs(*score.ScoreChange) >= alertDelta {
		severity := domain.SeverityMedium
		direction := "decreased"
		if *score.ScoreChange > 0 {
			severity = domain.SeverityLow
			direction = "increased"
		}
		_ = s.dispatcher.SendAlert(ctx, alert.Alert{
			Severity: severity,
			Type:     alert.TypeSystem,
			Message:  fmt.Sprintf("security score %s by %d points", direction, abs(*score.ScoreChange)),
			Details: map[string]any{
				"old_score":  *score.PreviousScore,
				"new_score":  overall,
				"change":     *score.ScoreChange,
				"categories": categories,
			},
		})
	}

	s.logger.Info().Int("overall", overall).Msg("posture score calculated")
	return cloneScore(score), nil
}

// Current returns the most recent score, or nil if none has been computed.
func (s *Scorer) Current() *domain.SecurityScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneScore(s.current)
}

// History returns the score snapshots from the last given number of days.
func (s *Scorer) History(days int) []domain.ScoreSnapshot {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ScoreSnapshot
	for _, snap := range s.history {
		if !snap.Timestamp.Before(cutoff) {
			out = append(out, snap)
		}
	}
	return out
}

// UpdateRecommendationStatus transitions a recommendation's lifecycle state.
// Completing a recommendation stamps the implementation time and triggers an
// immediate recomputation, since the underlying configuration presumably
// changed.
func (s *Scorer) UpdateRecommendationStatus(ctx context.Context, id string, status domain.RecommendationStatus, updatedBy string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrRecommendationNotFound
	}

	var title string
	found := false
	for i := range s.current.Recommendations {
		if s.current.Recommendations[i].ID == id {
			s.current.Recommendations[i].Status = status
			if status == domain.RecommendationCompleted {
				now := time.Now()
				s.current.Recommendations[i].ImplementedAt = &now
			}
			title = s.current.Recommendations[i].Title
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return ErrRecommendationNotFound
	}

	_ = s.auditor.LogAuditEvent(ctx, updatedBy, "security recommendation status updated", map[string]any{
		"recommendation_id": id,
		"status":            status,
		"title":             title,
	}, "system")

	if status == domain.RecommendationCompleted {
		if _, err := s.Calculate(ctx, nil); err != nil {
			s.logger.Error().Err(err).Msg("recalculation after recommendation completion failed")
		}
	}
	return nil
}

// Start begins the periodic recomputation loop.
func (s *Scorer) Start(ctx context.Context) {
	s.logger.Info().Dur("recalc_interval", s.config.RecalcInterval).Msg("starting posture scorer")

	s.wg.Add(1)
	go s.recalcLoop(ctx)
}

// Stop gracefully shuts down the recomputation loop.
func (s *Scorer) Stop() {
	close(s.shutdownCh)
	s.wg.Wait()
}

func (s *Scorer) recalcLoop(ctx context.Context) {
	defer s.wg.Done()

	// Initial computation so a score is available immediately.
	if _, err := s.Calculate(ctx, nil); err != nil {
		s.logger.Error().Err(err).Msg("initial score calculation failed")
	}

	ticker := time.NewTicker(s.config.RecalcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Calculate(ctx, nil); err != nil {
				s.logger.Error().Err(err).Msg("scheduled score calculation failed")
			}
		}
	}
}

func cloneScore(score *domain.SecurityScore) *domain.SecurityScore {
	if score == nil {
		return nil
	}
	cp := *score
	cp.Categories = make(map[domain.Category]int, len(score.Categories))
	for category, v := range score.Categories {
		cp.Categories[category] = v
	}
	cp.Recommendations = append([]domain.Recommendation(nil), score.Recommendations...)
	return &cp
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
