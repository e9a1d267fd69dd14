package posture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel/internal/alert"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/metrics"
	"github.com/prn-tf/sentinel/internal/provider"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureSink) SendAlert(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureSink) LogSecurityEvent(context.Context, string, string, map[string]any, string) error {
	return nil
}

func (c *captureSink) LogAuditEvent(context.Context, string, string, map[string]any, string) error {
	return nil
}

func newTestScorer(t *testing.T, config Config) (*Scorer, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	m := metrics.New(prometheus.NewRegistry())
	scorer := New(config,
		provider.NewStatic(domain.DefaultSecuritySettings()),
		provider.NewIncidentLog(),
		provider.NewKeyRegistry(),
		sink, sink, m, zerolog.Nop())
	return scorer, sink
}

// allWeightsOn concentrates the full weight on one category.
func allWeightsOn(category domain.Category) map[domain.Category]float64 {
	weights := make(map[domain.Category]float64, len(domain.Categories()))
	for _, c := range domain.Categories() {
		weights[c] = 0
	}
	weights[category] = 100
	return weights
}

func TestCalculate_DefaultSettings(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})

	score, err := scorer.Calculate(context.Background(), nil)
	require.NoError(t, err)

	// Category scores derived from the default settings rubrics.
	assert.Equal(t, 77, score.Categories[domain.CategoryAuthentication])
	assert.Equal(t, 70, score.Categories[domain.CategoryDataProtection])
	assert.Equal(t, 38, score.Categories[domain.CategoryNetworkSecurity])
	assert.Equal(t, 30, score.Categories[domain.CategoryApplicationSec])
	assert.Equal(t, 90, score.Categories[domain.CategoryIncidentResponse])
	assert.Equal(t, 18, score.Categories[domain.CategorySecurityAwareness])
	assert.Equal(t, 50, score.Categories[domain.CategoryCompliance])

	assert.Equal(t, 55, score.Overall)
	assert.Nil(t, score.PreviousScore)
	assert.Nil(t, score.ScoreChange)
	assert.NotEmpty(t, score.Recommendations)
}

func TestCalculate_SingleCategoryWeights(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})

	score, err := scorer.Calculate(context.Background(), allWeightsOn(domain.CategoryCompliance))
	require.NoError(t, err)
	assert.Equal(t, 50, score.Overall)
}

func TestCalculate_WeightOverridesArePerCall(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})
	ctx := context.Background()

	_, err := scorer.Calculate(ctx, allWeightsOn(domain.CategoryCompliance))
	require.NoError(t, err)

	// The override does not stick; the next pass uses the defaults again.
	score, err := scorer.Calculate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 55, score.Overall)
}

func TestCalculate_TracksChangeAndAlerts(t *testing.T) {
	scorer, sink := newTestScorer(t, Config{})
	ctx := context.Background()

	first, err := scorer.Calculate(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, sink.alerts)

	second, err := scorer.Calculate(ctx, allWeightsOn(domain.CategoryCompliance))
	require.NoError(t, err)

	require.NotNil(t, second.PreviousScore)
	assert.Equal(t, first.Overall, *second.PreviousScore)
	require.NotNil(t, second.ScoreChange)
	assert.Equal(t, -5, *second.ScoreChange)

	// A five point drop raises a medium alert.
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, alert.TypeSystem, sink.alerts[0].Type)
	assert.Equal(t, domain.SeverityMedium, sink.alerts[0].Severity)

	// Recovering by the same margin raises a low severity alert.
	_, err = scorer.Calculate(ctx, nil)
	require.NoError(t, err)
	require.Len(t, sink.alerts, 2)
	assert.Equal(t, domain.SeverityLow, sink.alerts[1].Severity)
}

func TestCalculate_ConfiguredWeights(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{Weights: allWeightsOn(domain.CategoryIncidentResponse)})

	score, err := scorer.Calculate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 90, score.Overall)
}

func TestCalculate_UnknownWeightCategoriesIgnored(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})

	overrides := allWeightsOn(domain.CategoryCompliance)
	overrides[domain.Category("quantum_readiness")] = 900

	// The unknown key neither contributes nor dilutes the real categories.
	score, err := scorer.Calculate(context.Background(), overrides)
	require.NoError(t, err)
	assert.Equal(t, 50, score.Overall)
}

func TestCalculate_UnknownConfiguredWeightIgnored(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{Weights: map[domain.Category]float64{"quantum_readiness": 900}})

	score, err := scorer.Calculate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 55, score.Overall)
}

func TestCurrent_NilBeforeFirstCalculation(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})
	assert.Nil(t, scorer.Current())
}

func TestCurrent_ReturnsCopy(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})
	ctx := context.Background()

	_, err := scorer.Calculate(ctx, nil)
	require.NoError(t, err)

	current := scorer.Current()
	require.NotNil(t, current)
	current.Categories[domain.CategoryCompliance] = -1

	assert.Equal(t, 50, scorer.Current().Categories[domain.CategoryCompliance])
}

func TestHistory(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})
	ctx := context.Background()

	_, err := scorer.Calculate(ctx, nil)
	require.NoError(t, err)
	_, err = scorer.Calculate(ctx, nil)
	require.NoError(t, err)

	history := scorer.History(30)
	assert.Len(t, history, 2)
	assert.Equal(t, 55, history[0].Overall)

	// Non-positive windows fall back to thirty days.
	assert.Len(t, scorer.History(0), 2)
}

func TestUpdateRecommendationStatus_Completed(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})
	ctx := context.Background()

	score, err := scorer.Calculate(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, score.Recommendations)
	id := score.Recommendations[0].ID

	before := len(scorer.History(30))
	require.NoError(t, scorer.UpdateRecommendationStatus(ctx, id, domain.RecommendationCompleted, "admin"))

	// Completion triggers an immediate recomputation.
	assert.Len(t, scorer.History(30), before+1)
}

func TestUpdateRecommendationStatus_InProgress(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})
	ctx := context.Background()

	score, err := scorer.Calculate(ctx, nil)
	require.NoError(t, err)
	id := score.Recommendations[0].ID

	require.NoError(t, scorer.UpdateRecommendationStatus(ctx, id, domain.RecommendationInProgress, "admin"))

	current := scorer.Current()
	var found *domain.Recommendation
	for i := range current.Recommendations {
		if current.Recommendations[i].ID == id {
			found = &current.Recommendations[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, domain.RecommendationInProgress, found.Status)
	assert.Nil(t, found.ImplementedAt)
}

func TestUpdateRecommendationStatus_Errors(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{})
	ctx := context.Background()

	err := scorer.UpdateRecommendationStatus(ctx, "any", "bogus", "admin")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	err = scorer.UpdateRecommendationStatus(ctx, "any", domain.RecommendationPending, "admin")
	assert.ErrorIs(t, err, ErrRecommendationNotFound)

	_, err = scorer.Calculate(ctx, nil)
	require.NoError(t, err)
	err = scorer.UpdateRecommendationStatus(ctx, "unknown-id", domain.RecommendationPending, "admin")
	assert.ErrorIs(t, err, ErrRecommendationNotFound)
}

func TestStartStop(t *testing.T) {
	scorer, _ := newTestScorer(t, Config{RecalcInterval: time.Hour})

	scorer.Start(context.Background())
	// The loop computes an initial score synchronously enough to observe.
	require.Eventually(t, func() bool {
		return scorer.Current() != nil
	}, 2*time.Second, 10*time.Millisecond)
	scorer.Stop()

	assert.Equal(t, 55, scorer.Current().Overall)
}
