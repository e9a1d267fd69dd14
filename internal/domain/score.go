package domain

import "time"

// Category identifies a security posture scoring category.
type Category string

const (
	CategoryAuthentication    Category = "authentication_security"
	CategoryDataProtection    Category = "data_protection"
	CategoryNetworkSecurity   Category = "network_security"
	CategoryApplicationSec    Category = "application_security"
	CategoryIncidentResponse  Category = "incident_response"
	CategorySecurityAwareness Category = "security_awareness"
	CategoryCompliance        Category = "compliance_status"
)

// Categories lists all scoring categories in display order.
func Categories() []Category {
	return []Category{
		CategoryAuthentication,
		CategoryDataProtection,
		CategoryNetworkSecurity,
		CategoryApplicationSec,
		CategoryIncidentResponse,
		CategorySecurityAwareness,
		CategoryCompliance,
	}
}

// DefaultWeights returns the default per-category weights. Weights are
// renormalized to sum to 100 before use, so partial overrides are safe.
func DefaultWeights() map[Category]float64 {
	return map[Category]float64{
		CategoryAuthentication:    20,
		CategoryDataProtection:    20,
		CategoryNetworkSecurity:   15,
		CategoryApplicationSec:    15,
		CategoryIncidentResponse:  10,
		CategorySecurityAwareness: 10,
		CategoryCompliance:        10,
	}
}

// Impact and effort levels for recommendations.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// RecommendationStatus is the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	RecommendationPending    RecommendationStatus = "pending"
	RecommendationInProgress RecommendationStatus = "in-progress"
	RecommendationCompleted  RecommendationStatus = "completed"
	RecommendationDeferred   RecommendationStatus = "deferred"
)

// Valid reports whether s is a known recommendation status.
func (s RecommendationStatus) Valid() bool {
	switch s {
	case RecommendationPending, RecommendationInProgress, RecommendationCompleted, RecommendationDeferred:
		return true
	}
	return false
}

// Recommendation is a remediation suggestion produced by the posture scorer.
type Recommendation struct {
	ID                        string               `json:"id"`
	Category                  Category             `json:"category"`
	Title                     string               `json:"title"`
	Description               string               `json:"description"`
	Impact                    string               `json:"impact"`
	Effort                    string               `json:"effort"`
	PotentialScoreImprovement int                  `json:"potential_score_improvement"`
	Status                    RecommendationStatus `json:"status"`
	ImplementedAt             *time.Time           `json:"implemented_at,omitempty"`
}

// SecurityScore is one posture evaluation snapshot.
type SecurityScore struct {
	Overall         int              `json:"overall"`
	Categories      map[Category]int `json:"categories"`
	LastCalculated  time.Time        `json:"last_calculated"`
	PreviousScore   *int             `json:"previous_score,omitempty"`
	ScoreChange     *int             `json:"score_change,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
}

// ScoreSnapshot is a historical posture score entry.
type ScoreSnapshot struct {
	Timestamp  time.Time        `json:"timestamp"`
	Overall    int              `json:"overall"`
	Categories map[Category]int `json:"categories"`
}
