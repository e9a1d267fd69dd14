package posture

import (
	"github.com/google/uuid"

	"github.com/prn-tf/sentinel/internal/domain"
)

// generateRecommendations produces the canned remediation entries whose
// category-score thresholds have fired. Within a category, thresholds
// escalate: a lower score fires additional, higher-impact advice.
func generateRecommendations(categories map[domain.Category]int) []domain.Recommendation {
	var recs []domain.Recommendation

	add := func(category domain.Category, title, description, impact, effort string, improvement int) {
		recs = append(recs, domain.Recommendation{
			ID:                        uuid.NewString(),
			Category:                  category,
			Title:                     title,
			Description:               description,
			Impact:                    impact,
			Effort:                    effort,
			PotentialScoreImprovement: improvement,
			Status:                    domain.RecommendationPending,
		})
	}

	if score := categories[domain.CategoryAuthentication]; score < 70 {
		if score < 50 {
			add(domain.CategoryAuthentication,
				"Implement Multi-Factor Authentication",
				"Enable multi-factor authentication for all users, especially administrators.",
				domain.LevelHigh, domain.LevelMedium, 15)
		}
		add(domain.CategoryAuthentication,
			"Strengthen Password Policy",
			"Increase minimum password length to 12 characters and require complexity.",
			domain.LevelMedium, domain.LevelLow, 10)
	}

	if score := categories[domain.CategoryDataProtection]; score < 75 {
		add(domain.CategoryDataProtection,
			"Implement Data Encryption at Rest",
			"Enable encryption for all sensitive data stored in databases and files.",
			domain.LevelHigh, domain.LevelHigh, 20)
		if score < 60 {
			add(domain.CategoryDataProtection,
				"Implement API Key Rotation",
				"Set up automatic rotation for API keys every 90 days.",
				domain.LevelMedium, domain.LevelMedium, 15)
		}
	}

	if score := categories[domain.CategoryNetworkSecurity]; score < 70 {
		add(domain.CategoryNetworkSecurity,
			"Enable HSTS Headers",
			"Configure HTTP Strict Transport Security headers for all web responses.",
			domain.LevelMedium, domain.LevelLow, 10)
		if score < 50 {
			add(domain.CategoryNetworkSecurity,
				"Upgrade to TLS 1.3",
				"Configure servers to use TLS 1.3 and disable older protocols.",
				domain.LevelMedium, domain.LevelMedium, 15)
		}
	}

	if score := categories[domain.CategoryApplicationSec]; score < 70 {
		add(domain.CategoryApplicationSec,
			"Implement Content Security Policy",
			"Configure a Content Security Policy to prevent XSS attacks.",
			domain.LevelHigh, domain.LevelMedium, 15)
		if score < 60 {
			add(domain.CategoryApplicationSec,
				"Enhance File Upload Validation",
				"Implement comprehensive file validation including content type verification and virus scanning.",
				domain.LevelHigh, domain.LevelHigh, 20)
		}
	}

	if categories[domain.CategoryIncidentResponse] < 65 {
		add(domain.CategoryIncidentResponse,
			"Implement Automated Incident Response",
			"Set up automated incident response workflows for common security events.",
			domain.LevelHigh, domain.LevelHigh, 25)
	}

	if categories[domain.CategorySecurityAwareness] < 70 {
		add(domain.CategorySecurityAwareness,
			"Implement Regular Security Training",
			"Conduct quarterly security awareness training for all staff.",
			domain.LevelMedium, domain.LevelMedium, 20)
	}

	if categories[domain.CategoryCompliance] < 70 {
		add(domain.CategoryCompliance,
			"Conduct Compliance Gap Analysis",
			"Perform a comprehensive compliance gap analysis against relevant standards.",
			domain.LevelHigh, domain.LevelHigh, 15)
	}

	return recs
}
