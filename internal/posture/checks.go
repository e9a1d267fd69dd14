// Package posture computes the weighted organizational security score from
// configuration state, incident history, and key-management hygiene.
package posture

import (
	"math"
	"time"

	"github.com/prn-tf/sentinel/internal/domain"
)

// Inputs is the read-only snapshot a scoring pass evaluates.
type Inputs struct {
	Settings  domain.SecuritySettings
	Incidents []domain.SecurityIncident
	Keys      []domain.APIKey
}

// A check returns a 0-100 sub-score for one aspect of a category. Each check
// is an additive rubric whose maximum attainable total is 100 when every
// best-practice condition holds.
type check struct {
	name string
	fn   func(in Inputs) int
}

// checkRegistry maps each category to its named checks. A category's score
// is the rounded arithmetic mean of its checks.
var checkRegistry = map[domain.Category][]check{
	domain.CategoryAuthentication: {
		{name: "password_policy", fn: checkPasswordPolicy},
		{name: "mfa_adoption", fn: checkMFAAdoption},
		{name: "account_lockout", fn: checkAccountLockout},
	},
	domain.CategoryDataProtection: {
		{name: "data_encryption", fn: checkDataEncryption},
		{name: "api_key_management", fn: checkAPIKeyManagement},
	},
	domain.CategoryNetworkSecurity: {
		{name: "firewall_rules", fn: checkFirewallRules},
		{name: "tls_configuration", fn: checkTLSConfiguration},
	},
	domain.CategoryApplicationSec: {
		{name: "input_validation", fn: checkInputValidation},
		{name: "file_upload_security", fn: checkFileUploadSecurity},
	},
	domain.CategoryIncidentResponse: {
		{name: "incident_detection", fn: checkIncidentDetection},
		{name: "incident_resolution", fn: checkIncidentResolution},
	},
	domain.CategorySecurityAwareness: {
		{name: "training_completion", fn: checkTrainingCompletion},
		{name: "incident_reporting", fn: checkIncidentReporting},
	},
	domain.CategoryCompliance: {
		{name: "compliance_requirements", fn: checkComplianceRequirements},
	},
}

func checkPasswordPolicy(in Inputs) int {
	pw := in.Settings.Password
	score := 0

	switch {
	case pw.MinLength >= 12:
		score += 25
	case pw.MinLength >= 8:
		score += 15
	default:
		score += 5
	}

	if pw.RequireUppercase {
		score += 15
	}
	if pw.RequireLowercase {
		score += 10
	}
	if pw.RequireNumbers {
		score += 15
	}
	if pw.RequireSymbols {
		score += 15
	}

	switch {
	case pw.HistoryCount >= 12:
		score += 10
	case pw.HistoryCount >= 6:
		score += 5
	}

	return score
}

func checkMFAAdoption(in Inputs) int {
	mfa := in.Settings.MFA
	score := 0

	if mfa.RequiredForAdmins {
		score += 40
	}
	if mfa.Enabled {
		score += 20
	}

	adoption := mfa.AdoptionRate
	if adoption > 40 {
		adoption = 40
	}
	if adoption > 0 {
		score += adoption
	}

	return score
}

func checkAccountLockout(in Inputs) int {
	lockout := in.Settings.Lockout
	score := 0

	switch {
	case lockout.Threshold <= 5:
		score += 40
	case lockout.Threshold <= 10:
		score += 25
	default:
		score += 10
	}

	switch {
	case lockout.DurationMinutes >= 30:
		score += 30
	case lockout.DurationMinutes >= 15:
		score += 20
	default:
		score += 10
	}

	switch {
	case lockout.ResetMinutes >= 15:
		score += 30
	case lockout.ResetMinutes >= 5:
		score += 20
	default:
		score += 10
	}

	return score
}

func checkDataEncryption(in Inputs) int {
	enc := in.Settings.Encryption
	score := 0

	if enc.DataAtRest {
		score += 30
	}
	if enc.DataInTransit {
		score += 30
	}
	if enc.KeyRotation {
		switch {
		case enc.KeyRotationFrequency <= 90:
			score += 20
		case enc.KeyRotationFrequency <= 180:
			score += 15
		default:
			score += 10
		}
	}
	if enc.SensitiveDataMasking {
		score += 20
	}

	return score
}

func checkAPIKeyManagement(in Inputs) int {
	keys := in.Keys

	// No keys at all is treated as good practice.
	if len(keys) == 0 {
		return 80
	}

	score := 0
	expired, active, rotated, scoped := 0, 0, 0, 0
	for _, key := range keys {
		switch key.Status {
		case domain.APIKeyExpired:
			expired++
		case domain.APIKeyActive:
			active++
		case domain.APIKeyRotated:
			rotated++
		}
		if len(key.Scopes) > 0 {
			scoped++
		}
	}

	expiredPct := float64(expired) / float64(len(keys))
	switch {
	case expiredPct <= 0.05:
		score += 30
	case expiredPct <= 0.1:
		score += 20
	default:
		score += 10
	}

	// With zero active keys the rotated-to-active ratio is undefined;
	// treat it as no rotation and award the lowest tier.
	rotationPct := 0.0
	if active > 0 {
		rotationPct = float64(rotated) / float64(active)
	}
	switch {
	case rotationPct >= 0.5:
		score += 40
	case rotationPct >= 0.25:
		score += 25
	default:
		score += 10
	}

	scopePct := float64(scoped) / float64(len(keys))
	switch {
	case scopePct >= 0.9:
		score += 30
	case scopePct >= 0.7:
		score += 20
	default:
		score += 10
	}

	return score
}

func checkFirewallRules(in Inputs) int {
	net := in.Settings.Network
	score := 0

	if net.FirewallEnabled {
		score += 40
	}

	if len(net.FirewallRules) > 0 {
		ruleCount := len(net.FirewallRules)
		switch {
		case ruleCount >= 10:
			score += 20
		case ruleCount >= 5:
			score += 15
		default:
			score += 10
		}

		denyCount := 0
		for _, rule := range net.FirewallRules {
			if rule.Action == "deny" {
				denyCount++
			}
		}
		denyPct := float64(denyCount) / float64(ruleCount)
		switch {
		case denyPct >= 0.8:
			score += 20
		case denyPct >= 0.5:
			score += 15
		default:
			score += 10
		}
	}

	if net.IPBlockingEnabled {
		score += 20
	}

	return score
}

func checkTLSConfiguration(in Inputs) int {
	net := in.Settings.Network
	score := 0

	switch net.TLSVersion {
	case "1.3":
		score += 50
	case "1.2":
		score += 30
	default:
		score += 10
	}

	if net.HSTS {
		score += 25
	}

	switch {
	case len(net.SecurityHeaders) >= 5:
		score += 25
	case len(net.SecurityHeaders) >= 3:
		score += 15
	default:
		score += 5
	}

	return score
}

func checkInputValidation(in Inputs) int {
	app := in.Settings.Application
	score := 0

	if app.InputValidation {
		score += 30
	}
	if app.SQLPreparedStatements {
		score += 30
	}
	if app.ContentSecurityPolicy {
		score += 20
	}
	if app.XSSProtection {
		score += 20
	}

	return score
}

func checkFileUploadSecurity(in Inputs) int {
	app := in.Settings.Application
	score := 0

	if app.FileUploadValidation {
		score += 30
	}
	if app.FileUploadScanning {
		score += 30
	}
	if app.FileUploadSizeLimit {
		score += 20
	}
	if app.FileUploadTypeRestriction {
		score += 20
	}

	return score
}

func checkIncidentDetection(in Inputs) int {
	mon := in.Settings.Monitoring
	score := 0

	if mon.SecurityMonitoringEnabled {
		score += 30
	}
	if mon.AnomalyDetectionEnabled {
		score += 30
	}
	if mon.AlertingEnabled {
		score += 20
	}
	if mon.LoggingEnabled {
		score += 20
	}

	return score
}

func checkIncidentResolution(in Inputs) int {
	incidents := in.Incidents

	// No incident history is treated as good practice.
	if len(incidents) == 0 {
		return 80
	}

	score := 0
	resolved, mitigated := 0, 0
	var totalResolution time.Duration
	resolvedWithTime := 0

	for _, inc := range incidents {
		switch inc.Status {
		case domain.IncidentResolved:
			resolved++
			if inc.ResolvedAt != nil {
				totalResolution += inc.ResolvedAt.Sub(inc.Timestamp)
				resolvedWithTime++
			}
		case domain.IncidentMitigated:
			mitigated++
		}
	}

	resolvedPct := float64(resolved) / float64(len(incidents))
	switch {
	case resolvedPct >= 0.9:
		score += 40
	case resolvedPct >= 0.7:
		score += 25
	case resolvedPct >= 0.5:
		score += 15
	default:
		score += 5
	}

	mitigatedPct := float64(mitigated) / float64(len(incidents))
	switch {
	case mitigatedPct >= 0.8:
		score += 30
	case mitigatedPct >= 0.6:
		score += 20
	case mitigatedPct >= 0.4:
		score += 10
	default:
		score += 5
	}

	if resolvedWithTime > 0 {
		avgHours := (totalResolution / time.Duration(resolvedWithTime)).Hours()
		switch {
		case avgHours <= 4:
			score += 30
		case avgHours <= 12:
			score += 20
		case avgHours <= 24:
			score += 10
		default:
			score += 5
		}
	}

	return score
}

func checkTrainingCompletion(in Inputs) int {
	training := in.Settings.Training
	score := 0

	if training.Required {
		score += 30
	}

	if training.CompletionRate > 0 {
		switch {
		case training.CompletionRate >= 90:
			score += 35
		case training.CompletionRate >= 75:
			score += 25
		case training.CompletionRate >= 50:
			score += 15
		default:
			score += 5
		}
	}

	if training.FrequencyDays > 0 {
		switch {
		case training.FrequencyDays <= 90:
			score += 35
		case training.FrequencyDays <= 180:
			score += 25
		default:
			score += 15
		}
	}

	return score
}

func checkIncidentReporting(in Inputs) int {
	training := in.Settings.Training
	score := 0

	if training.IncidentReportingEnabled {
		score += 40
	}

	if training.IncidentReportingRate > 0 {
		switch {
		case training.IncidentReportingRate >= 80:
			score += 40
		case training.IncidentReportingRate >= 60:
			score += 30
		case training.IncidentReportingRate >= 40:
			score += 20
		default:
			score += 10
		}
	} else {
		// No reporting data, assume average.
		score += 20
	}

	if training.AwarenessProgram {
		score += 20
	}

	return score
}

func checkComplianceRequirements(in Inputs) int {
	compliance := in.Settings.Compliance
	if len(compliance) == 0 {
		return 50
	}

	score := 0
	if fw, ok := compliance["gdpr"]; ok {
		switch {
		case fw.ComplianceRate >= 90:
			score += 30
		case fw.ComplianceRate >= 75:
			score += 20
		default:
			score += 10
		}
	}
	if fw, ok := compliance["hipaa"]; ok {
		switch {
		case fw.ComplianceRate >= 90:
			score += 25
		case fw.ComplianceRate >= 75:
			score += 15
		default:
			score += 5
		}
	}
	if fw, ok := compliance["pci_dss"]; ok {
		switch {
		case fw.ComplianceRate >= 90:
			score += 25
		case fw.ComplianceRate >= 75:
			score += 15
		default:
			score += 5
		}
	}
	if fw, ok := compliance["soc2"]; ok {
		switch {
		case fw.ComplianceRate >= 90:
			score += 20
		case fw.ComplianceRate >= 75:
			score += 10
		default:
			score += 5
		}
	}

	return score
}

// categoryScore returns the rounded mean of a category's checks.
func categoryScore(category domain.Category, in Inputs) int {
	checks := checkRegistry[category]
	if len(checks) == 0 {
		return 0
	}

	total := 0
	for _, c := range checks {
		total += c.fn(in)
	}
	return int(math.Round(float64(total) / float64(len(checks))))
}
