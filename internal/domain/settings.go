package domain

import "time"

// IPChangePolicy controls how a mid-session client IP change is handled.
type IPChangePolicy string

const (
	// IPChangeAllow ignores IP changes entirely.
	IPChangeAllow IPChangePolicy = "allow"

	// IPChangeWarn logs the change and records the new IP but lets the
	// request proceed.
	IPChangeWarn IPChangePolicy = "warn"

	// IPChangeBlock destroys the session on any IP change.
	IPChangeBlock IPChangePolicy = "block"
)

// SessionPolicy holds the session lifecycle rules enforced by the guard.
type SessionPolicy struct {
	IdleTimeout           time.Duration  `json:"idle_timeout"`
	AbsoluteTimeout       time.Duration  `json:"absolute_timeout"`
	RotationInterval      time.Duration  `json:"rotation_interval"`
	MaxExtensions         int            `json:"max_extensions"`
	FingerprintValidation bool           `json:"fingerprint_validation"`
	IPChange              IPChangePolicy `json:"ip_change"`
	TrackPreviousIPs      bool           `json:"track_previous_ips"`
	RequireMFAForHighRisk bool           `json:"require_mfa_for_high_risk"`
	RiskScoreThreshold    int            `json:"risk_score_threshold"`
	SingleSession         bool           `json:"single_session"`
	MaxConcurrentSessions int            `json:"max_concurrent_sessions"`
}

// PasswordPolicy feeds the authentication rubric.
type PasswordPolicy struct {
	MinLength        int  `json:"min_length"`
	RequireUppercase bool `json:"require_uppercase"`
	RequireLowercase bool `json:"require_lowercase"`
	RequireNumbers   bool `json:"require_numbers"`
	RequireSymbols   bool `json:"require_symbols"`
	HistoryCount     int  `json:"history_count"`
}

// MFAPolicy feeds the authentication rubric.
type MFAPolicy struct {
	Enabled           bool `json:"enabled"`
	RequiredForAdmins bool `json:"required_for_admins"`
	AdoptionRate      int  `json:"adoption_rate"` // percent of users enrolled
}

// LockoutPolicy feeds the authentication rubric.
type LockoutPolicy struct {
	Threshold       int `json:"threshold"`        // failed attempts before lockout
	DurationMinutes int `json:"duration_minutes"` // lockout duration
	ResetMinutes    int `json:"reset_minutes"`    // attempt counter reset window
}

// EncryptionPolicy feeds the data-protection rubric.
type EncryptionPolicy struct {
	DataAtRest           bool `json:"data_at_rest"`
	DataInTransit        bool `json:"data_in_transit"`
	KeyRotation          bool `json:"key_rotation"`
	KeyRotationFrequency int  `json:"key_rotation_frequency"` // days
	SensitiveDataMasking bool `json:"sensitive_data_masking"`
}

// FirewallRule is a single firewall rule, only the action matters for scoring.
type FirewallRule struct {
	Action string `json:"action"` // "allow" or "deny"
}

// NetworkPolicy feeds the network-security rubric.
type NetworkPolicy struct {
	FirewallEnabled   bool           `json:"firewall_enabled"`
	FirewallRules     []FirewallRule `json:"firewall_rules"`
	IPBlockingEnabled bool           `json:"ip_blocking_enabled"`
	TLSVersion        string         `json:"tls_version"`
	HSTS              bool           `json:"hsts"`
	SecurityHeaders   []string       `json:"security_headers"`
}

// ApplicationPolicy feeds the application-security rubric.
type ApplicationPolicy struct {
	InputValidation           bool `json:"input_validation"`
	SQLPreparedStatements     bool `json:"sql_prepared_statements"`
	ContentSecurityPolicy     bool `json:"content_security_policy"`
	XSSProtection             bool `json:"xss_protection"`
	FileUploadValidation      bool `json:"file_upload_validation"`
	FileUploadScanning        bool `json:"file_upload_scanning"`
	FileUploadSizeLimit       bool `json:"file_upload_size_limit"`
	FileUploadTypeRestriction bool `json:"file_upload_type_restriction"`
}

// MonitoringPolicy feeds the incident-response rubric.
type MonitoringPolicy struct {
	SecurityMonitoringEnabled bool `json:"security_monitoring_enabled"`
	AnomalyDetectionEnabled   bool `json:"anomaly_detection_enabled"`
	AlertingEnabled           bool `json:"alerting_enabled"`
	LoggingEnabled            bool `json:"logging_enabled"`
}

// TrainingPolicy feeds the security-awareness rubric.
type TrainingPolicy struct {
	Required                  bool `json:"required"`
	CompletionRate            int  `json:"completion_rate"`  // percent
	FrequencyDays             int  `json:"frequency_days"`   // days between trainings
	IncidentReportingEnabled  bool `json:"incident_reporting_enabled"`
	IncidentReportingRate     int  `json:"incident_reporting_rate"` // percent
	AwarenessProgram          bool `json:"awareness_program"`
}

// ComplianceFramework is the compliance posture against one standard.
type ComplianceFramework struct {
	ComplianceRate int `json:"compliance_rate"` // percent
}

// SecuritySettings is the read-only configuration consumed by the guard and
// the posture scorer. It is resolved once at startup and injected into each
// component at construction.
type SecuritySettings struct {
	Session     SessionPolicy                  `json:"session"`
	Password    PasswordPolicy                 `json:"password"`
	MFA         MFAPolicy                      `json:"mfa"`
	Lockout     LockoutPolicy                  `json:"lockout"`
	Encryption  EncryptionPolicy               `json:"encryption"`
	Network     NetworkPolicy                  `json:"network"`
	Application ApplicationPolicy              `json:"application"`
	Monitoring  MonitoringPolicy               `json:"monitoring"`
	Training    TrainingPolicy                 `json:"training"`
	Compliance  map[string]ComplianceFramework `json:"compliance"`
}

// DefaultSecuritySettings returns the documented defaults used when optional
// settings are absent.
func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		Session: SessionPolicy{
			IdleTimeout:           DefaultIdleTimeout,
			AbsoluteTimeout:       DefaultAbsoluteTimeout,
			RotationInterval:      DefaultRotationInterval,
			MaxExtensions:         3,
			FingerprintValidation: true,
			IPChange:              IPChangeWarn,
			TrackPreviousIPs:      true,
			RequireMFAForHighRisk: true,
			RiskScoreThreshold:    75,
			SingleSession:         false,
			MaxConcurrentSessions: 5,
		},
		Password: PasswordPolicy{
			MinLength:        12,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireNumbers:   true,
			RequireSymbols:   false,
			HistoryCount:     6,
		},
		MFA: MFAPolicy{
			Enabled:           true,
			RequiredForAdmins: true,
			AdoptionRate:      0,
		},
		Lockout: LockoutPolicy{
			Threshold:       5,
			DurationMinutes: 30,
			ResetMinutes:    15,
		},
		Encryption: EncryptionPolicy{
			DataAtRest:           true,
			DataInTransit:        true,
			KeyRotation:          false,
			KeyRotationFrequency: 365,
			SensitiveDataMasking: false,
		},
		Network: NetworkPolicy{
			FirewallEnabled:   true,
			IPBlockingEnabled: false,
			TLSVersion:        "1.2",
			HSTS:              false,
		},
		Application: ApplicationPolicy{
			InputValidation:       true,
			SQLPreparedStatements: true,
		},
		Monitoring: MonitoringPolicy{
			SecurityMonitoringEnabled: true,
			AnomalyDetectionEnabled:   true,
			AlertingEnabled:           true,
			LoggingEnabled:            true,
		},
		Training: TrainingPolicy{
			Required:      false,
			FrequencyDays: 365,
		},
		Compliance: map[string]ComplianceFramework{},
	}
}
