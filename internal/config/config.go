// Package config loads server configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/prn-tf/sentinel/internal/domain"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	// Backend is one of "memory", "postgres", or "redis".
	Backend string `mapstructure:"backend"`

	// SweepInterval is how often expired sessions are swept.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode, d.MaxConns)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuditConfig selects the audit sink backend.
type AuditConfig struct {
	// Backend is one of "log" or "sqlite".
	Backend string `mapstructure:"backend"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// SessionConfig holds the session policy knobs in file-friendly units.
type SessionConfig struct {
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	AbsoluteTimeout       time.Duration `mapstructure:"absolute_timeout"`
	RotationInterval      time.Duration `mapstructure:"rotation_interval"`
	MaxExtensions         int           `mapstructure:"max_extensions"`
	FingerprintValidation bool          `mapstructure:"fingerprint_validation"`
	IPChangePolicy        string        `mapstructure:"ip_change_policy"`
	TrackPreviousIPs      bool          `mapstructure:"track_previous_ips"`
	RequireMFAForHighRisk bool          `mapstructure:"require_mfa_for_high_risk"`
	RiskScoreThreshold    int           `mapstructure:"risk_score_threshold"`
	SingleSession         bool          `mapstructure:"single_session"`
	MaxConcurrentSessions int           `mapstructure:"max_concurrent_sessions"`
}

// BehaviorConfig holds the behavior profiler knobs.
type BehaviorConfig struct {
	HistoryLimit    int           `mapstructure:"history_limit"`
	RetentionDays   int           `mapstructure:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// PostureConfig holds the posture scorer knobs.
type PostureConfig struct {
	RecalcInterval time.Duration      `mapstructure:"recalc_interval"`
	Weights        map[string]float64 `mapstructure:"weights"`
}

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Session  SessionConfig  `mapstructure:"session"`
	Behavior BehaviorConfig `mapstructure:"behavior"`
	Posture  PostureConfig  `mapstructure:"posture"`
}

// SessionPolicy converts the session section into the domain policy,
// falling back to documented defaults for unset fields.
func (c *Config) SessionPolicy() domain.SessionPolicy {
	policy := domain.DefaultSecuritySettings().Session

	s := c.Session
	if s.IdleTimeout > 0 {
		policy.IdleTimeout = s.IdleTimeout
	}
	if s.AbsoluteTimeout > 0 {
		policy.AbsoluteTimeout = s.AbsoluteTimeout
	}
	if s.RotationInterval > 0 {
		policy.RotationInterval = s.RotationInterval
	}
	if s.MaxExtensions > 0 {
		policy.MaxExtensions = s.MaxExtensions
	}
	if s.RiskScoreThreshold > 0 {
		policy.RiskScoreThreshold = s.RiskScoreThreshold
	}
	if s.MaxConcurrentSessions > 0 {
		policy.MaxConcurrentSessions = s.MaxConcurrentSessions
	}
	switch domain.IPChangePolicy(s.IPChangePolicy) {
	case domain.IPChangeAllow, domain.IPChangeWarn, domain.IPChangeBlock:
		policy.IPChange = domain.IPChangePolicy(s.IPChangePolicy)
	}
	policy.FingerprintValidation = s.FingerprintValidation
	policy.TrackPreviousIPs = s.TrackPreviousIPs
	policy.RequireMFAForHighRisk = s.RequireMFAForHighRisk
	policy.SingleSession = s.SingleSession
	return policy
}

// PostureWeights converts the configured weight map to category keys.
func (c *Config) PostureWeights() map[domain.Category]float64 {
	if len(c.Posture.Weights) == 0 {
		return nil
	}
	weights := make(map[domain.Category]float64, len(c.Posture.Weights))
	for name, weight := range c.Posture.Weights {
		weights[domain.Category(name)] = weight
	}
	return weights
}

// Load reads configuration from the given path (or the default search
// locations when empty), applying defaults and SENTINEL_* environment
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("/etc/sentinel/")
		v.AddConfigPath("$HOME/.sentinel")
		v.AddConfigPath(".")
	}

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sweep_interval", 15*time.Minute)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sentinel")
	v.SetDefault("database.database", "sentinel")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("audit.backend", "log")
	v.SetDefault("audit.sqlite_path", "./sentinel-audit.db")

	v.SetDefault("session.idle_timeout", domain.DefaultIdleTimeout)
	v.SetDefault("session.absolute_timeout", domain.DefaultAbsoluteTimeout)
	v.SetDefault("session.rotation_interval", domain.DefaultRotationInterval)
	v.SetDefault("session.max_extensions", 3)
	v.SetDefault("session.fingerprint_validation", true)
	v.SetDefault("session.ip_change_policy", "warn")
	v.SetDefault("session.track_previous_ips", true)
	v.SetDefault("session.require_mfa_for_high_risk", true)
	v.SetDefault("session.risk_score_threshold", 75)
	v.SetDefault("session.single_session", false)
	v.SetDefault("session.max_concurrent_sessions", 5)

	v.SetDefault("behavior.history_limit", 1000)
	v.SetDefault("behavior.retention_days", 30)
	v.SetDefault("behavior.cleanup_interval", 10*time.Minute)

	v.SetDefault("posture.recalc_interval", 24*time.Hour)

	// Environment variables
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
