// Package main is the entry point for the Sentinel server.
// Sentinel is an adaptive session-security and behavioral-risk engine.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/sentinel/internal/alert"
	"github.com/prn-tf/sentinel/internal/alert/sqlitesink"
	"github.com/prn-tf/sentinel/internal/behavior"
	"github.com/prn-tf/sentinel/internal/config"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/guard"
	"github.com/prn-tf/sentinel/internal/handler"
	"github.com/prn-tf/sentinel/internal/metrics"
	"github.com/prn-tf/sentinel/internal/posture"
	"github.com/prn-tf/sentinel/internal/provider"
	"github.com/prn-tf/sentinel/internal/repository"
	"github.com/prn-tf/sentinel/internal/repository/memory"
	"github.com/prn-tf/sentinel/internal/repository/postgres"
	redisstore "github.com/prn-tf/sentinel/internal/repository/redis"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Initialize logger
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting Sentinel Server")

	// Load configuration
	cfg, err := config.Load(os.Getenv("SENTINEL_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx := context.Background()

	// Initialize session store
	var store repository.SessionStore
	switch cfg.Store.Backend {
	case "postgres":
		pgStore, err := postgres.New(ctx, cfg.Database.DSN(), log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pgStore.Close()
		store = pgStore
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer client.Close()
		store = redisstore.New(client, log.Logger)
	default:
		store = memory.New(log.Logger)
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("Session store initialized")

	// Initialize audit sink and alert delivery
	logSink := alert.NewLogSink(log.Logger)
	var auditor alert.Auditor = logSink
	if cfg.Audit.Backend == "sqlite" {
		sink, err := sqlitesink.New(cfg.Audit.SQLitePath, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open audit database")
		}
		defer sink.Close()
		auditor = sink
	}
	async := alert.NewAsync(logSink, auditor, log.Logger, alert.AsyncConfig{})
	defer async.Close()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Resolve security settings and providers
	settings := domain.DefaultSecuritySettings()
	settings.Session = cfg.SessionPolicy()
	settingsProvider := provider.NewStatic(settings)
	incidentLog := provider.NewIncidentLog()
	keyRegistry := provider.NewKeyRegistry()

	// Initialize core engines
	profiler := behavior.New(behavior.Config{
		HistoryLimit:    cfg.Behavior.HistoryLimit,
		RetentionPeriod: time.Duration(cfg.Behavior.RetentionDays) * 24 * time.Hour,
		CleanupInterval: cfg.Behavior.CleanupInterval,
	}, async, async, m, log.Logger)

	scorer := posture.New(posture.Config{
		RecalcInterval: cfg.Posture.RecalcInterval,
		Weights:        cfg.PostureWeights(),
	}, settingsProvider, incidentLog, keyRegistry, async, async, m, log.Logger)

	sessionGuard := guard.New(store, profiler, async, async, settings.Session, m, log.Logger)

	// Start background loops
	profiler.Start(ctx)
	defer profiler.Stop()
	scorer.Start(ctx)
	defer scorer.Stop()

	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Store.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepDone:
				return
			case <-ticker.C:
				if _, err := sessionGuard.SweepExpired(ctx); err != nil {
					log.Error().Err(err).Msg("Session sweep failed")
				}
			}
		}
	}()
	defer close(sweepDone)

	// Initialize handlers and router
	adminHandler := handler.NewAdminHandler(sessionGuard, profiler, scorer, log.Logger)
	inventoryHandler := handler.NewInventoryHandler(incidentLog, keyRegistry, log.Logger)
	router := handler.NewRouter(handler.RouterConfig{
		AdminHandler:     adminHandler,
		InventoryHandler: inventoryHandler,
		GuardMiddleware:  handler.GuardMiddleware(sessionGuard, log.Logger),
		RecordMiddleware: handler.RecordMiddleware(profiler),
		MetricsRegistry:  registry,
		Logger:           log.Logger,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
