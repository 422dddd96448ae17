package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/actionguard/gateway/internal/audit"
	"github.com/actionguard/gateway/internal/config"
	"github.com/actionguard/gateway/internal/decision"
	"github.com/actionguard/gateway/internal/observability"
	"github.com/actionguard/gateway/internal/policy"
	"github.com/actionguard/gateway/internal/quota"
	"github.com/actionguard/gateway/internal/store"
	"github.com/actionguard/gateway/internal/transport/httpapi"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Application holds every long-lived component of the gateway process.
type Application struct {
	cfg *config.Config

	policyStore store.PolicyStore
	counter     quota.CounterStore
	auditSink   audit.Sink
	auditWriter *audit.Writer

	quotaEngine *quota.Engine
	pipeline    *decision.Pipeline

	retentionWorker *audit.RetentionWorker

	httpServer *http.Server

	metrics   *observability.Metrics
	health    *observability.Health
	obsServer *observability.Server
}

func main() {
	configPath := flag.String("config", "config/gateway.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Action Gateway\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Build Time: %s\n", buildTime)
		fmt.Printf("  Git Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	initLogger(cfg.Logging)

	log.Info().
		Str("version", version).
		Str("config", *configPath).
		Str("settings", cfg.MaskSensitive().String()).
		Msg("Starting action gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	log.Info().
		Str("address", cfg.Server.Listen.Address).
		Int("port", cfg.Server.Listen.Port).
		Str("policy_backend", cfg.Policy.Backend).
		Str("quota_backend", cfg.Quota.Backend).
		Str("audit_backend", cfg.Audit.Backend).
		Bool("fail_closed", cfg.Decision.FailClosed).
		Msg("Gateway ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.GracefulShutdown)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Shutdown complete")
}

func newApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	app := &Application{cfg: cfg}

	policyStore, err := newPolicyStore(ctx, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy store: %w", err)
	}
	app.policyStore = policyStore

	counter, err := newCounterStore(cfg.Quota)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter store: %w", err)
	}
	app.counter = counter
	app.quotaEngine = quota.NewEngine(counter)

	auditSink, err := newAuditSink(ctx, cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit sink: %w", err)
	}
	app.auditSink = auditSink
	app.auditWriter = audit.NewWriter(auditSink, audit.WriterConfig{
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
	})

	retentionMaxAge := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	app.retentionWorker = audit.NewRetentionWorker(app.auditSink, 1*time.Hour, retentionMaxAge)

	app.pipeline = decision.NewPipeline(decision.Config{
		Store:            app.policyStore,
		Quota:            app.quotaEngine,
		AuditWriter:      app.auditWriter,
		PolicyCacheTTL:   cfg.Decision.PolicyCacheTTL,
		FailClosed:       cfg.Decision.FailClosed,
		FailClosedReason: cfg.Decision.FailClosedReason,
	})

	app.metrics = observability.NewMetrics("gateway")
	app.health = observability.NewHealth(version)

	app.health.RegisterChecker("policy_store", observability.DatabaseChecker(app.policyStore.Ping))
	app.health.RegisterChecker("audit_sink", observability.DatabaseChecker(app.auditSink.Ping))
	app.health.RegisterChecker("audit_writer", observability.AuditWriterChecker(func() int64 {
		return app.auditWriter.Stats().Dropped
	}, 1000))

	app.obsServer = observability.NewServer(observability.ServerConfig{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsAddress: cfg.Metrics.Address,
		MetricsPort:    cfg.Metrics.Port,
		MetricsPath:    cfg.Metrics.Path,
		HealthEnabled:  cfg.Health.Enabled,
		HealthAddress:  cfg.Health.Address,
		HealthPort:     cfg.Health.Port,
		LivenessPath:   cfg.Health.LivenessPath,
		ReadinessPath:  cfg.Health.ReadinessPath,
	}, app.metrics, app.health)

	api := httpapi.NewServer(app.pipeline, app.policyStore, app.auditSink, app.metrics)
	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Listen.Address, cfg.Server.Listen.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

func newPolicyStore(ctx context.Context, cfg config.PolicyConfig) (store.PolicyStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLiteStore(store.SQLiteStoreConfig{DBPath: cfg.SQLitePath})
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return store.NewMemoryStore(), nil
	}
}

func newCounterStore(cfg config.QuotaConfig) (quota.CounterStore, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return quota.NewRedisStore(client), nil
	default:
		return quota.NewMemoryStore(), nil
	}
}

func newAuditSink(ctx context.Context, cfg config.AuditConfig) (audit.Sink, error) {
	switch cfg.Backend {
	case "postgres":
		return audit.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return audit.NewStore(audit.StoreConfig{DBPath: cfg.SQLitePath})
	}
}

// Start loads bulk policy documents (if configured), starts the audit
// writer, and begins serving HTTP and observability traffic.
func (app *Application) Start(ctx context.Context) error {
	if app.cfg.Policy.PolicyDir != "" {
		if err := app.loadPolicyDir(ctx); err != nil {
			log.Warn().Err(err).Str("policy_dir", app.cfg.Policy.PolicyDir).
				Msg("failed to bulk-load policy directory, continuing with store's existing state")
		}
	}

	app.auditWriter.Start()
	app.retentionWorker.Start(ctx)

	go func() {
		log.Info().Str("address", app.httpServer.Addr).Msg("HTTP server listening")
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if err := app.obsServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start observability server: %w", err)
	}

	app.health.SetReady(true)

	return nil
}

// loadPolicyDir seeds the policy store from on-disk documents at startup,
// one project's active policy per file, named "<project_id>.json",
// "<project_id>.yaml" or "<project_id>.yml".
func (app *Application) loadPolicyDir(ctx context.Context) error {
	loader := policy.NewLoader(app.cfg.Policy.PolicyDir)
	raws, err := loader.LoadAllRaw()
	if err != nil {
		return err
	}
	for projectID, raw := range raws {
		if _, err := app.policyStore.Put(ctx, projectID, raw); err != nil {
			log.Error().Err(err).Str("project_id", projectID).Msg("failed to seed policy from disk")
		}
	}
	return nil
}

// Stop gracefully drains and closes every component, in the reverse
// order Start brought them up.
func (app *Application) Stop(ctx context.Context) error {
	log.Info().Msg("starting graceful shutdown")

	app.health.SetReady(false)

	if err := app.obsServer.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("error stopping observability server")
	}

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error stopping http server")
	}

	app.retentionWorker.Stop()
	app.auditWriter.Stop()

	if err := app.auditSink.Close(); err != nil {
		log.Error().Err(err).Msg("error closing audit sink")
	}
	if err := app.policyStore.Close(); err != nil {
		log.Error().Err(err).Msg("error closing policy store")
	}

	return nil
}

func initLogger(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = log.Output(output)
	}

	log.Debug().Str("level", cfg.Level).Str("format", cfg.Format).Str("output", cfg.Output).Msg("logger initialized")
}
