package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ServerConfig holds configuration for the gateway's sidecar observability
// server: Prometheus scrape endpoint plus the liveness/readiness/detail
// probes an orchestrator hits to decide whether to route Decide traffic
// to this instance at all.
type ServerConfig struct {
	// Metrics configuration
	MetricsEnabled bool
	MetricsAddress string
	MetricsPort    int
	MetricsPath    string

	// Health configuration
	HealthEnabled bool
	HealthAddress string
	HealthPort    int
	LivenessPath  string
	ReadinessPath string
	DetailPath    string
}

// Server serves metrics and health check endpoints on their own listeners,
// separate from the Decide API, so a scraper or orchestrator probe never
// competes with the decision hot path for a connection slot.
type Server struct {
	cfg     ServerConfig
	metrics *Metrics
	health  *Health

	metricsServer *http.Server
	healthServer  *http.Server
}

// NewServer creates a new observability server.
func NewServer(cfg ServerConfig, metrics *Metrics, health *Health) *Server {
	if cfg.DetailPath == "" {
		cfg.DetailPath = "/healthz/detail"
	}
	return &Server{
		cfg:     cfg,
		metrics: metrics,
		health:  health,
	}
}

// Start starts the observability servers.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.MetricsEnabled {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if s.cfg.HealthEnabled {
		if err := s.startHealthServer(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
	}

	return nil
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.MetricsPath, promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.cfg.MetricsAddress, s.cfg.MetricsPort)
	s.metricsServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", addr).
			Str("path", s.cfg.MetricsPath).
			Msg("gateway metrics server listening")

		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("gateway metrics server error")
		}
	}()

	return nil
}

// startHealthServer starts the health check HTTP server. Readiness
// reports unhealthy until SetReady(true), then reflects the registered
// component checkers; the circuit breakers guarding the policy and
// counter stores are not consulted.
func (s *Server) startHealthServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.LivenessPath, s.health.LivenessHandler())
	mux.HandleFunc(s.cfg.ReadinessPath, s.health.ReadinessHandler())
	mux.HandleFunc(s.cfg.DetailPath, s.health.FullHealthHandler())

	addr := fmt.Sprintf("%s:%d", s.cfg.HealthAddress, s.cfg.HealthPort)
	s.healthServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", addr).
			Str("liveness", s.cfg.LivenessPath).
			Str("readiness", s.cfg.ReadinessPath).
			Str("detail", s.cfg.DetailPath).
			Msg("gateway health server listening")

		if err := s.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("gateway health server error")
		}
	}()

	return nil
}

// Stop gracefully stops the observability servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if s.metricsServer != nil {
		log.Info().Msg("stopping gateway metrics server")
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if s.healthServer != nil {
		log.Info().Msg("stopping gateway health server")
		if err := s.healthServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
