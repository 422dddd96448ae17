package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from path (if present), layers environment
// variable overrides (GATEWAY_<SECTION>_<KEY>, automatic via viper), and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("gateway")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")

	v.SetDefault("server.listen.address", "0.0.0.0")
	v.SetDefault("server.listen.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.graceful_shutdown", 30*time.Second)
	v.SetDefault("server.security.enable_security_headers", true)

	v.SetDefault("decision.policy_cache_ttl", 300*time.Second)
	v.SetDefault("decision.project_cache_ttl", 300*time.Second)
	v.SetDefault("decision.fail_closed", true)
	v.SetDefault("decision.fail_closed_reason", "service unavailable (fail-closed)")

	v.SetDefault("policy.backend", "memory")
	v.SetDefault("policy.sqlite_path", "policies.db")
	v.SetDefault("policy.policy_dir", "policies")

	v.SetDefault("quota.backend", "memory")
	v.SetDefault("quota.redis_addr", "localhost:6379")

	v.SetDefault("audit.backend", "sqlite")
	v.SetDefault("audit.sqlite_path", "audit.db")
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.flush_interval", time.Second)
	v.SetDefault("audit.retention_days", 90)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", "0.0.0.0")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.address", "0.0.0.0")
	v.SetDefault("health.port", 8080)
	v.SetDefault("health.liveness_path", "/health")
	v.SetDefault("health.readiness_path", "/ready")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("tls.min_version", "1.2")
	v.SetDefault("tls.client_auth", "none")
}

func validate(cfg *Config) error {
	if cfg.Server.Listen.Port < 1 || cfg.Server.Listen.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Listen.Port)
	}

	validPolicyBackends := map[string]bool{"memory": true, "sqlite": true, "postgres": true}
	if !validPolicyBackends[cfg.Policy.Backend] {
		return fmt.Errorf("invalid policy.backend: %s (must be memory, sqlite, or postgres)", cfg.Policy.Backend)
	}
	if cfg.Policy.Backend == "postgres" && cfg.Policy.PostgresURL == "" {
		return errors.New("policy.postgres_url is required when policy.backend is postgres")
	}

	validQuotaBackends := map[string]bool{"memory": true, "redis": true}
	if !validQuotaBackends[cfg.Quota.Backend] {
		return fmt.Errorf("invalid quota.backend: %s (must be memory or redis)", cfg.Quota.Backend)
	}

	validAuditBackends := map[string]bool{"sqlite": true, "postgres": true}
	if !validAuditBackends[cfg.Audit.Backend] {
		return fmt.Errorf("invalid audit.backend: %s (must be sqlite or postgres)", cfg.Audit.Backend)
	}
	if cfg.Audit.Backend == "postgres" && cfg.Audit.PostgresURL == "" {
		return errors.New("audit.postgres_url is required when audit.backend is postgres")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}

	return nil
}

// String returns a short representation of the config for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{version=%s, listen=%s:%d, policy_backend=%s, quota_backend=%s, audit_backend=%s}",
		c.Version, c.Server.Listen.Address, c.Server.Listen.Port, c.Policy.Backend, c.Quota.Backend, c.Audit.Backend)
}

// MaskSensitive returns a copy of c with connection strings, passwords,
// and key material replaced by a fixed placeholder, safe to pass to a
// startup log line.
func (c *Config) MaskSensitive() *Config {
	masked := *c
	if masked.Policy.PostgresURL != "" {
		masked.Policy.PostgresURL = "****"
	}
	if masked.Audit.PostgresURL != "" {
		masked.Audit.PostgresURL = "****"
	}
	if masked.Quota.RedisPassword != "" {
		masked.Quota.RedisPassword = "****"
	}
	if masked.TLS.KeyFile != "" {
		masked.TLS.KeyFile = "****"
	}
	return &masked
}
