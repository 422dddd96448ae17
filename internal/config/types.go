package config

import "time"

// Config is the root configuration structure for the gateway process.
type Config struct {
	Version  string         `mapstructure:"version"`
	Server   ServerConfig   `mapstructure:"server"`
	Decision DecisionConfig `mapstructure:"decision"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	TLS      TLSConfig      `mapstructure:"tls"`
}

// ServerConfig defines the HTTP transport's listen settings.
type ServerConfig struct {
	Listen           ListenConfig   `mapstructure:"listen"`
	ReadTimeout      time.Duration  `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration  `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration  `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration  `mapstructure:"graceful_shutdown"`
	Security         SecurityConfig `mapstructure:"security"`
}

// SecurityConfig defines security-related HTTP settings.
type SecurityConfig struct {
	CORSAllowedOrigins    []string `mapstructure:"cors_allowed_origins"`
	EnableSecurityHeaders bool     `mapstructure:"enable_security_headers"`
}

// ListenConfig defines the server listen address.
type ListenConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// DecisionConfig carries the Decision Pipeline's process-wide options:
// cache lifetimes and the fail-closed policy applied to infrastructure
// faults.
type DecisionConfig struct {
	PolicyCacheTTL   time.Duration `mapstructure:"policy_cache_ttl"`
	ProjectCacheTTL  time.Duration `mapstructure:"project_cache_ttl"`
	FailClosed       bool          `mapstructure:"fail_closed"`
	FailClosedReason string        `mapstructure:"fail_closed_reason"`
}

// PolicyConfig selects and configures the PolicyStore backend.
type PolicyConfig struct {
	Backend     string `mapstructure:"backend"` // memory, sqlite, postgres
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
	PolicyDir   string `mapstructure:"policy_dir"` // for bulk-loading documents at startup
}

// QuotaConfig selects and configures the CounterStore backend.
type QuotaConfig struct {
	Backend       string `mapstructure:"backend"` // memory, redis
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// AuditConfig selects and configures the AuditSink backend plus the
// async writer in front of it.
type AuditConfig struct {
	Backend       string        `mapstructure:"backend"` // sqlite, postgres
	SQLitePath    string        `mapstructure:"sqlite_path"`
	PostgresURL   string        `mapstructure:"postgres_url"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// MetricsConfig defines Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig defines health check endpoint settings.
type HealthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Address       string `mapstructure:"address"`
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr; any other value writes to stdout
}

// TLSConfig defines TLS settings for the HTTP transport.
type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	CAFile     string `mapstructure:"ca_file"`
	MinVersion string `mapstructure:"min_version"`
	ClientAuth string `mapstructure:"client_auth"` // none, request, require
}
