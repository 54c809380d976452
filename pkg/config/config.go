package config

import (
	"time"

	"mercator-hq/admission/pkg/limits/ratelimit"
)

// Config is the root configuration structure for the admission service.
// It contains all configuration sections: the HTTP server, the admission
// policies, the decision journal and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Policies maps policy names to their admission rules.
	Policies map[string]PolicyConfig `yaml:"policies"`

	// Journal contains decision journal configuration.
	Journal JournalConfig `yaml:"journal"`

	// Telemetry contains observability configuration including logging,
	// metrics, tracing, and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// AdminKeys guards the administrative endpoints (forgetting keys and
	// reading the journal). Empty leaves them open.
	AdminKeys []AdminKeyConfig `yaml:"admin_keys"`
}

// AdminKeyConfig is one API key accepted on administrative endpoints.
type AdminKeyConfig struct {
	// Name identifies the key holder in logs.
	Name string `yaml:"name"`

	// Key is the secret presented as "Authorization: Bearer <key>" or in
	// the X-API-Key header.
	Key string `yaml:"key"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`
}

// Key sources for PolicyConfig.KeySource.
const (
	KeySourceHeader = "header"
	KeySourceIP     = "ip"
	KeySourceQuery  = "query"
)

// PolicyConfig describes one admission policy.
//
// Example:
//
//	policies:
//	  login:
//	    algorithm: sliding_window
//	    window: 1m
//	    max_requests: 5
//	    key_source: header
//	    key_name: X-User-ID
//	  resend-code:
//	    algorithm: cooldown
//	    min_interval: 30s
//	    key_source: ip
type PolicyConfig struct {
	// Algorithm selects the limiter.
	// Options: "sliding_window", "cooldown"
	Algorithm string `yaml:"algorithm"`

	// Window is the trailing window for sliding_window.
	Window time.Duration `yaml:"window"`

	// MaxRequests is the number of events admitted per Window for
	// sliding_window. Zero denies every event.
	MaxRequests int `yaml:"max_requests"`

	// MinInterval is the spacing between events for cooldown.
	MinInterval time.Duration `yaml:"min_interval"`

	// KeySource is where the HTTP layer reads the identity from.
	// Options: "header", "ip", "query"
	// Default: "header"
	KeySource string `yaml:"key_source"`

	// KeyName is the header or query parameter holding the identity.
	// Default: "X-User-ID" for header, "user" for query
	KeyName string `yaml:"key_name"`
}

// RateLimit converts the policy to a limiter configuration.
func (p PolicyConfig) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		Algorithm:   ratelimit.Algorithm(p.Algorithm),
		Window:      p.Window,
		MaxRequests: p.MaxRequests,
		MinInterval: p.MinInterval,
	}
}

// RateLimitPolicies converts every policy to a limiter configuration.
func (c *Config) RateLimitPolicies() map[string]ratelimit.Config {
	policies := make(map[string]ratelimit.Config, len(c.Policies))
	for name, p := range c.Policies {
		policies[name] = p.RateLimit()
	}
	return policies
}

// JournalConfig contains configuration for the decision journal.
type JournalConfig struct {
	// Enabled controls whether decisions are journaled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the journal store.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// MaxEntries bounds the memory backend.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// AsyncBuffer is the size of the recorder's write buffer.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Retention configures pruning of old entries.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite journal configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/decisions.db"
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains journal retention configuration.
type RetentionConfig struct {
	// Period is how long entries are kept.
	// Default: 168h (7 days)
	Period time.Duration `yaml:"period"`

	// PruneSchedule is a cron expression for automatic pruning.
	// Empty disables automatic pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix for HTTP metrics.
	// Default: "admission"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name in traces.
	// Default: "admission"
	ServiceName string `yaml:"service_name"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
