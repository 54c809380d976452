package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	MinAdminKeyLength      = 16

	// Policy defaults
	DefaultKeySource = KeySourceHeader
	DefaultHeaderKey = "X-User-ID"
	DefaultQueryKey  = "user"

	// Journal defaults
	DefaultJournalBackend           = "memory"
	DefaultJournalMaxEntries        = 10000
	DefaultJournalAsyncBuffer       = 1000
	DefaultJournalSQLitePath        = "data/decisions.db"
	DefaultJournalSQLiteWALMode     = true
	DefaultJournalSQLiteBusyTimeout = 5 * time.Second
	DefaultJournalRetentionPeriod   = 7 * 24 * time.Hour
	DefaultJournalPruneSchedule     = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultPrometheusPath     = "/metrics"
	DefaultMetricsNamespace   = "admission"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingTimeout     = 10 * time.Second
	DefaultServiceName        = "admission"
	DefaultHealthCheckTimeout = 2 * time.Second
)

// ApplyDefaults fills unset fields of cfg with their default values.
// Fields that are already set are left untouched.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyPolicyDefaults(cfg.Policies)
	applyJournalDefaults(&cfg.Journal)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
}

func applyPolicyDefaults(policies map[string]PolicyConfig) {
	for name, p := range policies {
		if p.KeySource == "" {
			p.KeySource = DefaultKeySource
		}
		if p.KeyName == "" {
			switch p.KeySource {
			case KeySourceHeader:
				p.KeyName = DefaultHeaderKey
			case KeySourceQuery:
				p.KeyName = DefaultQueryKey
			}
		}
		policies[name] = p
	}
}

func applyJournalDefaults(cfg *JournalConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultJournalBackend
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultJournalMaxEntries
	}
	if cfg.AsyncBuffer == 0 {
		cfg.AsyncBuffer = DefaultJournalAsyncBuffer
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultJournalSQLitePath
	}
	if !cfg.SQLite.WALMode {
		cfg.SQLite.WALMode = DefaultJournalSQLiteWALMode
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultJournalSQLiteBusyTimeout
	}
	if cfg.Retention.Period == 0 {
		cfg.Retention.Period = DefaultJournalRetentionPeriod
	}
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultJournalPruneSchedule
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	// A metrics section without a path is treated as unset.
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
		cfg.Metrics.Enabled = DefaultMetricsEnabled
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultServiceName
	}

	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
