package config

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePolicies(cfg.Policies)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.ListenAddress),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	seen := make(map[string]bool, len(cfg.AdminKeys))
	for i, k := range cfg.AdminKeys {
		field := fmt.Sprintf("server.admin_keys[%d]", i)
		if k.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "admin key name is required"})
		} else if seen[k.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate admin key name %q", k.Name)})
		}
		seen[k.Name] = true
		if len(k.Key) < MinAdminKeyLength {
			errs = append(errs, FieldError{
				Field:   field + ".key",
				Message: fmt.Sprintf("admin key must be at least %d characters", MinAdminKeyLength),
			})
		}
	}

	return errs
}

// validatePolicies validates every policy, in name order so errors are stable.
func validatePolicies(policies map[string]PolicyConfig) []FieldError {
	var errs []FieldError

	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := policies[name]
		field := "policies." + name

		if name == "" {
			errs = append(errs, FieldError{Field: "policies", Message: "policy name cannot be empty"})
			continue
		}

		switch p.Algorithm {
		case "sliding_window":
			if p.Window <= 0 {
				errs = append(errs, FieldError{
					Field:   field + ".window",
					Message: "window must be positive for sliding_window",
				})
			}
			if p.MaxRequests < 0 {
				errs = append(errs, FieldError{
					Field:   field + ".max_requests",
					Message: "max requests must be non-negative",
				})
			}
		case "cooldown":
			if p.MinInterval < 0 {
				errs = append(errs, FieldError{
					Field:   field + ".min_interval",
					Message: "min interval must be non-negative",
				})
			}
		case "":
			errs = append(errs, FieldError{
				Field:   field + ".algorithm",
				Message: "algorithm is required",
			})
		default:
			errs = append(errs, FieldError{
				Field:   field + ".algorithm",
				Message: fmt.Sprintf("invalid algorithm %q: must be sliding_window or cooldown", p.Algorithm),
			})
		}

		switch p.KeySource {
		case KeySourceHeader, KeySourceQuery:
			if p.KeyName == "" {
				errs = append(errs, FieldError{
					Field:   field + ".key_name",
					Message: "key name is required for key source " + p.KeySource,
				})
			}
		case KeySourceIP:
		default:
			errs = append(errs, FieldError{
				Field:   field + ".key_source",
				Message: fmt.Sprintf("invalid key source %q: must be header, ip or query", p.KeySource),
			})
		}
	}

	return errs
}

// validateJournal validates journal configuration.
func validateJournal(cfg *JournalConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}

	switch cfg.Backend {
	case "memory":
		if cfg.MaxEntries <= 0 {
			errs = append(errs, FieldError{
				Field:   "journal.max_entries",
				Message: "max entries must be positive",
			})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "journal.sqlite.path",
				Message: "path is required for sqlite backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "journal.backend",
			Message: fmt.Sprintf("invalid backend %q: must be memory or sqlite", cfg.Backend),
		})
	}

	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}
	if cfg.Retention.Period < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.retention.period",
			Message: "retention period must be positive",
		})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "journal.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q: must be debug, info, warn or error", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q: must be json, text or console", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be always, never or ratio", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
	}

	return errs
}
