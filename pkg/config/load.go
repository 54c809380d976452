package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "ADMISSION_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. It does not validate.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention ADMISSION_SECTION_FIELD (e.g., ADMISSION_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("ADMISSION_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("ADMISSION_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("ADMISSION_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("ADMISSION_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// A single admin key, typically injected from a secret store
	if val := os.Getenv("ADMISSION_SERVER_ADMIN_KEY"); val != "" {
		cfg.Server.AdminKeys = append(cfg.Server.AdminKeys, AdminKeyConfig{Name: "env", Key: val})
	}

	// Policy overrides, for policies already present in the file
	for name := range cfg.Policies {
		applyPolicyEnvOverrides(cfg, name)
	}

	// Journal overrides
	if val := os.Getenv("ADMISSION_JOURNAL_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Journal.Enabled = b
		}
	}
	if val := os.Getenv("ADMISSION_JOURNAL_BACKEND"); val != "" {
		cfg.Journal.Backend = val
	}
	if val := os.Getenv("ADMISSION_JOURNAL_SQLITE_PATH"); val != "" {
		cfg.Journal.SQLite.Path = val
	}
	if val := os.Getenv("ADMISSION_JOURNAL_RETENTION_PERIOD"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Journal.Retention.Period = d
		}
	}
	if val, ok := os.LookupEnv("ADMISSION_JOURNAL_PRUNE_SCHEDULE"); ok {
		cfg.Journal.Retention.PruneSchedule = val
	}

	// Telemetry overrides
	if val := os.Getenv("ADMISSION_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("ADMISSION_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("ADMISSION_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("ADMISSION_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("ADMISSION_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("ADMISSION_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// applyPolicyEnvOverrides applies environment variable overrides for one policy.
// Policy environment variables follow the format ADMISSION_POLICIES_<NAME>_<FIELD>
// where NAME is the uppercase policy name with dashes replaced by underscores.
func applyPolicyEnvOverrides(cfg *Config, name string) {
	policy := cfg.Policies[name]
	prefix := EnvPrefix + "POLICIES_" + envName(name) + "_"

	if val := os.Getenv(prefix + "WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			policy.Window = d
		}
	}
	if val := os.Getenv(prefix + "MAX_REQUESTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			policy.MaxRequests = i
		}
	}
	if val := os.Getenv(prefix + "MIN_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			policy.MinInterval = d
		}
	}

	cfg.Policies[name] = policy
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
