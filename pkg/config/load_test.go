package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/admission/pkg/limits/ratelimit"
)

const validYAML = `
server:
  listen_address: "0.0.0.0:9090"
policies:
  login:
    algorithm: sliding_window
    window: 1m
    max_requests: 5
  resend-code:
    algorithm: cooldown
    min_interval: 30s
    key_source: ip
  search:
    algorithm: sliding_window
    window: 10s
    max_requests: 3
    key_source: query
journal:
  enabled: true
  backend: sqlite
  sqlite:
    path: /tmp/decisions.db
telemetry:
  logging:
    level: debug
    format: text
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admission.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.ListenAddress)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)

	require.Len(t, cfg.Policies, 3)
	login := cfg.Policies["login"]
	assert.Equal(t, "sliding_window", login.Algorithm)
	assert.Equal(t, time.Minute, login.Window)
	assert.Equal(t, 5, login.MaxRequests)
	assert.Equal(t, KeySourceHeader, login.KeySource)
	assert.Equal(t, DefaultHeaderKey, login.KeyName)

	resend := cfg.Policies["resend-code"]
	assert.Equal(t, 30*time.Second, resend.MinInterval)
	assert.Equal(t, KeySourceIP, resend.KeySource)
	assert.Empty(t, resend.KeyName)

	assert.Equal(t, DefaultQueryKey, cfg.Policies["search"].KeyName)

	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/tmp/decisions.db", cfg.Journal.SQLite.Path)
	assert.True(t, cfg.Journal.SQLite.WALMode)
	assert.Equal(t, DefaultJournalPruneSchedule, cfg.Journal.Retention.PruneSchedule)

	assert.Equal(t, "debug", cfg.Telemetry.Logging.Level)
	assert.True(t, cfg.Telemetry.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Telemetry.Metrics.Path)
	assert.False(t, cfg.Telemetry.Tracing.Enabled)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read configuration file")
}

func TestLoadConfig_UnknownField(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server:\n  listen_addr: \":80\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse configuration file")
}

func TestLoadConfig_ValidationError(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
policies:
  broken:
    algorithm: sliding_window
    max_requests: -1
`))
	require.Error(t, err)

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 2)
	assert.Equal(t, "policies.broken.window", verr.Errors[0].Field)
	assert.Equal(t, "policies.broken.max_requests", verr.Errors[1].Field)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
	assert.Empty(t, cfg.Policies)
	require.NoError(t, Validate(cfg))
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("ADMISSION_SERVER_LISTEN_ADDRESS", "127.0.0.1:7070")
	t.Setenv("ADMISSION_POLICIES_LOGIN_MAX_REQUESTS", "10")
	t.Setenv("ADMISSION_POLICIES_RESEND_CODE_MIN_INTERVAL", "1m")
	t.Setenv("ADMISSION_JOURNAL_BACKEND", "memory")
	t.Setenv("ADMISSION_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("ADMISSION_TELEMETRY_METRICS_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Server.ListenAddress)
	assert.Equal(t, 10, cfg.Policies["login"].MaxRequests)
	assert.Equal(t, time.Minute, cfg.Policies["resend-code"].MinInterval)
	assert.Equal(t, "memory", cfg.Journal.Backend)
	assert.Equal(t, "warn", cfg.Telemetry.Logging.Level)
	assert.False(t, cfg.Telemetry.Metrics.Enabled)
}

func TestLoadConfigWithEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("ADMISSION_TELEMETRY_LOGGING_LEVEL", "verbose")

	_, err := LoadConfigWithEnvOverrides(writeConfig(t, validYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after environment overrides")
}

func TestRateLimitPolicies(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	policies := cfg.RateLimitPolicies()
	assert.Equal(t, ratelimit.Config{
		Algorithm:   ratelimit.AlgorithmSlidingWindow,
		Window:      time.Minute,
		MaxRequests: 5,
	}, policies["login"])
	assert.Equal(t, ratelimit.Config{
		Algorithm:   ratelimit.AlgorithmCooldown,
		MinInterval: 30 * time.Second,
	}, policies["resend-code"])

	for name, p := range policies {
		_, err := ratelimit.New(p)
		assert.NoError(t, err, name)
	}
}
