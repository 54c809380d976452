package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits"
	"mercator-hq/admission/pkg/limits/journal"
	"mercator-hq/admission/pkg/server"
	"mercator-hq/admission/pkg/telemetry/health"
	"mercator-hq/admission/pkg/telemetry/logging"
)

const testConfig = `
server:
  listen_address: "127.0.0.1:0"
policies:
  resend-code:
    algorithm: cooldown
    min_interval: 30s
    key_source: ip
  login:
    algorithm: sliding_window
    window: 1m
    max_requests: 5
journal:
  enabled: true
  backend: memory
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admission.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgFile = "admission.yaml"
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)

	assert.Contains(t, out, "Admission "+Version)
	assert.Contains(t, out, "Go Version: "+runtime.Version())
}

func TestValidateCommand(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	out, err := execute(t, "validate", "--config", path, "--format", "text")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Configuration valid")
	assert.Contains(t, out, "Journal: memory")
	assert.Contains(t, out, "- login: 5 per 1m0s keyed by header X-User-ID")
	assert.Contains(t, out, "- resend-code: one per 30s keyed by ip")
}

func TestValidateCommand_JSON(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	out, err := execute(t, "validate", "--config", path, "--format", "json")
	require.NoError(t, err)

	var summary configSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Policies, 2)
	assert.Equal(t, "login", summary.Policies[0].Name)
	assert.Equal(t, 5, summary.Policies[0].MaxRequests)
	assert.Equal(t, "30s", summary.Policies[1].MinInterval)
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeTestConfig(t, `
policies:
  login:
    algorithm: sliding_window
    window: -1s
    max_requests: 5
`)

	_, err := execute(t, "validate", "--config", path, "--format", "text")
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestRunCommand_DryRun(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	t.Cleanup(func() { runFlags.dryRun = false })

	out, err := execute(t, "run", "--config", path, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Configuration valid")
}

func TestOpenJournal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("disabled", func(t *testing.T) {
		parts, err := openJournal(ctx, &config.JournalConfig{}, health.New(time.Second), nil)
		require.NoError(t, err)
		assert.Nil(t, parts.store)
		assert.Nil(t, parts.recorder)
		parts.Close()
	})

	t.Run("sqlite", func(t *testing.T) {
		checker := health.New(time.Second)
		parts, err := openJournal(ctx, &config.JournalConfig{
			Enabled: true,
			Backend: "sqlite",
			SQLite: config.SQLiteConfig{
				Path:        filepath.Join(t.TempDir(), "decisions.db"),
				WALMode:     true,
				BusyTimeout: time.Second,
			},
			Retention: config.RetentionConfig{
				Period:        time.Hour,
				PruneSchedule: "@every 1h",
			},
		}, checker, slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		defer parts.Close()

		assert.True(t, parts.scheduler.IsRunning())
		assert.Equal(t, []string{"journal"}, checker.ListChecks())
		assert.Equal(t, health.StatusReady, checker.CheckReadiness(ctx).Status)

		parts.recorder.Record(journal.NewEntry("login", "alice", true, 0))
		require.NoError(t, parts.recorder.Close())

		n, err := parts.store.Count(ctx, &journal.Query{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := openJournal(ctx, &config.JournalConfig{Enabled: true, Backend: "redis"}, health.New(time.Second), slog.Default())
		assert.Error(t, err)
	})
}

func TestApplyReload(t *testing.T) {
	cfg, err := config.LoadConfig(writeTestConfig(t, testConfig))
	require.NoError(t, err)

	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Writer: &bytes.Buffer{}})
	require.NoError(t, err)

	manager, err := limits.NewManager(limits.Config{Policies: cfg.RateLimitPolicies(), Logger: logger.Logger})
	require.NoError(t, err)
	defer manager.Close()

	srv, err := server.New(&cfg.Server, server.Options{Manager: manager, Policies: cfg.Policies, Logger: logger.Logger})
	require.NoError(t, err)

	reloaded, err := config.Parse([]byte(`
policies:
  search:
    algorithm: sliding_window
    window: 10s
    max_requests: 3
telemetry:
  logging:
    level: debug
`))
	require.NoError(t, err)

	applyReload(manager, srv, logger)(reloaded)

	policies := manager.Policies()
	require.Len(t, policies, 1)
	assert.Equal(t, "search", policies[0].Name)
	assert.Equal(t, "DEBUG", logger.Level().String())
}
