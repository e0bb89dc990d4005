package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default("Northside Academy")
	cfg.Store = StoreConfig{Driver: DriverPostgres, DSN: "postgres://edubill@localhost/edubill"}

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDefaults(t *testing.T) {
	cfg := Default("Northside Academy")

	assert.Equal(t, "Northside Academy", cfg.Institution.Name)
	assert.Equal(t, DriverWorkspace, cfg.Store.Driver)
	assert.Empty(t, cfg.Store.DSN)
	assert.Equal(t, 14, cfg.Billing.DefaultDeadlineDays)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "@every 1m", cfg.Scheduler.Cron)
	assert.NoError(t, cfg.Validate())
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestYAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, Default("Test School")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "name: Test School")
	assert.Contains(t, contents, "driver: workspace")
	assert.Contains(t, contents, "default_deadline_days: 14")
	assert.NotContains(t, contents, "dsn:")
}

func TestValidate(t *testing.T) {
	cfg := Default("x")
	cfg.Store.Driver = DriverPostgres
	assert.Error(t, cfg.Validate())

	cfg.Store.DSN = "postgres://localhost/edubill"
	assert.NoError(t, cfg.Validate())

	cfg.Store.Driver = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EDUBILL_SCHEDULER_CRON=@every 5m\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(EnvCron) })

	t.Setenv(EnvDriver, DriverPostgres)
	t.Setenv(EnvDSN, "postgres://env/edubill")
	t.Setenv(EnvScheduler, "false")

	cfg := Default("x")
	require.NoError(t, ApplyEnv(cfg, envFile))
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://env/edubill", cfg.Store.DSN)
	assert.Equal(t, "@every 5m", cfg.Scheduler.Cron)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestApplyEnv_MissingFile(t *testing.T) {
	cfg := Default("x")
	require.NoError(t, ApplyEnv(cfg, filepath.Join(t.TempDir(), ".env")))
	assert.Equal(t, DriverWorkspace, cfg.Store.Driver)
}

func TestApplyEnv_BadBool(t *testing.T) {
	t.Setenv(EnvScheduler, "sometimes")
	assert.Error(t, ApplyEnv(Default("x"), ""))
}
