package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/mfcctl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
adapter = "eth0"
controllers = 3
cycle_time = 20
receive_timeout = 4000
history_points = 500
record_path = "/tmp/flow.csv"
metrics = true
metrics_db = "/path/to/samples.db"
log_level = "debug"
`)
	configPath := filepath.Join(tempDir, "mfcctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("MFCCTL_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Adapter, "Expected Adapter eth0")
	assert.Equal(t, 3, cfg.Controllers, "Expected Controllers 3")
	assert.Equal(t, 20, cfg.CycleTime, "Expected CycleTime 20")
	assert.Equal(t, 4000, cfg.ReceiveTimeout, "Expected ReceiveTimeout 4000")
	assert.Equal(t, 500, cfg.HistoryPoints, "Expected HistoryPoints 500")
	assert.Equal(t, "/tmp/flow.csv", cfg.RecordPath, "Expected RecordPath /tmp/flow.csv")
	assert.True(t, cfg.Metrics, "Expected Metrics true")
	assert.Equal(t, "/path/to/samples.db", cfg.MetricsDB, "Expected MetricsDB /path/to/samples.db")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MFCCTL_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, "sim", cfg.Adapter, "Expected default Adapter sim")
	assert.Equal(t, 2, cfg.Controllers, "Expected default Controllers 2")
	assert.Equal(t, 10, cfg.CycleTime, "Expected default CycleTime 10")
	assert.Equal(t, 2000, cfg.ReceiveTimeout, "Expected default ReceiveTimeout 2000")
	assert.Equal(t, 50000, cfg.StateTimeout, "Expected default StateTimeout 50000")
	assert.Equal(t, 200, cfg.HistoryPoints, "Expected default HistoryPoints 200")
	assert.Equal(t, 1000, cfg.RecordInterval, "Expected default RecordInterval 1000")
	assert.Equal(t, 100, cfg.RecordBuffer, "Expected default RecordBuffer 100")
	assert.False(t, cfg.Metrics, "Expected default Metrics false")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
This is not a valid TOML file
`)
	configPath := filepath.Join(tempDir, "mfcctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("MFCCTL_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
log_level = "invalid"
`)
	configPath := filepath.Join(tempDir, "mfcctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("MFCCTL_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestInvalidCycleTime(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
cycle_time = 0
`)
	configPath := filepath.Join(tempDir, "mfcctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("MFCCTL_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_time")
}

func TestLogLevelFlag(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	t.Setenv("MFCCTL_CONFIG", "")
	os.Args = []string{"mfcctl", "--log-level", "debug"}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}
