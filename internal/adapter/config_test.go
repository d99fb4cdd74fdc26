package adapter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(t.TempDir())
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Sync, cfg.Sync)
	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.False(t, cfg.IsConfigured())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  url: https://brew.example.com
  token: abc
session:
  user_id: u-1
  unit_system: metric
sync:
  cooldown: 2m
  max_attempts: 3
network:
  force_offline: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://brew.example.com", cfg.Server.URL)
	assert.Equal(t, "metric", cfg.Session.UnitSystem)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Cooldown)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Sync.CheckInterval)
	assert.True(t, cfg.Network.ForceOffline)
	assert.True(t, cfg.IsConfigured())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BREWSYNC_SERVER_URL", "http://env.example.com")
	t.Setenv("BREWSYNC_SYNC_COOLDOWN", "90s")

	cfg, err := LoadConfigFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com", cfg.Server.URL)
	assert.Equal(t, 90*time.Second, cfg.Sync.Cooldown)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unterminated"), 0644))

	_, err := LoadConfigFrom(dir)
	assert.Error(t, err)
}

func TestSaveAndClearSession(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Server.URL = "http://localhost:9999"
	cfg.Sync.Cooldown = 7 * time.Minute

	require.NoError(t, SaveSession(dir, cfg, "tok", "u-1", "alice"))

	loaded, err := LoadConfigFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.Server.Token)
	assert.Equal(t, "u-1", loaded.Session.UserID)
	assert.Equal(t, "alice", loaded.Session.Username)
	assert.Equal(t, 7*time.Minute, loaded.Sync.Cooldown)

	require.NoError(t, ClearSession(dir, loaded))
	loaded, err = LoadConfigFrom(dir)
	require.NoError(t, err)
	assert.Empty(t, loaded.Server.Token)
	assert.Empty(t, loaded.Session.UserID)
	assert.Equal(t, "http://localhost:9999", loaded.Server.URL)
}

func TestWatchConfigRequiresFile(t *testing.T) {
	err := WatchConfig(t.TempDir(), func(*Config, error) {})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestSetupLoggerCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "brewsync.log")
	logger, err := SetupLogger(&LoggingConfig{File: path, Level: "DEBUG"})
	require.NoError(t, err)
	logger.Debug("hello")

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}
