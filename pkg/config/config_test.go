package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/biolink/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DeviceAddress)
	assert.Equal(t, config.DefaultServiceUUID, cfg.ServiceUUID)
	assert.Equal(t, config.DefaultCommandUUID, cfg.CommandCharUUID)
	assert.Equal(t, config.DefaultNotifyUUID, cfg.NotifyCharUUID)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout.Std())
	assert.Equal(t, 200*time.Millisecond, cfg.CommandSpacing.Std())
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay.Std())
	assert.Equal(t, 3*time.Second, cfg.ReconnectRetryDelay.Std())
	assert.Equal(t, 3, cfg.ReconnectMaxRetries)
	assert.Equal(t, time.Second, cfg.FallClearWindow.Std())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
device_address: "AA:BB:CC:DD:EE:FF"
command_spacing: 150ms
reconnect_max_retries: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.DeviceAddress)
	assert.Equal(t, 150*time.Millisecond, cfg.CommandSpacing.Std())
	assert.Equal(t, 5, cfg.ReconnectMaxRetries)

	// Unset keys keep their defaults.
	assert.Equal(t, config.DefaultServiceUUID, cfg.ServiceUUID)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay.Std())
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [not, a, string"), 0o644))
	_, err = config.Load(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "baddur.yaml")
	require.NoError(t, os.WriteFile(path, []byte("command_spacing: fast"), 0o644))
	_, err = config.Load(path)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	cfg.LogLevel = "shouting"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
