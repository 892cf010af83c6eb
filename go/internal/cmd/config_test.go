package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 9090
relay:
  ack_window_ms: 2500
diagnostics:
  enabled: true
  sink: nats
  nats_url: nats://broker:4222
  nats_subject: clock.diag
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Server.Address)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2500, cfg.Relay.AckWindowMs)
	require.True(t, cfg.Diagnostics.Enabled)
	require.Equal(t, "nats", cfg.Diagnostics.Sink)
	require.Equal(t, "nats://broker:4222", cfg.Diagnostics.NATSURL)
	require.Equal(t, "clock.diag", cfg.Diagnostics.Subject)
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Equal(t, defaultConfig(), cfg)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5000, cfg.Relay.AckWindowMs)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, "0.0.0.0", cfg.Server.Address)
	require.Equal(t, 5000, cfg.Relay.AckWindowMs)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)
	t.Setenv("REPEATER_PORT", "7000")
	t.Setenv("REPEATER_ACK_WINDOW_MS", "1000")
	t.Setenv("NATS_URL", "nats://other:4222")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Server.Port)
	require.Equal(t, 1000, cfg.Relay.AckWindowMs)
	require.Equal(t, "nats://other:4222", cfg.Diagnostics.NATSURL)
}
