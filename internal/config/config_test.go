package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motion-hub.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://localhost/motionhub
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "motion-hub", cfg.Server.Name)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 15*time.Second, cfg.Hub.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Hub.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.Hub.CommandTimeout)
	assert.Equal(t, 5*time.Second, cfg.Hub.StatusFreshness)
	assert.Equal(t, "sim", cfg.Hub.Transport)
	assert.Equal(t, "motion/{mac}/status", cfg.Integrations.MQTT.TopicPattern)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
api:
  host: 127.0.0.1
  port: 9090
log:
  level: debug
hub:
  idle_timeout: 30s
  command_timeout: 5s
  transport: sim
  sim_motors:
    - "AA:BB:CC:DD:EE:01"
    - "AA:BB:CC:DD:EE:02"
integrations:
  http:
    enabled: true
    endpoint: https://example.com/hook
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Hub.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.Hub.CommandTimeout)
	assert.Len(t, cfg.Hub.SimMotors, 2)
	assert.True(t, cfg.Integrations.HTTP.Enabled)
	assert.Equal(t, "https://example.com/hook", cfg.Integrations.HTTP.Endpoint)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://localhost/motionhub
log:
  level: info
`)

	t.Setenv("DATABASE_URL", "postgres://override/db")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("JWT_SECRET", "supersecret")
	t.Setenv("NATS_URL", "nats://override:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://override/db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "supersecret", cfg.JWT.Secret)
	assert.Equal(t, "nats://override:4222", cfg.NATS.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "api: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}
