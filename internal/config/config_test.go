package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sheild-gateway/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  data_port: 9080
  ui_port: 9081
  cors_origins: ["https://dash.example"]
log:
  level: debug
  format: console
pubsub:
  backend: redis
  redis:
    addr: redis:6379
prediction:
  mode: remote
  remote:
    base_url: http://ml:5000/api
    timeout: 3s
auth:
  jwt_secret: from-file
  api_keys: ["k1", "k2"]
  users:
    - username: ops@example.com
      password_hash: "$2a$12$abc"
      role: admin
machines:
  - machine_id: M-1
    name: Press
    thresholds:
      temperature: {warning: 70, critical: 85}
      vibration: {warning: 20, critical: 30}
      current: {warning: 10, critical: 14}
      health_score: {warning: 70, critical: 40}
  - machine_id: M-2
    name: Pump
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9080, cfg.Server.DataPort)
	assert.Equal(t, 9081, cfg.Server.UIPort)
	assert.Equal(t, []string{"https://dash.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis", cfg.PubSub.Backend)
	assert.Equal(t, "redis:6379", cfg.PubSub.Redis.Addr)
	assert.Equal(t, PredictionRemote, cfg.Prediction.Mode)
	assert.Equal(t, 3*time.Second, cfg.Prediction.Remote.Timeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "admin", cfg.Auth.Users[0].Role)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.JWTExpiration)

	require.Len(t, cfg.Machines, 2)
	assert.Equal(t, 85.0, cfg.Machines[0].Thresholds.Temperature.Critical)
	assert.Equal(t, 40.0, cfg.Machines[0].Thresholds.HealthScore.Critical)
	assert.Equal(t, 90.0, cfg.Machines[1].Thresholds.Temperature.Critical, "defaults fill unset thresholds")
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("SHEILD_AUTH_JWT_SECRET", "from-env")
	t.Setenv("SHEILD_SERVER_UI_PORT", "7000")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 7000, cfg.Server.UIPort)
	assert.Equal(t, 8080, cfg.Server.DataPort)
	assert.Equal(t, "memory", cfg.PubSub.Backend)
	assert.Equal(t, "alerts", cfg.Alerts.Namespace)
	assert.Equal(t, PredictionLocal, cfg.Prediction.Mode)
	assert.Equal(t, 100, cfg.Ingest.BufferSize)
	assert.Empty(t, cfg.Mongo.URI)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHEILD_AUTH_JWT_SECRET=dotenv-secret\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SHEILD_AUTH_JWT_SECRET") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")

	dir := writeConfig(t, `
server: {data_port: 8080, ui_port: 8080}
auth: {jwt_secret: x}
pubsub: {backend: kafka}
prediction: {mode: magic}
machines:
  - machine_id: M-1
  - machine_id: M-1
  - name: nameless
`)
	_, err = Load(dir)
	require.Error(t, err)
	for _, want := range []string{"must differ", "unknown backend", "unknown mode", "duplicate machine_id", "machine_id is required"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_PartialThresholds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
auth: {jwt_secret: x}
machines:
  - machine_id: M-7
    thresholds:
      temperature: {warning: 85, critical: 95}
`))
	require.NoError(t, err)
	require.Len(t, cfg.Machines, 1)
	th := cfg.Machines[0].Thresholds
	assert.Equal(t, 95.0, th.Temperature.Critical)
	assert.Equal(t, data.DefaultThresholds().Vibration, th.Vibration)
	assert.Equal(t, data.DefaultThresholds().Current, th.Current)
	assert.Equal(t, data.DefaultThresholds().HealthScore, th.HealthScore)

	_, err = Load(writeConfig(t, `
auth: {jwt_secret: x}
machines:
  - machine_id: M-8
    thresholds:
      vibration: {warning: 40, critical: 30}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vibration warning above critical")
}
