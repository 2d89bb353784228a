package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.KubeconfigPath)
	assert.Equal(t, 30*time.Second, cfg.VisualizeTimeout())
	assert.Equal(t, 15*time.Second, cfg.K8sTimeout())
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 1024, cfg.SessionMax)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Zero(t, cfg.K8sRateLimitPerSec)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("CLABCONSOLE_PORT", "9000")
	t.Setenv("CLABCONSOLE_LOG_LEVEL", "debug")
	t.Setenv("CLABCONSOLE_LOG_FORMAT", "text")
	t.Setenv("CLABCONSOLE_KUBE_CONTEXT", "kind-clab")
	t.Setenv("CLABCONSOLE_K8S_RATE_LIMIT_PER_SEC", "12.5")
	t.Setenv("CLABCONSOLE_VISUALIZE_TIMEOUT_SEC", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "kind-clab", cfg.KubeContext)
	assert.Equal(t, 12.5, cfg.K8sRateLimitPerSec)
	assert.Equal(t, 5*time.Second, cfg.VisualizeTimeout())
}

func TestLoad_AllowedOriginsCommaSeparated(t *testing.T) {
	t.Setenv("CLABCONSOLE_ALLOWED_ORIGINS", "http://localhost:3000, https://example.com,,http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "https://example.com", "http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clabconsole.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9443
allowed_origins:
  - https://console.lab
session_max: 16
tracing_endpoint: otel-collector:4317
tracing_sampling_rate: 0.25
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9443, cfg.Port)
	assert.Equal(t, []string{"https://console.lab"}, cfg.AllowedOrigins)
	assert.Equal(t, 16, cfg.SessionMax)
	assert.Equal(t, "otel-collector:4317", cfg.TracingEndpoint)
	assert.Equal(t, 0.25, cfg.TracingSamplingRate)
	// untouched keys keep their defaults
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Port: 8080, LogFormat: "json", SessionMax: 1, TracingSamplingRate: 1}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"negative timeout", func(c *Config) { c.VisualizeTimeoutSec = -1 }},
		{"no sessions", func(c *Config) { c.SessionMax = 0 }},
		{"sampling rate", func(c *Config) { c.TracingSamplingRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
