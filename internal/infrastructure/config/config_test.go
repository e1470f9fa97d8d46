package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Preview config
	assert.Equal(t, "./static", cfg.Preview.StaticRoot)
	assert.Equal(t, 500*time.Millisecond, cfg.Preview.Debounce)
	assert.Equal(t, 8*time.Second, cfg.Preview.GateTimeout)
	assert.Equal(t, 1<<20, cfg.Preview.InlineLimit)
	assert.True(t, cfg.Preview.Preflight)

	// Compiler config
	assert.Equal(t, "esbuild", cfg.Compiler.Engine)

	// Telemetry config
	assert.Zero(t, cfg.Telemetry.Capacity, "console keeps full history by default")
	assert.Equal(t, 5*time.Second, cfg.Telemetry.ExportTimeout)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":            "9000",
		"HOST":            "127.0.0.1",
		"PUBLIC_ORIGIN":   "https://preview.example.test",
		"STATIC_ROOT":     "/srv/libs",
		"DEBOUNCE":        "250ms",
		"GATE_TIMEOUT":    "3s",
		"POLL_RETRIES":    "20",
		"INLINE_LIMIT":    "4096",
		"PREFLIGHT":       "false",
		"COMPILER_ENGINE": "standalone",
		"LOG_CAPACITY":    "50",
		"EXPORT_TIMEOUT":  "1s",
		"LOG_LEVEL":       "debug",
		"LOG_DEV":         "true",
		"RATE_LIMIT_RPS":  "500",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "https://preview.example.test", cfg.Origin())
	assert.Equal(t, "/srv/libs", cfg.Preview.StaticRoot)
	assert.Equal(t, 250*time.Millisecond, cfg.Preview.Debounce)
	assert.Equal(t, 3*time.Second, cfg.Preview.GateTimeout)
	assert.Equal(t, 20, cfg.Preview.PollRetries)
	assert.Equal(t, 4096, cfg.Preview.InlineLimit)
	assert.False(t, cfg.Preview.Preflight)
	assert.Equal(t, "standalone", cfg.Compiler.Engine)
	assert.Equal(t, 50, cfg.Telemetry.Capacity)
	assert.Equal(t, time.Second, cfg.Telemetry.ExportTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
}

func TestLoadOrDefaultOnInvalidValue(t *testing.T) {
	t.Setenv("DEBOUNCE", "soon")

	_, err := Load()
	require.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 500*time.Millisecond, cfg.Preview.Debounce)
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		name   string
		server ServerConfig
		want   string
	}{
		{
			name:   "wildcard host",
			server: ServerConfig{Host: "0.0.0.0", Port: "8000"},
			want:   "http://localhost:8000",
		},
		{
			name:   "explicit host",
			server: ServerConfig{Host: "10.0.0.5", Port: "9000"},
			want:   "http://10.0.0.5:9000",
		},
		{
			name:   "public origin wins",
			server: ServerConfig{Host: "0.0.0.0", Port: "8000", PublicOrigin: "https://p.example"},
			want:   "https://p.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server = tt.server
			assert.Equal(t, tt.want, cfg.Origin())
		})
	}
}

func TestMain(m *testing.M) {
	// Start from a clean environment so defaults are observable.
	for _, key := range []string{"PORT", "HOST", "PUBLIC_ORIGIN", "STATIC_ROOT", "LIBS_CATALOG", "DEBOUNCE", "GATE_TIMEOUT", "POLL_INTERVAL", "POLL_RETRIES", "INLINE_LIMIT", "PREFLIGHT", "WATCH_DIR", "COMPILER_ENGINE", "COMPILER_SCRIPT", "LOG_CAPACITY", "EXPORT_TIMEOUT", "LOG_LEVEL", "LOG_DEV", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_ENABLED"} {
		os.Unsetenv(key)
	}
	os.Exit(m.Run())
}
