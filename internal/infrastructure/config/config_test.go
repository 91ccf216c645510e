package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 100, cfg.Server.MaxWorkspaces)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)

	// Runner config
	assert.Equal(t, EnvDevelopment, cfg.Runner.Env)
	assert.Equal(t, ModeInProc, cfg.Runner.Mode)
	assert.Equal(t, 10*time.Second, cfg.Runner.Timeout.Std())

	// Gist config
	assert.Equal(t, "https://api.github.com", cfg.Gist.APIURL)
	assert.Equal(t, 5*time.Minute, cfg.Gist.CacheTTL.Std())

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
		"PORT":               "9000",
		"HOST":               "127.0.0.1",
		"MAX_WORKSPACES":     "5",
		"CORS_ORIGINS":       "https://a.example,https://b.example",
		"RUNNER_ENV":         "production",
		"RUNNER_MODE":        "process",
		"RUNNER_TIMEOUT":     "3s",
		"GIST_TOKEN":         "secret",
		"GIST_CACHE_TTL":     "1m",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "500",
		"RATE_LIMIT_BURST":   "1000",
		"RATE_LIMIT_ENABLED": "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5, cfg.Server.MaxWorkspaces)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	assert.Equal(t, EnvProduction, cfg.Runner.Env)
	assert.Equal(t, ModeProcess, cfg.Runner.Mode)
	assert.Equal(t, 3*time.Second, cfg.Runner.Timeout.Std())

	assert.Equal(t, "secret", cfg.Gist.Token)
	assert.Equal(t, time.Minute, cfg.Gist.CacheTTL.Std())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	t.Setenv("RUNNER_MODE", "iframe")

	_, err := Load()
	assert.Error(t, err)

	// LoadOrDefault falls back
	assert.Equal(t, ModeInProc, LoadOrDefault().Runner.Mode)
}

func TestLoadYAMLFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsgist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
runner:
  mode: process
  timeout: 2s
gist:
  cacheSize: 42
`), 0o600))

	t.Setenv("PORT", "9000")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, ModeProcess, cfg.Runner.Mode)
	assert.Equal(t, 2*time.Second, cfg.Runner.Timeout.Std())
	assert.Equal(t, int64(42), cfg.Gist.CacheSize)
	assert.Equal(t, EnvDevelopment, cfg.Runner.Env)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsgist.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[runner]
env = "production"
timeout = "750ms"

[logging]
level = "warn"
`), 0o600))
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Runner.Env)
	assert.Equal(t, 750*time.Millisecond, cfg.Runner.Timeout.Std())
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestApplyFileErrors(t *testing.T) {
	cfg := Default()

	err := cfg.ApplyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "jsgist.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	err = cfg.ApplyFile(path)
	assert.ErrorContains(t, err, "unsupported")
}

func TestRunnerTarget(t *testing.T) {
	tests := []struct {
		name       string
		runner     RunnerConfig
		wantRunner string
		wantScript string
	}{
		{
			name:       "development",
			runner:     RunnerConfig{Env: EnvDevelopment, DevHost: "devbox"},
			wantRunner: "http://devbox:8081/runner-03.html",
			wantScript: "http://devbox:8080/jsgist-runner.js",
		},
		{
			name:       "production",
			runner:     RunnerConfig{Env: EnvProduction},
			wantRunner: "https://jsgistrunner.devcomments.org/runner-03.html",
			wantScript: "https://jsgist.org/jsgist-runner.js",
		},
		{
			name:       "explicit script",
			runner:     RunnerConfig{Env: EnvProduction, ScriptURL: "embed:"},
			wantRunner: "https://jsgistrunner.devcomments.org/runner-03.html",
			wantScript: "embed:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.runner.Target()
			assert.Equal(t, tt.wantRunner, target.RunnerURL)
			assert.Equal(t, tt.wantScript, target.ScriptURL)
		})
	}
}

func TestRateLimitConfig(t *testing.T) {
	tests := []struct {
		name        string
		rps         string
		burst       string
		enabled     string
		wantRPS     int
		wantBurst   int
		wantEnabled bool
	}{
		{
			name:        "default values",
			wantRPS:     100,
			wantBurst:   200,
			wantEnabled: true,
		},
		{
			name:        "high limits",
			rps:         "1000",
			burst:       "2000",
			wantRPS:     1000,
			wantBurst:   2000,
			wantEnabled: true,
		},
		{
			name:        "disabled",
			enabled:     "false",
			wantRPS:     100,
			wantBurst:   200,
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.rps != "" {
				t.Setenv("RATE_LIMIT_RPS", tt.rps)
			}
			if tt.burst != "" {
				t.Setenv("RATE_LIMIT_BURST", tt.burst)
			}
			if tt.enabled != "" {
				t.Setenv("RATE_LIMIT_ENABLED", tt.enabled)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantRPS, cfg.RateLimit.RequestsPerSecond)
			assert.Equal(t, tt.wantBurst, cfg.RateLimit.Burst)
			assert.Equal(t, tt.wantEnabled, cfg.RateLimit.Enabled)
		})
	}
}
