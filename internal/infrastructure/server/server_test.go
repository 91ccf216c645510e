package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/jsgist/internal/api/middleware"
	"github.com/GriffinCanCode/jsgist/internal/bus"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jsgist/internal/transport/inproc"
	"github.com/GriffinCanCode/jsgist/internal/transport/process"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = config.Duration(time.Second)
	cfg.Logging.Level = "error"
	cfg.Logging.Development = true
	cfg.Runner.ScriptURL = "embed:"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestRoutesWired(t *testing.T) {
	srv := newTestServer(t, testConfig())

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/jsgist-runner.js", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/metrics/json", http.StatusOK},
		{http.MethodPost, "/workspaces", http.StatusCreated},
		{http.MethodGet, "/workspaces", http.StatusOK},
		{http.MethodGet, "/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
	assert.Equal(t, 1, srv.Manager().Count())
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://editor.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitApplied(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	srv := newTestServer(t, cfg)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLauncherFor(t *testing.T) {
	logger := logging.NewNop()
	b := bus.New(nil)

	cfg := testConfig()
	_, ok := launcherFor(cfg, logger)(b).(*inproc.Launcher)
	assert.True(t, ok)

	cfg.Runner.Mode = config.ModeProcess
	_, ok = launcherFor(cfg, logger)(b).(*process.Launcher)
	assert.True(t, ok)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewLoggerFollowsConfig(t *testing.T) {
	dev, err := newLogger(config.LogConfig{Development: true})
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod, err := newLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, prod.Core().Enabled(zapcore.WarnLevel))
}
