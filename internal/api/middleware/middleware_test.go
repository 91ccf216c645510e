package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/jsgist/internal/shared/id"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"wildcard GET", DefaultCORSConfig(), "GET", "http://localhost:3000", http.StatusOK, "*"},
		{"wildcard preflight", DefaultCORSConfig(), "OPTIONS", "http://localhost:3000", http.StatusNoContent, "*"},
		{"no origin header", DefaultCORSConfig(), "GET", "", http.StatusOK, ""},
		{"listed origin", CORSConfig{AllowOrigins: []string{"https://jsgist.org"}}, "GET", "https://jsgist.org", http.StatusOK, "https://jsgist.org"},
		{"unlisted origin", CORSConfig{AllowOrigins: []string{"https://jsgist.org"}}, "GET", "https://evil.example", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.Use(CORS(tt.cfg))
			router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	router := setupTestRouter()
	router.Use(RateLimit(limiter))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, get("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, get("10.0.0.1").Code)

	w := get("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, get("10.0.0.2").Code)
	assert.Equal(t, 2, limiter.Len())
}

func TestLimiterForgetsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	limiter.now = func() time.Time { return now }

	ok, _ := limiter.Reserve("a")
	assert.True(t, ok)
	ok, wait := limiter.Reserve("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	now = now.Add(2 * time.Minute)
	ok, _ = limiter.Reserve("b")
	assert.True(t, ok)
	assert.Equal(t, 1, limiter.Len())
}

func TestRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestID())
	var seen string
	router.GET("/test", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.True(t, id.Valid(seen, id.RequestPrefix))
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	incoming := id.NewRequestID().String()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, incoming)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, incoming, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, "injected\nvalue")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, "injected\nvalue", w.Header().Get(RequestIDHeader))
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := setupTestRouter()
	router.Use(RequestID(), Logger(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/bad", nil))

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "Request served", entries[0].Message)
	assert.Equal(t, "Request rejected", entries[1].Message)
	assert.Equal(t, "/bad", entries[1].ContextMap()["path"])
	assert.NotEmpty(t, entries[1].ContextMap()["request_id"])
}
