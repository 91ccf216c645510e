package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Sandbox metrics
	RunsTotal      prometheus.Counter
	RunDuration    prometheus.Histogram
	SessionsActive prometheus.Gauge
	StaleMessages  *prometheus.CounterVec
	Messages       *prometheus.CounterVec

	// Editor metrics
	Workspaces prometheus.Gauge
	GistLoads  *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	TotalRuns         int64   `json:"totalRuns"`
	ActiveSessions    int64   `json:"activeSessions"`
	ActiveConnections int64   `json:"activeConnections"`
	StaleMessages     int64   `json:"staleMessages"`
	AvgLatencySeconds float64 `json:"avgLatencySeconds"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector with its own registry, so several
// collectors can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgist_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsgist_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsgist_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsgist_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Sandbox metrics
		RunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jsgist_runs_total",
				Help: "Total number of sandbox sessions started",
			},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jsgist_run_startup_seconds",
				Help:    "Time from session launch to the runner asking for code",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsgist_sessions_active",
				Help: "Number of live sandbox sessions",
			},
		),
		StaleMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgist_stale_messages_total",
				Help: "Messages dropped because they came from a replaced session",
			},
			[]string{"type"},
		),
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgist_protocol_messages_total",
				Help: "Execution protocol messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		// Editor metrics
		Workspaces: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsgist_workspaces",
				Help: "Number of open editor workspaces",
			},
		),
		GistLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgist_gist_loads_total",
				Help: "Gist load attempts by outcome",
			},
			[]string{"status"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsgist_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsgist_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "jsgist_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordRun records a session launch
func (m *Metrics) RecordRun() {
	m.RunsTotal.Inc()
	m.mu.Lock()
	m.snapshot.TotalRuns++
	m.mu.Unlock()
}

// ObserveStartup records how long a runner took to request its code
func (m *Metrics) ObserveStartup(d time.Duration) {
	m.RunDuration.Observe(d.Seconds())
}

// SessionStarted increments the live session gauge
func (m *Metrics) SessionStarted() {
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionEnded decrements the live session gauge
func (m *Metrics) SessionEnded() {
	m.SessionsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// RecordStale records a message dropped from a replaced session
func (m *Metrics) RecordStale(msgType string) {
	m.StaleMessages.WithLabelValues(msgType).Inc()
	m.mu.Lock()
	m.snapshot.StaleMessages++
	m.mu.Unlock()
}

// RecordMessage records a protocol message crossing the sandbox boundary
func (m *Metrics) RecordMessage(direction, msgType string) {
	m.Messages.WithLabelValues(direction, msgType).Inc()
}

// SetWorkspaces sets the number of open workspaces
func (m *Metrics) SetWorkspaces(count int) {
	m.Workspaces.Set(float64(count))
}

// RecordGistLoad records a gist load outcome
func (m *Metrics) RecordGistLoad(status string) {
	m.GistLoads.WithLabelValues(status).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON status endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencySeconds = s.totalDuration / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
