package monitoring

import (
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
)

const namespace = "preview"

// renderWindow bounds the recent render durations kept for RenderStats.
const renderWindow = 256

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pipeline metrics
	Syntheses         *prometheus.CounterVec
	SynthesisDuration *prometheus.HistogramVec
	CompileResults    *prometheus.CounterVec
	CompilerReadiness prometheus.Gauge

	// Telemetry metrics
	LogEntries    *prometheus.CounterVec
	ExportResults *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	renders  []float64
	next     int

	mu   sync.RWMutex
	stop chan struct{}
	once sync.Once
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	Renders           int64   `json:"renders"`
	CompileFailures   int64   `json:"compileFailures"`
	ActiveConnections int64   `json:"activeConnections"`
	TotalDuration     float64 `json:"-"`
	RequestCount      int64   `json:"-"`
}

// RenderStats summarizes recent render durations in milliseconds.
type RenderStats struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"meanMs"`
	P50Ms   float64 `json:"p50Ms"`
	P95Ms   float64 `json:"p95Ms"`
	MaxMs   float64 `json:"maxMs"`
}

// NewMetrics creates a metrics collector with its own registry, so several
// collectors can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		stop:      make(chan struct{}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Pipeline metrics
		Syntheses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syntheses_total",
				Help:      "Preview documents synthesized and mounted",
			},
			[]string{"profile", "kind"},
		),
		SynthesisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Time from snapshot to mounted frame",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"profile"},
		),
		CompileResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_results_total",
				Help:      "Component compilation outcomes",
			},
			[]string{"result"},
		),
		CompilerReadiness: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "compiler_state",
				Help:      "Transpiler readiness (0 uninitialized, 1 loading, 2 ready, 3 load failed)",
			},
		),

		// Telemetry metrics
		LogEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_entries_total",
				Help:      "Console entries accepted",
			},
			[]string{"level", "origin"},
		),
		ExportResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scene_exports_total",
				Help:      "Scene export requests by result",
			},
			[]string{"result"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of connected host pages",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "uptime_seconds",
				Help:      "Service uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// Close stops the uptime updater.
func (m *Metrics) Close() {
	m.once.Do(func() { close(m.stop) })
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// Rendered records one mounted preview.
func (m *Metrics) Rendered(profile source.Profile, kind synth.Kind, d time.Duration) {
	m.Syntheses.WithLabelValues(string(profile), string(kind)).Inc()
	m.SynthesisDuration.WithLabelValues(string(profile)).Observe(d.Seconds())
	m.mu.Lock()
	m.snapshot.Renders++
	ms := float64(d) / float64(time.Millisecond)
	if len(m.renders) < renderWindow {
		m.renders = append(m.renders, ms)
	} else {
		m.renders[m.next] = ms
		m.next = (m.next + 1) % renderWindow
	}
	m.mu.Unlock()
}

// RenderStats computes quantiles over the most recent renders.
func (m *Metrics) RenderStats() RenderStats {
	m.mu.RLock()
	sorted := append([]float64(nil), m.renders...)
	m.mu.RUnlock()
	if len(sorted) == 0 {
		return RenderStats{}
	}
	sort.Float64s(sorted)
	return RenderStats{
		Samples: len(sorted),
		MeanMs:  stat.Mean(sorted, nil),
		P50Ms:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95Ms:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		MaxMs:   sorted[len(sorted)-1],
	}
}

// Compiled records a compilation outcome.
func (m *Metrics) Compiled(o compiler.Outcome) {
	result := "ok"
	switch {
	case o.Artifact != nil && o.Err == nil:
	case errors.Is(o.Err, compiler.ErrNotReady):
		result = "pending"
	case o.Failed():
		result = "failed"
		m.mu.Lock()
		m.snapshot.CompileFailures++
		m.mu.Unlock()
	case o.Artifact == nil:
		result = "empty"
	}
	m.CompileResults.WithLabelValues(result).Inc()
}

// CompilerState records a transpiler state transition.
func (m *Metrics) CompilerState(s compiler.State) {
	m.CompilerReadiness.Set(float64(s))
}

// RecordEntry counts one accepted console entry.
func (m *Metrics) RecordEntry(e telemetry.Entry) {
	m.LogEntries.WithLabelValues(string(e.Level), string(e.Origin)).Inc()
}

// RecordExport counts a scene export result.
func (m *Metrics) RecordExport(result string) {
	m.ExportResults.WithLabelValues(result).Inc()
}

// WatchFuncs exports values owned elsewhere as gauges sampled at scrape time.
func (m *Metrics) WatchFuncs(funcs map[string]func() float64) {
	for name, fn := range funcs {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: name},
			fn,
		))
	}
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

// Snapshot returns current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns time since the collector was created.
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
