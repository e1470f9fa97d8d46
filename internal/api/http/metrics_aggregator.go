package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/monitoring"
)

// PreviewSnapshot represents a snapshot of the preview's health
type PreviewSnapshot struct {
	Timestamp  time.Time      `json:"timestamp"`
	Compiler   string         `json:"compiler"`
	Frame      string         `json:"frame,omitempty"`
	ObjectURLs host.BlobStats `json:"objectUrls"`
	Console    ConsoleSummary `json:"console"`
	Clients    int            `json:"clients"`
	CDN        string         `json:"cdn,omitempty"`
	Summary    MetricsSummary `json:"summary"`
}

// ConsoleSummary is the console state without its entries
type ConsoleSummary struct {
	Counts     telemetry.Counts `json:"counts"`
	Problems   bool             `json:"problems"`
	Suppressed int              `json:"suppressed"`
	Dropped    int              `json:"dropped"`
	Stale      int64            `json:"staleMessages"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests     int64                  `json:"totalRequests"`
	AverageLatencyMs  float64                `json:"averageLatencyMs"`
	ErrorRate         float64                `json:"errorRate"`
	Renders           int64                  `json:"renders"`
	RenderLatency     monitoring.RenderStats `json:"renderLatency"`
	CompileFailures   int64                  `json:"compileFailures"`
	ActiveConnections int64                  `json:"activeConnections"`
	UptimeSeconds     float64                `json:"uptimeSeconds"`
}

// GetPreviewMetrics returns the preview snapshot as JSON
func (h *Handlers) GetPreviewMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.previewSnapshot())
}

func (h *Handlers) previewSnapshot() PreviewSnapshot {
	console := h.telemetry.Console()
	snap := PreviewSnapshot{
		Timestamp:  time.Now(),
		Compiler:   h.compiler.State().String(),
		ObjectURLs: h.host.Blobs().Stats(),
		Console: ConsoleSummary{
			Counts:     console.Counts(),
			Problems:   console.HasProblems(),
			Suppressed: console.Suppressed(),
			Dropped:    console.Dropped(),
			Stale:      h.telemetry.Stale(),
		},
		Clients: h.hub.Clients(),
		Summary: h.calculateSummary(),
	}
	if f, ok := h.host.Current(); ok {
		snap.Frame = f.Key.String()
	}
	if h.fetcher != nil {
		snap.CDN = h.fetcher.BreakerState().String()
	}
	return snap
}

func (h *Handlers) calculateSummary() MetricsSummary {
	m := h.metrics.Snapshot()
	summary := MetricsSummary{
		TotalRequests:     m.TotalRequests,
		Renders:           m.Renders,
		RenderLatency:     h.metrics.RenderStats(),
		CompileFailures:   m.CompileFailures,
		ActiveConnections: m.ActiveConnections,
		UptimeSeconds:     h.metrics.UptimeSeconds(),
	}
	if m.RequestCount > 0 {
		summary.AverageLatencyMs = m.TotalDuration / float64(m.RequestCount) * 1000
	}
	if m.TotalRequests > 0 {
		summary.ErrorRate = float64(m.TotalErrors) / float64(m.TotalRequests)
	}
	return summary
}

// GetTraces returns recent spans, newest first. ?name=render keeps only
// render spans; ?limit caps the count.
func (h *Handlers) GetTraces(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	spans := h.tracer.Recent(c.Query("name"))
	if len(spans) > limit {
		spans = spans[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"spans": spans})
}
