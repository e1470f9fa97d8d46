package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
)

// parseLevels reads a comma separated level filter.
func parseLevels(raw string) ([]telemetry.Level, error) {
	if raw == "" {
		return nil, nil
	}
	var levels []telemetry.Level
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l := telemetry.Level(strings.ToLower(part))
		known := false
		for _, k := range telemetry.Levels {
			if l == k {
				known = true
				break
			}
		}
		if !known {
			return nil, errors.New("unknown level: " + part)
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// GetLogs returns the preview console, optionally filtered by level
func (h *Handlers) GetLogs(c *gin.Context) {
	levels, err := parseLevels(c.Query("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	console := h.telemetry.Console()
	resp := gin.H{
		"entries":    console.Entries(levels...),
		"counts":     console.Counts(),
		"problems":   console.HasProblems(),
		"suppressed": console.Suppressed(),
		"dropped":    console.Dropped(),
	}
	if b, ok := console.Banner(); ok {
		resp["banner"] = b
	}
	c.JSON(http.StatusOK, resp)
}

// ClearLogs empties the console
func (h *Handlers) ClearLogs(c *gin.Context) {
	h.telemetry.Console().Clear()
	c.Status(http.StatusNoContent)
}

// GetCounts returns per-level counts
func (h *Handlers) GetCounts(c *gin.Context) {
	console := h.telemetry.Console()
	c.JSON(http.StatusOK, gin.H{
		"counts":   console.Counts(),
		"problems": console.HasProblems(),
	})
}

// DismissBanner hides the error banner until the next error
func (h *Handlers) DismissBanner(c *gin.Context) {
	h.telemetry.Console().DismissBanner()
	c.Status(http.StatusNoContent)
}

// Export asks the mounted frame for its scene and waits for the reply
func (h *Handlers) Export(c *gin.Context) {
	data, err := h.telemetry.Exchange().Request(c.Request.Context())

	var failure *telemetry.ExportFailure
	switch {
	case err == nil:
		h.metrics.RecordExport("ok")
		c.JSON(http.StatusOK, gin.H{"data": json.RawMessage(data)})
	case errors.Is(err, telemetry.ErrExportPending):
		h.metrics.RecordExport("busy")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, telemetry.ErrExportTimeout):
		h.metrics.RecordExport("timeout")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.As(err, &failure):
		h.metrics.RecordExport("failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": failure.Message})
	case errors.Is(err, ws.ErrNoClients), errors.Is(err, host.ErrNothingMounted):
		h.metrics.RecordExport("unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.metrics.RecordExport("error")
		h.logger.Warn("Scene export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type levelRequest struct {
	Level string `json:"level" binding:"required"`
}

// GetLogLevel reports the service log level
func (h *Handlers) GetLogLevel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"level": h.levels.Level()})
}

// SetLogLevel changes the service log level without a restart
func (h *Handlers) SetLogLevel(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.levels.SetLevel(strings.ToLower(req.Level)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("Log level changed", zap.String("level", h.levels.Level()))
	c.JSON(http.StatusOK, gin.H{"level": h.levels.Level()})
}
