package http

import (
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/utils"
)

//go:embed assets/host.html
var hostPage []byte

// Deps are the preview components the handlers expose.
type Deps struct {
	Session   *session.Session
	Host      *host.Host
	Telemetry *telemetry.Bridge
	Compiler  *compiler.Bridge
	Hub       *ws.Hub
	Metrics   *monitoring.Metrics
	// Fetcher is optional; its breaker state is reported by /metrics/json.
	Fetcher *libs.Fetcher
	// Levels and Tracer are optional; their routes are skipped when nil.
	Levels LevelControl
	Tracer *tracing.Tracer
	Logger *zap.Logger
}

// LevelControl adjusts the service log level at runtime.
type LevelControl interface {
	Level() string
	SetLevel(name string) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	session   *session.Session
	host      *host.Host
	telemetry *telemetry.Bridge
	compiler  *compiler.Bridge
	hub       *ws.Hub
	metrics   *monitoring.Metrics
	fetcher   *libs.Fetcher
	levels    LevelControl
	tracer    *tracing.Tracer
	logger    *zap.Logger

	blobHandler http.Handler
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{
		session:   deps.Session,
		host:      deps.Host,
		telemetry: deps.Telemetry,
		compiler:  deps.Compiler,
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		fetcher:   deps.Fetcher,
		levels:    deps.Levels,
		tracer:    deps.Tracer,
		logger:    logger,
	}
	h.blobHandler = newBlobHandler(h)
	return h
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.PUT("/source", h.UpdateSource)
	r.POST("/render", h.Render)

	r.GET("/frame", h.GetFrame)
	r.POST("/frame/reload", h.Reload)
	r.POST("/frame/zoom", h.SetZoom)
	r.POST("/frame/fullscreen", h.SetFullScreen)
	r.POST("/frame/key", h.HandleKey)
	r.GET("/blob/:id", h.Blob)

	r.GET("/logs", h.GetLogs)
	r.DELETE("/logs", h.ClearLogs)
	r.GET("/logs/counts", h.GetCounts)
	r.DELETE("/logs/banner", h.DismissBanner)
	r.POST("/export", h.Export)

	r.GET("/metrics/json", h.GetPreviewMetrics)
	r.GET("/telemetry", h.hub.HandleConnection)

	if h.levels != nil {
		r.GET("/log-level", h.GetLogLevel)
		r.PUT("/log-level", h.SetLogLevel)
	}
	if h.tracer != nil {
		r.GET("/traces", h.GetTraces)
	}
}

// Root serves the host page
func (h *Handlers) Root(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/html; charset=utf-8", hostPage)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	frame := ""
	if f, ok := h.host.Current(); ok {
		frame = f.Key.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"session":    h.session.ID(),
		"compiler":   h.compiler.State().String(),
		"frame":      frame,
		"clients":    h.hub.Clients(),
		"objectUrls": h.host.Blobs().Live(),
	})
}

// SourceRequest is the body of PUT /source and POST /render.
type SourceRequest struct {
	Markup        string `json:"markup"`
	Style         string `json:"style"`
	Script        string `json:"script"`
	Component     string `json:"component"`
	Complete      bool   `json:"complete"`
	Profile       string `json:"profile" binding:"required"`
	ComponentName string `json:"componentName"`
}

func (req SourceRequest) validate() (source.Bundle, source.Profile, error) {
	p, err := source.ParseProfile(req.Profile)
	if err != nil {
		return source.Bundle{}, "", err
	}
	if err := utils.ValidateFacets(map[string]string{
		"markup":    req.Markup,
		"style":     req.Style,
		"script":    req.Script,
		"component": req.Component,
	}); err != nil {
		return source.Bundle{}, "", err
	}
	if req.ComponentName != "" {
		if err := utils.ValidateComponentName(req.ComponentName); err != nil {
			return source.Bundle{}, "", err
		}
	}
	b := source.Bundle{
		Markup:    req.Markup,
		Style:     req.Style,
		Script:    req.Script,
		Component: req.Component,
		Complete:  req.Complete,
	}
	return b, p, nil
}

// UpdateSource records an edit; the render follows once edits pause.
func (h *Handlers) UpdateSource(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, p, err := req.validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.session.Update(b, p, req.ComponentName)
	c.JSON(http.StatusAccepted, gin.H{
		"session": h.session.ID(),
		"profile": p,
	})
}

// Render renders immediately. With a body the source is replaced first;
// without one the latest submitted source is rendered and any debounced
// render is cancelled.
func (h *Handlers) Render(c *gin.Context) {
	var (
		res session.Result
		err error
	)
	if c.Request.ContentLength != 0 {
		var req SourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		b, p, verr := req.validate()
		if verr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		res, err = h.session.Submit(c.Request.Context(), b, p, req.ComponentName)
	} else {
		res, err = h.session.Flush(c.Request.Context())
	}

	switch {
	case errors.Is(err, session.ErrNoSource):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, renderResponse(res, c.Query("document") == "true"))
}

func renderResponse(res session.Result, withDocument bool) gin.H {
	out := gin.H{
		"frame":        frameResponse(res.Frame, withDocument),
		"plan":         res.Plan,
		"compileState": res.CompileState.String(),
		"durationMs":   float64(res.Duration) / float64(time.Millisecond),
	}
	if len(res.Warnings) > 0 {
		out["warnings"] = res.Warnings
	}
	if res.CompileError != "" {
		out["compileError"] = res.CompileError
	}
	if len(res.Preflight) > 0 {
		out["preflight"] = res.Preflight
	}
	return out
}

func frameResponse(f host.Frame, withDocument bool) gin.H {
	out := gin.H{
		"key":        f.Key,
		"profile":    f.Profile,
		"kind":       f.Document.Kind,
		"delivery":   f.Delivery,
		"zoom":       f.Zoom,
		"fullScreen": f.FullScreen,
		"mountedAt":  f.MountedAt,
	}
	if f.Document.State != "" {
		out["state"] = f.Document.State
	}
	if withDocument {
		out["html"] = f.Document.HTML
	}
	return out
}

