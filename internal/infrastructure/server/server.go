package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/preview/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/preview/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/preview/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/compiler"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/plan"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/telemetry"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/preview/internal/watch"
)

// Server wraps the HTTP server and the preview pipeline
type Server struct {
	router   *gin.Engine
	http     *http.Server
	session  *session.Session
	host     *host.Host
	compiler *compiler.Bridge
	hub      *ws.Hub
	watcher  *watch.Watcher
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Development)
	}
	origin := cfg.Origin()

	logger.Info("Initializing preview server",
		zap.String("port", cfg.Server.Port),
		zap.String("origin", origin),
		zap.String("static_root", cfg.Preview.StaticRoot),
		zap.String("compiler", cfg.Compiler.Engine),
	)

	catalog, err := libs.LoadCatalog(cfg.Preview.LibsCatalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load library catalog: %w", err)
	}
	resolver := libs.NewResolver(catalog, origin)
	fetcher := libs.NewFetcher(logger.Component("cdn"))
	assets := libs.NewAssets(cfg.Preview.StaticRoot, catalog, fetcher, logger.Component("assets"))

	engine, err := compiler.NewEngine(cfg.Compiler.Engine, func(ctx context.Context) ([]byte, error) {
		body, _, _, err := assets.Open(ctx, cfg.Compiler.Script)
		return body, err
	})
	if err != nil {
		return nil, err
	}
	compilerBridge := compiler.NewBridge(engine, logger.Component("compiler"))

	// Initialize metrics and tracing
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("preview", logger.Component("tracing"))

	synthesizer, err := synth.New(resolver, synth.Options{
		GateTimeout:  cfg.Preview.GateTimeout,
		PollInterval: cfg.Preview.PollInterval,
		PollRetries:  cfg.Preview.PollRetries,
	}, logger.Component("synth"))
	if err != nil {
		metrics.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to build synthesizer: %w", err)
	}

	previewHost := host.New(host.NewBlobStore(), host.Options{
		Origin:   origin,
		Strategy: host.CapabilityStrategy{InlineLimit: cfg.Preview.InlineLimit},
	}, logger.Component("host"))

	console := telemetry.NewConsole(cfg.Telemetry.Capacity)
	var bridge *telemetry.Bridge
	hub := ws.NewHub(ws.Options{
		Receive: func(frame id.FrameID, raw []byte) error { return bridge.Receive(frame, raw) },
		Key:     previewHost.HandleKey,
		Current: previewHost.Current,
		View:    previewHost.Zoom,
		Metrics: metrics,
		Logger:  logger.Component("ws"),
	})
	exchange := telemetry.NewExchange(hub, cfg.Telemetry.ExportTimeout)
	bridge = telemetry.NewBridge(console, exchange, previewHost.IsCurrent, logger.Component("telemetry"))

	previewHost.OnMount(hub.PublishFrame)
	console.Subscribe(func(e telemetry.Entry) {
		metrics.RecordEntry(e)
		notice := ws.ConsoleNotice{Entry: e, Counts: console.Counts(), Problems: console.HasProblems()}
		if b, ok := console.Banner(); ok {
			notice.Banner = &b
		}
		hub.PublishConsole(notice)
	})
	metrics.WatchFuncs(map[string]func() float64{
		"object_urls_live":       func() float64 { return float64(previewHost.Blobs().Live()) },
		"console_suppressed":     func() float64 { return float64(console.Suppressed()) },
		"frame_messages_stale":   func() float64 { return float64(bridge.Stale()) },
		"scene_exports_inflight": func() float64 { return boolGauge(exchange.Pending()) },
	})

	deps := session.Deps{
		Planner:   plan.New(resolver, logger.Component("plan")),
		Compiler:  compilerBridge,
		Synth:     synthesizer,
		Host:      previewHost,
		Telemetry: bridge,
		Observer:  metrics,
		Tracer:    tracer,
	}
	if cfg.Preview.Preflight {
		deps.Preflight = session.NewPreflight(resolver, 2*time.Second, logger.Component("preflight"))
	}
	previewSession := session.New(deps, session.Options{Debounce: cfg.Preview.Debounce}, logger.Component("session"))

	var watcher *watch.Watcher
	if cfg.Preview.WatchDir != "" {
		profile, err := source.ParseProfile(cfg.Preview.WatchProfile)
		if err == nil {
			watcher, err = watch.New(cfg.Preview.WatchDir, watch.Options{Profile: profile},
				func(b source.Bundle, p source.Profile) { previewSession.Update(b, p, "") },
				logger.Component("watch"))
		}
		if err != nil {
			previewSession.Close()
			metrics.Close()
			tracer.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", cfg.Preview.WatchDir, err)
		}
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.PreviewCORSConfig()))
	libsRoot := strings.TrimRight(catalog.Root, "/")
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			Exempt:            []string{libsRoot + "/", "/blob/", "/telemetry"},
		}))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Session:   previewSession,
		Host:      previewHost,
		Telemetry: bridge,
		Compiler:  compilerBridge,
		Hub:       hub,
		Metrics:   metrics,
		Fetcher:   fetcher,
		Levels:    logger,
		Tracer:    tracer,
		Logger:    logger.Component("http"),
	})
	handlers.Register(router)

	// Library builds, served to sandboxed frames
	router.GET(libsRoot+"/*path", gin.WrapH(gzhttp.GzipHandler(http.StripPrefix(libsRoot, assets))))
	router.HEAD(libsRoot+"/*path", gin.WrapH(gzhttp.GzipHandler(http.StripPrefix(libsRoot, assets))))

	// Prometheus endpoint
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		session:  previewSession,
		host:     previewHost,
		compiler: compilerBridge,
		hub:      hub,
		watcher:  watcher,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Session returns the live preview session.
func (s *Server) Session() *session.Session { return s.session }

// Start begins loading the compiler and watching sources. Run calls it.
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.compiler.Ensure(ctx)

	if s.watcher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Source watcher stopped", zap.Error(err))
			}
		}()
		s.logger.Info("Watching sources",
			zap.String("dir", s.config.Preview.WatchDir),
			zap.String("profile", s.config.Preview.WatchProfile))
	}
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve starts the pipeline and serves HTTP on ln
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Start(ctx)
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()
	s.logger.Info("Starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.String("origin", s.config.Origin()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.logger.Info("Shutting down server...")

		s.mu.Lock()
		srv, cancel := s.http, s.cancel
		s.mu.Unlock()

		if srv != nil {
			if serr := srv.Shutdown(ctx); serr != nil {
				s.logger.Error("Failed to shut down HTTP server", zap.Error(serr))
				err = fmt.Errorf("failed to shut down HTTP server: %w", serr)
			}
		}
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()

		s.session.Close()
		s.hub.PublishTeardown()
		s.hub.Close()
		s.tracer.Close()
		s.metrics.Close()

		// Sync logger before exit
		_ = s.logger.Sync()
	})
	return err
}
