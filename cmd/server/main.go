package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/server"
)

func main() {
	// Load configuration from environment
	cfg := config.LoadOrDefault()

	// Parse flags (override env vars)
	port := flag.String("port", cfg.Server.Port, "Server port")
	host := flag.String("host", cfg.Server.Host, "Listen address")
	origin := flag.String("origin", cfg.Server.PublicOrigin, "Public origin library URLs resolve against")
	static := flag.String("static", cfg.Preview.StaticRoot, "Directory holding library builds")
	catalog := flag.String("catalog", cfg.Preview.LibsCatalog, "Library catalog file (empty uses the built-in one)")
	engine := flag.String("compiler", cfg.Compiler.Engine, "Component compiler engine (esbuild or standalone)")
	watch := flag.String("watch", cfg.Preview.WatchDir, "Directory to watch for source changes")
	profile := flag.String("profile", cfg.Preview.WatchProfile, "Preview profile for watched sources")
	preflight := flag.Bool("preflight", cfg.Preview.Preflight, "Mount compiled components headlessly to catch runtime errors")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (verbose logging)")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Server.Host = *host
	cfg.Server.PublicOrigin = *origin
	cfg.Preview.StaticRoot = *static
	cfg.Preview.LibsCatalog = *catalog
	cfg.Compiler.Engine = *engine
	cfg.Preview.WatchDir = *watch
	cfg.Preview.WatchProfile = *profile
	cfg.Preview.Preflight = *preflight
	cfg.Logging.Development = *dev
	if *dev {
		cfg.Logging.Level = "debug"
	}

	logger := logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Development)
	logger.Info("Live preview server",
		zap.String("version", "1.0.0"),
		zap.String("origin", cfg.Origin()))

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Close(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}
}
