package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Preview   PreviewConfig
	Compiler  CompilerConfig
	Telemetry TelemetryConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// PublicOrigin is the absolute origin library URLs are resolved against.
	// Empty derives it from Host and Port.
	PublicOrigin string `envconfig:"PUBLIC_ORIGIN" default:""`
}

// PreviewConfig holds synthesis and delivery settings.
type PreviewConfig struct {
	StaticRoot   string        `envconfig:"STATIC_ROOT" default:"./static"`
	LibsCatalog  string        `envconfig:"LIBS_CATALOG" default:""`
	Debounce     time.Duration `envconfig:"DEBOUNCE" default:"500ms"`
	GateTimeout  time.Duration `envconfig:"GATE_TIMEOUT" default:"8s"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"50ms"`
	PollRetries  int           `envconfig:"POLL_RETRIES" default:"100"`
	InlineLimit  int           `envconfig:"INLINE_LIMIT" default:"1048576"`
	Preflight    bool          `envconfig:"PREFLIGHT" default:"true"`
	WatchDir     string        `envconfig:"WATCH_DIR" default:""`
	WatchProfile string        `envconfig:"WATCH_PROFILE" default:"plain-markup"`
}

// CompilerConfig selects the component transpiler engine.
type CompilerConfig struct {
	Engine string `envconfig:"COMPILER_ENGINE" default:"esbuild"`
	// Script is the standalone compiler script evaluated by the "standalone"
	// engine, relative to the static root.
	Script string `envconfig:"COMPILER_SCRIPT" default:"babel/babel.min.js"`
}

// TelemetryConfig holds console relay settings.
type TelemetryConfig struct {
	// Capacity bounds the console; 0 keeps every entry until cleared.
	Capacity      int           `envconfig:"LOG_CAPACITY" default:"0"`
	ExportTimeout time.Duration `envconfig:"EXPORT_TIMEOUT" default:"5s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Preview: PreviewConfig{
			StaticRoot:   "./static",
			Debounce:     500 * time.Millisecond,
			GateTimeout:  8 * time.Second,
			PollInterval: 50 * time.Millisecond,
			PollRetries:  100,
			InlineLimit:  1 << 20,
			Preflight:    true,
			WatchProfile: "plain-markup",
		},
		Compiler: CompilerConfig{
			Engine: "esbuild",
			Script: "babel/babel.min.js",
		},
		Telemetry: TelemetryConfig{
			Capacity:      0,
			ExportTimeout: 5 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Origin returns the public origin, deriving one from the listen address
// when none is configured.
func (c *Config) Origin() string {
	if c.Server.PublicOrigin != "" {
		return c.Server.PublicOrigin
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + host + ":" + c.Server.Port
}
