// Package config provides 12-factor configuration management for the preview service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, public origin)
//   - Preview: static library root, debounce, readiness gate timing, inline size ceiling
//   - Compiler: component transpiler engine selection
//   - Telemetry: console capacity and export timeout
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting for the telemetry ingress
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Serving previews on %s\n", cfg.Origin())
//
// Environment Variables:
//   - PORT, HOST, PUBLIC_ORIGIN
//   - STATIC_ROOT, LIBS_CATALOG, DEBOUNCE, GATE_TIMEOUT, POLL_INTERVAL, POLL_RETRIES, INLINE_LIMIT, PREFLIGHT, WATCH_DIR
//   - COMPILER_ENGINE, COMPILER_SCRIPT
//   - LOG_CAPACITY, EXPORT_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
