// Package main is the entry point for the live preview server.
//
// The server turns submitted source (markup, style, script or a component)
// into a sandboxed preview document and serves the host page that mounts it.
//
// Architecture:
//
//	Editor → PUT /source → Session → Normalizer → Planner → Compiler → Synthesizer → Host
//	Host page ← /telemetry (WebSocket) ← frame notices, console entries
//	Host page → /telemetry → frame messages (console relay, scene export)
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Serve on the default port
//	./server -port 8000 -static ./static
//
//	# Watch a directory and preview it as a script playground
//	./server -watch ./playground -profile vanilla-script -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
