// Package logging provides structured logging using uber/zap.
//
// This package offers the preview service logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a named *zap.Logger (synth, host, telemetry, ...).
// Relayed console output from preview frames is not written here; it lives
// in the telemetry console and is only mirrored at debug level.
//
// Example Usage:
//
//	logger := logging.NewFromSettings("info", false)
//	log := logger.Component("host")
//	log.Info("Preview mounted", zap.String("frame", key))
package logging
