// Package logging provides structured logging for machinewatch.
//
// The package wraps a process-wide zap logger with convenience functions.
// Components that keep their own logger take a child from Named.
//
// # Log Levels
//
//   - Debug: datagram dumps, per-device upserts
//   - Info: cycles, HTTP requests, lifecycle events
//   - Warn: cache and event publishing failures, failed requests
//   - Error: failed discovery cycles, startup failures
//
// # Configuration
//
// Logging is silent until a level is given, either explicitly or through
// MACHINEWATCH_LOG_LEVEL:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Set MACHINEWATCH_LOG_FORMAT=json for machine-readable output.
package logging
