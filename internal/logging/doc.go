// Package logging provides structured logging for the relay and the wizard.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used across the repository.
//
// # Log Levels
//
//   - Debug: remote response bodies, poll results
//   - Info: requests, responses, remote calls, state changes
//   - Warn: poll failures, rejected requests
//   - Error: startup failures, remote transport errors
//
// # Silent By Default
//
// CLI commands call InitializeFromEnv, which installs a nop logger unless
// EVOCONNECT_LOG_LEVEL is set. The relay passes its --log-level flag to
// Initialize instead. EVOCONNECT_LOG_FILE sends output to a file, which is
// what you want while the full-screen wizard owns the terminal:
//
//	EVOCONNECT_LOG_LEVEL=debug EVOCONNECT_LOG_FILE=/tmp/evoconnect.log evoconnect
//
// # Structured Logging
//
//	logging.Info("Instance created",
//	    zap.String("instance", "atendimento01"),
//	    zap.Int("status", 201),
//	)
//
// All functions are safe for concurrent use.
package logging
