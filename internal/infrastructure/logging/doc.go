// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The runner binary logs to stderr through RunnerConfig since its stdout
// carries protocol frames.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.Info("Server starting", zap.String("port", "8080"))
//	ctrl := sandbox.New(b, launcher, sink, target, logger.Component("sandbox"))
package logging
