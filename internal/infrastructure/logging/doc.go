// Package logging provides structured logging for HomeCore.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", 8080)
//	logger.With("component", "scheduler").Error("fire failed", "error", err)
//
// Never log JWT secrets, broker passwords or bearer tokens.
package logging
