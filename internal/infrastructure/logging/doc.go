// Package logging provides structured logging for the bridge.
//
// It wraps log/slog with default fields (service, version), level filtering,
// and redaction of credential-bearing attributes such as "password" and
// "token".
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("engine").Info("pushed to hub", "item", item)
package logging
