// Package obs constructs the single shared zap.Logger a crawl run passes
// down to every component that logs (metadata recorders, the circuit
// breaker registry, the feature pipeline). The process builds one logger
// instead of one per worker.
package obs

import "go.uber.org/zap"

// Config tunes the shared logger's verbosity and encoding.
type Config struct {
	// Development selects zap's development preset (console encoding,
	// debug level, stack traces on warn) instead of the production preset
	// (JSON encoding, info level).
	Development bool
}

// NewLogger builds the process-wide logger per cfg, falling back to a
// no-op logger if construction fails.
func NewLogger(cfg Config) *zap.Logger {
	var logger *zap.Logger
	var err error
	if cfg.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
