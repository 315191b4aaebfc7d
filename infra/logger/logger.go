// Package logger provides the zerolog implementation of the core logger.
package logger

import corelogger "github.com/kilianp07/tunnelctl/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger = corelogger.NopLogger

// Config selects the log level and output format.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Defaults to info.
	Level string `json:"level"`
	// Format is json or console. Empty means console when APP_ENV=dev and
	// json otherwise.
	Format string `json:"format"`
}

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// FromConfig returns a Logger for component configured by cfg.
func FromConfig(component string, cfg Config) (Logger, error) {
	opts := []Option{WithFormat(cfg.Format)}
	if cfg.Level != "" {
		lvl, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLevel(lvl))
	}
	return NewZerologLogger(component, opts...), nil
}
