package config

import (
	"fmt"
	"strings"

	"github.com/kilianp07/tunnelctl/infra/logger"
)

// LoggingConfig defines the log level and output format.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level"`
	// Format is "json" or "console". Empty lets APP_ENV decide.
	Format string `json:"format"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level and format names.
func (c LoggingConfig) Validate() error {
	if _, err := logger.ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("logging: unknown format %s", c.Format)
	}
}

// Logger returns a logger for component.
func (c LoggingConfig) Logger(component string) (logger.Logger, error) {
	return logger.FromConfig(component, logger.Config{Level: c.Level, Format: c.Format})
}
