// Package config loads the controller configuration from a YAML or JSON file
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/tunnelctl/core/baseline"
	"github.com/kilianp07/tunnelctl/core/coordinator"
	"github.com/kilianp07/tunnelctl/core/forecast"
	"github.com/kilianp07/tunnelctl/core/physics"
	"github.com/kilianp07/tunnelctl/core/planner"
	"github.com/kilianp07/tunnelctl/core/safety"
	"github.com/kilianp07/tunnelctl/core/telemetry"
	"github.com/kilianp07/tunnelctl/infra/history"
	"github.com/kilianp07/tunnelctl/infra/monitoring"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// sections, e.g. TUNNEL_PLANNER__HORIZON_STEPS=12.
const EnvPrefix = "TUNNEL_"

// SafetyConfig holds one governor configuration per strategy.
type SafetyConfig struct {
	MultiAgent safety.Config `json:"multi_agent"`
	Baseline   safety.Config `json:"baseline"`
}

// Config is the root configuration of the controller.
type Config struct {
	Env         physics.EnvConfig  `json:"env"`
	Pumps       []PumpConfig       `json:"pumps"`
	Forecast    forecast.Config    `json:"forecast"`
	Planner     planner.Config     `json:"planner"`
	Safety      SafetyConfig       `json:"safety"`
	Baseline    baseline.Config    `json:"baseline"`
	Coordinator coordinator.Config `json:"coordinator"`
	History     history.Config     `json:"history"`
	Logging     LoggingConfig      `json:"logging"`
	Telemetry   telemetry.Config   `json:"telemetry"`
	Monitoring  MonitoringConfig   `json:"monitoring"`
}

// MonitoringConfig configures error reporting.
type MonitoringConfig struct {
	Sentry monitoring.SentryConfig `json:"sentry"`
}

// Default returns the configuration used when a key is absent.
func Default() Config {
	s := coordinator.DefaultSettings()
	return Config{
		Env:         s.Env,
		Forecast:    s.Forecast,
		Planner:     s.Planner,
		Safety:      SafetyConfig{MultiAgent: s.MultiSafety, Baseline: s.BaselineSafety},
		Baseline:    s.Baseline,
		Coordinator: s.Coordinator,
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path loads the defaults and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	prefix := strings.ToLower(EnvPrefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), prefix)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := applyPumps(&cfg.Env, cfg.Pumps); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills zero values in every section.
func (c *Config) SetDefaults() {
	c.Env.SetDefaults()
	c.Forecast.SetDefaults()
	c.Planner.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if err := c.Forecast.Validate(); err != nil {
		return err
	}
	if err := c.Planner.Validate(); err != nil {
		return err
	}
	if err := c.Safety.MultiAgent.Validate(); err != nil {
		return fmt.Errorf("multi_agent %w", err)
	}
	if err := c.Safety.Baseline.Validate(); err != nil {
		return fmt.Errorf("baseline %w", err)
	}
	if err := c.Baseline.Validate(); err != nil {
		return err
	}
	if c.Coordinator.HorizonSteps < 0 {
		return fmt.Errorf("coordinator: horizon_steps must be >= 0")
	}
	return c.Logging.Validate()
}

// Settings returns the coordinator settings.
func (c Config) Settings() coordinator.Settings {
	return coordinator.Settings{
		Env:            c.Env,
		Forecast:       c.Forecast,
		Planner:        c.Planner,
		MultiSafety:    c.Safety.MultiAgent,
		BaselineSafety: c.Safety.Baseline,
		Baseline:       c.Baseline,
		Coordinator:    c.Coordinator,
	}
}
