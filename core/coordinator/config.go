package coordinator

import (
	"fmt"

	"github.com/kilianp07/tunnelctl/core/baseline"
	"github.com/kilianp07/tunnelctl/core/forecast"
	"github.com/kilianp07/tunnelctl/core/physics"
	"github.com/kilianp07/tunnelctl/core/planner"
	"github.com/kilianp07/tunnelctl/core/safety"
)

// Config holds the orchestration settings.
type Config struct {
	// HorizonSteps overrides the forecast and planner horizons when set.
	HorizonSteps int `json:"horizon_steps"`
	// Parallel runs both strategies of a comparison concurrently.
	Parallel bool `json:"parallel"`
}

// Settings bundles the configuration of every stage.
type Settings struct {
	Env            physics.EnvConfig
	Forecast       forecast.Config
	Planner        planner.Config
	MultiSafety    safety.Config
	BaselineSafety safety.Config
	Baseline       baseline.Config
	Coordinator    Config
}

// DefaultSettings returns the plant defaults. The multi-agent governor holds
// the level at 2.5 m after a flush and has no minimum total flow.
func DefaultSettings() Settings {
	return Settings{
		Env:            physics.DefaultEnvConfig(),
		Forecast:       forecast.DefaultConfig(),
		Planner:        planner.DefaultConfig(),
		MultiSafety:    safety.MultiAgentConfig(),
		BaselineSafety: safety.DefaultConfig(),
		Baseline:       baseline.DefaultConfig(),
	}
}

func (s *Settings) normalize() error {
	s.Env.SetDefaults()
	s.Forecast.PriceMinorPerUnit = s.Env.PriceMinorPerUnit
	s.Forecast.SetDefaults()
	s.Planner.SetDefaults()
	if s.Coordinator.HorizonSteps < 0 {
		return fmt.Errorf("coordinator: horizon_steps must be >= 0")
	}
	if h := s.Coordinator.HorizonSteps; h > 0 {
		s.Forecast.HorizonSteps = h
		s.Planner.HorizonSteps = h
	}
	if err := s.Env.Validate(); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if err := s.Forecast.Validate(); err != nil {
		return err
	}
	if err := s.MultiSafety.Validate(); err != nil {
		return fmt.Errorf("multi-agent %w", err)
	}
	if err := s.BaselineSafety.Validate(); err != nil {
		return fmt.Errorf("baseline %w", err)
	}
	return s.Baseline.Validate()
}
