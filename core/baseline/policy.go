// Package baseline implements the reactive threshold controller used as the
// comparison strategy.
package baseline

import (
	"fmt"
	"math"

	"github.com/kilianp07/tunnelctl/core/model"
)

// Config holds the threshold policy parameters.
type Config struct {
	HighLevel    float64 `json:"high_level_m"`
	LowLevel     float64 `json:"low_level_m"`
	OptimalLevel float64 `json:"optimal_level_m"`
	PumpOnFlow   float64 `json:"pump_on_flow_m3h"`
	// Gain is the extra flow per metre above the optimal level.
	Gain float64 `json:"gain_m3h_per_m"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{HighLevel: 6.5, LowLevel: 2.0, OptimalLevel: 3.5, PumpOnFlow: 350, Gain: 200}
}

// Validate checks the thresholds are ordered.
func (c Config) Validate() error {
	if !(c.LowLevel < c.HighLevel) {
		return fmt.Errorf("baseline: low_level_m %.2f must be below high_level_m %.2f", c.LowLevel, c.HighLevel)
	}
	if c.PumpOnFlow < 0 || c.Gain < 0 {
		return fmt.Errorf("baseline: flows must be >= 0")
	}
	return nil
}

// Policy is a stateless threshold controller.
type Policy struct {
	cfg Config
}

// New returns a policy.
func New(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg}, nil
}

// Decide returns the commands for state: every pump at PumpOnFlow at or above
// the high level, nothing at or below the low level, and otherwise the inflow
// corrected proportionally to the distance from the optimal level, split
// evenly over the fleet.
func (p *Policy) Decide(state model.ReservoirState) model.Flows {
	var out model.Flows
	switch {
	case state.Level >= p.cfg.HighLevel:
		for _, id := range model.AllPumps {
			out[id] = p.cfg.PumpOnFlow
		}
	case state.Level <= p.cfg.LowLevel:
	default:
		total := math.Max(state.Inflow+(state.Level-p.cfg.OptimalLevel)*p.cfg.Gain, 0)
		for _, id := range model.AllPumps {
			out[id] = total / model.NumPumps
		}
	}
	return out
}
