package config

import (
	"fmt"

	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/physics"
)

// PumpConfig overrides the rated limits of one pump. A zero capacity means
// the capacity is derived from the pump's history.
type PumpConfig struct {
	ID       string  `json:"id"`
	Capacity float64 `json:"capacity_m3h"`
	MinFlow  float64 `json:"min_flow_m3h"`
}

// applyPumps writes the overrides into env. Every id must name a pump of the
// fleet and appear at most once.
func applyPumps(env *physics.EnvConfig, pumps []PumpConfig) error {
	seen := map[model.PumpID]bool{}
	for _, pc := range pumps {
		id, err := model.ParsePumpID(pc.ID)
		if err != nil {
			return fmt.Errorf("pumps: %w", err)
		}
		if seen[id] {
			return fmt.Errorf("pumps: duplicate pump %s", id)
		}
		seen[id] = true
		env.Pumps[id] = physics.PumpSpec{Capacity: pc.Capacity, MinFlow: pc.MinFlow}
	}
	return nil
}
