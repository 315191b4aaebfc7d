package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/infra/history"
)

// Expected holds the bounds a scenario run must respect. Nil bounds are not
// checked.
type Expected struct {
	MinLevel      *float64 `yaml:"min_level_m"`
	MaxLevel      *float64 `yaml:"max_level_m"`
	MaxViolations *int     `yaml:"max_violations"`
	MinEvents     int      `yaml:"min_events"`
}

// Scenario is a regression case: a synthetic history, the strategy to run
// over it and the expected outcome.
type Scenario struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Strategy    model.Strategy   `yaml:"strategy"`
	Steps       int              `yaml:"steps"`
	Horizon     int              `yaml:"horizon_steps"`
	Pumps       []string         `yaml:"pumps,omitempty"`
	History     history.Scenario `yaml:"history"`
	Expected    Expected         `yaml:"expected"`
}

// ActivePumps resolves the pump list. An empty list keeps the whole fleet.
func (sc Scenario) ActivePumps() (map[model.PumpID]bool, error) {
	active := map[model.PumpID]bool{}
	if len(sc.Pumps) == 0 {
		for _, p := range model.AllPumps {
			active[p] = true
		}
		return active, nil
	}
	for _, s := range sc.Pumps {
		id, err := model.ParsePumpID(s)
		if err != nil {
			return nil, err
		}
		active[id] = true
	}
	return active, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	switch sc.Strategy {
	case model.StrategyMultiAgent, model.StrategyBaseline:
	default:
		return nil, fmt.Errorf("scenario %s: unknown strategy %q", sc.Name, sc.Strategy)
	}
	if err := sc.History.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	return &sc, nil
}
