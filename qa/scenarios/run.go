package scenarios

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tunnelctl/core/coordinator"
	corehistory "github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/physics"
	"github.com/kilianp07/tunnelctl/core/solver"
)

// RunScenario replays sc and checks the run against its expectations and the
// governed command invariants.
func RunScenario(t *testing.T, sc *Scenario) coordinator.Run {
	t.Helper()
	profile, err := sc.History.Profile()
	require.NoError(t, err)
	data, err := corehistory.Synthetic(profile)
	require.NoError(t, err)

	active, err := sc.ActivePumps()
	require.NoError(t, err)
	s := coordinator.DefaultSettings()
	for _, p := range model.AllPumps {
		if !active[p] {
			s.Env.Pumps[p] = physics.PumpSpec{}
		}
	}
	s.Coordinator.HorizonSteps = sc.Horizon

	c, err := coordinator.New(data, s, coordinator.Deps{})
	require.NoError(t, err)
	var run coordinator.Run
	if sc.Strategy == model.StrategyBaseline {
		run, err = c.RunBaseline(context.Background(), sc.Steps, data.Start())
	} else {
		run, err = c.RunMultiAgent(context.Background(), sc.Steps, data.Start())
	}
	require.NoError(t, err)
	require.Len(t, run.Records, sc.Steps)

	mins := s.Env.MinFlows()
	for _, r := range run.Records {
		for _, p := range model.AllPumps {
			q := r.Flows[p]
			if !active[p] {
				assert.Zero(t, q, "inactive pump %s at %s", p, r.Timestamp)
				continue
			}
			assert.True(t, q == 0 || q >= mins[p]-1e-9, "pump %s at %.1f m³/h at %s", p, q, r.Timestamp)
		}
		assert.GreaterOrEqual(t, r.EnergyKWh, 0.0)
	}

	if sc.Strategy == model.StrategyMultiAgent {
		assert.Zero(t, run.Plans[solver.StatusError], "planner failures")
		assert.Positive(t, run.Plans[solver.StatusOptimal]+run.Plans[solver.StatusFeasible], "solved plans")
	}

	exp := sc.Expected
	if exp.MinLevel != nil {
		assert.GreaterOrEqual(t, run.Summary.MinLevel, *exp.MinLevel, "minimum level")
	}
	if exp.MaxLevel != nil {
		assert.LessOrEqual(t, run.Summary.MaxLevel, *exp.MaxLevel, "maximum level")
	}
	if exp.MaxViolations != nil {
		assert.LessOrEqual(t, run.Summary.ConstraintViolations, *exp.MaxViolations, "violations")
	}
	assert.GreaterOrEqual(t, len(run.Events), exp.MinEvents, "decision log")
	return run
}
