package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tunnelctl/core/curve"
	"github.com/kilianp07/tunnelctl/core/events"
	"github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/physics"
	"github.com/kilianp07/tunnelctl/core/solver"
	"github.com/kilianp07/tunnelctl/core/telemetry"
	"github.com/kilianp07/tunnelctl/internal/eventbus"
)

var day = time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

func dataset(t *testing.T, level float64, steps int) *history.Dataset {
	t.Helper()
	data, err := history.Synthetic(history.Profile{Start: day, Steps: steps, Level: level, Inflow: 500, PriceCents: 10})
	require.NoError(t, err)
	return data
}

// twoPumps keeps pumps 1.1 and 1.2 only so that planning problems stay small.
func twoPumps() Settings {
	s := DefaultSettings()
	for _, p := range model.AllPumps {
		if p != model.Pump11 && p != model.Pump12 {
			s.Env.Pumps[p] = physics.PumpSpec{}
		}
	}
	s.Coordinator.HorizonSteps = 2
	return s
}

type fixedSolver struct {
	values map[string]float64
}

func (f fixedSolver) Solve(_ context.Context, p *solver.Problem) (solver.Solution, error) {
	vals := make([]float64, len(p.Vars))
	for i, v := range p.Vars {
		vals[i] = f.values[v.Name]
	}
	return solver.Solution{Status: solver.StatusOptimal, Values: vals}, nil
}

func fixedIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
}

func assertGoverned(t *testing.T, env physics.EnvConfig, caps model.Flows, f model.Flows) {
	t.Helper()
	mins := env.MinFlows()
	for _, p := range model.AllPumps {
		assert.GreaterOrEqual(t, f[p], 0.0)
		assert.LessOrEqual(t, f[p], caps[p]+1e-9)
		assert.True(t, f[p] == 0 || f[p] >= mins[p]-1e-9, "pump %s at %.1f", p, f[p])
	}
}

func TestPriceDivisorSharedByForecastAndTwin(t *testing.T) {
	data := dataset(t, curve.LevelFromVolume(100000), 20)
	s := DefaultSettings()
	s.Env.PriceMinorPerUnit = 1000
	c, err := New(data, s, Deps{})
	require.NoError(t, err)

	run, err := c.RunBaseline(context.Background(), 3, day)
	require.NoError(t, err)
	for _, r := range run.Records {
		assert.InDelta(t, 0.01, r.Price, 1e-12)
	}
	fc, err := c.forecaster.Predict(day)
	require.NoError(t, err)
	for _, p := range fc.Price {
		assert.InDelta(t, 0.01, p, 1e-12)
	}
}

func TestBaselineEndToEnd(t *testing.T) {
	data := dataset(t, curve.LevelFromVolume(100000), 20)
	c, err := New(data, DefaultSettings(), Deps{})
	require.NoError(t, err)

	run, err := c.RunBaseline(context.Background(), 4, day)
	require.NoError(t, err)
	require.Len(t, run.Records, 4)
	assert.Empty(t, run.Events)
	assert.NotEmpty(t, run.RunID)

	env := c.Settings().Env
	assert.InDelta(t, 100000, run.Records[0].Volume, 1e-3)
	for i, r := range run.Records {
		assert.Equal(t, model.StrategyBaseline, r.Strategy)
		assert.Equal(t, run.RunID, r.RunID)
		assert.Equal(t, day.Add(time.Duration(i)*15*time.Minute), r.Timestamp)
		assert.InDelta(t, 0.1, r.Price, 1e-12)
		assert.InDelta(t, 500, r.Inflow, 1e-12)
		assert.GreaterOrEqual(t, r.Level, env.MinLevel)
		assert.LessOrEqual(t, r.Level, env.MaxLevel)
		assert.InDelta(t, r.Flows.Total(), r.Outflow, 1e-9)
		if r.Outflow > 0 {
			assert.Greater(t, r.EnergyKWh, 0.0)
		}
		assertGoverned(t, env, env.Capacities(), r.Flows)
		if i > 0 {
			prev := run.Records[i-1]
			want := prev.Volume + (prev.Inflow-prev.Outflow)*env.StepHours()
			assert.InDelta(t, want, r.Volume, 1e-6, "mass balance at step %d", i)
		}
	}
	assert.Greater(t, run.Records[0].Outflow, 0.0, "high level drains")
	assert.Equal(t, 4, run.Summary.Steps)
	assert.Equal(t, model.StrategyBaseline, run.Summary.Strategy)
}

func TestDeterminism(t *testing.T) {
	data := dataset(t, 3, 30)
	stub := fixedSolver{values: map[string]float64{"f_1.1_0": 1500}}

	runOnce := func() (Run, Run) {
		c, err := New(data, twoPumps(), Deps{Solver: stub, NewRunID: fixedIDs()})
		require.NoError(t, err)
		multi, err := c.RunMultiAgent(context.Background(), 12, day)
		require.NoError(t, err)
		base, err := c.RunBaseline(context.Background(), 12, day)
		require.NoError(t, err)
		return multi, base
	}
	m1, b1 := runOnce()
	m2, b2 := runOnce()
	assert.Equal(t, m1, m2)
	assert.Equal(t, b1, b2)
}

func TestMultiAgentEvents(t *testing.T) {
	data := dataset(t, 3, 30)
	stub := fixedSolver{values: map[string]float64{"f_1.1_0": 1500}}
	c, err := New(data, twoPumps(), Deps{Solver: stub})
	require.NoError(t, err)

	run, err := c.RunMultiAgent(context.Background(), 3, day)
	require.NoError(t, err)
	require.Len(t, run.Records, 3)
	require.GreaterOrEqual(t, len(run.Events), 6)

	assert.Equal(t, SourceForecaster, run.Events[0].Source)
	assert.Contains(t, run.Events[0].Message, "Projected inflow avg 500.0 m³/h, price avg 0.10 €/kWh")
	assert.Equal(t, SourcePlanner, run.Events[1].Source)
	assert.Contains(t, run.Events[1].Message, "Optimized outflow 1500.0 m³/h with horizon 2")
	for _, ev := range run.Events {
		assert.Contains(t, []string{SourceForecaster, SourcePlanner, SourceSafety}, ev.Source)
	}

	caps := model.Flows{}
	caps[model.Pump11], caps[model.Pump12] = 1700, 1700
	for _, r := range run.Records {
		assert.Equal(t, model.StrategyMultiAgent, r.Strategy)
		assertGoverned(t, c.Settings().Env, caps, r.Flows)
	}
}

func TestMultiAgentWithBranchAndBound(t *testing.T) {
	data := dataset(t, 3, 20)
	c, err := New(data, twoPumps(), Deps{})
	require.NoError(t, err)

	run, err := c.RunMultiAgent(context.Background(), 2, day)
	require.NoError(t, err)
	require.Len(t, run.Records, 2)
	for _, r := range run.Records {
		assert.GreaterOrEqual(t, r.Level, c.Settings().Env.MinLevel)
	}
	assert.Equal(t, map[solver.Status]int{solver.StatusOptimal: 2}, run.Plans)
	planned := 0
	for _, ev := range run.Events {
		if ev.Source == SourcePlanner {
			planned++
			// Inflow sits below the minimum total flow, which binds.
			assert.Contains(t, ev.Message, "Optimized outflow 1400.0 m³/h with horizon 2 (optimal)")
		}
	}
	assert.Equal(t, 2, planned)
}

func TestMultiAgentPlansThroughStorm(t *testing.T) {
	data, err := history.Synthetic(history.Profile{
		Start: day, Steps: 20, Level: 3, Inflow: 500, PriceCents: 10,
		InflowAt: func(i int, _ time.Time) float64 {
			if i >= 1 && i <= 4 {
				return 2500
			}
			return 500
		},
	})
	require.NoError(t, err)
	c, err := New(data, twoPumps(), Deps{})
	require.NoError(t, err)

	run, err := c.RunMultiAgent(context.Background(), 4, day)
	require.NoError(t, err)
	require.Len(t, run.Records, 4)
	assert.Zero(t, run.Plans[solver.StatusError])
	assert.Zero(t, run.Plans[solver.StatusInfeasible])
	assert.Equal(t, 4, run.Plans[solver.StatusOptimal]+run.Plans[solver.StatusFeasible])
	for _, ev := range run.Events {
		if ev.Source == SourcePlanner {
			assert.NotContains(t, ev.Message, "Optimized outflow 0.0 ")
		}
	}
}

func TestStartNotFound(t *testing.T) {
	c, err := New(dataset(t, 3, 10), DefaultSettings(), Deps{})
	require.NoError(t, err)

	_, err = c.RunBaseline(context.Background(), 2, day.Add(7*time.Minute))
	assert.True(t, errors.Is(err, physics.ErrStartNotFound))
	_, err = c.RunMultiAgent(context.Background(), 2, day.Add(-time.Hour))
	assert.True(t, errors.Is(err, physics.ErrStartNotFound))
}

func TestCancelledContext(t *testing.T) {
	c, err := New(dataset(t, 3, 10), DefaultSettings(), Deps{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := c.RunBaseline(ctx, 5, day)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, run.Records)
}

func TestNewErrors(t *testing.T) {
	_, err := New(nil, DefaultSettings(), Deps{})
	assert.ErrorIs(t, err, history.ErrEmpty)

	s := DefaultSettings()
	s.Coordinator.HorizonSteps = -1
	_, err = New(dataset(t, 3, 10), s, Deps{})
	assert.Error(t, err)

	s = DefaultSettings()
	s.BaselineSafety.MaxLevel = 0
	_, err = New(dataset(t, 3, 10), s, Deps{})
	assert.Error(t, err)
}

func TestHorizonOverride(t *testing.T) {
	s := DefaultSettings()
	s.Coordinator.HorizonSteps = 5
	c, err := New(dataset(t, 3, 10), s, Deps{})
	require.NoError(t, err)
	assert.Equal(t, 5, c.Settings().Forecast.HorizonSteps)
	assert.Equal(t, 5, c.Settings().Planner.HorizonSteps)
}

type capturePublisher struct {
	mu        sync.Mutex
	states    map[model.Strategy]int
	decisions int
	summaries []telemetry.RunSummary
}

func (p *capturePublisher) PublishState(s telemetry.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.states == nil {
		p.states = map[model.Strategy]int{}
	}
	p.states[s.Strategy]++
	return nil
}

func (p *capturePublisher) RecordDecision(telemetry.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions++
	return nil
}

func (p *capturePublisher) RecordRunSummary(r telemetry.RunSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, r)
	return nil
}

func TestCompareParallel(t *testing.T) {
	data := dataset(t, 3, 30)
	s := twoPumps()
	s.Coordinator.Parallel = true
	pub := &capturePublisher{}
	bus := eventbus.New(eventbus.WithBuffer(256))
	sub := bus.Subscribe()
	stub := fixedSolver{values: map[string]float64{"f_1.1_0": 1500}}

	c, err := New(data, s, Deps{Solver: stub, Publisher: pub, Bus: bus})
	require.NoError(t, err)
	cmp, err := c.Compare(context.Background(), 6, day)
	require.NoError(t, err)

	assert.Len(t, cmp.MultiAgent.Records, 6)
	assert.Len(t, cmp.Baseline.Records, 6)
	assert.NotEqual(t, cmp.MultiAgent.RunID, cmp.Baseline.RunID)
	assert.Equal(t, model.StrategyMultiAgent, cmp.Report.MultiAgent.Strategy)
	assert.Equal(t, 6, cmp.Report.Baseline.Steps)

	assert.Equal(t, 6, pub.states[model.StrategyMultiAgent])
	assert.Equal(t, 6, pub.states[model.StrategyBaseline])
	assert.Equal(t, len(cmp.MultiAgent.Events), pub.decisions)
	assert.Len(t, pub.summaries, 2)

	bus.Close()
	var steps, runs, decisions int
	for ev := range sub {
		switch ev.(type) {
		case events.StepEvent:
			steps++
		case events.RunEvent:
			runs++
		case events.DecisionEvent:
			decisions++
		}
	}
	assert.Equal(t, 12, steps)
	assert.Equal(t, 4, runs)
	assert.Equal(t, len(cmp.MultiAgent.Events), decisions)
	assert.Zero(t, bus.Dropped())
}
