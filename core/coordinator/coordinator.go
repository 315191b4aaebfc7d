// Package coordinator runs the control loop over the digital twin, either
// with the forecast, plan and govern pipeline or with the threshold
// baseline, and records what happened at every step.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/tunnelctl/core/baseline"
	"github.com/kilianp07/tunnelctl/core/events"
	"github.com/kilianp07/tunnelctl/core/forecast"
	"github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/logger"
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/physics"
	"github.com/kilianp07/tunnelctl/core/planner"
	"github.com/kilianp07/tunnelctl/core/report"
	"github.com/kilianp07/tunnelctl/core/safety"
	"github.com/kilianp07/tunnelctl/core/solver"
	"github.com/kilianp07/tunnelctl/core/telemetry"
	"github.com/kilianp07/tunnelctl/internal/eventbus"
)

// Event sources of the decision log.
const (
	SourceForecaster = "Forecaster"
	SourcePlanner    = "Planner"
	SourceSafety     = "SafetyGovernor"
)

// Deps are the optional collaborators of a Coordinator.
type Deps struct {
	Logger    logger.Logger
	Publisher telemetry.StatePublisher
	Bus       eventbus.EventBus
	// Solver replaces the default branch and bound solver of the planner.
	Solver solver.Solver
	// NewRunID generates run identifiers. Defaults to random UUIDs.
	NewRunID func() string
}

// Run is the outcome of one simulated run.
type Run struct {
	RunID    string
	Strategy model.Strategy
	Records  []model.Record
	Events   []model.Event
	Summary  report.Summary
	// Plans counts the planner outcomes of a multi-agent run by status.
	Plans map[solver.Status]int
}

// Comparison holds both runs of a comparison and their indicators.
type Comparison struct {
	MultiAgent Run
	Baseline   Run
	Report     report.Comparison
}

// Coordinator owns the stages built once from the history. Twins and
// governors are created per run so that runs share no mutable state.
type Coordinator struct {
	data       *history.Dataset
	settings   Settings
	forecaster *forecast.Forecaster
	planner    *planner.Planner
	policy     *baseline.Policy
	log        logger.Logger
	pub        telemetry.StatePublisher
	bus        eventbus.EventBus
	newRunID   func() string
}

// New builds the forecaster, the planner and the baseline policy over data.
func New(data *history.Dataset, s Settings, deps Deps) (*Coordinator, error) {
	if data == nil || data.Len() == 0 {
		return nil, history.ErrEmpty
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = logger.NopLogger{}
	}
	twin, err := physics.New(data, s.Env, log)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	caps := twin.Capacities()

	fc, err := forecast.New(data, s.Forecast, log)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	pl, err := planner.New(s.Env, caps, planner.BoundsFromHistory(data, caps), s.Planner, deps.Solver, log)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	policy, err := baseline.New(s.Baseline)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	c := &Coordinator{
		data:       data,
		settings:   s,
		forecaster: fc,
		planner:    pl,
		policy:     policy,
		log:        log,
		pub:        deps.Publisher,
		bus:        deps.Bus,
		newRunID:   deps.NewRunID,
	}
	if c.pub == nil {
		c.pub = telemetry.NopPublisher{}
	}
	if c.newRunID == nil {
		c.newRunID = uuid.NewString
	}
	return c, nil
}

// Settings returns the normalized settings.
func (c *Coordinator) Settings() Settings { return c.settings }

// Forecaster returns the fitted forecaster.
func (c *Coordinator) Forecaster() *forecast.Forecaster { return c.forecaster }

// decider returns the proposal for one step and may append to the run log.
type decider func(ctx context.Context, state model.ReservoirState, r *runState) model.Flows

// RunMultiAgent runs the forecast, plan and govern pipeline for steps steps
// from start. A zero start selects the first record.
func (c *Coordinator) RunMultiAgent(ctx context.Context, steps int, start time.Time) (Run, error) {
	return c.run(ctx, model.StrategyMultiAgent, steps, start, c.settings.MultiSafety, c.proposeMultiAgent)
}

// RunBaseline runs the threshold policy behind its own governor.
func (c *Coordinator) RunBaseline(ctx context.Context, steps int, start time.Time) (Run, error) {
	return c.run(ctx, model.StrategyBaseline, steps, start, c.settings.BaselineSafety,
		func(_ context.Context, state model.ReservoirState, _ *runState) model.Flows {
			return c.policy.Decide(state)
		})
}

// Compare runs both strategies over the same window. With Parallel set the
// runs execute on separate goroutines.
func (c *Coordinator) Compare(ctx context.Context, steps int, start time.Time) (Comparison, error) {
	var out Comparison
	if !c.settings.Coordinator.Parallel {
		var err error
		if out.MultiAgent, err = c.RunMultiAgent(ctx, steps, start); err != nil {
			return out, err
		}
		if out.Baseline, err = c.RunBaseline(ctx, steps, start); err != nil {
			return out, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			r, err := c.RunMultiAgent(gctx, steps, start)
			out.MultiAgent = r
			return err
		})
		g.Go(func() error {
			r, err := c.RunBaseline(gctx, steps, start)
			out.Baseline = r
			return err
		})
		if err := g.Wait(); err != nil {
			return out, err
		}
	}
	out.Report = report.Compare(out.MultiAgent.Records, out.Baseline.Records, c.settings.Env.StepHours())
	return out, nil
}

func (c *Coordinator) proposeMultiAgent(ctx context.Context, state model.ReservoirState, r *runState) model.Flows {
	fc, err := c.forecaster.Predict(state.Timestamp)
	if err != nil {
		c.log.Warnf("forecast at %s failed: %v", state.Timestamp.Format(time.RFC3339), err)
	}
	r.record(state.Timestamp, SourceForecaster, fmt.Sprintf("Projected inflow avg %.1f m³/h, price avg %.2f €/kWh",
		fc.MeanInflow(), fc.MeanPrice()))

	plan := c.planner.Plan(ctx, state, fc)
	if r.run.Plans == nil {
		r.run.Plans = make(map[solver.Status]int)
	}
	r.run.Plans[plan.Status]++
	r.record(state.Timestamp, SourcePlanner, fmt.Sprintf("Optimized outflow %.1f m³/h with horizon %d (%s)",
		plan.Flows.Total(), plan.Horizon, plan.Status))
	return plan.Flows
}

func (c *Coordinator) run(ctx context.Context, strategy model.Strategy, steps int, start time.Time, gcfg safety.Config, decide decider) (Run, error) {
	env := c.settings.Env
	twin, err := physics.New(c.data, env, c.log)
	if err != nil {
		return Run{}, fmt.Errorf("%s run: %w", strategy, err)
	}
	state, err := twin.Reset(start)
	if err != nil {
		return Run{}, fmt.Errorf("%s run: %w", strategy, err)
	}
	gov, err := safety.New(env, twin.Capacities(), gcfg, c.log)
	if err != nil {
		return Run{}, fmt.Errorf("%s run: %w", strategy, err)
	}

	r := &runState{c: c, run: Run{RunID: c.newRunID(), Strategy: strategy}}
	if steps > 0 {
		r.run.Records = make([]model.Record, 0, steps)
	}
	c.publish(events.RunEvent{RunID: r.run.RunID, Strategy: strategy})
	c.log.Infof("%s run %s started at %s for %d steps", strategy, r.run.RunID, state.Timestamp.Format(time.RFC3339), steps)

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			c.finish(r, err)
			return r.run, err
		}
		proposal := decide(ctx, state, r)
		cmd := gov.Enforce(state, proposal)
		if strategy == model.StrategyMultiAgent && cmd != proposal {
			r.record(state.Timestamp, SourceSafety, "Adjusted commands to respect safety margins")
		}
		next, info, err := twin.Step(cmd)
		if err != nil {
			c.finish(r, err)
			return r.run, err
		}
		gov.PostStep(next, info.Commands)

		rec := model.Record{
			RunID:     r.run.RunID,
			Timestamp: state.Timestamp,
			Level:     state.Level,
			Volume:    state.Volume,
			Price:     state.Price,
			Inflow:    state.Inflow,
			Outflow:   info.TotalOutflow,
			EnergyKWh: info.EnergyKWh,
			Flows:     info.Commands,
			Strategy:  strategy,
		}
		r.run.Records = append(r.run.Records, rec)
		c.publishStep(rec, info.AtEnd)
		state = next
	}
	c.finish(r, nil)
	return r.run, nil
}

func (c *Coordinator) finish(r *runState, err error) {
	r.run.Summary = report.Summarize(r.run.Records, c.settings.Env.StepHours())
	r.run.Summary.Strategy = r.run.Strategy
	c.publish(events.RunEvent{
		RunID:    r.run.RunID,
		Strategy: r.run.Strategy,
		Finished: true,
		Steps:    len(r.run.Records),
		Summary:  r.run.Summary,
		Err:      err,
	})
	if rec, ok := c.pub.(telemetry.RunRecorder); ok {
		if perr := rec.RecordRunSummary(telemetry.RunSummary{RunID: r.run.RunID, Summary: r.run.Summary, Time: time.Now()}); perr != nil {
			c.log.Warnf("record run summary: %v", perr)
		}
	}
	if err != nil {
		c.log.Warnf("%s run %s stopped after %d steps: %v", r.run.Strategy, r.run.RunID, len(r.run.Records), err)
		return
	}
	c.log.Infof("%s run %s finished: %d steps, %.1f kWh, %.2f €", r.run.Strategy, r.run.RunID,
		r.run.Summary.Steps, r.run.Summary.EnergyKWh, r.run.Summary.EnergyCostEUR)
}

func (c *Coordinator) publishStep(rec model.Record, atEnd bool) {
	if err := c.pub.PublishState(telemetry.SnapshotFromRecord(rec)); err != nil {
		c.log.Warnf("publish state: %v", err)
	}
	c.publish(events.StepEvent{RunID: rec.RunID, Record: rec, AtEnd: atEnd})
}

func (c *Coordinator) publish(ev eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// runState accumulates one run.
type runState struct {
	c   *Coordinator
	run Run
}

func (r *runState) record(ts time.Time, source, msg string) {
	ev := model.Event{Timestamp: ts, Source: source, Message: msg}
	r.run.Events = append(r.run.Events, ev)
	d := telemetry.Decision{RunID: r.run.RunID, Strategy: r.run.Strategy, Event: ev}
	if rec, ok := r.c.pub.(telemetry.DecisionRecorder); ok {
		if err := rec.RecordDecision(d); err != nil {
			r.c.log.Warnf("record decision: %v", err)
		}
	}
	r.c.publish(events.DecisionEvent{RunID: d.RunID, Strategy: d.Strategy, Event: ev})
	r.c.log.Debugw(msg, map[string]any{"source": source, "run_id": r.run.RunID, "timestamp": ts})
}
