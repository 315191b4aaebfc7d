// Package planner computes pump commands with a rolling-horizon MILP. A new
// problem is built on every call and only the first step is applied.
package planner

import (
	"context"
	"fmt"
	"math"

	"github.com/kilianp07/tunnelctl/core/curve"
	"github.com/kilianp07/tunnelctl/core/forecast"
	"github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/logger"
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/physics"
	"github.com/kilianp07/tunnelctl/core/solver"
)

// Range bounds the flow of one pump in m³/h.
type Range struct {
	Min float64
	Max float64
}

// PumpBounds holds the flow range of every pump.
type PumpBounds [model.NumPumps]Range

// BoundsFromHistory derives conservative flow ranges from the 2nd and 98th
// percentiles of each pump's history. Pumps that never ran are bounded by
// their capacity instead.
func BoundsFromHistory(data *history.Dataset, caps model.Flows) PumpBounds {
	var b PumpBounds
	for _, p := range model.AllPumps {
		hi := math.Max(data.FlowQuantile(p, 0.98), 0)
		if hi <= 0 || hi > caps[p] {
			hi = math.Max(caps[p], 0)
		}
		lo := math.Min(math.Max(data.FlowQuantile(p, 0.02), 0), hi)
		b[p] = Range{Min: lo, Max: hi}
	}
	return b
}

// CapacityBounds returns [0, capacity] for every pump.
func CapacityBounds(caps model.Flows) PumpBounds {
	var b PumpBounds
	for _, p := range model.AllPumps {
		b[p] = Range{Max: math.Max(caps[p], 0)}
	}
	return b
}

// Plan is the outcome of one planning call.
type Plan struct {
	Flows     model.Flows
	Status    solver.Status
	Objective float64
	Horizon   int
}

// Planner builds and solves the scheduling problem.
type Planner struct {
	env     physics.EnvConfig
	caps    model.Flows
	minFlow model.Flows
	bounds  PumpBounds
	cfg     Config
	solver  solver.Solver
	log     logger.Logger

	volumes Volumes
	effNom  model.Flows
}

// New returns a planner. A nil solver selects branch and bound with the
// configured node limit and gap.
func New(env physics.EnvConfig, caps model.Flows, bounds PumpBounds, cfg Config, s solver.Solver, log logger.Logger) (*Planner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		s = solver.BranchAndBound{MaxNodes: cfg.MaxNodes, Gap: cfg.Gap}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	p := &Planner{
		env:     env,
		caps:    caps,
		minFlow: env.MinFlows(),
		bounds:  bounds,
		cfg:     cfg,
		solver:  s,
		log:     log,
		volumes: TargetVolumes(env, cfg),
	}
	for _, id := range model.AllPumps {
		p.effNom[id] = curve.NominalEfficiency(id)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Planner) Config() Config { return p.cfg }

// Volumes returns the volume band and soft targets used by the problem.
func (p *Planner) Volumes() Volumes { return p.volumes }

// Volumes are the volume thresholds of the planning problem in m³.
type Volumes struct {
	Min         float64
	Max         float64
	Operational float64
	Target      float64
}

// TargetVolumes derives the hard band and the soft targets, clipping the
// targets so they always sit inside the band.
func TargetVolumes(env physics.EnvConfig, cfg Config) Volumes {
	v := Volumes{
		Min: curve.VolumeFromLevel(env.MinLevel) + cfg.VolumeSafetyMargin,
		Max: curve.VolumeFromLevel(env.MaxLevel) - cfg.VolumeSafetyMargin,
	}
	if v.Max <= v.Min {
		v.Max = v.Min + 500
	}
	opLo, opHi := v.Min+10, v.Max-200
	if opHi <= opLo {
		opHi = opLo + 10
	}
	v.Operational = clip(curve.VolumeFromLevel(cfg.OperationalMinLevel), opLo, opHi)
	tLo, tHi := v.Operational+100, v.Max-100
	if tHi <= tLo {
		tHi = tLo + 10
	}
	v.Target = clip(curve.VolumeFromLevel(cfg.TargetLevel), tLo, tHi)
	return v
}

func clip(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) }

// CostCoefficient returns the energy cost in € of one m³/h of flow through
// pump id during one step at the given level and price.
func (p *Planner) CostCoefficient(id model.PumpID, level, price float64) float64 {
	head := p.env.DischargeLevel - level
	rhoG := p.env.WaterDensity * p.env.Gravity
	return head * rhoG * price * p.env.StepHours() / (p.effNom[id] * 3.6e6)
}

// Plan solves the problem for the current state and forecast and returns the
// first-step flows. Solver failures yield an all-zero plan.
func (p *Planner) Plan(ctx context.Context, state model.ReservoirState, fc forecast.Forecast) Plan {
	h := min(len(fc.Inflow), len(fc.Price), p.cfg.HorizonSteps)
	if h == 0 {
		p.log.Warnf("planner: empty forecast at %s", state.Timestamp)
		return Plan{Status: solver.StatusError}
	}
	prob, fv := p.build(state, fc, h)
	sol, err := p.solver.Solve(ctx, prob)
	if err != nil {
		p.log.Warnf("planner: solve failed at %s: %v", state.Timestamp, err)
		return Plan{Status: solver.StatusOf(err), Horizon: h}
	}
	out := Plan{Status: sol.Status, Objective: sol.Objective, Horizon: h}
	for _, id := range model.AllPumps {
		if v, ok := fv[id]; ok {
			out.Flows[id] = math.Max(sol.Value(v[0]), 0)
		}
	}
	p.log.Debugw("planner solved", map[string]any{
		"status":    sol.Status.String(),
		"objective": sol.Objective,
		"nodes":     sol.Nodes,
		"outflow":   out.Flows.Total(),
	})
	return out
}

// build assembles the MILP. It returns the flow variables per active pump.
func (p *Planner) build(state model.ReservoirState, fc forecast.Forecast, h int) (*solver.Problem, map[model.PumpID][]solver.Var) {
	cfg := p.cfg
	dt := p.env.StepHours()
	prob := solver.NewProblem()

	var pumps []model.PumpID
	for _, id := range model.AllPumps {
		if p.bounds[id].Max > 0 && p.caps[id] > 0 {
			pumps = append(pumps, id)
		}
	}

	flow := make(map[model.PumpID][]solver.Var, len(pumps))
	on := make(map[model.PumpID][]solver.Var, len(pumps))
	for _, id := range pumps {
		r := p.bounds[id]
		flow[id] = make([]solver.Var, h)
		on[id] = make([]solver.Var, h)
		for t := 0; t < h; t++ {
			f := prob.AddVar(fmt.Sprintf("f_%s_%d", id, t), math.Max(r.Min, 0), r.Max)
			o := prob.AddBinary(fmt.Sprintf("on_%s_%d", id, t))
			flow[id][t], on[id][t] = f, o
			if m := p.minFlow[id]; m > 0 {
				prob.AddConstraint(fmt.Sprintf("min_full_%s_%d", id, t), solver.GreaterEq, 0, solver.T(f, 1), solver.T(o, -m))
			}
			prob.AddConstraint(fmt.Sprintf("capacity_%s_%d", id, t), solver.LessEq, 0, solver.T(f, 1), solver.T(o, -p.caps[id]))
			prob.AddCost(f, p.CostCoefficient(id, state.Level, fc.Price[t]))
		}
	}

	total := func(t int, coef float64) []solver.Term {
		ts := make([]solver.Term, 0, len(pumps))
		for _, id := range pumps {
			ts = append(ts, solver.T(flow[id][t], coef))
		}
		return ts
	}
	// volume(t) returns the constant part and the flow terms of V_t.
	volume := func(t int) (float64, []solver.Term) {
		c := state.Volume
		var ts []solver.Term
		for k := 0; k <= t; k++ {
			c += fc.Inflow[k] * dt
			ts = append(ts, total(k, -dt)...)
		}
		return c, ts
	}
	with := func(ts []solver.Term, extra ...solver.Term) []solver.Term {
		return append(append([]solver.Term(nil), ts...), extra...)
	}

	vol := p.volumes
	targetFlow := 0.0
	if cfg.ConstantFlowWeight > 0 {
		var sum float64
		for _, v := range fc.Inflow[:h] {
			sum += v
		}
		targetFlow = clip(sum/float64(h), cfg.MinTotalFlow, cfg.MaxTotalFlow)
	}

	for t := 0; t < h; t++ {
		tot := total(t, 1)
		if cfg.ConstantFlowWeight > 0 {
			dev := prob.AddVar(fmt.Sprintf("flow_dev_%d", t), 0, math.Inf(1))
			prob.AddConstraint(fmt.Sprintf("flow_dev_up_%d", t), solver.GreaterEq, -targetFlow, with(total(t, -1), solver.T(dev, 1))...)
			prob.AddConstraint(fmt.Sprintf("flow_dev_down_%d", t), solver.GreaterEq, targetFlow, with(tot, solver.T(dev, 1))...)
			prob.AddCost(dev, cfg.ConstantFlowWeight)
		}
		prob.AddConstraint(fmt.Sprintf("min_total_flow_%d", t), solver.GreaterEq, cfg.MinTotalFlow, tot...)
		prob.AddConstraint(fmt.Sprintf("max_total_flow_%d", t), solver.LessEq, cfg.MaxTotalFlow, tot...)

		c, vt := volume(t)
		prob.AddConstraint(fmt.Sprintf("min_vol_%d", t), solver.GreaterEq, vol.Min-c, vt...)
		prob.AddConstraint(fmt.Sprintf("max_vol_%d", t), solver.LessEq, vol.Max-c, vt...)

		// deficit ≥ target − V_t, excess ≥ V_t − target, op ≥ operational − V_t
		deficit := prob.AddVar(fmt.Sprintf("volume_deficit_%d", t), 0, math.Inf(1))
		prob.AddConstraint(fmt.Sprintf("volume_deficit_%d", t), solver.GreaterEq, vol.Target-c, with(vt, solver.T(deficit, 1))...)
		prob.AddCost(deficit, cfg.VolumeDeficitWeight)

		excess := prob.AddVar(fmt.Sprintf("volume_excess_%d", t), 0, math.Inf(1))
		prob.AddConstraint(fmt.Sprintf("volume_excess_%d", t), solver.GreaterEq, c-vol.Target, with(negate(vt), solver.T(excess, 1))...)
		prob.AddCost(excess, cfg.VolumeExcessWeight)

		op := prob.AddVar(fmt.Sprintf("operational_deficit_%d", t), 0, math.Inf(1))
		prob.AddConstraint(fmt.Sprintf("operational_min_volume_%d", t), solver.GreaterEq, vol.Operational-c, with(vt, solver.T(op, 1))...)
		prob.AddCost(op, cfg.OperationalLevelWeight)
	}

	slack := math.Max(0, cfg.FinalVolumeSlack)
	c, vh := volume(h - 1)
	prob.AddConstraint("final_vol_min", solver.GreaterEq, state.Volume-slack-c, vh...)
	prob.AddConstraint("final_vol_max", solver.LessEq, state.Volume+slack-c, vh...)

	for t := 1; t < h; t++ {
		for _, id := range pumps {
			prob.AddConstraint(fmt.Sprintf("ramp_up_%s_%d", id, t), solver.LessEq, cfg.RampLimit,
				solver.T(flow[id][t], 1), solver.T(flow[id][t-1], -1))
			prob.AddConstraint(fmt.Sprintf("ramp_down_%s_%d", id, t), solver.LessEq, cfg.RampLimit,
				solver.T(flow[id][t-1], 1), solver.T(flow[id][t], -1))
		}
		change := with(total(t, 1), total(t-1, -1)...)
		prob.AddConstraint(fmt.Sprintf("smooth_up_%d", t), solver.LessEq, cfg.RampLimit, change...)
		prob.AddConstraint(fmt.Sprintf("smooth_down_%d", t), solver.LessEq, cfg.RampLimit, negate(change)...)
		if cfg.FlowChangeWeight > 0 {
			ch := prob.AddVar(fmt.Sprintf("flow_change_%d", t), 0, math.Inf(1))
			prob.AddConstraint(fmt.Sprintf("flow_change_up_%d", t), solver.GreaterEq, 0, with(negate(change), solver.T(ch, 1))...)
			prob.AddConstraint(fmt.Sprintf("flow_change_down_%d", t), solver.GreaterEq, 0, with(change, solver.T(ch, 1))...)
			prob.AddCost(ch, cfg.FlowChangeWeight)
		}
	}

	if cfg.UsageBalanceWeight > 0 && len(pumps) > 1 {
		share := 1 / float64(len(pumps))
		for _, id := range pumps {
			// usage_p − mean usage, expressed over every on variable
			var dev []solver.Term
			for _, other := range pumps {
				coef := -share
				if other == id {
					coef = 1 - share
				}
				for t := 0; t < h; t++ {
					dev = append(dev, solver.T(on[other][t], coef))
				}
			}
			u := prob.AddVar(fmt.Sprintf("usage_dev_%s", id), 0, math.Inf(1))
			prob.AddConstraint(fmt.Sprintf("usage_up_%s", id), solver.GreaterEq, 0, with(negate(dev), solver.T(u, 1))...)
			prob.AddConstraint(fmt.Sprintf("usage_down_%s", id), solver.GreaterEq, 0, with(dev, solver.T(u, 1))...)
			prob.AddCost(u, cfg.UsageBalanceWeight)
		}
	}
	return prob, flow
}

func negate(ts []solver.Term) []solver.Term {
	out := make([]solver.Term, len(ts))
	for i, t := range ts {
		out[i] = solver.T(t.Var, -t.Coef)
	}
	return out
}
