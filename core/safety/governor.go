// Package safety implements the governor that overrides planned pump
// commands to enforce level floors, pump runtime rules and the daily flush.
package safety

import (
	"math"
	"sort"
	"time"

	"github.com/kilianp07/tunnelctl/core/curve"
	"github.com/kilianp07/tunnelctl/core/logger"
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/physics"
)

// PumpMode is the runtime state of one pump as seen by the governor.
type PumpMode int

const (
	ModeOff PumpMode = iota
	ModeOn
	ModeHoldingMinRuntime
	ModeCoolingDown
)

func (m PumpMode) String() string {
	switch m {
	case ModeOn:
		return "on"
	case ModeHoldingMinRuntime:
		return "holding_min_runtime"
	case ModeCoolingDown:
		return "cooling_down"
	default:
		return "off"
	}
}

// Phase is the plant-level flush cycle state.
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseFlushPending
	PhaseFlushing
	PhasePostFlushHold
)

func (p Phase) String() string {
	switch p {
	case PhaseFlushPending:
		return "flush_pending"
	case PhaseFlushing:
		return "flushing"
	case PhasePostFlushHold:
		return "post_flush_hold"
	default:
		return "normal"
	}
}

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time) day {
	y, m, d := t.Date()
	return day{y, m, d}
}

// Governor is the stateful override layer. It is not safe for concurrent
// use; every run owns its own Governor and calls Reset before the first step.
type Governor struct {
	cfg     Config
	caps    model.Flows
	minFlow model.Flows
	dt      float64
	step    time.Duration
	log     logger.Logger

	runtime      [model.NumPumps]int
	dailyRuntime [model.NumPumps]int
	rest         [model.NumPumps]int
	lastOn       [model.NumPumps]bool

	currentDay   day
	dayKnown     bool
	flushedToday bool
	pending      bool
	active       bool
	targetVolume float64
	holdSteps    int
	holdNew      bool
	stormSteps   int
	sinceFlush   int
	flushCount   int
	lastFlush    time.Time
}

// New returns a governor for pumps bounded by caps.
func New(env physics.EnvConfig, caps model.Flows, cfg Config, log logger.Logger) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	g := &Governor{
		cfg:     cfg,
		caps:    caps,
		minFlow: env.MinFlows(),
		dt:      env.StepHours(),
		step:    env.Step(),
		log:     log,
	}
	g.Reset()
	return g, nil
}

// Reset restores every counter and flag to its initial value.
func (g *Governor) Reset() {
	for i := range g.runtime {
		g.runtime[i] = 0
		g.dailyRuntime[i] = 0
		g.rest[i] = g.cfg.MinRestSteps
		g.lastOn[i] = false
	}
	g.currentDay, g.dayKnown = day{}, false
	g.flushedToday, g.pending, g.active = false, false, false
	g.targetVolume = curve.VolumeFromLevel(g.cfg.FlushLevel)
	g.holdSteps, g.holdNew = 0, false
	g.stormSteps = 0
	g.sinceFlush = 0
	g.flushCount = 0
	g.lastFlush = time.Time{}
}

// Config returns the thresholds.
func (g *Governor) Config() Config { return g.cfg }

// FlushedToday reports whether the flush of the current day has completed.
func (g *Governor) FlushedToday() bool { return g.flushedToday }

// FlushCount returns the number of flushes completed since Reset.
func (g *Governor) FlushCount() int { return g.flushCount }

// LastFlush returns the time of the last completed flush.
func (g *Governor) LastFlush() time.Time { return g.lastFlush }

// StepsSinceFlush returns the number of steps since the last flush.
func (g *Governor) StepsSinceFlush() int { return g.sinceFlush }

// StormStepsRemaining returns the remaining storm relief window.
func (g *Governor) StormStepsRemaining() int { return g.stormSteps }

// Mode returns the runtime state of pump p.
func (g *Governor) Mode(p model.PumpID) PumpMode {
	switch {
	case g.lastOn[p] && g.runtime[p] < g.cfg.MinRuntimeSteps:
		return ModeHoldingMinRuntime
	case g.lastOn[p]:
		return ModeOn
	case g.rest[p] < g.cfg.MinRestSteps:
		return ModeCoolingDown
	default:
		return ModeOff
	}
}

// Phase returns the flush cycle state.
func (g *Governor) Phase() Phase {
	switch {
	case g.active:
		return PhaseFlushing
	case g.holdSteps > 0:
		return PhasePostFlushHold
	case g.pending:
		return PhaseFlushPending
	default:
		return PhaseNormal
	}
}

// Enforce turns a proposal into commands that respect every hard rule.
func (g *Governor) Enforce(state model.ReservoirState, proposal model.Flows) model.Flows {
	g.rollover(state.Timestamp)

	base := g.clip(proposal)
	holdActive := g.holdSteps > 0 && state.Level < g.cfg.PostFlushHoldLevel
	critical := state.Level <= g.cfg.MinLevel || holdActive

	var safe model.Flows
	switch {
	case g.ShouldFlush(state):
		safe = g.flush(state)
	case critical:
	default:
		safe = g.allocate(base.Total())
		safe = g.applyRuntime(safe)
	}

	safe = g.protectLevels(state, safe)
	safe = g.assistMinimumFlow(state, safe)
	return g.limitTotal(safe)
}

// ShouldFlush reports whether the flush must run at this state.
func (g *Governor) ShouldFlush(state model.ReservoirState) bool {
	switch {
	case g.stormSteps > 0:
		return false
	case g.active:
		return true
	case state.Level <= g.cfg.FlushLevel:
		return false
	case g.flushedToday:
		return false
	case g.pending:
		return true
	}
	hour := state.Timestamp.Hour()
	if hour >= g.cfg.FlushEnforcementHour {
		return true
	}
	if state.Inflow <= g.cfg.FlushInflowThreshold && hour >= max(0, g.cfg.FlushEnforcementHour-2) {
		return true
	}
	return g.stepsLeftInDay(state.Timestamp) <= g.cfg.FlushDeadlineBuffer
}

// PostStep updates the counters with the state reached and the commands
// actually executed. It must be called exactly once per step.
func (g *Governor) PostStep(next model.ReservoirState, executed model.Flows) {
	g.rollover(next.Timestamp)
	g.sinceFlush++

	if next.Inflow >= g.cfg.StormInflowThreshold {
		if g.stormSteps < g.cfg.StormReliefSteps {
			g.log.Infof("storm inflow %.0f m3/h at %s, deferring flush", next.Inflow, next.Timestamp.Format(time.RFC3339))
		}
		g.stormSteps = max(g.stormSteps, g.cfg.StormReliefSteps)
	} else if g.stormSteps > 0 {
		g.stormSteps--
	}

	switch {
	case next.Volume <= g.targetVolume+g.cfg.FlushTolerance && !g.flushedToday:
		g.complete(next.Timestamp)
	case g.holdSteps > 0:
		switch {
		case next.Level >= g.cfg.PostFlushHoldLevel:
			g.holdSteps, g.holdNew = 0, false
		case g.holdNew:
			g.holdNew = false
		default:
			g.holdSteps--
		}
	}

	for _, p := range model.AllPumps {
		on := executed[p] >= g.cfg.ActivationThreshold
		if on {
			g.runtime[p]++
			g.dailyRuntime[p]++
			g.rest[p] = 0
		} else {
			g.runtime[p] = 0
			g.rest[p]++
		}
		g.lastOn[p] = on
	}
}

func (g *Governor) rollover(t time.Time) {
	d := dayOf(t)
	if g.dayKnown && g.currentDay == d {
		return
	}
	if g.dayKnown && !g.flushedToday {
		g.pending = true
		g.log.Warnf("no flush completed on %04d-%02d-%02d, carrying it over", g.currentDay.year, g.currentDay.month, g.currentDay.day)
	}
	g.currentDay, g.dayKnown = d, true
	g.flushedToday = false
	g.active = false
	g.holdSteps, g.holdNew = 0, false
	g.dailyRuntime = [model.NumPumps]int{}
}

func (g *Governor) clip(f model.Flows) model.Flows {
	var out model.Flows
	for _, p := range model.AllPumps {
		v := f[p]
		if math.IsNaN(v) {
			v = 0
		}
		out[p] = math.Max(0, math.Min(v, g.caps[p]))
	}
	return out
}

func (g *Governor) flush(state model.ReservoirState) model.Flows {
	if !g.active {
		g.active, g.pending = true, false
		g.targetVolume = curve.VolumeFromLevel(g.cfg.FlushLevel)
		g.log.Infof("flush started at %s, level %.2f m", state.Timestamp.Format(time.RFC3339), state.Level)
	}
	remove := math.Max(0, state.Volume-g.targetVolume)
	if remove <= g.cfg.FlushTolerance {
		g.complete(state.Timestamp)
		return model.Flows{}
	}
	stepVolume := math.Min(remove, g.cfg.FlushVolumeStep)
	required := stepVolume/math.Max(g.dt, 1e-6) + state.Inflow
	required = math.Min(required, math.Min(g.caps.Total(), g.cfg.MaxFlushFlow))

	floor := math.Inf(1)
	for _, p := range model.AllPumps {
		if m := g.minFlow[p]; m > 0 {
			floor = math.Min(floor, m)
		}
	}
	if math.IsInf(floor, 1) {
		floor = g.cfg.ActivationThreshold
	}
	return g.allocate(math.Max(required, floor))
}

func (g *Governor) complete(t time.Time) {
	g.active, g.pending = false, false
	g.flushedToday = true
	g.sinceFlush = 0
	g.flushCount++
	g.lastFlush = t
	g.holdSteps = g.cfg.PostFlushHoldSteps
	g.holdNew = g.cfg.PostFlushHoldSteps > 0
	g.log.Infof("flush completed at %s", t.Format(time.RFC3339))
}

// allocate spreads total over the least used pumps first, each running at
// least at its minimum operating flow.
func (g *Governor) allocate(total float64) model.Flows {
	var out model.Flows
	if total <= 0 {
		return out
	}
	remaining := math.Min(total, g.caps.Total())
	order := model.AllPumps
	sort.SliceStable(order[:], func(i, j int) bool {
		a, b := order[i], order[j]
		if g.dailyRuntime[a] != g.dailyRuntime[b] {
			return g.dailyRuntime[a] < g.dailyRuntime[b]
		}
		return g.runtime[a] < g.runtime[b]
	})
	for _, p := range order {
		if remaining <= 0 {
			break
		}
		if g.caps[p] <= 0 {
			continue
		}
		q := math.Min(g.caps[p], math.Max(g.minFlow[p], remaining))
		out[p] = q
		remaining -= q
	}
	for _, p := range order {
		if remaining <= 0 {
			break
		}
		extra := math.Min(math.Max(0, g.caps[p]-out[p]), remaining)
		if extra <= 0 {
			continue
		}
		out[p] += extra
		remaining -= extra
	}
	return out
}

// applyRuntime enforces minimum rest before a start, minimum runtime before
// a stop and the minimum operating flow of running pumps.
func (g *Governor) applyRuntime(f model.Flows) model.Flows {
	for _, p := range model.AllPumps {
		cmd := f[p]
		wantsOn := cmd >= g.cfg.ActivationThreshold
		if wantsOn && !g.lastOn[p] && g.rest[p] < g.cfg.MinRestSteps {
			wantsOn, cmd = false, 0
		}
		if g.lastOn[p] && g.runtime[p] < g.cfg.MinRuntimeSteps && !wantsOn {
			wantsOn = true
			cmd = math.Max(cmd, g.minFlow[p])
		}
		if wantsOn && cmd < g.minFlow[p] {
			if g.lastOn[p] {
				cmd = g.minFlow[p]
			} else {
				wantsOn, cmd = false, 0
			}
		}
		if g.caps[p] > 0 {
			cmd = math.Min(cmd, g.caps[p])
		}
		if !wantsOn {
			cmd = 0
		}
		f[p] = cmd
	}
	return f
}

func (g *Governor) protectLevels(state model.ReservoirState, f model.Flows) model.Flows {
	switch {
	case state.Level >= g.cfg.MaxLevel:
		scale := 1 + g.cfg.MinReserveRatio
		for _, p := range model.AllPumps {
			f[p] = math.Min(g.caps[p], f[p]*scale)
		}
	case state.Level <= g.cfg.MinLevel:
		f = model.Flows{}
	}
	return f
}

// assistMinimumFlow forces the least used small pump to its minimum flow
// when the fleet total falls below the configured floor.
func (g *Governor) assistMinimumFlow(state model.ReservoirState, f model.Flows) model.Flows {
	if g.active || g.holdSteps > 0 {
		return f
	}
	if state.Level <= g.cfg.MinLevel+g.cfg.MinFlowLevelBuffer {
		return f
	}
	if f.Total() >= g.cfg.MinTotalFlow {
		return f
	}
	lead := g.leadPump()
	if m := g.minFlow[lead]; m > 0 && m <= g.caps[lead] {
		f[lead] = math.Max(f[lead], m)
	}
	return f
}

func (g *Governor) leadPump() model.PumpID {
	order := model.AllPumps
	sort.SliceStable(order[:], func(i, j int) bool {
		a, b := order[i], order[j]
		if ca, cb := usable(g.caps[a]), usable(g.caps[b]); ca != cb {
			return ca < cb
		}
		if g.dailyRuntime[a] != g.dailyRuntime[b] {
			return g.dailyRuntime[a] < g.dailyRuntime[b]
		}
		return g.runtime[a] < g.runtime[b]
	})
	return order[0]
}

// usable orders pumps without capacity after every other pump.
func usable(c float64) float64 {
	if c <= 0 {
		return math.Inf(1)
	}
	return c
}

// limitTotal clips every pump to its capacity and rescales uniformly when the
// fleet total still exceeds the total capacity.
func (g *Governor) limitTotal(f model.Flows) model.Flows {
	f = g.clip(f)
	limit := g.caps.Total()
	total := f.Total()
	if limit <= 0 || total <= limit {
		return f
	}
	scale := limit / total
	for _, p := range model.AllPumps {
		f[p] *= scale
	}
	return f
}

func (g *Governor) stepsLeftInDay(t time.Time) int {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
	if g.step <= 0 {
		return 0
	}
	return max(0, int(midnight.Sub(t)/g.step))
}
