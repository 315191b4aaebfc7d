// Package physics implements the deterministic digital twin of the tunnel.
// Only the stored volume is simulated; inflow and price are replayed from
// the historical record.
package physics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/tunnelctl/core/curve"
	"github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/logger"
	"github.com/kilianp07/tunnelctl/core/model"
)

var (
	// ErrNotReset is returned by Step when Reset was never called.
	ErrNotReset = errors.New("twin not reset")
	// ErrStartNotFound is returned when the start time is not in the history.
	ErrStartNotFound = errors.New("start timestamp not found in history")
	// ErrStepMismatch is returned when the dataset interval differs from the
	// configured timestep.
	ErrStepMismatch = errors.New("dataset interval does not match timestep")
)

// Twin replays the historical record while simulating the tunnel volume.
type Twin struct {
	data   *history.Dataset
	cfg    EnvConfig
	caps   model.Flows
	cursor int
	state  model.ReservoirState
	ready  bool
	log    logger.Logger
}

// New builds a twin over data. Pumps without a configured capacity are
// bounded by the 99th percentile of their historical flow.
func New(data *history.Dataset, cfg EnvConfig, log logger.Logger) (*Twin, error) {
	if data == nil {
		return nil, history.ErrEmpty
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if data.Len() > 1 && data.Step() != cfg.Step() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrStepMismatch, data.Step(), cfg.Step())
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	caps := cfg.Capacities()
	p99 := data.FlowP99()
	for _, p := range model.AllPumps {
		if caps[p] <= 0 {
			caps[p] = math.Max(p99[p], 0)
			log.Debugf("pump %s capacity derived from history: %.1f m3/h", p, caps[p])
		}
	}
	return &Twin{data: data, cfg: cfg, caps: caps, log: log}, nil
}

// Config returns the twin configuration.
func (t *Twin) Config() EnvConfig { return t.cfg }

// Capacities returns the effective capacity of every pump.
func (t *Twin) Capacities() model.Flows { return t.caps }

// Cursor returns the index of the current record.
func (t *Twin) Cursor() int { return t.cursor }

// Reset positions the replay at start and returns the initial state. A zero
// start selects the first record.
func (t *Twin) Reset(start time.Time) (model.ReservoirState, error) {
	idx := 0
	if !start.IsZero() {
		i, ok := t.data.IndexOf(start)
		if !ok {
			return model.ReservoirState{}, fmt.Errorf("%w: %s", ErrStartNotFound, start.Format(time.RFC3339))
		}
		idx = i
	}
	t.cursor = idx
	row := t.data.At(idx)
	t.state = model.ReservoirState{
		Timestamp: row.Timestamp,
		Volume:    curve.VolumeFromLevel(row.Level),
		Level:     row.Level,
		Price:     t.price(row),
		Inflow:    row.Inflow,
		Flows:     row.Flows,
	}
	t.ready = true
	return t.state, nil
}

// State returns the current state.
func (t *Twin) State() (model.ReservoirState, error) {
	if !t.ready {
		return model.ReservoirState{}, ErrNotReset
	}
	return t.state, nil
}

// Step applies the commanded flows for one timestep. Commands are clamped to
// [0, capacity] before the mass balance. When the history is exhausted the
// last record is held and StepInfo.AtEnd is set.
func (t *Twin) Step(cmd model.Flows) (model.ReservoirState, model.StepInfo, error) {
	if !t.ready {
		return model.ReservoirState{}, model.StepInfo{}, ErrNotReset
	}
	row := t.data.At(t.cursor)
	safe := t.Sanitize(cmd)
	outflow := safe.Total()
	dt := t.cfg.StepHours()

	nextVolume := math.Max(0, t.state.Volume+(row.Inflow-outflow)*dt)
	energy := t.Energy(t.state.Level, safe)

	atEnd := false
	t.cursor++
	if t.cursor >= t.data.Len() {
		t.cursor = t.data.Len() - 1
		atEnd = true
	}
	next := t.data.At(t.cursor)
	t.state = model.ReservoirState{
		Timestamp: next.Timestamp,
		Volume:    nextVolume,
		Level:     curve.LevelFromVolume(nextVolume),
		Price:     t.price(next),
		Inflow:    next.Inflow,
		Flows:     safe,
	}
	info := model.StepInfo{
		TotalOutflow: outflow,
		Inflow:       row.Inflow,
		Price:        t.price(row),
		EnergyKWh:    energy,
		Commands:     safe,
		AtEnd:        atEnd,
	}
	if atEnd {
		t.log.Warnf("history exhausted at %s, holding last record", next.Timestamp.Format(time.RFC3339))
	}
	return t.state, info, nil
}

// Sanitize clamps every command to [0, capacity]. Non-finite values are
// treated as zero.
func (t *Twin) Sanitize(cmd model.Flows) model.Flows {
	var out model.Flows
	for _, p := range model.AllPumps {
		v := cmd[p]
		if math.IsNaN(v) || math.IsInf(v, -1) {
			v = 0
		}
		out[p] = math.Min(math.Max(v, 0), math.Max(t.caps[p], 0))
	}
	return out
}

// Energy returns the electrical energy in kWh drawn over one timestep by the
// given flows when the tunnel sits at level.
func (t *Twin) Energy(level float64, flows model.Flows) float64 {
	head := t.cfg.DischargeLevel - level
	if head <= 0 {
		return 0
	}
	dt := t.cfg.StepHours()
	var kwh float64
	for _, p := range model.AllPumps {
		q := flows[p]
		if q <= 0 {
			continue
		}
		watts := (q / 3600) * head * t.cfg.WaterDensity * t.cfg.Gravity / curve.Efficiency(p, q)
		kwh += watts / 1000 * dt
	}
	return math.Max(kwh, 0)
}

func (t *Twin) price(s history.Sample) float64 {
	return s.PriceCents / t.cfg.PriceMinorPerUnit
}
