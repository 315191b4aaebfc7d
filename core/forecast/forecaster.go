// Package forecast predicts inflow and electricity price over the planning
// horizon. Future records are read directly when the history has them;
// otherwise a ridge regression on lagged windows is rolled forward.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/logger"
)

// ErrNoHistory is returned when no observation precedes the requested time.
var ErrNoHistory = errors.New("no history before timestamp")

// Signal identifies a forecast series.
type Signal int

const (
	SignalInflow Signal = iota
	SignalPrice
)

func (s Signal) String() string {
	if s == SignalPrice {
		return "price"
	}
	return "inflow"
}

// Forecast is a horizon of predicted values aligned on Timestamps.
type Forecast struct {
	Timestamps []time.Time
	Inflow     []float64 // m³/h
	Price      []float64 // €/kWh
	// Oracle is true when values were read from future records.
	Oracle bool
}

// MeanInflow returns the average predicted inflow.
func (f Forecast) MeanInflow() float64 { return mean(f.Inflow) }

// MeanPrice returns the average predicted price.
func (f Forecast) MeanPrice() float64 { return mean(f.Price) }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Forecaster serves forecasts from a dataset. Models are fitted once in New
// and never modified afterwards, so a Forecaster may be shared by runs.
type Forecaster struct {
	cfg    Config
	ts     []time.Time
	step   time.Duration
	data   *history.Dataset
	series map[Signal][]float64
	models map[Signal]*Ridge
	log    logger.Logger
}

// New fits the fallback models on data.
func New(data *history.Dataset, cfg Config, log logger.Logger) (*Forecaster, error) {
	if data == nil {
		return nil, history.ErrEmpty
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	f := &Forecaster{
		cfg:  cfg,
		ts:   data.Timestamps(),
		step: data.Step(),
		data: data,
		series: map[Signal][]float64{
			SignalInflow: data.Inflow(),
			SignalPrice:  data.Price(cfg.PriceMinorPerUnit),
		},
		models: make(map[Signal]*Ridge, 2),
		log:    log,
	}
	for _, sig := range []Signal{SignalInflow, SignalPrice} {
		m, err := f.fit(f.series[sig])
		if err != nil {
			log.Warnf("forecast %s model not fitted: %v", sig, err)
			continue
		}
		f.models[sig] = m
		log.Debugf("forecast %s model fitted on %d lags", sig, cfg.LagSteps)
	}
	return f, nil
}

// Config returns the effective configuration.
func (f *Forecaster) Config() Config { return f.cfg }

// Fitted reports whether a regression model exists for sig.
func (f *Forecaster) Fitted(sig Signal) bool { return f.models[sig] != nil }

func (f *Forecaster) fit(values []float64) (*Ridge, error) {
	lag := f.cfg.LagSteps
	var x [][]float64
	var y []float64
	for i := lag; i < len(values); i++ {
		window := values[i-lag : i]
		if hasNaN(window) || math.IsNaN(values[i]) {
			continue
		}
		x = append(x, NewFeatures(window, f.ts[i]).Vector())
		y = append(y, values[i])
	}
	if len(y) < f.cfg.MinTrainingRows {
		return nil, fmt.Errorf("%d training rows, need %d", len(y), f.cfg.MinTrainingRows)
	}
	r := &Ridge{Alpha: f.cfg.RidgeAlpha}
	if err := r.Fit(x, y); err != nil {
		return nil, err
	}
	return r, nil
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// Predict returns the HorizonSteps values following ts.
func (f *Forecaster) Predict(ts time.Time) (Forecast, error) {
	h := f.cfg.HorizonSteps
	out := Forecast{Timestamps: make([]time.Time, h)}
	for k := range out.Timestamps {
		out.Timestamps[k] = ts.Add(time.Duration(k+1) * f.step)
	}

	if idx, ok := f.data.IndexOf(ts); ok && f.cfg.OracleEnabled() && idx+1 < len(f.ts) {
		out.Inflow = padded(f.series[SignalInflow][idx+1:], h)
		out.Price = padded(f.series[SignalPrice][idx+1:], h)
		out.Oracle = true
		return out, nil
	}

	n := f.observedUntil(ts)
	if n == 0 {
		return Forecast{}, fmt.Errorf("forecast at %s: %w", ts.Format(time.RFC3339), ErrNoHistory)
	}
	out.Inflow = f.recursive(SignalInflow, n, out.Timestamps)
	out.Price = f.recursive(SignalPrice, n, out.Timestamps)
	return out, nil
}

// observedUntil returns the number of records at or before ts.
func (f *Forecaster) observedUntil(ts time.Time) int {
	return sort.Search(len(f.ts), func(i int) bool { return f.ts[i].After(ts) })
}

func padded(src []float64, h int) []float64 {
	out := make([]float64, h)
	n := copy(out, src)
	for k := n; k < h; k++ {
		out[k] = out[n-1]
	}
	return out
}

func (f *Forecaster) recursive(sig Signal, observed int, grid []time.Time) []float64 {
	hist := f.series[sig][:observed]
	last := hist[len(hist)-1]
	out := make([]float64, len(grid))
	model := f.models[sig]
	if model == nil {
		for k := range out {
			out[k] = last
		}
		return out
	}

	lag := f.cfg.LagSteps
	buf := make([]float64, lag)
	tail := hist
	if len(tail) > lag {
		tail = tail[len(tail)-lag:]
	}
	for k := range buf[:lag-len(tail)] {
		buf[k] = last
	}
	copy(buf[lag-len(tail):], tail)

	for k, t := range grid {
		v := model.Predict(NewFeatures(buf, t).Vector())
		out[k] = v
		copy(buf, buf[1:])
		buf[lag-1] = v
	}
	return out
}
