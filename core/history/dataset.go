// Package history holds the immutable historical record replayed by the
// digital twin and used to fit the forecast models. A Dataset is built once,
// then passed explicitly to every component that needs it.
package history

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/tunnelctl/core/model"
)

// DefaultStep is assumed when the step cannot be inferred.
const DefaultStep = 15 * time.Minute

var (
	// ErrEmpty is returned when a dataset has no samples.
	ErrEmpty = errors.New("empty dataset")
	// ErrIrregular is returned when samples are not evenly spaced.
	ErrIrregular = errors.New("irregular sampling interval")
)

// Sample is one row of the historical series.
type Sample struct {
	Timestamp  time.Time
	Level      float64 // m
	Inflow     float64 // m³/h
	PriceCents float64 // c/kWh
	Flows      model.Flows
}

// Dataset is a fixed-interval, gap-filled series.
type Dataset struct {
	samples []Sample
	step    time.Duration
	index   map[int64]int
	flowP99 model.Flows
}

// New validates, sorts and gap-fills samples. Missing values (NaN) are
// forward filled, then back filled.
func New(samples []Sample) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	cp := append([]Sample(nil), samples...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Timestamp.Before(cp[j].Timestamp) })

	step := DefaultStep
	if len(cp) > 1 {
		step = cp[1].Timestamp.Sub(cp[0].Timestamp)
		if step <= 0 {
			return nil, fmt.Errorf("%w: duplicate timestamp %s", ErrIrregular, cp[0].Timestamp)
		}
	}
	idx := make(map[int64]int, len(cp))
	for i, s := range cp {
		if i > 0 && s.Timestamp.Sub(cp[i-1].Timestamp) != step {
			return nil, fmt.Errorf("%w: gap before %s", ErrIrregular, s.Timestamp)
		}
		idx[s.Timestamp.Unix()] = i
	}

	fill(cp, func(s *Sample) *float64 { return &s.Level })
	fill(cp, func(s *Sample) *float64 { return &s.Inflow })
	fill(cp, func(s *Sample) *float64 { return &s.PriceCents })
	for _, p := range model.AllPumps {
		fill(cp, func(s *Sample) *float64 { return &s.Flows[p] })
	}

	d := &Dataset{samples: cp, step: step, index: idx}
	for _, p := range model.AllPumps {
		d.flowP99[p] = d.FlowQuantile(p, 0.99)
	}
	return d, nil
}

func fill(samples []Sample, field func(*Sample) *float64) {
	last := math.NaN()
	for i := range samples {
		v := field(&samples[i])
		if math.IsNaN(*v) {
			*v = last
		} else {
			last = *v
		}
	}
	next := math.NaN()
	for i := len(samples) - 1; i >= 0; i-- {
		v := field(&samples[i])
		if math.IsNaN(*v) {
			*v = next
		} else {
			next = *v
		}
	}
	for i := range samples {
		if v := field(&samples[i]); math.IsNaN(*v) {
			*v = 0
		}
	}
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.samples) }

// Step returns the sampling interval.
func (d *Dataset) Step() time.Duration { return d.step }

// At returns the sample at index i.
func (d *Dataset) At(i int) Sample { return d.samples[i] }

// Start returns the first timestamp.
func (d *Dataset) Start() time.Time { return d.samples[0].Timestamp }

// End returns the last timestamp.
func (d *Dataset) End() time.Time { return d.samples[len(d.samples)-1].Timestamp }

// IndexOf returns the index of the sample at t.
func (d *Dataset) IndexOf(t time.Time) (int, bool) {
	i, ok := d.index[t.Unix()]
	return i, ok
}

// Inflow returns a copy of the inflow series in m³/h.
func (d *Dataset) Inflow() []float64 {
	return d.series(func(s Sample) float64 { return s.Inflow })
}

// Price returns a copy of the price series converted to €/kWh, given the
// number of recorded minor units per euro. A non-positive divisor means 100.
func (d *Dataset) Price(minorPerUnit float64) []float64 {
	if minorPerUnit <= 0 {
		minorPerUnit = 100
	}
	return d.series(func(s Sample) float64 { return s.PriceCents / minorPerUnit })
}

// Timestamps returns a copy of the time index.
func (d *Dataset) Timestamps() []time.Time {
	ts := make([]time.Time, len(d.samples))
	for i, s := range d.samples {
		ts[i] = s.Timestamp
	}
	return ts
}

func (d *Dataset) series(get func(Sample) float64) []float64 {
	out := make([]float64, len(d.samples))
	for i, s := range d.samples {
		out[i] = get(s)
	}
	return out
}

// FlowQuantile returns the q-quantile of the historical flow of pump p.
func (d *Dataset) FlowQuantile(p model.PumpID, q float64) float64 {
	xs := d.series(func(s Sample) float64 { return s.Flows[p] })
	sort.Float64s(xs)
	return stat.Quantile(q, stat.LinInterp, xs, nil)
}

// FlowP99 returns the cached 99th percentile of each pump's flow.
func (d *Dataset) FlowP99() model.Flows { return d.flowP99 }
