package history

import "time"

// Profile describes a synthetic series. Inflow and price may vary per step
// through the optional callbacks; otherwise the constant values are used.
type Profile struct {
	Start      time.Time
	Steps      int
	Step       time.Duration
	Level      float64
	Inflow     float64
	PriceCents float64
	InflowAt   func(i int, t time.Time) float64
	PriceAt    func(i int, t time.Time) float64
}

// Synthetic builds a dataset from a profile. It is used by scenario files
// and tests where no plant history is available.
func Synthetic(p Profile) (*Dataset, error) {
	step := p.Step
	if step <= 0 {
		step = DefaultStep
	}
	samples := make([]Sample, p.Steps)
	for i := range samples {
		ts := p.Start.Add(time.Duration(i) * step)
		inflow, price := p.Inflow, p.PriceCents
		if p.InflowAt != nil {
			inflow = p.InflowAt(i, ts)
		}
		if p.PriceAt != nil {
			price = p.PriceAt(i, ts)
		}
		samples[i] = Sample{Timestamp: ts, Level: p.Level, Inflow: inflow, PriceCents: price}
	}
	return New(samples)
}
