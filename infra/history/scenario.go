package history

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"
	"gopkg.in/yaml.v3"

	corehistory "github.com/kilianp07/tunnelctl/core/history"
)

// HourValue is one point of a daily profile.
type HourValue struct {
	Hour  float64 `yaml:"hour"`
	Value float64 `yaml:"value"`
}

// Storm raises the inflow to Inflow for Steps steps from StartStep.
type Storm struct {
	StartStep int     `yaml:"start_step"`
	Steps     int     `yaml:"steps"`
	Inflow    float64 `yaml:"inflow_m3h"`
}

// Scenario describes a synthetic history. Daily profiles are linearly
// interpolated over the hour of day and override the constant values.
type Scenario struct {
	Start         time.Time     `yaml:"start"`
	Steps         int           `yaml:"steps"`
	Step          time.Duration `yaml:"step"`
	Level         float64       `yaml:"level_m"`
	Inflow        float64       `yaml:"inflow_m3h"`
	PriceCents    float64       `yaml:"price_cents"`
	InflowProfile []HourValue   `yaml:"inflow_profile"`
	PriceProfile  []HourValue   `yaml:"price_profile"`
	Storms        []Storm       `yaml:"storms"`
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(r io.Reader) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return sc, fmt.Errorf("decode scenario: %w", err)
	}
	return sc, sc.Validate()
}

// Validate checks the scenario.
func (sc Scenario) Validate() error {
	if sc.Steps <= 0 {
		return errors.New("scenario: steps must be positive")
	}
	if sc.Step < 0 {
		return errors.New("scenario: step must be >= 0")
	}
	for _, st := range sc.Storms {
		if st.StartStep < 0 || st.Steps <= 0 {
			return fmt.Errorf("scenario: invalid storm at step %d", st.StartStep)
		}
	}
	return nil
}

// dailyProfile interpolates values over the hour of day.
func dailyProfile(points []HourValue) (func(time.Time) float64, error) {
	if len(points) == 0 {
		return nil, nil
	}
	pts := append([]HourValue(nil), points...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Hour < pts[j].Hour })
	if len(pts) == 1 {
		v := pts[0].Value
		return func(time.Time) float64 { return v }, nil
	}
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		if p.Hour < 0 || p.Hour > 24 {
			return nil, fmt.Errorf("scenario: hour %.2f out of range", p.Hour)
		}
		xs[i], ys[i] = p.Hour, p.Value
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("scenario: profile: %w", err)
	}
	return func(t time.Time) float64 {
		h := float64(t.Hour()) + float64(t.Minute())/60
		return pl.Predict(h)
	}, nil
}

// Profile converts the scenario to a synthetic history profile.
func (sc Scenario) Profile() (corehistory.Profile, error) {
	p := corehistory.Profile{
		Start:      sc.Start,
		Steps:      sc.Steps,
		Step:       sc.Step,
		Level:      sc.Level,
		Inflow:     sc.Inflow,
		PriceCents: sc.PriceCents,
	}
	inflow, err := dailyProfile(sc.InflowProfile)
	if err != nil {
		return p, err
	}
	price, err := dailyProfile(sc.PriceProfile)
	if err != nil {
		return p, err
	}
	storms := sc.Storms
	p.InflowAt = func(i int, t time.Time) float64 {
		v := sc.Inflow
		if inflow != nil {
			v = inflow(t)
		}
		for _, st := range storms {
			if i >= st.StartStep && i < st.StartStep+st.Steps {
				v = st.Inflow
			}
		}
		return v
	}
	if price != nil {
		p.PriceAt = func(_ int, t time.Time) float64 { return price(t) }
	}
	return p, nil
}

// LoadScenario decodes a scenario and builds its dataset.
func LoadScenario(r io.Reader) (*corehistory.Dataset, error) {
	sc, err := ParseScenario(r)
	if err != nil {
		return nil, err
	}
	p, err := sc.Profile()
	if err != nil {
		return nil, err
	}
	return corehistory.Synthetic(p)
}

// LoadScenarioFile opens path and calls LoadScenario.
func LoadScenarioFile(path string) (*corehistory.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	ds, err := LoadScenario(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}
