package physics

import (
	"fmt"
	"time"

	"github.com/kilianp07/tunnelctl/core/model"
)

// PumpSpec holds the rated limits of one pump.
type PumpSpec struct {
	// Capacity is the rated flow at ~50 Hz in m³/h. Zero means unknown, in
	// which case the 99th percentile of the pump's history is used.
	Capacity float64 `json:"capacity_m3h"`
	// MinFlow is the lowest viable operating flow (≥47.8 Hz) in m³/h.
	MinFlow float64 `json:"min_flow_m3h"`
}

// EnvConfig parameterises the digital twin.
type EnvConfig struct {
	TimestepMinutes   int                      `json:"timestep_minutes"`
	MinLevel          float64                  `json:"min_level_m"`
	MaxLevel          float64                  `json:"max_level_m"`
	DischargeLevel    float64                  `json:"discharge_level_m"`
	WaterDensity      float64                  `json:"water_density_kg_m3"`
	Gravity           float64                  `json:"gravity_m_s2"`
	Pumps             [model.NumPumps]PumpSpec `json:"-"`
	PriceMinorPerUnit float64                  `json:"price_minor_per_unit"`
}

// DefaultEnvConfig returns the plant defaults: small pumps rated at
// 1700 m³/h (min 1400), large pumps at 3350 m³/h (min 3000).
func DefaultEnvConfig() EnvConfig {
	cfg := EnvConfig{
		TimestepMinutes:   15,
		MinLevel:          0.5,
		MaxLevel:          8.0,
		DischargeLevel:    30.0,
		WaterDensity:      1000,
		Gravity:           9.81,
		PriceMinorPerUnit: 100,
	}
	for _, p := range model.AllPumps {
		if p.Class() == model.ClassLarge {
			cfg.Pumps[p] = PumpSpec{Capacity: 3350, MinFlow: 3000}
		} else {
			cfg.Pumps[p] = PumpSpec{Capacity: 1700, MinFlow: 1400}
		}
	}
	return cfg
}

// SetDefaults fills zero values with the plant defaults. Pump specs are left
// untouched so that a zero capacity keeps meaning "derive from history".
func (c *EnvConfig) SetDefaults() {
	def := DefaultEnvConfig()
	if c.TimestepMinutes == 0 {
		c.TimestepMinutes = def.TimestepMinutes
	}
	if c.MinLevel == 0 {
		c.MinLevel = def.MinLevel
	}
	if c.MaxLevel == 0 {
		c.MaxLevel = def.MaxLevel
	}
	if c.DischargeLevel == 0 {
		c.DischargeLevel = def.DischargeLevel
	}
	if c.WaterDensity == 0 {
		c.WaterDensity = def.WaterDensity
	}
	if c.Gravity == 0 {
		c.Gravity = def.Gravity
	}
	if c.PriceMinorPerUnit == 0 {
		c.PriceMinorPerUnit = def.PriceMinorPerUnit
	}
}

// Validate checks physical consistency.
func (c EnvConfig) Validate() error {
	if c.TimestepMinutes <= 0 {
		return fmt.Errorf("timestep_minutes must be positive")
	}
	if c.MaxLevel <= c.MinLevel {
		return fmt.Errorf("max_level_m %.2f must exceed min_level_m %.2f", c.MaxLevel, c.MinLevel)
	}
	for _, p := range model.AllPumps {
		s := c.Pumps[p]
		if s.Capacity < 0 || s.MinFlow < 0 {
			return fmt.Errorf("pump %s: negative limits", p)
		}
		if s.Capacity > 0 && s.MinFlow > s.Capacity {
			return fmt.Errorf("pump %s: min flow %.0f exceeds capacity %.0f", p, s.MinFlow, s.Capacity)
		}
	}
	return nil
}

// Step returns the timestep as a duration.
func (c EnvConfig) Step() time.Duration { return time.Duration(c.TimestepMinutes) * time.Minute }

// StepHours returns the timestep in hours.
func (c EnvConfig) StepHours() float64 { return float64(c.TimestepMinutes) / 60 }

// Capacities returns the configured capacity of every pump.
func (c EnvConfig) Capacities() model.Flows {
	var f model.Flows
	for _, p := range model.AllPumps {
		f[p] = c.Pumps[p].Capacity
	}
	return f
}

// MinFlows returns the minimum operating flow of every pump.
func (c EnvConfig) MinFlows() model.Flows {
	var f model.Flows
	for _, p := range model.AllPumps {
		f[p] = c.Pumps[p].MinFlow
	}
	return f
}
