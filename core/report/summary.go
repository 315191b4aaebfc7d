// Package report aggregates run tables into comparable indicators.
package report

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/tunnelctl/core/model"
)

// Levels outside this band count as constraint violations.
const (
	ViolationHigh = 7.5
	ViolationLow  = 1.0
)

// Summary holds the indicators of one run.
type Summary struct {
	Strategy             model.Strategy `json:"strategy"`
	Steps                int            `json:"steps"`
	DurationH            float64        `json:"duration_h"`
	EnergyKWh            float64        `json:"energy_kwh"`
	EnergyCostEUR        float64        `json:"energy_cost_eur"`
	AvgLevel             float64        `json:"avg_level_m"`
	MinLevel             float64        `json:"min_level_m"`
	MaxLevel             float64        `json:"max_level_m"`
	ConstraintViolations int            `json:"constraint_violations"`
}

// Summarize computes the indicators of records taken every stepHours.
func Summarize(records []model.Record, stepHours float64) Summary {
	s := Summary{Steps: len(records), DurationH: float64(len(records)) * stepHours}
	if len(records) == 0 {
		return s
	}
	s.Strategy = records[0].Strategy
	levels := make([]float64, len(records))
	energy := make([]float64, len(records))
	prices := make([]float64, len(records))
	for i, r := range records {
		levels[i], energy[i], prices[i] = r.Level, r.EnergyKWh, r.Price
		if r.Level > ViolationHigh || r.Level < ViolationLow {
			s.ConstraintViolations++
		}
	}
	s.EnergyKWh = floats.Sum(energy)
	s.EnergyCostEUR = floats.Dot(energy, prices)
	s.AvgLevel = stat.Mean(levels, nil)
	s.MinLevel = floats.Min(levels)
	s.MaxLevel = floats.Max(levels)
	return s
}

// Comparison puts the multi-agent run against the baseline.
type Comparison struct {
	MultiAgent Summary `json:"multi_agent"`
	Baseline   Summary `json:"baseline"`
	// CostSavingsEUR is positive when the multi-agent run was cheaper.
	CostSavingsEUR   float64 `json:"cost_savings_eur"`
	CostSavingsPct   float64 `json:"cost_savings_pct"`
	EnergySavingsKWh float64 `json:"energy_savings_kwh"`
}

// Compare summarises both runs.
func Compare(multi, base []model.Record, stepHours float64) Comparison {
	c := Comparison{
		MultiAgent: Summarize(multi, stepHours),
		Baseline:   Summarize(base, stepHours),
	}
	c.MultiAgent.Strategy = model.StrategyMultiAgent
	c.Baseline.Strategy = model.StrategyBaseline
	c.CostSavingsEUR = c.Baseline.EnergyCostEUR - c.MultiAgent.EnergyCostEUR
	c.EnergySavingsKWh = c.Baseline.EnergyKWh - c.MultiAgent.EnergyKWh
	if c.Baseline.EnergyCostEUR > 0 {
		c.CostSavingsPct = 100 * c.CostSavingsEUR / c.Baseline.EnergyCostEUR
	}
	if math.IsNaN(c.CostSavingsPct) {
		c.CostSavingsPct = 0
	}
	return c
}

// ByStrategy returns the summaries keyed by strategy.
func (c Comparison) ByStrategy() map[model.Strategy]Summary {
	return map[model.Strategy]Summary{
		model.StrategyMultiAgent: c.MultiAgent,
		model.StrategyBaseline:   c.Baseline,
	}
}
