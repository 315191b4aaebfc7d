package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/tunnelctl/core/model"
)

func rec(level, energy, price float64, s model.Strategy) model.Record {
	return model.Record{Level: level, EnergyKWh: energy, Price: price, Strategy: s}
}

func TestSummarize(t *testing.T) {
	records := []model.Record{
		rec(2, 10, 0.1, model.StrategyBaseline),
		rec(8, 20, 0.2, model.StrategyBaseline),
		rec(0.5, 0, 0.3, model.StrategyBaseline),
		rec(5, 5, 0.1, model.StrategyBaseline),
	}
	s := Summarize(records, 0.25)
	assert.Equal(t, model.StrategyBaseline, s.Strategy)
	assert.Equal(t, 4, s.Steps)
	assert.Equal(t, 1.0, s.DurationH)
	assert.InDelta(t, 35, s.EnergyKWh, 1e-12)
	assert.InDelta(t, 1+4+0.5, s.EnergyCostEUR, 1e-12)
	assert.InDelta(t, 3.875, s.AvgLevel, 1e-12)
	assert.Equal(t, 0.5, s.MinLevel)
	assert.Equal(t, 8.0, s.MaxLevel)
	assert.Equal(t, 2, s.ConstraintViolations)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 0.25)
	assert.Equal(t, Summary{}, s)
}

func TestCompare(t *testing.T) {
	multi := []model.Record{rec(3, 10, 0.1, model.StrategyMultiAgent)}
	base := []model.Record{rec(3, 20, 0.1, model.StrategyBaseline)}
	c := Compare(multi, base, 0.25)
	assert.InDelta(t, 1, c.CostSavingsEUR, 1e-12)
	assert.InDelta(t, 50, c.CostSavingsPct, 1e-9)
	assert.InDelta(t, 10, c.EnergySavingsKWh, 1e-12)
	assert.Len(t, c.ByStrategy(), 2)
	assert.Equal(t, model.StrategyMultiAgent, c.ByStrategy()[model.StrategyMultiAgent].Strategy)

	c = Compare(nil, nil, 0.25)
	assert.Equal(t, 0.0, c.CostSavingsPct)
}
