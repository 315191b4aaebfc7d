package physics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tunnelctl/core/curve"
	"github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/model"
)

var t0 = time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

func newTwin(t *testing.T, steps int, level, inflow, priceCents float64) *Twin {
	t.Helper()
	data, err := history.Synthetic(history.Profile{Start: t0, Steps: steps, Level: level, Inflow: inflow, PriceCents: priceCents})
	require.NoError(t, err)
	tw, err := New(data, DefaultEnvConfig(), nil)
	require.NoError(t, err)
	return tw
}

func TestStepBeforeReset(t *testing.T) {
	tw := newTwin(t, 4, 2, 500, 10)
	_, _, err := tw.Step(model.Flows{})
	assert.True(t, errors.Is(err, ErrNotReset))
	_, err = tw.State()
	assert.True(t, errors.Is(err, ErrNotReset))
}

func TestResetUnknownStart(t *testing.T) {
	tw := newTwin(t, 4, 2, 500, 10)
	_, err := tw.Reset(t0.Add(7 * time.Minute))
	assert.True(t, errors.Is(err, ErrStartNotFound))
}

func TestResetInitialState(t *testing.T) {
	tw := newTwin(t, 4, 3, 500, 12)
	st, err := tw.Reset(t0.Add(15 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(15*time.Minute), st.Timestamp)
	assert.Equal(t, 3.0, st.Level)
	assert.InDelta(t, curve.VolumeFromLevel(3), st.Volume, 1e-9)
	assert.InDelta(t, 0.12, st.Price, 1e-12)
	assert.Equal(t, 500.0, st.Inflow)
	assert.Equal(t, 1, tw.Cursor())
}

func TestMassBalanceZeroSum(t *testing.T) {
	tw := newTwin(t, 4, 3, 1700, 10)
	st, err := tw.Reset(time.Time{})
	require.NoError(t, err)
	var cmd model.Flows
	cmd[model.Pump11] = 1700
	next, info, err := tw.Step(cmd)
	require.NoError(t, err)
	assert.InDelta(t, st.Volume, next.Volume, 1e-9)
	assert.InDelta(t, st.Level, next.Level, 1e-9)
	assert.Equal(t, 1700.0, info.TotalOutflow)
	assert.Equal(t, 1700.0, info.Inflow)
}

func TestMassBalanceDrain(t *testing.T) {
	tw := newTwin(t, 4, 3, 500, 10)
	st, err := tw.Reset(time.Time{})
	require.NoError(t, err)
	var cmd model.Flows
	cmd[model.Pump21] = 3000
	next, _, err := tw.Step(cmd)
	require.NoError(t, err)
	assert.InDelta(t, st.Volume+(500-3000)*0.25, next.Volume, 1e-9)
	assert.Less(t, next.Level, st.Level)
	assert.Equal(t, cmd, next.Flows)
}

func TestVolumeNeverNegative(t *testing.T) {
	tw := newTwin(t, 4, 0.4, 0, 10)
	_, err := tw.Reset(time.Time{})
	require.NoError(t, err)
	var cmd model.Flows
	for _, p := range model.AllPumps {
		cmd[p] = 1e6
	}
	next, _, err := tw.Step(cmd)
	require.NoError(t, err)
	assert.Equal(t, 0.0, next.Volume)
	assert.Equal(t, curve.LevelMin, next.Level)
}

func TestSanitize(t *testing.T) {
	tw := newTwin(t, 2, 2, 0, 10)
	var cmd model.Flows
	cmd[model.Pump11] = -5
	cmd[model.Pump12] = math.NaN()
	cmd[model.Pump13] = 99999
	cmd[model.Pump21] = math.Inf(1)
	cmd[model.Pump22] = 3100
	got := tw.Sanitize(cmd)
	assert.Equal(t, 0.0, got[model.Pump11])
	assert.Equal(t, 0.0, got[model.Pump12])
	assert.Equal(t, 1700.0, got[model.Pump13])
	assert.Equal(t, 3350.0, got[model.Pump21])
	assert.Equal(t, 3100.0, got[model.Pump22])
}

func TestCapacityFromHistoryPercentile(t *testing.T) {
	samples := make([]history.Sample, 200)
	for i := range samples {
		samples[i] = history.Sample{Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute), Level: 2}
		samples[i].Flows[model.Pump14] = 1000
	}
	data, err := history.New(samples)
	require.NoError(t, err)
	cfg := DefaultEnvConfig()
	cfg.Pumps[model.Pump14].Capacity = 0
	cfg.Pumps[model.Pump14].MinFlow = 0
	tw, err := New(data, cfg, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1000, tw.Capacities()[model.Pump14], 1e-9)
	var cmd model.Flows
	cmd[model.Pump14] = 1500
	assert.InDelta(t, 1000, tw.Sanitize(cmd)[model.Pump14], 1e-9)
}

func TestEnergy(t *testing.T) {
	tw := newTwin(t, 2, 2, 0, 10)
	var flows model.Flows
	flows[model.Pump11] = 1670
	head := 30.0 - 2.0
	want := (1670.0 / 3600) * head * 1000 * 9.81 / 0.816 / 1000 * 0.25
	assert.InDelta(t, want, tw.Energy(2, flows), 1e-9)
	assert.Equal(t, 0.0, tw.Energy(2, model.Flows{}))

	cfg := DefaultEnvConfig()
	cfg.DischargeLevel = 1
	data, err := history.Synthetic(history.Profile{Start: t0, Steps: 2, Level: 2})
	require.NoError(t, err)
	low, err := New(data, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, low.Energy(2, flows), "no energy without positive head")
}

func TestEndOfHistoryHoldsLastRecord(t *testing.T) {
	tw := newTwin(t, 2, 2, 100, 10)
	_, err := tw.Reset(time.Time{})
	require.NoError(t, err)
	s1, info, err := tw.Step(model.Flows{})
	require.NoError(t, err)
	assert.False(t, info.AtEnd)
	s2, info, err := tw.Step(model.Flows{})
	require.NoError(t, err)
	assert.True(t, info.AtEnd)
	assert.Equal(t, s1.Timestamp, s2.Timestamp)
	assert.Greater(t, s2.Volume, s1.Volume)
}

func TestDeterministicReplay(t *testing.T) {
	run := func() []model.ReservoirState {
		tw := newTwin(t, 10, 4, 900, 10)
		_, err := tw.Reset(time.Time{})
		require.NoError(t, err)
		var out []model.ReservoirState
		for i := 0; i < 8; i++ {
			var cmd model.Flows
			cmd[model.AllPumps[i%model.NumPumps]] = float64(1000 + 100*i)
			st, _, err := tw.Step(cmd)
			require.NoError(t, err)
			out = append(out, st)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestNewRejectsStepMismatch(t *testing.T) {
	data, err := history.Synthetic(history.Profile{Start: t0, Steps: 3, Step: time.Hour})
	require.NoError(t, err)
	_, err = New(data, DefaultEnvConfig(), nil)
	assert.True(t, errors.Is(err, ErrStepMismatch))
}
