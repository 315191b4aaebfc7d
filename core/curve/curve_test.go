package curve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tunnelctl/core/model"
)

func TestVolumeCheckpoints(t *testing.T) {
	assert.Equal(t, VolumeMin, VolumeFromLevel(LevelMin))
	assert.InDelta(t, VolumeB, VolumeFromLevel(LevelB), 1e-9)
	assert.InDelta(t, VolumeC, VolumeFromLevel(LevelC), 1e-9)
	assert.InDelta(t, VolumeMax, VolumeFromLevel(LevelMax), 1e-9)
}

func TestVolumeContinuousAtBreakpoints(t *testing.T) {
	const eps = 1e-7
	for _, b := range []float64{LevelMin, LevelB, LevelC, LevelMax} {
		assert.InDelta(t, VolumeFromLevel(b-eps), VolumeFromLevel(b+eps), 1e-2, "breakpoint %v", b)
	}
}

func TestLevelVolumeRoundTrip(t *testing.T) {
	for l := LevelMin; l <= LevelMax; l += 0.01 {
		got := LevelFromVolume(VolumeFromLevel(l))
		require.InDelta(t, l, got, 1e-6, "level %v", l)
	}
}

func TestVolumeMonotonicAndConstantOutsideDomain(t *testing.T) {
	prev := VolumeFromLevel(-2)
	for l := -2.0; l <= 20; l += 0.005 {
		v := VolumeFromLevel(l)
		require.GreaterOrEqual(t, v, prev, "level %v", l)
		prev = v
	}
	assert.Equal(t, VolumeMin, VolumeFromLevel(-5))
	assert.Equal(t, VolumeMin, VolumeFromLevel(0.1))
	assert.Equal(t, VolumeMax, VolumeFromLevel(15))
	assert.Equal(t, VolumeMax, VolumeFromLevel(100))
}

func TestLevelFromVolumeClamps(t *testing.T) {
	assert.Equal(t, LevelMin, LevelFromVolume(0))
	assert.Equal(t, LevelMin, LevelFromVolume(-10))
	assert.Equal(t, LevelMax, LevelFromVolume(1e9))
}

func TestEfficiency(t *testing.T) {
	assert.InDelta(t, 0.816, Efficiency(model.Pump11, 1670), 1e-9)
	assert.InDelta(t, (0.845+0.848)/2, NominalEfficiency(model.Pump21), 1e-9)
	// halfway between 0.80 and 0.90 ratio for the small class
	assert.InDelta(t, (0.79+0.805)/2, Efficiency(model.Pump12, 0.85*1670), 1e-9)
	// clamped at the table ends
	assert.InDelta(t, 0.79, Efficiency(model.Pump13, 10), 1e-9)
	assert.InDelta(t, 0.80, Efficiency(model.Pump24, 1e6), 1e-9)
	for _, p := range model.AllPumps {
		for q := 0.0; q < 6000; q += 100 {
			assert.GreaterOrEqual(t, Efficiency(p, q), MinEfficiency)
		}
	}
}

func TestFrequency(t *testing.T) {
	assert.InDelta(t, 50, Frequency(model.Pump11, 1670), 1e-9)
	assert.InDelta(t, 40, Frequency(model.Pump21, 0), 1e-9)
	assert.InDelta(t, 47.8, Frequency(model.Pump22, 0.9*3330), 1e-9)
}
