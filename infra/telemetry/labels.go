package telemetry

import (
	"math"

	"github.com/kilianp07/tunnelctl/core/model"
)

func pumpLabel(i int) string { return model.PumpID(i).String() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
