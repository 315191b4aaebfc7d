package curve

import (
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/kilianp07/tunnelctl/core/model"
)

// MinEfficiency is the floor applied to every interpolated efficiency.
const MinEfficiency = 0.70

// point is a (flow ratio to nominal, value) pair of a pump table.
type point struct{ ratio, value float64 }

var nominalFlows = map[model.PumpClass]float64{
	model.ClassSmall: 1_670,
	model.ClassLarge: 3_330,
}

var efficiencyTables = map[model.PumpClass][]point{
	model.ClassSmall: {{0.80, 0.79}, {0.90, 0.805}, {1.00, 0.816}, {1.10, 0.805}, {1.20, 0.780}},
	model.ClassLarge: {{0.75, 0.81}, {0.85, 0.835}, {0.95, 0.845}, {1.05, 0.848}, {1.15, 0.835}, {1.30, 0.800}},
}

var frequencyTables = map[model.PumpClass][]point{
	model.ClassSmall: {{0.70, 40}, {0.80, 45}, {0.90, 47.8}, {1.00, 50}, {1.10, 50}},
	model.ClassLarge: {{0.70, 40}, {0.80, 45}, {0.90, 47.8}, {1.00, 50}, {1.10, 50}, {1.20, 50}},
}

// table is a fitted piecewise-linear curve clamped to its end points.
type table struct {
	pl       interp.PiecewiseLinear
	min, max float64
}

func fit(points []point) table {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.ratio, p.value
	}
	var t table
	// The tables above are strictly increasing in ratio, Fit cannot fail.
	if err := t.pl.Fit(xs, ys); err != nil {
		panic(err)
	}
	t.min, t.max = xs[0], xs[len(xs)-1]
	return t
}

func (t table) at(ratio float64) float64 {
	return t.pl.Predict(math.Min(math.Max(ratio, t.min), t.max))
}

var (
	efficiencyCurves = map[model.PumpClass]table{}
	frequencyCurves  = map[model.PumpClass]table{}
)

func init() {
	for class, pts := range efficiencyTables {
		efficiencyCurves[class] = fit(pts)
	}
	for class, pts := range frequencyTables {
		frequencyCurves[class] = fit(pts)
	}
}

// NominalFlow returns the best efficiency flow of the pump in m³/h.
func NominalFlow(p model.PumpID) float64 { return nominalFlows[p.Class()] }

// Efficiency interpolates the hydraulic efficiency of pump p at the given
// flow in m³/h. The result never drops below MinEfficiency.
func Efficiency(p model.PumpID, flow float64) float64 {
	nominal := NominalFlow(p)
	if nominal <= 0 {
		return 0.80
	}
	return math.Max(efficiencyCurves[p.Class()].at(flow/nominal), MinEfficiency)
}

// NominalEfficiency is the efficiency at the nominal operating point.
func NominalEfficiency(p model.PumpID) float64 { return Efficiency(p, NominalFlow(p)) }

// Frequency maps a flow to the estimated drive frequency in Hz.
func Frequency(p model.PumpID, flow float64) float64 {
	nominal := NominalFlow(p)
	if nominal <= 0 {
		return 50
	}
	return frequencyCurves[p.Class()].at(flow / nominal)
}
