package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Features is the regressor record for one prediction: lagged values of the
// signal, cyclical calendar terms and statistics of the lag window.
type Features struct {
	// Lags holds the window most recent first: Lags[0] is lag 1.
	Lags    []float64
	SinDay  float64
	CosDay  float64
	SinWeek float64
	CosWeek float64
	Mean    float64
	Std     float64
}

// NewFeatures builds the features for predicting the value at ts from the
// chronological window preceding it.
func NewFeatures(window []float64, ts time.Time) Features {
	lags := make([]float64, len(window))
	for i, v := range window {
		lags[len(window)-1-i] = v
	}
	minutes := float64(ts.Hour()*60 + ts.Minute())
	// Monday is day 0.
	dow := float64((int(ts.Weekday()) + 6) % 7)
	f := Features{
		Lags:    lags,
		SinDay:  math.Sin(2 * math.Pi * minutes / 1440),
		CosDay:  math.Cos(2 * math.Pi * minutes / 1440),
		SinWeek: math.Sin(2 * math.Pi * dow / 7),
		CosWeek: math.Cos(2 * math.Pi * dow / 7),
	}
	if len(window) > 0 {
		f.Mean, f.Std = stat.PopMeanStdDev(window, nil)
	}
	return f
}

// Width returns the vector length for the given number of lags.
func Width(lags int) int { return lags + 6 }

// Vector flattens the record in model column order.
func (f Features) Vector() []float64 {
	v := make([]float64, 0, Width(len(f.Lags)))
	v = append(v, f.Lags...)
	return append(v, f.SinDay, f.CosDay, f.SinWeek, f.CosWeek, f.Mean, f.Std)
}
