package forecast

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when the regularised normal equations cannot be
// factorised.
var ErrSingular = errors.New("ridge: normal equations not positive definite")

// Ridge is an L2-regularised linear regression with an unpenalised
// intercept.
type Ridge struct {
	Alpha     float64
	coef      []float64
	intercept float64
}

// Fit estimates the coefficients from the rows of x and targets y.
func (r *Ridge) Fit(x [][]float64, y []float64) error {
	rows := len(x)
	if rows == 0 || rows != len(y) {
		return fmt.Errorf("ridge: %d rows for %d targets", rows, len(y))
	}
	cols := len(x[0])

	means := make([]float64, cols)
	for _, row := range x {
		floats.Add(means, row)
	}
	floats.Scale(1/float64(rows), means)
	yMean := floats.Sum(y) / float64(rows)

	xc := mat.NewDense(rows, cols, nil)
	yc := mat.NewVecDense(rows, nil)
	for i, row := range x {
		for j, v := range row {
			xc.Set(i, j, v-means[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	gram := mat.NewSymDense(cols, nil)
	gram.SymOuterK(1, xc.T())
	for j := 0; j < cols; j++ {
		gram.SetSym(j, j, gram.At(j, j)+r.Alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return ErrSingular
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		return fmt.Errorf("ridge: %w", err)
	}
	r.coef = make([]float64, cols)
	for j := range r.coef {
		r.coef[j] = w.AtVec(j)
	}
	r.intercept = yMean - floats.Dot(means, r.coef)
	return nil
}

// Predict evaluates the model on one feature vector.
func (r *Ridge) Predict(x []float64) float64 {
	return r.intercept + floats.Dot(r.coef, x)
}

// Coefficients returns a copy of the fitted weights.
func (r *Ridge) Coefficients() []float64 { return append([]float64(nil), r.coef...) }
