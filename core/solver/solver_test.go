package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

func TestContinuousLP(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, math.Inf(1))
	y := p.AddVar("y", 0, math.Inf(1))
	p.AddConstraint("c1", LessEq, 4, T(x, 1), T(y, 2))
	p.AddConstraint("c2", LessEq, 6, T(x, 3), T(y, 1))
	p.AddCost(x, -1)
	p.AddCost(y, -1)

	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 1.6, sol.Value(x), 1e-6)
	assert.InDelta(t, 1.2, sol.Value(y), 1e-6)
	assert.InDelta(t, -2.8, sol.Objective, 1e-6)
}

func TestAgreesWithGonumSimplex(t *testing.T) {
	c := []float64{-1, -2, 0, 0}
	a := mat.NewDense(2, 4, []float64{-1, 2, 1, 0, 3, 1, 0, 1})
	b := []float64{4, 9}
	want, wantX, err := lp.Simplex(c, a, b, 0, nil)
	require.NoError(t, err)

	p := NewProblem()
	x := p.AddVar("x", 0, math.Inf(1))
	y := p.AddVar("y", 0, math.Inf(1))
	p.AddConstraint("c1", LessEq, 4, T(x, -1), T(y, 2))
	p.AddConstraint("c2", LessEq, 9, T(x, 3), T(y, 1))
	p.AddCost(x, -1)
	p.AddCost(y, -2)

	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, want, sol.Objective, 1e-9)
	assert.InDelta(t, wantX[0], sol.Value(x), 1e-9)
	assert.InDelta(t, wantX[1], sol.Value(y), 1e-9)
}

func TestBoundsAndGreaterEq(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 2)
	y := p.AddVar("y", 1, 5)
	p.AddConstraint("cover", GreaterEq, 3, T(x, 1), T(y, 1))
	p.AddCost(x, 1)
	p.AddCost(y, 2)

	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 2, sol.Value(x), 1e-6)
	assert.InDelta(t, 1, sol.Value(y), 1e-6)
	assert.InDelta(t, 4, sol.Objective, 1e-6)
}

func TestEquality(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 3)
	y := p.AddVar("y", 0, math.Inf(1))
	p.AddConstraint("sum", Equal, 4, T(x, 1), T(y, 1))
	p.AddCost(x, 1)
	p.AddCost(y, 2)

	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 3, sol.Value(x), 1e-6)
	assert.InDelta(t, 1, sol.Value(y), 1e-6)
	assert.InDelta(t, 5, sol.Objective, 1e-6)
}

func TestFixedAndUnusedVariables(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 2, 2)
	y := p.AddVar("y", 0, 10)
	z := p.AddVar("z", 0, 7)
	w := p.AddVar("w", 1, math.Inf(1))
	p.AddConstraint("y>=x", GreaterEq, 0, T(y, 1), T(x, -1))
	p.AddCost(y, 1)
	p.AddCost(z, -1)
	p.AddCost(w, 1)

	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2.0, sol.Value(x))
	assert.InDelta(t, 2, sol.Value(y), 1e-6)
	assert.Equal(t, 7.0, sol.Value(z))
	assert.Equal(t, 1.0, sol.Value(w))
	assert.InDelta(t, 2-7+1, sol.Objective, 1e-6)
}

func TestRedundantEqualities(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 1)
	y := p.AddVar("y", 0, math.Inf(1))
	p.AddConstraint("sum", Equal, 2, T(x, 1), T(y, 1))
	p.AddConstraint("sum_again", Equal, 2, T(x, 1), T(y, 1))
	p.AddConstraint("sum_doubled", Equal, 4, T(x, 2), T(y, 2))
	p.AddCost(x, 1)
	p.AddCost(y, 2)

	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 1, sol.Value(x), 1e-9)
	assert.InDelta(t, 1, sol.Value(y), 1e-9)
	assert.InDelta(t, 3, sol.Objective, 1e-9)
}

// Two pumps with a minimum operating flow must cover a demand that one pump
// can serve alone.
func TestSemiContinuousFlows(t *testing.T) {
	p := NewProblem()
	var flows, ons []Var
	for _, price := range []float64{1, 1.1} {
		f := p.AddVar("f", 0, 1700)
		on := p.AddBinary("on")
		p.AddConstraint("min", GreaterEq, 0, T(f, 1), T(on, -1400))
		p.AddConstraint("cap", LessEq, 0, T(f, 1), T(on, -1700))
		p.AddCost(f, price)
		flows, ons = append(flows, f), append(ons, on)
	}
	p.AddConstraint("demand", GreaterEq, 1500, T(flows[0], 1), T(flows[1], 1))

	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 1500, sol.Value(flows[0]), 1e-6)
	assert.Equal(t, 1.0, sol.Value(ons[0]))
	assert.InDelta(t, 0, sol.Value(flows[1]), 1e-6)
	assert.Equal(t, 0.0, sol.Value(ons[1]))
	assert.InDelta(t, 1500, sol.Objective, 1e-6)
}

func knapsack() (*Problem, []Var) {
	p := NewProblem()
	values := []float64{8, 11, 6, 4}
	weights := []float64{5, 7, 4, 3}
	vars := make([]Var, len(values))
	terms := make([]Term, len(values))
	for i := range values {
		vars[i] = p.AddBinary("x")
		terms[i] = T(vars[i], weights[i])
		p.AddCost(vars[i], -values[i])
	}
	p.AddConstraint("weight", LessEq, 14, terms...)
	return p, vars
}

func TestBinaryKnapsack(t *testing.T) {
	p, vars := knapsack()
	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, -21, sol.Objective, 1e-6)
	got := make([]float64, len(vars))
	for i, v := range vars {
		got[i] = sol.Value(v)
	}
	assert.Equal(t, []float64{0, 1, 1, 1}, got)
	assert.Greater(t, sol.Nodes, 1)
}

func TestNodeLimitWithoutIncumbent(t *testing.T) {
	p, _ := knapsack()
	_, err := BranchAndBound{MaxNodes: 1}.Solve(context.Background(), p)
	assert.True(t, errors.Is(err, ErrNodeLimit))
}

func TestInfeasible(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 3)
	p.AddConstraint("x>=5", GreaterEq, 5, T(x, 1))
	p.AddCost(x, 1)
	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	assert.True(t, errors.Is(err, ErrInfeasible))
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestInfeasibleConstantRow(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 1, 1)
	p.AddConstraint("x<=0", LessEq, 0, T(x, 1))
	_, err := BranchAndBound{}.Solve(context.Background(), p)
	assert.True(t, errors.Is(err, ErrInfeasible))
}

func TestUnbounded(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, math.Inf(1))
	p.AddCost(x, -1)
	sol, err := BranchAndBound{}.Solve(context.Background(), p)
	assert.True(t, errors.Is(err, ErrUnbounded))
	assert.Equal(t, StatusUnbounded, sol.Status)
}

func TestInvalidProblem(t *testing.T) {
	p := NewProblem()
	p.AddVar("free", math.Inf(-1), 0)
	_, err := BranchAndBound{}.Solve(context.Background(), p)
	assert.True(t, errors.Is(err, ErrInvalid))

	p = NewProblem()
	p.AddConstraint("bad", LessEq, 1, T(Var(3), 1))
	_, err = BranchAndBound{}.Solve(context.Background(), p)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestCancelledContext(t *testing.T) {
	p, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BranchAndBound{}.Solve(ctx, p)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOptimal, StatusOf(nil))
	assert.Equal(t, StatusInfeasible, StatusOf(ErrInfeasible))
	assert.Equal(t, StatusUnbounded, StatusOf(ErrUnbounded))
	assert.Equal(t, StatusError, StatusOf(ErrNodeLimit))
	assert.Equal(t, "feasible", StatusFeasible.String())
}
