package solver

import (
	"context"
	"errors"
	"math"
)

// BranchAndBound solves MILPs by depth-first branch and bound on LP
// relaxations. The root relaxation is solved once; every other node starts
// from the root optimal basis and is repaired by the dual simplex. The zero
// value uses the defaults below.
type BranchAndBound struct {
	// MaxNodes bounds the number of relaxations solved. Default 500.
	MaxNodes int
	// Tol is the simplex feasibility tolerance. Default 1e-7.
	Tol float64
	// IntTol is the integrality tolerance. Default 1e-6.
	IntTol float64
	// Gap is the relative optimality gap under which nodes are pruned.
	// Default 1e-6.
	Gap float64
}

type node struct {
	lo, hi []float64
}

func (b BranchAndBound) params() (int, float64, float64, float64) {
	maxNodes, tol, intTol, gap := b.MaxNodes, b.Tol, b.IntTol, b.Gap
	if maxNodes <= 0 {
		maxNodes = 500
	}
	if tol <= 0 {
		tol = 1e-7
	}
	if intTol <= 0 {
		intTol = 1e-6
	}
	if gap <= 0 {
		gap = 1e-6
	}
	return maxNodes, tol, intTol, gap
}

// Solve minimises p. The best integer feasible point found is returned with
// StatusOptimal when the tree was exhausted and StatusFeasible when the node
// limit cut the search.
func (b BranchAndBound) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{Status: StatusError}, err
	}
	maxNodes, tol, intTol, gap := b.params()

	root := node{lo: make([]float64, len(p.Vars)), hi: make([]float64, len(p.Vars))}
	for j, v := range p.Vars {
		root.lo[j], root.hi[j] = v.Lower, v.Upper
		if v.Integer {
			root.lo[j] = math.Ceil(v.Lower - intTol)
			root.hi[j] = math.Floor(v.Upper + intTol)
		}
	}

	base, err := newTableau(p, root.lo, root.hi, tol)
	if err == nil {
		err = base.solve()
	}
	if err != nil {
		return Solution{Status: StatusOf(err), Nodes: 1}, err
	}

	var (
		stack   = []node{root}
		best    = math.Inf(1)
		bestX   []float64
		nodes   int
		limited bool
		lastErr error
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Solution{Status: StatusError, Nodes: nodes}, err
		}
		if nodes >= maxNodes {
			limited = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		t := base
		if nodes > 1 {
			t = base.clone()
			err := t.restrict(nd.lo, nd.hi)
			if err == nil {
				err = t.dual()
			}
			if err == nil {
				err = t.primal(t.cost)
			}
			if err != nil {
				if !errors.Is(err, ErrInfeasible) {
					lastErr = err
				}
				continue
			}
		}
		x, obj := t.values()
		if obj >= best-math.Max(1e-9, gap*math.Abs(best)) {
			continue
		}
		j := mostFractional(p, x, intTol)
		if j < 0 {
			best, bestX = obj, x
			continue
		}

		f := math.Floor(x[j])
		down := node{lo: nd.lo, hi: clone(nd.hi)}
		down.hi[j] = f
		up := node{lo: clone(nd.lo), hi: nd.hi}
		up.lo[j] = f + 1
		// The branch nearer the relaxed value is explored first.
		if x[j]-f >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	if bestX == nil {
		switch {
		case limited:
			return Solution{Status: StatusError, Nodes: nodes}, ErrNodeLimit
		case lastErr != nil:
			return Solution{Status: StatusError, Nodes: nodes}, lastErr
		default:
			return Solution{Status: StatusInfeasible, Nodes: nodes}, ErrInfeasible
		}
	}
	for j, v := range p.Vars {
		if v.Integer {
			bestX[j] = math.Round(bestX[j])
		}
	}
	status := StatusOptimal
	if limited {
		status = StatusFeasible
	}
	return Solution{Status: status, Objective: best, Values: bestX, Nodes: nodes}, nil
}

func mostFractional(p *Problem, x []float64, intTol float64) int {
	idx, worst := -1, intTol
	for j, v := range p.Vars {
		if !v.Integer {
			continue
		}
		frac := math.Abs(x[j] - math.Round(x[j]))
		if frac > worst {
			idx, worst = j, frac
		}
	}
	return idx
}

func clone(xs []float64) []float64 { return append([]float64(nil), xs...) }
