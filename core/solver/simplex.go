package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// errIterations is returned when a simplex phase exceeds its pivot budget.
var errIterations = errors.New("simplex: iteration limit reached")

const (
	pivotTol = 1e-9
	ratioTol = 1e-11
	// blandAfter is the number of pivots without objective progress after
	// which the smallest index rule replaces the largest reduced cost rule.
	blandAfter = 50
)

type varState uint8

const (
	atLower varState = iota
	atUpper
	isBasic
)

// tableau is a dense bounded-variable simplex tableau. Columns are the
// structural variables, one logical variable per constraint and the phase
// one artificials. Each row holds B⁻¹A so basic columns form an identity, and
// x holds the value of every column.
//
// Every constraint a·x (sense) b becomes a·x + s = b where the logical s is
// bounded by [0, +Inf) for <=, (-Inf, 0] for >= and [0, 0] for =.
type tableau struct {
	m, n, nStruct int

	data  []float64
	rows  [][]float64
	d     []float64
	cost  []float64
	lower []float64
	upper []float64
	x     []float64
	basis []int
	state []varState
	tol   float64
}

// newTableau builds the starting basis of p restricted to [lo, hi]. Rows whose
// logical cannot absorb the residual get an artificial variable.
func newTableau(p *Problem, lo, hi []float64, tol float64) (*tableau, error) {
	ns, m := len(p.Vars), len(p.Constraints)
	for j := range lo {
		if hi[j] < lo[j]-tol {
			return nil, ErrInfeasible
		}
	}

	coefs := make([][]float64, m)
	resid := make([]float64, m)
	nArt := 0
	for i, c := range p.Constraints {
		r := make([]float64, ns)
		res := c.RHS
		for _, t := range c.Terms {
			r[t.Var] += t.Coef
			res -= t.Coef * lo[t.Var]
		}
		coefs[i], resid[i] = r, res
		if !logicalHolds(c.Sense, res, tol) {
			nArt++
		}
	}

	n := ns + m + nArt
	t := &tableau{
		m: m, n: n, nStruct: ns,
		data:  make([]float64, m*n),
		rows:  make([][]float64, m),
		d:     make([]float64, n),
		cost:  make([]float64, n),
		lower: make([]float64, n),
		upper: make([]float64, n),
		x:     make([]float64, n),
		basis: make([]int, m),
		state: make([]varState, n),
		tol:   tol,
	}
	for i := range t.rows {
		t.rows[i] = t.data[i*n : (i+1)*n : (i+1)*n]
	}
	for _, term := range p.Objective {
		t.cost[term.Var] += term.Coef
	}
	for j := 0; j < ns; j++ {
		t.lower[j], t.upper[j], t.x[j] = lo[j], hi[j], lo[j]
	}

	art := ns + m
	for i, c := range p.Constraints {
		row := t.rows[i]
		copy(row, coefs[i])
		s := ns + i
		row[s] = 1
		switch c.Sense {
		case LessEq:
			t.lower[s], t.upper[s] = 0, math.Inf(1)
		case GreaterEq:
			t.lower[s], t.upper[s] = math.Inf(-1), 0
		}
		if logicalHolds(c.Sense, resid[i], tol) {
			t.basis[i], t.state[s], t.x[s] = s, isBasic, resid[i]
			continue
		}
		if c.Sense == GreaterEq {
			t.state[s] = atUpper
		}
		sigma := 1.0
		if resid[i] < 0 {
			sigma = -1
		}
		row[art] = sigma
		floats.Scale(sigma, row)
		t.upper[art] = math.Inf(1)
		t.x[art] = math.Abs(resid[i])
		t.basis[i], t.state[art] = art, isBasic
		art++
	}
	return t, nil
}

func logicalHolds(sense Sense, r, tol float64) bool {
	switch sense {
	case LessEq:
		return r >= -tol
	case GreaterEq:
		return r <= tol
	default:
		return math.Abs(r) <= tol
	}
}

func (t *tableau) clone() *tableau {
	c := *t
	c.data = append([]float64(nil), t.data...)
	c.rows = make([][]float64, t.m)
	for i := range c.rows {
		c.rows[i] = c.data[i*t.n : (i+1)*t.n : (i+1)*t.n]
	}
	c.d = append([]float64(nil), t.d...)
	c.lower = append([]float64(nil), t.lower...)
	c.upper = append([]float64(nil), t.upper...)
	c.x = append([]float64(nil), t.x...)
	c.basis = append([]int(nil), t.basis...)
	c.state = append([]varState(nil), t.state...)
	return &c
}

// solve runs both phases from the starting basis.
func (t *tableau) solve() error {
	if err := t.phaseOne(); err != nil {
		return err
	}
	return t.primal(t.cost)
}

// phaseOne drives the artificials to zero, pivots them out of the basis where
// a structural or logical column can replace them and fixes them at zero.
func (t *tableau) phaseOne() error {
	first := t.nStruct + t.m
	if first == t.n {
		return nil
	}
	c1 := make([]float64, t.n)
	scale := 1.0
	for j := first; j < t.n; j++ {
		c1[j] = 1
		scale += t.x[j]
	}
	if err := t.primal(c1); err != nil {
		return err
	}
	var infeas float64
	for j := first; j < t.n; j++ {
		infeas += t.x[j]
	}
	if infeas > 1e-7*scale {
		return ErrInfeasible
	}

	for i := 0; i < t.m; i++ {
		a := t.basis[i]
		if a < first {
			continue
		}
		row := t.rows[i]
		j, best := -1, 1e-7
		for k := 0; k < first; k++ {
			if t.state[k] != isBasic && math.Abs(row[k]) > best {
				j, best = k, math.Abs(row[k])
			}
		}
		if j < 0 {
			// Redundant row: the artificial stays basic, fixed at zero.
			continue
		}
		t.move(j, t.x[a]/row[j])
		t.x[a], t.state[a] = 0, atLower
		t.pivot(i, j)
		t.state[j] = isBasic
	}
	for j := first; j < t.n; j++ {
		t.lower[j], t.upper[j] = 0, 0
		if t.state[j] != isBasic {
			t.x[j], t.state[j] = 0, atLower
		}
	}
	return nil
}

// price recomputes the reduced costs of cost for the current basis.
func (t *tableau) price(cost []float64) {
	copy(t.d, cost)
	for i, b := range t.basis {
		if c := cost[b]; c != 0 {
			floats.AddScaled(t.d, -c, t.rows[i])
		}
	}
	for _, b := range t.basis {
		t.d[b] = 0
	}
}

// primal minimises cost from a primal feasible basis.
func (t *tableau) primal(cost []float64) error {
	t.price(cost)
	best := floats.Dot(cost, t.x)
	bland, stall := false, 0
	for it, limit := 0, t.iterLimit(); it < limit; it++ {
		j, dir := t.entering(bland)
		if j < 0 {
			return nil
		}
		r, theta, toUpper := t.ratio(j, dir, bland)
		if r < 0 && math.IsInf(theta, 1) {
			return ErrUnbounded
		}
		t.move(j, dir*theta)
		if r < 0 {
			if dir > 0 {
				t.x[j], t.state[j] = t.upper[j], atUpper
			} else {
				t.x[j], t.state[j] = t.lower[j], atLower
			}
		} else {
			leave := t.basis[r]
			if toUpper {
				t.x[leave], t.state[leave] = t.upper[leave], atUpper
			} else {
				t.x[leave], t.state[leave] = t.lower[leave], atLower
			}
			t.pivot(r, j)
			t.state[j] = isBasic
		}

		obj := floats.Dot(cost, t.x)
		if obj < best-1e-12*math.Max(1, math.Abs(best)) {
			best, stall = obj, 0
		} else if stall++; stall > blandAfter {
			bland = true
		}
	}
	return errIterations
}

// entering picks the nonbasic column to move and its direction.
func (t *tableau) entering(bland bool) (int, float64) {
	j, dir, score := -1, 0.0, t.tol
	for k := 0; k < t.n; k++ {
		if t.state[k] == isBasic || t.upper[k]-t.lower[k] <= t.tol {
			continue
		}
		var s, dk float64
		switch {
		case t.state[k] == atLower && t.d[k] < -t.tol:
			s, dk = -t.d[k], 1
		case t.state[k] == atUpper && t.d[k] > t.tol:
			s, dk = t.d[k], -1
		default:
			continue
		}
		if bland {
			return k, dk
		}
		if s > score {
			j, dir, score = k, dk, s
		}
	}
	return j, dir
}

// ratio finds how far column j may move in direction dir. It returns the
// blocking row, or -1 when j reaches its own opposite bound first.
func (t *tableau) ratio(j int, dir float64, bland bool) (int, float64, bool) {
	theta := t.upper[j] - t.lower[j]
	r, toUpper, piv := -1, false, 0.0
	for i, b := range t.basis {
		a := t.rows[i][j] * dir
		if math.Abs(a) <= pivotTol {
			continue
		}
		var q float64
		up := false
		if a > 0 {
			if math.IsInf(t.lower[b], -1) {
				continue
			}
			q = (t.x[b] - t.lower[b]) / a
		} else {
			if math.IsInf(t.upper[b], 1) {
				continue
			}
			q, up = (t.upper[b]-t.x[b])/-a, true
		}
		q = math.Max(q, 0)
		switch {
		case q < theta-ratioTol:
		case r >= 0 && q <= theta+ratioTol:
			if bland && b > t.basis[r] || !bland && math.Abs(a) <= piv {
				continue
			}
		default:
			continue
		}
		theta, r, toUpper, piv = math.Min(theta, q), i, up, math.Abs(a)
	}
	return r, theta, toUpper
}

// dual restores primal feasibility after bounds were tightened on an optimal
// basis. Reduced costs stay dual feasible throughout.
func (t *tableau) dual() error {
	for it, limit := 0, t.iterLimit(); it < limit; it++ {
		r, toLower, worst := -1, false, t.tol
		for i, b := range t.basis {
			if v := t.lower[b] - t.x[b]; v > worst {
				r, toLower, worst = i, true, v
			}
			if v := t.x[b] - t.upper[b]; v > worst {
				r, toLower, worst = i, false, v
			}
		}
		if r < 0 {
			return nil
		}

		row := t.rows[r]
		sign := 1.0
		if !toLower {
			sign = -1
		}
		j, best, piv := -1, math.Inf(1), 0.0
		for k := 0; k < t.n; k++ {
			if t.state[k] == isBasic || t.upper[k]-t.lower[k] <= t.tol {
				continue
			}
			a := row[k] * sign
			if t.state[k] == atLower && a >= -pivotTol || t.state[k] == atUpper && a <= pivotTol {
				continue
			}
			q := math.Abs(t.d[k]) / math.Abs(a)
			if q < best-ratioTol || q <= best+ratioTol && math.Abs(a) > piv {
				j, best, piv = k, math.Min(q, best), math.Abs(a)
			}
		}
		if j < 0 {
			return ErrInfeasible
		}

		b := t.basis[r]
		target, st := t.lower[b], atLower
		if !toLower {
			target, st = t.upper[b], atUpper
		}
		t.move(j, (t.x[b]-target)/row[j])
		t.x[b], t.state[b] = target, st
		t.pivot(r, j)
		t.state[j] = isBasic
	}
	return errIterations
}

// restrict narrows the bounds of the structural columns. Nonbasic columns
// follow their bound; basic ones are left for the dual simplex.
func (t *tableau) restrict(lo, hi []float64) error {
	for j := 0; j < t.nStruct; j++ {
		if hi[j] < lo[j]-t.tol {
			return ErrInfeasible
		}
		if lo[j] == t.lower[j] && hi[j] == t.upper[j] {
			continue
		}
		t.lower[j], t.upper[j] = lo[j], hi[j]
		switch {
		case t.state[j] == isBasic:
		case t.state[j] == atUpper && !math.IsInf(hi[j], 1):
			t.move(j, hi[j]-t.x[j])
		default:
			t.state[j] = atLower
			t.move(j, lo[j]-t.x[j])
		}
	}
	return nil
}

// move shifts column j by delta and updates the basic values.
func (t *tableau) move(j int, delta float64) {
	if delta == 0 {
		return
	}
	t.x[j] += delta
	for i, b := range t.basis {
		if a := t.rows[i][j]; a != 0 {
			t.x[b] -= a * delta
		}
	}
}

func (t *tableau) pivot(r, j int) {
	pr := t.rows[r]
	floats.Scale(1/pr[j], pr)
	pr[j] = 1
	for i, row := range t.rows {
		if i == r {
			continue
		}
		if f := row[j]; f != 0 {
			floats.AddScaled(row, -f, pr)
			row[j] = 0
		}
	}
	if f := t.d[j]; f != 0 {
		floats.AddScaled(t.d, -f, pr)
		t.d[j] = 0
	}
	t.basis[r] = j
}

func (t *tableau) iterLimit() int { return 50*(t.m+t.n) + 1000 }

// values returns the structural solution and its objective.
func (t *tableau) values() ([]float64, float64) {
	x := append([]float64(nil), t.x[:t.nStruct]...)
	return x, floats.Dot(t.cost[:t.nStruct], x)
}
