// Package solver defines the mixed-integer linear programming capability used
// by the planner and a branch and bound implementation over a bounded
// variable simplex.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInfeasible is returned when no assignment satisfies the constraints.
	ErrInfeasible = errors.New("problem infeasible")
	// ErrUnbounded is returned when the objective decreases without bound.
	ErrUnbounded = errors.New("problem unbounded")
	// ErrNodeLimit is returned when the search stopped before any integer
	// feasible point was found.
	ErrNodeLimit = errors.New("node limit reached without incumbent")
	// ErrInvalid is returned for malformed problems.
	ErrInvalid = errors.New("invalid problem")
)

// Solver minimises a Problem.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Solution, error)
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return "?"
	}
}

// Var indexes a variable of a Problem.
type Var int

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// T is shorthand for building a Term.
func T(v Var, coef float64) Term { return Term{Var: v, Coef: coef} }

// Variable describes one decision variable. Lower must be finite; Upper may
// be +Inf.
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Constraint is a linear relation Σ terms (sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimisation MILP. Problems are built fresh for each solve.
type Problem struct {
	Vars        []Variable
	Constraints []Constraint
	Objective   []Term
}

// NewProblem returns an empty problem.
func NewProblem() *Problem { return &Problem{} }

// AddVar adds a continuous variable bounded by [lo, hi].
func (p *Problem) AddVar(name string, lo, hi float64) Var {
	p.Vars = append(p.Vars, Variable{Name: name, Lower: lo, Upper: hi})
	return Var(len(p.Vars) - 1)
}

// AddBinary adds a {0,1} variable.
func (p *Problem) AddBinary(name string) Var {
	p.Vars = append(p.Vars, Variable{Name: name, Lower: 0, Upper: 1, Integer: true})
	return Var(len(p.Vars) - 1)
}

// AddConstraint appends Σ terms (sense) rhs.
func (p *Problem) AddConstraint(name string, sense Sense, rhs float64, terms ...Term) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// AddCost adds coef·v to the objective.
func (p *Problem) AddCost(v Var, coef float64) {
	if coef != 0 {
		p.Objective = append(p.Objective, Term{Var: v, Coef: coef})
	}
}

// Validate checks bounds and variable references.
func (p *Problem) Validate() error {
	n := len(p.Vars)
	for i, v := range p.Vars {
		if math.IsInf(v.Lower, 0) || math.IsNaN(v.Lower) || math.IsNaN(v.Upper) {
			return fmt.Errorf("%w: variable %d (%s) bounds [%g, %g]", ErrInvalid, i, v.Name, v.Lower, v.Upper)
		}
	}
	check := func(where string, ts []Term) error {
		for _, t := range ts {
			if int(t.Var) < 0 || int(t.Var) >= n {
				return fmt.Errorf("%w: %s references variable %d", ErrInvalid, where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%w: %s has non-finite coefficient", ErrInvalid, where)
			}
		}
		return nil
	}
	if err := check("objective", p.Objective); err != nil {
		return err
	}
	for _, c := range p.Constraints {
		if err := check("constraint "+c.Name, c.Terms); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("%w: constraint %s has non-finite rhs", ErrInvalid, c.Name)
		}
	}
	return nil
}

// Status reports the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusFeasible
	StatusInfeasible
	StatusUnbounded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "error"
	}
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Solution holds the values of every variable of the solved problem.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

// Value returns the value of v, or 0 when v is out of range.
func (s Solution) Value(v Var) float64 {
	if int(v) < 0 || int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// StatusOf maps a solve error to a Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOptimal
	case errors.Is(err, ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, ErrUnbounded):
		return StatusUnbounded
	default:
		return StatusError
	}
}
