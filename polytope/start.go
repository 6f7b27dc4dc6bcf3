package polytope

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gonum/floats"
	lbfgsb "github.com/idavydov/go-lbfgsb"
)

const (
	// minAttempts is the minimal number of rejection sampling
	// attempts to find a starting point.
	minAttempts = 1000
	// interiorMargin is the slack required from every constraint
	// by the interior point search.
	interiorMargin = 1e-6
)

// Unset is the sentinel starting point which requests a search.
var Unset = []float64{-1}

// IsUnset returns true if start is the sentinel requesting a random
// starting point (first element equal to -1).
func IsUnset(start []float64) bool {
	return len(start) == 0 || start[0] == -1
}

// Start returns a starting point inside the polytope. If start is
// the sentinel, uniform points in the unit box are drawn until one
// is inside, trying at most max(M, 1000) times. Otherwise start is
// returned as is; its feasibility is not checked.
func (p *Polytope) Start(rng *rand.Rand, M int, start []float64) ([]float64, error) {
	if !IsUnset(start) {
		if err := p.checkDim(len(start)); err != nil {
			return nil, err
		}
		return start, nil
	}
	attempts := M
	if attempts < minAttempts {
		attempts = minAttempts
	}
	x := make([]float64, p.Dim())
	for i := 1; i <= attempts; i++ {
		for d := range x {
			x[d] = rng.Float64()
		}
		if p.inside(x) {
			log.Debugf("Found starting point after %d attempts", i)
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w: no point found in %d attempts", ErrNoStartingPoint, attempts)
}

// penalty is the squared hinge loss of the constraint violations,
// minimized by L-BFGS-B to find an interior point.
type penalty struct {
	*Polytope
	margin float64
	grad   []float64
}

// EvaluateFunction computes the total squared violation.
func (f *penalty) EvaluateFunction(x []float64) (v float64) {
	for r, b := range f.B {
		if e := floats.Dot(f.A.RawRowView(r), x) - b + f.margin; e > 0 {
			v += e * e
		}
	}
	return
}

// EvaluateGradient computes the gradient of the squared violation.
func (f *penalty) EvaluateGradient(x []float64) []float64 {
	if f.grad == nil {
		f.grad = make([]float64, len(x))
	}
	for d := range f.grad {
		f.grad[d] = 0
	}
	for r, b := range f.B {
		row := f.A.RawRowView(r)
		if e := floats.Dot(row, x) - b + f.margin; e > 0 {
			for d, a := range row {
				f.grad[d] += 2 * e * a
			}
		}
	}
	return f.grad
}

// Interior searches for a point inside the polytope and the unit box
// by minimizing the squared constraint violation with L-BFGS-B,
// starting from x0 (the box center if x0 is nil).
func (p *Polytope) Interior(x0 []float64) ([]float64, error) {
	D := p.Dim()
	if x0 == nil {
		x0 = make([]float64, D)
		for d := range x0 {
			x0[d] = 0.5
		}
	}
	if err := p.checkDim(len(x0)); err != nil {
		return nil, err
	}

	bounds := make([][2]float64, D)
	for d := range bounds {
		bounds[d][0] = 0
		bounds[d][1] = 1
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-12)
	opt.SetGTolerance(1e-10)
	opt.SetBounds(bounds)

	// a larger margin pushes the solution away from the boundary,
	// the smallest one is tried last
	for _, margin := range []float64{1e-2, 1e-4, interiorMargin} {
		min, exitStatus := opt.Minimize(&penalty{Polytope: p, margin: margin}, x0)
		log.Debugf("Interior search (margin=%g): f=%g, exit status: %v", margin, min.F, exitStatus)
		x := make([]float64, D)
		for d := range x {
			x[d] = math.Max(0, math.Min(1, min.X[d]))
		}
		if p.inside(x) {
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w: interior point search did not converge", ErrNoStartingPoint)
}

// StartOrInterior behaves like Start and falls back to Interior if
// the rejection sampling budget is exhausted.
func (p *Polytope) StartOrInterior(rng *rand.Rand, M int, start []float64) ([]float64, error) {
	x, err := p.Start(rng, M, start)
	if err == nil {
		return x, nil
	}
	if !errors.Is(err, ErrNoStartingPoint) {
		return nil, err
	}
	log.Infof("Rejection sampling failed (%v), searching interior point", err)
	return p.Interior(nil)
}
