package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gonum/blas"
	"github.com/gonum/blas/blas64"

	"bitbucket.org/stratsel/stratsel/dist"
	"bitbucket.org/stratsel/stratsel/polytope"
)

// coef is a non-zero coefficient of a constraint row in one column.
type coef struct {
	row int
	a   float64
}

// column stores constraint rows bounding a single coordinate from
// below (negative coefficients) and from above (positive
// coefficients). Rows with zero coefficients do not bound it.
type column struct {
	neg []coef
	pos []coef
}

// splitColumns partitions the rows of A by the sign of every column.
func splitColumns(p *polytope.Polytope) []column {
	cols := make([]column, p.Dim())
	for r := 0; r < p.NRows(); r++ {
		for j, a := range p.Row(r) {
			switch {
			case a < 0:
				cols[j].neg = append(cols[j].neg, coef{r, a})
			case a > 0:
				cols[j].pos = append(cols[j].pos, coef{r, a})
			}
		}
	}
	return cols
}

// mulVec computes Ax = A x.
func mulVec(p *polytope.Polytope, x, Ax []float64) {
	blas64.Gemv(blas.NoTrans, 1, p.A.RawMatrix(), blas64.Vector{Inc: 1, Data: x}, 0, blas64.Vector{Inc: 1, Data: Ax})
}

// bounds returns the interval for coordinate j keeping all other
// coordinates fixed: for every bounding row the value of x[j] making
// the row tight, maximized over lower and minimized over upper
// bounds. Unbounded sides default to 0 and 1.
func (c *column) bounds(b, Ax, x []float64, j int) (bmin, bmax float64) {
	bmin, bmax = 0, 1
	if len(c.neg) > 0 {
		bmin = math.Inf(-1)
		for _, e := range c.neg {
			bmin = math.Max(bmin, (b[e.row]-Ax[e.row]+e.a*x[j])/e.a)
		}
	}
	if len(c.pos) > 0 {
		bmax = math.Inf(+1)
		for _, e := range c.pos {
			bmax = math.Min(bmax, (b[e.row]-Ax[e.row]+e.a*x[j])/e.a)
		}
	}
	return
}

// update sets x[j] to v and updates Ax accordingly.
func (c *column) update(Ax, x []float64, j int, v float64) {
	delta := v - x[j]
	for _, e := range c.neg {
		Ax[e.row] += e.a * delta
	}
	for _, e := range c.pos {
		Ax[e.row] += e.a * delta
	}
	x[j] = v
}

// CheckBinomial validates binomial data and the prior against the
// polytope: k and n have one element per dimension, 0 <= k <= n and
// all beta shapes are positive.
func CheckBinomial(p *polytope.Polytope, k, n []float64, prior [2]float64) error {
	D := p.Dim()
	if len(k) != D || len(n) != D {
		return fmt.Errorf("%w: A has %d columns, k has %d and n has %d elements", polytope.ErrDimensionMismatch, D, len(k), len(n))
	}
	for d := range k {
		if !(k[d] >= 0 && k[d] <= n[d]) {
			return fmt.Errorf("%w: k[%d]=%v should be in [0, n[%d]=%v]", ErrInvalidArgument, d+1, k[d], d+1, n[d])
		}
		if !(k[d]+prior[0] > 0 && n[d]-k[d]+prior[1] > 0) {
			return fmt.Errorf("%w: beta shapes for parameter %d should be > 0 (prior=%v)", ErrInvalidArgument, d+1, prior)
		}
	}
	return nil
}

// Binomial draws M samples from the product of beta posteriors
// Beta(k+prior[0], n-k+prior[1]) restricted to the polytope using
// Gibbs sampling with truncated beta full conditionals. If start is
// polytope.Unset, a starting point is searched for.
//
// Each iteration visits the coordinates in a new random order and
// updates them in place, so later coordinates see the new values.
// Cancellation of ctx is checked every 100 iterations; the returned
// chain then holds only completed iterations.
func Binomial(ctx context.Context, rng *rand.Rand, k, n []float64, p *polytope.Polytope, prior [2]float64,
	M int, start []float64, s *Settings) (*Chain, error) {
	if s == nil {
		s = NewSettings()
	}
	if err := checkRun(M, s); err != nil {
		return nil, err
	}
	if err := CheckBinomial(p, k, n, prior); err != nil {
		return nil, err
	}
	x0, err := s.start(rng, p, M, start)
	if err != nil {
		return nil, err
	}

	D := p.Dim()
	shape1, shape2 := dist.PosteriorShapes(k, n, prior)
	cols := splitColumns(p)
	x := make([]float64, D)
	copy(x, x0)
	Ax := make([]float64, p.NRows())
	idx := make([]int, D)
	for j := range idx {
		idx[j] = j
	}

	log.Debugf("Gibbs sampling: D=%d, constraints=%d, M=%d, burnin=%d", D, p.NRows(), M, s.Burnin)
	chain := run(ctx, x, M, s, func(x []float64) {
		mulVec(p, x, Ax)
		rng.Shuffle(D, func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		for _, j := range idx {
			bmin, bmax := cols[j].bounds(p.B, Ax, x, j)
			cols[j].update(Ax, x, j, dist.TruncatedBeta(rng, shape1[j], shape2[j], bmin, bmax))
		}
	})
	return chain, nil
}
