package sampler

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/gonum/floats"

	"bitbucket.org/stratsel/stratsel/polytope"
)

// direction sets u to a random unit vector, uniformly distributed on
// the sphere.
func direction(rng *rand.Rand, u []float64) {
	for {
		for d := range u {
			u[d] = rng.NormFloat64()
		}
		if norm := floats.Norm(u, 2); norm > 0 {
			floats.Scale(1/norm, u)
			return
		}
	}
}

// HitAndRun draws M samples from the uniform distribution over the
// polytope using hit-and-run moves along random directions. The
// constraints should bound the unit box (0 <= x <= 1), as steps
// along unconstrained directions default to [0, 1].
func HitAndRun(ctx context.Context, rng *rand.Rand, p *polytope.Polytope, M int, start []float64, s *Settings) (*Chain, error) {
	if s == nil {
		s = NewSettings()
	}
	if err := checkRun(M, s); err != nil {
		return nil, err
	}
	x0, err := s.start(rng, p, M, start)
	if err != nil {
		return nil, err
	}

	D := p.Dim()
	R := p.NRows()
	x := make([]float64, D)
	copy(x, x0)
	u := make([]float64, D)
	z := make([]float64, R)
	Ax := make([]float64, R)

	log.Debugf("Hit-and-run sampling: D=%d, constraints=%d, M=%d, burnin=%d", D, R, M, s.Burnin)
	chain := run(ctx, x, M, s, func(x []float64) {
		direction(rng, u)
		mulVec(p, u, z)
		mulVec(p, x, Ax)
		bmin, bmax := 0.0, 1.0
		lower, upper := math.Inf(-1), math.Inf(+1)
		for r, zr := range z {
			switch {
			case zr < 0:
				lower = math.Max(lower, (p.B[r]-Ax[r])/zr)
			case zr > 0:
				upper = math.Min(upper, (p.B[r]-Ax[r])/zr)
			}
		}
		if !math.IsInf(lower, -1) {
			bmin = lower
		}
		if !math.IsInf(upper, +1) {
			bmax = upper
		}
		if bmin > bmax {
			bmin = (bmin + bmax) / 2
			bmax = bmin
		}
		floats.AddScaled(x, bmin+rng.Float64()*(bmax-bmin), u)
	})
	return chain, nil
}
