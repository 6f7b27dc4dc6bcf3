// Package encompass estimates the probability mass of a polytope
// under independent beta distributions, either by direct Monte Carlo
// counting or by splitting the constraints into blocks and
// multiplying conditional estimates.
package encompass

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/stratsel/stratsel/dist"
	"bitbucket.org/stratsel/stratsel/polytope"
	"bitbucket.org/stratsel/stratsel/progress"
	"bitbucket.org/stratsel/stratsel/sampler"
)

// log is the global logging variable.
var log = logging.MustGetLogger("encompass")

// Count is a Monte Carlo estimate of polytope mass.
type Count struct {
	// Integral is the estimated mass, Count/M.
	Integral float64 `json:"integral"`
	// Count is the number of samples inside the polytope.
	Count int `json:"count"`
	// M is the number of samples drawn.
	M int `json:"M"`
	// Interrupted is true if counting was cancelled.
	Interrupted bool `json:"interrupted,omitempty"`
}

// CountBinomial draws M independent samples from the beta
// distributions Beta(k+prior[0], n-k+prior[1]) in batches of at most
// batch samples and counts how many are inside the polytope.
// Cancellation is checked once per batch; a cancelled run reports the
// samples drawn so far.
func CountBinomial(ctx context.Context, rng *rand.Rand, k, n []float64, p *polytope.Polytope, prior [2]float64,
	M, batch int, showProgress bool) (*Count, error) {
	if M < 1 || batch < 1 {
		return nil, fmt.Errorf("%w: M=%d and batch=%d should be >= 1", sampler.ErrInvalidArgument, M, batch)
	}
	if err := sampler.CheckBinomial(p, k, n, prior); err != nil {
		return nil, err
	}
	shape1, shape2 := dist.PosteriorShapes(k, n, prior)

	bar := progress.New((M+batch-1)/batch, showProgress)
	defer bar.Finish()

	res := &Count{}
	var X *mat64.Dense
	for todo := M; todo > 0; {
		if cancelled(ctx) {
			log.Warningf("Counting cancelled after %d of %d samples: %v", res.M, M, ctx.Err())
			res.Interrupted = true
			break
		}
		size := batch
		if todo < batch {
			size = todo
			X = nil
		}
		X = dist.BetaBatch(rng, size, shape1, shape2, X)
		cnt, err := p.Count(X)
		if err != nil {
			return nil, err
		}
		res.Count += cnt
		res.M += size
		todo -= size
		bar.Increment()
	}
	if res.M > 0 {
		res.Integral = float64(res.Count) / float64(res.M)
	}
	log.Debugf("Counted %d of %d samples inside", res.Count, res.M)
	return res, nil
}

// cancelled polls ctx without blocking.
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
