// Package sampler implements Markov chain samplers over convex
// polytopes: a Gibbs sampler for binomial data with conjugate beta
// priors and a hit-and-run sampler for the uniform distribution.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/stratsel/stratsel/polytope"
	"bitbucket.org/stratsel/stratsel/progress"
)

// log is the global logging variable.
var log = logging.MustGetLogger("sampler")

const (
	// DefaultBurnin is the number of discarded iterations.
	DefaultBurnin = 5
	// checkPeriod is how often cancellation is checked.
	checkPeriod = 100
)

// ErrInvalidArgument is returned for inconsistent sampler arguments.
var ErrInvalidArgument = errors.New("invalid argument")

// StartSearch selects how a starting point is found when none is
// given.
type StartSearch int

const (
	// StartRandom uses rejection sampling in the unit box.
	StartRandom StartSearch = iota
	// StartOptimize falls back to the L-BFGS-B interior point
	// search if rejection sampling fails.
	StartOptimize
)

// Settings are the sampler settings.
type Settings struct {
	// Burnin is the number of initial iterations to discard.
	Burnin int
	// Progress enables the terminal progress bar.
	Progress bool
	// StartSearch is the starting point search method.
	StartSearch StartSearch
}

// NewSettings returns default settings.
func NewSettings() *Settings {
	return &Settings{Burnin: DefaultBurnin}
}

// start resolves the starting point according to the settings.
func (s *Settings) start(rng *rand.Rand, p *polytope.Polytope, M int, start []float64) ([]float64, error) {
	if s.StartSearch == StartOptimize {
		return p.StartOrInterior(rng, M, start)
	}
	return p.Start(rng, M, start)
}

// Chain stores the states of a Markov chain, one row per iteration.
type Chain struct {
	// D is the number of dimensions.
	D int
	// Interrupted is true if sampling was cancelled before all
	// iterations were completed.
	Interrupted bool
	burnin      int
	data        []float64
}

// newChain allocates storage for iterations states.
func newChain(D, burnin, iterations int) *Chain {
	return &Chain{
		D:      D,
		burnin: burnin,
		data:   make([]float64, 0, D*iterations),
	}
}

// append copies x as the next state.
func (c *Chain) append(x []float64) {
	c.data = append(c.data, x...)
}

// Len returns the number of retained (post burn-in) states.
func (c *Chain) Len() int {
	n := len(c.data)/c.D - c.burnin
	if n < 0 {
		return 0
	}
	return n
}

// Row returns retained state i (not a copy).
func (c *Chain) Row(i int) []float64 {
	off := (c.burnin + i) * c.D
	return c.data[off : off+c.D]
}

// Matrix returns retained states as a Len x D matrix, or nil if no
// state was retained. The matrix shares storage with the chain.
func (c *Chain) Matrix() *mat64.Dense {
	n := c.Len()
	if n == 0 {
		return nil
	}
	return mat64.NewDense(n, c.D, c.data[c.burnin*c.D:])
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

// run executes the chain loop shared by the samplers: x holds the
// starting state and is updated in place by step.
func run(ctx context.Context, x []float64, M int, s *Settings, step func(x []float64)) *Chain {
	total := M + s.Burnin
	chain := newChain(len(x), s.Burnin, total)
	chain.append(x)
	bar := progress.New(M, s.Progress)
	defer bar.Finish()
	for i := 1; i < total; i++ {
		bar.Increment()
		if i%checkPeriod == 0 && cancelled(ctx) {
			log.Warningf("Sampling cancelled after %d of %d iterations: %v", i, total, ctx.Err())
			chain.Interrupted = true
			break
		}
		step(x)
		chain.append(x)
	}
	return chain
}

// checkRun validates arguments common to all samplers.
func checkRun(M int, s *Settings) error {
	if M < 1 {
		return fmt.Errorf("%w: number of samples M=%d should be >= 1", ErrInvalidArgument, M)
	}
	if s.Burnin < 0 {
		return fmt.Errorf("%w: burnin=%d should be >= 0", ErrInvalidArgument, s.Burnin)
	}
	return nil
}

// NewRand creates the random source used by all computations of one
// call. The same seed gives the same stream.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
