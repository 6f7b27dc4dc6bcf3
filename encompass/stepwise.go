package encompass

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"bitbucket.org/stratsel/stratsel/checkpoint"
	"bitbucket.org/stratsel/stratsel/polytope"
	"bitbucket.org/stratsel/stratsel/sampler"
)

// stepwiseBurnin is the burn-in of the conditional Gibbs chains.
const stepwiseBurnin = 10

// ErrInvalidSteps is returned for block boundaries outside of the
// constraint rows.
var ErrInvalidSteps = errors.New("invalid steps")

// SortSteps converts one-based block end rows into sorted, unique,
// zero-based block ends and adds the last row max as the final
// boundary.
func SortSteps(steps []int, max int) ([]int, error) {
	all := make([]int, 0, len(steps)+1)
	all = append(all, steps...)
	all = append(all, max)
	seen := make(map[int]bool, len(all))
	res := make([]int, 0, len(all))
	for _, s := range all {
		if s < 1 || s > max {
			return nil, fmt.Errorf("%w: step %d is not in [1, %d]", ErrInvalidSteps, s, max)
		}
		if !seen[s-1] {
			seen[s-1] = true
			res = append(res, s-1)
		}
	}
	sort.Ints(res)
	return res, nil
}

// Stepwise is the result of a stepwise estimate.
type Stepwise struct {
	// Integral is the product of the block estimates.
	Integral float64 `json:"integral"`
	// Count is the number of samples inside for every block.
	Count []float64 `json:"count"`
	// M is the number of samples for every block.
	M []float64 `json:"M"`
	// Steps are the one-based block end rows.
	Steps []int `json:"steps"`
	// Interrupted is true if the computation was cancelled.
	Interrupted bool `json:"interrupted,omitempty"`
}

// StepwiseSettings are the settings of a stepwise estimate.
type StepwiseSettings struct {
	// Batch is the batch size of direct counting (first block).
	Batch int
	// Sampler is used for the conditional chains; its burn-in
	// is overridden.
	Sampler sampler.Settings
	// Checkpoint stores finished blocks if not nil.
	Checkpoint *checkpoint.CheckpointIO
}

// broadcast expands a single sample size to S blocks.
func broadcast(M []int, S int) ([]float64, error) {
	res := make([]float64, S)
	switch len(M) {
	case 1:
		for s := range res {
			res[s] = float64(M[0])
		}
	case S:
		for s := range res {
			res[s] = float64(M[s])
		}
	default:
		return nil, fmt.Errorf("%w: %d sample sizes for %d blocks", sampler.ErrInvalidArgument, len(M), S)
	}
	for s, m := range res {
		if m < 1 {
			return nil, fmt.Errorf("%w: M=%v for block %d should be >= 1", sampler.ErrInvalidArgument, m, s+1)
		}
	}
	return res, nil
}

// CountStepwise estimates the polytope mass by splitting the
// constraint rows into blocks at the one-based rows steps. The first
// block is estimated by CountBinomial; every next block by the
// fraction of Gibbs samples restricted to all previous blocks that
// also satisfy the rows of the block. The estimate is the product of
// the block fractions.
func CountStepwise(ctx context.Context, rng *rand.Rand, k, n []float64, p *polytope.Polytope, prior [2]float64,
	M []int, steps []int, start []float64, s *StepwiseSettings) (*Stepwise, error) {
	if s == nil {
		s = &StepwiseSettings{Batch: 10000}
	}
	if err := sampler.CheckBinomial(p, k, n, prior); err != nil {
		return nil, err
	}
	zsteps, err := SortSteps(steps, p.NRows())
	if err != nil {
		return nil, err
	}
	S := len(zsteps)
	Ms, err := broadcast(M, S)
	if err != nil {
		return nil, err
	}

	data := &checkpoint.CheckpointData{Steps: zsteps, Count: make([]float64, S), M: Ms}
	if s.Checkpoint != nil {
		saved, err := s.Checkpoint.Load()
		if err != nil {
			return nil, err
		}
		if saved != nil && len(saved.Count) == S {
			data = saved
		}
	}

	res := &Stepwise{Count: data.Count, M: data.M, Steps: make([]int, S)}
	for i, z := range zsteps {
		res.Steps[i] = z + 1
	}

	ss := s.Sampler
	ss.Burnin = stepwiseBurnin
	for b := data.Done; b < S; b++ {
		if cancelled(ctx) {
			res.Interrupted = true
			break
		}
		log.Infof("Block %d/%d: rows %d..%d, M=%v", b+1, S, blockStart(zsteps, b)+1, zsteps[b]+1, Ms[b])
		var interrupted bool
		if b == 0 {
			first, err := p.Rows(0, zsteps[0])
			if err != nil {
				return nil, err
			}
			cnt, err := CountBinomial(ctx, rng, k, n, first, prior, int(Ms[0]), s.Batch, ss.Progress)
			if err != nil {
				return nil, err
			}
			res.Count[0] = float64(cnt.Count)
			interrupted = cnt.Interrupted
		} else {
			previous, err := p.Rows(0, zsteps[b-1])
			if err != nil {
				return nil, err
			}
			block, err := p.Rows(zsteps[b-1]+1, zsteps[b])
			if err != nil {
				return nil, err
			}
			chain, err := sampler.Binomial(ctx, rng, k, n, previous, prior, int(Ms[b]), start, &ss)
			if err != nil {
				return nil, err
			}
			cnt, err := block.Count(chain.Matrix())
			if err != nil {
				return nil, err
			}
			res.Count[b] = float64(cnt)
			interrupted = chain.Interrupted
		}
		if interrupted {
			res.Count[b] = 0
			res.Interrupted = true
			break
		}
		log.Debugf("Block %d: %v/%v", b+1, res.Count[b], Ms[b])
		data.Done = b + 1
		data.Final = data.Done == S
		if s.Checkpoint != nil && (data.Final || s.Checkpoint.Old()) {
			if err := s.Checkpoint.Save(data); err != nil {
				return nil, err
			}
		}
	}

	if res.Interrupted {
		log.Warningf("Stepwise counting cancelled after %d of %d blocks", data.Done, S)
		if s.Checkpoint != nil && data.Done > 0 {
			if err := s.Checkpoint.Save(data); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	res.Integral = 1
	for b := range res.Count {
		res.Integral *= res.Count[b] / res.M[b]
	}
	return res, nil
}

// blockStart returns the first zero-based row of block b.
func blockStart(steps []int, b int) int {
	if b == 0 {
		return 0
	}
	return steps[b-1] + 1
}
