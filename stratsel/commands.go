package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"bitbucket.org/stratsel/stratsel/checkpoint"
	"bitbucket.org/stratsel/stratsel/config"
	"bitbucket.org/stratsel/stratsel/encompass"
	"bitbucket.org/stratsel/stratsel/polytope"
	"bitbucket.org/stratsel/stratsel/report"
	"bitbucket.org/stratsel/stratsel/sampler"
)

// run executes a problem command and returns its result for the
// summary.
func run(ctx context.Context, cmd string, s *settings, rng *rand.Rand) (interface{}, error) {
	p, err := s.problem()
	if err != nil {
		return nil, err
	}
	poly, err := p.Polytope()
	if err != nil {
		return nil, err
	}
	log.Infof("Polytope: %d constraints, %d dimensions", poly.NRows(), poly.Dim())

	switch cmd {
	case insideCmd.FullCommand():
		return inside(s, p, poly)
	case countSamplesCmd.FullCommand():
		return countSamples(s, p, poly)
	case startCmd.FullCommand():
		return start(s, p, poly, rng)
	case sampleCmd.FullCommand(), hitAndRunCmd.FullCommand():
		return sample(ctx, s, p, poly, rng, cmd == hitAndRunCmd.FullCommand())
	case countCmd.FullCommand():
		return count(ctx, s, p, poly, rng)
	case stepwiseCmd.FullCommand():
		return stepwise(ctx, s, p, poly, rng)
	}
	return nil, fmt.Errorf("unknown command: %s", cmd)
}

func inside(s *settings, p *config.Problem, poly *polytope.Polytope) ([]bool, error) {
	X, err := p.Points()
	if err != nil {
		return nil, err
	}
	res, err := poly.Inside(X)
	if err != nil {
		return nil, err
	}
	for _, in := range res {
		fmt.Fprintln(s.out, in)
	}
	return res, nil
}

func countSamples(s *settings, p *config.Problem, poly *polytope.Polytope) (int, error) {
	X, err := p.Points()
	if err != nil {
		return 0, err
	}
	cnt, err := poly.Count(X)
	if err != nil {
		return 0, err
	}
	fmt.Fprintln(s.out, cnt)
	return cnt, nil
}

func start(s *settings, p *config.Problem, poly *polytope.Polytope, rng *rand.Rand) ([]float64, error) {
	var x []float64
	var err error
	if s.startSearch == "optimize" {
		x, err = poly.StartOrInterior(rng, p.SampleSize(), p.Start)
	} else {
		x, err = poly.Start(rng, p.SampleSize(), p.Start)
	}
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(s.out, joinFloats(x))
	return x, nil
}

// histBins is the number of histogram bins.
const histBins = 50

// SampleSummary is the result of the sampling commands.
type SampleSummary struct {
	// Samples is the number of retained samples.
	Samples int `json:"samples"`
	// Interrupted is true if sampling was cancelled.
	Interrupted bool `json:"interrupted,omitempty"`
	// Summary are the per-parameter means and standard deviations.
	Summary *report.Summary `json:"summary"`
}

func sample(ctx context.Context, s *settings, p *config.Problem, poly *polytope.Polytope, rng *rand.Rand, uniform bool) (*SampleSummary, error) {
	ss := s.sampler(p)
	var chain *sampler.Chain
	var err error
	if uniform {
		log.Info("Hit-and-run sampling")
		chain, err = sampler.HitAndRun(ctx, rng, poly, p.SampleSize(), p.Start, ss)
	} else {
		prior, perr := p.PriorShapes()
		if perr != nil {
			return nil, perr
		}
		log.Infof("Gibbs sampling, prior=%v", prior)
		chain, err = sampler.Binomial(ctx, rng, p.K, p.N, poly, prior, p.SampleSize(), p.Start, ss)
	}
	if err != nil {
		return nil, err
	}
	if chain.Interrupted {
		log.Warningf("Sampling interrupted, %d samples retained", chain.Len())
	}

	if s.outF != "" {
		if err := report.SaveSamples(s.outF, chain); err != nil {
			return nil, fmt.Errorf("error writing samples: %w", err)
		}
		log.Infof("Samples written to %s", s.outF)
	} else if err := report.WriteSamples(s.out, chain); err != nil {
		return nil, err
	}
	if s.plot != "" && chain.Len() > 0 {
		if err := report.TracePlot(s.plot, chain); err != nil {
			log.Error("Error creating trace plot:", err)
		}
	}
	if s.hist != "" && chain.Len() > 0 {
		for d := 0; d < chain.D; d++ {
			fn := fmt.Sprintf("%s_p%d.png", s.hist, d+1)
			if err := report.Histogram(fn, chain, d, histBins); err != nil {
				log.Error("Error creating histogram:", err)
			}
		}
	}

	sum := report.Summarize(chain)
	log.Notice(report.SummaryTable(sum))
	return &SampleSummary{Samples: chain.Len(), Interrupted: chain.Interrupted, Summary: sum}, nil
}

func count(ctx context.Context, s *settings, p *config.Problem, poly *polytope.Polytope, rng *rand.Rand) (*encompass.Count, error) {
	prior, err := p.PriorShapes()
	if err != nil {
		return nil, err
	}
	res, err := encompass.CountBinomial(ctx, rng, p.K, p.N, poly, prior, p.SampleSize(), p.Batch, s.progress)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(s.out, report.CountTable(res))
	return res, nil
}

func stepwise(ctx context.Context, s *settings, p *config.Problem, poly *polytope.Polytope, rng *rand.Rand) (*encompass.Stepwise, error) {
	prior, err := p.PriorShapes()
	if err != nil {
		return nil, err
	}
	// without steps the whole polytope is a single block
	steps := p.Steps

	es := &encompass.StepwiseSettings{Batch: p.Batch, Sampler: *s.sampler(p)}
	if s.checkpointF != "" {
		db, err := checkpoint.Open(s.checkpointF)
		if err != nil {
			return nil, fmt.Errorf("error opening checkpoint database: %w", err)
		}
		defer db.Close()
		key, err := stepwiseKey(p)
		if err != nil {
			return nil, err
		}
		es.Checkpoint = checkpoint.NewCheckpointIO(db, key, s.checkpointSeconds)
		log.Infof("Using checkpoint database %s", s.checkpointF)
	}

	res, err := encompass.CountStepwise(ctx, rng, p.K, p.N, poly, prior, p.M, steps, p.Start, es)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(s.out, report.StepwiseTable(res))
	return res, nil
}

// stepwiseKey identifies a stepwise computation in the checkpoint
// database. The seed is left out so that time seeded runs resume.
func stepwiseKey(p *config.Problem) ([]byte, error) {
	return checkpoint.Key(p.A, p.B, p.K, p.N, p.Prior, p.M, p.Steps, p.Batch,
		p.BurninOr(sampler.DefaultBurnin), p.Start)
}

// joinFloats formats a vector as a tab separated line.
func joinFloats(x []float64) string {
	s := make([]string, len(x))
	for i, v := range x {
		s[i] = fmt.Sprint(v)
	}
	return strings.Join(s, "\t")
}
