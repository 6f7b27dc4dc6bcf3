package main

import (
	"errors"
	"io"
	"os"

	"bitbucket.org/stratsel/stratsel/config"
	"bitbucket.org/stratsel/stratsel/sampler"
)

// settings stores the command settings.
type settings struct {
	problemF    string
	progress    bool
	startSearch string

	out  io.Writer
	outF string
	plot string
	hist string

	checkpointF       string
	checkpointSeconds float64
}

// newSettings initializes settings from global variables
// (command-line arguments).
func newSettings() *settings {
	s := &settings{
		problemF:    *problemF,
		progress:    *showProgress,
		startSearch: *startSearch,
		out:         os.Stdout,

		checkpointF:       *checkpointF,
		checkpointSeconds: *checkpointSeconds,
	}
	// only the flags of the selected command are set
	if *sampleOutF != "" || *samplePlot != "" || *sampleHist != "" {
		s.outF, s.plot, s.hist = *sampleOutF, *samplePlot, *sampleHist
	}
	if *hitAndRunOutF != "" || *hitAndRunPlot != "" || *hitAndRunHist != "" {
		s.outF, s.plot, s.hist = *hitAndRunOutF, *hitAndRunPlot, *hitAndRunHist
	}
	return s
}

// problem reads the problem file.
func (s *settings) problem() (*config.Problem, error) {
	if s.problemF == "" {
		return nil, errors.New("problem file is required (--problem)")
	}
	p, err := config.ReadFile(s.problemF)
	if err != nil {
		return nil, err
	}
	log.Infof("Read problem: %d constraints, %d parameters", len(p.A), len(p.K))
	return p, nil
}

// sampler returns sampler settings for the problem.
func (s *settings) sampler(p *config.Problem) *sampler.Settings {
	ss := sampler.NewSettings()
	ss.Burnin = p.BurninOr(sampler.DefaultBurnin)
	ss.Progress = s.progress
	if s.startSearch == "optimize" {
		log.Info("Using interior point optimization if no starting point is found")
		ss.StartSearch = sampler.StartOptimize
	}
	return ss
}
