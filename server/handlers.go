package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"bitbucket.org/stratsel/stratsel/config"
	"bitbucket.org/stratsel/stratsel/encompass"
	"bitbucket.org/stratsel/stratsel/polytope"
	"bitbucket.org/stratsel/stratsel/sampler"
)

// errBadRequest marks undecodable request bodies.
var errBadRequest = errors.New("bad request")

const (
	// maxBody is the maximal request body size.
	maxBody = 32 << 20
	// maxValues bounds the number of chain values (samples times
	// dimensions, burn-in included) and sample sizes of one request.
	maxValues = 1 << 24
	// maxPoints is the maximal number of points X.
	maxPoints = 1 << 20
)

// request is the body of every endpoint: a problem definition and
// the random seed.
type request struct {
	config.Problem
	// Seed initializes the random source; time based if absent.
	Seed *uint64 `json:"seed,omitempty"`
}

// parsed is a decoded and validated request.
type parsed struct {
	*request
	poly  *polytope.Polytope
	prior [2]float64
	rng   *rand.Rand
}

func decode(r *http.Request) (*parsed, error) {
	var req request
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	req.SetDefaults()
	poly, err := req.Polytope()
	if err != nil {
		return nil, err
	}
	prior, err := req.PriorShapes()
	if err != nil {
		return nil, err
	}
	if err := checkSize(&req.Problem, poly.Dim()); err != nil {
		return nil, err
	}
	seed := uint64(time.Now().UnixNano())
	if req.Seed != nil {
		seed = *req.Seed
	}
	return &parsed{request: &req, poly: poly, prior: prior, rng: sampler.NewRand(seed)}, nil
}

// checkSize rejects requests whose sample sizes or points would
// exceed the allocation limits.
func checkSize(p *config.Problem, D int) error {
	if len(p.X) > maxPoints {
		return fmt.Errorf("%w: %d points, at most %d allowed", errBadRequest, len(p.X), maxPoints)
	}
	burnin := p.BurninOr(sampler.DefaultBurnin)
	if burnin > maxValues {
		return fmt.Errorf("%w: burnin=%d, at most %d allowed", errBadRequest, burnin, maxValues)
	}
	for _, m := range p.M {
		if m > maxValues || (m+burnin)*D > maxValues {
			return fmt.Errorf("%w: M=%d with %d dimensions exceeds %d values", errBadRequest, m, D, maxValues)
		}
	}
	return nil
}

func (p *parsed) settings() *sampler.Settings {
	s := sampler.NewSettings()
	s.Burnin = p.BurninOr(sampler.DefaultBurnin)
	return s
}

// samplesResponse holds chain states, one row per iteration.
type samplesResponse struct {
	Samples     [][]float64 `json:"samples"`
	Interrupted bool        `json:"interrupted,omitempty"`
}

func newSamplesResponse(c *sampler.Chain) *samplesResponse {
	res := &samplesResponse{Samples: make([][]float64, c.Len()), Interrupted: c.Interrupted}
	for i := range res.Samples {
		res.Samples[i] = append([]float64(nil), c.Row(i)...)
	}
	return res
}

func (s *Server) inside(w http.ResponseWriter, r *http.Request) {
	p, err := decode(r)
	if err != nil {
		writeError(w, err)
		return
	}
	X, err := p.Points()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := p.poly.Inside(X)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]bool{"inside": res})
}

func (s *Server) countSamples(w http.ResponseWriter, r *http.Request) {
	p, err := decode(r)
	if err != nil {
		writeError(w, err)
		return
	}
	X, err := p.Points()
	if err != nil {
		writeError(w, err)
		return
	}
	cnt, err := p.poly.Count(X)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": cnt})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	p, err := decode(r)
	if err != nil {
		writeError(w, err)
		return
	}
	x, err := p.poly.Start(p.rng, p.SampleSize(), p.Start)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]float64{"start": x})
}

func (s *Server) sample(w http.ResponseWriter, r *http.Request) {
	p, err := decode(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := sampler.Binomial(r.Context(), p.rng, p.K, p.N, p.poly, p.prior, p.SampleSize(), p.Start, p.settings())
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.draws.WithLabelValues("sample").Add(float64(c.Len()))
	writeJSON(w, http.StatusOK, newSamplesResponse(c))
}

func (s *Server) hitAndRun(w http.ResponseWriter, r *http.Request) {
	p, err := decode(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := sampler.HitAndRun(r.Context(), p.rng, p.poly, p.SampleSize(), p.Start, p.settings())
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.draws.WithLabelValues("hitandrun").Add(float64(c.Len()))
	writeJSON(w, http.StatusOK, newSamplesResponse(c))
}

func (s *Server) count(w http.ResponseWriter, r *http.Request) {
	p, err := decode(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := encompass.CountBinomial(r.Context(), p.rng, p.K, p.N, p.poly, p.prior, p.SampleSize(), p.Batch, false)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.draws.WithLabelValues("count").Add(float64(res.M))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) stepwise(w http.ResponseWriter, r *http.Request) {
	p, err := decode(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := encompass.CountStepwise(r.Context(), p.rng, p.K, p.N, p.poly, p.prior, p.M, p.Steps, p.Start,
		&encompass.StepwiseSettings{Batch: p.Batch})
	if err != nil {
		writeError(w, err)
		return
	}
	total := 0.0
	for _, m := range res.M {
		total += m
	}
	s.metrics.draws.WithLabelValues("stepwise").Add(total)
	writeJSON(w, http.StatusOK, res)
}
