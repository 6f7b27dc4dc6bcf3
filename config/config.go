// Package config reads problem definitions: constraints, binomial
// data and sampling settings, from YAML or JSON files.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/gonum/matrix/mat64"
	"gopkg.in/yaml.v3"

	"bitbucket.org/stratsel/stratsel/polytope"
)

// Problem is a constrained binomial problem.
type Problem struct {
	// A is the constraint matrix, one row per inequality.
	A [][]float64 `yaml:"A" json:"A"`
	// B is the right hand side of A x <= b.
	B []float64 `yaml:"b" json:"b"`
	// K is the number of successes per parameter.
	K []float64 `yaml:"k,omitempty" json:"k,omitempty"`
	// N is the number of trials per parameter.
	N []float64 `yaml:"n,omitempty" json:"n,omitempty"`
	// Prior is the common beta prior (shape1, shape2).
	Prior []float64 `yaml:"prior,omitempty" json:"prior,omitempty"`
	// M is the number of samples (one per block for stepwise).
	M []int `yaml:"M,omitempty" json:"M,omitempty"`
	// Steps are one-based block end rows for stepwise counting.
	Steps []int `yaml:"steps,omitempty" json:"steps,omitempty"`
	// Batch is the batch size for direct counting.
	Batch int `yaml:"batch,omitempty" json:"batch,omitempty"`
	// Burnin is the number of discarded chain iterations.
	Burnin *int `yaml:"burnin,omitempty" json:"burnin,omitempty"`
	// Start is the starting point, [-1] to search for one.
	Start []float64 `yaml:"start,omitempty" json:"start,omitempty"`
	// X are points for membership tests.
	X [][]float64 `yaml:"X,omitempty" json:"X,omitempty"`
}

// defaults
const (
	DefaultM     = 10000
	DefaultBatch = 10000
)

// Read parses a problem from YAML (JSON is accepted as a subset).
func Read(r io.Reader) (*Problem, error) {
	var p Problem
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("error parsing problem: %w", err)
	}
	p.SetDefaults()
	return &p, nil
}

// ReadFile parses a problem file.
func ReadFile(fn string) (*Problem, error) {
	b, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	return Read(bytes.NewReader(b))
}

// SetDefaults fills unset values: a uniform prior, no data, M=10000,
// batch=10000 and a searched starting point.
func (p *Problem) SetDefaults() {
	D := 0
	if len(p.A) > 0 {
		D = len(p.A[0])
	}
	if p.K == nil && p.N == nil {
		p.K = make([]float64, D)
		p.N = make([]float64, D)
	}
	if p.Prior == nil {
		p.Prior = []float64{1, 1}
	}
	if len(p.M) == 0 {
		p.M = []int{DefaultM}
	}
	if p.Batch == 0 {
		p.Batch = DefaultBatch
	}
	if len(p.Start) == 0 {
		p.Start = polytope.Unset
	}
}

// Polytope builds the constraint system.
func (p *Problem) Polytope() (*polytope.Polytope, error) {
	return polytope.FromRows(p.A, p.B)
}

// PriorShapes returns the prior as an array.
func (p *Problem) PriorShapes() ([2]float64, error) {
	if len(p.Prior) != 2 {
		return [2]float64{}, fmt.Errorf("%w: prior should have 2 elements, got %d", polytope.ErrDimensionMismatch, len(p.Prior))
	}
	return [2]float64{p.Prior[0], p.Prior[1]}, nil
}

// SampleSize returns the first sample size.
func (p *Problem) SampleSize() int {
	return p.M[0]
}

// BurninOr returns the burn-in or def if it is not set.
func (p *Problem) BurninOr(def int) int {
	if p.Burnin == nil {
		return def
	}
	return *p.Burnin
}

// Points returns the points X as a matrix, or nil if there are none.
func (p *Problem) Points() (*mat64.Dense, error) {
	if len(p.X) == 0 {
		return nil, nil
	}
	D := len(p.X[0])
	data := make([]float64, 0, len(p.X)*D)
	for i, x := range p.X {
		if len(x) != D {
			return nil, fmt.Errorf("%w: point %d has %d elements, expected %d", polytope.ErrDimensionMismatch, i+1, len(x), D)
		}
		data = append(data, x...)
	}
	return mat64.NewDense(len(p.X), D, data), nil
}
