// Package polytope represents the convex region {x : A x <= b} and
// implements membership tests and starting point search.
package polytope

import (
	"errors"
	"fmt"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("polytope")

var (
	// ErrDimensionMismatch is returned when A, b, points or data
	// have inconsistent shapes.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidRows is returned when a row range is outside of A.
	ErrInvalidRows = errors.New("invalid constraint rows")
	// ErrNoStartingPoint is returned when no point inside the
	// polytope could be found.
	ErrNoStartingPoint = errors.New("could not find starting values within the polytope")
)

// Polytope is a set of linear inequality constraints A x <= b. Rows
// keep the order they were given in.
type Polytope struct {
	A *mat64.Dense
	B []float64
}

// New creates a polytope checking that A and b have matching shapes.
func New(A *mat64.Dense, b []float64) (*Polytope, error) {
	if A == nil {
		return nil, fmt.Errorf("%w: constraint matrix is empty", ErrDimensionMismatch)
	}
	r, _ := A.Dims()
	if r != len(b) {
		return nil, fmt.Errorf("%w: A has %d rows, b has %d elements", ErrDimensionMismatch, r, len(b))
	}
	return &Polytope{A: A, B: b}, nil
}

// FromRows creates a polytope from the rows of A given as slices.
func FromRows(rows [][]float64, b []float64) (*Polytope, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: constraint matrix is empty", ErrDimensionMismatch)
	}
	D := len(rows[0])
	data := make([]float64, 0, len(rows)*D)
	for i, row := range rows {
		if len(row) != D {
			return nil, fmt.Errorf("%w: row %d of A has %d columns, expected %d", ErrDimensionMismatch, i+1, len(row), D)
		}
		data = append(data, row...)
	}
	return New(mat64.NewDense(len(rows), D, data), b)
}

// NRows returns the number of constraints.
func (p *Polytope) NRows() int {
	r, _ := p.A.Dims()
	return r
}

// Dim returns the number of parameters.
func (p *Polytope) Dim() int {
	_, c := p.A.Dims()
	return c
}

// Rows returns a new polytope consisting of the constraints from..to
// (zero-based, inclusive).
func (p *Polytope) Rows(from, to int) (*Polytope, error) {
	if from < 0 || to >= p.NRows() || from > to {
		return nil, fmt.Errorf("%w: rows %d..%d of %d", ErrInvalidRows, from, to, p.NRows())
	}
	A := mat64.DenseCopyOf(p.A.View(from, 0, to-from+1, p.Dim()))
	b := make([]float64, to-from+1)
	copy(b, p.B[from:to+1])
	return &Polytope{A: A, B: b}, nil
}

// Row returns constraint row r of A (not a copy).
func (p *Polytope) Row(r int) []float64 {
	return p.A.RawRowView(r)
}

// checkDim returns an error if a point dimension differs from the
// polytope dimension.
func (p *Polytope) checkDim(d int) error {
	if d != p.Dim() {
		return fmt.Errorf("%w: A has %d columns, points have %d", ErrDimensionMismatch, p.Dim(), d)
	}
	return nil
}

// InsidePoint returns true if x satisfies every constraint.
func (p *Polytope) InsidePoint(x []float64) (bool, error) {
	if err := p.checkDim(len(x)); err != nil {
		return false, err
	}
	return p.inside(x), nil
}

// inside tests x without checking dimensions. It stops at the first
// violated row; a NaN product violates the row.
func (p *Polytope) inside(x []float64) bool {
	for r, b := range p.B {
		if !(floats.Dot(p.A.RawRowView(r), x) <= b) {
			return false
		}
	}
	return true
}

// Inside returns for every row of X whether it is inside the
// polytope.
func (p *Polytope) Inside(X *mat64.Dense) ([]bool, error) {
	if X == nil {
		return []bool{}, nil
	}
	n, d := X.Dims()
	if err := p.checkDim(d); err != nil {
		return nil, err
	}
	res := make([]bool, n)
	for i := range res {
		res[i] = p.inside(X.RawRowView(i))
	}
	return res, nil
}

// Count returns the number of rows of X inside the polytope.
func (p *Polytope) Count(X *mat64.Dense) (int, error) {
	flags, err := p.Inside(X)
	if err != nil {
		return 0, err
	}
	cnt := 0
	for _, in := range flags {
		if in {
			cnt++
		}
	}
	return cnt, nil
}

// CountPoint returns 1 if x is inside the polytope and 0 otherwise.
func (p *Polytope) CountPoint(x []float64) (int, error) {
	in, err := p.InsidePoint(x)
	if err != nil || !in {
		return 0, err
	}
	return 1, nil
}
