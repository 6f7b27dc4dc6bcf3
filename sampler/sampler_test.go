package sampler

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/stratsel/stratsel/polytope"
)

// feasibility tolerance for floating point error
const smallDiff = 1e-9

func init() {
	logging.SetLevel(logging.ERROR, "sampler")
	logging.SetLevel(logging.ERROR, "polytope")
	logging.SetLevel(logging.ERROR, "dist")
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 7))
}

// box returns 0 <= x <= 1 as 2*D constraints.
func box(D int) *polytope.Polytope {
	rows := make([][]float64, 2*D)
	b := make([]float64, 2*D)
	for d := 0; d < D; d++ {
		rows[d] = make([]float64, D)
		rows[d][d] = 1
		b[d] = 1
		rows[D+d] = make([]float64, D)
		rows[D+d][d] = -1
	}
	p, err := polytope.FromRows(rows, b)
	if err != nil {
		panic(err)
	}
	return p
}

// order returns x[0] <= x[1] <= ... <= x[D-1].
func order(D int) *polytope.Polytope {
	rows := make([][]float64, D-1)
	for i := range rows {
		rows[i] = make([]float64, D)
		rows[i][i] = 1
		rows[i][i+1] = -1
	}
	p, err := polytope.FromRows(rows, make([]float64, D-1))
	if err != nil {
		panic(err)
	}
	return p
}

// chainColumn returns column d of the chain.
func chainColumn(c *Chain, d int) []float64 {
	x := make([]float64, c.Len())
	for i := range x {
		x[i] = c.Row(i)[d]
	}
	return x
}

// checkFeasible fails if any chain state violates the constraints.
func checkFeasible(tst *testing.T, c *Chain, p *polytope.Polytope) {
	for i := 0; i < c.Len(); i++ {
		x := c.Row(i)
		for r := 0; r < p.NRows(); r++ {
			s := 0.0
			for d, a := range p.Row(r) {
				s += a * x[d]
			}
			if s > p.B[r]+smallDiff {
				tst.Fatalf("Sample %d violates constraint %d: %v", i, r, x)
			}
		}
	}
}

func TestBinomialFeasible(tst *testing.T) {
	rng := newRand()
	p, err := polytope.FromRows([][]float64{
		{1, -1, 0, 0},
		{0, 1, -1, 0},
		{0, 0, 1, -1},
		{1, 1, 1, 1},
		{-1, 0, 0, 0},
	}, []float64{0, 0, 0, 2, -0.05})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	k := []float64{8, 3, 6, 9}
	n := []float64{10, 10, 10, 10}
	chain, err := Binomial(context.Background(), rng, k, n, p, [2]float64{1, 1}, 2000, polytope.Unset, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if chain.Len() != 2000 || chain.Interrupted {
		tst.Fatalf("Expected 2000 samples, got %d (interrupted=%v)", chain.Len(), chain.Interrupted)
	}
	checkFeasible(tst, chain, p)
	X := chain.Matrix()
	if r, c := X.Dims(); r != 2000 || c != 4 {
		tst.Errorf("Expected 2000x4 matrix, got %dx%d", r, c)
	}
}

// Without binding constraints the chain samples the beta posteriors.
func TestBinomialUnconstrained(tst *testing.T) {
	rng := newRand()
	k := []float64{3, 0}
	n := []float64{4, 9}
	chain, err := Binomial(context.Background(), rng, k, n, box(2), [2]float64{1, 1}, 20000, polytope.Unset, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for d, exp := range []float64{4. / 6, 1. / 11} {
		mean := stat.Mean(chainColumn(chain, d), nil)
		tst.Log("d=", d, ", mean=", mean, ", expected=", exp)
		if math.Abs(mean-exp) > 0.01 {
			tst.Errorf("Parameter %d: expected mean %v, got %v", d, exp, mean)
		}
	}
}

// Uniform prior on p1 <= p2 has means 1/3 and 2/3.
func TestBinomialOrderPrior(tst *testing.T) {
	rng := newRand()
	chain, err := Binomial(context.Background(), rng, []float64{0, 0}, []float64{0, 0}, order(2), [2]float64{1, 1}, 20000, polytope.Unset, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	checkFeasible(tst, chain, order(2))
	for d, exp := range []float64{1. / 3, 2. / 3} {
		if mean := stat.Mean(chainColumn(chain, d), nil); math.Abs(mean-exp) > 0.02 {
			tst.Errorf("Parameter %d: expected mean %v, got %v", d, exp, mean)
		}
	}
}

func TestBinomialStartUnchanged(tst *testing.T) {
	rng := newRand()
	start := []float64{0.1, 0.5, 0.9}
	chain, err := Binomial(context.Background(), rng, []float64{1, 1, 1}, []float64{2, 2, 2}, order(3), [2]float64{1, 1},
		10, start, &Settings{Burnin: 0})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if start[0] != 0.1 || start[1] != 0.5 || start[2] != 0.9 {
		tst.Error("Starting point was modified:", start)
	}
	// without burnin the first sample is the starting point
	if chain.Row(0)[1] != 0.5 {
		tst.Error("Expected first sample to be the starting point, got", chain.Row(0))
	}
}

func TestBinomialReproducible(tst *testing.T) {
	k := []float64{1, 2, 3}
	n := []float64{5, 5, 5}
	a, _ := Binomial(context.Background(), rand.New(rand.NewPCG(9, 9)), k, n, order(3), [2]float64{1, 1}, 50, polytope.Unset, nil)
	b, _ := Binomial(context.Background(), rand.New(rand.NewPCG(9, 9)), k, n, order(3), [2]float64{1, 1}, 50, polytope.Unset, nil)
	for i := 0; i < a.Len(); i++ {
		for d := 0; d < 3; d++ {
			if a.Row(i)[d] != b.Row(i)[d] {
				tst.Fatal("Same seed produced different chains")
			}
		}
	}
}

func TestBinomialErrors(tst *testing.T) {
	rng := newRand()
	ctx := context.Background()
	p := order(3)
	prior := [2]float64{1, 1}
	if _, err := Binomial(ctx, rng, []float64{1, 1}, []float64{2, 2}, p, prior, 10, polytope.Unset, nil); !errors.Is(err, polytope.ErrDimensionMismatch) {
		tst.Error("Expected dimension mismatch, got", err)
	}
	if _, err := Binomial(ctx, rng, []float64{3, 1, 1}, []float64{2, 2, 2}, p, prior, 10, polytope.Unset, nil); !errors.Is(err, ErrInvalidArgument) {
		tst.Error("Expected invalid argument, got", err)
	}
	if _, err := Binomial(ctx, rng, []float64{1, 1, 1}, []float64{2, 2, 2}, p, prior, 0, polytope.Unset, nil); !errors.Is(err, ErrInvalidArgument) {
		tst.Error("Expected invalid argument, got", err)
	}
	empty, _ := polytope.FromRows([][]float64{{1, 1, 1}}, []float64{-1})
	if _, err := Binomial(ctx, rng, []float64{1, 1, 1}, []float64{2, 2, 2}, empty, prior, 10, polytope.Unset, nil); !errors.Is(err, polytope.ErrNoStartingPoint) {
		tst.Error("Expected no starting point, got", err)
	}
}

// A cancelled context stops the chain at the first check.
func TestBinomialCancelled(tst *testing.T) {
	rng := newRand()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chain, err := Binomial(ctx, rng, []float64{1, 1}, []float64{2, 2}, order(2), [2]float64{1, 1}, 1000, polytope.Unset, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if !chain.Interrupted {
		tst.Error("Expected interrupted chain")
	}
	// iterations 0..99 completed, 5 discarded as burn-in
	if chain.Len() != checkPeriod-DefaultBurnin {
		tst.Errorf("Expected %d samples, got %d", checkPeriod-DefaultBurnin, chain.Len())
	}
	checkFeasible(tst, chain, order(2))
}

func TestHitAndRunFeasible(tst *testing.T) {
	rng := newRand()
	p, _ := polytope.FromRows([][]float64{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{-1, 0, 0}, {0, -1, 0}, {0, 0, -1},
		{1, -1, 0}, {0, 1, -1},
	}, []float64{1, 1, 1, 0, 0, 0, 0, 0})
	chain, err := HitAndRun(context.Background(), rng, p, 5000, polytope.Unset, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if chain.Len() != 5000 {
		tst.Fatal("Expected 5000 samples, got", chain.Len())
	}
	checkFeasible(tst, chain, p)
}

// Hit-and-run in the unit box is uniform: mean 1/2, variance 1/12.
func TestHitAndRunUniform(tst *testing.T) {
	if testing.Short() {
		tst.Skip("skipping test in short mode.")
	}
	rng := newRand()
	D := 3
	chain, err := HitAndRun(context.Background(), rng, box(D), 50000, polytope.Unset, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for d := 0; d < D; d++ {
		mean, variance := stat.MeanVariance(chainColumn(chain, d), nil)
		tst.Log("d=", d, ", mean=", mean, ", variance=", variance)
		if math.Abs(mean-0.5) > 0.02 {
			tst.Errorf("Coordinate %d: expected mean 0.5, got %v", d, mean)
		}
		if math.Abs(variance-1./12) > 0.01 {
			tst.Errorf("Coordinate %d: expected variance %v, got %v", d, 1./12, variance)
		}
	}
}

func TestHitAndRunCancelled(tst *testing.T) {
	rng := newRand()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chain, err := HitAndRun(ctx, rng, box(2), 1000, polytope.Unset, &Settings{Burnin: 10})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if !chain.Interrupted || chain.Len() != checkPeriod-10 {
		tst.Errorf("Expected %d samples from interrupted chain, got %d", checkPeriod-10, chain.Len())
	}
}

func TestChainEmpty(tst *testing.T) {
	c := newChain(2, 5, 10)
	c.append([]float64{0.1, 0.2})
	if c.Len() != 0 || c.Matrix() != nil {
		tst.Error("Expected empty chain")
	}
}
