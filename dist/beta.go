// Package dist implements the beta distribution helpers used by the
// samplers: tail probabilities, quantiles, truncated draws and
// batches of independent draws.
package dist

import (
	"math"
	"math/rand/v2"

	"github.com/gonum/mathext"
	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat/distuv"
)

// log is the global logging variable.
var log = logging.MustGetLogger("dist")

// LnBeta returns log of Beta function.
func LnBeta(p, q float64) float64 {
	lgp, _ := math.Lgamma(p)
	lgq, _ := math.Lgamma(q)
	lgpq, _ := math.Lgamma(p + q)
	return lgp + lgq - lgpq
}

/*
CDFBeta returns distribution function of the standard form of the beta
distribution, that is, the incomplete beta ratio I_x(p,q).
*/
func CDFBeta(x, p, q float64) float64 {
	return mathext.RegIncBeta(p, q, clamp01(x))
}

// QuantileBeta calculates the quantile of the beta distribution.
func QuantileBeta(prob, p, q float64) float64 {
	return mathext.InvRegIncBeta(p, q, clamp01(prob))
}

/*
SurvivalBeta returns the upper tail probability P(X > x) of Beta(p,
q). It is computed from the reflected distribution, P(X > x) =
I_{1-x}(q, p), which keeps precision when x is close to 1.
*/
func SurvivalBeta(x, p, q float64) float64 {
	return mathext.RegIncBeta(q, p, 1-clamp01(x))
}

// UpperQuantileBeta returns x such that P(X > x) = prob for Beta(p, q).
func UpperQuantileBeta(prob, p, q float64) float64 {
	return 1 - mathext.InvRegIncBeta(q, p, clamp01(prob))
}

// clamp01 restricts x to [0, 1].
func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Interval orders truncation bounds. Bounds are clamped to [0, 1];
// if floating point error produced min > max, both are replaced by
// the midpoint.
func Interval(min, max float64) (float64, float64) {
	min, max = clamp01(min), clamp01(max)
	if min > max {
		mid := (min + max) / 2
		log.Debugf("inverted interval [%g, %g], using %g", min, max, mid)
		return mid, mid
	}
	return min, max
}

// TruncatedBeta draws from Beta(shape1, shape2) restricted to [min,
// max] using the inverse cdf method in the upper tail
// parameterization.
func TruncatedBeta(rng *rand.Rand, shape1, shape2, min, max float64) float64 {
	min, max = Interval(min, max)
	if min == max {
		return min
	}
	pmin := SurvivalBeta(min, shape1, shape2)
	pmax := SurvivalBeta(max, shape1, shape2)
	u := rng.Float64()
	x := UpperQuantileBeta(pmin+u*(pmax-pmin), shape1, shape2)
	switch {
	case pmin == pmax:
		// both tails underflow far from the mode
		return min + u*(max-min)
	case math.IsNaN(x):
		return (min + max) / 2
	}
	return math.Max(min, math.Min(max, x))
}

// PosteriorShapes returns beta shape parameters k+prior[0] and
// n-k+prior[1] for every coordinate.
func PosteriorShapes(k, n []float64, prior [2]float64) (shape1, shape2 []float64) {
	shape1 = make([]float64, len(k))
	shape2 = make([]float64, len(k))
	for d := range k {
		shape1[d] = k[d] + prior[0]
		shape2[d] = n[d] - k[d] + prior[1]
	}
	return
}

// BetaBatch fills X with independent beta draws; column d is drawn
// from Beta(shape1[d], shape2[d]). If X is nil, a new matrix with
// rows rows is allocated.
func BetaBatch(rng *rand.Rand, rows int, shape1, shape2 []float64, X *mat64.Dense) *mat64.Dense {
	D := len(shape1)
	if X == nil {
		X = mat64.NewDense(rows, D, nil)
	}
	r, _ := X.Dims()
	for d := 0; d < D; d++ {
		b := distuv.Beta{Alpha: shape1[d], Beta: shape2[d], Src: rng}
		for i := 0; i < r; i++ {
			X.Set(i, d, b.Rand())
		}
	}
	return X
}
