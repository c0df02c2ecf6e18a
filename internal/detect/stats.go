package detect

import (
	"math"
	"sort"
)

// epsStd is the cutoff below which a baseline statistic counts as
// constant. Train rejects fully degenerate baselines; an isolated
// constant index scores zero rather than dividing float residue by a
// vanishing standard deviation.
const epsStd = 1e-9

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// zscore is zero when the baseline statistic is constant: a degenerate
// index carries no calibrated scale, so any deviation from it would
// amplify into an arbitrary score.
func zscore(x, m, sd float64) float64 {
	if sd < epsStd {
		return 0
	}
	return (x - m) / sd
}

// quantile returns the q-th empirical quantile (nearest-rank) of xs.
// xs is not modified.
func quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
