// Package stats provides the pure statistical primitives underneath the
// trained models: baselines, outlier scores, and trend estimation. Functions
// here have no side effects and perform no I/O.
package stats

import (
	"math"
	"sort"

	"github.com/copperline/ledgeriq/internal/model"
)

// Compute builds a StatisticalBaseline over the given values.
// An empty input yields the all-zero baseline.
func Compute(values []float64) model.StatisticalBaseline {
	n := len(values)
	if n == 0 {
		return model.StatisticalBaseline{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	// Population standard deviation.
	stdDev := math.Sqrt(sqDiff / float64(n))

	q1 := sorted[n/4]
	q3 := sorted[(n*3)/4]

	return model.StatisticalBaseline{
		Mean:       mean,
		StdDev:     stdDev,
		Median:     median(sorted),
		Q1:         q1,
		Q3:         q3,
		IQR:        q3 - q1,
		SampleSize: n,
	}
}

// median expects a sorted, non-empty slice. Even lengths average the two
// middle elements.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ZScore returns how many standard deviations value lies from mean.
// A zero stdDev yields exactly 0: callers must treat that as "no signal",
// not "exactly average".
func ZScore(value, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (value - mean) / stdDev
}

// IQRScore returns the distance beyond the interquartile box, normalized by
// the IQR. Values inside [q1, q3], or any value when IQR is 0, score 0.
func IQRScore(value, q1, q3, iqr float64) float64 {
	if iqr == 0 {
		return 0
	}
	if value > q3 {
		return (value - q3) / iqr
	}
	if value < q1 {
		return (q1 - value) / iqr
	}
	return 0
}

// Trend fits an ordinary-least-squares slope over the index sequence
// 0..n-1 and normalizes it by the series mean, producing a unit-free
// relative trend per step. Series shorter than 3 points return 0.
func Trend(values []float64) float64 {
	n := len(values)
	if n < 3 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	mean := sumY / fn
	if mean == 0 {
		return 0
	}
	return slope / mean
}
