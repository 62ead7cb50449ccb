package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Empty(t *testing.T) {
	b := Compute(nil)
	assert.Zero(t, b.Mean)
	assert.Zero(t, b.StdDev)
	assert.Zero(t, b.Median)
	assert.Zero(t, b.Q1)
	assert.Zero(t, b.Q3)
	assert.Zero(t, b.IQR)
	assert.Zero(t, b.SampleSize)
}

func TestCompute_Basic(t *testing.T) {
	b := Compute([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	assert.InDelta(t, 5.0, b.Mean, 1e-9)
	// Population stddev of the classic example set is exactly 2.
	assert.InDelta(t, 2.0, b.StdDev, 1e-9)
	// Even length: average of the two middle elements.
	assert.InDelta(t, 4.5, b.Median, 1e-9)
	// Floor-index quartiles on the sorted slice.
	assert.InDelta(t, 4.0, b.Q1, 1e-9)
	assert.InDelta(t, 7.0, b.Q3, 1e-9)
	assert.InDelta(t, 3.0, b.IQR, 1e-9)
	assert.Equal(t, 8, b.SampleSize)
}

func TestCompute_OddMedian(t *testing.T) {
	b := Compute([]float64{9, 1, 5})
	assert.InDelta(t, 5.0, b.Median, 1e-9)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Compute(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestZScore(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		mean   float64
		stdDev float64
		want   float64
	}{
		{"above mean", 120, 100, 10, 2},
		{"below mean", 80, 100, 10, -2},
		{"zero stddev is no signal", 1e9, 100, 0, 0},
		{"at mean", 100, 100, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ZScore(tt.value, tt.mean, tt.stdDev), 1e-9)
		})
	}
}

func TestIQRScore(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		q1    float64
		q3    float64
		iqr   float64
		want  float64
	}{
		{"inside box", 5, 4, 7, 3, 0},
		{"above box", 10, 4, 7, 3, 1},
		{"below box", 1, 4, 7, 3, 1},
		{"zero iqr", 100, 4, 4, 0, 0},
		{"on upper fence", 7, 4, 7, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IQRScore(tt.value, tt.q1, tt.q3, tt.iqr), 1e-9)
		})
	}
}

func TestTrend_TooShort(t *testing.T) {
	assert.Zero(t, Trend(nil))
	assert.Zero(t, Trend([]float64{1}))
	assert.Zero(t, Trend([]float64{1, 2}))
}

func TestTrend_Direction(t *testing.T) {
	up := Trend([]float64{100, 110, 120, 130, 140, 150})
	require.Greater(t, up, 0.0)

	down := Trend([]float64{150, 140, 130, 120, 110, 100})
	require.Less(t, down, 0.0)

	flat := Trend([]float64{100, 100, 100, 100})
	assert.InDelta(t, 0, flat, 1e-9)
}

func TestTrend_RelativeScale(t *testing.T) {
	// Normalization by the mean makes the trend scale-free: the same shape
	// at 10x magnitude produces the same relative trend.
	small := Trend([]float64{10, 11, 12, 13})
	large := Trend([]float64{100, 110, 120, 130})
	assert.InDelta(t, small, large, 1e-9)
	assert.False(t, math.IsNaN(small))
}
