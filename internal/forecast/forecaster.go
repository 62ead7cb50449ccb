// Package forecast projects monthly net cash flow forward and estimates
// how long the organization's cash lasts under pessimistic, expected, and
// optimistic burn paths.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/stats"
)

const (
	// MinHistoryMonths is the minimum number of observed months needed to
	// produce a projection at all.
	MinHistoryMonths = 3

	// DefaultHistoryMonths bounds how far back the forecaster reads.
	DefaultHistoryMonths = 24

	// DefaultHorizonMonths is used when the caller passes horizon <= 0.
	DefaultHorizonMonths = 6

	// MaxHorizonMonths caps the projection; bands past a year are noise.
	MaxHorizonMonths = 12

	// burnTrendDelta is the relative change between the first-half and
	// second-half means that separates a trend from noise.
	burnTrendDelta = 0.10

	// bandWidening grows the confidence interval per month projected.
	bandWidening = 0.25

	// confidenceDecay shrinks per-month confidence as the horizon extends.
	confidenceDecay = 0.08

	// MaxRunwayMonths caps runway figures when burn is near zero or positive.
	MaxRunwayMonths = 60.0
)

// Forecaster builds cash-flow projections from the monthly flow aggregates
// in the store. It holds no trained state; every call recomputes from the
// current feed.
type Forecaster struct {
	store service.Storage
	now   func() time.Time
}

func NewForecaster(store service.Storage) *Forecaster {
	return &Forecaster{store: store, now: time.Now}
}

// Forecast projects net monthly cash flow horizonMonths forward using a
// least-squares trend over the observed months, adjusted by a seasonal
// index, with bands that widen the further out the projection reaches.
func (f *Forecaster) Forecast(ctx context.Context, orgID string, horizonMonths int) (*model.CashFlowForecast, error) {
	if orgID == "" {
		return nil, errors.New("orgID cannot be empty")
	}
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	if horizonMonths > MaxHorizonMonths {
		horizonMonths = MaxHorizonMonths
	}

	history, err := f.loadHistory(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(history) < MinHistoryMonths {
		return nil, fmt.Errorf("%w: %d months of history, need %d",
			common.ErrInsufficientData, len(history), MinHistoryMonths)
	}

	nets := make([]float64, len(history))
	for i, m := range history {
		nets[i] = m.Net
	}
	baseline := stats.Compute(nets)
	slope := fitSlope(nets)
	// The least-squares line through points (0..n-1, nets) passes through
	// (mean index, mean value), which pins down the intercept.
	intercept := baseline.Mean - slope*float64(len(nets)-1)/2
	seasonal := seasonalIndex(history)

	// Relative spread of the history drives both band width and confidence.
	spread := 0.0
	if baseline.Mean != 0 {
		spread = math.Abs(baseline.StdDev / baseline.Mean)
	}
	modelConfidence := clamp(1.0-spread, 0.2, 0.95)

	lastMonth := history[len(history)-1].Month
	forecasts := make([]model.MonthlyForecast, 0, horizonMonths)
	for step := 1; step <= horizonMonths; step++ {
		month := lastMonth.AddDate(0, step, 0)
		predicted := (intercept + slope*float64(len(nets)-1+step)) * seasonal[month.Month()-1]
		band := baseline.StdDev * (1.0 + bandWidening*float64(step-1))
		forecasts = append(forecasts, model.MonthlyForecast{
			Month:      month.Format("2006-01"),
			Predicted:  predicted,
			Lower:      predicted - band,
			Upper:      predicted + band,
			Confidence: clamp(modelConfidence-confidenceDecay*float64(step-1), 0.1, 0.95),
		})
	}

	return &model.CashFlowForecast{
		OrgID:           orgID,
		Forecasts:       forecasts,
		BurnTrend:       classifyBurnTrend(nets),
		ModelConfidence: modelConfidence,
	}, nil
}

// RunwayProbabilities estimates months of operation remaining at current
// cash under the lower-band (P10), predicted (P50), and upper-band (P90)
// burn paths, plus a per-month survival probability over the forecast
// window.
func (f *Forecaster) RunwayProbabilities(ctx context.Context, orgID string, currentCash float64) (*model.RunwayEstimate, error) {
	fc, err := f.Forecast(ctx, orgID, MaxHorizonMonths)
	if err != nil {
		return nil, err
	}

	estimate := &model.RunwayEstimate{
		P10Months: runwayMonths(currentCash, fc.Forecasts, func(m model.MonthlyForecast) float64 { return m.Lower }),
		P50Months: runwayMonths(currentCash, fc.Forecasts, func(m model.MonthlyForecast) float64 { return m.Predicted }),
		P90Months: runwayMonths(currentCash, fc.Forecasts, func(m model.MonthlyForecast) float64 { return m.Upper }),
	}

	// Survival per month: the fraction of the three paths still solvent.
	cash := [3]float64{currentCash, currentCash, currentCash}
	for _, m := range fc.Forecasts {
		cash[0] += m.Lower
		cash[1] += m.Predicted
		cash[2] += m.Upper
		alive := 0
		for _, c := range cash {
			if c > 0 {
				alive++
			}
		}
		estimate.SurvivalProbabilities = append(estimate.SurvivalProbabilities, float64(alive)/3.0)
	}

	return estimate, nil
}

func (f *Forecaster) loadHistory(ctx context.Context, orgID string) ([]service.MonthlyFlow, error) {
	end := f.now()
	start := end.AddDate(0, -DefaultHistoryMonths, 0)
	history, err := f.store.GetMonthlyCashFlow(ctx, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load cash flow history: %w", err)
	}
	return history, nil
}

// classifyBurnTrend compares the mean net flow of the first half of the
// observed history against the second half. Burn grows when net flow
// falls, so the labels read from the expense side. The projection is
// linear in the same fitted trend, so the label holds over the forecast
// horizon too.
func classifyBurnTrend(nets []float64) string {
	if len(nets) < 2 {
		return "stable"
	}
	half := len(nets) / 2
	first := mean(nets[:half])
	second := mean(nets[half:])

	scale := math.Abs(first)
	if scale == 0 {
		scale = math.Abs(second)
	}
	if scale == 0 {
		return "stable"
	}

	change := (second - first) / scale
	switch {
	case change < -burnTrendDelta:
		return "increasing"
	case change > burnTrendDelta:
		return "decreasing"
	default:
		return "stable"
	}
}

// fitSlope is the least-squares slope of values over index 0..n-1.
func fitSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// seasonalIndex derives 12 monthly multipliers from the observed history.
// Months with no observations, or too little history to be meaningful,
// stay at 1.0.
func seasonalIndex(history []service.MonthlyFlow) [12]float64 {
	var index [12]float64
	for i := range index {
		index[i] = 1.0
	}
	if len(history) < 12 {
		return index
	}

	sums := make([]float64, 12)
	counts := make([]int, 12)
	total := 0.0
	for _, m := range history {
		mi := int(m.Month.Month()) - 1
		sums[mi] += m.Net
		counts[mi]++
		total += m.Net
	}
	overall := total / float64(len(history))
	if overall == 0 {
		return index
	}

	for i := range index {
		if counts[i] == 0 {
			continue
		}
		ratio := (sums[i] / float64(counts[i])) / overall
		// Same-sign ratios only; a month that flips the sign of net flow
		// is an outlier, not seasonality.
		if ratio > 0 {
			index[i] = clamp(ratio, 0.5, 2.0)
		}
	}
	return index
}

// runwayMonths walks one burn path until cash runs out, interpolating the
// final partial month. Flat or positive paths beyond the forecast window
// extrapolate the last month's flow, capped at MaxRunwayMonths.
func runwayMonths(cash float64, forecasts []model.MonthlyForecast, pick func(model.MonthlyForecast) float64) float64 {
	if cash <= 0 {
		return 0
	}
	months := 0.0
	for _, m := range forecasts {
		flow := pick(m)
		if cash+flow <= 0 {
			if flow < 0 {
				return months + cash/-flow
			}
			return months
		}
		cash += flow
		months++
	}
	// Still solvent past the window: extrapolate the final month's flow.
	if len(forecasts) > 0 {
		last := pick(forecasts[len(forecasts)-1])
		if last < 0 {
			months += cash / -last
		} else {
			months = MaxRunwayMonths
		}
	}
	return math.Min(months, MaxRunwayMonths)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
