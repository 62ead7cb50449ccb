package insight

import (
	"context"
	"fmt"
	"sort"

	"github.com/copperline/ledgeriq/internal/coa"
	"github.com/copperline/ledgeriq/internal/service"
)

// SpendShareRange is the typical fraction of total spend a category takes
// for healthy organizations in a vertical.
type SpendShareRange struct {
	Low  float64
	High float64
}

// verticalBenchmarks holds static peer spend-share ranges keyed by
// canonical account code. Ranges come from published small-business
// expense breakdowns, rounded to coarse bands.
var verticalBenchmarks = map[coa.Vertical]map[string]SpendShareRange{
	coa.VerticalSaaS: {
		"6000": {0.35, 0.60}, // payroll
		"6100": {0.03, 0.12}, // rent
		"6210": {0.05, 0.25}, // cloud infrastructure
		"6300": {0.05, 0.30}, // marketing
	},
	coa.VerticalEcommerce: {
		"6000": {0.10, 0.30},
		"6100": {0.05, 0.15},
		"6300": {0.10, 0.35},
		"6400": {0.00, 0.05},
	},
	coa.VerticalServices: {
		"6000": {0.40, 0.70},
		"6100": {0.05, 0.15},
		"6300": {0.02, 0.15},
		"6400": {0.02, 0.10},
	},
	coa.VerticalRestaurant: {
		"6000": {0.25, 0.40},
		"6100": {0.06, 0.12},
		"6300": {0.02, 0.08},
		"6700": {0.03, 0.06}, // utilities
	},
	coa.VerticalGeneric: {
		"6000": {0.20, 0.60},
		"6100": {0.04, 0.15},
		"6300": {0.03, 0.25},
	},
}

// BenchmarkDeviation is one category whose spend share falls outside the
// vertical's peer range.
type BenchmarkDeviation struct {
	CategoryID string
	Share      float64
	Low        float64
	High       float64
	Direction  string // above or below
}

// BenchmarkResult compares the organization's spend mix to static peer
// ranges for its vertical.
type BenchmarkResult struct {
	Vertical   coa.Vertical
	Shares     map[string]float64
	Deviations []BenchmarkDeviation
	Confidence float64
}

// benchmarkWindowDays is how far back spend shares are computed.
const benchmarkWindowDays = 90

func (e *Engine) compareBenchmarks(ctx context.Context, orgID string) (*BenchmarkResult, error) {
	ranges, ok := verticalBenchmarks[e.vertical]
	if !ok {
		ranges = verticalBenchmarks[coa.VerticalGeneric]
	}

	end := e.now()
	start := end.AddDate(0, 0, -benchmarkWindowDays)
	txns, err := e.store.GetTransactions(ctx, orgID, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
		DebitOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	total := 0.0
	byCategory := make(map[string]float64)
	for _, t := range txns {
		amount := t.AbsAmount()
		total += amount
		if t.CategoryID != "" {
			byCategory[t.CategoryID] += amount
		}
	}
	if total == 0 {
		return &BenchmarkResult{Vertical: e.vertical, Shares: map[string]float64{}, Confidence: 0.3}, nil
	}

	result := &BenchmarkResult{
		Vertical:   e.vertical,
		Shares:     make(map[string]float64, len(byCategory)),
		Confidence: 0.7,
	}
	for code, spend := range byCategory {
		result.Shares[code] = spend / total
	}

	codes := make([]string, 0, len(ranges))
	for code := range ranges {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		r := ranges[code]
		share := result.Shares[code]
		switch {
		case share > r.High:
			result.Deviations = append(result.Deviations, BenchmarkDeviation{
				CategoryID: code, Share: share, Low: r.Low, High: r.High, Direction: "above",
			})
		case share > 0 && share < r.Low:
			result.Deviations = append(result.Deviations, BenchmarkDeviation{
				CategoryID: code, Share: share, Low: r.Low, High: r.High, Direction: "below",
			})
		}
	}
	return result, nil
}
