// Package insight orchestrates the per-organization models into a single
// aggregated analysis, a ranked list of typed insights, and a sanitized
// categorical summary safe to hand to a natural-language translator.
package insight

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/copperline/ledgeriq/internal/anomaly"
	"github.com/copperline/ledgeriq/internal/coa"
	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/forecast"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/vendormatch"
)

const (
	// MaxInsights caps the ranked insight list.
	MaxInsights = 10

	// analysisWindowDays is how far back the coverage branches look.
	analysisWindowDays = 90

	// Runway buckets (P50 months) for classification.
	runwayCriticalMonths = 3.0
	runwayWarningMonths  = 6.0
)

// ClassificationResult summarizes how much of the recent feed carries a
// category assignment.
type ClassificationResult struct {
	Total       int
	Categorized int
	Coverage    float64
	Confidence  float64
}

// VendorResult summarizes vendor normalization coverage and recurring
// vendors in the recent feed.
type VendorResult struct {
	Total      int
	Normalized int
	Coverage   float64
	Recurring  int
	Confidence float64
}

// AnomalyResult carries the detected anomalies for the window.
type AnomalyResult struct {
	Anomalies  []model.Anomaly
	Confidence float64
}

// ForecastResult carries the cash projection and runway estimate.
type ForecastResult struct {
	Forecast   *model.CashFlowForecast
	Runway     *model.RunwayEstimate
	Confidence float64
}

// AnalysisResult is the aggregated output of one full analysis run.
// A nil branch means that sub-analysis failed and was omitted; its
// failure reason is in Failures.
type AnalysisResult struct {
	OrgID          string
	GeneratedAt    time.Time
	Classification *ClassificationResult
	Vendors        *VendorResult
	Anomalies      *AnomalyResult
	Forecast       *ForecastResult
	Benchmark      *BenchmarkResult
	Confidence     float64
	Failures       []string
}

// Engine fans the per-model analyses out and aggregates their results
// with partial-failure semantics.
type Engine struct {
	store      service.Storage
	anomalies  *anomaly.Service
	vendors    *vendormatch.Matcher
	forecaster *forecast.Forecaster
	vertical   coa.Vertical
	now        func() time.Time
}

func NewEngine(store service.Storage, anomalies *anomaly.Service, vendors *vendormatch.Matcher, forecaster *forecast.Forecaster, vertical coa.Vertical) *Engine {
	if vertical == "" {
		vertical = coa.VerticalGeneric
	}
	return &Engine{
		store:      store,
		anomalies:  anomalies,
		vendors:    vendors,
		forecaster: forecaster,
		vertical:   vertical,
		now:        time.Now,
	}
}

// RunFullAnalysis runs the five sub-analyses concurrently and joins them
// all-settled: a failed branch is logged and omitted from the aggregate,
// and overall confidence is the mean of the branches that succeeded.
func (e *Engine) RunFullAnalysis(ctx context.Context, orgID string, currentCash float64) (*AnalysisResult, error) {
	if orgID == "" {
		return nil, errors.New("orgID cannot be empty")
	}

	result := &AnalysisResult{OrgID: orgID, GeneratedAt: e.now()}
	var mu sync.Mutex
	var wg sync.WaitGroup

	fail := func(branch string, err error) {
		common.LogError(err, "Analysis branch failed", common.Fields{"org_id": orgID, "branch": branch})
		mu.Lock()
		result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", branch, err))
		mu.Unlock()
	}

	wg.Add(5)
	go func() {
		defer wg.Done()
		r, err := e.analyzeClassification(ctx, orgID)
		if err != nil {
			fail("classification", err)
			return
		}
		mu.Lock()
		result.Classification = r
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		r, err := e.analyzeVendors(ctx, orgID)
		if err != nil {
			fail("vendors", err)
			return
		}
		mu.Lock()
		result.Vendors = r
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		anomalies, err := e.anomalies.DetectAll(ctx, orgID, anomaly.DetectOptions{})
		if err != nil {
			fail("anomalies", err)
			return
		}
		mu.Lock()
		result.Anomalies = &AnomalyResult{Anomalies: anomalies, Confidence: 0.8}
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		r, err := e.analyzeForecast(ctx, orgID, currentCash)
		if err != nil {
			fail("forecast", err)
			return
		}
		mu.Lock()
		result.Forecast = r
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		r, err := e.compareBenchmarks(ctx, orgID)
		if err != nil {
			fail("benchmark", err)
			return
		}
		mu.Lock()
		result.Benchmark = r
		mu.Unlock()
	}()
	wg.Wait()

	var sum float64
	var succeeded int
	if result.Classification != nil {
		sum += result.Classification.Confidence
		succeeded++
	}
	if result.Vendors != nil {
		sum += result.Vendors.Confidence
		succeeded++
	}
	if result.Anomalies != nil {
		sum += result.Anomalies.Confidence
		succeeded++
	}
	if result.Forecast != nil {
		sum += result.Forecast.Confidence
		succeeded++
	}
	if result.Benchmark != nil {
		sum += result.Benchmark.Confidence
		succeeded++
	}
	if succeeded > 0 {
		result.Confidence = sum / float64(succeeded)
	}
	return result, nil
}

// ProprietaryInsights converts a full analysis into a ranked list of typed
// insights, sorted by severity then confidence, capped at MaxInsights.
func (e *Engine) ProprietaryInsights(ctx context.Context, orgID string, currentCash float64) ([]model.ProprietaryInsight, error) {
	analysis, err := e.RunFullAnalysis(ctx, orgID, currentCash)
	if err != nil {
		return nil, err
	}
	return e.buildInsights(analysis), nil
}

func (e *Engine) buildInsights(analysis *AnalysisResult) []model.ProprietaryInsight {
	var insights []model.ProprietaryInsight

	if analysis.Anomalies != nil {
		for _, a := range analysis.Anomalies.Anomalies {
			insights = append(insights, model.ProprietaryInsight{
				Type:        model.InsightAnomaly,
				Severity:    a.Severity,
				Title:       anomalyTitle(a),
				Description: a.Description,
				Source:      "anomaly",
				DataPoints: map[string]any{
					"date":     a.Date.Format("2006-01-02"),
					"observed": a.Observed,
					"expected": a.Expected,
					"score":    a.Score,
				},
				Confidence: math.Min(0.95, 0.5+0.1*math.Abs(a.Score)),
			})
		}
	}

	if analysis.Forecast != nil && analysis.Forecast.Runway != nil {
		p50 := analysis.Forecast.Runway.P50Months
		switch {
		case p50 < runwayCriticalMonths:
			insights = append(insights, model.ProprietaryInsight{
				Type:        model.InsightRisk,
				Severity:    model.SeverityCritical,
				Title:       "Cash runway critically short",
				Description: "Projected cash runs out within the critical window at the expected burn path.",
				Source:      "forecast",
				DataPoints:  map[string]any{"p50Months": p50},
				Confidence:  analysis.Forecast.Confidence,
			})
		case p50 < runwayWarningMonths:
			insights = append(insights, model.ProprietaryInsight{
				Type:        model.InsightWarning,
				Severity:    model.SeverityHigh,
				Title:       "Cash runway below comfort threshold",
				Description: "Projected runway at the expected burn path is shorter than the recommended buffer.",
				Source:      "forecast",
				DataPoints:  map[string]any{"p50Months": p50},
				Confidence:  analysis.Forecast.Confidence,
			})
		}
		if analysis.Forecast.Forecast != nil && analysis.Forecast.Forecast.BurnTrend == "increasing" {
			insights = append(insights, model.ProprietaryInsight{
				Type:        model.InsightWarning,
				Severity:    model.SeverityMedium,
				Title:       "Burn rate trending up",
				Description: "Net cash outflow in the recent half of the window is meaningfully higher than the earlier half.",
				Source:      "forecast",
				Confidence:  analysis.Forecast.Confidence,
			})
		}
	}

	if analysis.Classification != nil && analysis.Classification.Total > 0 && analysis.Classification.Coverage < 0.5 {
		insights = append(insights, model.ProprietaryInsight{
			Type:        model.InsightWarning,
			Severity:    model.SeverityLow,
			Title:       "Transaction categorization coverage is low",
			Description: "Less than half of recent transactions carry a category, which weakens anomaly and benchmark accuracy.",
			Source:      "classification",
			DataPoints:  map[string]any{"coverage": analysis.Classification.Coverage},
			Confidence:  analysis.Classification.Confidence,
		})
	}

	if analysis.Vendors != nil && analysis.Vendors.Total > 0 && analysis.Vendors.Coverage < 0.5 {
		insights = append(insights, model.ProprietaryInsight{
			Type:        model.InsightOpportunity,
			Severity:    model.SeverityLow,
			Title:       "Vendor names largely unnormalized",
			Description: "Training the vendor matcher on confirmed pairs would consolidate duplicate vendor spellings.",
			Source:      "vendors",
			DataPoints:  map[string]any{"coverage": analysis.Vendors.Coverage},
			Confidence:  analysis.Vendors.Confidence,
		})
	}

	if analysis.Benchmark != nil {
		for _, d := range analysis.Benchmark.Deviations {
			insightType := model.InsightWarning
			description := "Spend share in this category sits above the typical range for peers in this vertical."
			if d.Direction == "below" {
				insightType = model.InsightOpportunity
				description = "Spend share in this category sits below the typical range for peers in this vertical."
			}
			insights = append(insights, model.ProprietaryInsight{
				Type:        insightType,
				Severity:    model.SeverityLow,
				Title:       fmt.Sprintf("Category %s outside peer spend range", d.CategoryID),
				Description: description,
				Source:      "benchmark",
				DataPoints:  map[string]any{"share": d.Share, "low": d.Low, "high": d.High},
				Confidence:  analysis.Benchmark.Confidence,
			})
		}
	}

	sort.SliceStable(insights, func(i, j int) bool {
		if insights[i].Severity.Rank() != insights[j].Severity.Rank() {
			return insights[i].Severity.Rank() > insights[j].Severity.Rank()
		}
		return insights[i].Confidence > insights[j].Confidence
	})
	if len(insights) > MaxInsights {
		insights = insights[:MaxInsights]
	}
	return insights
}

func (e *Engine) analyzeClassification(ctx context.Context, orgID string) (*ClassificationResult, error) {
	txns, err := e.recentTransactions(ctx, orgID)
	if err != nil {
		return nil, err
	}
	result := &ClassificationResult{Total: len(txns)}
	for _, t := range txns {
		if t.CategoryID != "" {
			result.Categorized++
		}
	}
	if result.Total > 0 {
		result.Coverage = float64(result.Categorized) / float64(result.Total)
	}
	result.Confidence = 0.5 + 0.45*result.Coverage
	return result, nil
}

func (e *Engine) analyzeVendors(ctx context.Context, orgID string) (*VendorResult, error) {
	txns, err := e.recentTransactions(ctx, orgID)
	if err != nil {
		return nil, err
	}
	result := &VendorResult{Total: len(txns)}
	recurring := make(map[string]bool)
	for _, t := range txns {
		if t.NormalizedVendor != "" {
			result.Normalized++
		}
		if t.IsRecurring {
			key := t.NormalizedVendor
			if key == "" {
				key = t.VendorText
			}
			recurring[key] = true
		}
	}
	result.Recurring = len(recurring)
	if result.Total > 0 {
		result.Coverage = float64(result.Normalized) / float64(result.Total)
	}
	result.Confidence = 0.5 + 0.45*result.Coverage
	return result, nil
}

func (e *Engine) analyzeForecast(ctx context.Context, orgID string, currentCash float64) (*ForecastResult, error) {
	fc, err := e.forecaster.Forecast(ctx, orgID, forecast.DefaultHorizonMonths)
	if err != nil {
		return nil, err
	}
	runway, err := e.forecaster.RunwayProbabilities(ctx, orgID, currentCash)
	if err != nil {
		return nil, err
	}
	return &ForecastResult{Forecast: fc, Runway: runway, Confidence: fc.ModelConfidence}, nil
}

func (e *Engine) recentTransactions(ctx context.Context, orgID string) ([]model.Transaction, error) {
	end := e.now()
	start := end.AddDate(0, 0, -analysisWindowDays)
	txns, err := e.store.GetTransactions(ctx, orgID, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	return txns, nil
}

func anomalyTitle(a model.Anomaly) string {
	switch a.Type {
	case model.AnomalyDailySpike:
		return "Unusual daily spend"
	case model.AnomalyDayOfWeek:
		return "Spend unusual for this weekday"
	case model.AnomalyCategorySpike:
		return fmt.Sprintf("Spending spike in category %s", a.CategoryID)
	case model.AnomalyVendorAmount:
		return fmt.Sprintf("Unusual charge from %s", a.Vendor)
	default:
		return "Spending anomaly"
	}
}
