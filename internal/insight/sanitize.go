package insight

import (
	"strings"

	"github.com/copperline/ledgeriq/internal/model"
)

// BuildSanitizedPrompt reduces a full analysis to categorical statements
// safe to hand to a natural-language translator. The output must never
// contain a raw amount, count, percentile, or any other numeral; callers
// downstream treat a digit in this text as a correctness bug.
func BuildSanitizedPrompt(analysis *AnalysisResult) string {
	var b strings.Builder
	b.WriteString("Financial health summary (categorical):\n")

	if analysis.Forecast != nil && analysis.Forecast.Runway != nil {
		b.WriteString("- runway status: " + runwayLabel(analysis.Forecast.Runway.P50Months) + "\n")
		if analysis.Forecast.Forecast != nil {
			b.WriteString("- burn trend: " + analysis.Forecast.Forecast.BurnTrend + "\n")
		}
	} else {
		b.WriteString("- runway status: unknown\n")
	}

	if analysis.Anomalies != nil {
		b.WriteString("- spending anomalies: " + anomalyPressureLabel(analysis.Anomalies.Anomalies) + "\n")
	} else {
		b.WriteString("- spending anomalies: unknown\n")
	}

	if analysis.Classification != nil {
		b.WriteString("- categorization coverage: " + coverageLabel(analysis.Classification.Coverage) + "\n")
	}
	if analysis.Vendors != nil {
		b.WriteString("- vendor normalization: " + coverageLabel(analysis.Vendors.Coverage) + "\n")
	}

	if analysis.Benchmark != nil {
		switch {
		case len(analysis.Benchmark.Deviations) == 0:
			b.WriteString("- peer comparison: within typical ranges\n")
		case hasDirection(analysis.Benchmark.Deviations, "above"):
			b.WriteString("- peer comparison: overspending versus peers in some categories\n")
		default:
			b.WriteString("- peer comparison: underspending versus peers in some categories\n")
		}
	}

	b.WriteString("- overall analysis confidence: " + confidenceLabel(analysis.Confidence) + "\n")
	return b.String()
}

func runwayLabel(p50Months float64) string {
	switch {
	case p50Months < runwayCriticalMonths:
		return "CRITICAL"
	case p50Months < runwayWarningMonths:
		return "WARNING"
	default:
		return "healthy"
	}
}

func anomalyPressureLabel(anomalies []model.Anomaly) string {
	worst := 0
	for _, a := range anomalies {
		if r := a.Severity.Rank(); r > worst {
			worst = r
		}
	}
	switch {
	case len(anomalies) == 0:
		return "none detected"
	case worst >= model.SeverityCritical.Rank():
		return "severe"
	case worst >= model.SeverityHigh.Rank() || len(anomalies) > 3:
		return "elevated"
	default:
		return "minor"
	}
}

func coverageLabel(coverage float64) string {
	switch {
	case coverage >= 0.8:
		return "high"
	case coverage >= 0.5:
		return "moderate"
	default:
		return "low"
	}
}

func confidenceLabel(confidence float64) string {
	switch {
	case confidence >= 0.75:
		return "high"
	case confidence >= 0.5:
		return "moderate"
	default:
		return "low"
	}
}

func hasDirection(deviations []BenchmarkDeviation, direction string) bool {
	for _, d := range deviations {
		if d.Direction == direction {
			return true
		}
	}
	return false
}
