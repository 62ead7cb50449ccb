package model

// MonthlyForecast is one confidence-bounded monthly net cash-flow projection.
type MonthlyForecast struct {
	Month      string  `json:"month"` // 2006-01
	Predicted  float64 `json:"predicted"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// CashFlowForecast is the full forecast output for one organization.
type CashFlowForecast struct {
	OrgID           string            `json:"orgId"`
	Forecasts       []MonthlyForecast `json:"forecasts"`
	BurnTrend       string            `json:"burnTrend"` // increasing, decreasing, stable
	ModelConfidence float64           `json:"modelConfidence"`
}

// RunwayEstimate summarizes how long current cash lasts under the
// pessimistic (P10), expected (P50), and optimistic (P90) burn paths.
type RunwayEstimate struct {
	P10Months             float64   `json:"p10Months"`
	P50Months             float64   `json:"p50Months"`
	P90Months             float64   `json:"p90Months"`
	SurvivalProbabilities []float64 `json:"survivalProbabilities"` // per forecast month
}
