package model

// InsightType classifies an insight for consumers.
type InsightType string

// Insight type constants.
const (
	InsightAnomaly     InsightType = "anomaly"
	InsightWarning     InsightType = "warning"
	InsightRisk        InsightType = "risk"
	InsightOpportunity InsightType = "opportunity"
)

// ProprietaryInsight is the stable shape handed to any UI or translation
// layer. DataPoints carries structured details for UIs; the sanitized
// summary path never includes them.
type ProprietaryInsight struct {
	Type        InsightType     `json:"type"`
	Severity    AnomalySeverity `json:"severity"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Source      string          `json:"source"` // which sub-analysis produced it
	DataPoints  map[string]any  `json:"dataPoints,omitempty"`
	Confidence  float64         `json:"confidence"`
}
