package model

import "time"

// AnomalyModelSchemaVersion is bumped whenever the persisted shape of
// TrainedAnomalyModel changes incompatibly.
const AnomalyModelSchemaVersion = 1

// AnomalyThresholds are the learned z-score cutoffs, adapted to observed
// dispersion at training time and clamped to safe bands.
type AnomalyThresholds struct {
	DailyZ    float64 `json:"dailyZ"`    // clamped to [2.0, 3.5]
	CategoryZ float64 `json:"categoryZ"` // clamped to [1.5, 3.0]
	VendorZ   float64 `json:"vendorZ"`   // clamped to [2.0, 4.0]
}

// TrainedAnomalyModel is the complete per-organization spending model.
// It is created wholesale by a train run and persisted as one unit.
type TrainedAnomalyModel struct {
	SchemaVersion int                        `json:"schemaVersion"`
	OrgID         string                     `json:"orgId"`
	TrainedAt     time.Time                  `json:"trainedAt"`
	WindowDays    int                        `json:"windowDays"`
	SampleSize    int                        `json:"sampleSize"`
	Daily         StatisticalBaseline        `json:"daily"`
	Weekly        StatisticalBaseline        `json:"weekly"`
	Monthly       StatisticalBaseline        `json:"monthly"`
	DayOfWeek     [7]StatisticalBaseline     `json:"dayOfWeek"` // Sunday..Saturday
	Categories    map[string]CategoryPattern `json:"categories"`
	Vendors       map[string]VendorPattern   `json:"vendors"`
	SeasonalIndex [12]float64                `json:"seasonalIndex"` // January..December multipliers
	Thresholds    AnomalyThresholds          `json:"thresholds"`
}

// AnomalyType identifies which aggregate produced an anomaly.
type AnomalyType string

const (
	// AnomalyDailySpike flags an unusual whole-day spend total.
	AnomalyDailySpike AnomalyType = "daily_spike"
	// AnomalyDayOfWeek flags a day unusual for its weekday baseline.
	AnomalyDayOfWeek AnomalyType = "day_of_week"
	// AnomalyCategorySpike flags unusual recent spend in one category.
	AnomalyCategorySpike AnomalyType = "category_spike"
	// AnomalyVendorAmount flags a single transaction unusual for its vendor.
	AnomalyVendorAmount AnomalyType = "vendor_amount"
)

// AnomalySeverity buckets anomalies for ranking and display.
type AnomalySeverity string

// Severity constants, ordered from most to least severe.
const (
	SeverityCritical AnomalySeverity = "critical"
	SeverityHigh     AnomalySeverity = "high"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityLow      AnomalySeverity = "low"
)

// Rank returns a sortable weight for the severity, higher = more severe.
func (s AnomalySeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Anomaly is one detected deviation from a learned baseline.
type Anomaly struct {
	Date        time.Time       `json:"date"`
	Type        AnomalyType     `json:"type"`
	Severity    AnomalySeverity `json:"severity"`
	Description string          `json:"description"`
	CategoryID  string          `json:"categoryId,omitempty"`
	Vendor      string          `json:"vendor,omitempty"`
	Observed    float64         `json:"observed"`
	Expected    float64         `json:"expected"`
	Score       float64         `json:"score"` // signed z-score against the baseline
}
