package model

import "time"

// Model name constants for the training pipeline and model store keys.
const (
	ModelAnomaly    = "anomaly"
	ModelVendor     = "vendor"
	ModelClassifier = "classifier"
)

// ModelTrainingRecord is one entry in the append-only training history.
// The current version of a model is the most recent record per (org, model).
type ModelTrainingRecord struct {
	TrainedAt    time.Time
	OrgID        string
	ModelName    string
	Version      string
	ExampleCount int
	Success      bool
}

// TrainResult reports the outcome of a single model training run.
// Success=false with a reason is a valid, non-error outcome.
type TrainResult struct {
	Version      string
	Reason       string
	ExampleCount int
	Success      bool
}
