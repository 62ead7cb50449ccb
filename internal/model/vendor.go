package model

import "time"

// VendorModelSchemaVersion is bumped whenever the persisted shape of
// TrainedVendorModel changes incompatibly.
const VendorModelSchemaVersion = 1

// VendorCluster groups raw vendor strings that normalize to one canonical name.
type VendorCluster struct {
	CanonicalName string             `json:"canonicalName"`
	Centroid      map[string]float64 `json:"centroid"` // mean TF-IDF vector of members
	Variants      []string           `json:"variants"` // up to 20 retained raw spellings
	ExampleCount  int                `json:"exampleCount"`
}

// TrainedVendorModel is the per-organization vendor normalization model.
type TrainedVendorModel struct {
	SchemaVersion int                `json:"schemaVersion"`
	OrgID         string             `json:"orgId"`
	TrainedAt     time.Time          `json:"trainedAt"`
	ExampleCount  int                `json:"exampleCount"`
	Vocabulary    []string           `json:"vocabulary"`
	IDF           map[string]float64 `json:"idf"`
	Clusters      []VendorCluster    `json:"clusters"`
}

// VendorMatch is the result of normalizing a raw vendor string.
type VendorMatch struct {
	CanonicalName string  `json:"canonicalName"`
	Score         float64 `json:"score"`      // blended cosine + edit score
	Confidence    float64 `json:"confidence"` // min(0.95, 0.5 + 0.5*score)
}

// VendorExample is one confirmed raw-to-canonical mapping used for training.
type VendorExample struct {
	CreatedAt     time.Time
	OrgID         string
	RawName       string
	CanonicalName string
}
