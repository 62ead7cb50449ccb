package model

// StatisticalBaseline is a summary of a historical aggregate used as the
// "expected" reference for anomaly scoring. Baselines are computed over a
// fixed window and always recomputed wholesale on retrain, never patched.
type StatisticalBaseline struct {
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stdDev"`
	Median     float64 `json:"median"`
	Q1         float64 `json:"q1"`
	Q3         float64 `json:"q3"`
	IQR        float64 `json:"iqr"`
	SampleSize int     `json:"sampleSize"`
}

// CategoryPattern holds the learned spend profile for one category.
// Monthly and weekly series are zero-filled over the full calendar range so
// a category that silently stops spending still shows a strong negative trend.
type CategoryPattern struct {
	CategoryID string              `json:"categoryId"`
	Monthly    StatisticalBaseline `json:"monthly"`
	Weekly     StatisticalBaseline `json:"weekly"`
	Trend      float64             `json:"trend"`
}

// VendorPattern holds the learned per-vendor transaction profile.
type VendorPattern struct {
	Vendor    string  `json:"vendor"`
	AvgTxn    float64 `json:"avgTxn"`
	StdDev    float64 `json:"stdDev"`
	Frequency string  `json:"frequency"` // weekly, monthly, irregular
	LastSeen  string  `json:"lastSeen"`  // 2006-01-02
	TxnCount  int     `json:"txnCount"`
}
