package anomaly

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/testutil"
)

const testOrg = "org-anomaly-test"

// seedBaselineMonths writes months of steady spend: perDay transactions per
// spread-out day, one debit each, in the given category and vendor. Amounts
// vary slightly per transaction so no baseline collapses to zero variance.
func seedBaselineMonths(t *testing.T, db *testutil.TestDB, start time.Time, months, txnsPerMonth int, baseAmount float64, vendor, category string) {
	t.Helper()
	days := []int{2, 6, 11, 16, 21, 26}
	var txns []model.Transaction
	for m := 0; m < months; m++ {
		for i := 0; i < txnsPerMonth; i++ {
			day := days[i%len(days)]
			date := time.Date(start.Year(), start.Month(), day, 12, 0, 0, 0, time.UTC).AddDate(0, m, 0)
			amount := baseAmount + float64(i*7) + float64(m*3)
			txns = append(txns, testutil.Txn(testOrg, date, -amount, vendor, category))
		}
	}
	db.SeedTransactions(context.Background(), txns)
}

func TestTrainInsufficientTransactions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := NewService(db.Storage)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedBaselineMonths(t, db, start, 2, 6, 100, "Acme", "6200") // 12 txns

	result, err := svc.Train(ctx, testOrg, TrainOptions{DaysBack: 180, Now: start.AddDate(0, 3, 0)})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 12, result.ExampleCount)
	assert.NotEmpty(t, result.Reason)

	// No model was persisted.
	_, err = db.Storage.GetModelBlob(ctx, testOrg, model.ModelAnomaly)
	assert.Error(t, err)
}

func TestTrainInsufficientDataPreservesExistingModel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := NewService(db.Storage)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedBaselineMonths(t, db, start, 6, 6, 1390, "AWS", "6210")

	result, err := svc.Train(ctx, testOrg, TrainOptions{DaysBack: 180, Now: start.AddDate(0, 6, 0)})
	require.NoError(t, err)
	require.True(t, result.Success)

	before, err := db.Storage.GetModelBlob(ctx, testOrg, model.ModelAnomaly)
	require.NoError(t, err)

	// Retrain over a window with almost no data.
	result, err = svc.Train(ctx, testOrg, TrainOptions{DaysBack: 3, Now: start.AddDate(0, 6, 0)})
	require.NoError(t, err)
	assert.False(t, result.Success)

	after, err := db.Storage.GetModelBlob(ctx, testOrg, model.ModelAnomaly)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLearnedThresholdsStayClamped(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 6, 0)

	tests := []struct {
		name    string
		amounts func(i int) float64
	}{
		{name: "zero variance", amounts: func(_ int) float64 { return 250 }},
		{name: "low variance", amounts: func(i int) float64 { return 250 + float64(i%5) }},
		{name: "high variance", amounts: func(i int) float64 { return float64(1 + (i%7)*4000) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var txns []model.Transaction
			for i := 0; i < 60; i++ {
				date := start.AddDate(0, 0, i*3)
				txns = append(txns, testutil.Txn(testOrg, date, -tt.amounts(i), fmt.Sprintf("vendor-%d", i%4), "6200"))
			}
			trained := buildModel(testOrg, txns, start, end, 180)

			assert.GreaterOrEqual(t, trained.Thresholds.DailyZ, minDailyZ)
			assert.LessOrEqual(t, trained.Thresholds.DailyZ, maxDailyZ)
			assert.GreaterOrEqual(t, trained.Thresholds.CategoryZ, minCategoryZ)
			assert.LessOrEqual(t, trained.Thresholds.CategoryZ, maxCategoryZ)
			assert.GreaterOrEqual(t, trained.Thresholds.VendorZ, minVendorZ)
			assert.LessOrEqual(t, trained.Thresholds.VendorZ, maxVendorZ)
		})
	}
}

func TestDailyDetectionGatedBySampleSize(t *testing.T) {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 2, 0)

	// Thirty transactions on only five distinct days: the daily baseline has
	// too few samples to score against.
	var txns []model.Transaction
	for day := 0; day < 5; day++ {
		date := start.AddDate(0, 0, day*7)
		for i := 0; i < 6; i++ {
			txns = append(txns, testutil.Txn(testOrg, date, -float64(90+i+day), fmt.Sprintf("one-off-%d-%d", day, i), ""))
		}
	}
	trained := buildModel(testOrg, txns, start, end, 60)
	require.Less(t, trained.Daily.SampleSize, MinDailySamples)

	// An absurdly large day must still not fire.
	spike := []model.Transaction{
		testutil.Txn(testOrg, end.AddDate(0, 0, -1), -1000000, "one-off-spike", ""),
	}
	anomalies, fired := detectDaily(trained, spike)
	assert.Empty(t, anomalies)
	assert.Empty(t, fired)
}

func TestCategoryTrendFollowsRampDirection(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 5, 27)

	ramp := func(increasing bool) map[string]model.CategoryPattern {
		var txns []model.Transaction
		for m := 0; m < 6; m++ {
			amount := float64(1000 * (m + 1))
			if !increasing {
				amount = float64(1000 * (6 - m))
			}
			date := start.AddDate(0, m, 10)
			txns = append(txns, testutil.Txn(testOrg, date, -amount, "Ramp Vendor", "6300"))
		}
		return buildCategoryPatterns(txns, start, end)
	}

	up := ramp(true)
	require.Contains(t, up, "6300")
	assert.Positive(t, up["6300"].Trend)

	down := ramp(false)
	require.Contains(t, down, "6300")
	assert.Negative(t, down["6300"].Trend)
}

func TestDetectAllWithoutModelReturnsEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db.Storage)

	anomalies, err := svc.DetectAll(context.Background(), "never-trained", DetectOptions{})
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestDetectionRoundTripThroughStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	// The training window is aligned to whole months so the zero-filled
	// category calendar has no empty edge months.
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	trainNow := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	detectNow := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seedBaselineMonths(t, db, start, 5, 6, 1390, "AWS", "6210")

	// Spike month after the training window.
	var spike []model.Transaction
	for i, day := range []int{2, 6, 11, 16, 21, 26} {
		date := time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC)
		spike = append(spike, testutil.Txn(testOrg, date, -float64(1690+i*8), "AWS", "6210"))
	}
	db.SeedTransactions(ctx, spike)

	first := NewService(db.Storage)
	result, err := first.Train(ctx, testOrg, TrainOptions{DaysBack: 150, Now: trainNow})
	require.NoError(t, err)
	require.True(t, result.Success)

	got1, err := first.DetectAll(ctx, testOrg, DetectOptions{DaysBack: 30, Now: detectNow})
	require.NoError(t, err)
	require.NotEmpty(t, got1)

	// A fresh service must reload the persisted model and produce the same
	// anomaly list, order and values included.
	second := NewService(db.Storage)
	got2, err := second.DetectAll(ctx, testOrg, DetectOptions{DaysBack: 30, Now: detectNow})
	require.NoError(t, err)
	assert.Equal(t, got1, got2)
}

func TestSortAnomaliesBreaksExactTies(t *testing.T) {
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	tied := []model.Anomaly{
		{Date: day, Type: model.AnomalyVendorAmount, Severity: model.SeverityHigh, Vendor: "AWS", Score: 3.5},
		{Date: day, Type: model.AnomalyCategorySpike, Severity: model.SeverityHigh, CategoryID: "6210", Score: -3.5},
		{Date: day.AddDate(0, 0, 1), Type: model.AnomalyDailySpike, Severity: model.SeverityHigh, Score: 3.5},
		{Date: day, Type: model.AnomalyCategorySpike, Severity: model.SeverityHigh, CategoryID: "6100", Score: 3.5},
	}

	// The same findings in any input order sort to the same list: the
	// severity buckets and |score| are all equal, so only the trailing
	// tiebreakers decide.
	forward := append([]model.Anomaly(nil), tied...)
	sortAnomalies(forward)
	reversed := []model.Anomaly{tied[3], tied[2], tied[1], tied[0]}
	sortAnomalies(reversed)
	assert.Equal(t, forward, reversed)

	assert.Equal(t, day.AddDate(0, 0, 1), forward[3].Date)
	assert.Equal(t, "6100", forward[0].CategoryID)
	assert.Equal(t, "6210", forward[1].CategoryID)
	assert.Equal(t, model.AnomalyVendorAmount, forward[2].Type)
}

func TestCategorySpikeEndToEnd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := NewService(db.Storage)

	// Five months of steady cloud spend around $8,340/month, then a jump to
	// $10,260 in the sixth month.
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedBaselineMonths(t, db, start, 5, 6, 1369, "AWS", "6210")

	var spike []model.Transaction
	for i, day := range []int{2, 6, 11, 16, 21, 26} {
		date := time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC)
		spike = append(spike, testutil.Txn(testOrg, date, -float64(1700+i*4), "AWS", "6210"))
	}
	db.SeedTransactions(ctx, spike)

	// Train on the five stable months only, aligned to month boundaries.
	trainNow := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	result, err := svc.Train(ctx, testOrg, TrainOptions{DaysBack: 150, Now: trainNow})
	require.NoError(t, err)
	require.True(t, result.Success)

	detectNow := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	anomalies, err := svc.DetectAll(ctx, testOrg, DetectOptions{DaysBack: 30, Now: detectNow})
	require.NoError(t, err)

	var categorySpikes []model.Anomaly
	for _, a := range anomalies {
		if a.Type == model.AnomalyCategorySpike && a.CategoryID == "6210" {
			categorySpikes = append(categorySpikes, a)
		}
	}
	require.Len(t, categorySpikes, 1)
	assert.GreaterOrEqual(t, categorySpikes[0].Severity.Rank(), model.SeverityMedium.Rank())
	assert.Positive(t, categorySpikes[0].Score)
}
