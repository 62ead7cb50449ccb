package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/testutil"
)

const testOrg = "org-storage-test"

func TestSaveTransactionsDeduplicatesByHash(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	first := testutil.Txn(testOrg, date, -42.50, "AWS", "6210")
	duplicate := testutil.Txn(testOrg, date, -42.50, "AWS", "6210")
	require.Equal(t, first.Hash, duplicate.Hash)

	db.SeedTransactions(ctx, []model.Transaction{first})
	db.SeedTransactions(ctx, []model.Transaction{duplicate})

	txns, err := db.Storage.GetTransactions(ctx, testOrg, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, first.ID, txns[0].ID)
	assert.Equal(t, "AWS", txns[0].VendorText)
	assert.InDelta(t, -42.50, txns[0].Amount, 1e-9)
}

func TestGetTransactionsFilters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	db.SeedTransactions(ctx, []model.Transaction{
		testutil.Txn(testOrg, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), -100, "Rent Co", "6100"),
		testutil.Txn(testOrg, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), -50, "AWS", "6210"),
		testutil.Txn(testOrg, time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), 5000, "Stripe Payout", ""),
		testutil.Txn(testOrg, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), -75, "GitHub", "6200"),
		testutil.Txn("org-other", time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), -33, "Uber", ""),
	})

	// Date window is inclusive start, exclusive end: the March 1 row at the
	// boundary must not appear.
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	txns, err := db.Storage.GetTransactions(ctx, testOrg, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
	})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "AWS", txns[0].VendorText)
	assert.Equal(t, "Stripe Payout", txns[1].VendorText)

	debits, err := db.Storage.GetTransactions(ctx, testOrg, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
		DebitOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, debits, 1)
	assert.Equal(t, "AWS", debits[0].VendorText)

	limited, err := db.Storage.GetTransactions(ctx, testOrg, service.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAnnotateTransaction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	txn := testutil.Txn(testOrg, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), -120, "AMZN WEB SERVICES", "")
	db.SeedTransactions(ctx, []model.Transaction{txn})

	err := db.Storage.AnnotateTransaction(ctx, model.TransactionAnnotation{
		TransactionID:    txn.ID,
		NormalizedVendor: "AWS",
		CategoryID:       "6210",
		Confidence:       0.88,
		IsRecurring:      true,
	})
	require.NoError(t, err)

	txns, err := db.Storage.GetTransactions(ctx, testOrg, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 1)

	got := txns[0]
	assert.Equal(t, "AWS", got.NormalizedVendor)
	assert.Equal(t, "6210", got.CategoryID)
	assert.InDelta(t, 0.88, got.Confidence, 1e-9)
	assert.True(t, got.IsRecurring)

	// Feed fields stay untouched.
	assert.Equal(t, txn.VendorText, got.VendorText)
	assert.InDelta(t, txn.Amount, got.Amount, 1e-9)

	err = db.Storage.AnnotateTransaction(ctx, model.TransactionAnnotation{TransactionID: "no-such-id"})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetMonthlyCashFlow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	db.SeedTransactions(ctx, []model.Transaction{
		testutil.Txn(testOrg, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), 8000, "Stripe Payout", ""),
		testutil.Txn(testOrg, time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC), -3000, "Payroll", "6000"),
		testutil.Txn(testOrg, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), -500, "AWS", "6210"),
		// February has no activity at all.
		testutil.Txn(testOrg, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), -250, "Rent Co", "6100"),
	})

	flows, err := db.Storage.GetMonthlyCashFlow(ctx, testOrg,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, flows, 2)

	jan := flows[0]
	assert.Equal(t, time.January, jan.Month.Month())
	assert.InDelta(t, 8000, jan.Inflow, 1e-9)
	assert.InDelta(t, 3500, jan.Outflow, 1e-9)
	assert.InDelta(t, 4500, jan.Net, 1e-9)

	mar := flows[1]
	assert.Equal(t, time.March, mar.Month.Month())
	assert.InDelta(t, 0, mar.Inflow, 1e-9)
	assert.InDelta(t, 250, mar.Outflow, 1e-9)
	assert.InDelta(t, -250, mar.Net, 1e-9)
}

func TestListOrgIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	db.SeedTransactions(ctx, []model.Transaction{
		testutil.Txn("org-b", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), -10, "Acme", ""),
		testutil.Txn("org-a", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), -10, "Acme", ""),
		testutil.Txn("org-a", time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), -20, "Other", ""),
	})

	orgs, err := db.Storage.ListOrgIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-a", "org-b"}, orgs)
}

func TestModelBlobReplaceSemantics(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := db.Storage.GetModelBlob(ctx, testOrg, model.ModelAnomaly)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, db.Storage.SaveModelBlob(ctx, testOrg, model.ModelAnomaly, []byte(`{"v":1}`)))
	blob, err := db.Storage.GetModelBlob(ctx, testOrg, model.ModelAnomaly)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), blob)

	// Whole-object replace, last write wins.
	require.NoError(t, db.Storage.SaveModelBlob(ctx, testOrg, model.ModelAnomaly, []byte(`{"v":2}`)))
	blob, err = db.Storage.GetModelBlob(ctx, testOrg, model.ModelAnomaly)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), blob)

	err = db.Storage.SaveModelBlob(ctx, testOrg, model.ModelAnomaly, nil)
	assert.Error(t, err)
}

func TestImportedAccountLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	pending := &model.ImportedAccount{
		ID:        "acct-1",
		OrgID:     testOrg,
		RawName:   "Amazon Web Services",
		RawType:   "expense",
		Status:    model.MappingPending,
		UpdatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	mapped := &model.ImportedAccount{
		ID:            "acct-2",
		OrgID:         testOrg,
		RawName:       "Office Rent",
		RawType:       "expense",
		CanonicalCode: "6100",
		Status:        model.MappingAutoMapped,
		Source:        model.MappingSourceRule,
		Confidence:    0.9,
		UpdatedAt:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Storage.SaveImportedAccount(ctx, pending))
	require.NoError(t, db.Storage.SaveImportedAccount(ctx, mapped))

	all, err := db.Storage.GetImportedAccounts(ctx, testOrg, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyPending, err := db.Storage.GetImportedAccounts(ctx, testOrg, model.MappingPending)
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
	assert.Equal(t, "acct-1", onlyPending[0].ID)

	pending.CanonicalCode = "6210"
	pending.Status = model.MappingManual
	pending.Source = model.MappingSourceUser
	pending.Confidence = 1.0
	require.NoError(t, db.Storage.UpdateAccountMapping(ctx, pending))

	onlyPending, err = db.Storage.GetImportedAccounts(ctx, testOrg, model.MappingPending)
	require.NoError(t, err)
	assert.Empty(t, onlyPending)

	manual, err := db.Storage.GetImportedAccounts(ctx, testOrg, model.MappingManual)
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, "6210", manual[0].CanonicalCode)
	assert.Equal(t, model.MappingSourceUser, manual[0].Source)
	assert.InDelta(t, 1.0, manual[0].Confidence, 1e-9)
}

func TestCanonicalChartSeededByMigrate(t *testing.T) {
	db := testutil.SetupTestDB(t)

	chart, err := db.Storage.GetCanonicalAccounts(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, chart)

	byCode := make(map[string]model.CanonicalAccount, len(chart))
	for _, c := range chart {
		byCode[c.Code] = c
	}
	assert.Equal(t, "Cloud Infrastructure", byCode["6210"].Name)
	assert.Equal(t, "expense", byCode["6210"].AccountType)
	assert.Equal(t, "revenue", byCode["4000"].AccountType)
}

func TestVendorExampleCounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		cutoff.AddDate(0, 0, -10),
		cutoff.AddDate(0, 0, 5),
		cutoff.AddDate(0, 0, 6),
	}
	for i, at := range times {
		require.NoError(t, db.Storage.SaveVendorExample(ctx, &model.VendorExample{
			OrgID:         testOrg,
			RawName:       "AMZN WEB SERVICES " + string(rune('A'+i)),
			CanonicalName: "AWS",
			CreatedAt:     at,
		}))
	}

	examples, err := db.Storage.GetVendorExamples(ctx, testOrg)
	require.NoError(t, err)
	assert.Len(t, examples, 3)
	assert.Equal(t, "AWS", examples[0].CanonicalName)

	count, err := db.Storage.CountVendorExamplesSince(ctx, testOrg, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUserFeedbackCountsByKind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Storage.SaveUserFeedback(ctx, testOrg, service.FeedbackCorrection, "recategorized"))
	}
	require.NoError(t, db.Storage.SaveUserFeedback(ctx, testOrg, service.FeedbackGeneral, "forecast looked off"))

	since := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	corrections, err := db.Storage.CountUserFeedbackSince(ctx, testOrg, service.FeedbackCorrection, since)
	require.NoError(t, err)
	assert.Equal(t, 3, corrections)

	general, err := db.Storage.CountUserFeedbackSince(ctx, testOrg, service.FeedbackGeneral, since)
	require.NoError(t, err)
	assert.Equal(t, 1, general)

	// Nothing is newer than a future cutoff.
	future, err := db.Storage.CountUserFeedbackSince(ctx, testOrg, service.FeedbackCorrection, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, future)
}

func TestMappingFeedbackRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Storage.SaveMappingFeedback(ctx, &model.MappingFeedback{
		OrgID:         testOrg,
		RawText:       "amazon web services expense",
		CanonicalCode: "6210",
		Confirmed:     true,
	}))
	require.NoError(t, db.Storage.SaveMappingFeedback(ctx, &model.MappingFeedback{
		OrgID:         testOrg,
		RawText:       "mystery vendor",
		CanonicalCode: "6999",
		Confirmed:     false,
	}))

	items, err := db.Storage.GetMappingFeedback(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Confirmed)
	assert.Equal(t, "6210", items[0].CanonicalCode)
	assert.False(t, items[1].Confirmed)
}

func TestTrainingRecordsLatestIgnoresFailures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []model.ModelTrainingRecord{
		{TrainedAt: base, OrgID: testOrg, ModelName: model.ModelVendor, Version: "v1-aaaaaaaa", ExampleCount: 40, Success: true},
		{TrainedAt: base.Add(time.Hour), OrgID: testOrg, ModelName: model.ModelVendor, Version: "v2-bbbbbbbb", ExampleCount: 3, Success: false},
		{TrainedAt: base.Add(2 * time.Hour), OrgID: testOrg, ModelName: model.ModelVendor, Version: "v3-cccccccc", ExampleCount: 55, Success: true},
		{TrainedAt: base.Add(3 * time.Hour), OrgID: testOrg, ModelName: model.ModelVendor, Version: "v4-dddddddd", ExampleCount: 2, Success: false},
	}
	for i := range records {
		require.NoError(t, db.Storage.AppendTrainingRecord(ctx, &records[i]))
	}

	latest, err := db.Storage.GetLatestTrainingRecord(ctx, testOrg, model.ModelVendor)
	require.NoError(t, err)
	assert.Equal(t, "v3-cccccccc", latest.Version)
	assert.Equal(t, 55, latest.ExampleCount)
	assert.True(t, latest.Success)

	history, err := db.Storage.ListTrainingRecords(ctx, testOrg, model.ModelVendor, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "v4-dddddddd", history[0].Version)

	_, err = db.Storage.GetLatestTrainingRecord(ctx, testOrg, model.ModelAnomaly)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
