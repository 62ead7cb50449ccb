package coa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/testutil"
)

const testOrg = "org-coa-test"

func newTestMapper(t *testing.T) (*Mapper, service.Storage, context.Context) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	mapper, err := NewMapper(db.Storage, NewClassifier(db.Storage))
	require.NoError(t, err)
	return mapper, db.Storage, context.Background()
}

func seedAccount(t *testing.T, store service.Storage, ctx context.Context, id, rawName, rawType string) {
	t.Helper()
	err := store.SaveImportedAccount(ctx, &model.ImportedAccount{
		ID:      id,
		OrgID:   testOrg,
		RawName: rawName,
		RawType: rawType,
	})
	require.NoError(t, err)
}

func accountByID(t *testing.T, store service.Storage, ctx context.Context, id string) *model.ImportedAccount {
	t.Helper()
	accounts, err := store.GetImportedAccounts(ctx, testOrg, "")
	require.NoError(t, err)
	for i := range accounts {
		if accounts[i].ID == id {
			return &accounts[i]
		}
	}
	t.Fatalf("account %s not found", id)
	return nil
}

func TestAutoMapVerticalRuleWinsOverGeneric(t *testing.T) {
	mapper, store, ctx := newTestMapper(t)

	// "AWS" matches both the saas hosting rule and the generic cloud rule;
	// the vertical rule comes first and must win.
	seedAccount(t, store, ctx, "acc-1", "AWS Monthly Bill", "expense")

	result, err := mapper.AutoMap(ctx, testOrg, VerticalSaaS)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.AutoMapped)

	acc := accountByID(t, store, ctx, "acc-1")
	assert.Equal(t, "5000", acc.CanonicalCode)
	assert.Equal(t, model.MappingAutoMapped, acc.Status)
	assert.Equal(t, model.MappingSourceRule, acc.Source)
	assert.InDelta(t, 0.95, acc.Confidence, 1e-9)
}

func TestAutoMapRuleBelowThresholdNeedsReview(t *testing.T) {
	mapper, store, ctx := newTestMapper(t)

	// The meals rule proposes 6410 at 0.8, below the auto-accept threshold.
	seedAccount(t, store, ctx, "acc-2", "Team Lunch Expenses", "expense")

	result, err := mapper.AutoMap(ctx, testOrg, VerticalGeneric)
	require.NoError(t, err)
	assert.Equal(t, 0, result.AutoMapped)
	assert.Equal(t, 1, result.NeedsReview)

	acc := accountByID(t, store, ctx, "acc-2")
	assert.Equal(t, "6410", acc.CanonicalCode)
	assert.Equal(t, model.MappingNeedsReview, acc.Status)
	assert.Equal(t, model.MappingSourceRule, acc.Source)
}

func TestAutoMapTypeMapFallback(t *testing.T) {
	mapper, store, ctx := newTestMapper(t)

	seedAccount(t, store, ctx, "acc-3", "Zurich Sundries", "expense")

	result, err := mapper.AutoMap(ctx, testOrg, VerticalGeneric)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NeedsReview)

	acc := accountByID(t, store, ctx, "acc-3")
	assert.Equal(t, "6999", acc.CanonicalCode)
	assert.Equal(t, model.MappingNeedsReview, acc.Status)
	assert.Equal(t, model.MappingSourceTypeMap, acc.Source)
	assert.InDelta(t, typeMapConfidence, acc.Confidence, 1e-9)
}

func TestAutoMapNothingToProposeStaysUnmapped(t *testing.T) {
	mapper, store, ctx := newTestMapper(t)

	seedAccount(t, store, ctx, "acc-4", "Zzyzx Holdings", "mystery")

	result, err := mapper.AutoMap(ctx, testOrg, VerticalGeneric)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NeedsReview)

	acc := accountByID(t, store, ctx, "acc-4")
	assert.Empty(t, acc.CanonicalCode)
	assert.Equal(t, model.MappingNeedsReview, acc.Status)
}

func TestManualCorrectionFeedsClassifier(t *testing.T) {
	mapper, store, ctx := newTestMapper(t)

	seedAccount(t, store, ctx, "acc-5", "Misc Office Stuff", "expense")
	acc := accountByID(t, store, ctx, "acc-5")

	err := mapper.UpdateMapping(ctx, acc, "6200")
	require.NoError(t, err)

	updated := accountByID(t, store, ctx, "acc-5")
	assert.Equal(t, "6200", updated.CanonicalCode)
	assert.Equal(t, model.MappingManual, updated.Status)
	assert.Equal(t, model.MappingSourceUser, updated.Source)
	assert.InDelta(t, 1.0, updated.Confidence, 1e-9)

	feedback, err := store.GetMappingFeedback(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, "Misc Office Stuff", feedback[0].RawText)
	assert.Equal(t, "6200", feedback[0].CanonicalCode)
	assert.True(t, feedback[0].Confirmed)

	count, err := store.CountUserFeedbackSince(ctx, testOrg, service.FeedbackCorrection, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClassifierTrainAndSuggest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	classifier := NewClassifier(db.Storage)

	labeled := []struct {
		raw  string
		code string
	}{
		{"Cloud Hosting Spend", "6210"},
		{"Hosting Infrastructure", "6210"},
		{"Monthly Cloud Servers", "6210"},
		{"Office Snack Budget", "6410"},
		{"Snack Deliveries", "6410"},
		{"Team Snack Restock", "6410"},
	}
	for _, l := range labeled {
		err := db.Storage.SaveMappingFeedback(ctx, &model.MappingFeedback{
			OrgID:         testOrg,
			RawText:       l.raw,
			CanonicalCode: l.code,
			Confirmed:     true,
			CreatedAt:     time.Now(),
		})
		require.NoError(t, err)
	}

	result, err := classifier.Train(ctx, testOrg)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 6, result.ExampleCount)

	suggestion, err := classifier.Suggest(ctx, testOrg, "New Cloud Hosting Account")
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	assert.Equal(t, "6210", suggestion.Code)
	assert.Greater(t, suggestion.Confidence, 0.5)
}

func TestClassifierInsufficientExamples(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	classifier := NewClassifier(db.Storage)

	err := db.Storage.SaveMappingFeedback(ctx, &model.MappingFeedback{
		OrgID:         testOrg,
		RawText:       "Cloud Hosting",
		CanonicalCode: "6210",
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)

	result, err := classifier.Train(ctx, testOrg)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Reason)
}
