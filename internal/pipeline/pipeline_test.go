package pipeline

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/testutil"
)

const testOrg = "org-pipeline-test"

func succeedingTrainer(examples int) func(context.Context, string) (*model.TrainResult, error) {
	return func(_ context.Context, _ string) (*model.TrainResult, error) {
		return &model.TrainResult{Success: true, ExampleCount: examples}, nil
	}
}

func TestTrainModelCooldownRejection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	p := New(db.Storage, Options{})
	p.RegisterTrainer(model.ModelAnomaly, succeedingTrainer(40))
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	first, err := p.TrainModel(ctx, testOrg, model.ModelAnomaly, "manual")
	require.NoError(t, err)
	assert.True(t, first.Started)
	assert.False(t, first.Skipped)
	require.NotNil(t, first.Result)
	assert.True(t, first.Result.Success)

	// Immediately retraining the same pair is refused, not an error.
	second, err := p.TrainModel(ctx, testOrg, model.ModelAnomaly, "manual")
	require.NoError(t, err)
	assert.False(t, second.Started)
	assert.True(t, second.Skipped)
	assert.Equal(t, common.ErrTrainingCooldown.Error(), second.Reason)

	// Past the cooldown window the pair trains again.
	now = now.Add(TrainingCooldown + time.Minute)
	third, err := p.TrainModel(ctx, testOrg, model.ModelAnomaly, "manual")
	require.NoError(t, err)
	assert.True(t, third.Started)
}

func TestTrainModelConcurrencyCap(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	p := New(db.Storage, Options{MaxConcurrent: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	p.RegisterTrainer(model.ModelAnomaly, func(_ context.Context, _ string) (*model.TrainResult, error) {
		close(started)
		<-release
		return &model.TrainResult{Success: true}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, err := p.TrainModel(ctx, "org-a", model.ModelAnomaly, "manual")
		assert.NoError(t, err)
		assert.True(t, outcome.Started)
	}()

	<-started

	// The slot is taken; a different organization is refused, not queued.
	outcome, err := p.TrainModel(ctx, "org-b", model.ModelAnomaly, "manual")
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, common.ErrTrainingCapReached.Error(), outcome.Reason)

	close(release)
	wg.Wait()
}

func TestTrainModelInFlightFlag(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	p := New(db.Storage, Options{MaxConcurrent: 3})
	started := make(chan struct{})
	release := make(chan struct{})
	p.RegisterTrainer(model.ModelVendor, func(_ context.Context, _ string) (*model.TrainResult, error) {
		close(started)
		<-release
		return &model.TrainResult{Success: true}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.TrainModel(ctx, testOrg, model.ModelVendor, "manual")
		assert.NoError(t, err)
	}()

	<-started

	outcome, err := p.TrainModel(ctx, testOrg, model.ModelVendor, "manual")
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, common.ErrTrainingInProgress.Error(), outcome.Reason)

	close(release)
	wg.Wait()
}

func TestCheckRetrainingNeeded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	p := New(db.Storage, Options{})
	p.RegisterTrainer(model.ModelAnomaly, succeedingTrainer(40))
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	// Never trained: always stale.
	statuses, err := p.CheckRetrainingNeeded(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].NeedsTraining)

	_, err = p.TrainModel(ctx, testOrg, model.ModelAnomaly, "manual")
	require.NoError(t, err)

	// Freshly trained with no new feedback: not stale.
	statuses, err = p.CheckRetrainingNeeded(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].NeedsTraining)
	assert.WithinDuration(t, now, statuses[0].LastTrainedAt, time.Second)

	// Crossing the correction threshold marks the model stale again.
	for i := 0; i < CorrectionThreshold; i++ {
		require.NoError(t, db.Storage.SaveUserFeedback(ctx, testOrg, service.FeedbackCorrection, "fix"))
	}
	statuses, err = p.CheckRetrainingNeeded(ctx, testOrg)
	require.NoError(t, err)
	assert.True(t, statuses[0].NeedsTraining)
	assert.Equal(t, CorrectionThreshold, statuses[0].Corrections)
}

func TestRunAutoTrainingSweepsStaleOrgs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	db.SeedTransactions(ctx, []model.Transaction{
		testutil.Txn("org-sweep", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), -100, "Acme", ""),
	})

	p := New(db.Storage, Options{})
	p.RegisterTrainer(model.ModelAnomaly, succeedingTrainer(40))

	outcomes, err := p.RunAutoTraining(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "org-sweep", outcomes[0].OrgID)
	assert.True(t, outcomes[0].Started)
}

func TestRunAutoTrainingAbortsAtCap(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	db.SeedTransactions(ctx, []model.Transaction{
		testutil.Txn("org-a", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), -100, "Acme", ""),
		testutil.Txn("org-b", time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), -200, "Globex", ""),
	})

	p := New(db.Storage, Options{MaxConcurrent: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	p.RegisterTrainer(model.ModelAnomaly, func(_ context.Context, _ string) (*model.TrainResult, error) {
		close(started)
		<-release
		return &model.TrainResult{Success: true}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.TrainModel(ctx, "org-hold", model.ModelAnomaly, "manual")
		assert.NoError(t, err)
	}()

	<-started

	// Both seeded organizations are stale, but the sweep stops after the
	// first cap refusal instead of recording one skip per stale pair.
	outcomes, err := p.RunAutoTraining(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, common.ErrTrainingCapReached.Error(), outcomes[0].Reason)

	close(release)
	wg.Wait()
}

func TestNewVersionFormat(t *testing.T) {
	version := NewVersion(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^v\d+-[0-9a-f]{8}$`), version)
}

func TestTrainModelUnknownModel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := New(db.Storage, Options{})

	_, err := p.TrainModel(context.Background(), testOrg, "nonsense", "manual")
	assert.Error(t, err)
}
