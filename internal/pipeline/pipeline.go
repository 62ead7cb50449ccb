// Package pipeline decides when each per-organization model needs
// retraining and runs the retraining with cooldown and concurrency
// control. Training history is append-only; the current version of a
// model is the newest successful record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
)

const (
	// Retraining triggers: any one stream crossing its threshold since the
	// model's last successful training marks the model stale.
	CorrectionThreshold    = 10
	VendorExampleThreshold = 50
	FeedbackThreshold      = 20

	// TrainingCooldown is the minimum gap between training runs for the
	// same (org, model) pair.
	TrainingCooldown = 24 * time.Hour

	// DefaultMaxConcurrent caps simultaneous training runs process-wide.
	DefaultMaxConcurrent = 3

	// defaultLookback bounds the "since" window when an org has no
	// training history yet.
	defaultLookback = 365 * 24 * time.Hour
)

// trainer is the common surface of the per-model training services.
type trainer interface {
	Train(ctx context.Context, orgID string) (*model.TrainResult, error)
}

// trainerFunc adapts a bare function to the trainer interface.
type trainerFunc func(ctx context.Context, orgID string) (*model.TrainResult, error)

func (f trainerFunc) Train(ctx context.Context, orgID string) (*model.TrainResult, error) {
	return f(ctx, orgID)
}

// TrainOutcome is the structured result of a TrainModel call. Skips
// (cooldown, already in flight, capacity) are reported here rather than
// as errors so callers can distinguish a refused run from a broken one.
type TrainOutcome struct {
	OrgID     string
	ModelName string
	Started   bool
	Skipped   bool
	Reason    string
	Result    *model.TrainResult
}

// RetrainingStatus reports, per model, whether accumulated feedback has
// crossed a retraining threshold since the last successful training.
type RetrainingStatus struct {
	OrgID          string
	ModelName      string
	LastTrainedAt  time.Time
	Corrections    int
	VendorExamples int
	FeedbackItems  int
	NeedsTraining  bool
}

// Pipeline coordinates retraining across organizations and models.
type Pipeline struct {
	store         service.Storage
	trainers      map[string]trainer
	now           func() time.Time
	mu            sync.Mutex
	inFlight      map[string]bool // keyed orgID+"/"+modelName
	running       int
	maxConcurrent int
}

// Options configures pipeline limits; zero values take defaults.
type Options struct {
	MaxConcurrent int
}

func New(store service.Storage, opts Options) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Pipeline{
		store:         store,
		trainers:      make(map[string]trainer),
		now:           time.Now,
		inFlight:      make(map[string]bool),
		maxConcurrent: opts.MaxConcurrent,
	}
}

// RegisterTrainer binds a model name to its training service. Typically
// called once at startup for anomaly, vendor, and classifier.
func (p *Pipeline) RegisterTrainer(modelName string, train func(ctx context.Context, orgID string) (*model.TrainResult, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trainers[modelName] = trainerFunc(train)
}

// CheckRetrainingNeeded inspects the feedback accumulated since each
// model's last successful training and reports which models are stale.
func (p *Pipeline) CheckRetrainingNeeded(ctx context.Context, orgID string) ([]RetrainingStatus, error) {
	if orgID == "" {
		return nil, errors.New("orgID cannot be empty")
	}

	p.mu.Lock()
	names := make([]string, 0, len(p.trainers))
	for name := range p.trainers {
		names = append(names, name)
	}
	p.mu.Unlock()

	statuses := make([]RetrainingStatus, 0, len(names))
	for _, name := range []string{model.ModelAnomaly, model.ModelVendor, model.ModelClassifier} {
		if !contains(names, name) {
			continue
		}
		status, err := p.checkModel(ctx, orgID, name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *status)
	}
	return statuses, nil
}

func (p *Pipeline) checkModel(ctx context.Context, orgID, modelName string) (*RetrainingStatus, error) {
	since := p.now().Add(-defaultLookback)
	status := &RetrainingStatus{OrgID: orgID, ModelName: modelName}

	last, err := p.store.GetLatestTrainingRecord(ctx, orgID, modelName)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to load training history: %w", err)
	}
	if last != nil {
		since = last.TrainedAt
		status.LastTrainedAt = last.TrainedAt
	}

	corrections, err := p.store.CountUserFeedbackSince(ctx, orgID, service.FeedbackCorrection, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count corrections: %w", err)
	}
	examples, err := p.store.CountVendorExamplesSince(ctx, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count vendor examples: %w", err)
	}
	feedback, err := p.store.CountUserFeedbackSince(ctx, orgID, service.FeedbackGeneral, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	status.Corrections = corrections
	status.VendorExamples = examples
	status.FeedbackItems = feedback
	status.NeedsTraining = last == nil ||
		corrections >= CorrectionThreshold ||
		examples >= VendorExampleThreshold ||
		feedback >= FeedbackThreshold
	return status, nil
}

// TrainModel runs one training job if admission control allows it: the
// (org, model) pair must not already be training, must be past its
// cooldown, and a process-wide slot must be free. Refusals come back as
// a skipped outcome, never an error.
func (p *Pipeline) TrainModel(ctx context.Context, orgID, modelName, reason string) (*TrainOutcome, error) {
	if orgID == "" {
		return nil, errors.New("orgID cannot be empty")
	}

	p.mu.Lock()
	tr, ok := p.trainers[modelName]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown model %q", modelName)
	}

	outcome := &TrainOutcome{OrgID: orgID, ModelName: modelName}

	last, err := p.store.GetLatestTrainingRecord(ctx, orgID, modelName)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to load training history: %w", err)
	}
	if last != nil && p.now().Sub(last.TrainedAt) < TrainingCooldown {
		outcome.Skipped = true
		outcome.Reason = common.ErrTrainingCooldown.Error()
		return outcome, nil
	}

	if skipReason := p.admit(orgID, modelName); skipReason != "" {
		outcome.Skipped = true
		outcome.Reason = skipReason
		return outcome, nil
	}
	defer p.release(orgID, modelName)

	outcome.Started = true
	result, err := tr.Train(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("%s training failed: %w", modelName, err)
	}
	outcome.Result = result

	version := result.Version
	if version == "" {
		version = NewVersion(p.now())
		result.Version = version
	}
	record := &model.ModelTrainingRecord{
		TrainedAt:    p.now(),
		OrgID:        orgID,
		ModelName:    modelName,
		Version:      version,
		ExampleCount: result.ExampleCount,
		Success:      result.Success,
	}
	if err := p.store.AppendTrainingRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record training run: %w", err)
	}

	slog.Info("Training run finished",
		"org_id", orgID,
		"model", modelName,
		"version", version,
		"success", result.Success,
		"examples", result.ExampleCount,
		"trigger", reason)
	return outcome, nil
}

// RunAutoTraining sweeps every organization, training whichever models
// CheckRetrainingNeeded marks stale. Cooldown and in-flight refusals are
// counted as skips; hitting the concurrency cap aborts the remaining
// sweep, since every further attempt would be refused the same way.
func (p *Pipeline) RunAutoTraining(ctx context.Context) ([]TrainOutcome, error) {
	orgIDs, err := p.store.ListOrgIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	capReason := common.ErrTrainingCapReached.Error()
	var outcomes []TrainOutcome
	for _, orgID := range orgIDs {
		statuses, err := p.CheckRetrainingNeeded(ctx, orgID)
		if err != nil {
			return outcomes, err
		}
		for _, status := range statuses {
			if !status.NeedsTraining {
				continue
			}
			outcome, err := p.TrainModel(ctx, orgID, status.ModelName, "auto")
			if err != nil {
				return outcomes, err
			}
			outcomes = append(outcomes, *outcome)
			if outcome.Skipped && outcome.Reason == capReason {
				slog.Warn("Concurrent training cap reached, aborting sweep",
					"org_id", orgID, "model", status.ModelName)
				return outcomes, nil
			}
		}
	}
	return outcomes, nil
}

// admit reserves a training slot, returning a non-empty skip reason when
// the pair is already in flight or the process is at capacity.
func (p *Pipeline) admit(orgID, modelName string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := orgID + "/" + modelName
	if p.inFlight[key] {
		return common.ErrTrainingInProgress.Error()
	}
	if p.running >= p.maxConcurrent {
		return common.ErrTrainingCapReached.Error()
	}
	p.inFlight[key] = true
	p.running++
	return ""
}

func (p *Pipeline) release(orgID, modelName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, orgID+"/"+modelName)
	p.running--
}

// NewVersion builds a training version identifier: the run's unix
// timestamp plus a short random suffix, e.g. "v1756425600-3f2a91bc".
func NewVersion(at time.Time) string {
	return fmt.Sprintf("v%d-%s", at.Unix(), uuid.NewString()[:8])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
