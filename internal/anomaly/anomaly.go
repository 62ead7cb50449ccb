// Package anomaly trains per-organization spending baselines and detects
// deviations from them with adaptively learned thresholds.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
)

// Minimum sample sizes below which a baseline never signals. This is a hard
// contract: an under-sampled baseline yields no anomaly regardless of how
// extreme the observed value is.
const (
	// MinTrainingTransactions gates training entirely.
	MinTrainingTransactions = 30
	// MinDailySamples gates daily anomaly detection.
	MinDailySamples = 7
	// MinDayOfWeekSamples gates day-of-week anomaly detection.
	MinDayOfWeekSamples = 4
	// MinCategoryPeriods is the non-zero observation periods required to
	// materialize a category pattern, and gates category detection.
	MinCategoryPeriods = 3
	// MinVendorTransactions is the observed transactions required to
	// materialize a vendor pattern.
	MinVendorTransactions = 3
)

// Default training and detection windows, in days.
const (
	DefaultTrainWindowDays  = 180
	DefaultDetectWindowDays = 30
)

// Service trains and queries anomaly models. Trained models are cached
// process-wide per organization and replaced wholesale on retrain.
type Service struct {
	store service.Storage
	cache map[string]*model.TrainedAnomalyModel
	mu    sync.RWMutex
}

// NewService creates an anomaly service backed by the given store.
func NewService(store service.Storage) *Service {
	return &Service{
		store: store,
		cache: make(map[string]*model.TrainedAnomalyModel),
	}
}

// Invalidate drops the cached model for one organization.
func (s *Service) Invalidate(orgID string) {
	s.mu.Lock()
	delete(s.cache, orgID)
	s.mu.Unlock()
}

// loadModel returns the cached model or lazily reads it from the store.
// common.ErrNotFound means the organization has never trained successfully.
func (s *Service) loadModel(ctx context.Context, orgID string) (*model.TrainedAnomalyModel, error) {
	s.mu.RLock()
	cached, ok := s.cache[orgID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	blob, err := s.store.GetModelBlob(ctx, orgID, model.ModelAnomaly)
	if err != nil {
		return nil, err
	}

	var trained model.TrainedAnomalyModel
	if err := json.Unmarshal(blob, &trained); err != nil {
		return nil, fmt.Errorf("failed to decode anomaly model: %w", err)
	}
	if trained.SchemaVersion != model.AnomalyModelSchemaVersion {
		return nil, fmt.Errorf("anomaly model %s: %w", orgID, common.ErrModelVersionSkew)
	}

	s.mu.Lock()
	s.cache[orgID] = &trained
	s.mu.Unlock()
	return &trained, nil
}

func (s *Service) persist(ctx context.Context, trained *model.TrainedAnomalyModel) error {
	blob, err := json.Marshal(trained)
	if err != nil {
		return fmt.Errorf("failed to encode anomaly model: %w", err)
	}
	return common.WithRetry(ctx, func() error {
		return s.store.SaveModelBlob(ctx, trained.OrgID, model.ModelAnomaly, blob)
	}, service.RetryOptions{})
}

// vendorKey picks the canonical vendor identity for grouping: the normalized
// vendor when present, otherwise the lower-cased raw text.
func vendorKey(txn *model.Transaction) string {
	if txn.NormalizedVendor != "" {
		return txn.NormalizedVendor
	}
	return strings.ToLower(strings.TrimSpace(txn.VendorText))
}
