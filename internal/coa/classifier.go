package coa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/vendormatch"
)

// MinClassifierExamples is the labeled feedback entries required before the
// fallback classifier trains.
const MinClassifierExamples = 5

// classifierSchemaVersion tags the persisted classifier model shape.
const classifierSchemaVersion = 1

// trainedClassifier is the persisted fallback model: a TF-IDF centroid per
// canonical account code.
type trainedClassifier struct {
	SchemaVersion int                           `json:"schemaVersion"`
	OrgID         string                        `json:"orgId"`
	TrainedAt     time.Time                     `json:"trainedAt"`
	ExampleCount  int                           `json:"exampleCount"`
	IDF           map[string]float64            `json:"idf"`
	Centroids     map[string]map[string]float64 `json:"centroids"` // code -> vector
}

// Suggestion is a classifier proposal for a raw account text.
type Suggestion struct {
	Code       string
	Confidence float64
}

// Classifier is the trainable fallback that maps raw account text to a
// canonical code when no rule or type map applies. It learns from the
// mapping feedback stream.
type Classifier struct {
	store service.Storage
	cache map[string]*trainedClassifier
	mu    sync.RWMutex
}

// NewClassifier creates a fallback classifier backed by the given store.
func NewClassifier(store service.Storage) *Classifier {
	return &Classifier{
		store: store,
		cache: make(map[string]*trainedClassifier),
	}
}

// Train rebuilds the classifier for one organization from its mapping
// feedback. Too few examples returns Success=false without mutating state.
func (c *Classifier) Train(ctx context.Context, orgID string) (*model.TrainResult, error) {
	feedback, err := c.store.GetMappingFeedback(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping feedback: %w", err)
	}

	if len(feedback) < MinClassifierExamples {
		return &model.TrainResult{
			Success:      false,
			ExampleCount: len(feedback),
			Reason:       fmt.Sprintf("need at least %d feedback entries, have %d", MinClassifierExamples, len(feedback)),
		}, nil
	}

	trained := buildClassifier(orgID, feedback)

	if blob, err := json.Marshal(trained); err != nil {
		common.LogError(err, "Failed to encode classifier model", common.Fields{"org_id": orgID})
	} else if err := common.WithRetry(ctx, func() error {
		return c.store.SaveModelBlob(ctx, orgID, model.ModelClassifier, blob)
	}, service.RetryOptions{}); err != nil {
		common.LogError(err, "Failed to persist classifier model", common.Fields{"org_id": orgID})
	}

	c.mu.Lock()
	c.cache[orgID] = trained
	c.mu.Unlock()

	slog.Info("Trained account classifier",
		"org_id", orgID,
		"examples", len(feedback),
		"codes", len(trained.Centroids))

	return &model.TrainResult{Success: true, ExampleCount: len(feedback)}, nil
}

func buildClassifier(orgID string, feedback []model.MappingFeedback) *trainedClassifier {
	docs := make([][]string, len(feedback))
	docFreq := make(map[string]int)
	for i, fb := range feedback {
		tokens := vendormatch.Tokenize(fb.RawText)
		docs[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			docFreq[tok]++
		}
	}

	total := float64(len(feedback))
	idf := make(map[string]float64, len(docFreq))
	for tok, df := range docFreq {
		idf[tok] = math.Log(total/(1+float64(df))) + 1
	}

	sums := make(map[string]map[string]float64)
	counts := make(map[string]int)
	for i, fb := range feedback {
		vec := vendormatch.Vectorize(docs[i], idf)
		if sums[fb.CanonicalCode] == nil {
			sums[fb.CanonicalCode] = make(map[string]float64)
		}
		for tok, v := range vec {
			sums[fb.CanonicalCode][tok] += v
		}
		counts[fb.CanonicalCode]++
	}

	centroids := make(map[string]map[string]float64, len(sums))
	for code, sum := range sums {
		n := float64(counts[code])
		centroid := make(map[string]float64, len(sum))
		for tok, v := range sum {
			centroid[tok] = v / n
		}
		centroids[code] = centroid
	}

	return &trainedClassifier{
		SchemaVersion: classifierSchemaVersion,
		OrgID:         orgID,
		TrainedAt:     time.Now(),
		ExampleCount:  len(feedback),
		IDF:           idf,
		Centroids:     centroids,
	}
}

// Suggest proposes a canonical code for raw account text. It returns
// (nil, nil) when no model exists or nothing scores above zero.
func (c *Classifier) Suggest(ctx context.Context, orgID, rawText string) (*Suggestion, error) {
	trained, err := c.loadModel(ctx, orgID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	vec := vendormatch.Vectorize(vendormatch.Tokenize(rawText), trained.IDF)

	codes := make([]string, 0, len(trained.Centroids))
	for code := range trained.Centroids {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var best *Suggestion
	for _, code := range codes {
		sim := vendormatch.CosineSimilarity(vec, trained.Centroids[code])
		if sim <= 0 {
			continue
		}
		conf := math.Min(0.95, 0.5+0.5*sim)
		if best == nil || conf > best.Confidence {
			best = &Suggestion{Code: code, Confidence: conf}
		}
	}
	return best, nil
}

// Invalidate drops the cached classifier for one organization.
func (c *Classifier) Invalidate(orgID string) {
	c.mu.Lock()
	delete(c.cache, orgID)
	c.mu.Unlock()
}

func (c *Classifier) loadModel(ctx context.Context, orgID string) (*trainedClassifier, error) {
	c.mu.RLock()
	cached, ok := c.cache[orgID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	blob, err := c.store.GetModelBlob(ctx, orgID, model.ModelClassifier)
	if err != nil {
		return nil, err
	}

	var trained trainedClassifier
	if err := json.Unmarshal(blob, &trained); err != nil {
		return nil, fmt.Errorf("failed to decode classifier model: %w", err)
	}
	if trained.SchemaVersion != classifierSchemaVersion {
		return nil, fmt.Errorf("classifier model %s: %w", orgID, common.ErrModelVersionSkew)
	}

	c.mu.Lock()
	c.cache[orgID] = &trained
	c.mu.Unlock()
	return &trained, nil
}
