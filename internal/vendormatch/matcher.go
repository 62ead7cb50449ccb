package vendormatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
)

// Matching constants from the tuned scoring blend.
const (
	// MinTrainingExamples is the minimum confirmed pairs needed to train.
	MinTrainingExamples = 10
	// MaxVariantsPerCluster caps the raw spellings retained per cluster.
	MaxVariantsPerCluster = 20

	cosineWeight      = 0.7
	editWeight        = 0.3
	editVariantProbes = 5
	minCombinedScore  = 0.3
	minConfidence     = 0.65
	maxConfidence     = 0.95
	similarFloor      = 0.1
)

// Matcher trains and queries per-organization vendor normalization models.
// Trained models are cached process-wide and replaced wholesale on retrain.
type Matcher struct {
	store service.Storage
	cache map[string]*model.TrainedVendorModel
	mu    sync.RWMutex
}

// NewMatcher creates a vendor matcher backed by the given store.
func NewMatcher(store service.Storage) *Matcher {
	return &Matcher{
		store: store,
		cache: make(map[string]*model.TrainedVendorModel),
	}
}

// Train rebuilds the vendor model for one organization from its confirmed
// (raw, canonical) pairs. Fewer than MinTrainingExamples pairs returns
// Success=false without touching any existing model.
func (m *Matcher) Train(ctx context.Context, orgID string) (*model.TrainResult, error) {
	examples, err := m.store.GetVendorExamples(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor examples: %w", err)
	}

	if len(examples) < MinTrainingExamples {
		slog.Info("Not enough vendor examples to train",
			"org_id", orgID,
			"examples", len(examples),
			"required", MinTrainingExamples)
		return &model.TrainResult{
			Success:      false,
			ExampleCount: len(examples),
			Reason:       fmt.Sprintf("need at least %d confirmed examples, have %d", MinTrainingExamples, len(examples)),
		}, nil
	}

	trained := buildModel(orgID, examples)

	if err := m.persist(ctx, trained); err != nil {
		// Best-effort persistence: the in-memory model still serves.
		common.LogError(err, "Failed to persist vendor model", common.Fields{"org_id": orgID})
	}

	m.mu.Lock()
	m.cache[orgID] = trained
	m.mu.Unlock()

	slog.Info("Trained vendor model",
		"org_id", orgID,
		"examples", len(examples),
		"clusters", len(trained.Clusters),
		"vocabulary", len(trained.Vocabulary))

	return &model.TrainResult{Success: true, ExampleCount: len(examples)}, nil
}

// buildModel constructs the TF-IDF vocabulary, IDF table, and per-canonical
// clusters from confirmed examples.
func buildModel(orgID string, examples []model.VendorExample) *model.TrainedVendorModel {
	docs := make([][]string, len(examples))
	docFreq := make(map[string]int)
	for i, ex := range examples {
		tokens := Tokenize(ex.RawName)
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

	totalDocs := float64(len(examples))
	idf := make(map[string]float64, len(docFreq))
	vocabulary := make([]string, 0, len(docFreq))
	for tok, df := range docFreq {
		idf[tok] = math.Log(totalDocs/(1+float64(df))) + 1
		vocabulary = append(vocabulary, tok)
	}
	sort.Strings(vocabulary)

	// Group member vectors by canonical name.
	type group struct {
		vectors  []map[string]float64
		variants []string
		seen     map[string]struct{}
	}
	groups := make(map[string]*group)
	var order []string
	for i, ex := range examples {
		g, ok := groups[ex.CanonicalName]
		if !ok {
			g = &group{seen: make(map[string]struct{})}
			groups[ex.CanonicalName] = g
			order = append(order, ex.CanonicalName)
		}
		g.vectors = append(g.vectors, Vectorize(docs[i], idf))
		if _, dup := g.seen[ex.RawName]; !dup && len(g.variants) < MaxVariantsPerCluster {
			g.seen[ex.RawName] = struct{}{}
			g.variants = append(g.variants, ex.RawName)
		}
	}
	sort.Strings(order)

	clusters := make([]model.VendorCluster, 0, len(groups))
	for _, name := range order {
		g := groups[name]
		clusters = append(clusters, model.VendorCluster{
			CanonicalName: name,
			Centroid:      meanVector(g.vectors),
			Variants:      g.variants,
			ExampleCount:  len(g.vectors),
		})
	}

	return &model.TrainedVendorModel{
		SchemaVersion: model.VendorModelSchemaVersion,
		OrgID:         orgID,
		TrainedAt:     time.Now(),
		ExampleCount:  len(examples),
		Vocabulary:    vocabulary,
		IDF:           idf,
		Clusters:      clusters,
	}
}

// Vectorize builds a TF-IDF vector; tokens outside the trained vocabulary
// are dropped.
func Vectorize(tokens []string, idf map[string]float64) map[string]float64 {
	tf := termFrequencies(tokens)
	vec := make(map[string]float64, len(tf))
	for tok, f := range tf {
		if w, ok := idf[tok]; ok {
			vec[tok] = f * w
		}
	}
	return vec
}

// Normalize resolves a raw vendor string against the organization's trained
// clusters. It returns (nil, nil) when no cluster clears both the combined
// score floor and the confidence floor, and when no model exists.
func (m *Matcher) Normalize(ctx context.Context, orgID, rawName string) (*model.VendorMatch, error) {
	trained, err := m.loadModel(ctx, orgID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	vec := Vectorize(Tokenize(rawName), trained.IDF)
	normalizedInput := normalizeText(rawName)

	var best *model.VendorMatch
	for i := range trained.Clusters {
		cluster := &trained.Clusters[i]

		cos := CosineSimilarity(vec, cluster.Centroid)

		var edit float64
		probes := cluster.Variants
		if len(probes) > editVariantProbes {
			probes = probes[:editVariantProbes]
		}
		for _, variant := range probes {
			if sim := editSimilarity(normalizedInput, normalizeText(variant)); sim > edit {
				edit = sim
			}
		}

		combined := cosineWeight*cos + editWeight*edit
		if best == nil || combined > best.Score {
			best = &model.VendorMatch{
				CanonicalName: cluster.CanonicalName,
				Score:         combined,
			}
		}
	}

	if best == nil || best.Score < minCombinedScore {
		return nil, nil
	}

	best.Confidence = math.Min(maxConfidence, 0.5+0.5*best.Score)
	if best.Confidence < minConfidence {
		return nil, nil
	}
	return best, nil
}

// SimilarVendor is one entry in a FindSimilar ranking.
type SimilarVendor struct {
	CanonicalName string
	Similarity    float64
}

// FindSimilar ranks cluster centroids by pure cosine similarity to the given
// name. It is an exploration aid and deliberately skips the edit-distance
// blend used for committed normalizations.
func (m *Matcher) FindSimilar(ctx context.Context, orgID, name string, topK int) ([]SimilarVendor, error) {
	trained, err := m.loadModel(ctx, orgID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	vec := Vectorize(Tokenize(name), trained.IDF)

	var results []SimilarVendor
	for i := range trained.Clusters {
		sim := CosineSimilarity(vec, trained.Clusters[i].Centroid)
		if sim < similarFloor {
			continue
		}
		results = append(results, SimilarVendor{
			CanonicalName: trained.Clusters[i].CanonicalName,
			Similarity:    sim,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].CanonicalName < results[j].CanonicalName
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Invalidate drops the cached model for one organization.
func (m *Matcher) Invalidate(orgID string) {
	m.mu.Lock()
	delete(m.cache, orgID)
	m.mu.Unlock()
}

// loadModel returns the cached model or lazily reads it from the store.
// common.ErrNotFound means the organization has never trained.
func (m *Matcher) loadModel(ctx context.Context, orgID string) (*model.TrainedVendorModel, error) {
	m.mu.RLock()
	cached, ok := m.cache[orgID]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	blob, err := m.store.GetModelBlob(ctx, orgID, model.ModelVendor)
	if err != nil {
		return nil, err
	}

	var trained model.TrainedVendorModel
	if err := json.Unmarshal(blob, &trained); err != nil {
		return nil, fmt.Errorf("failed to decode vendor model: %w", err)
	}
	if trained.SchemaVersion != model.VendorModelSchemaVersion {
		return nil, fmt.Errorf("vendor model %s: %w", orgID, common.ErrModelVersionSkew)
	}

	m.mu.Lock()
	m.cache[orgID] = &trained
	m.mu.Unlock()
	return &trained, nil
}

func (m *Matcher) persist(ctx context.Context, trained *model.TrainedVendorModel) error {
	blob, err := json.Marshal(trained)
	if err != nil {
		return fmt.Errorf("failed to encode vendor model: %w", err)
	}
	return common.WithRetry(ctx, func() error {
		return m.store.SaveModelBlob(ctx, trained.OrgID, model.ModelVendor, blob)
	}, service.RetryOptions{})
}

// editSimilarity is 1 - levenshtein/maxLen over already-normalized strings.
func editSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(strings.TrimSpace(a), strings.TrimSpace(b))
	return 1 - float64(dist)/float64(maxLen)
}
