package coa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
)

// AutoAcceptConfidence is the single global threshold distinguishing
// auto-acceptance from manual review across all mapping sources.
const AutoAcceptConfidence = 0.85

// typeMapConfidence is the fixed confidence of the ledger-type fallback.
const typeMapConfidence = 0.6

// Mapper maps an organization's imported ledger accounts onto the canonical
// chart of accounts.
type Mapper struct {
	store      service.Storage
	classifier *Classifier
	ruleSets   map[Vertical]*compiledRuleSet
}

// NewMapper creates a mapper with the built-in per-vertical rule tables.
func NewMapper(store service.Storage, classifier *Classifier) (*Mapper, error) {
	ruleSets := make(map[Vertical]*compiledRuleSet)
	for _, set := range DefaultRuleSets() {
		compiled, err := compileRuleSet(set)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s rules: %w", set.Vertical, err)
		}
		ruleSets[set.Vertical] = compiled
	}
	return &Mapper{
		store:      store,
		classifier: classifier,
		ruleSets:   ruleSets,
	}, nil
}

// AutoMapResult summarizes one AutoMap run.
type AutoMapResult struct {
	Processed   int
	AutoMapped  int
	NeedsReview int
}

// AutoMap processes every pending imported account for an organization:
// vertical rules first (first match wins), then the ledger-type map, then
// the trained fallback classifier. Only mappings at or above
// AutoAcceptConfidence become auto_mapped; everything else is parked as
// needs_review for a human.
func (m *Mapper) AutoMap(ctx context.Context, orgID string, vertical Vertical) (*AutoMapResult, error) {
	ruleSet, ok := m.ruleSets[vertical]
	if !ok {
		ruleSet = m.ruleSets[VerticalGeneric]
	}

	pending, err := m.store.GetImportedAccounts(ctx, orgID, model.MappingPending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending accounts: %w", err)
	}

	result := &AutoMapResult{}
	for i := range pending {
		account := &pending[i]
		result.Processed++

		code, confidence, source := m.propose(ctx, orgID, ruleSet, account)

		if code == "" {
			// Nothing to propose at all; park for review with no code.
			account.Status = model.MappingNeedsReview
			account.Source = source
			account.Confidence = 0
		} else if confidence >= AutoAcceptConfidence {
			account.CanonicalCode = code
			account.Status = model.MappingAutoMapped
			account.Source = source
			account.Confidence = confidence
			result.AutoMapped++
		} else {
			account.CanonicalCode = code
			account.Status = model.MappingNeedsReview
			account.Source = source
			account.Confidence = confidence
		}
		if account.Status == model.MappingNeedsReview {
			result.NeedsReview++
		}

		if err := m.store.UpdateAccountMapping(ctx, account); err != nil {
			return nil, fmt.Errorf("failed to update mapping for %s: %w", account.ID, err)
		}
	}

	slog.Info("Auto-mapped accounts",
		"org_id", orgID,
		"vertical", vertical,
		"processed", result.Processed,
		"auto_mapped", result.AutoMapped,
		"needs_review", result.NeedsReview)

	return result, nil
}

// propose walks the mapping sources in order and returns the first usable
// proposal: (code, confidence, source). An empty code means no source had
// anything to offer.
func (m *Mapper) propose(ctx context.Context, orgID string, ruleSet *compiledRuleSet, account *model.ImportedAccount) (string, float64, model.MappingSource) {
	searchText := account.RawName
	if account.RawType != "" {
		searchText += " " + account.RawType
	}

	for i := range ruleSet.rules {
		rule := &ruleSet.rules[i]
		if rule.compiledRegex.MatchString(searchText) {
			return rule.Code, rule.Confidence, model.MappingSourceRule
		}
	}

	if code, ok := ruleSet.typeMap[strings.ToLower(account.RawType)]; ok {
		return code, typeMapConfidence, model.MappingSourceTypeMap
	}

	suggestion, err := m.classifier.Suggest(ctx, orgID, account.RawName)
	if err != nil {
		slog.Warn("Classifier suggestion failed", "org_id", orgID, "account", account.ID, "error", err)
		return "", 0, model.MappingSourceClassifier
	}
	if suggestion == nil {
		return "", 0, model.MappingSourceClassifier
	}

	if suggestion.Confidence < AutoAcceptConfidence {
		// Park the weak suggestion for a human and bank it as a feedback
		// request so the eventual decision trains the classifier.
		fb := &model.MappingFeedback{
			OrgID:         orgID,
			RawText:       account.RawName,
			CanonicalCode: suggestion.Code,
			Confirmed:     false,
			CreatedAt:     time.Now(),
		}
		if err := m.store.SaveMappingFeedback(ctx, fb); err != nil {
			slog.Warn("Failed to record mapping feedback", "org_id", orgID, "error", err)
		}
	}
	return suggestion.Code, suggestion.Confidence, model.MappingSourceClassifier
}

// UpdateMapping applies a manual correction: confidence is always 1.0,
// source is always the user, and the correction immediately joins the
// classifier's training set.
func (m *Mapper) UpdateMapping(ctx context.Context, account *model.ImportedAccount, canonicalCode string) error {
	account.CanonicalCode = canonicalCode
	account.Status = model.MappingManual
	account.Source = model.MappingSourceUser
	account.Confidence = 1.0

	if err := m.store.UpdateAccountMapping(ctx, account); err != nil {
		return fmt.Errorf("failed to update mapping: %w", err)
	}

	fb := &model.MappingFeedback{
		OrgID:         account.OrgID,
		RawText:       account.RawName,
		CanonicalCode: canonicalCode,
		Confirmed:     true,
		CreatedAt:     time.Now(),
	}
	if err := m.store.SaveMappingFeedback(ctx, fb); err != nil {
		return fmt.Errorf("failed to record mapping feedback: %w", err)
	}

	if err := m.store.SaveUserFeedback(ctx, account.OrgID, service.FeedbackCorrection,
		fmt.Sprintf("account %s -> %s", account.RawName, canonicalCode)); err != nil {
		slog.Warn("Failed to record correction", "org_id", account.OrgID, "error", err)
	}

	return nil
}
