package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
)

// SaveVendorExample records one confirmed raw-to-canonical vendor pair.
func (s *SQLiteStorage) SaveVendorExample(ctx context.Context, example *model.VendorExample) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVendorExample(example); err != nil {
		return err
	}
	if example.CreatedAt.IsZero() {
		example.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_examples (org_id, raw_name, canonical_name, created_at)
		VALUES (?, ?, ?, ?)
	`, example.OrgID, example.RawName, example.CanonicalName, example.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save vendor example: %w", err)
	}
	return nil
}

// GetVendorExamples returns all confirmed vendor pairs for an organization.
func (s *SQLiteStorage) GetVendorExamples(ctx context.Context, orgID string) ([]model.VendorExample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, raw_name, canonical_name, created_at
		FROM vendor_examples
		WHERE org_id = ?
		ORDER BY created_at ASC, id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor examples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var examples []model.VendorExample
	for rows.Next() {
		var ex model.VendorExample
		if err := rows.Scan(&ex.OrgID, &ex.RawName, &ex.CanonicalName, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor example: %w", err)
		}
		examples = append(examples, ex)
	}

	return examples, rows.Err()
}

// CountVendorExamplesSince counts examples newer than the given time.
func (s *SQLiteStorage) CountVendorExamplesSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vendor_examples WHERE org_id = ? AND created_at > ?
	`, orgID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vendor examples: %w", err)
	}
	return count, nil
}

// SaveMappingFeedback records a human confirmation or correction of an
// account mapping.
func (s *SQLiteStorage) SaveMappingFeedback(ctx context.Context, feedback *model.MappingFeedback) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if feedback == nil {
		return fmt.Errorf("feedback cannot be nil")
	}
	if err := validateString(feedback.OrgID, "feedback OrgID"); err != nil {
		return err
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mapping_feedback (org_id, raw_text, canonical_code, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, feedback.OrgID, feedback.RawText, feedback.CanonicalCode,
		boolToInt(feedback.Confirmed), feedback.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save mapping feedback: %w", err)
	}
	return nil
}

// GetMappingFeedback returns the mapping feedback stream for an organization,
// the training set for the fallback account classifier.
func (s *SQLiteStorage) GetMappingFeedback(ctx context.Context, orgID string) ([]model.MappingFeedback, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, raw_text, canonical_code, confirmed, created_at
		FROM mapping_feedback
		WHERE org_id = ?
		ORDER BY created_at ASC, id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.MappingFeedback
	for rows.Next() {
		var fb model.MappingFeedback
		var confirmed int
		if err := rows.Scan(&fb.OrgID, &fb.RawText, &fb.CanonicalCode, &confirmed, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping feedback: %w", err)
		}
		fb.Confirmed = confirmed != 0
		items = append(items, fb)
	}

	return items, rows.Err()
}

// SaveUserFeedback appends one entry to a feedback stream.
func (s *SQLiteStorage) SaveUserFeedback(ctx context.Context, orgID string, kind service.FeedbackKind, payload string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_feedback (org_id, kind, payload) VALUES (?, ?, ?)
	`, orgID, string(kind), payload)
	if err != nil {
		return fmt.Errorf("failed to save user feedback: %w", err)
	}
	return nil
}

// CountUserFeedbackSince counts feedback entries of one kind newer than the
// given time.
func (s *SQLiteStorage) CountUserFeedbackSince(ctx context.Context, orgID string, kind service.FeedbackKind, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_feedback
		WHERE org_id = ? AND kind = ? AND created_at > ?
	`, orgID, string(kind), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user feedback: %w", err)
	}
	return count, nil
}
