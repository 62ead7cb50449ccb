package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/copperline/ledgeriq/internal/common"
)

// SaveModelBlob replaces the whole persisted model object for one
// (org, model) key. Last write wins; there is no partial update.
func (s *SQLiteStorage) SaveModelBlob(ctx context.Context, orgID, modelName string, blob []byte) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return err
	}
	if err := validateString(modelName, "modelName"); err != nil {
		return err
	}
	if len(blob) == 0 {
		return fmt.Errorf("model blob cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_blobs (org_id, model_name, blob, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (org_id, model_name)
		DO UPDATE SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP
	`, orgID, modelName, blob)
	if err != nil {
		return fmt.Errorf("failed to save model %s/%s: %w", orgID, modelName, err)
	}
	return nil
}

// GetModelBlob reads the persisted model object for one (org, model) key.
// A missing model returns common.ErrNotFound; callers treat that as the
// valid "never trained" state.
func (s *SQLiteStorage) GetModelBlob(ctx context.Context, orgID, modelName string) ([]byte, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if err := validateString(modelName, "modelName"); err != nil {
		return nil, err
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM model_blobs WHERE org_id = ? AND model_name = ?`,
		orgID, modelName).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s/%s: %w", orgID, modelName, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s/%s: %w", orgID, modelName, err)
	}
	return blob, nil
}
