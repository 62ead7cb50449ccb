package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
)

// AppendTrainingRecord adds one entry to the append-only training history.
// History is never rewritten; the current model version is simply the most
// recent successful record per (org, model).
func (s *SQLiteStorage) AppendTrainingRecord(ctx context.Context, record *model.ModelTrainingRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTrainingRecord(record); err != nil {
		return err
	}
	if record.TrainedAt.IsZero() {
		record.TrainedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_records (org_id, model_name, version, trained_at, example_count, success)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.OrgID, record.ModelName, record.Version, record.TrainedAt,
		record.ExampleCount, boolToInt(record.Success))
	if err != nil {
		return fmt.Errorf("failed to append training record: %w", err)
	}
	return nil
}

// GetLatestTrainingRecord returns the most recent successful training record
// for one (org, model) pair, or common.ErrNotFound if it never trained.
func (s *SQLiteStorage) GetLatestTrainingRecord(ctx context.Context, orgID, modelName string) (*model.ModelTrainingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if err := validateString(modelName, "modelName"); err != nil {
		return nil, err
	}

	var record model.ModelTrainingRecord
	var success int
	err := s.db.QueryRowContext(ctx, `
		SELECT org_id, model_name, version, trained_at, example_count, success
		FROM training_records
		WHERE org_id = ? AND model_name = ? AND success = 1
		ORDER BY trained_at DESC, id DESC
		LIMIT 1
	`, orgID, modelName).Scan(&record.OrgID, &record.ModelName, &record.Version,
		&record.TrainedAt, &record.ExampleCount, &success)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training record %s/%s: %w", orgID, modelName, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read training record: %w", err)
	}
	record.Success = success != 0
	return &record, nil
}

// ListTrainingRecords returns the training history for one (org, model)
// pair, newest first.
func (s *SQLiteStorage) ListTrainingRecords(ctx context.Context, orgID, modelName string, limit int) ([]model.ModelTrainingRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if err := validateString(modelName, "modelName"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, model_name, version, trained_at, example_count, success
		FROM training_records
		WHERE org_id = ? AND model_name = ?
		ORDER BY trained_at DESC, id DESC
		LIMIT ?
	`, orgID, modelName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list training records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ModelTrainingRecord
	for rows.Next() {
		var record model.ModelTrainingRecord
		var success int
		if err := rows.Scan(&record.OrgID, &record.ModelName, &record.Version,
			&record.TrainedAt, &record.ExampleCount, &success); err != nil {
			return nil, fmt.Errorf("failed to scan training record: %w", err)
		}
		record.Success = success != 0
		records = append(records, record)
	}

	return records, rows.Err()
}
