package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
)

// SaveTransactions inserts feed rows, skipping duplicates by hash.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, org_id, hash, date, amount, vendor_text, normalized_vendor,
			 category_id, vendor_id, source, confidence, is_recurring)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := &transactions[i]
		if err := validateTransaction(txn); err != nil {
			return err
		}
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}

		if _, err := stmt.ExecContext(ctx,
			txn.ID, txn.OrgID, txn.Hash, txn.Date, txn.Amount, txn.VendorText,
			nullString(txn.NormalizedVendor), nullString(txn.CategoryID),
			nullString(txn.VendorID), string(txn.Source),
			txn.Confidence, boolToInt(txn.IsRecurring)); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// GetTransactions returns feed rows for one organization matching the filter,
// ordered by date ascending.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, orgID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, org_id, hash, date, amount, vendor_text,
		       COALESCE(normalized_vendor, ''), COALESCE(category_id, ''),
		       COALESCE(vendor_id, ''), COALESCE(source, ''),
		       confidence, is_recurring
		FROM transactions
		WHERE org_id = ?`)
	args := []any{orgID}

	if filter.StartDate != nil {
		sb.WriteString(" AND date >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		sb.WriteString(" AND date < ?")
		args = append(args, *filter.EndDate)
	}
	if filter.DebitOnly {
		sb.WriteString(" AND amount < 0")
	}
	sb.WriteString(" ORDER BY date ASC, id ASC")
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		var source string
		var recurring int
		if err := rows.Scan(&txn.ID, &txn.OrgID, &txn.Hash, &txn.Date, &txn.Amount,
			&txn.VendorText, &txn.NormalizedVendor, &txn.CategoryID,
			&txn.VendorID, &source, &txn.Confidence, &recurring); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Source = model.TransactionSource(source)
		txn.IsRecurring = recurring != 0
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}

// AnnotateTransaction writes the mutable classification fields back onto a
// feed row. The immutable columns are never touched.
func (s *SQLiteStorage) AnnotateTransaction(ctx context.Context, annotation model.TransactionAnnotation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(annotation.TransactionID, "transactionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET normalized_vendor = ?, category_id = ?, vendor_id = ?,
		    confidence = ?, is_recurring = ?
		WHERE id = ?
	`, nullString(annotation.NormalizedVendor), nullString(annotation.CategoryID),
		nullString(annotation.VendorID), annotation.Confidence,
		boolToInt(annotation.IsRecurring), annotation.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to annotate transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check annotation result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", annotation.TransactionID, common.ErrNotFound)
	}
	return nil
}

// GetMonthlyCashFlow aggregates inflow/outflow per calendar month in
// [start, end). Months with no activity are absent from the result; callers
// that need a dense calendar zero-fill it themselves.
func (s *SQLiteStorage) GetMonthlyCashFlow(ctx context.Context, orgID string, start, end time.Time) ([]service.MonthlyFlow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', date) AS month,
		       COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0)
		FROM transactions
		WHERE org_id = ? AND date >= ? AND date < ?
		GROUP BY month
		ORDER BY month ASC
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly cash flow: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var flows []service.MonthlyFlow
	for rows.Next() {
		var month string
		var flow service.MonthlyFlow
		if err := rows.Scan(&month, &flow.Inflow, &flow.Outflow); err != nil {
			return nil, fmt.Errorf("failed to scan cash flow row: %w", err)
		}
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, fmt.Errorf("failed to parse month %q: %w", month, err)
		}
		flow.Month = parsed
		flow.Net = flow.Inflow - flow.Outflow
		flows = append(flows, flow)
	}

	return flows, rows.Err()
}

// ListOrgIDs returns every organization present in the transaction feed.
func (s *SQLiteStorage) ListOrgIDs(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT org_id FROM transactions ORDER BY org_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orgs []string
	for rows.Next() {
		var orgID string
		if err := rows.Scan(&orgID); err != nil {
			return nil, fmt.Errorf("failed to scan org id: %w", err)
		}
		orgs = append(orgs, orgID)
	}

	return orgs, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
