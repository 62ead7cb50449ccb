package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/copperline/ledgeriq/internal/model"
)

// GetCanonicalAccounts returns the canonical chart of accounts.
func (s *SQLiteStorage) GetCanonicalAccounts(ctx context.Context) ([]model.CanonicalAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, account_type FROM canonical_accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query canonical accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.CanonicalAccount
	for rows.Next() {
		var acct model.CanonicalAccount
		if err := rows.Scan(&acct.Code, &acct.Name, &acct.AccountType); err != nil {
			return nil, fmt.Errorf("failed to scan canonical account: %w", err)
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// SeedCanonicalAccounts inserts chart-of-accounts entries, ignoring
// duplicates. Migrate calls this with the default chart.
func (s *SQLiteStorage) SeedCanonicalAccounts(ctx context.Context, accounts []model.CanonicalAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	for _, acct := range accounts {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO canonical_accounts (code, name, account_type)
			VALUES (?, ?, ?)
		`, acct.Code, acct.Name, acct.AccountType); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", acct.Code, err)
		}
	}
	return nil
}

// SaveImportedAccount inserts or replaces a raw ledger account row.
func (s *SQLiteStorage) SaveImportedAccount(ctx context.Context, account *model.ImportedAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateImportedAccount(account); err != nil {
		return err
	}
	if account.Status == "" {
		account.Status = model.MappingPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO imported_accounts
			(id, org_id, raw_name, raw_type, canonical_code, status, source, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			raw_name = excluded.raw_name,
			raw_type = excluded.raw_type,
			canonical_code = excluded.canonical_code,
			status = excluded.status,
			source = excluded.source,
			confidence = excluded.confidence,
			updated_at = CURRENT_TIMESTAMP
	`, account.ID, account.OrgID, account.RawName, nullString(account.RawType),
		nullString(account.CanonicalCode), string(account.Status),
		nullString(string(account.Source)), account.Confidence)
	if err != nil {
		return fmt.Errorf("failed to save imported account %s: %w", account.ID, err)
	}
	return nil
}

// GetImportedAccounts returns imported accounts for an organization,
// optionally filtered by mapping status (empty status = all).
func (s *SQLiteStorage) GetImportedAccounts(ctx context.Context, orgID string, status model.MappingStatus) ([]model.ImportedAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, org_id, raw_name, COALESCE(raw_type, ''),
		       COALESCE(canonical_code, ''), status, COALESCE(source, ''),
		       confidence, updated_at
		FROM imported_accounts
		WHERE org_id = ?`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY raw_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query imported accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.ImportedAccount
	for rows.Next() {
		var acct model.ImportedAccount
		var st, src string
		if err := rows.Scan(&acct.ID, &acct.OrgID, &acct.RawName, &acct.RawType,
			&acct.CanonicalCode, &st, &src, &acct.Confidence, &acct.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan imported account: %w", err)
		}
		acct.Status = model.MappingStatus(st)
		acct.Source = model.MappingSource(src)
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// UpdateAccountMapping writes a new mapping decision onto an existing
// imported account.
func (s *SQLiteStorage) UpdateAccountMapping(ctx context.Context, account *model.ImportedAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateImportedAccount(account); err != nil {
		return err
	}

	account.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE imported_accounts
		SET canonical_code = ?, status = ?, source = ?, confidence = ?, updated_at = ?
		WHERE id = ?
	`, nullString(account.CanonicalCode), string(account.Status),
		string(account.Source), account.Confidence, account.UpdatedAt, account.ID)
	if err != nil {
		return fmt.Errorf("failed to update account mapping %s: %w", account.ID, err)
	}
	return nil
}
