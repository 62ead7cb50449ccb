package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Transaction feed",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					org_id TEXT NOT NULL,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					amount REAL NOT NULL,
					vendor_text TEXT NOT NULL,
					normalized_vendor TEXT,
					category_id TEXT,
					vendor_id TEXT,
					source TEXT,
					confidence REAL DEFAULT 0,
					is_recurring INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_org_date ON transactions(org_id, date)`,
				`CREATE INDEX idx_transactions_org_category ON transactions(org_id, category_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Keyed model store",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS model_blobs (
					org_id TEXT NOT NULL,
					model_name TEXT NOT NULL,
					blob BLOB NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (org_id, model_name)
				)
			`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Chart of accounts, vendor examples, feedback streams",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS canonical_accounts (
					code TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					account_type TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS imported_accounts (
					id TEXT PRIMARY KEY,
					org_id TEXT NOT NULL,
					raw_name TEXT NOT NULL,
					raw_type TEXT,
					canonical_code TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					source TEXT,
					confidence REAL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_imported_accounts_org_status ON imported_accounts(org_id, status)`,

				`CREATE TABLE IF NOT EXISTS vendor_examples (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id TEXT NOT NULL,
					raw_name TEXT NOT NULL,
					canonical_name TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_vendor_examples_org ON vendor_examples(org_id, created_at)`,

				`CREATE TABLE IF NOT EXISTS mapping_feedback (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id TEXT NOT NULL,
					raw_text TEXT NOT NULL,
					canonical_code TEXT NOT NULL,
					confirmed INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_mapping_feedback_org ON mapping_feedback(org_id, created_at)`,

				`CREATE TABLE IF NOT EXISTS user_feedback (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					payload TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_user_feedback_org_kind ON user_feedback(org_id, kind, created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Append-only model training history",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS training_records (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id TEXT NOT NULL,
					model_name TEXT NOT NULL,
					version TEXT NOT NULL,
					trained_at DATETIME NOT NULL,
					example_count INTEGER DEFAULT 0,
					success INTEGER DEFAULT 0
				)`,
				`CREATE INDEX idx_training_records_org_model ON training_records(org_id, model_name, trained_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// runMigrations applies pending migrations in order, inside transactions.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
			m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
