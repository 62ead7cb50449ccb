// Package testutil provides test utilities for the ledgeriq project:
// an in-memory database harness with migrations applied and cleanup
// registered, plus builders for common test fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/storage"
)

// TestDB is a migrated in-memory database scoped to one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates an in-memory SQLite store, runs migrations, and
// registers cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return &TestDB{Storage: store, t: t}
}

// SeedTransactions saves the given transactions, failing the test on error.
func (db *TestDB) SeedTransactions(ctx context.Context, txns []model.Transaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(ctx, txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// SeedVendorExamples saves confirmed raw→canonical vendor pairs.
func (db *TestDB) SeedVendorExamples(ctx context.Context, orgID string, pairs map[string]string) {
	db.t.Helper()
	for raw, canonical := range pairs {
		ex := &model.VendorExample{
			OrgID:         orgID,
			RawName:       raw,
			CanonicalName: canonical,
			CreatedAt:     time.Now(),
		}
		if err := db.Storage.SaveVendorExample(ctx, ex); err != nil {
			db.t.Fatalf("failed to seed vendor example %q: %v", raw, err)
		}
	}
}

// Txn builds a feed transaction with a fresh ID and deterministic hash.
func Txn(orgID string, date time.Time, amount float64, vendorText, categoryID string) model.Transaction {
	t := model.Transaction{
		Date:       date,
		ID:         uuid.NewString(),
		OrgID:      orgID,
		VendorText: vendorText,
		CategoryID: categoryID,
		Source:     model.SourceBankFeed,
		Amount:     amount,
	}
	t.Hash = t.GenerateHash()
	return t
}
