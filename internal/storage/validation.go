package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/copperline/ledgeriq/internal/model"
)

// validateContext ensures a context is usable before touching the database.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context is invalid: %w", err)
	}
	return nil
}

// validateString ensures a required string parameter is non-blank.
func validateString(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if err := validateString(txn.ID, "transaction ID"); err != nil {
		return err
	}
	if err := validateString(txn.OrgID, "transaction OrgID"); err != nil {
		return err
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	return nil
}

func validateImportedAccount(account *model.ImportedAccount) error {
	if account == nil {
		return fmt.Errorf("account cannot be nil")
	}
	if err := validateString(account.ID, "account ID"); err != nil {
		return err
	}
	if err := validateString(account.OrgID, "account OrgID"); err != nil {
		return err
	}
	return validateString(account.RawName, "account RawName")
}

func validateVendorExample(example *model.VendorExample) error {
	if example == nil {
		return fmt.Errorf("vendor example cannot be nil")
	}
	if err := validateString(example.OrgID, "example OrgID"); err != nil {
		return err
	}
	if err := validateString(example.RawName, "example RawName"); err != nil {
		return err
	}
	return validateString(example.CanonicalName, "example CanonicalName")
}

func validateTrainingRecord(record *model.ModelTrainingRecord) error {
	if record == nil {
		return fmt.Errorf("training record cannot be nil")
	}
	if err := validateString(record.OrgID, "record OrgID"); err != nil {
		return err
	}
	if err := validateString(record.ModelName, "record ModelName"); err != nil {
		return err
	}
	return validateString(record.Version, "record Version")
}
