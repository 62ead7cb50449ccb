// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// TransactionSource indicates which upstream feed produced a transaction.
type TransactionSource string

const (
	// SourceBankFeed indicates a transaction pulled from a bank connector.
	SourceBankFeed TransactionSource = "bank_feed"
	// SourceLedgerImport indicates a transaction imported from an accounting ledger.
	SourceLedgerImport TransactionSource = "ledger_import"
	// SourceManualEntry indicates a transaction entered by hand.
	SourceManualEntry TransactionSource = "manual"
)

// Transaction represents a single financial transaction from any source.
// The row itself is immutable once ingested; only the annotation fields
// (normalized vendor, category, recurring flag, confidence) may change.
type Transaction struct {
	Date             time.Time
	ID               string
	OrgID            string
	VendorText       string // Raw vendor/description text from the feed
	NormalizedVendor string // Canonical vendor name, set by the matcher
	CategoryID       string
	VendorID         string
	Source           TransactionSource
	Hash             string
	Amount           float64 // Signed: negative = outflow (debit)
	Confidence       float64 // Classification confidence, 0 if unclassified
	IsRecurring      bool
}

// IsDebit reports whether the transaction is an outflow.
func (t *Transaction) IsDebit() bool {
	return t.Amount < 0
}

// AbsAmount returns the unsigned transaction amount.
func (t *Transaction) AbsAmount() float64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%.2f:%s",
		t.OrgID,
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.VendorText)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// TransactionAnnotation carries the mutable classification fields written
// back to the feed store after a model run.
type TransactionAnnotation struct {
	TransactionID    string
	NormalizedVendor string
	CategoryID       string
	VendorID         string
	Confidence       float64
	IsRecurring      bool
}
