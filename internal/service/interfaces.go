// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/copperline/ledgeriq/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	DebitOnly bool
	Limit     int
	Offset    int
}

// MonthlyFlow is the aggregated cash movement for one calendar month.
type MonthlyFlow struct {
	Month   time.Time
	Inflow  float64
	Outflow float64
	Net     float64
}

// FeedbackKind distinguishes the correction streams the training pipeline
// monitors.
type FeedbackKind string

// Feedback kinds.
const (
	FeedbackCorrection FeedbackKind = "correction"
	FeedbackGeneral    FeedbackKind = "feedback"
)

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Transaction feed (read-only rows, annotate-only mutations)
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactions(ctx context.Context, orgID string, filter TransactionFilter) ([]model.Transaction, error)
	AnnotateTransaction(ctx context.Context, annotation model.TransactionAnnotation) error
	GetMonthlyCashFlow(ctx context.Context, orgID string, start, end time.Time) ([]MonthlyFlow, error)
	ListOrgIDs(ctx context.Context) ([]string, error)

	// Model store: whole-object replace per (org, model), last-write-wins
	SaveModelBlob(ctx context.Context, orgID, modelName string, blob []byte) error
	GetModelBlob(ctx context.Context, orgID, modelName string) ([]byte, error)

	// Chart of accounts
	GetCanonicalAccounts(ctx context.Context) ([]model.CanonicalAccount, error)
	SaveImportedAccount(ctx context.Context, account *model.ImportedAccount) error
	GetImportedAccounts(ctx context.Context, orgID string, status model.MappingStatus) ([]model.ImportedAccount, error)
	UpdateAccountMapping(ctx context.Context, account *model.ImportedAccount) error

	// Vendor training examples
	SaveVendorExample(ctx context.Context, example *model.VendorExample) error
	GetVendorExamples(ctx context.Context, orgID string) ([]model.VendorExample, error)
	CountVendorExamplesSince(ctx context.Context, orgID string, since time.Time) (int, error)

	// Feedback streams
	SaveMappingFeedback(ctx context.Context, feedback *model.MappingFeedback) error
	GetMappingFeedback(ctx context.Context, orgID string) ([]model.MappingFeedback, error)
	SaveUserFeedback(ctx context.Context, orgID string, kind FeedbackKind, payload string) error
	CountUserFeedbackSince(ctx context.Context, orgID string, kind FeedbackKind, since time.Time) (int, error)

	// Training history (append-only)
	AppendTrainingRecord(ctx context.Context, record *model.ModelTrainingRecord) error
	GetLatestTrainingRecord(ctx context.Context, orgID, modelName string) (*model.ModelTrainingRecord, error)
	ListTrainingRecords(ctx context.Context, orgID, modelName string, limit int) ([]model.ModelTrainingRecord, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
