package model

import "time"

// MappingStatus tracks the review lifecycle of an imported account mapping.
type MappingStatus string

// Mapping status constants.
const (
	MappingPending     MappingStatus = "pending"
	MappingAutoMapped  MappingStatus = "auto_mapped"
	MappingNeedsReview MappingStatus = "needs_review"
	MappingManual      MappingStatus = "manual"
)

// MappingSource records which mechanism produced a mapping.
type MappingSource string

// Mapping source constants.
const (
	MappingSourceRule       MappingSource = "rule"
	MappingSourceTypeMap    MappingSource = "type_map"
	MappingSourceClassifier MappingSource = "classifier"
	MappingSourceUser       MappingSource = "user"
)

// CanonicalAccount is one entry in the canonical chart of accounts.
type CanonicalAccount struct {
	Code        string
	Name        string
	AccountType string // expense, revenue, asset, liability, equity
}

// DefaultChart is the canonical chart of accounts every organization maps
// onto. Codes follow the usual small-business numbering: 1xxx assets,
// 2xxx liabilities, 3xxx equity, 4xxx revenue, 5xxx cost of revenue,
// 6xxx operating expenses.
func DefaultChart() []CanonicalAccount {
	return []CanonicalAccount{
		{Code: "1000", Name: "Cash and Equivalents", AccountType: "asset"},
		{Code: "2000", Name: "Accounts Payable", AccountType: "liability"},
		{Code: "3000", Name: "Owner's Equity", AccountType: "equity"},
		{Code: "4000", Name: "Revenue", AccountType: "revenue"},
		{Code: "4100", Name: "Subscription Revenue", AccountType: "revenue"},
		{Code: "5000", Name: "Cost of Revenue", AccountType: "expense"},
		{Code: "5100", Name: "Fulfillment and Shipping", AccountType: "expense"},
		{Code: "5200", Name: "Platform and Marketplace Fees", AccountType: "expense"},
		{Code: "6000", Name: "Payroll", AccountType: "expense"},
		{Code: "6100", Name: "Rent and Facilities", AccountType: "expense"},
		{Code: "6200", Name: "Software Subscriptions", AccountType: "expense"},
		{Code: "6210", Name: "Cloud Infrastructure", AccountType: "expense"},
		{Code: "6300", Name: "Marketing and Advertising", AccountType: "expense"},
		{Code: "6400", Name: "Travel", AccountType: "expense"},
		{Code: "6410", Name: "Meals and Entertainment", AccountType: "expense"},
		{Code: "6500", Name: "Professional Services", AccountType: "expense"},
		{Code: "6600", Name: "Insurance", AccountType: "expense"},
		{Code: "6700", Name: "Utilities", AccountType: "expense"},
		{Code: "6800", Name: "Bank Fees", AccountType: "expense"},
		{Code: "6900", Name: "Taxes", AccountType: "expense"},
		{Code: "6999", Name: "Other Operating Expenses", AccountType: "expense"},
	}
}

// ImportedAccount is a raw ledger account awaiting (or holding) a mapping
// onto the canonical chart of accounts.
type ImportedAccount struct {
	UpdatedAt     time.Time
	ID            string
	OrgID         string
	RawName       string
	RawType       string // ledger-native account type
	CanonicalCode string
	Status        MappingStatus
	Source        MappingSource
	Confidence    float64
}

// MappingFeedback is a human confirmation or correction of a mapping,
// fed back into the fallback classifier's training set.
type MappingFeedback struct {
	CreatedAt     time.Time
	OrgID         string
	RawText       string
	CanonicalCode string
	Confirmed     bool
}
