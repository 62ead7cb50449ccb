// Package coa maps raw ledger accounts and transaction text onto the
// canonical chart of accounts, combining per-vertical rule tables with a
// trainable fallback classifier.
package coa

import (
	"fmt"
	"regexp"
	"strings"
)

// Vertical identifies a business vertical with its own rule table.
type Vertical string

// Supported verticals. VerticalGeneric is the fallback rule set.
const (
	VerticalSaaS       Vertical = "saas"
	VerticalEcommerce  Vertical = "ecommerce"
	VerticalServices   Vertical = "services"
	VerticalRestaurant Vertical = "restaurant"
	VerticalGeneric    Vertical = "generic"
)

// Rule maps raw account text to a canonical account code. Rules are tried
// in order; first match wins.
type Rule struct {
	Name       string
	Regex      string
	Code       string
	Confidence float64
}

// compiledRule holds a compiled regex rule.
type compiledRule struct {
	compiledRegex *regexp.Regexp
	Rule
}

// RuleSet is the ordered rule table plus default type map for one vertical.
type RuleSet struct {
	Vertical Vertical
	Rules    []Rule
	// TypeMap maps the ledger-native account type to a canonical code,
	// used at fixed confidence when no rule matches.
	TypeMap map[string]string
}

type compiledRuleSet struct {
	vertical Vertical
	rules    []compiledRule
	typeMap  map[string]string
}

func compileRuleSet(set RuleSet) (*compiledRuleSet, error) {
	compiled := make([]compiledRule, 0, len(set.Rules))
	for _, r := range set.Rules {
		regexStr := r.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr // Case-insensitive by default
		}
		re, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, compiledRegex: re})
	}
	return &compiledRuleSet{
		vertical: set.Vertical,
		rules:    compiled,
		typeMap:  set.TypeMap,
	}, nil
}

// genericTypeMap is shared by every vertical as the ledger-type fallback.
var genericTypeMap = map[string]string{
	"expense":   "6999", // Other Operating Expenses
	"revenue":   "4000", // Revenue
	"income":    "4000",
	"asset":     "1000", // Cash and Equivalents
	"bank":      "1000",
	"liability": "2000", // Accounts Payable
	"equity":    "3000", // Owner's Equity
}

// DefaultRuleSets returns the built-in rule tables per business vertical.
func DefaultRuleSets() []RuleSet {
	generic := []Rule{
		{Name: "Payroll", Regex: `\b(PAYROLL|SALAR(Y|IES)|WAGES|GUSTO|ADP|RIPPLING)\b`, Code: "6000", Confidence: 0.92},
		{Name: "Rent", Regex: `\b(RENT|LEASE|WEWORK|OFFICE\s*SPACE)\b`, Code: "6100", Confidence: 0.9},
		{Name: "Software Subscriptions", Regex: `\b(SOFTWARE|SUBSCRIPTION|SAAS|LICENSE)\b`, Code: "6200", Confidence: 0.85},
		{Name: "Cloud Infrastructure", Regex: `\b(AWS|AMAZON\s*WEB|GOOGLE\s*CLOUD|GCP|AZURE|HOSTING|DIGITAL\s*OCEAN)\b`, Code: "6210", Confidence: 0.92},
		{Name: "Marketing", Regex: `\b(MARKETING|ADVERTIS|ADS?|FACEBOOK\s*ADS|GOOGLE\s*ADS)\b`, Code: "6300", Confidence: 0.85},
		{Name: "Travel", Regex: `\b(TRAVEL|AIRLINE|FLIGHT|HOTEL|UBER|LYFT)\b`, Code: "6400", Confidence: 0.85},
		{Name: "Meals", Regex: `\b(MEALS?|RESTAURANT|CATERING|DOORDASH|LUNCH)\b`, Code: "6410", Confidence: 0.8},
		{Name: "Professional Services", Regex: `\b(LEGAL|ATTORNEY|ACCOUNTING|CONSULTING|CPA|BOOKKEEP)\b`, Code: "6500", Confidence: 0.88},
		{Name: "Insurance", Regex: `\b(INSURANCE|PREMIUM)\b`, Code: "6600", Confidence: 0.88},
		{Name: "Utilities", Regex: `\b(UTILIT|ELECTRIC|WATER|INTERNET|PHONE|TELECOM)\b`, Code: "6700", Confidence: 0.85},
		{Name: "Bank Fees", Regex: `\b(BANK\s*FEE|SERVICE\s*CHARGE|WIRE\s*FEE|OVERDRAFT)\b`, Code: "6800", Confidence: 0.9},
		{Name: "Taxes", Regex: `\b(TAX(ES)?|IRS|FRANCHISE\s*TAX)\b`, Code: "6900", Confidence: 0.85},
		{Name: "Sales Revenue", Regex: `\b(SALES|REVENUE|INVOICE\s*PAYMENT|STRIPE\s*PAYOUT)\b`, Code: "4000", Confidence: 0.85},
	}

	return []RuleSet{
		{
			Vertical: VerticalSaaS,
			Rules: append([]Rule{
				{Name: "Hosting and Compute", Regex: `\b(AWS|GCP|AZURE|HEROKU|VERCEL|CLOUDFLARE|FASTLY)\b`, Code: "5000", Confidence: 0.95},
				{Name: "Developer Tooling", Regex: `\b(GITHUB|GITLAB|DATADOG|SENTRY|PAGERDUTY|CIRCLECI)\b`, Code: "6200", Confidence: 0.92},
				{Name: "Subscription Revenue", Regex: `\b(STRIPE|PADDLE|CHARGEBEE|RECURLY)\b.*\b(PAYOUT|DEPOSIT)\b`, Code: "4100", Confidence: 0.9},
			}, generic...),
			TypeMap: genericTypeMap,
		},
		{
			Vertical: VerticalEcommerce,
			Rules: append([]Rule{
				{Name: "Cost of Goods", Regex: `\b(INVENTORY|WHOLESALE|SUPPLIER|FREIGHT|ALIBABA)\b`, Code: "5000", Confidence: 0.9},
				{Name: "Fulfillment", Regex: `\b(SHIPPING|FULFILLMENT|SHIPSTATION|FEDEX|UPS|USPS)\b`, Code: "5100", Confidence: 0.9},
				{Name: "Marketplace Fees", Regex: `\b(AMAZON\s*FEES|SHOPIFY|ETSY\s*FEE|EBAY\s*FEE)\b`, Code: "5200", Confidence: 0.9},
			}, generic...),
			TypeMap: genericTypeMap,
		},
		{
			Vertical: VerticalServices,
			Rules: append([]Rule{
				{Name: "Subcontractors", Regex: `\b(SUBCONTRACT|CONTRACTOR|FREELANCE|UPWORK|1099)\b`, Code: "5000", Confidence: 0.9},
			}, generic...),
			TypeMap: genericTypeMap,
		},
		{
			Vertical: VerticalRestaurant,
			Rules: append([]Rule{
				{Name: "Food Costs", Regex: `\b(SYSCO|US\s*FOODS|PRODUCE|MEAT|DAIRY|FOOD\s*SUPPL)\b`, Code: "5000", Confidence: 0.92},
				{Name: "Delivery Platforms", Regex: `\b(DOORDASH|UBEREATS|GRUBHUB)\b.*\b(FEE|COMMISSION)\b`, Code: "5200", Confidence: 0.88},
			}, generic...),
			TypeMap: genericTypeMap,
		},
		{
			Vertical: VerticalGeneric,
			Rules:    generic,
			TypeMap:  genericTypeMap,
		},
	}
}
