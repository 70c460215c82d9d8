package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Dashboard
// ============================================================

func init() {
	// Money goes out as JSON numbers ("net": 60.5), not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// CategorizedAccounts buckets accounts by category. Every known type and
// AccountTypeUnclassified are always present.
type CategorizedAccounts map[AccountType][]CategorizedAccount

// Totals are derived per request and never persisted.
// Net is always Assets minus Debts; Other is reported but not netted.
type Totals struct {
	Net    decimal.Decimal `json:"net"`
	Assets decimal.Decimal `json:"assets"`
	Debts  decimal.Decimal `json:"debts"`
	Other  decimal.Decimal `json:"other"`
}

// SectionKind names one of the three dashboard sections.
type SectionKind string

const (
	SectionAssets SectionKind = "assets"
	SectionDebts  SectionKind = "debts"
	SectionOther  SectionKind = "other"
)

// Category is one collapsible group in a section.
type Category struct {
	Type        AccountType          `json:"type"`
	DisplayName string               `json:"display_name"`
	Subtotal    decimal.Decimal      `json:"subtotal"`
	Accounts    []CategorizedAccount `json:"accounts"`
}

// Section groups the categories of one macro-group.
type Section struct {
	Kind       SectionKind     `json:"kind"`
	Total      decimal.Decimal `json:"total"`
	Categories []Category      `json:"categories"`
}

// InstitutionSummary is the per-institution view of a dashboard.
// Error is set when the provider fetch for this institution failed.
type InstitutionSummary struct {
	ID           string                          `json:"id"`
	Institution  string                          `json:"institution"`
	AccountCount int                             `json:"account_count"`
	AccountIDs   []string                        `json:"account_ids"`
	Subtotals    map[AccountType]decimal.Decimal `json:"subtotals"`
	Net          decimal.Decimal                 `json:"net"`
	Error        string                          `json:"error,omitempty"`
}

// Dashboard is the read model returned by GET /v1/dashboard.
type Dashboard struct {
	LinkToken           string               `json:"link_token"`
	CurrencyCode        string               `json:"currency_code"`
	Totals              Totals               `json:"totals"`
	CategorizedAccounts CategorizedAccounts  `json:"categorized_accounts"`
	Sections            []Section            `json:"sections"`
	Institutions        []InstitutionSummary `json:"institutions"`
	Partial             bool                 `json:"partial"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

// DefaultCurrencyCode is used when no account reports a currency.
const DefaultCurrencyCode = "USD"
