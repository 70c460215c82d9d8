package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ============================================================
// Account types
// ============================================================

// AccountType is the provider tag describing what kind of account a record is.
type AccountType string

const (
	AccountTypeCredit       AccountType = "credit"
	AccountTypeDepository   AccountType = "depository"
	AccountTypeInvestment   AccountType = "investment"
	AccountTypeLoan         AccountType = "loan"
	AccountTypeOther        AccountType = "other"
	AccountTypeBrokerage    AccountType = "brokerage"
	AccountTypeUnclassified AccountType = "unclassified"
)

// KnownAccountTypes lists the provider tags the categorizer recognizes, in the
// order buckets are seeded.
var KnownAccountTypes = []AccountType{
	AccountTypeCredit,
	AccountTypeDepository,
	AccountTypeInvestment,
	AccountTypeLoan,
	AccountTypeOther,
	AccountTypeBrokerage,
}

// AssetAccountTypes count toward total assets.
var AssetAccountTypes = []AccountType{AccountTypeBrokerage, AccountTypeDepository, AccountTypeInvestment}

// DebtAccountTypes count toward total debts.
var DebtAccountTypes = []AccountType{AccountTypeCredit, AccountTypeLoan}

var accountTypeDisplayNames = map[AccountType]string{
	AccountTypeBrokerage:    "Investments",
	AccountTypeDepository:   "Cash",
	AccountTypeInvestment:   "Investments",
	AccountTypeCredit:       "Credit cards",
	AccountTypeLoan:         "Loans",
	AccountTypeOther:        "Other",
	AccountTypeUnclassified: "Unclassified",
}

// ParseAccountType resolves a raw provider tag. The second return value is
// false when the tag is not one of KnownAccountTypes.
func ParseAccountType(raw string) (AccountType, bool) {
	t := AccountType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range KnownAccountTypes {
		if t == known {
			return t, true
		}
	}
	return AccountTypeUnclassified, false
}

// DisplayName returns the human label used for a category heading.
func (t AccountType) DisplayName() string {
	if name, ok := accountTypeDisplayNames[t]; ok {
		return name
	}
	return accountTypeDisplayNames[AccountTypeUnclassified]
}

// ============================================================
// Accounts
// ============================================================

// Balances mirrors the provider balance sub-object. Nil means the provider did
// not report that field.
type Balances struct {
	Available       *decimal.Decimal `json:"available"`
	Current         *decimal.Decimal `json:"current"`
	IsoCurrencyCode *string          `json:"iso_currency_code"`
}

// Account is one balance-bearing account as returned by the aggregation provider.
type Account struct {
	AccountID string   `json:"account_id"`
	Name      string   `json:"name"`
	Mask      string   `json:"mask,omitempty"`
	Type      string   `json:"type"`
	Subtype   string   `json:"subtype,omitempty"`
	Balances  Balances `json:"balances"`
}

// CurrencyCode returns the account's ISO currency, empty when unreported.
func (a Account) CurrencyCode() string {
	if a.Balances.IsoCurrencyCode == nil {
		return ""
	}
	return *a.Balances.IsoCurrencyCode
}

// InstitutionRef is the back-reference an account carries to the link it came from.
type InstitutionRef struct {
	ID   string `json:"id"`
	Name string `json:"institution"`
}

// CategorizedAccount is an Account after normalization.
type CategorizedAccount struct {
	Account
	Category       AccountType     `json:"category"`
	DisplayBalance decimal.Decimal `json:"display_balance"`
	Institution    InstitutionRef  `json:"item"`
}

// DisplayBalance picks available, then current, then zero.
func DisplayBalance(b Balances) decimal.Decimal {
	if b.Available != nil {
		return *b.Available
	}
	if b.Current != nil {
		return *b.Current
	}
	return decimal.Zero
}

// NormalizeAccount attaches institution metadata and resolves the display
// balance. It never fails: unknown types are tagged unclassified and missing
// balances become zero.
func NormalizeAccount(a Account, inst InstitutionRef) CategorizedAccount {
	category, _ := ParseAccountType(a.Type)
	return CategorizedAccount{
		Account:        a,
		Category:       category,
		DisplayBalance: DisplayBalance(a.Balances),
		Institution:    inst,
	}
}
