package service

import (
	"github.com/boddenberg/cashy-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// ============================================================
// Categorizer
// ============================================================

// NewCategorizedAccounts returns buckets for every known type plus
// unclassified, each an empty non-nil slice.
func NewCategorizedAccounts() domain.CategorizedAccounts {
	out := make(domain.CategorizedAccounts, len(domain.KnownAccountTypes)+1)
	for _, t := range domain.KnownAccountTypes {
		out[t] = []domain.CategorizedAccount{}
	}
	out[domain.AccountTypeUnclassified] = []domain.CategorizedAccount{}
	return out
}

// Categorize partitions accounts by category, keeping input order inside
// each bucket. Accounts whose type is unknown land in unclassified.
func Categorize(accounts []domain.CategorizedAccount) domain.CategorizedAccounts {
	out := NewCategorizedAccounts()
	for _, a := range accounts {
		bucket := a.Category
		if _, ok := out[bucket]; !ok {
			bucket = domain.AccountTypeUnclassified
		}
		out[bucket] = append(out[bucket], a)
	}
	return out
}

// ============================================================
// Aggregator
// ============================================================

// Subtotal sums display balances of one bucket.
func Subtotal(accounts []domain.CategorizedAccount) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.DisplayBalance)
	}
	return total
}

func sumTypes(c domain.CategorizedAccounts, types []domain.AccountType) decimal.Decimal {
	total := decimal.Zero
	for _, t := range types {
		total = total.Add(Subtotal(c[t]))
	}
	return total
}

// Aggregate reduces buckets to totals. Debts are positive magnitudes and
// net is assets minus debts; other and unclassified are never netted.
func Aggregate(c domain.CategorizedAccounts) domain.Totals {
	assets := sumTypes(c, domain.AssetAccountTypes)
	debts := sumTypes(c, domain.DebtAccountTypes)
	return domain.Totals{
		Net:    assets.Sub(debts),
		Assets: assets,
		Debts:  debts,
		Other:  Subtotal(c[domain.AccountTypeOther]),
	}
}

var sectionTypes = []struct {
	kind  domain.SectionKind
	types []domain.AccountType
}{
	{domain.SectionAssets, domain.AssetAccountTypes},
	{domain.SectionDebts, domain.DebtAccountTypes},
	{domain.SectionOther, []domain.AccountType{domain.AccountTypeOther}},
}

// Sections builds the assets, debts and other views. Empty categories are
// skipped and the other section is dropped when it has no accounts.
func Sections(c domain.CategorizedAccounts, totals domain.Totals) []domain.Section {
	sectionTotals := map[domain.SectionKind]decimal.Decimal{
		domain.SectionAssets: totals.Assets,
		domain.SectionDebts:  totals.Debts,
		domain.SectionOther:  totals.Other,
	}

	out := make([]domain.Section, 0, len(sectionTypes))
	for _, st := range sectionTypes {
		if st.kind == domain.SectionOther && len(c[domain.AccountTypeOther]) == 0 {
			continue
		}

		section := domain.Section{
			Kind:       st.kind,
			Total:      sectionTotals[st.kind],
			Categories: []domain.Category{},
		}
		for _, t := range st.types {
			accounts := c[t]
			if len(accounts) == 0 {
				continue
			}
			section.Categories = append(section.Categories, domain.Category{
				Type:        t,
				DisplayName: t.DisplayName(),
				Subtotal:    Subtotal(accounts),
				Accounts:    accounts,
			})
		}
		out = append(out, section)
	}
	return out
}

// SummarizeInstitution computes per-type subtotals and net for the accounts
// of a single institution, with the same sign convention as Aggregate.
func SummarizeInstitution(inst domain.LinkedInstitution, accounts []domain.CategorizedAccount) domain.InstitutionSummary {
	c := Categorize(accounts)

	subtotals := make(map[domain.AccountType]decimal.Decimal, len(c))
	for t, bucket := range c {
		subtotals[t] = Subtotal(bucket)
	}

	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.AccountID)
	}

	return domain.InstitutionSummary{
		ID:           inst.ID,
		Institution:  inst.Institution,
		AccountCount: len(accounts),
		AccountIDs:   ids,
		Subtotals:    subtotals,
		Net:          Aggregate(c).Net,
	}
}
