package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/cache"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/crypto"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashy-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func usd() *string {
	s := "USD"
	return &s
}

func linked(id, name, token string) domain.LinkedInstitution {
	return domain.LinkedInstitution{
		ID:               id,
		OwnerID:          "user-1",
		ItemID:           "item-" + id,
		Institution:      name,
		AccessCredential: token,
	}
}

func newDashboardService(store *mockStore, provider *mockProvider, maxConcurrency int) (*service.DashboardService, *observability.Metrics) {
	metrics := observability.NewMetrics()
	svc := service.NewDashboardService(
		store,
		provider,
		crypto.Plaintext{},
		cache.New[domain.LinkToken](time.Minute),
		resilience.NewBulkhead(maxConcurrency),
		metrics,
		zap.NewNop(),
	)
	return svc, metrics
}

func TestBuild_Success(t *testing.T) {
	store := &mockStore{institutions: []domain.LinkedInstitution{
		linked("inst-1", "First Platypus Bank", "tok-1"),
		linked("inst-2", "Tartan Bank", "tok-2"),
	}}
	provider := &mockProvider{accounts: map[string][]domain.Account{
		"tok-1": {
			{AccountID: "chk", Name: "Checking", Type: "depository", Balances: domain.Balances{Available: dec(100), Current: dec(110), IsoCurrencyCode: usd()}},
			{AccountID: "misc", Name: "Misc", Type: "other", Balances: domain.Balances{Current: dec(10)}},
		},
		"tok-2": {
			{AccountID: "card", Name: "Card", Type: "credit", Balances: domain.Balances{Current: dec(40)}},
		},
	}}

	svc, metrics := newDashboardService(store, provider, 4)

	dash, err := svc.Build(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if dash.LinkToken != "link-sandbox-123" {
		t.Errorf("expected link token, got '%s'", dash.LinkToken)
	}
	if dash.Partial {
		t.Error("expected complete dashboard")
	}
	if dash.CurrencyCode != "USD" {
		t.Errorf("expected USD, got '%s'", dash.CurrencyCode)
	}
	if !dash.Totals.Assets.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected assets 100 (available wins), got %s", dash.Totals.Assets)
	}
	if !dash.Totals.Debts.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected debts 40, got %s", dash.Totals.Debts)
	}
	if !dash.Totals.Other.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected other 10, got %s", dash.Totals.Other)
	}
	if !dash.Totals.Net.Equal(decimal.NewFromInt(60)) {
		t.Errorf("expected net 60, got %s", dash.Totals.Net)
	}

	if len(dash.Institutions) != 2 || dash.Institutions[0].ID != "inst-1" || dash.Institutions[1].ID != "inst-2" {
		t.Fatalf("expected institutions in store order, got %+v", dash.Institutions)
	}
	if dash.Institutions[0].AccountCount != 2 {
		t.Errorf("expected 2 accounts for inst-1, got %d", dash.Institutions[0].AccountCount)
	}

	chk := dash.CategorizedAccounts[domain.AccountTypeDepository][0]
	if chk.Institution.Name != "First Platypus Bank" || chk.Institution.ID != "inst-1" {
		t.Errorf("expected account tagged with its institution, got %+v", chk.Institution)
	}

	if got := metrics.CounterValue("dashboards", "complete"); got != 1 {
		t.Errorf("expected 1 complete dashboard, got %v", got)
	}
}

func TestBuild_ZeroInstitutions(t *testing.T) {
	svc, _ := newDashboardService(&mockStore{}, &mockProvider{}, 4)

	dash, err := svc.Build(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !dash.Totals.Net.IsZero() || !dash.Totals.Assets.IsZero() || !dash.Totals.Debts.IsZero() || !dash.Totals.Other.IsZero() {
		t.Errorf("expected zero totals, got %+v", dash.Totals)
	}
	if dash.CurrencyCode != domain.DefaultCurrencyCode {
		t.Errorf("expected default currency, got '%s'", dash.CurrencyCode)
	}
	if len(dash.CategorizedAccounts) != len(domain.KnownAccountTypes)+1 {
		t.Errorf("expected all buckets present, got %d", len(dash.CategorizedAccounts))
	}
	if dash.Institutions == nil || len(dash.Institutions) != 0 {
		t.Errorf("expected empty institutions, got %v", dash.Institutions)
	}
}

func TestBuild_PartialFailureIsolated(t *testing.T) {
	store := &mockStore{institutions: []domain.LinkedInstitution{
		linked("inst-1", "Good Bank", "tok-1"),
		linked("inst-2", "Broken Bank", "tok-2"),
		linked("inst-3", "Other Good Bank", "tok-3"),
	}}
	provider := &mockProvider{
		accounts: map[string][]domain.Account{
			"tok-1": {{AccountID: "a", Type: "depository", Balances: domain.Balances{Current: dec(100)}}},
			"tok-3": {{AccountID: "b", Type: "loan", Balances: domain.Balances{Current: dec(30)}}},
		},
		errs: map[string]error{
			"tok-2": &domain.ErrExternalService{
				Service: "plaid/accounts_get",
				Err:     &domain.ErrProvider{Status: 400, Code: "ITEM_LOGIN_REQUIRED", Message: "login required"},
			},
		},
	}

	svc, metrics := newDashboardService(store, provider, 4)

	dash, err := svc.Build(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected partial dashboard, got error %v", err)
	}

	if !dash.Partial {
		t.Error("expected partial dashboard")
	}
	if !dash.Totals.Net.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected net 70 from surviving institutions, got %s", dash.Totals.Net)
	}

	failed := dash.Institutions[1]
	if failed.ID != "inst-2" || failed.Error != "login required" {
		t.Errorf("expected inst-2 to carry the provider message, got %+v", failed)
	}
	if failed.AccountCount != 0 || !failed.Net.IsZero() {
		t.Errorf("expected failed institution to contribute nothing, got %+v", failed)
	}
	if dash.Institutions[0].Error != "" || dash.Institutions[2].Error != "" {
		t.Error("expected healthy institutions without error")
	}

	if got := metrics.CounterValue("institution_failures"); got != 1 {
		t.Errorf("expected 1 institution failure, got %v", got)
	}
	if got := metrics.CounterValue("dashboards", "partial"); got != 1 {
		t.Errorf("expected 1 partial dashboard, got %v", got)
	}
}

func TestBuild_SlowInstitutionTimesOut(t *testing.T) {
	store := &mockStore{institutions: []domain.LinkedInstitution{
		linked("inst-1", "Fast Bank", "tok-1"),
		linked("inst-2", "Slow Bank", "tok-2"),
	}}
	provider := &mockProvider{
		accounts: map[string][]domain.Account{
			"tok-1": {{AccountID: "a", Type: "depository", Balances: domain.Balances{Current: dec(5)}}},
		},
		errs: map[string]error{
			"tok-2": &domain.ErrTimeout{Operation: "plaid/accounts_get"},
		},
	}

	svc, _ := newDashboardService(store, provider, 4)

	dash, err := svc.Build(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dash.Institutions[1].Error != "institution timed out" {
		t.Errorf("expected timeout message, got '%s'", dash.Institutions[1].Error)
	}
	if !dash.Totals.Assets.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected assets 5, got %s", dash.Totals.Assets)
	}
}

func TestBuild_UnclassifiedCounted(t *testing.T) {
	store := &mockStore{institutions: []domain.LinkedInstitution{linked("inst-1", "Bank", "tok-1")}}
	provider := &mockProvider{accounts: map[string][]domain.Account{
		"tok-1": {{AccountID: "x", Type: "crypto", Balances: domain.Balances{Current: dec(999)}}},
	}}

	svc, metrics := newDashboardService(store, provider, 4)

	dash, err := svc.Build(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(dash.CategorizedAccounts[domain.AccountTypeUnclassified]) != 1 {
		t.Error("expected account in unclassified bucket")
	}
	if !dash.Totals.Net.IsZero() {
		t.Errorf("expected unclassified out of net, got %s", dash.Totals.Net)
	}
	if got := metrics.CounterValue("unclassified", "crypto"); got != 1 {
		t.Errorf("expected unclassified counter 1, got %v", got)
	}
}

func TestBuild_StoreError(t *testing.T) {
	svc, metrics := newDashboardService(&mockStore{listErr: errors.New("connection refused")}, &mockProvider{}, 4)

	_, err := svc.Build(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := metrics.CounterValue("dashboards", "error"); got != 1 {
		t.Errorf("expected 1 errored dashboard, got %v", got)
	}
}

func TestBuild_LinkTokenError(t *testing.T) {
	svc, _ := newDashboardService(&mockStore{}, &mockProvider{linkErr: errors.New("provider down")}, 4)

	if _, err := svc.Build(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestBuild_CancelledContext(t *testing.T) {
	store := &mockStore{institutions: []domain.LinkedInstitution{linked("inst-1", "Bank", "tok-1")}}
	provider := &mockProvider{block: map[string]bool{"tok-1": true}}

	svc, _ := newDashboardService(store, provider, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Build(ctx, "user-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBuild_BoundedConcurrency(t *testing.T) {
	store := &mockStore{}
	provider := &mockProvider{accounts: map[string][]domain.Account{}}
	for i := 0; i < 10; i++ {
		tok := string(rune('a' + i))
		store.institutions = append(store.institutions, linked("inst-"+tok, "Bank "+tok, tok))
		provider.accounts[tok] = []domain.Account{{AccountID: tok, Type: "depository", Balances: domain.Balances{Current: dec(1)}}}
	}

	svc, _ := newDashboardService(store, provider, 2)

	dash, err := svc.Build(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := provider.maxInFlight.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent provider calls, got %d", got)
	}
	if !dash.Totals.Assets.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected assets 10, got %s", dash.Totals.Assets)
	}
	for i, s := range dash.Institutions {
		if s.ID != store.institutions[i].ID {
			t.Fatalf("expected summary %d to be %s, got %s", i, store.institutions[i].ID, s.ID)
		}
	}
}

func TestLinkToken_Cached(t *testing.T) {
	provider := &mockProvider{}
	svc, metrics := newDashboardService(&mockStore{}, provider, 4)

	for i := 0; i < 3; i++ {
		if _, err := svc.LinkToken(context.Background(), "user-1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	if got := provider.linkCalls.Load(); got != 1 {
		t.Errorf("expected 1 provider call, got %d", got)
	}
	if got := metrics.CounterValue("cache_hits", "link_token"); got != 2 {
		t.Errorf("expected 2 cache hits, got %v", got)
	}
}

func TestLinkToken_ExpiredTokenRefreshed(t *testing.T) {
	provider := &mockProvider{linkToken: &domain.LinkToken{
		LinkToken:  "link-old",
		Expiration: time.Now().Add(10 * time.Second),
	}}
	svc, _ := newDashboardService(&mockStore{}, provider, 4)

	for i := 0; i < 2; i++ {
		if _, err := svc.LinkToken(context.Background(), "user-1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	if got := provider.linkCalls.Load(); got != 2 {
		t.Errorf("expected token near expiry to be refreshed, got %d provider calls", got)
	}
}
