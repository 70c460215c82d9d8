package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
)

// --- Mocks ---

type mockStore struct {
	mu           sync.Mutex
	institutions []domain.LinkedInstitution
	listErr      error
	upsertErr    error
	upserted     []domain.LinkedInstitution
}

func (m *mockStore) ListInstitutions(_ context.Context, ownerID string) ([]domain.LinkedInstitution, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.LinkedInstitution{}
	for _, inst := range m.institutions {
		if inst.OwnerID == ownerID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertInstitution(_ context.Context, inst *domain.LinkedInstitution) (*domain.LinkedInstitution, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, *inst)
	m.institutions = append(m.institutions, *inst)
	saved := *inst
	return &saved, nil
}

func (m *mockStore) Ping(context.Context) error { return nil }

// mockProvider serves accounts keyed by access token. A token listed in
// errs fails; a token listed in block waits for the context to end.
type mockProvider struct {
	accounts map[string][]domain.Account
	errs     map[string]error
	block    map[string]bool

	linkToken   *domain.LinkToken
	linkErr     error
	exchange    *domain.TokenExchange
	exchangeErr error

	linkCalls     atomic.Int32
	accountsCalls atomic.Int32
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
}

func (m *mockProvider) CreateLinkToken(_ context.Context, _ string) (*domain.LinkToken, error) {
	m.linkCalls.Add(1)
	if m.linkErr != nil {
		return nil, m.linkErr
	}
	if m.linkToken == nil {
		return &domain.LinkToken{LinkToken: "link-sandbox-123"}, nil
	}
	tok := *m.linkToken
	return &tok, nil
}

func (m *mockProvider) ExchangePublicToken(_ context.Context, publicToken string) (*domain.TokenExchange, error) {
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	if m.exchange == nil {
		return &domain.TokenExchange{AccessToken: "access-" + publicToken, ItemID: "item-" + publicToken}, nil
	}
	return m.exchange, nil
}

func (m *mockProvider) GetAccounts(ctx context.Context, accessToken string) ([]domain.Account, error) {
	m.accountsCalls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if m.block[accessToken] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := m.errs[accessToken]; ok {
		return nil, err
	}
	accounts, ok := m.accounts[accessToken]
	if !ok {
		return nil, errors.New("unknown access token")
	}
	return accounts, nil
}
