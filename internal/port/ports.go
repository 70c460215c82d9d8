// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
)

// InstitutionStore persists linked institutions.
type InstitutionStore interface {
	// ListInstitutions returns the owner's institutions, oldest first.
	ListInstitutions(ctx context.Context, ownerID string) ([]domain.LinkedInstitution, error)
	// UpsertInstitution inserts by item id, or refreshes only the access
	// credential when the item is already linked.
	UpsertInstitution(ctx context.Context, inst *domain.LinkedInstitution) (*domain.LinkedInstitution, error)
	Ping(ctx context.Context) error
}

// LinkTokenCreator issues link tokens for the provider's client-side flow.
type LinkTokenCreator interface {
	CreateLinkToken(ctx context.Context, userID string) (*domain.LinkToken, error)
}

// TokenExchanger swaps a public token for a durable access credential.
type TokenExchanger interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*domain.TokenExchange, error)
}

// AccountsFetcher lists accounts and balances behind an access credential.
type AccountsFetcher interface {
	GetAccounts(ctx context.Context, accessToken string) ([]domain.Account, error)
}

// AggregationProvider is the full provider surface the services consume.
type AggregationProvider interface {
	LinkTokenCreator
	TokenExchanger
	AccountsFetcher
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Delete(ctx context.Context, key string)
}

// Encryptor seals access credentials at rest.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
