package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashy-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LinkService connects new institutions to a user.
type LinkService struct {
	store      port.InstitutionStore
	provider   port.TokenExchanger
	encryptor  port.Encryptor
	linkTokens port.Cache[domain.LinkToken]
	dashboard  *DashboardService
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewLinkService creates the link service. The link token cache must be the
// one the dashboard reads so a new link invalidates it.
func NewLinkService(
	store port.InstitutionStore,
	provider port.TokenExchanger,
	encryptor port.Encryptor,
	linkTokens port.Cache[domain.LinkToken],
	dashboard *DashboardService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LinkService {
	return &LinkService{
		store:      store,
		provider:   provider,
		encryptor:  encryptor,
		linkTokens: linkTokens,
		dashboard:  dashboard,
		metrics:    metrics,
		logger:     logger,
	}
}

// LinkToken returns the user's current link token.
func (s *LinkService) LinkToken(ctx context.Context, userID string) (*domain.LinkToken, error) {
	return s.dashboard.LinkToken(ctx, userID)
}

// ListInstitutions returns the user's linked institutions, oldest first.
func (s *LinkService) ListInstitutions(ctx context.Context, userID string) ([]domain.LinkedInstitution, error) {
	list, err := s.store.ListInstitutions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	return list, nil
}

// Link exchanges a public token and stores the resulting institution.
// Re-linking an item that already exists only refreshes its credential.
func (s *LinkService) Link(ctx context.Context, userID, publicToken, institution string) (*domain.LinkResult, error) {
	publicToken = strings.TrimSpace(publicToken)
	institution = strings.TrimSpace(institution)

	if publicToken == "" {
		return nil, &domain.ErrValidation{Field: "public_token", Message: "public token is required"}
	}
	if institution == "" {
		return nil, &domain.ErrValidation{Field: "institution", Message: "institution name is required"}
	}

	ctx, span := tracer.Start(ctx, "Link.Link")
	defer span.End()
	span.SetAttributes(attribute.String("institution", institution))

	start := time.Now()
	exchange, err := s.provider.ExchangePublicToken(ctx, publicToken)
	s.metrics.RecordRequestDuration("public_token_exchange", time.Since(start))
	if err != nil {
		s.metrics.IncrProviderError("public_token_exchange")
		s.logger.Error("public token exchange failed",
			zap.String("user_id", userID),
			zap.String("institution", institution),
			zap.Error(err),
		)
		return nil, fmt.Errorf("exchange public token: %w", err)
	}

	sealed, err := s.encryptor.Encrypt(exchange.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access credential: %w", err)
	}

	saved, err := s.store.UpsertInstitution(ctx, &domain.LinkedInstitution{
		ID:               uuid.NewString(),
		OwnerID:          userID,
		ItemID:           exchange.ItemID,
		Institution:      institution,
		AccessCredential: sealed,
	})
	if err != nil {
		s.logger.Error("failed to store institution",
			zap.String("user_id", userID),
			zap.String("item_id", exchange.ItemID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("store institution: %w", err)
	}

	s.linkTokens.Delete(ctx, linkTokenKey(userID))

	s.logger.Info("institution linked",
		zap.String("user_id", userID),
		zap.String("institution_id", saved.ID),
		zap.String("item_id", saved.ItemID),
	)

	return &domain.LinkResult{
		Institution: saved,
		Toast: domain.Toast{
			Type:        "success",
			Title:       "Success",
			Description: fmt.Sprintf("You successfully linked %s.", saved.Institution),
		},
	}, nil
}
