package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashy-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service")

// linkTokenSkew drops cached link tokens shortly before the provider expires them.
const linkTokenSkew = time.Minute

// DashboardService builds the net-worth dashboard for a user.
type DashboardService struct {
	store      port.InstitutionStore
	provider   port.AggregationProvider
	encryptor  port.Encryptor
	linkTokens port.Cache[domain.LinkToken]
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewDashboardService creates the dashboard service with all dependencies injected.
// The bulkhead bounds concurrent provider calls across all requests.
func NewDashboardService(
	store port.InstitutionStore,
	provider port.AggregationProvider,
	encryptor port.Encryptor,
	linkTokens port.Cache[domain.LinkToken],
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DashboardService {
	return &DashboardService{
		store:      store,
		provider:   provider,
		encryptor:  encryptor,
		linkTokens: linkTokens,
		bulkhead:   bulkhead,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

func linkTokenKey(userID string) string {
	return "link_token:" + userID
}

// LinkToken returns a provider link token for the user, reusing a cached one
// until shortly before it expires.
func (s *DashboardService) LinkToken(ctx context.Context, userID string) (*domain.LinkToken, error) {
	ctx, span := tracer.Start(ctx, "Dashboard.LinkToken")
	defer span.End()

	key := linkTokenKey(userID)
	if cached, ok := s.linkTokens.Get(ctx, key); ok {
		if cached.Expiration.IsZero() || s.now().Add(linkTokenSkew).Before(cached.Expiration) {
			s.metrics.IncrCacheHit("link_token")
			return &cached, nil
		}
	}
	s.metrics.IncrCacheMiss("link_token")

	start := time.Now()
	tok, err := s.provider.CreateLinkToken(ctx, userID)
	s.metrics.RecordRequestDuration("link_token_create", time.Since(start))
	if err != nil {
		s.metrics.IncrProviderError("link_token_create")
		return nil, fmt.Errorf("create link token: %w", err)
	}

	s.linkTokens.Set(ctx, key, *tok)
	return tok, nil
}

type institutionResult struct {
	accounts []domain.Account
	err      error
}

// Build fetches every linked institution concurrently and reduces the
// accounts to totals. A failing institution is reported in its summary and
// marks the dashboard partial; only store, link token and cancellation
// errors fail the whole build.
func (s *DashboardService) Build(ctx context.Context, userID string) (*domain.Dashboard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Dashboard.Build")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("dashboard", time.Since(start))
	}()

	// --- Step 1: link token + institutions ---
	var (
		linkToken    *domain.LinkToken
		institutions []domain.LinkedInstitution
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tok, err := s.LinkToken(gCtx, userID)
		if err != nil {
			return err
		}
		linkToken = tok
		return nil
	})
	g.Go(func() error {
		list, err := s.store.ListInstitutions(gCtx, userID)
		if err != nil {
			s.logger.Error("failed to list institutions",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return fmt.Errorf("list institutions: %w", err)
		}
		institutions = list
		return nil
	})
	if err := g.Wait(); err != nil {
		s.metrics.IncrDashboard("error")
		return nil, err
	}
	span.SetAttributes(attribute.Int("institutions.count", len(institutions)))

	// --- Step 2: fan out per institution; results keep input order ---
	results := s.fetchAll(ctx, institutions)
	if err := ctx.Err(); err != nil {
		s.metrics.IncrDashboard("error")
		return nil, err
	}

	// --- Step 3: normalize, categorize, aggregate ---
	dash := s.assemble(institutions, results)
	dash.LinkToken = linkToken.LinkToken
	dash.GeneratedAt = s.now().UTC()

	if dash.Partial {
		s.metrics.IncrDashboard("partial")
	} else {
		s.metrics.IncrDashboard("complete")
	}
	return dash, nil
}

func (s *DashboardService) fetchAll(ctx context.Context, institutions []domain.LinkedInstitution) []institutionResult {
	results := make([]institutionResult, len(institutions))

	var g errgroup.Group
	for i, inst := range institutions {
		g.Go(func() error {
			if err := s.bulkhead.Acquire(ctx); err != nil {
				results[i] = institutionResult{err: err}
				return nil
			}
			defer s.bulkhead.Release()

			accounts, err := s.fetchAccounts(ctx, inst)
			results[i] = institutionResult{accounts: accounts, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *DashboardService) fetchAccounts(ctx context.Context, inst domain.LinkedInstitution) ([]domain.Account, error) {
	accessToken, err := s.encryptor.Decrypt(inst.AccessCredential)
	if err != nil {
		return nil, fmt.Errorf("open credential for %s: %w", inst.ID, err)
	}

	start := time.Now()
	accounts, err := s.provider.GetAccounts(ctx, accessToken)
	s.metrics.RecordRequestDuration("accounts_get", time.Since(start))
	if err != nil {
		s.metrics.IncrProviderError("accounts_get")
		return nil, err
	}
	return accounts, nil
}

func (s *DashboardService) assemble(institutions []domain.LinkedInstitution, results []institutionResult) *domain.Dashboard {
	dash := &domain.Dashboard{
		Institutions: make([]domain.InstitutionSummary, 0, len(institutions)),
	}

	var all []domain.CategorizedAccount
	for i, inst := range institutions {
		res := results[i]
		if res.err != nil {
			s.metrics.IncrInstitutionFailure()
			s.logger.Warn("institution fetch failed, dropping from dashboard",
				zap.String("institution_id", inst.ID),
				zap.String("institution", inst.Institution),
				zap.Error(res.err),
			)
			summary := SummarizeInstitution(inst, nil)
			summary.Error = institutionErrorMessage(res.err)
			dash.Institutions = append(dash.Institutions, summary)
			dash.Partial = true
			continue
		}

		normalized := make([]domain.CategorizedAccount, 0, len(res.accounts))
		for _, a := range res.accounts {
			ca := domain.NormalizeAccount(a, inst.Ref())
			if ca.Category == domain.AccountTypeUnclassified {
				s.metrics.IncrUnclassified(a.Type)
				s.logger.Warn("unclassified account type",
					zap.String("institution_id", inst.ID),
					zap.String("account_id", a.AccountID),
					zap.String("type", a.Type),
				)
			}
			if dash.CurrencyCode == "" {
				dash.CurrencyCode = a.CurrencyCode()
			}
			normalized = append(normalized, ca)
		}

		dash.Institutions = append(dash.Institutions, SummarizeInstitution(inst, normalized))
		all = append(all, normalized...)
	}

	if dash.CurrencyCode == "" {
		dash.CurrencyCode = domain.DefaultCurrencyCode
	}

	dash.CategorizedAccounts = Categorize(all)
	dash.Totals = Aggregate(dash.CategorizedAccounts)
	dash.Sections = Sections(dash.CategorizedAccounts, dash.Totals)
	return dash
}

// institutionErrorMessage is what the client sees for a failed institution.
func institutionErrorMessage(err error) string {
	var perr *domain.ErrProvider
	var timeout *domain.ErrTimeout
	var open *domain.ErrCircuitOpen
	switch {
	case errors.As(err, &perr) && perr.Message != "":
		return perr.Message
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return "institution timed out"
	case errors.As(err, &open):
		return "provider temporarily unavailable"
	default:
		return "failed to fetch accounts"
	}
}
