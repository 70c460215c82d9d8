// Package plaid is an HTTP client for a Plaid-compatible account-aggregation API.
// It covers the three calls the dashboard needs: link token creation, public
// token exchange and account balance listing.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashy-bfa-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("plaid")

// Environments maps PLAID_ENV values to API hosts.
var Environments = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// Options configures link token requests.
type Options struct {
	ClientID     string
	Secret       string
	ClientName   string
	Products     []string
	CountryCodes []string
	Language     string
}

// Client talks to the aggregation provider. One instance is built at startup
// and injected into the services.
type Client struct {
	httpClient *http.Client
	baseURL    string
	opts       Options
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

var _ port.AggregationProvider = (*Client)(nil)

// NewClient creates a new provider client.
func NewClient(httpClient *http.Client, baseURL string, opts Options, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// --- wire types ---

type linkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type linkTokenCreateRequest struct {
	ClientName   string        `json:"client_name"`
	User         linkTokenUser `json:"user"`
	Products     []string      `json:"products"`
	CountryCodes []string      `json:"country_codes"`
	Language     string        `json:"language"`
}

type publicTokenExchangeRequest struct {
	PublicToken string `json:"public_token"`
}

type accountsGetRequest struct {
	AccessToken string `json:"access_token"`
}

type accountsGetResponse struct {
	Accounts  []domain.Account `json:"accounts"`
	RequestID string           `json:"request_id"`
}

type errorResponse struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

// --- operations ---

// CreateLinkToken issues a link token bound to userID.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*domain.LinkToken, error) {
	ctx, span := tracer.Start(ctx, "Plaid.CreateLinkToken")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	req := linkTokenCreateRequest{
		ClientName:   c.opts.ClientName,
		User:         linkTokenUser{ClientUserID: userID},
		Products:     c.opts.Products,
		CountryCodes: c.opts.CountryCodes,
		Language:     c.opts.Language,
	}

	var out domain.LinkToken
	if err := c.call(ctx, "link_token_create", "/link/token/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangePublicToken swaps a short-lived public token for an access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*domain.TokenExchange, error) {
	ctx, span := tracer.Start(ctx, "Plaid.ExchangePublicToken")
	defer span.End()

	var out domain.TokenExchange
	if err := c.call(ctx, "public_token_exchange", "/item/public_token/exchange", publicTokenExchangeRequest{PublicToken: publicToken}, &out); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("item.id", out.ItemID))
	return &out, nil
}

// GetAccounts lists the accounts and balances of one item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Plaid.GetAccounts")
	defer span.End()

	var out accountsGetResponse
	if err := c.call(ctx, "accounts_get", "/accounts/get", accountsGetRequest{AccessToken: accessToken}, &out); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("accounts.count", len(out.Accounts)))

	if out.Accounts == nil {
		return []domain.Account{}, nil
	}
	return out.Accounts, nil
}

// call runs one POST through the breaker and retry loop and maps failures
// to domain errors.
func (c *Client) call(ctx context.Context, operation, path string, body, out any) error {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.post(ctx, path, body, out)
		})
	})
	if err == nil {
		return nil
	}
	trace.SpanFromContext(ctx).RecordError(err)

	service := "plaid/" + operation
	switch {
	case resilience.IsBreakerOpen(err):
		return &domain.ErrCircuitOpen{Service: service}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: service}
	}

	c.logger.Warn("plaid: call failed",
		zap.String("operation", operation),
		zap.Error(err),
	)
	return &domain.ErrExternalService{Service: service, Err: err}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return resilience.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PLAID-CLIENT-ID", c.opts.ClientID)
	req.Header.Set("PLAID-SECRET", c.opts.Secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		perr := decodeError(resp.StatusCode, raw)
		c.logger.Debug("plaid: non-200 response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", perr.Code),
		)
		// Rate limits and server errors are transient; everything else is the
		// caller's problem and retrying will not help.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return perr
		}
		return resilience.Permanent(perr)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return resilience.Permanent(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

func decodeError(status int, raw []byte) *domain.ErrProvider {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.ErrorCode == "" {
		return &domain.ErrProvider{
			Status:  status,
			Type:    "API_ERROR",
			Code:    http.StatusText(status),
			Message: strings.TrimSpace(string(raw)),
		}
	}
	msg := body.DisplayMessage
	if msg == "" {
		msg = body.ErrorMessage
	}
	return &domain.ErrProvider{
		Status:  status,
		Type:    body.ErrorType,
		Code:    body.ErrorCode,
		Message: msg,
	}
}
