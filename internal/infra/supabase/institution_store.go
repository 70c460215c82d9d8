package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashy-bfa-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var _ port.InstitutionStore = (*Client)(nil)

// ============================================================
// Linked institutions via PostgREST
// ============================================================

type institutionRow struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	ItemID           string    `json:"item_id"`
	Institution      string    `json:"institution"`
	AccessCredential string    `json:"access_credential"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (r institutionRow) toDomain() domain.LinkedInstitution {
	return domain.LinkedInstitution{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		ItemID:           r.ItemID,
		Institution:      r.Institution,
		AccessCredential: r.AccessCredential,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (c *Client) ListInstitutions(ctx context.Context, ownerID string) ([]domain.LinkedInstitution, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListInstitutions")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	var out []domain.LinkedInstitution
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("linked_institutions?owner_id=eq.%s&order=created_at.asc,id.asc", url.QueryEscape(ownerID))
		body, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}

		var rows []institutionRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("decode institutions: %w", err))
		}

		out = make([]domain.LinkedInstitution, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/institutions", Err: err}
	}
	return out, nil
}

// UpsertInstitution looks the item up first so that an existing link only has
// its credential refreshed. A concurrent insert surfaces as 409 and falls back
// to the update path.
func (c *Client) UpsertInstitution(ctx context.Context, inst *domain.LinkedInstitution) (*domain.LinkedInstitution, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertInstitution")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", inst.ItemID))

	existing, err := c.findByItem(ctx, inst.ItemID)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/institutions", Err: err}
	}

	if existing == nil {
		created, err := c.insertInstitution(ctx, inst)
		var serr *statusError
		if errors.As(err, &serr) && serr.Status == http.StatusConflict {
			c.logger.Debug("supabase: institution inserted concurrently, updating", zap.String("item_id", inst.ItemID))
			created, err = c.refreshCredential(ctx, inst)
		}
		if err != nil {
			return nil, &domain.ErrExternalService{Service: "supabase/institutions", Err: err}
		}
		return created, nil
	}

	updated, err := c.refreshCredential(ctx, inst)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/institutions", Err: err}
	}
	return updated, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "linked_institutions?select=id&limit=1", nil)
	return err
}

func (c *Client) findByItem(ctx context.Context, itemID string) (*domain.LinkedInstitution, error) {
	var found *domain.LinkedInstitution
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("linked_institutions?item_id=eq.%s&limit=1", url.QueryEscape(itemID))
		body, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		return decodeFirst(body, &found)
	})
	return found, err
}

func (c *Client) insertInstitution(ctx context.Context, inst *domain.LinkedInstitution) (*domain.LinkedInstitution, error) {
	var created *domain.LinkedInstitution
	body, err := c.doRequest(ctx, http.MethodPost, "linked_institutions", map[string]any{
		"id":                inst.ID,
		"owner_id":          inst.OwnerID,
		"item_id":           inst.ItemID,
		"institution":       inst.Institution,
		"access_credential": inst.AccessCredential,
	})
	if err != nil {
		return nil, err
	}
	if err := decodeFirst(body, &created); err != nil {
		return nil, err
	}
	if created == nil {
		return nil, errors.New("insert returned no row")
	}
	return created, nil
}

func (c *Client) refreshCredential(ctx context.Context, inst *domain.LinkedInstitution) (*domain.LinkedInstitution, error) {
	var updated *domain.LinkedInstitution
	path := fmt.Sprintf("linked_institutions?item_id=eq.%s", url.QueryEscape(inst.ItemID))
	body, err := c.doRequest(ctx, http.MethodPatch, path, map[string]any{
		"access_credential": inst.AccessCredential,
		"updated_at":        time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := decodeFirst(body, &updated); err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &domain.ErrNotFound{Resource: "institution", ID: inst.ItemID}
	}
	return updated, nil
}

func decodeFirst(body []byte, dst **domain.LinkedInstitution) error {
	var rows []institutionRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return resilience.Permanent(fmt.Errorf("decode institution: %w", err))
	}
	if len(rows) == 0 {
		*dst = nil
		return nil
	}
	l := rows[0].toDomain()
	*dst = &l
	return nil
}
