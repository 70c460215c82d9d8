// Package postgres stores linked institutions in PostgreSQL through pgx.
//
// Expected table:
//
//	CREATE TABLE linked_institutions (
//	    id                uuid PRIMARY KEY,
//	    owner_id          text NOT NULL,
//	    item_id           text NOT NULL UNIQUE,
//	    institution       text NOT NULL,
//	    access_credential text NOT NULL,
//	    created_at        timestamptz NOT NULL DEFAULT now(),
//	    updated_at        timestamptz NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("postgres")

// InstitutionStore implements port.InstitutionStore.
type InstitutionStore struct {
	db *pgxpool.Pool
}

var _ port.InstitutionStore = (*InstitutionStore)(nil)

// NewPool opens a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewInstitutionStore wraps an open pool.
func NewInstitutionStore(db *pgxpool.Pool) *InstitutionStore {
	return &InstitutionStore{db: db}
}

const institutionColumns = `id, owner_id, item_id, institution, access_credential, created_at, updated_at`

func (s *InstitutionStore) ListInstitutions(ctx context.Context, ownerID string) ([]domain.LinkedInstitution, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListInstitutions")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	rows, err := s.db.Query(ctx, `
		SELECT `+institutionColumns+`
		FROM linked_institutions
		WHERE owner_id = $1
		ORDER BY created_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query institutions: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanInstitution)
	if err != nil {
		return nil, fmt.Errorf("scan institutions: %w", err)
	}
	if out == nil {
		out = []domain.LinkedInstitution{}
	}
	return out, nil
}

func (s *InstitutionStore) UpsertInstitution(ctx context.Context, inst *domain.LinkedInstitution) (*domain.LinkedInstitution, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertInstitution")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", inst.ItemID))

	rows, err := s.db.Query(ctx, `
		INSERT INTO linked_institutions (id, owner_id, item_id, institution, access_credential)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id) DO UPDATE SET
			access_credential = EXCLUDED.access_credential,
			updated_at = now()
		RETURNING `+institutionColumns,
		inst.ID, inst.OwnerID, inst.ItemID, inst.Institution, inst.AccessCredential,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert institution: %w", err)
	}

	stored, err := pgx.CollectExactlyOneRow(rows, scanInstitution)
	if err != nil {
		return nil, fmt.Errorf("upsert institution: %w", err)
	}
	return &stored, nil
}

func (s *InstitutionStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanInstitution(row pgx.CollectableRow) (domain.LinkedInstitution, error) {
	var l domain.LinkedInstitution
	err := row.Scan(&l.ID, &l.OwnerID, &l.ItemID, &l.Institution, &l.AccessCredential, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
