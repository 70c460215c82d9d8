// Package memory is an in-process InstitutionStore for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/port"
)

// InstitutionStore keeps institutions in a map keyed by item id.
type InstitutionStore struct {
	mu     sync.RWMutex
	byItem map[string]domain.LinkedInstitution
	now    func() time.Time
}

var _ port.InstitutionStore = (*InstitutionStore)(nil)

// NewInstitutionStore creates an empty store.
func NewInstitutionStore() *InstitutionStore {
	return &InstitutionStore{
		byItem: make(map[string]domain.LinkedInstitution),
		now:    time.Now,
	}
}

func (s *InstitutionStore) ListInstitutions(_ context.Context, ownerID string) ([]domain.LinkedInstitution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LinkedInstitution, 0)
	for _, inst := range s.byItem {
		if inst.OwnerID == ownerID {
			out = append(out, inst)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InstitutionStore) UpsertInstitution(_ context.Context, inst *domain.LinkedInstitution) (*domain.LinkedInstitution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.byItem[inst.ItemID]; ok {
		existing.AccessCredential = inst.AccessCredential
		existing.UpdatedAt = now
		s.byItem[inst.ItemID] = existing
		return &existing, nil
	}

	stored := *inst
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.byItem[inst.ItemID] = stored
	return &stored, nil
}

func (s *InstitutionStore) Ping(context.Context) error { return nil }
