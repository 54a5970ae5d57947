package profiles

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/spigell/joblink/internal/marketplace"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*marketplace.Profile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: make(map[string]*marketplace.Profile)}
}

func (r *MemoryRepository) Create(_ context.Context, p *marketplace.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; ok {
		return marketplace.NewConflictError("profile " + p.ID + " already exists")
	}
	r.profiles[p.ID] = p.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*marketplace.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, marketplace.NewNotFoundError("profile", id)
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, p *marketplace.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; !ok {
		return marketplace.NewNotFoundError("profile", p.ID)
	}
	r.profiles[p.ID] = p.Clone()
	return nil
}

func (r *MemoryRepository) List(_ context.Context, role marketplace.Role) ([]*marketplace.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*marketplace.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		if role != "" && p.Role != role {
			continue
		}
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *marketplace.Profile) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
