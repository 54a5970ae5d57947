package catalog

import (
	"context"
	"sync"

	"github.com/spigell/joblink/internal/marketplace"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*marketplace.Job
	order []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*marketplace.Job)}
}

func (r *MemoryRepository) Create(_ context.Context, job *marketplace.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return marketplace.NewConflictError("job " + job.ID + " already exists")
	}
	r.jobs[job.ID] = job.Clone()
	r.order = append(r.order, job.ID)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*marketplace.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, marketplace.NewNotFoundError("job", id)
	}
	return job.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, job *marketplace.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return marketplace.NewNotFoundError("job", job.ID)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

// List returns a snapshot of every job in insertion order.
func (r *MemoryRepository) List(_ context.Context) ([]*marketplace.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*marketplace.Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id].Clone())
	}
	return out, nil
}
