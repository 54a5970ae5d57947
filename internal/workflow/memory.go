package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/spigell/joblink/internal/marketplace"
)

type pairKey struct {
	jobID    string
	workerID string
}

type MemoryRepository struct {
	mu     sync.RWMutex
	apps   map[string]*marketplace.Application
	byPair map[pairKey]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		apps:   make(map[string]*marketplace.Application),
		byPair: make(map[pairKey]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, app *marketplace.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{jobID: app.JobID, workerID: app.WorkerID}
	if _, ok := r.byPair[key]; ok {
		return marketplace.NewConflictError(fmt.Sprintf("worker %s already applied for job %s", app.WorkerID, app.JobID))
	}
	r.apps[app.ID] = app.Clone()
	r.byPair[key] = app.ID
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*marketplace.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, marketplace.NewNotFoundError("application", id)
	}
	return app.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, app *marketplace.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[app.ID]; !ok {
		return marketplace.NewNotFoundError("application", app.ID)
	}
	r.apps[app.ID] = app.Clone()
	return nil
}

func (r *MemoryRepository) FindByPair(_ context.Context, jobID, workerID string) (*marketplace.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey{jobID: jobID, workerID: workerID}]
	if !ok {
		return nil, marketplace.NewNotFoundError("application", jobID+"/"+workerID)
	}
	return r.apps[id].Clone(), nil
}

func (r *MemoryRepository) ListByWorker(_ context.Context, workerID string) ([]*marketplace.Application, error) {
	return r.list(func(app *marketplace.Application) bool { return app.WorkerID == workerID }), nil
}

func (r *MemoryRepository) ListByJob(_ context.Context, jobID string) ([]*marketplace.Application, error) {
	return r.list(func(app *marketplace.Application) bool { return app.JobID == jobID }), nil
}

func (r *MemoryRepository) list(match func(*marketplace.Application) bool) []*marketplace.Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*marketplace.Application, 0)
	for _, app := range r.apps {
		if match(app) {
			out = append(out, app.Clone())
		}
	}
	return out
}
