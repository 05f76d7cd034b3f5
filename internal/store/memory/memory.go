// Package memory provides an in-memory run repository for development and
// single-process deployments without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/store"
)

// Repository stores runs in process memory.
type Repository struct {
	mu   sync.RWMutex
	runs map[string]store.Run
}

var _ store.RunRepository = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{runs: make(map[string]store.Run)}
}

// CreateRun inserts a run record.
func (r *Repository) CreateRun(_ context.Context, run *store.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

// UpdateRun replaces an existing run record.
func (r *Repository) UpdateRun(_ context.Context, run *store.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return store.ErrNotFound
	}
	r.runs[run.ID] = *run
	return nil
}

// GetRunByID fetches a run by identifier.
func (r *Repository) GetRunByID(_ context.Context, id string) (*store.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &run, nil
}

// ListRuns returns runs ordered newest first.
func (r *Repository) ListRuns(_ context.Context, limit int) ([]store.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := make([]store.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
