package job

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[Key]*Job
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[Key]*Job),
	}
}

// Save stores a clone of job. Jobs without a provider id are ignored since
// they have no identity yet.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()
	if snapshot.ID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[Key{Provider: snapshot.Provider, ID: snapshot.ID}] = snapshot
	return nil
}

// FindByKey returns a clone of the job stored under key.
func (r *MemoryRepository) FindByKey(_ context.Context, key Key) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[key]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns clones of all jobs ordered by submission time.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(a, b int) bool {
		if result[a].SubmittedAt.Equal(result[b].SubmittedAt) {
			return result[a].Key().String() < result[b].Key().String()
		}
		return result[a].SubmittedAt.Before(result[b].SubmittedAt)
	})
	return result, nil
}
