package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/sumire/recursiveflow/internal/domain"
)

// JobStore is an in-memory registry of jobs keyed by ID.
// Records are copied on the way in and out; Update is the only way to
// mutate a stored job in place.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.JobContext
	order []string
}

// NewJobStore creates an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.JobContext)}
}

// FindByID returns a snapshot of the job with the given ID.
func (s *JobStore) FindByID(_ context.Context, id string) (*domain.JobContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("find job %q: %w", id, domain.ErrJobNotFound)
	}
	snapshot := job.Clone()
	return &snapshot, nil
}

// Save inserts a job or overwrites the existing record with the same ID.
func (s *JobStore) Save(_ context.Context, job domain.JobContext) error {
	if job.ID == "" {
		return fmt.Errorf("save job: %w: empty id", domain.ErrInvalidInput)
	}

	stored := job.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		s.order = append(s.order, job.ID)
	}
	s.jobs[job.ID] = &stored
	return nil
}

// Exists reports whether a job with the given ID is stored.
func (s *JobStore) Exists(_ context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.jobs[id]
	return ok
}

// List returns snapshots of every stored job in insertion order.
func (s *JobStore) List(_ context.Context) []domain.JobContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.JobContext, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].Clone())
	}
	return out
}

// Update applies fn to the stored job while holding the write lock and
// returns a snapshot of the result. When fn fails, the stored job is left
// untouched.
func (s *JobStore) Update(_ context.Context, id string, fn func(job *domain.JobContext) error) (*domain.JobContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("update job %q: %w", id, domain.ErrJobNotFound)
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.ID = id
	s.jobs[id] = &working

	snapshot := working.Clone()
	return &snapshot, nil
}
