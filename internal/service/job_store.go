package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
)

// JobStore keeps finished bulk jobs for later lookup.
type JobStore interface {
	Create(ctx context.Context, job *domain.BulkJob) error
	GetByID(ctx context.Context, id string) (*domain.BulkJob, error)
}

const defaultMemoryJobCapacity = 256

var _ JobStore = (*MemoryJobStore)(nil)

// MemoryJobStore keeps the most recent jobs in process memory.
type MemoryJobStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	jobs     map[string]*domain.BulkJob
}

func NewMemoryJobStore(capacity int) *MemoryJobStore {
	if capacity <= 0 {
		capacity = defaultMemoryJobCapacity
	}
	return &MemoryJobStore{
		capacity: capacity,
		jobs:     make(map[string]*domain.BulkJob, capacity),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job *domain.BulkJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		s.order = append(s.order, job.ID)
	}
	s.jobs[job.ID] = job

	for len(s.order) > s.capacity {
		delete(s.jobs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemoryJobStore) GetByID(_ context.Context, id string) (*domain.BulkJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return job, nil
}
