// Package memory provides the in-process JobStore. Job metadata lives only
// in memory; a restart loses in-flight state by design.
package memory

import (
	"sync"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/port"
)

type Store struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
	}
}

func (s *Store) Create(job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store owns its own copy; the caller's pointer stays a snapshot.
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) Get(id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *Store) Update(id string, mutate func(*domain.Job)) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		// A worker may race eviction; the caller logs and moves on.
		return nil, domain.ErrNotFound
	}
	mutate(job)
	return job.Clone(), nil
}

func (s *Store) Evict(id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.jobs, id)
	return job, nil
}

func (s *Store) List() []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

var _ port.JobStore = (*Store)(nil)
