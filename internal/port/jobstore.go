package port

import "github.com/convertd/convertd/internal/domain"

// JobStore is the single source of truth for job records. Get and List
// return snapshots; mutation happens only through Update, which applies the
// mutator atomically under the store lock. Implementations must never hold
// the lock across I/O.
type JobStore interface {
	Create(job *domain.Job) error
	Get(id string) (*domain.Job, error)
	// Update applies mutate under the lock and returns a post-mutation
	// snapshot. A missing id returns domain.ErrNotFound; callers racing
	// eviction treat that as a no-op.
	Update(id string, mutate func(*domain.Job)) (*domain.Job, error)
	// Evict removes the record and returns it so the caller can delete the
	// files it referenced.
	Evict(id string) (*domain.Job, error)
	List() []*domain.Job
	Len() int
}
