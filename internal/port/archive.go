package port

import "github.com/convertd/convertd/internal/domain"

// JobArchive records terminal jobs for history and stats. Writes are
// best-effort; a failed write is logged by the caller and never affects the
// job lifecycle.
type JobArchive interface {
	Record(job *domain.ArchivedJob) error
	Stats() (*domain.ArchiveStats, error)
	Recent(limit int) ([]*domain.ArchivedJob, error)
	Close() error
}
