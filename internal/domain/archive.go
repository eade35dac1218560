package domain

import "time"

// ArchivedJob is the durable record kept for a job after it reaches a
// terminal state. The archive is observational: in-flight state lives only
// in the in-memory store.
type ArchivedJob struct {
	ID             string
	Kind           JobKind
	Status         JobStatus
	ErrorMessage   string
	TotalItems     int
	CompletedItems int
	FailedItems    int
	CreatedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
}

// ArchiveStats aggregates terminal jobs by outcome.
type ArchiveStats struct {
	Done      int64
	Error     int64
	Cancelled int64
}

func ArchiveJob(j *Job) *ArchivedJob {
	var dur time.Duration
	if !j.StartedAt.IsZero() && !j.CompletedAt.IsZero() {
		dur = j.CompletedAt.Sub(j.StartedAt)
	}
	return &ArchivedJob{
		ID:             j.ID,
		Kind:           j.Kind,
		Status:         j.Status,
		ErrorMessage:   j.ErrorMessage,
		TotalItems:     j.TotalItems,
		CompletedItems: j.CompletedItems,
		FailedItems:    j.FailedItems,
		CreatedAt:      j.CreatedAt,
		CompletedAt:    j.CompletedAt,
		Duration:       dur,
	}
}
