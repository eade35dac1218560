package service

import (
	"errors"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/infrastructure/logger"
	"github.com/convertd/convertd/internal/port"
)

// ProgressTracker writes progress updates through the JobStore and mirrors
// them onto the event bus. Updates to evicted jobs are dropped silently: a
// stale worker must never crash on that race.
type ProgressTracker struct {
	store  port.JobStore
	events *EventBus
}

func NewProgressTracker(store port.JobStore, events *EventBus) *ProgressTracker {
	return &ProgressTracker{store: store, events: events}
}

func (t *ProgressTracker) Set(jobID string, percent int, message string) {
	snap, err := t.store.Update(jobID, func(j *domain.Job) {
		if j.IsTerminal() {
			return
		}
		j.SetProgress(percent, message)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error.Printf("progress update for job %s: %v", jobID, err)
		}
		return
	}
	if t.events != nil {
		t.events.Publish(jobID, Event{
			Type:     "progress",
			Status:   string(snap.Status),
			Progress: snap.Progress,
			Message:  snap.Message,
		})
	}
}

// Func binds the tracker to one job id for handing to a converter.
func (t *ProgressTracker) Func(jobID string) port.ProgressFunc {
	return func(percent int, message string) {
		t.Set(jobID, percent, message)
	}
}
