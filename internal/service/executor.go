package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/infrastructure/logger"
	"github.com/convertd/convertd/internal/port"
)

// Executor runs at most N single-file conversions concurrently, queuing
// excess submissions up to the queue capacity. The submitted work reports
// progress and its own terminal transition through the JobStore; the
// executor boundary only catches what escapes (returned errors, panics) and
// records it as a job failure so a worker never dies.
type Executor struct {
	store   port.JobStore
	events  *EventBus
	archive port.JobArchive
	tasks   chan executorTask
	workers int
}

type executorTask struct {
	jobID string
	work  func(ctx context.Context) error
}

func NewExecutor(store port.JobStore, events *EventBus, archive port.JobArchive, workers, queueCapacity int) *Executor {
	return &Executor{
		store:   store,
		events:  events,
		archive: archive,
		tasks:   make(chan executorTask, queueCapacity),
		workers: workers,
	}
}

func (e *Executor) Start(ctx context.Context) {
	for i := range e.workers {
		go e.runWorker(ctx, i)
	}
	logger.Info.Printf("started %d executor workers", e.workers)
}

func (e *Executor) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			logger.Info.Printf("executor worker %d shutting down", id)
			return
		case task := <-e.tasks:
			e.runTask(ctx, id, task)
		}
	}
}

func (e *Executor) runTask(ctx context.Context, workerID int, task executorTask) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("executor worker %d: job %s panicked: %v", workerID, task.jobID, r)
			e.fail(task.jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := task.work(ctx); err != nil {
		logger.Error.Printf("executor worker %d: job %s failed: %v", workerID, task.jobID, err)
		e.fail(task.jobID, err.Error())
	}
}

func (e *Executor) fail(jobID, msg string) {
	snap, err := e.store.Update(jobID, func(j *domain.Job) {
		if j.IsTerminal() {
			return
		}
		j.MarkError(msg)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error.Printf("record failure for job %s: %v", jobID, err)
		}
		return
	}
	if e.events != nil {
		e.events.Publish(jobID, Event{
			Type:     "status",
			Status:   string(snap.Status),
			Progress: snap.Progress,
			Message:  snap.Message,
		})
	}
	if e.archive != nil && snap.IsTerminal() {
		if err := e.archive.Record(domain.ArchiveJob(snap)); err != nil {
			logger.Warn.Printf("archive job %s: %v", jobID, err)
		}
	}
}

// Submit enqueues work for background execution and returns immediately.
// A full queue surfaces as domain.ErrQueueFull, never a silent drop.
func (e *Executor) Submit(jobID string, work func(ctx context.Context) error) error {
	select {
	case e.tasks <- executorTask{jobID: jobID, work: work}:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// QueueDepth reports queued-but-unstarted submissions, for health reporting.
func (e *Executor) QueueDepth() int {
	return len(e.tasks)
}
