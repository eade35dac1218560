package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/infrastructure/logger"
	"github.com/convertd/convertd/internal/port"
)

type batchTask struct {
	jobID string
	index int
}

// BatchProcessor fans independent per-file conversions out to a fixed pool
// of workers over a bounded FIFO queue. Item failures stay isolated; the
// owning job goes terminal once every item has settled, with the
// "any success means done" policy.
type BatchProcessor struct {
	store          port.JobStore
	converter      port.Converter
	packager       *Packager
	events         *EventBus
	archive        port.JobArchive
	queue          chan batchTask
	workers        int
	convertTimeout time.Duration
}

func NewBatchProcessor(
	store port.JobStore,
	converter port.Converter,
	packager *Packager,
	events *EventBus,
	archive port.JobArchive,
	workers int,
	queueCapacity int,
	convertTimeout time.Duration,
) *BatchProcessor {
	return &BatchProcessor{
		store:          store,
		converter:      converter,
		packager:       packager,
		events:         events,
		archive:        archive,
		queue:          make(chan batchTask, queueCapacity),
		workers:        workers,
		convertTimeout: convertTimeout,
	}
}

func (bp *BatchProcessor) Start(ctx context.Context) {
	for i := range bp.workers {
		go bp.runWorker(ctx, i)
	}
	logger.Info.Printf("started %d batch workers", bp.workers)
}

// Enqueue queues one item for processing. A full queue fails fast so the
// caller can surface backpressure instead of dropping work.
func (bp *BatchProcessor) Enqueue(jobID string, index int) error {
	select {
	case bp.queue <- batchTask{jobID: jobID, index: index}:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// QueueDepth reports queued-but-unclaimed items, for health reporting.
func (bp *BatchProcessor) QueueDepth() int {
	return len(bp.queue)
}

func (bp *BatchProcessor) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			logger.Info.Printf("batch worker %d shutting down", id)
			return
		case task := <-bp.queue:
			bp.processTask(ctx, id, task)
		}
	}
}

func (bp *BatchProcessor) processTask(ctx context.Context, workerID int, task batchTask) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("batch worker %d: job %s item %d panicked: %v", workerID, task.jobID, task.index, r)
			bp.FailItem(task.jobID, task.index, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// Claim the item under the store lock: pending -> processing exactly
	// once, even when a racing worker or a cancellation got there first.
	claimed := false
	var input domain.Item
	var workDir string
	var opts domain.Options
	snap, err := bp.store.Update(task.jobID, func(j *domain.Job) {
		if j.IsTerminal() || task.index >= len(j.Items) {
			return
		}
		item := &j.Items[task.index]
		if item.Status != domain.ItemStatusPending {
			return
		}
		item.Status = domain.ItemStatusProcessing
		j.MarkProcessing()
		claimed = true
		input = *item
		workDir = j.WorkDir
		opts = j.Options
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error.Printf("batch worker %d: claim job %s: %v", workerID, task.jobID, err)
		}
		return
	}
	if !claimed {
		logger.Debug.Printf("batch worker %d: job %s item %d already claimed or job terminal", workerID, task.jobID, task.index)
		return
	}
	bp.publishProgress(task.jobID, snap)

	convertCtx := ctx
	if bp.convertTimeout > 0 {
		var cancel context.CancelFunc
		convertCtx, cancel = context.WithTimeout(ctx, bp.convertTimeout)
		defer cancel()
	}

	// Outputs are namespaced per item like the inputs, so same-named files
	// in one batch cannot overwrite each other and concurrent converter
	// invocations never share a scratch directory.
	outputDir := filepath.Join(workDir, "out", strconv.Itoa(task.index))
	artifact, convErr := bp.converter.Convert(convertCtx, input.InputPath, outputDir, opts, nil)

	if convErr != nil {
		bp.FailItem(task.jobID, task.index, convErr.Error())
		bp.discardIfEvicted(task.jobID, workDir)
		return
	}

	finalize := false
	snap, err = bp.store.Update(task.jobID, func(j *domain.Job) {
		item := &j.Items[task.index]
		if item.Status != domain.ItemStatusProcessing {
			return
		}
		item.Status = domain.ItemStatusDone
		item.OutputPath = artifact.Path
		item.OutputName = artifact.DisplayName
		item.ContentType = artifact.ContentType
		j.CompletedItems++
		j.SetProgress(j.SettledItems()*100/j.TotalItems, fmt.Sprintf("%d of %d files processed", j.SettledItems(), j.TotalItems))
		finalize = j.SettledItems() == j.TotalItems && !j.IsTerminal()
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Evicted mid-flight; nothing references these files anymore.
			_ = os.RemoveAll(workDir)
		} else {
			logger.Error.Printf("batch worker %d: record item %d of job %s: %v", workerID, task.index, task.jobID, err)
		}
		return
	}
	bp.publishProgress(task.jobID, snap)

	if finalize {
		bp.finalize(task.jobID)
	}
}

// discardIfEvicted removes work files produced after the owning job was
// evicted, so a racing TTL sweep cannot leave orphans on disk.
func (bp *BatchProcessor) discardIfEvicted(jobID, workDir string) {
	if _, err := bp.store.Get(jobID); errors.Is(err, domain.ErrNotFound) {
		_ = os.RemoveAll(workDir)
	}
}

// FailItem records a failed item and finalizes the job when it was the last
// one outstanding. It is also the path for items that could not be enqueued.
func (bp *BatchProcessor) FailItem(jobID string, index int, msg string) {
	finalize := false
	snap, err := bp.store.Update(jobID, func(j *domain.Job) {
		if index >= len(j.Items) {
			return
		}
		item := &j.Items[index]
		if item.Status.IsTerminal() {
			return
		}
		item.Status = domain.ItemStatusError
		item.ErrorMessage = msg
		j.FailedItems++
		j.SetProgress(j.SettledItems()*100/j.TotalItems, fmt.Sprintf("%d of %d files processed", j.SettledItems(), j.TotalItems))
		finalize = j.SettledItems() == j.TotalItems && !j.IsTerminal()
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error.Printf("record item failure for job %s: %v", jobID, err)
		}
		return
	}
	logger.Warn.Printf("job %s item %d failed: %s", jobID, index, msg)
	bp.publishProgress(jobID, snap)

	if finalize {
		bp.finalize(jobID)
	}
}

// finalize runs on exactly one worker: the one whose update settled the last
// item. Packaging happens outside the store lock.
func (bp *BatchProcessor) finalize(jobID string) {
	snap, err := bp.store.Get(jobID)
	if err != nil {
		return
	}
	if snap.Status == domain.JobStatusCancelled {
		// Results of items that ran to completion are discarded.
		return
	}

	done := snap.DoneItems()
	if len(done) == 0 {
		bp.markError(jobID, "all items failed")
		return
	}

	archivePath := filepath.Join(snap.WorkDir, "result.zip")
	archiveName := fmt.Sprintf("converted_%s.zip", shortID(snap.ID))
	artifact, err := bp.packager.Package(done, archivePath, archiveName)
	if err != nil {
		logger.Error.Printf("packaging job %s: %v", jobID, err)
		bp.markError(jobID, "packaging failed")
		return
	}

	snap, err = bp.store.Update(jobID, func(j *domain.Job) {
		if j.IsTerminal() {
			return
		}
		if len(done) > 1 {
			j.ArchivePath = artifact.Path
		}
		j.MarkDone(artifact)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error.Printf("finalize job %s: %v", jobID, err)
		}
		return
	}
	logger.Info.Printf("job %s done: %d succeeded, %d failed", jobID, snap.CompletedItems, snap.FailedItems)
	bp.publishStatus(jobID, snap)
	bp.record(snap)
}

func (bp *BatchProcessor) markError(jobID, msg string) {
	snap, err := bp.store.Update(jobID, func(j *domain.Job) {
		if j.IsTerminal() {
			return
		}
		j.MarkError(msg)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error.Printf("mark job %s failed: %v", jobID, err)
		}
		return
	}
	bp.publishStatus(jobID, snap)
	bp.record(snap)
}

func (bp *BatchProcessor) publishProgress(jobID string, snap *domain.Job) {
	if bp.events == nil || snap == nil {
		return
	}
	bp.events.Publish(jobID, Event{
		Type:     "progress",
		Status:   string(snap.Status),
		Progress: snap.Progress,
		Message:  snap.Message,
	})
}

func (bp *BatchProcessor) publishStatus(jobID string, snap *domain.Job) {
	if bp.events == nil || snap == nil {
		return
	}
	bp.events.Publish(jobID, Event{
		Type:     "status",
		Status:   string(snap.Status),
		Progress: snap.Progress,
		Message:  snap.Message,
	})
}

func (bp *BatchProcessor) record(snap *domain.Job) {
	if bp.archive == nil || snap == nil || !snap.IsTerminal() {
		return
	}
	if err := bp.archive.Record(domain.ArchiveJob(snap)); err != nil {
		logger.Warn.Printf("archive job %s: %v", snap.ID, err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
