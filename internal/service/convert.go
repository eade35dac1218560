package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/infrastructure/logger"
	"github.com/convertd/convertd/internal/port"
)

// Upload is one file received from a client, already validated by the HTTP
// layer. Name is the sanitized display name.
type Upload struct {
	Name string
	Data io.Reader
}

// ConvertService owns the job lifecycle: saving uploads under per-job
// directories, admitting synchronous work, submitting async and batch jobs,
// downloads, cancellation, and eviction.
type ConvertService struct {
	store          port.JobStore
	converter      port.Converter
	executor       *Executor
	batch          *BatchProcessor
	sem            *Semaphore
	tracker        *ProgressTracker
	events         *EventBus
	archive        port.JobArchive
	dataDir        string
	jobTTL         time.Duration
	syncWait       time.Duration
	convertTimeout time.Duration
}

func NewConvertService(
	store port.JobStore,
	converter port.Converter,
	executor *Executor,
	batch *BatchProcessor,
	sem *Semaphore,
	tracker *ProgressTracker,
	events *EventBus,
	archive port.JobArchive,
	dataDir string,
	jobTTL time.Duration,
	syncWait time.Duration,
	convertTimeout time.Duration,
) *ConvertService {
	return &ConvertService{
		store:          store,
		converter:      converter,
		executor:       executor,
		batch:          batch,
		sem:            sem,
		tracker:        tracker,
		events:         events,
		archive:        archive,
		dataDir:        dataDir,
		jobTTL:         jobTTL,
		syncWait:       syncWait,
		convertTimeout: convertTimeout,
	}
}

// ConvertSync runs one conversion inline under the admission semaphore. No
// job record exists for synchronous work; a rejected admission surfaces as
// domain.ErrBusy. The returned cleanup removes the work directory and must
// be called after the artifact has been streamed.
func (s *ConvertService) ConvertSync(ctx context.Context, upload Upload, opts domain.Options) (*domain.Artifact, func(), error) {
	if !s.sem.Acquire(s.syncWait) {
		return nil, nil, domain.ErrBusy
	}
	defer s.sem.Release()

	workDir := filepath.Join(s.dataDir, "sync", uuid.NewString())
	inputPath, err := saveUpload(filepath.Join(workDir, "in"), upload)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, nil, fmt.Errorf("save upload: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn.Printf("remove sync work dir %s: %v", workDir, err)
		}
	}

	convertCtx := ctx
	if s.convertTimeout > 0 {
		var cancel context.CancelFunc
		convertCtx, cancel = context.WithTimeout(ctx, s.convertTimeout)
		defer cancel()
	}

	artifact, err := s.converter.Convert(convertCtx, inputPath, filepath.Join(workDir, "out"), opts, nil)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return artifact, cleanup, nil
}

// SubmitAsync accepts one file, creates a pending job, and hands the
// conversion to the bounded executor. It returns as soon as the work is
// queued.
func (s *ConvertService) SubmitAsync(upload Upload, opts domain.Options) (*domain.Job, error) {
	job := domain.NewJob(domain.JobKindSingle, opts)
	job.WorkDir = filepath.Join(s.dataDir, "jobs", job.ID)

	inputPath, err := saveUpload(filepath.Join(job.WorkDir, "in"), upload)
	if err != nil {
		_ = os.RemoveAll(job.WorkDir)
		return nil, fmt.Errorf("save upload: %w", err)
	}
	job.AttachInput(inputPath, upload.Name)

	if err := s.store.Create(job); err != nil {
		_ = os.RemoveAll(job.WorkDir)
		return nil, err
	}

	if err := s.executor.Submit(job.ID, s.runSingle(job.ID)); err != nil {
		// The record never becomes observable on rejection.
		if _, evictErr := s.store.Evict(job.ID); evictErr != nil {
			logger.Error.Printf("evict rejected job %s: %v", job.ID, evictErr)
		}
		_ = os.RemoveAll(job.WorkDir)
		return nil, domain.ErrBusy
	}

	logger.Info.Printf("job %s queued: file=%s format=%s", job.ID, upload.Name, opts.Format)
	return job, nil
}

// runSingle is the work function the executor runs for one async job. It
// claims the job, invokes the converter with a live progress callback, and
// records the terminal transition. Conversion failures are returned to the
// executor boundary, which marks the job failed.
func (s *ConvertService) runSingle(jobID string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		claimed := false
		var inputPath, workDir string
		var opts domain.Options
		snap, err := s.store.Update(jobID, func(j *domain.Job) {
			if j.Status != domain.JobStatusPending {
				return
			}
			j.MarkProcessing()
			j.Message = "converting"
			claimed = true
			inputPath = j.InputPath
			workDir = j.WorkDir
			opts = j.Options
		})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if !claimed {
			// Cancelled while queued; nothing to do.
			return nil
		}
		s.publishStatus(jobID, snap)

		convertCtx := ctx
		if s.convertTimeout > 0 {
			var cancel context.CancelFunc
			convertCtx, cancel = context.WithTimeout(ctx, s.convertTimeout)
			defer cancel()
		}

		artifact, err := s.converter.Convert(convertCtx, inputPath, filepath.Join(workDir, "out"), opts, s.tracker.Func(jobID))
		if err != nil {
			if _, serr := s.store.Get(jobID); errors.Is(serr, domain.ErrNotFound) {
				// Evicted mid-flight; remove whatever the converter left.
				_ = os.RemoveAll(workDir)
				return nil
			}
			return err
		}

		snap, err = s.store.Update(jobID, func(j *domain.Job) {
			if j.IsTerminal() {
				// Cancelled mid-flight; the result is discarded at eviction.
				return
			}
			j.MarkDone(artifact)
		})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// A TTL sweep evicted the job while it converted; the store
				// no longer owns these files, so delete them here.
				_ = os.RemoveAll(workDir)
				return nil
			}
			return err
		}
		s.publishStatus(jobID, snap)
		s.recordTerminal(snap)
		logger.Info.Printf("job %s done: %s", jobID, artifact.DisplayName)
		return nil
	}
}

// SubmitBatch accepts several files as one batch job and enqueues every item
// on the task queue. Items the queue cannot absorb fail fast and count as
// failed items; the job record is created before any item runs.
func (s *ConvertService) SubmitBatch(uploads []Upload, opts domain.Options) (*domain.Job, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("no files provided")
	}

	job := domain.NewJob(domain.JobKindBatch, opts)
	job.WorkDir = filepath.Join(s.dataDir, "jobs", job.ID)

	items := make([]domain.Item, len(uploads))
	for i, upload := range uploads {
		// One subdirectory per item so duplicate filenames cannot collide.
		inputPath, err := saveUpload(filepath.Join(job.WorkDir, "in", fmt.Sprintf("%d", i)), upload)
		if err != nil {
			_ = os.RemoveAll(job.WorkDir)
			return nil, fmt.Errorf("save upload %s: %w", upload.Name, err)
		}
		items[i] = domain.Item{
			InputPath:   inputPath,
			DisplayName: upload.Name,
		}
	}
	job.AttachItems(items)

	if err := s.store.Create(job); err != nil {
		_ = os.RemoveAll(job.WorkDir)
		return nil, err
	}

	for i := range items {
		if err := s.batch.Enqueue(job.ID, i); err != nil {
			s.batch.FailItem(job.ID, i, "task queue full")
		}
	}

	logger.Info.Printf("batch job %s queued: %d files, format=%s", job.ID, len(items), opts.Format)
	return job, nil
}

// Status returns a snapshot of the job, or domain.ErrNotFound.
func (s *ConvertService) Status(id string) (*domain.Job, error) {
	return s.store.Get(id)
}

// Download returns the packaged artifact for a done job. Not-yet-terminal
// jobs surface domain.ErrNotReady; failed or cancelled jobs have no
// artifact and report their stored error.
func (s *ConvertService) Download(id string) (*domain.Artifact, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case domain.JobStatusDone:
		if job.Result == nil {
			return nil, fmt.Errorf("job %s done without result", id)
		}
		return job.Result, nil
	case domain.JobStatusError:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotReady, job.ErrorMessage)
	case domain.JobStatusCancelled:
		return nil, fmt.Errorf("%w: %w", domain.ErrNotReady, domain.ErrCancelled)
	default:
		return nil, domain.ErrNotReady
	}
}

// FinishDownload runs after a successful stream. Single-file jobs are
// evicted on first download; batch archives stay retrievable until the TTL
// sweep claims them.
func (s *ConvertService) FinishDownload(id string) {
	job, err := s.store.Get(id)
	if err != nil {
		return
	}
	if job.Kind != domain.JobKindSingle {
		return
	}
	if err := s.evict(id); err != nil {
		logger.Error.Printf("evict job %s after download: %v", id, err)
	}
}

// Cancel is cooperative: pending work is skipped, in-flight conversions run
// to completion and their results are discarded.
func (s *ConvertService) Cancel(id string) (*domain.Job, error) {
	snap, err := s.store.Update(id, func(j *domain.Job) {
		if j.IsTerminal() {
			return
		}
		j.MarkCancelled()
	})
	if err != nil {
		return nil, err
	}
	if snap.Status == domain.JobStatusCancelled {
		s.publishStatus(id, snap)
		s.recordTerminal(snap)
		logger.Info.Printf("job %s cancelled", id)
	}
	return snap, nil
}

// Cleanup evicts every job older than the TTL, whatever its state, and
// deletes the files it owned.
func (s *ConvertService) Cleanup() error {
	cutoff := time.Now().Add(-s.jobTTL)
	var firstErr error
	for _, job := range s.store.List() {
		if job.CreatedAt.After(cutoff) {
			continue
		}
		logger.Info.Printf("evicting job %s (created %s)", job.ID, job.CreatedAt.Format(time.RFC3339))
		if err := s.evict(job.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InFlight reports tracked jobs, for the health endpoint.
func (s *ConvertService) InFlight() int {
	return s.store.Len()
}

func (s *ConvertService) evict(id string) error {
	job, err := s.store.Evict(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	for _, p := range job.FilePaths() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn.Printf("remove %s: %v", p, err)
		}
	}
	if job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			logger.Warn.Printf("remove work dir %s: %v", job.WorkDir, err)
		}
	}
	return nil
}

func (s *ConvertService) publishStatus(jobID string, snap *domain.Job) {
	if s.events == nil || snap == nil {
		return
	}
	s.events.Publish(jobID, Event{
		Type:     "status",
		Status:   string(snap.Status),
		Progress: snap.Progress,
		Message:  snap.Message,
	})
}

func (s *ConvertService) recordTerminal(snap *domain.Job) {
	if s.archive == nil || snap == nil || !snap.IsTerminal() {
		return
	}
	if err := s.archive.Record(domain.ArchiveJob(snap)); err != nil {
		logger.Warn.Printf("archive job %s: %v", snap.ID, err)
	}
}

// saveUpload writes the upload under dir using its base name only.
func saveUpload(dir string, upload Upload) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(upload.Name))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, upload.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
