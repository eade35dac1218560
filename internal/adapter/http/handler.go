package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/convertd/convertd/internal/adapter/http/validation"
	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/infrastructure/logger"
	"github.com/convertd/convertd/internal/port"
	"github.com/convertd/convertd/internal/service"
)

// JobService is the slice of the conversion service the handlers consume.
type JobService interface {
	ConvertSync(ctx context.Context, upload service.Upload, opts domain.Options) (*domain.Artifact, func(), error)
	SubmitAsync(upload service.Upload, opts domain.Options) (*domain.Job, error)
	SubmitBatch(uploads []service.Upload, opts domain.Options) (*domain.Job, error)
	Status(id string) (*domain.Job, error)
	Download(id string) (*domain.Artifact, error)
	FinishDownload(id string)
	Cancel(id string) (*domain.Job, error)
	InFlight() int
}

// QueueInfo reports worker-pool gauges for the health endpoint. Nil gauge
// functions read as zero.
type QueueInfo struct {
	AsyncWorkers int
	BatchWorkers int
	AsyncDepth   func() int
	BatchDepth   func() int
	SyncInUse    func() int
	SSEClients   func() int
}

func gauge(f func() int) int {
	if f == nil {
		return 0
	}
	return f()
}

type Handlers struct {
	svc       JobService
	archive   port.JobArchive
	queues    QueueInfo
	maxSizeMB int
	startedAt time.Time
}

func NewHandlers(svc JobService, archive port.JobArchive, queues QueueInfo, maxSizeMB int) *Handlers {
	return &Handlers{
		svc:       svc,
		archive:   archive,
		queues:    queues,
		maxSizeMB: maxSizeMB,
		startedAt: time.Now(),
	}
}

type jobResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

type progressResponse struct {
	jobResponse
	TotalFiles     int `json:"total_files"`
	CompletedFiles int `json:"completed_files"`
	FailedFiles    int `json:"failed_files"`
}

func jobToResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Message:  job.Message,
		Error:    job.ErrorMessage,
	}
	if job.Status == domain.JobStatusDone {
		resp.DownloadURL = "/download/" + job.ID
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses without leaking
// internals for unexpected failures.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "server busy, try again later")
	default:
		if ce, ok := domain.AsConversionError(err); ok {
			writeError(w, http.StatusUnprocessableEntity, "conversion failed: "+ce.Message)
			return
		}
		logger.Error.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// formUpload validates one multipart file and wraps it for the service.
func formUpload(header *multipart.FileHeader, file multipart.File) (service.Upload, error) {
	name := validation.SanitizeFilename(header.Filename)
	if !validation.AllowedExtension(name) {
		return service.Upload{}, fmt.Errorf("%w: %s", validation.ErrDisallowedFileType, name)
	}
	if _, allowed, err := validation.ValidateMagicBytes(file); err != nil {
		return service.Upload{}, fmt.Errorf("read upload: %w", err)
	} else if !allowed {
		return service.Upload{}, fmt.Errorf("%w: %s", validation.ErrDisallowedFileType, name)
	}
	return service.Upload{Name: name, Data: file}, nil
}

func (h *Handlers) parseOptions(r *http.Request) domain.Options {
	return domain.Options{Format: r.FormValue("format")}
}

func (h *Handlers) maxBytes() int64 {
	return int64(h.maxSizeMB) * 1024 * 1024
}

// ConvertSync handles POST /convert: block until the conversion finishes and
// stream the artifact back, or 503 when the admission semaphore is busy.
func (h *Handlers) ConvertSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes())
		if err := r.ParseMultipartForm(h.maxBytes()); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "no file provided")
			return
		}
		defer file.Close() //nolint:errcheck

		upload, err := formUpload(header, file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		artifact, cleanup, err := h.svc.ConvertSync(r.Context(), upload, h.parseOptions(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer cleanup()

		w.Header().Set("Content-Type", artifact.ContentType)
		w.Header().Set("Content-Disposition", validation.ContentDisposition(artifact.DisplayName, false))
		http.ServeFile(w, r, artifact.Path)
	}
}

// ConvertAsync handles POST /convert-async: accept the upload, create the
// job, and return 202 immediately.
func (h *Handlers) ConvertAsync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes())
		if err := r.ParseMultipartForm(h.maxBytes()); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "no file provided")
			return
		}
		defer file.Close() //nolint:errcheck

		upload, err := formUpload(header, file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		job, err := h.svc.SubmitAsync(upload, h.parseOptions(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
	}
}

// BatchConvert handles POST /api/batch-convert for multiple files.
func (h *Handlers) BatchConvert() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes())
		if err := r.ParseMultipartForm(h.maxBytes()); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}

		if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
			writeError(w, http.StatusBadRequest, "no files provided")
			return
		}

		var uploads []service.Upload
		var open []multipart.File
		defer func() {
			for _, f := range open {
				_ = f.Close()
			}
		}()

		for _, header := range r.MultipartForm.File["files"] {
			file, err := header.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid file upload")
				return
			}
			open = append(open, file)

			upload, err := formUpload(header, file)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			uploads = append(uploads, upload)
		}

		job, err := h.svc.SubmitBatch(uploads, h.parseOptions(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":      job.ID,
			"files_count": job.TotalItems,
		})
	}
}

// JobStatus handles GET /job/{id}.
func (h *Handlers) JobStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.svc.Status(r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobToResponse(job))
	}
}

// BatchProgress handles GET /api/progress/{id}, adding per-file counters.
func (h *Handlers) BatchProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.svc.Status(r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, progressResponse{
			jobResponse:    jobToResponse(job),
			TotalFiles:     job.TotalItems,
			CompletedFiles: job.CompletedItems,
			FailedFiles:    job.FailedItems,
		})
	}
}

// Download handles GET /download/{id}. Single-file jobs are evicted after a
// successful stream.
func (h *Handlers) Download() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		artifact, err := h.svc.Download(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", artifact.ContentType)
		w.Header().Set("Content-Disposition", validation.ContentDisposition(artifact.DisplayName, false))
		http.ServeFile(w, r, artifact.Path)

		h.svc.FinishDownload(id)
	}
}

// Cancel handles POST /api/cancel/{id}: best-effort cooperative
// cancellation, reporting the job's resulting status.
func (h *Handlers) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.svc.Cancel(r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id": job.ID,
			"status": string(job.Status),
		})
	}
}

// Health handles GET /healthz.
func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"jobs_in_flight": h.svc.InFlight(),
			"async_workers":  h.queues.AsyncWorkers,
			"batch_workers":  h.queues.BatchWorkers,
			"async_queue":    gauge(h.queues.AsyncDepth),
			"batch_queue":    gauge(h.queues.BatchDepth),
			"sync_in_use":    gauge(h.queues.SyncInUse),
			"sse_clients":    gauge(h.queues.SSEClients),
			"uptime":         time.Since(h.startedAt).Round(time.Second).String(),
		})
	}
}

// Stats handles GET /api/stats from the job archive.
func (h *Handlers) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.archive == nil {
			writeError(w, http.StatusNotFound, "archive disabled")
			return
		}
		stats, err := h.archive.Stats()
		if err != nil {
			logger.Error.Printf("archive stats: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{
			"done":      stats.Done,
			"error":     stats.Error,
			"cancelled": stats.Cancelled,
		})
	}
}

// RecentJobs handles GET /api/jobs/recent.
func (h *Handlers) RecentJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.archive == nil {
			writeError(w, http.StatusNotFound, "archive disabled")
			return
		}
		jobs, err := h.archive.Recent(20)
		if err != nil {
			logger.Error.Printf("archive recent: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		type entry struct {
			JobID          string `json:"job_id"`
			Kind           string `json:"kind"`
			Status         string `json:"status"`
			Error          string `json:"error,omitempty"`
			TotalFiles     int    `json:"total_files"`
			CompletedFiles int    `json:"completed_files"`
			FailedFiles    int    `json:"failed_files"`
			CompletedAt    string `json:"completed_at"`
			DurationMS     int64  `json:"duration_ms"`
		}
		out := make([]entry, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, entry{
				JobID:          j.ID,
				Kind:           string(j.Kind),
				Status:         string(j.Status),
				Error:          j.ErrorMessage,
				TotalFiles:     j.TotalItems,
				CompletedFiles: j.CompletedItems,
				FailedFiles:    j.FailedItems,
				CompletedAt:    j.CompletedAt.Format(time.RFC3339),
				DurationMS:     j.Duration.Milliseconds(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
	}
}
