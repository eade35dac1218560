package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobKindSingle JobKind = "single"
	JobKindBatch  JobKind = "batch"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusDone       ItemStatus = "done"
	ItemStatusError      ItemStatus = "error"
	ItemStatusCancelled  ItemStatus = "cancelled"
)

// Artifact is the downloadable result of a conversion.
type Artifact struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	ContentType string `json:"content_type"`
}

// Options carries the conversion parameters the client requested. The job
// core passes them through to the converter unexamined except for Format.
type Options struct {
	Format string            `json:"format"`
	Params map[string]string `json:"params,omitempty"`
}

// Item is one file inside a batch job.
type Item struct {
	Index        int        `json:"index"`
	Status       ItemStatus `json:"status"`
	InputPath    string     `json:"input_path"`
	DisplayName  string     `json:"display_name"`
	OutputPath   string     `json:"output_path"`
	OutputName   string     `json:"output_name"`
	ContentType  string     `json:"content_type"`
	ErrorMessage string     `json:"error_message"`
}

// Job is the state container for one tracked unit of work. Records are owned
// by the JobStore; everything outside the store holds snapshots only.
type Job struct {
	ID          string    `json:"id"`
	Kind        JobKind   `json:"kind"`
	WorkDir     string    `json:"work_dir"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	InputPath    string    `json:"input_path"`
	InputName    string    `json:"input_name"`
	Options      Options   `json:"options"`
	Result       *Artifact `json:"result,omitempty"`
	ErrorMessage string    `json:"error_message"`

	// Batch-only fields
	Items          []Item `json:"items,omitempty"`
	TotalItems     int    `json:"total_items"`
	CompletedItems int    `json:"completed_items"`
	FailedItems    int    `json:"failed_items"`
	ArchivePath    string `json:"archive_path"`
}

// NewJob allocates a pending job with a fresh id. Inputs are attached once
// the uploads have been saved under the job's working directory.
func NewJob(kind JobKind, opts Options) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
		Options:   opts,
	}
}

// AttachInput records the saved upload for a single-file job.
func (j *Job) AttachInput(path, name string) {
	j.InputPath = path
	j.InputName = name
}

// AttachItems records the saved uploads for a batch job, fixing item order.
func (j *Job) AttachItems(items []Item) {
	for i := range items {
		items[i].Index = i
		items[i].Status = ItemStatusPending
	}
	j.Items = items
	j.TotalItems = len(items)
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError || s == JobStatusCancelled
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusDone || s == ItemStatusError || s == ItemStatusCancelled
}

func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

func (j *Job) MarkProcessing() {
	if j.Status != JobStatusPending {
		return
	}
	j.Status = JobStatusProcessing
	j.StartedAt = time.Now()
}

// MarkDone is the only transition that writes progress 100.
func (j *Job) MarkDone(result *Artifact) {
	j.Status = JobStatusDone
	j.Result = result
	j.Progress = 100
	j.Message = "completed"
	j.CompletedAt = time.Now()
}

func (j *Job) MarkError(msg string) {
	j.Status = JobStatusError
	j.ErrorMessage = msg
	j.Message = "failed"
	if j.Progress > 99 {
		j.Progress = 99
	}
	j.CompletedAt = time.Now()
}

func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	j.Message = "cancelled"
	if j.Progress > 99 {
		j.Progress = 99
	}
	j.CompletedAt = time.Now()
	for i := range j.Items {
		if j.Items[i].Status == ItemStatusPending {
			j.Items[i].Status = ItemStatusCancelled
		}
	}
}

// SetProgress clamps percent into [0,99] for non-terminal jobs; 100 is
// reserved for MarkDone.
func (j *Job) SetProgress(percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent == 100 && j.Status != JobStatusDone {
		percent = 99
	}
	j.Progress = percent
	if message != "" {
		j.Message = message
	}
}

// SettledItems counts items that have reached an outcome feeding the
// job-level completion rule. Cancelled items are excluded: a cancelled job
// is already terminal.
func (j *Job) SettledItems() int {
	return j.CompletedItems + j.FailedItems
}

// DoneItems returns the items that produced usable output, in index order.
func (j *Job) DoneItems() []Item {
	var done []Item
	for _, it := range j.Items {
		if it.Status == ItemStatusDone {
			done = append(done, it)
		}
	}
	return done
}

// FilePaths lists every path on disk owned by this job, for deletion at
// eviction time.
func (j *Job) FilePaths() []string {
	var paths []string
	add := func(p string) {
		if p != "" {
			paths = append(paths, p)
		}
	}
	add(j.InputPath)
	add(j.ArchivePath)
	if j.Result != nil {
		add(j.Result.Path)
	}
	for _, it := range j.Items {
		add(it.InputPath)
		add(it.OutputPath)
	}
	return paths
}

// Clone returns a deep copy safe to hand outside the store lock.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.Items != nil {
		c.Items = make([]Item, len(j.Items))
		copy(c.Items, j.Items)
	}
	if j.Options.Params != nil {
		c.Options.Params = make(map[string]string, len(j.Options.Params))
		for k, v := range j.Options.Params {
			c.Options.Params[k] = v
		}
	}
	return &c
}
