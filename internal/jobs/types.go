// Package jobs defines extraction runs: per-document jobs, the events a run
// emits and the store that tracks job state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/obr-ledger/internal/domain"
	"github.com/dvloznov/obr-ledger/internal/extract"
)

// ErrSystemic marks a failure that halts the whole run, such as an unreadable source.
var ErrSystemic = errors.New("jobs: systemic failure")

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the run was cancelled before the job was dispatched.
	JobStatusCancelled JobStatus = "cancelled"
)

// ExtractDocumentJob represents the extraction of one document within a run.
type ExtractDocumentJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// RunID is the extraction run this job belongs to.
	RunID string `json:"run_id"`

	// Index is the position of the document in the run.
	Index int `json:"index"`

	// Document is the document to extract.
	Document domain.Document `json:"document"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Handler extracts one document. A returned error fails only that document
// unless it wraps ErrSystemic.
type Handler func(ctx context.Context, job *ExtractDocumentJob) (*extract.Record, error)

// Lister enumerates the documents of a run.
type Lister interface {
	List(ctx context.Context) ([]domain.Document, error)
}

// EventKind classifies run events.
type EventKind string

const (
	// EventProgress is emitted before a document is processed.
	EventProgress EventKind = "progress"
	// EventResult carries the record extracted from a document.
	EventResult EventKind = "result"
	// EventError reports a failure of a single document.
	EventError EventKind = "error"
	// EventFailed reports a systemic failure; the run stops.
	EventFailed EventKind = "failed"
	// EventCompleted is always the last event of a run, emitted exactly once.
	EventCompleted EventKind = "completed"
)

// Event is an immutable notification from a run. Events of document i are
// always delivered before those of document i+1.
type Event struct {
	Kind    EventKind       `json:"kind"`
	RunID   string          `json:"run_id"`
	Index   int             `json:"index"`
	Name    string          `json:"name,omitempty"`
	Record  *extract.Record `json:"record,omitempty"`
	Err     error           `json:"-"`
	Summary *Summary        `json:"summary,omitempty"`
}

// DocumentError is a failure of one document.
type DocumentError struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Err   error  `json:"-"`
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e DocumentError) Unwrap() error { return e.Err }

// Summary aggregates a finished run.
type Summary struct {
	RunID     string          `json:"run_id"`
	Total     int             `json:"total"`
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Failures  []DocumentError `json:"failures,omitempty"`
	Cancelled bool            `json:"cancelled"`
	Err       error           `json:"-"`
}

// Failed returns the number of documents that failed.
func (s *Summary) Failed() int {
	return len(s.Failures)
}

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExtractDocumentJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ExtractDocumentJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExtractDocumentJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// RunID filters jobs by extraction run.
	RunID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
