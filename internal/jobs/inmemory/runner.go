// Package inmemory runs extraction jobs inside the process.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/obr-ledger/internal/extract"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/logger"
)

// eventBuffer lets the worker run a few events ahead of a slow consumer.
const eventBuffer = 16

// Runner processes the documents of a run strictly sequentially on one
// background goroutine per run. It never touches the ledger; results leave
// only as events.
type Runner struct {
	handler jobs.Handler
	store   jobs.JobStore
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	active map[string]*runState
}

type runState struct {
	cancelled atomic.Bool
}

// NewRunner creates a runner. store may be nil.
func NewRunner(handler jobs.Handler, store jobs.JobStore, log zerolog.Logger) *Runner {
	return &Runner{
		handler: handler,
		store:   store,
		log:     log,
		now:     time.Now,
		active:  make(map[string]*runState),
	}
}

// Run starts a run and returns its event stream. The stream ends with exactly
// one EventCompleted and is then closed; the caller must drain it.
// An empty runID is replaced by a generated one.
func (r *Runner) Run(ctx context.Context, runID string, lister jobs.Lister) <-chan jobs.Event {
	if runID == "" {
		runID = uuid.New().String()
	}

	state := &runState{}
	r.mu.Lock()
	r.active[runID] = state
	r.mu.Unlock()

	events := make(chan jobs.Event, eventBuffer)
	go func() {
		defer close(events)
		defer r.forget(runID)

		summary := r.execute(ctx, runID, lister, state, events)
		events <- jobs.Event{Kind: jobs.EventCompleted, RunID: runID, Index: -1, Err: summary.Err, Summary: summary}
	}()
	return events
}

// Cancel asks a run to stop dispatching documents. The document in flight
// finishes normally. It reports whether the run was active.
func (r *Runner) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.active[runID]
	if !ok {
		return false
	}
	state.cancelled.Store(true)
	return true
}

// Active reports whether a run is still executing.
func (r *Runner) Active(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[runID]
	return ok
}

func (r *Runner) forget(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, runID)
}

func (r *Runner) execute(ctx context.Context, runID string, lister jobs.Lister, state *runState, events chan<- jobs.Event) *jobs.Summary {
	ctx = logger.WithRunID(logger.WithContext(ctx, logger.FromContextOr(ctx, r.log)), runID)
	log := logger.FromContext(ctx)
	summary := &jobs.Summary{RunID: runID}

	docs, err := lister.List(ctx)
	if err != nil {
		summary.Err = fmt.Errorf("%w: list documents: %w", jobs.ErrSystemic, err)
		log.Error().Err(err).Msg("Document source unreadable, run halted")
		events <- jobs.Event{Kind: jobs.EventFailed, RunID: runID, Index: -1, Err: summary.Err}
		return summary
	}

	summary.Total = len(docs)
	log.Info().Int("documents", len(docs)).Msg("Extraction run started")

	created := r.now()
	pending := make([]*jobs.ExtractDocumentJob, len(docs))
	for i, doc := range docs {
		pending[i] = &jobs.ExtractDocumentJob{
			JobID:     uuid.New().String(),
			RunID:     runID,
			Index:     i,
			Document:  doc,
			Status:    jobs.JobStatusPending,
			CreatedAt: created,
		}
		r.save(ctx, pending[i])
	}

	for i, job := range pending {
		if state.cancelled.Load() || ctx.Err() != nil {
			summary.Cancelled = true
			r.cancelRemaining(ctx, pending[i:], "run cancelled")
			log.Info().Int("processed", summary.Processed).Msg("Extraction run cancelled")
			break
		}

		events <- jobs.Event{Kind: jobs.EventProgress, RunID: runID, Index: i, Name: job.Document.Name}
		summary.Processed++

		rec, err := r.process(ctx, job)
		if err != nil && errors.Is(err, jobs.ErrSystemic) {
			summary.Err = err
			log.Error().Err(err).Str("file_name", job.Document.Name).Msg("Systemic failure, run halted")
			events <- jobs.Event{Kind: jobs.EventFailed, RunID: runID, Index: i, Name: job.Document.Name, Err: err}
			r.cancelRemaining(ctx, pending[i+1:], "run halted: "+err.Error())
			break
		}
		if err != nil {
			docErr := jobs.DocumentError{Index: i, Name: job.Document.Name, Err: err}
			summary.Failures = append(summary.Failures, docErr)
			log.Warn().Err(err).Str("file_name", job.Document.Name).Int("index", i).Msg("Document extraction failed")
			events <- jobs.Event{Kind: jobs.EventError, RunID: runID, Index: i, Name: job.Document.Name, Err: docErr}
			continue
		}

		summary.Succeeded++
		events <- jobs.Event{Kind: jobs.EventResult, RunID: runID, Index: i, Name: job.Document.Name, Record: rec}
	}

	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed()).
		Bool("cancelled", summary.Cancelled).
		Msg("Extraction run finished")
	return summary
}

// process runs the handler for one job, turning panics into errors. The
// handler's context logger carries the job fields.
func (r *Runner) process(ctx context.Context, job *jobs.ExtractDocumentJob) (rec *extract.Record, err error) {
	ctx = logger.WithContext(ctx, logger.WithFields(logger.FromContextOr(ctx, r.log), map[string]interface{}{
		"job_id":    job.JobID,
		"file_name": job.Document.Name,
		"index":     job.Index,
	}))

	started := r.now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	r.save(ctx, job)

	defer func() {
		if p := recover(); p != nil {
			rec = nil
			err = fmt.Errorf("panic: %v", p)
		}
		if err == nil && rec == nil {
			err = errors.New("handler returned no record")
		}

		completed := r.now()
		job.CompletedAt = &completed
		if err != nil {
			job.Status = jobs.JobStatusFailed
			job.Error = err.Error()
		} else {
			job.Status = jobs.JobStatusCompleted
		}
		r.save(ctx, job)
	}()

	return r.handler(ctx, job)
}

func (r *Runner) cancelRemaining(ctx context.Context, remaining []*jobs.ExtractDocumentJob, reason string) {
	for _, job := range remaining {
		job.Status = jobs.JobStatusCancelled
		job.Error = reason
		if r.store == nil {
			continue
		}
		if err := r.store.UpdateJobStatus(context.WithoutCancel(ctx), job.JobID, jobs.JobStatusCancelled, reason); err != nil {
			r.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to mark job cancelled")
		}
	}
}

func (r *Runner) save(ctx context.Context, job *jobs.ExtractDocumentJob) {
	if r.store == nil {
		return
	}
	// The store only tracks state; a failed save never affects the run.
	if err := r.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		r.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}
