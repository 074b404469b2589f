package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/obr-ledger/internal/domain"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/logger"
)

// Failure is one document that could not be extracted.
type Failure struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// RunStatus is the progress of an extraction run as seen by the ledger.
type RunStatus struct {
	RunID      string     `json:"run_id"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	LastFile   string     `json:"last_file,omitempty"`
	Failures   []Failure  `json:"failures,omitempty"`
	Done       bool       `json:"done"`
	Cancelled  bool       `json:"cancelled"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (r RunStatus) clone() RunStatus {
	if r.Failures != nil {
		r.Failures = append([]Failure(nil), r.Failures...)
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		r.FinishedAt = &t
	}
	return r
}

// StartExtraction begins a batch run over the documents of lister and
// returns its ID. Only one run may be active. Results are appended to the
// ledger in document order as they arrive. The run outlives ctx; stop it
// with CancelExtraction.
func (s *Session) StartExtraction(ctx context.Context, lister jobs.Lister) (string, error) {
	runID := uuid.New().String()

	err := s.do(ctx, func() error {
		if s.current != "" {
			return ErrRunInProgress
		}
		s.current = runID
		s.runs[runID] = &run{
			status: RunStatus{RunID: runID, StartedAt: s.now()},
			done:   make(chan struct{}),
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("StartExtraction: %w", err)
	}

	s.logFor(ctx).Info().Str("run_id", runID).Msg("Extraction run started")
	events := s.runner.Run(context.WithoutCancel(ctx), runID, &recordingLister{session: s, runID: runID, inner: lister})
	go s.forward(runID, events)
	return runID, nil
}

// CancelExtraction asks the run to stop after the document in flight.
// Cancelling a finished run is a no-op.
func (s *Session) CancelExtraction(ctx context.Context, runID string) error {
	var active bool
	err := s.do(ctx, func() error {
		if _, ok := s.runs[runID]; !ok {
			return ErrUnknownRun
		}
		active = s.current == runID
		return nil
	})
	if err != nil {
		return fmt.Errorf("CancelExtraction: %s: %w", runID, err)
	}
	if !active || !s.runner.Cancel(runID) {
		return nil
	}

	s.logFor(ctx).Info().Str("run_id", runID).Msg("Extraction cancel requested")
	s.activity.Log(logger.ActionExtractionCancelled)
	return nil
}

// Run returns the status of a run.
func (s *Session) Run(runID string) (RunStatus, bool) {
	var (
		status RunStatus
		found  bool
	)
	_ = s.do(context.Background(), func() error {
		if r, ok := s.runs[runID]; ok {
			status, found = r.status.clone(), true
		}
		return nil
	})
	return status, found
}

// Wait blocks until the run has finished and its last result is in the
// ledger, then returns its final status.
func (s *Session) Wait(ctx context.Context, runID string) (RunStatus, error) {
	var done chan struct{}
	err := s.do(ctx, func() error {
		r, ok := s.runs[runID]
		if !ok {
			return ErrUnknownRun
		}
		done = r.done
		return nil
	})
	if err != nil {
		return RunStatus{}, fmt.Errorf("Wait: %s: %w", runID, err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return RunStatus{}, ctx.Err()
	}

	status, _ := s.Run(runID)
	return status, nil
}

// forward applies events in arrival order. It always drains the stream so
// the runner never blocks, even after Close.
func (s *Session) forward(runID string, events <-chan jobs.Event) {
	log := s.log.With().Str("run_id", runID).Logger()
	for ev := range events {
		ev := ev
		if err := s.do(context.Background(), func() error { return s.apply(ev) }); err != nil {
			log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Dropped extraction event")
		}
	}
}

func (s *Session) apply(ev jobs.Event) error {
	r, ok := s.runs[ev.RunID]
	if !ok {
		return ErrUnknownRun
	}
	st := &r.status

	switch ev.Kind {
	case jobs.EventProgress:
		st.LastFile = ev.Name
	case jobs.EventResult:
		s.ledger.AppendRow(*ev.Record)
		st.Processed++
		st.Succeeded++
	case jobs.EventError:
		st.Processed++
		st.Failures = append(st.Failures, Failure{Index: ev.Index, Name: ev.Name, Message: errMessage(ev.Err)})
	case jobs.EventFailed:
		st.Error = errMessage(ev.Err)
	case jobs.EventCompleted:
		s.complete(r, ev.Summary)
	}
	return nil
}

func (s *Session) complete(r *run, summary *jobs.Summary) {
	st := &r.status
	finished := s.now()
	st.Done = true
	st.FinishedAt = &finished
	if summary != nil {
		st.Cancelled = summary.Cancelled
		if summary.Total > st.Total {
			st.Total = summary.Total
		}
		if summary.Err != nil && st.Error == "" {
			st.Error = summary.Err.Error()
		}
	}
	if s.current == st.RunID {
		s.current = ""
	}
	close(r.done)

	s.log.Info().
		Str("run_id", st.RunID).
		Int("total", st.Total).
		Int("succeeded", st.Succeeded).
		Int("failed", len(st.Failures)).
		Bool("cancelled", st.Cancelled).
		Msg("Extraction run completed")
	s.activity.Log(logger.ActionExtractionCompleted)
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// recordingLister remembers the listed documents so scans can find them
// again by file name.
type recordingLister struct {
	session *Session
	runID   string
	inner   jobs.Lister
}

func (l *recordingLister) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := l.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	s := l.session
	names := make([]string, len(docs))
	for i, doc := range docs {
		names[i] = doc.Name
	}
	_ = s.do(ctx, func() error {
		for _, doc := range docs {
			s.documents[doc.Name] = doc
		}
		if r, ok := s.runs[l.runID]; ok {
			r.status.Total = len(docs)
		}
		return nil
	})

	s.activity.Log(logger.ActionExtractionStarted, names...)
	return docs, nil
}
