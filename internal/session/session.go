// Package session owns a ledger and serializes every change to it.
//
// A single goroutine holds the *ledger.Ledger. User edits, extraction events
// and scan results are submitted as closures through Do and applied one at a
// time, in submission order.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/obr-ledger/internal/domain"
	"github.com/dvloznov/obr-ledger/internal/export"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/logger"
)

var (
	ErrClosed        = errors.New("session: closed")
	ErrRunInProgress = errors.New("session: an extraction run is already in progress")
	ErrUnknownRun    = errors.New("session: unknown extraction run")
	ErrNoScanner     = errors.New("session: cell scanning is not configured")
)

// Runner executes extraction runs. inmemory.Runner implements it.
type Runner interface {
	Run(ctx context.Context, runID string, lister jobs.Lister) <-chan jobs.Event
	Cancel(runID string) bool
}

// Scanner recognizes the text inside a region of a document.
type Scanner interface {
	Scan(ctx context.Context, doc domain.Document, rect image.Rectangle) (string, error)
}

// Option configures a Session.
type Option func(*Session)

// WithScanner enables ScanToCell.
func WithScanner(sc Scanner) Option {
	return func(s *Session) { s.scanner = sc }
}

// WithActivity sets the activity logger. The default discards.
func WithActivity(a logger.Activity) Option {
	return func(s *Session) { s.activity = a }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithClock overrides the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is safe for concurrent use.
type Session struct {
	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once

	runner   Runner
	scanner  Scanner
	activity logger.Activity
	log      zerolog.Logger
	now      func() time.Time

	// Owned by the loop goroutine.
	ledger    *ledger.Ledger
	current   string
	runs      map[string]*run
	documents map[string]domain.Document
}

type run struct {
	status RunStatus
	done   chan struct{}
}

// New starts a session around l. Close must be called to stop it.
func New(l *ledger.Ledger, runner Runner, opts ...Option) *Session {
	s := &Session{
		ops:       make(chan func()),
		done:      make(chan struct{}),
		runner:    runner,
		activity:  logger.NopActivity{},
		log:       zerolog.Nop(),
		now:       time.Now,
		ledger:    l,
		runs:      make(map[string]*run),
		documents: make(map[string]domain.Document),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.loop()
	return s
}

func (s *Session) loop() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// Do runs fn on the owning goroutine and returns its error. fn must not
// call back into the session.
func (s *Session) Do(ctx context.Context, fn func(l *ledger.Ledger) error) error {
	return s.do(ctx, func() error { return fn(s.ledger) })
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	op := func() { result <- fn() }

	select {
	case s.ops <- op:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop runs op before taking anything else, so once handed over the
	// mutation lands and its result is reported even if ctx ends meanwhile.
	return <-result
}

// logFor returns the caller's context logger, or the session logger.
func (s *Session) logFor(ctx context.Context) zerolog.Logger {
	return logger.FromContextOr(ctx, s.log)
}

// Close cancels the active run and stops the owning goroutine. Later calls
// fail with ErrClosed.
func (s *Session) Close() error {
	var current string
	_ = s.do(context.Background(), func() error {
		current = s.current
		return nil
	})
	if current != "" {
		s.runner.Cancel(current)
	}

	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// ScanToCell recognizes rect on the document named in row's File Name cell
// and writes the text into col. The OCR runs on the caller's goroutine, so a
// batch run keeps going meanwhile. The row is tracked by ID and may move
// while the scan is in flight.
func (s *Session) ScanToCell(ctx context.Context, row int, col ledger.Column, rect image.Rectangle) (string, error) {
	if s.scanner == nil {
		return "", fmt.Errorf("ScanToCell: %w", ErrNoScanner)
	}
	if !col.Valid() {
		return "", fmt.Errorf("ScanToCell: column %d: %w", col, ledger.ErrColumnOutOfRange)
	}
	if col.Derived() {
		return "", fmt.Errorf("ScanToCell: %s: %w", col, ledger.ErrDerivedColumn)
	}

	var (
		id  uint64
		doc domain.Document
	)
	err := s.do(ctx, func() error {
		var err error
		if id, err = s.ledger.RowID(row); err != nil {
			return err
		}
		name, _ := s.ledger.Cell(row, ledger.ColFileName)
		doc = s.document(name)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ScanToCell: %w", err)
	}

	text, err := s.scanner.Scan(ctx, doc, rect)
	if err != nil {
		return "", fmt.Errorf("ScanToCell: scan %s: %w", doc.Name, err)
	}

	err = s.do(ctx, func() error {
		idx, ok := s.ledger.IndexOf(id)
		if !ok {
			return fmt.Errorf("row was removed during the scan: %w", ledger.ErrRowOutOfRange)
		}
		return s.ledger.SetCell(idx, col, text, ledger.OriginManual)
	})
	if err != nil {
		return "", fmt.Errorf("ScanToCell: %w", err)
	}

	s.logFor(ctx).Info().Str("file_name", doc.Name).Int("row", row).Str("col", col.String()).Msg("Cell filled from scan")
	s.activity.Log(logger.ActionCellScanned, doc.Name)
	return text, nil
}

// document resolves a file name to the document it was extracted from.
// Rows typed in by hand fall back to a bare name.
func (s *Session) document(name string) domain.Document {
	if doc, ok := s.documents[name]; ok {
		return doc
	}
	return domain.Document{Name: name}
}

// View is a point-in-time copy of the ledger.
type View struct {
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
	Total    []string   `json:"total,omitempty"`
	Excluded []int      `json:"excluded,omitempty"`
	CanUndo  bool       `json:"can_undo"`
	CanRedo  bool       `json:"can_redo"`
}

// View returns a snapshot of the ledger.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.Do(ctx, func(l *ledger.Ledger) error {
		v = View{
			Columns:  ledger.Columns(),
			Rows:     l.Rows(false),
			Total:    l.Total(),
			Excluded: l.Excluded(),
			CanUndo:  l.CanUndo(),
			CanRedo:  l.CanRedo(),
		}
		return nil
	})
	return v, err
}

// Table returns the ledger, TOTAL row included, ready for export.
func (s *Session) Table(ctx context.Context) (export.Table, error) {
	var t export.Table
	err := s.Do(ctx, func(l *ledger.Ledger) error {
		t = export.Table{
			Title:    "Obligation Ledger",
			Columns:  ledger.Columns(),
			Rows:     l.Rows(true),
			TotalRow: l.HasTotal(),
		}
		return nil
	})
	return t, err
}

// DataRows returns the data rows without the TOTAL row.
func (s *Session) DataRows(ctx context.Context) ([][]string, error) {
	var rows [][]string
	err := s.Do(ctx, func(l *ledger.Ledger) error {
		rows = l.Rows(false)
		return nil
	})
	return rows, err
}

// Export writes the ledger to path as CSV, XLSX or PDF.
func (s *Session) Export(ctx context.Context, path string) error {
	t, err := s.Table(ctx)
	if err != nil {
		return fmt.Errorf("Export: %w", err)
	}
	if err := export.WriteFile(path, t); err != nil {
		return fmt.Errorf("Export: %w", err)
	}

	s.logFor(ctx).Info().Str("path", path).Int("rows", len(t.Rows)).Msg("Ledger exported")
	s.activity.Log(logger.ActionExportPerformed, path)
	return nil
}

// ExportTo streams the ledger to w in the given export format.
func (s *Session) ExportTo(ctx context.Context, w io.Writer, format string) error {
	t, err := s.Table(ctx)
	if err != nil {
		return fmt.Errorf("ExportTo: %w", err)
	}
	if err := export.Write(w, format, t); err != nil {
		return fmt.Errorf("ExportTo: %w", err)
	}

	s.logFor(ctx).Info().Str("format", format).Int("rows", len(t.Rows)).Msg("Ledger exported")
	s.activity.Log(logger.ActionExportPerformed, "ledger."+format)
	return nil
}

// Reset clears the ledger and its history. It is refused while a run is
// appending rows.
func (s *Session) Reset(ctx context.Context) error {
	err := s.Do(ctx, func(l *ledger.Ledger) error {
		if s.current != "" {
			return ErrRunInProgress
		}
		l.Reset()
		s.documents = make(map[string]domain.Document)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Reset: %w", err)
	}

	s.logFor(ctx).Info().Msg("Ledger reset")
	s.activity.Log(logger.ActionLedgerReset)
	return nil
}
