// Package ledger holds the editable obligation table.
//
// Rows are addressed by index for callers and by a stable ID internally, so
// undo history survives row inserts and removals. A synthetic TOTAL row is
// kept after the data rows and is recomputed on every mutation.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/obr-ledger/internal/extract"
	"github.com/dvloznov/obr-ledger/internal/money"
	"github.com/shopspring/decimal"
)

var (
	ErrRowOutOfRange    = errors.New("ledger: row out of range")
	ErrColumnOutOfRange = errors.New("ledger: column out of range")
	ErrTotalRowReadOnly = errors.New("ledger: total row is read-only")
	ErrDerivedColumn    = errors.New("ledger: column is derived and cannot be edited")
)

// Origin tells SetCell whether an edit came from a person or from the program.
type Origin int

const (
	// OriginManual edits are subject to the derived-column rule.
	OriginManual Origin = iota
	// OriginProgrammatic edits may write derived columns.
	OriginProgrammatic
)

// Row is one ledger line.
type Row struct {
	id     uint64
	values [NumColumns]string
}

// ID returns the stable row identifier. The TOTAL row has ID 0.
func (r *Row) ID() uint64 { return r.id }

// Value returns one cell.
func (r *Row) Value(c Column) string { return r.values[c] }

// Values returns a copy of all cells.
func (r *Row) Values() []string {
	out := make([]string, NumColumns)
	copy(out, r.values[:])
	return out
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithActor sets the name written into edit log entries.
func WithActor(actor string) Option {
	return func(l *Ledger) { l.actor = actor }
}

// WithClock overrides the edit log clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is not safe for concurrent use; the session owns it.
type Ledger struct {
	rows     []*Row
	total    *Row
	excluded []uint64
	nextID   uint64
	history  History
	actor    string
	now      func() time.Time
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		nextID: 1,
		actor:  "user",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Len returns the number of data rows.
func (l *Ledger) Len() int { return len(l.rows) }

// HasTotal reports whether the TOTAL row exists.
func (l *Ledger) HasTotal() bool { return l.total != nil }

// RowCount returns the number of rows including TOTAL.
func (l *Ledger) RowCount() int {
	if l.total != nil {
		return len(l.rows) + 1
	}
	return len(l.rows)
}

// AppendRow adds an extracted record and returns its index.
// Payment, Tax and Remarks start empty; Balance is derived.
func (l *Ledger) AppendRow(rec extract.Record) int {
	values := make([]string, NumColumns)
	values[ColFileName] = rec.FileName
	values[ColSerial] = rec.Serial
	values[ColDate] = rec.Date
	values[ColPayee] = rec.Payee
	values[ColParticulars] = rec.Particulars
	values[ColTotalAmount] = rec.TotalAmount
	return l.AppendValues(values)
}

// AppendValues adds a row from raw cell values and returns its index.
func (l *Ledger) AppendValues(values []string) int {
	index := len(l.rows)
	// index is always in range for an append
	_ = l.InsertRowAt(index, values)
	return index
}

// InsertRowAt inserts a row before index. Missing values are left empty and
// extra values are ignored. Structural changes are not recorded in history.
func (l *Ledger) InsertRowAt(index int, values []string) error {
	if index < 0 || index > len(l.rows) {
		return fmt.Errorf("InsertRowAt: index %d: %w", index, ErrRowOutOfRange)
	}

	r := &Row{id: l.nextID}
	l.nextID++
	copy(r.values[:], values)
	recomputeAllDerived(r)

	l.rows = append(l.rows, nil)
	copy(l.rows[index+1:], l.rows[index:])
	l.rows[index] = r

	l.RecomputeTotals()
	return nil
}

// RemoveRow deletes a data row. The TOTAL row cannot be removed.
func (l *Ledger) RemoveRow(index int) error {
	if l.isTotalIndex(index) {
		return fmt.Errorf("RemoveRow: %w", ErrTotalRowReadOnly)
	}
	if index < 0 || index >= len(l.rows) {
		return fmt.Errorf("RemoveRow: index %d: %w", index, ErrRowOutOfRange)
	}

	l.rows = append(l.rows[:index], l.rows[index+1:]...)
	l.RecomputeTotals()
	return nil
}

// RowID returns the stable identifier of a data row.
func (l *Ledger) RowID(row int) (uint64, error) {
	if l.isTotalIndex(row) {
		return 0, fmt.Errorf("RowID: %w", ErrTotalRowReadOnly)
	}
	if row < 0 || row >= len(l.rows) {
		return 0, fmt.Errorf("RowID: row %d: %w", row, ErrRowOutOfRange)
	}
	return l.rows[row].id, nil
}

// IndexOf returns the current index of the row with the given ID.
func (l *Ledger) IndexOf(id uint64) (int, bool) {
	idx, r := l.rowByID(id)
	return idx, r != nil
}

// Cell returns one value. The TOTAL row is readable at index Len().
func (l *Ledger) Cell(row int, col Column) (string, error) {
	if !col.Valid() {
		return "", fmt.Errorf("Cell: column %d: %w", col, ErrColumnOutOfRange)
	}
	if l.isTotalIndex(row) {
		return l.total.values[col], nil
	}
	if row < 0 || row >= len(l.rows) {
		return "", fmt.Errorf("Cell: row %d: %w", row, ErrRowOutOfRange)
	}
	return l.rows[row].values[col], nil
}

// SetCell writes one value and records the edit for undo.
// A new edit clears the redo stack. Writing the current value is a no-op.
func (l *Ledger) SetCell(row int, col Column, value string, origin Origin) error {
	if !col.Valid() {
		return fmt.Errorf("SetCell: column %d: %w", col, ErrColumnOutOfRange)
	}
	if l.isTotalIndex(row) {
		return fmt.Errorf("SetCell: %w", ErrTotalRowReadOnly)
	}
	if row < 0 || row >= len(l.rows) {
		return fmt.Errorf("SetCell: row %d: %w", row, ErrRowOutOfRange)
	}
	if origin == OriginManual && col.Derived() {
		return fmt.Errorf("SetCell: %s: %w", col, ErrDerivedColumn)
	}

	r := l.rows[row]
	if r.values[col] == value {
		return nil
	}

	applied, err := CellEdit{RowID: r.id, Column: col, Next: value}.Apply(l)
	if err != nil {
		return fmt.Errorf("SetCell: %w", err)
	}
	l.history.Record(applied)
	l.logEdit(EntryEdit, applied)
	return nil
}

// Undo reverts the most recent edit. It returns false when there is nothing
// to undo. Edits of rows removed since are discarded.
func (l *Ledger) Undo() bool {
	applied, ok := step(l, &l.history.undo, &l.history.redo)
	if ok {
		l.logEdit(EntryUndo, applied)
	}
	return ok
}

// Redo re-applies the most recently undone edit.
func (l *Ledger) Redo() bool {
	applied, ok := step(l, &l.history.redo, &l.history.undo)
	if ok {
		l.logEdit(EntryRedo, applied)
	}
	return ok
}

// CanUndo reports whether Undo would do anything, ignoring stale entries.
func (l *Ledger) CanUndo() bool { return l.history.CanUndo() }

// CanRedo reports whether Redo would do anything, ignoring stale entries.
func (l *Ledger) CanRedo() bool { return l.history.CanRedo() }

// Log returns the append-only edit log.
func (l *Ledger) Log() []LogEntry { return l.history.Log() }

// RecomputeTotals rebuilds the TOTAL row. Rows with any non-numeric monetary
// cell are left out of every sum and reported by Excluded.
func (l *Ledger) RecomputeTotals() {
	var sums [NumColumns]decimal.Decimal
	l.excluded = l.excluded[:0]

	for _, r := range l.rows {
		var parsed [NumColumns]decimal.Decimal
		valid := true
		for c := Column(0); c < NumColumns; c++ {
			if !c.Monetary() {
				continue
			}
			d, ok := money.Parse(r.values[c])
			if !ok {
				valid = false
				break
			}
			parsed[c] = d
		}
		if !valid {
			l.excluded = append(l.excluded, r.id)
			continue
		}
		for c := Column(0); c < NumColumns; c++ {
			if c.Monetary() {
				sums[c] = sums[c].Add(parsed[c])
			}
		}
	}

	total := &Row{}
	total.values[ColFileName] = TotalLabel
	for c := Column(0); c < NumColumns; c++ {
		if c.Monetary() {
			total.values[c] = money.Format(sums[c])
		}
	}
	l.total = total
}

// Excluded returns the indexes of rows left out of the totals.
func (l *Ledger) Excluded() []int {
	out := make([]int, 0, len(l.excluded))
	for _, id := range l.excluded {
		if idx, r := l.rowByID(id); r != nil {
			out = append(out, idx)
		}
	}
	return out
}

// Rows returns a copy of the table, optionally with TOTAL as the last row.
func (l *Ledger) Rows(includeTotal bool) [][]string {
	out := make([][]string, 0, len(l.rows)+1)
	for _, r := range l.rows {
		out = append(out, r.Values())
	}
	if includeTotal && l.total != nil {
		out = append(out, l.total.Values())
	}
	return out
}

// Total returns a copy of the TOTAL row, or nil before the first recompute.
func (l *Ledger) Total() []string {
	if l.total == nil {
		return nil
	}
	return l.total.Values()
}

// Search returns the indexes of data rows with a cell containing query,
// case-insensitively. An empty query matches nothing.
func (l *Ledger) Search(query string) []int {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var out []int
	for i, r := range l.rows {
		for _, v := range r.values {
			if strings.Contains(strings.ToLower(v), query) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// Reset drops all rows, the TOTAL row and the history.
func (l *Ledger) Reset() {
	l.rows = nil
	l.total = nil
	l.excluded = nil
	l.history.reset()
}

// write is the single path through which cell values change.
func (l *Ledger) write(r *Row, col Column, value string) {
	r.values[col] = value
	recomputeDerived(r, col)
	l.RecomputeTotals()
}

func (l *Ledger) rowByID(id uint64) (int, *Row) {
	for i, r := range l.rows {
		if r.id == id {
			return i, r
		}
	}
	return -1, nil
}

func (l *Ledger) isTotalIndex(row int) bool {
	return l.total != nil && row == len(l.rows)
}

func (l *Ledger) logEdit(kind EntryKind, cmd Command) {
	edit, ok := cmd.(CellEdit)
	if !ok {
		return
	}
	idx, _ := l.rowByID(edit.RowID)
	l.history.append(LogEntry{
		Time:   l.now(),
		Actor:  l.actor,
		Kind:   kind,
		Row:    idx,
		Column: edit.Column,
		Old:    edit.Previous,
		New:    edit.Next,
	})
}
