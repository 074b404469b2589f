package ledger

import (
	"errors"
	"time"
)

// errRowRemoved is returned when a command targets a row that no longer exists.
var errRowRemoved = errors.New("ledger: target row removed")

// Command is a reversible ledger mutation.
type Command interface {
	// Apply performs the mutation and returns the command describing what was
	// actually done, with the value it replaced.
	Apply(l *Ledger) (Command, error)
	// Invert returns the command that reverses this one.
	Invert() Command
}

// CellEdit replaces one cell value. Rows are addressed by their stable ID so
// that inserts and removals do not redirect an edit to a different row.
type CellEdit struct {
	RowID    uint64
	Column   Column
	Previous string
	Next     string
}

// Apply writes Next into the target cell.
func (e CellEdit) Apply(l *Ledger) (Command, error) {
	_, r := l.rowByID(e.RowID)
	if r == nil {
		return nil, errRowRemoved
	}
	current := r.values[e.Column]
	l.write(r, e.Column, e.Next)
	return CellEdit{RowID: e.RowID, Column: e.Column, Previous: current, Next: e.Next}, nil
}

// Invert swaps Previous and Next.
func (e CellEdit) Invert() Command {
	return CellEdit{RowID: e.RowID, Column: e.Column, Previous: e.Next, Next: e.Previous}
}

// EntryKind classifies edit log entries.
type EntryKind string

const (
	EntryEdit EntryKind = "edit"
	EntryUndo EntryKind = "undo"
	EntryRedo EntryKind = "redo"
)

// LogEntry is one line of the append-only edit log.
type LogEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Kind   EntryKind `json:"kind"`
	Row    int       `json:"row"`
	Column Column    `json:"column"`
	Old    string    `json:"old"`
	New    string    `json:"new"`
}

// History keeps the undo and redo stacks plus the edit log.
// A new edit clears the redo stack.
type History struct {
	undo []Command
	redo []Command
	log  []LogEntry
}

// Record pushes an applied edit and invalidates redo.
func (h *History) Record(cmd Command) {
	h.undo = append(h.undo, cmd)
	h.redo = nil
}

// CanUndo reports whether an undo is available.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether a redo is available.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Log returns a copy of the edit log.
func (h *History) Log() []LogEntry {
	out := make([]LogEntry, len(h.log))
	copy(out, h.log)
	return out
}

func (h *History) append(entry LogEntry) {
	h.log = append(h.log, entry)
}

func (h *History) reset() {
	h.undo = nil
	h.redo = nil
	h.log = nil
}

// step pops from one stack, applies the inverse and pushes the applied command
// onto the other. Commands whose row was removed are dropped.
func step(l *Ledger, from, to *[]Command) (Command, bool) {
	for len(*from) > 0 {
		n := len(*from) - 1
		cmd := (*from)[n]
		*from = (*from)[:n]

		applied, err := cmd.Invert().Apply(l)
		if err != nil {
			continue
		}
		*to = append(*to, applied)
		return applied, true
	}
	return nil, false
}
