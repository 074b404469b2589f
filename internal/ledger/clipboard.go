package ledger

import (
	"fmt"
	"strings"
)

// Copy renders the inclusive rectangle [top,bottom]x[left,right] as
// tab-separated, newline-terminated lines. The TOTAL row may be part of the selection.
func (l *Ledger) Copy(top, left, bottom, right int) (string, error) {
	if top > bottom || left > right {
		return "", fmt.Errorf("Copy: empty selection: %w", ErrRowOutOfRange)
	}
	if top < 0 || bottom >= l.RowCount() {
		return "", fmt.Errorf("Copy: rows %d..%d: %w", top, bottom, ErrRowOutOfRange)
	}
	if !Column(left).Valid() || !Column(right).Valid() {
		return "", fmt.Errorf("Copy: columns %d..%d: %w", left, right, ErrColumnOutOfRange)
	}

	var b strings.Builder
	for row := top; row <= bottom; row++ {
		for col := left; col <= right; col++ {
			if col > left {
				b.WriteByte('\t')
			}
			v, _ := l.Cell(row, Column(col))
			b.WriteString(v)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Paste writes tab-separated text starting at (row, col). Targets outside the
// data rows, the TOTAL row and derived columns are skipped. Each written cell
// is a separate undoable edit. It returns the number of cells written.
func (l *Ledger) Paste(row int, col Column, text string) (int, error) {
	if row < 0 || row >= len(l.rows) {
		return 0, fmt.Errorf("Paste: row %d: %w", row, ErrRowOutOfRange)
	}
	if !col.Valid() {
		return 0, fmt.Errorf("Paste: column %d: %w", col, ErrColumnOutOfRange)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return 0, nil
	}

	written := 0
	for i, line := range strings.Split(text, "\n") {
		r := row + i
		if r >= len(l.rows) {
			break
		}
		for j, value := range strings.Split(line, "\t") {
			c := col + Column(j)
			if !c.Valid() || c.Derived() {
				continue
			}
			before := l.rows[r].values[c]
			if err := l.SetCell(r, c, value, OriginProgrammatic); err != nil {
				continue
			}
			if before != value {
				written++
			}
		}
	}
	return written, nil
}
