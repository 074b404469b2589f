package handlers

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/obr-ledger/internal/api/middleware"
	"github.com/dvloznov/obr-ledger/internal/export"
	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/session"
)

// LedgerHandler handles ledger endpoints.
type LedgerHandler struct {
	session *session.Session
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(s *session.Session) *LedgerHandler {
	return &LedgerHandler{session: s}
}

// GetLedger handles GET /api/ledger
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	view, err := h.session.View(r.Context())
	if err != nil {
		writeFailure(w, r, err, "Failed to read ledger")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

type rowRequest struct {
	Values []string `json:"values"`
}

// AppendRow handles POST /api/ledger/rows
func (h *LedgerHandler) AppendRow(w http.ResponseWriter, r *http.Request) {
	var req rowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var index int
	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		index = l.AppendValues(req.Values)
		return nil
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to append row")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]int{"row": index})
}

// InsertRow handles POST /api/ledger/rows/{row}
func (h *LedgerHandler) InsertRow(w http.ResponseWriter, r *http.Request) {
	row, ok := rowVar(w, r)
	if !ok {
		return
	}
	var req rowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		return l.InsertRowAt(row, req.Values)
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to insert row")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]int{"row": row})
}

// RemoveRow handles DELETE /api/ledger/rows/{row}
func (h *LedgerHandler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	row, ok := rowVar(w, r)
	if !ok {
		return
	}

	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		return l.RemoveRow(row)
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to remove row")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// cellResponse returns the edited row so clients see derived cells and totals.
type cellResponse struct {
	Row    int      `json:"row"`
	Values []string `json:"values"`
	Total  []string `json:"total,omitempty"`
}

// SetCell handles PUT /api/ledger/rows/{row}/cells/{col}
func (h *LedgerHandler) SetCell(w http.ResponseWriter, r *http.Request) {
	row, ok := rowVar(w, r)
	if !ok {
		return
	}
	col, ok := colVar(w, r)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var resp cellResponse
	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		if err := l.SetCell(row, col, req.Value, ledger.OriginManual); err != nil {
			return err
		}
		resp = cellResponse{Row: row, Values: rowValues(l, row), Total: l.Total()}
		return nil
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to set cell")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

func rowValues(l *ledger.Ledger, row int) []string {
	values := make([]string, ledger.NumColumns)
	for c := range values {
		values[c], _ = l.Cell(row, ledger.Column(c))
	}
	return values
}

// ScanCell handles POST /api/ledger/rows/{row}/cells/{col}/scan
func (h *LedgerHandler) ScanCell(w http.ResponseWriter, r *http.Request) {
	row, ok := rowVar(w, r)
	if !ok {
		return
	}
	col, ok := colVar(w, r)
	if !ok {
		return
	}
	var req struct {
		X0 int `json:"x0"`
		Y0 int `json:"y0"`
		X1 int `json:"x1"`
		Y1 int `json:"y1"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	rect := image.Rect(req.X0, req.Y0, req.X1, req.Y1)
	if rect.Empty() {
		middleware.WriteError(w, http.StatusBadRequest, "Selection is empty")
		return
	}

	text, err := h.session.ScanToCell(r.Context(), row, col, rect)
	if err != nil {
		writeFailure(w, r, err, "Failed to scan cell")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"row":  row,
		"col":  col.String(),
		"text": text,
	})
}

// Undo handles POST /api/ledger/undo
func (h *LedgerHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*ledger.Ledger).Undo)
}

// Redo handles POST /api/ledger/redo
func (h *LedgerHandler) Redo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*ledger.Ledger).Redo)
}

func (h *LedgerHandler) step(w http.ResponseWriter, r *http.Request, fn func(*ledger.Ledger) bool) {
	var applied, canUndo, canRedo bool
	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		applied = fn(l)
		canUndo, canRedo = l.CanUndo(), l.CanRedo()
		return nil
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to apply history step")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{
		"applied":  applied,
		"can_undo": canUndo,
		"can_redo": canRedo,
	})
}

// History handles GET /api/ledger/history
func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	var entries []ledger.LogEntry
	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		entries = l.Log()
		return nil
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to read history")
		return
	}
	if entries == nil {
		entries = []ledger.LogEntry{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// Search handles GET /api/ledger/search?q=
func (h *LedgerHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	var rows []int
	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		rows = l.Search(query)
		return nil
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to search ledger")
		return
	}
	if rows == nil {
		rows = []int{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query": query,
		"rows":  rows,
		"count": len(rows),
	})
}

// Copy handles GET /api/ledger/copy?top=&left=&bottom=&right=
func (h *LedgerHandler) Copy(w http.ResponseWriter, r *http.Request) {
	top, ok := queryInt(w, r, "top")
	if !ok {
		return
	}
	bottom, ok := queryInt(w, r, "bottom")
	if !ok {
		return
	}
	left, ok := parseColumn(w, r.URL.Query().Get("left"))
	if !ok {
		return
	}
	right, ok := parseColumn(w, r.URL.Query().Get("right"))
	if !ok {
		return
	}

	var text string
	err := h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		var err error
		text, err = l.Copy(top, int(left), bottom, int(right))
		return err
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to copy cells")
		return
	}

	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, text)
}

// Paste handles POST /api/ledger/paste?row=&col= with a tab-separated body.
func (h *LedgerHandler) Paste(w http.ResponseWriter, r *http.Request) {
	row, ok := queryInt(w, r, "row")
	if !ok {
		return
	}
	col, ok := parseColumn(w, r.URL.Query().Get("col"))
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var written int
	err = h.session.Do(r.Context(), func(l *ledger.Ledger) error {
		var err error
		written, err = l.Paste(row, col, string(body))
		return err
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to paste cells")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{"written": written})
}

// Export handles GET /api/ledger/export?format=csv|xlsx|pdf
func (h *LedgerHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatCSV
	}
	if !export.Supported(format) {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported export format %q", format))
		return
	}

	var buf bytes.Buffer
	if err := h.session.ExportTo(r.Context(), &buf, format); err != nil {
		writeFailure(w, r, err, "Failed to export ledger")
		return
	}

	filename := fmt.Sprintf("ledger-%s.%s", time.Now().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Reset handles POST /api/ledger/reset
func (h *LedgerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Reset(r.Context()); err != nil {
		writeFailure(w, r, err, "Failed to reset ledger")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
