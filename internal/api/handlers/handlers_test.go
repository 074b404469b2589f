package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/obr-ledger/internal/domain"
	"github.com/dvloznov/obr-ledger/internal/export"
	"github.com/dvloznov/obr-ledger/internal/extract"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/ocr"
	"github.com/dvloznov/obr-ledger/internal/session"
)

// MockLister is a mock implementation of jobs.Lister for testing.
type MockLister struct {
	ListFunc func(ctx context.Context) ([]domain.Document, error)
}

func (m *MockLister) List(ctx context.Context) ([]domain.Document, error) {
	return m.ListFunc(ctx)
}

type testServer struct {
	handler http.Handler
	session *session.Session
	store   *inmemory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := inmemory.NewStore()
	handler := func(ctx context.Context, job *jobs.ExtractDocumentJob) (*extract.Record, error) {
		return &extract.Record{FileName: job.Document.Name, TotalAmount: "10.00"}, nil
	}
	s := session.New(ledger.New(), inmemory.NewRunner(handler, store, zerolog.Nop()))
	t.Cleanup(func() { _ = s.Close() })

	lister := &MockLister{ListFunc: func(context.Context) ([]domain.Document, error) {
		return []domain.Document{{Name: "a.png"}, {Name: "b.png"}}, nil
	}}

	return &testServer{
		handler: NewRouter(RouterDeps{Session: s, Source: lister, Store: store, Log: zerolog.Nop()}),
		session: s,
		store:   store,
	}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestLedger_EditFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/ledger/rows", `{"values":["a.png","CA-1","","ACME","","100.00"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"row":0}`, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/api/ledger/rows/0/cells/payment", `{"value":"40.00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var cell cellResponse
	decode(t, rec, &cell)
	assert.Equal(t, "40.00", cell.Values[ledger.ColPayment])
	assert.Equal(t, "60.00", cell.Values[ledger.ColBalance])
	assert.Equal(t, "60.00", cell.Total[ledger.ColBalance])

	rec = ts.do(t, http.MethodPost, "/api/ledger/undo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"applied":true,"can_undo":false,"can_redo":true}`, rec.Body.String())

	var view session.View
	decode(t, ts.do(t, http.MethodGet, "/api/ledger", ""), &view)
	assert.Equal(t, "", view.Rows[0][ledger.ColPayment])
	assert.Equal(t, "100.00", view.Rows[0][ledger.ColBalance])

	rec = ts.do(t, http.MethodPost, "/api/ledger/redo", "")
	assert.JSONEq(t, `{"applied":true,"can_undo":true,"can_redo":false}`, rec.Body.String())

	var history struct {
		Entries []ledger.LogEntry `json:"entries"`
		Count   int               `json:"count"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/ledger/history", ""), &history)
	require.Equal(t, 3, history.Count)
	assert.Equal(t, ledger.EntryEdit, history.Entries[0].Kind)
	assert.Equal(t, ledger.EntryUndo, history.Entries[1].Kind)
	assert.Equal(t, ledger.EntryRedo, history.Entries[2].Kind)

	rec = ts.do(t, http.MethodGet, "/api/ledger/copy?top=0&bottom=0&left=payment&right=balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "40.00\t\t60.00\n", rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/ledger/paste?row=0&col=remarks", "checked")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"written":1}`, rec.Body.String())

	var search struct {
		Rows []int `json:"rows"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/ledger/search?q=acme", ""), &search)
	assert.Equal(t, []int{0}, search.Rows)
	decode(t, ts.do(t, http.MethodGet, "/api/ledger/search?q=nothing", ""), &search)
	assert.Empty(t, search.Rows)
}

func TestLedger_Rejections(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/ledger/rows", `{"values":["a.png"]}`).Code)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "derived column", method: http.MethodPut, target: "/api/ledger/rows/0/cells/balance", body: `{"value":"1"}`, want: http.StatusConflict},
		{name: "total row", method: http.MethodPut, target: "/api/ledger/rows/1/cells/payee", body: `{"value":"x"}`, want: http.StatusConflict},
		{name: "row out of range", method: http.MethodPut, target: "/api/ledger/rows/7/cells/payee", body: `{"value":"x"}`, want: http.StatusNotFound},
		{name: "unknown column", method: http.MethodPut, target: "/api/ledger/rows/0/cells/amount", body: `{"value":"x"}`, want: http.StatusBadRequest},
		{name: "bad body", method: http.MethodPut, target: "/api/ledger/rows/0/cells/payee", body: `{`, want: http.StatusBadRequest},
		{name: "remove total row", method: http.MethodDelete, target: "/api/ledger/rows/1", want: http.StatusConflict},
		{name: "remove missing row", method: http.MethodDelete, target: "/api/ledger/rows/9", want: http.StatusNotFound},
		{name: "insert past end", method: http.MethodPost, target: "/api/ledger/rows/5", body: `{"values":[]}`, want: http.StatusNotFound},
		{name: "copy bad range", method: http.MethodGet, target: "/api/ledger/copy?top=1&bottom=0&left=0&right=1", want: http.StatusNotFound},
		{name: "copy missing bounds", method: http.MethodGet, target: "/api/ledger/copy?top=0", want: http.StatusBadRequest},
		{name: "paste outside table", method: http.MethodPost, target: "/api/ledger/paste?row=4&col=payee", body: "x", want: http.StatusNotFound},
		{name: "scan without scanner", method: http.MethodPost, target: "/api/ledger/rows/0/cells/payee/scan", body: `{"x0":0,"y0":0,"x1":10,"y1":10}`, want: http.StatusNotImplemented},
		{name: "scan empty selection", method: http.MethodPost, target: "/api/ledger/rows/0/cells/payee/scan", body: `{"x0":5,"y0":5,"x1":5,"y1":10}`, want: http.StatusBadRequest},
		{name: "unsupported export", method: http.MethodGet, target: "/api/ledger/export?format=docx", want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, target: "/api/ledger/undo", want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestLedger_InsertAndRemove(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/ledger/rows", `{"values":["b.png"]}`)

	rec := ts.do(t, http.MethodPost, "/api/ledger/rows/0", `{"values":["a.png"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view session.View
	decode(t, ts.do(t, http.MethodGet, "/api/ledger", ""), &view)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "a.png", view.Rows[0][ledger.ColFileName])

	rec = ts.do(t, http.MethodDelete, "/api/ledger/rows/0", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	decode(t, ts.do(t, http.MethodGet, "/api/ledger", ""), &view)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "b.png", view.Rows[0][ledger.ColFileName])
}

func TestLedger_ExportAndReset(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/ledger/rows", `{"values":["a.png","","","","","5.00"]}`)

	rec := ts.do(t, http.MethodGet, "/api/ledger/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "File Name,"))
	assert.Contains(t, rec.Body.String(), "TOTAL")

	rec = ts.do(t, http.MethodGet, "/api/ledger/export?format=pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = ts.do(t, http.MethodGet, "/api/ledger/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType(export.FormatXLSX), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	book, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	rows, err := book.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a.png", rows[1][0])
	assert.Equal(t, ledger.TotalLabel, rows[2][0])
	require.NoError(t, book.Close())

	rec = ts.do(t, http.MethodPost, "/api/ledger/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view session.View
	decode(t, ts.do(t, http.MethodGet, "/api/ledger", ""), &view)
	assert.Empty(t, view.Rows)
}

func TestExtractions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/extractions", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]string
	decode(t, rec, &started)
	runID := started["run_id"]
	require.NotEmpty(t, runID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ts.session.Wait(ctx, runID)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/api/extractions/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status session.RunStatus
	decode(t, rec, &status)
	assert.True(t, status.Done)
	assert.Equal(t, 2, status.Succeeded)

	var list struct {
		Jobs  []*jobs.ExtractDocumentJob `json:"jobs"`
		Count int                        `json:"count"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/jobs?run_id="+runID, ""), &list)
	require.Equal(t, 2, list.Count)

	rec = ts.do(t, http.MethodGet, "/api/jobs/"+list.Jobs[0].JobID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/jobs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/extractions/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/extractions/missing", "").Code)
	assert.Equal(t, http.StatusAccepted, ts.do(t, http.MethodDelete, "/api/extractions/"+runID, "").Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: ledger.ErrRowOutOfRange, want: http.StatusNotFound},
		{err: session.ErrUnknownRun, want: http.StatusNotFound},
		{err: ledger.ErrColumnOutOfRange, want: http.StatusBadRequest},
		{err: export.ErrUnsupportedFormat, want: http.StatusBadRequest},
		{err: ledger.ErrDerivedColumn, want: http.StatusConflict},
		{err: session.ErrRunInProgress, want: http.StatusConflict},
		{err: &ocr.DecodeError{MIMEType: "text/plain", Err: ocr.ErrUnsupportedFormat}, want: http.StatusUnsupportedMediaType},
		{err: session.ErrClosed, want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteFailure_UsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), zerolog.New(&buf))
	ctx = logger.WithRequestID(ctx, "req-7")
	req := httptest.NewRequest(http.MethodGet, "/api/ledger", nil).WithContext(ctx)

	t.Run("server error is logged with request id", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		writeFailure(rec, req, errors.New("disk full"), "Failed to export ledger")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "disk full")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "Failed to export ledger", entry["message"])
		assert.Equal(t, "disk full", entry["error"])
		assert.Equal(t, "req-7", entry["request_id"])
	})

	t.Run("client error is not logged", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		writeFailure(rec, req, ledger.ErrRowOutOfRange, "Failed to remove row")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to remove row")
		assert.Empty(t, buf.String())
	})
}
