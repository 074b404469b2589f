package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dvloznov/obr-ledger/internal/api/middleware"
	"github.com/dvloznov/obr-ledger/internal/export"
	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/ocr"
	"github.com/dvloznov/obr-ledger/internal/session"
)

// maxBodyBytes bounds JSON and paste request bodies.
const maxBodyBytes = 1 << 20

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrRowOutOfRange), errors.Is(err, session.ErrUnknownRun):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrColumnOutOfRange), errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrTotalRowReadOnly),
		errors.Is(err, ledger.ErrDerivedColumn),
		errors.Is(err, session.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrNoScanner):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure reports err to the client. Client errors carry the error text;
// server errors are logged through the request logger and answered with
// message only.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error().Err(err).Int("status", status).Msg(message)
		middleware.WriteError(w, status, message)
		return
	}
	middleware.WriteError(w, status, fmt.Sprintf("%s: %v", message, err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func rowVar(w http.ResponseWriter, r *http.Request) (int, bool) {
	row, err := strconv.Atoi(mux.Vars(r)["row"])
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid row")
		return 0, false
	}
	return row, true
}

func colVar(w http.ResponseWriter, r *http.Request) (ledger.Column, bool) {
	return parseColumn(w, mux.Vars(r)["col"])
}

func parseColumn(w http.ResponseWriter, s string) (ledger.Column, bool) {
	col, ok := ledger.ParseColumn(s)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid column %q", s))
		return 0, false
	}
	return col, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return n, true
}
