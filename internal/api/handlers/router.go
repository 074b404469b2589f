package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/obr-ledger/internal/api/middleware"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/session"
)

// RouterDeps are the collaborators behind the HTTP API.
type RouterDeps struct {
	Session *session.Session
	Source  jobs.Lister
	Store   jobs.JobStore
	Log     zerolog.Logger
}

// NewRouter registers every API route and wraps them in the middleware chain.
func NewRouter(deps RouterDeps) http.Handler {
	ledgerHandler := NewLedgerHandler(deps.Session)
	extractionsHandler := NewExtractionsHandler(deps.Session, deps.Source)
	jobsHandler := NewJobsHandler(deps.Store)

	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	// Ledger endpoints
	api.HandleFunc("/ledger", ledgerHandler.GetLedger).Methods(http.MethodGet)
	api.HandleFunc("/ledger/rows", ledgerHandler.AppendRow).Methods(http.MethodPost)
	api.HandleFunc("/ledger/rows/{row:[0-9]+}", ledgerHandler.InsertRow).Methods(http.MethodPost)
	api.HandleFunc("/ledger/rows/{row:[0-9]+}", ledgerHandler.RemoveRow).Methods(http.MethodDelete)
	api.HandleFunc("/ledger/rows/{row:[0-9]+}/cells/{col}", ledgerHandler.SetCell).Methods(http.MethodPut)
	api.HandleFunc("/ledger/rows/{row:[0-9]+}/cells/{col}/scan", ledgerHandler.ScanCell).Methods(http.MethodPost)
	api.HandleFunc("/ledger/undo", ledgerHandler.Undo).Methods(http.MethodPost)
	api.HandleFunc("/ledger/redo", ledgerHandler.Redo).Methods(http.MethodPost)
	api.HandleFunc("/ledger/history", ledgerHandler.History).Methods(http.MethodGet)
	api.HandleFunc("/ledger/search", ledgerHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/ledger/copy", ledgerHandler.Copy).Methods(http.MethodGet)
	api.HandleFunc("/ledger/paste", ledgerHandler.Paste).Methods(http.MethodPost)
	api.HandleFunc("/ledger/export", ledgerHandler.Export).Methods(http.MethodGet)
	api.HandleFunc("/ledger/reset", ledgerHandler.Reset).Methods(http.MethodPost)

	// Extraction endpoints
	api.HandleFunc("/extractions", extractionsHandler.StartExtraction).Methods(http.MethodPost)
	api.HandleFunc("/extractions/{id}", extractionsHandler.GetExtraction).Methods(http.MethodGet)
	api.HandleFunc("/extractions/{id}", extractionsHandler.CancelExtraction).Methods(http.MethodDelete)

	// Jobs endpoints
	api.HandleFunc("/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet)

	return middleware.Recovery(deps.Log)(
		middleware.RequestID(
			middleware.Logger(deps.Log)(
				middleware.CORS(router),
			),
		),
	)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
