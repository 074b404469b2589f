package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dvloznov/obr-ledger/internal/api/middleware"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/session"
)

// ExtractionsHandler handles extraction run endpoints.
type ExtractionsHandler struct {
	session *session.Session
	source  jobs.Lister
}

// NewExtractionsHandler creates a new extractions handler. Runs list their
// documents from source.
func NewExtractionsHandler(s *session.Session, source jobs.Lister) *ExtractionsHandler {
	return &ExtractionsHandler{
		session: s,
		source:  source,
	}
}

// StartExtraction handles POST /api/extractions
func (h *ExtractionsHandler) StartExtraction(w http.ResponseWriter, r *http.Request) {
	runID, err := h.session.StartExtraction(r.Context(), h.source)
	if err != nil {
		writeFailure(w, r, err, "Failed to start extraction")
		return
	}

	logger.FromContext(r.Context()).Info().Str("run_id", runID).Msg("Extraction run accepted")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(jobs.JobStatusRunning),
	})
}

// GetExtraction handles GET /api/extractions/{id}
func (h *ExtractionsHandler) GetExtraction(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	status, ok := h.session.Run(runID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Extraction run not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, status)
}

// CancelExtraction handles DELETE /api/extractions/{id}
func (h *ExtractionsHandler) CancelExtraction(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if err := h.session.CancelExtraction(r.Context(), runID); err != nil {
		writeFailure(w, r, err, "Failed to cancel extraction")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "cancelling",
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{
		store: store,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := mux.Vars(r)["id"]

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		logger.FromContext(ctx).Debug().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		RunID:  query.Get("run_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.ExtractDocumentJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
