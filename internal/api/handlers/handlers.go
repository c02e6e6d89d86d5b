package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/statement-reconciler/internal/api/middleware"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/provenance"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
)

// ImportsHandler accepts parsed statement batches and runs them through the
// reconciliation pipeline.
type ImportsHandler struct {
	coordinator *reconcile.Coordinator
	provenance  *provenance.Service
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(coordinator *reconcile.Coordinator, prov *provenance.Service) *ImportsHandler {
	return &ImportsHandler{
		coordinator: coordinator,
		provenance:  prov,
	}
}

// Import handles POST /api/imports. The body is a parser output: raw
// transaction records plus the statement metadata block.
func (h *ImportsHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing user id")
		return
	}

	var parse domain.ParseResult
	if err := json.NewDecoder(r.Body).Decode(&parse); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, runID, err := h.provenance.Open(ctx, userID, &parse)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open provenance document")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record document")
		return
	}

	result, importErr := h.coordinator.Import(ctx, userID, parse.Transactions, parse.Metadata, doc.DocumentID)

	// Parser temp files must outlive any deferred categorization.
	if result != nil && result.BackgroundCategorization != nil && result.BackgroundCategorization.Started {
		h.provenance.Retain(doc.DocumentID)
	}

	h.provenance.Finish(ctx, doc, runID, result, importErr)
	h.provenance.Release(ctx, doc.DocumentID)

	if importErr != nil {
		log.Error().Err(importErr).Str("document_id", doc.DocumentID).Msg("Import failed")
		if errors.Is(importErr, domain.ErrStoreUnavailable) {
			middleware.WriteError(w, http.StatusServiceUnavailable, "Transaction store unavailable")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Import failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// JobsHandler serves background categorization job status.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job.View())
}

// HealthHandler serves the liveness probe.
type HealthHandler struct{}

// Health handles GET /healthz
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
