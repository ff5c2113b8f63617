package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"carelane/internal/httputil"
	"carelane/internal/service/workflow"
)

// processTimeout bounds one background pipeline run. Generation and
// envelope creation retries happen inside this window.
const processTimeout = 5 * time.Minute

// DocumentHandler handles document HTTP requests
type DocumentHandler struct {
	workflow *workflow.Service
	logger   *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(workflow *workflow.Service, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		workflow: workflow,
		logger:   logger,
	}
}

// CreateDocument creates a document and starts its workflow.
// POST /api/documents
// Returns 202: the document is persisted in REQUESTED state and the
// pipeline (generate, render, send for signature) runs in background.
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateDocumentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.workflow.CreateDocument(r.Context(), &req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// The pipeline outlives this request; it gets its own context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if _, err := h.workflow.ProcessDocument(ctx, doc.ID); err != nil {
			h.logger.Warn("document pipeline stopped", "document_id", doc.ID, "error", err)
		}
	}()

	httputil.RespondJSON(w, http.StatusAccepted, doc)
}

// GetDocument retrieves a document's current state.
// GET /api/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	doc, err := h.workflow.GetDocument(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// GetSigningURL issues the embedded signing URL for a SENT document.
// GET /api/documents/{id}/signing-url
// The URL is single-use and time-limited; it is never stored.
func (h *DocumentHandler) GetSigningURL(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	url, err := h.workflow.SigningURL(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"signing_url": url})
}

// FailDocument administratively fails a non-terminal document.
// POST /api/documents/{id}/fail
func (h *DocumentHandler) FailDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	doc, err := h.workflow.FailDocument(r.Context(), id, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// IndexDocument triggers comparison indexing of a SIGNED document.
// POST /api/documents/{id}/index
func (h *DocumentHandler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	doc, err := h.workflow.IndexDocument(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// HealthCheck reports liveness.
// GET /health
func (h *DocumentHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
