package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"carelane/internal/httputil"
	"carelane/internal/service/workflow"
)

// ComparisonHandler serves similarity queries and re-indexing.
type ComparisonHandler struct {
	workflow *workflow.Service
	logger   *slog.Logger
}

// NewComparisonHandler creates a new comparison handler
func NewComparisonHandler(workflow *workflow.Service, logger *slog.Logger) *ComparisonHandler {
	return &ComparisonHandler{
		workflow: workflow,
		logger:   logger,
	}
}

type compareRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (r compareRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.K, validation.Required, validation.Min(1)),
	)
}

// Compare runs a read-only similarity query over indexed documents and
// reference insurance plans.
// POST /api/compare
func (h *ComparisonHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := h.workflow.Compare(r.Context(), req.Query, req.K)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"results": hits})
}

// Reindex rebuilds comparison records for all signed documents.
// POST /api/reindex
func (h *ComparisonHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	count, err := h.workflow.Reindex(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.Info("reindex completed", "documents", count)
	httputil.RespondJSON(w, http.StatusOK, map[string]int{"indexed": count})
}
