package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"carelane/internal/httputil"
	"carelane/internal/service/signature"
	"carelane/internal/service/workflow"
)

const (
	webhookSignatureHeader = "X-Signature"
	webhookEventIDHeader   = "X-Event-Id"
	maxWebhookBodyBytes    = 1 << 20 // 1MB
)

// WebhookHandler ingests signature-provider status callbacks. Payloads
// are authenticated with an HMAC-SHA256 of the raw body; events may
// arrive duplicated or out of order, which the reconciliation layer
// absorbs.
type WebhookHandler struct {
	workflow *workflow.Service
	secret   string
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook ingress handler.
func NewWebhookHandler(workflow *workflow.Service, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		workflow: workflow,
		secret:   secret,
		logger:   logger,
	}
}

type statusEvent struct {
	EnvelopeID string `json:"envelope_id"`
	Status     string `json:"status"`
}

// HandleStatus processes one envelope status callback.
// POST /webhooks/signature
func (h *WebhookHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !h.verifySignature(r.Header.Get(webhookSignatureHeader), rawBody) {
		h.logger.Warn("webhook signature rejected", "event_id", r.Header.Get(webhookEventIDHeader))
		httputil.RespondError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var event statusEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(event.EnvelopeID) == "" {
		httputil.RespondError(w, http.StatusBadRequest, "envelope_id is required")
		return
	}

	status, err := signature.ParseEnvelopeStatus(event.Status)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.workflow.ReconcileEnvelope(r.Context(), event.EnvelopeID, status)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.Info("webhook status processed",
		"event_id", r.Header.Get(webhookEventIDHeader),
		"envelope_id", event.EnvelopeID,
		"status", status,
		"document_state", doc.State,
	)
	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"document_id": doc.ID,
		"state":       string(doc.State),
	})
}

// verifySignature checks the hex HMAC-SHA256 of the raw body.
func (h *WebhookHandler) verifySignature(sigHex string, rawBody []byte) bool {
	if h.secret == "" || strings.TrimSpace(sigHex) == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(sigHex))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}
