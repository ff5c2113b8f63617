package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
	contractRepo "carelane/internal/domain/repositories/contract"
	contractSvc "carelane/internal/domain/services/contract"
	"carelane/internal/service/generation"
	"carelane/internal/service/workflow"
)

const testSecret = "webhook-secret"

// stubRepo is a minimal in-memory DocumentRepository for handler tests.
type stubRepo struct {
	mu   sync.Mutex
	docs map[string]models.Document
}

func (r *stubRepo) Create(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = *doc
	return nil
}

func (r *stubRepo) GetByID(ctx context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "document not found"}
	}
	copied := doc
	return &copied, nil
}

func (r *stubRepo) GetByEnvelopeID(ctx context.Context, envelopeID string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.EnvelopeID == envelopeID {
			copied := doc
			return &copied, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "no document for envelope"}
}

func (r *stubRepo) Update(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.docs[doc.ID]
	if stored.Version != doc.Version {
		return domain.ErrVersionConflict
	}
	doc.Version++
	r.docs[doc.ID] = *doc
	return nil
}

func (r *stubRepo) ListByState(ctx context.Context, state models.State, limit int) ([]models.Document, error) {
	return r.List(ctx, contractRepo.DocumentFilter{States: []models.State{state}, Limit: limit})
}

func (r *stubRepo) List(ctx context.Context, filter contractRepo.DocumentFilter) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, doc := range r.docs {
		for _, s := range filter.States {
			if doc.State == s {
				out = append(out, doc)
				break
			}
		}
	}
	return out, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, role models.Role, templateID string, inputs map[string]string) (string, error) {
	return "AGREEMENT for " + inputs["name"], nil
}

type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, content, templateID string) (string, error) {
	return "blob-" + templateID, nil
}

type stubSignatures struct{}

func (stubSignatures) CreateEnvelope(ctx context.Context, doc *models.Document, signers []models.Signer) (string, error) {
	return "env-" + doc.ID, nil
}

func (stubSignatures) SigningURL(ctx context.Context, envelopeID string, signer models.Signer) (string, error) {
	return "https://sign.example.com/" + envelopeID, nil
}

func (stubSignatures) EnvelopeStatus(ctx context.Context, envelopeID string) (contractSvc.EnvelopeStatus, error) {
	return contractSvc.EnvelopeSent, nil
}

type stubIndex struct{}

func (stubIndex) Upsert(ctx context.Context, id string, kind models.RecordKind, vector []float32, metadata map[string]string) error {
	return nil
}

func (stubIndex) Query(ctx context.Context, vector []float32, k int) ([]models.ComparisonHit, error) {
	return []models.ComparisonHit{{RecordID: "plan:gold", Score: 0.9}}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func newTestWorkflow(t *testing.T) (*workflow.Service, *stubRepo) {
	t.Helper()
	registry, err := generation.NewRegistry()
	require.NoError(t, err)
	repo := &stubRepo{docs: make(map[string]models.Document)}
	svc := workflow.NewService(
		repo,
		registry,
		stubGenerator{},
		stubRenderer{},
		stubSignatures{},
		stubIndex{},
		stubEmbedder{},
		workflow.Config{RetryBaseDelay: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, repo
}

// sentDoc seeds one document already in SENT state.
func seedSentDoc(repo *stubRepo) models.Document {
	doc := models.Document{
		ID:              "doc-1",
		Role:            models.RolePatient,
		TemplateID:      "T1",
		Content:         "AGREEMENT",
		RenderedBlobRef: "blob-T1",
		EnvelopeID:      "env-1",
		State:           models.StateSent,
		Metadata:        map[string]string{"signer_name": "Jane", "signer_email": "jane@example.com", "signer_client_id": "cu-1"},
		Version:         1,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	repo.docs[doc.ID] = doc
	return doc
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	svc, repo := newTestWorkflow(t)
	seedSentDoc(repo)
	h := NewWebhookHandler(svc, testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := []byte(`{"envelope_id":"env-1","status":"completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/signature", bytes.NewReader(body))
	req.Header.Set(webhookSignatureHeader, signBody(body))
	rec := httptest.NewRecorder()

	h.HandleStatus(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp["document_id"])
	assert.Equal(t, string(models.StateIndexed), resp["state"])
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc, repo := newTestWorkflow(t)
	seedSentDoc(repo)
	h := NewWebhookHandler(svc, testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := []byte(`{"envelope_id":"env-1","status":"completed"}`)

	for name, sig := range map[string]string{
		"missing":  "",
		"garbage":  "not-hex",
		"wrongKey": hex.EncodeToString(hmac.New(sha256.New, []byte("other")).Sum(body)),
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/signature", bytes.NewReader(body))
		if sig != "" {
			req.Header.Set(webhookSignatureHeader, sig)
		}
		rec := httptest.NewRecorder()
		h.HandleStatus(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}

	// The document is untouched.
	doc, err := svc.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateSent, doc.State)
}

func TestWebhookRejectsAllWhenSecretUnset(t *testing.T) {
	svc, repo := newTestWorkflow(t)
	seedSentDoc(repo)
	h := NewWebhookHandler(svc, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := []byte(`{"envelope_id":"env-1","status":"completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/signature", bytes.NewReader(body))
	req.Header.Set(webhookSignatureHeader, signBody(body))
	rec := httptest.NewRecorder()

	h.HandleStatus(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookValidatespayload(t *testing.T) {
	svc, _ := newTestWorkflow(t)
	h := NewWebhookHandler(svc, testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cases := map[string]string{
		"not json":       `{{`,
		"no envelope":    `{"status":"completed"}`,
		"unknown status": `{"envelope_id":"env-1","status":"shredded"}`,
	}
	for name, payload := range cases {
		body := []byte(payload)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/signature", bytes.NewReader(body))
		req.Header.Set(webhookSignatureHeader, signBody(body))
		rec := httptest.NewRecorder()
		h.HandleStatus(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestWebhookUnknownEnvelopeIs404(t *testing.T) {
	svc, _ := newTestWorkflow(t)
	h := NewWebhookHandler(svc, testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := []byte(`{"envelope_id":"env-missing","status":"completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/signature", bytes.NewReader(body))
	req.Header.Set(webhookSignatureHeader, signBody(body))
	rec := httptest.NewRecorder()

	h.HandleStatus(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDocumentAccepted(t *testing.T) {
	svc, _ := newTestWorkflow(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewDocumentHandler(svc, logger)

	body := `{"role":"patient","template_id":"T1","inputs":{"name":"Jane Doe"},"signer":{"name":"Jane Doe","email":"jane@example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()

	h.CreateDocument(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, models.StateRequested, doc.State)

	// The pipeline runs in background; the document reaches SENT.
	assert.Eventually(t, func() bool {
		got, err := svc.GetDocument(context.Background(), doc.ID)
		return err == nil && got.State == models.StateSent
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateDocumentValidationErrors(t *testing.T) {
	svc, _ := newTestWorkflow(t)
	h := NewDocumentHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cases := []string{
		`{"role":"auditor","template_id":"T1","inputs":{"name":"J"},"signer":{"name":"J","email":"j@example.com"}}`,
		`{"role":"patient","template_id":"T1","signer":{"name":"J","email":"j@example.com"}}`,
		`{"role":"patient","template_id":"T1","inputs":{"name":"J"},"signer":{"name":"J","email":"nope"}}`,
	}
	for i, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		h.CreateDocument(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, fmt.Sprintf("case %d: %s", i, rec.Body.String()))
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	svc, _ := newTestWorkflow(t)
	h := NewDocumentHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents/{id}", h.GetDocument)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSigningURL(t *testing.T) {
	svc, repo := newTestWorkflow(t)
	seedSentDoc(repo)
	h := NewDocumentHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents/{id}/signing-url", h.GetSigningURL)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/signing-url", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://sign.example.com/env-1", resp["signing_url"])
}

func TestCompareValidation(t *testing.T) {
	svc, _ := newTestWorkflow(t)
	h := NewComparisonHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, body := range []string{
		`{"query":"","k":5}`,
		`{"query":"deductible","k":0}`,
		`{"query":"deductible","k":-1}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/compare", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		h.Compare(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCompareReturnsHits(t *testing.T) {
	svc, _ := newTestWorkflow(t)
	h := NewComparisonHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/api/compare", bytes.NewReader([]byte(`{"query":"deductible terms","k":3}`)))
	rec := httptest.NewRecorder()
	h.Compare(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []models.ComparisonHit `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "plan:gold", resp.Results[0].RecordID)
}

func TestFailDocumentConflictWhenTerminal(t *testing.T) {
	svc, repo := newTestWorkflow(t)
	doc := seedSentDoc(repo)
	repo.mu.Lock()
	stored := repo.docs[doc.ID]
	stored.State = models.StateDeclined
	repo.docs[doc.ID] = stored
	repo.mu.Unlock()

	h := NewDocumentHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents/{id}/fail", h.FailDocument)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/fail", bytes.NewReader([]byte(`{"reason":"cleanup"}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
