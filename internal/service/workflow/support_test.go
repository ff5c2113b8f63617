package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
	contractRepo "carelane/internal/domain/repositories/contract"
	contractSvc "carelane/internal/domain/services/contract"
	"carelane/internal/service/generation"
)

// memDocRepo is an in-memory DocumentRepository enforcing the same
// version-conditional update contract as the postgres implementation.
type memDocRepo struct {
	mu   sync.Mutex
	docs map[string]models.Document

	// updateHook, when set, runs before every Update and may return an
	// error to inject (e.g. a version conflict).
	updateHook func(doc *models.Document) error
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{docs: make(map[string]models.Document)}
}

func (r *memDocRepo) Create(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memDocRepo) GetByID(ctx context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "document not found: " + id}
	}
	copied := doc
	return &copied, nil
}

func (r *memDocRepo) GetByEnvelopeID(ctx context.Context, envelopeID string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.EnvelopeID == envelopeID && envelopeID != "" {
			copied := doc
			return &copied, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "no document for envelope " + envelopeID}
}

func (r *memDocRepo) Update(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateHook != nil {
		if err := r.updateHook(doc); err != nil {
			return err
		}
	}
	stored, ok := r.docs[doc.ID]
	if !ok {
		return &domain.NotFoundError{Message: "document not found: " + doc.ID}
	}
	if stored.Version != doc.Version {
		return domain.ErrVersionConflict
	}
	doc.Version++
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memDocRepo) ListByState(ctx context.Context, state models.State, limit int) ([]models.Document, error) {
	return r.List(ctx, contractRepo.DocumentFilter{States: []models.State{state}, Limit: limit})
}

func (r *memDocRepo) List(ctx context.Context, filter contractRepo.DocumentFilter) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, doc := range r.docs {
		if len(filter.States) > 0 {
			match := false
			for _, s := range filter.States {
				if doc.State == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if filter.Role != "" && doc.Role != filter.Role {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// fakeGenerator fails a scripted number of times before succeeding.
type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	content  string
}

func (g *fakeGenerator) Generate(ctx context.Context, role models.Role, templateID string, inputs map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.failures {
		if g.err != nil {
			return "", g.err
		}
		return "", fmt.Errorf("%w: provider timeout", domain.ErrGenerationUnavailable)
	}
	if g.content != "" {
		return g.content, nil
	}
	return fmt.Sprintf("AGREEMENT (%s/%s) for %s", role, templateID, inputs["name"]), nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRenderer) Render(ctx context.Context, content, templateID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return "blob-" + templateID, nil
}

type fakeSignatures struct {
	mu         sync.Mutex
	creates    int
	failures   int
	status     contractSvc.EnvelopeStatus
	statusErr  error
	signingURL string
}

func (s *fakeSignatures) CreateEnvelope(ctx context.Context, doc *models.Document, signers []models.Signer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.creates <= s.failures {
		return "", fmt.Errorf("envelope service unavailable")
	}
	return "E1", nil
}

func (s *fakeSignatures) SigningURL(ctx context.Context, envelopeID string, signer models.Signer) (string, error) {
	if s.signingURL == "" {
		return "https://sign.example.com/" + envelopeID, nil
	}
	return s.signingURL, nil
}

func (s *fakeSignatures) EnvelopeStatus(ctx context.Context, envelopeID string) (contractSvc.EnvelopeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return "", s.statusErr
	}
	return s.status, nil
}

type indexedRecord struct {
	kind     models.RecordKind
	vector   []float32
	metadata map[string]string
}

type fakeIndex struct {
	mu      sync.Mutex
	records map[string]indexedRecord
	upserts int
	hits    []models.ComparisonHit
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: make(map[string]indexedRecord)}
}

func (f *fakeIndex) Upsert(ctx context.Context, id string, kind models.RecordKind, vector []float32, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.records[id] = indexedRecord{kind: kind, vector: vector, metadata: metadata}
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, k int) ([]models.ComparisonHit, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidQuery
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type testEnv struct {
	svc        *Service
	repo       *memDocRepo
	generator  *fakeGenerator
	renderer   *fakeRenderer
	signatures *fakeSignatures
	index      *fakeIndex
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := generation.NewRegistry()
	if err != nil {
		panic(err)
	}

	env := &testEnv{
		repo:       newMemDocRepo(),
		generator:  &fakeGenerator{},
		renderer:   &fakeRenderer{},
		signatures: &fakeSignatures{},
		index:      newFakeIndex(),
	}
	env.svc = NewService(
		env.repo,
		registry,
		env.generator,
		env.renderer,
		env.signatures,
		env.index,
		fakeEmbedder{},
		Config{
			GenerationMaxAttempts: 3,
			EnvelopeMaxAttempts:   3,
			ConflictMaxAttempts:   3,
			RetryBaseDelay:        time.Millisecond,
			RetryMaxDelay:         2 * time.Millisecond,
		},
		logger,
	)
	return env
}

func (e *testEnv) createPatientDoc(ctx context.Context) (*models.Document, error) {
	return e.svc.CreateDocument(ctx, &CreateDocumentRequest{
		Role:       "patient",
		TemplateID: "T1",
		Inputs:     map[string]string{"name": "Jane Doe"},
		Signer:     models.Signer{Name: "Jane Doe", Email: "jane@example.com"},
	})
}
