package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
	contractRepo "carelane/internal/domain/repositories/contract"
	contractSvc "carelane/internal/domain/services/contract"
	"carelane/internal/service/generation"
)

// Config carries the orchestrator's retry budgets. Exact counts and
// delays are deployment choices, so they all come from configuration.
type Config struct {
	GenerationMaxAttempts int
	EnvelopeMaxAttempts   int
	ConflictMaxAttempts   int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
}

func (c Config) withDefaults() Config {
	if c.GenerationMaxAttempts <= 0 {
		c.GenerationMaxAttempts = 3
	}
	if c.EnvelopeMaxAttempts <= 0 {
		c.EnvelopeMaxAttempts = 3
	}
	if c.ConflictMaxAttempts <= 0 {
		c.ConflictMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	return c
}

// Service is the document workflow orchestrator: it owns the state
// machine, sequences the generation, render, signature and comparison
// adapters, and reconciles asynchronous envelope status updates.
type Service struct {
	docs       contractRepo.DocumentRepository
	registry   *generation.Registry
	generator  contractSvc.Generator
	renderer   contractSvc.Renderer
	signatures contractSvc.SignatureProvider
	index      contractSvc.ComparisonIndex
	embedder   contractSvc.Embedder
	cfg        Config
	logger     *slog.Logger
}

// NewService creates the workflow orchestrator.
func NewService(
	docs contractRepo.DocumentRepository,
	registry *generation.Registry,
	generator contractSvc.Generator,
	renderer contractSvc.Renderer,
	signatures contractSvc.SignatureProvider,
	index contractSvc.ComparisonIndex,
	embedder contractSvc.Embedder,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		docs:       docs,
		registry:   registry,
		generator:  generator,
		renderer:   renderer,
		signatures: signatures,
		index:      index,
		embedder:   embedder,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// CreateDocumentRequest is the administrative surface's creation input.
type CreateDocumentRequest struct {
	Role       string            `json:"role"`
	TemplateID string            `json:"template_id"`
	Inputs     map[string]string `json:"inputs"`
	Metadata   map[string]string `json:"metadata"`
	Signer     models.Signer     `json:"signer"`
}

// Validate implements request-level validation.
func (r CreateDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required),
		validation.Field(&r.TemplateID, validation.Required),
		validation.Field(&r.Signer, validation.By(func(interface{}) error {
			return validation.ValidateStruct(&r.Signer,
				validation.Field(&r.Signer.Name, validation.Required),
				validation.Field(&r.Signer.Email, validation.Required, is.Email),
			)
		})),
	)
}

// CreateDocument validates the request at the boundary (closed role
// enum, known template, complete inputs) and persists the document in
// REQUESTED state. Processing happens separately so slow adapter calls
// never block creation.
func (s *Service) CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnknownRole, err)
	}

	tmpl, err := s.registry.Lookup(role, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := tmpl.ValidateInputs(req.Inputs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:         uuid.NewString(),
		Role:       role,
		TemplateID: req.TemplateID,
		State:      models.StateRequested,
		Metadata:   mergeMetadata(req.Metadata, req.Inputs, req.Signer),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document requested",
		"document_id", doc.ID,
		"role", doc.Role,
		"template_id", doc.TemplateID,
	)
	return doc, nil
}

// ProcessDocument drives a document from REQUESTED through DRAFTED and
// RENDERED to SENT. Each stage persists its transition before the next
// stage runs; an unrecoverable stage error moves the document to
// FAILED with its last stable state recorded.
func (s *Service) ProcessDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	for {
		switch doc.State {
		case models.StateRequested:
			doc, err = s.runGeneration(ctx, doc)
		case models.StateDrafted:
			doc, err = s.runRender(ctx, doc)
		case models.StateRendered:
			doc, err = s.runEnvelope(ctx, doc)
		default:
			return doc, nil
		}
		if err != nil {
			return doc, err
		}
	}
}

func (s *Service) runGeneration(ctx context.Context, doc *models.Document) (*models.Document, error) {
	inputs := inputsFromMetadata(doc.Metadata)

	var content string
	err := s.retry(ctx, "generation", s.cfg.GenerationMaxAttempts, func(ctx context.Context) error {
		var genErr error
		content, genErr = s.generator.Generate(ctx, doc.Role, doc.TemplateID, inputs)
		return genErr
	})
	if err != nil {
		return s.failDocument(ctx, doc.ID, "generation", err)
	}

	return s.mutate(ctx, doc.ID, func(d *models.Document) error {
		if d.State != models.StateRequested {
			return errStaleStage
		}
		d.Content = content
		return d.Transition(models.StateDrafted)
	})
}

func (s *Service) runRender(ctx context.Context, doc *models.Document) (*models.Document, error) {
	// Render errors are content problems: fail immediately, no retry.
	blobRef, err := s.renderer.Render(ctx, doc.Content, doc.TemplateID)
	if err != nil {
		if ctx.Err() != nil {
			return doc, ctx.Err()
		}
		return s.failDocument(ctx, doc.ID, "render", err)
	}

	return s.mutate(ctx, doc.ID, func(d *models.Document) error {
		if d.State != models.StateDrafted {
			return errStaleStage
		}
		d.RenderedBlobRef = blobRef
		return d.Transition(models.StateRendered)
	})
}

func (s *Service) runEnvelope(ctx context.Context, doc *models.Document) (*models.Document, error) {
	signers := []models.Signer{signerFromMetadata(doc.Metadata)}

	var envelopeID string
	err := s.retry(ctx, "envelope creation", s.cfg.EnvelopeMaxAttempts, func(ctx context.Context) error {
		var envErr error
		envelopeID, envErr = s.signatures.CreateEnvelope(ctx, doc, signers)
		return envErr
	})
	if err != nil {
		return s.failDocument(ctx, doc.ID, "envelope creation", err)
	}

	return s.mutate(ctx, doc.ID, func(d *models.Document) error {
		if d.State != models.StateRendered {
			return errStaleStage
		}
		d.EnvelopeID = envelopeID
		return d.Transition(models.StateSent)
	})
}

// IndexDocument embeds a signed document and upserts it into the
// comparison index, completing the lifecycle at INDEXED. Idempotent:
// an already-indexed document is re-upserted (wholesale replacement)
// and left in INDEXED.
func (s *Service) IndexDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.State != models.StateSigned && doc.State != models.StateIndexed {
		return nil, fmt.Errorf("document %s is %s, not SIGNED: %w", id, doc.State, domain.ErrValidation)
	}

	vector, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", id, err)
	}

	metadata := map[string]string{
		"document_id": doc.ID,
		"role":        string(doc.Role),
		"template_id": doc.TemplateID,
	}
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	if err := s.index.Upsert(ctx, models.DocumentRecordID(doc.ID), models.RecordKindDocument, vector, metadata); err != nil {
		return nil, err
	}

	if doc.State == models.StateIndexed {
		return doc, nil
	}
	return s.mutate(ctx, doc.ID, func(d *models.Document) error {
		if d.State == models.StateIndexed {
			return errNoChange
		}
		if d.State != models.StateSigned {
			return errStaleStage
		}
		return d.Transition(models.StateIndexed)
	})
}

// Reindex rebuilds comparison records for every signed or indexed
// document. Idempotent: upserts replace prior records wholesale.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	docs, err := s.docs.List(ctx, contractRepo.DocumentFilter{
		States: []models.State{models.StateSigned, models.StateIndexed},
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range docs {
		if _, err := s.IndexDocument(ctx, docs[i].ID); err != nil {
			s.logger.Warn("reindex skipped document", "document_id", docs[i].ID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// Compare embeds the query text and runs a similarity search across
// indexed documents and reference plans. Read-only: bypasses the
// document lifecycle entirely.
func (s *Service) Compare(ctx context.Context, query string, k int) ([]models.ComparisonHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be a positive integer, got %d", domain.ErrInvalidQuery, k)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query text is required", domain.ErrInvalidQuery)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.index.Query(ctx, vector, k)
}

// SigningURL issues the embedded signing URL for a document awaiting
// signature.
func (s *Service) SigningURL(ctx context.Context, id string) (string, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.State != models.StateSent {
		return "", fmt.Errorf("document %s is %s, not SENT: %w", id, doc.State, domain.ErrValidation)
	}
	return s.signatures.SigningURL(ctx, doc.EnvelopeID, signerFromMetadata(doc.Metadata))
}

// GetDocument looks up a single document.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// FailDocument administratively moves a non-terminal document to
// FAILED. In-flight adapter results for the document are discarded
// when they try to apply (the stage check sees the terminal state).
func (s *Service) FailDocument(ctx context.Context, id, reason string) (*models.Document, error) {
	doc, err := s.mutate(ctx, id, func(d *models.Document) error {
		if d.State.IsTerminal() {
			return fmt.Errorf("document %s is already %s: %w", id, d.State, domain.ErrTerminalState)
		}
		d.FailureReason = fmt.Sprintf("administratively failed from %s: %s", d.State, reason)
		return d.Transition(models.StateFailed)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("document administratively failed", "document_id", id, "reason", reason)
	return doc, nil
}

// failDocument records an unrecoverable stage error: the document moves
// to FAILED carrying the stage, its last stable state, and the terminal
// error kind. The stage error itself is surfaced to the caller.
func (s *Service) failDocument(ctx context.Context, id, stage string, cause error) (*models.Document, error) {
	if ctx.Err() != nil {
		// Shutdown, not failure: leave the document in its last stable
		// state for a later retry.
		return nil, ctx.Err()
	}

	doc, mutErr := s.mutate(ctx, id, func(d *models.Document) error {
		if d.State.IsTerminal() {
			return errNoChange
		}
		d.FailureReason = fmt.Sprintf("%s failed in state %s: %s", stage, d.State, errorKind(cause))
		return d.Transition(models.StateFailed)
	})
	if mutErr != nil {
		s.logger.Error("could not record document failure", "document_id", id, "stage", stage, "error", mutErr)
		return nil, cause
	}

	s.logger.Warn("document failed",
		"document_id", id,
		"stage", stage,
		"reason", doc.FailureReason,
		"error", cause,
	)
	return doc, cause
}

// errorKind collapses an error chain to the taxonomy name users see.
func errorKind(err error) string {
	var retries *domain.RetriesExhaustedError
	var render *domain.RenderError
	switch {
	case errors.As(err, &retries):
		return fmt.Sprintf("retries exhausted (%d attempts, last: %v)", retries.Attempts, retries.Cause)
	case errors.As(err, &render):
		return fmt.Sprintf("render error: %v", render.Cause)
	case errors.Is(err, domain.ErrValidation):
		return fmt.Sprintf("invalid input: %v", err)
	default:
		return err.Error()
	}
}

func mergeMetadata(metadata, inputs map[string]string, signer models.Signer) map[string]string {
	merged := make(map[string]string, len(metadata)+len(inputs)+3)
	for k, v := range inputs {
		merged["input_"+k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	merged["signer_name"] = signer.Name
	merged["signer_email"] = signer.Email
	if signer.ClientUserID != "" {
		merged["signer_client_id"] = signer.ClientUserID
	} else {
		merged["signer_client_id"] = uuid.NewString()
	}
	return merged
}

func inputsFromMetadata(metadata map[string]string) map[string]string {
	inputs := make(map[string]string)
	for k, v := range metadata {
		if len(k) > len("input_") && k[:len("input_")] == "input_" {
			inputs[k[len("input_"):]] = v
		}
	}
	return inputs
}

func signerFromMetadata(metadata map[string]string) models.Signer {
	return models.Signer{
		Name:         metadata["signer_name"],
		Email:        metadata["signer_email"],
		ClientUserID: metadata["signer_client_id"],
	}
}
