package contract

import (
	"context"

	"carelane/internal/domain/models/contract"
)

// Generator drafts contract text for a role and template. Inputs must
// supply every variable the template declares; missing variables fail
// with domain.TemplateInputError before any external call. Transient
// provider failures are wrapped as domain.ErrGenerationUnavailable and
// retried by the workflow.
type Generator interface {
	Generate(ctx context.Context, role contract.Role, templateID string, inputs map[string]string) (string, error)
}

// Renderer produces the signed-ready PDF artifact for generated
// content and returns a reference into blob storage. Rendering is
// deterministic for identical inputs. Failures are domain.RenderError
// and are never retried.
type Renderer interface {
	Render(ctx context.Context, content, templateID string) (blobRef string, err error)
}

// EnvelopeStatus is the signature provider's view of an envelope.
type EnvelopeStatus string

const (
	EnvelopeCreated   EnvelopeStatus = "created"
	EnvelopeSent      EnvelopeStatus = "sent"
	EnvelopeDelivered EnvelopeStatus = "delivered"
	EnvelopeSigned    EnvelopeStatus = "signed"
	EnvelopeDeclined  EnvelopeStatus = "declined"
	EnvelopeVoided    EnvelopeStatus = "voided"
)

// SignatureProvider wraps envelope creation, embedded signing URL
// issuance and status lookup. Credential handling (token caching and
// refresh) stays inside implementations; the workflow never sees it.
type SignatureProvider interface {
	// CreateEnvelope submits the rendered document for signature and
	// returns the provider-assigned envelope id.
	CreateEnvelope(ctx context.Context, doc *contract.Document, signers []contract.Signer) (string, error)

	// SigningURL issues a single-use, time-limited embedded signing URL
	// for one signer of an existing envelope.
	SigningURL(ctx context.Context, envelopeID string, signer contract.Signer) (string, error)

	// EnvelopeStatus fetches the envelope's current status.
	EnvelopeStatus(ctx context.Context, envelopeID string) (EnvelopeStatus, error)
}

// Embedder turns text into the vector representation used by the
// comparison index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ComparisonIndex is the vector search surface over documents and
// reference insurance plans. Queries observe either the pre- or
// post-upsert value for a record, never a partial write.
type ComparisonIndex interface {
	// Upsert replaces the record for id wholesale. Idempotent.
	Upsert(ctx context.Context, id string, kind contract.RecordKind, vector []float32, metadata map[string]string) error

	// Query returns the k nearest records by descending cosine
	// similarity, ties broken by most recent update. k must be a
	// positive integer; otherwise domain.ErrInvalidQuery.
	Query(ctx context.Context, vector []float32, k int) ([]contract.ComparisonHit, error)
}
