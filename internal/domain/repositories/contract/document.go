package contract

import (
	"context"

	"carelane/internal/domain/models/contract"
)

// DocumentFilter narrows List results. Zero values mean "any".
type DocumentFilter struct {
	States []contract.State
	Role   contract.Role
	Limit  int
}

// DocumentRepository defines data access operations for contract
// documents. Updates are conditional on the document's version so that
// two concurrent status reconciliations can never double-apply a
// transition: the loser observes domain.ErrVersionConflict and must
// re-read.
type DocumentRepository interface {
	// Create persists a new document in its initial state.
	Create(ctx context.Context, doc *contract.Document) error

	// GetByID retrieves a document by ID.
	GetByID(ctx context.Context, id string) (*contract.Document, error)

	// GetByEnvelopeID retrieves the document correlated with a
	// signature envelope. Used by webhook reconciliation.
	GetByEnvelopeID(ctx context.Context, envelopeID string) (*contract.Document, error)

	// Update replaces the record atomically, conditional on doc.Version
	// matching the stored version. On success the stored version is
	// incremented and doc.Version is refreshed. Returns
	// domain.ErrVersionConflict if the record changed since it was read.
	Update(ctx context.Context, doc *contract.Document) error

	// ListByState lists documents currently in the given state,
	// oldest-updated first. Used by the status-poll sweep.
	ListByState(ctx context.Context, state contract.State, limit int) ([]contract.Document, error)

	// List lists documents matching the filter, newest first.
	List(ctx context.Context, filter DocumentFilter) ([]contract.Document, error)
}

// ComparisonRepository persists comparison records. Upsert is
// idempotent: re-upserting a record id replaces the prior vector and
// metadata atomically, never duplicating entries.
type ComparisonRepository interface {
	Upsert(ctx context.Context, rec *contract.ComparisonRecord) error
	GetAll(ctx context.Context) ([]contract.ComparisonRecord, error)
}
