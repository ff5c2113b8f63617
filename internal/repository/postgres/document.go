package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
	contractRepo "carelane/internal/domain/repositories/contract"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDocumentRepository implements the DocumentRepository interface
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *RepositoryConfig) contractRepo.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const documentColumns = `id, role, template_id, content, rendered_blob_ref, envelope_id, state, failure_reason, metadata, version, created_at, updated_at`

// Create persists a new document in its initial state.
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.tables.Documents, documentColumns)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		doc.ID,
		doc.Role,
		doc.TemplateID,
		doc.Content,
		doc.RenderedBlobRef,
		doc.EnvelopeID,
		doc.State,
		doc.FailureReason,
		doc.Metadata,
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("document %s already exists: %w", doc.ID, domain.ErrVersionConflict)
		}
		return fmt.Errorf("create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID.
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetByEnvelopeID retrieves the document correlated with an envelope.
func (r *PostgresDocumentRepository) GetByEnvelopeID(ctx context.Context, envelopeID string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE envelope_id = $1 AND envelope_id <> ''`,
		documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, envelopeID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("envelope %s: %w", envelopeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document by envelope: %w", err)
	}
	return doc, nil
}

// Update replaces the record atomically, conditional on the version the
// caller read. A concurrent writer bumps the version first and the
// conditional WHERE matches zero rows.
func (r *PostgresDocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET role = $3, template_id = $4, content = $5, rendered_blob_ref = $6,
		    envelope_id = $7, state = $8, failure_reason = $9, metadata = $10,
		    version = version + 1, updated_at = $11
		WHERE id = $1 AND version = $2
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		doc.ID,
		doc.Version,
		doc.Role,
		doc.TemplateID,
		doc.Content,
		doc.RenderedBlobRef,
		doc.EnvelopeID,
		doc.State,
		doc.FailureReason,
		doc.Metadata,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row vanished or somebody else won the write race.
		// Distinguish the two so callers can react correctly.
		if _, getErr := r.GetByID(ctx, doc.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrVersionConflict)
	}

	doc.Version++
	return nil
}

// ListByState lists documents in the given state, oldest-updated first.
func (r *PostgresDocumentRepository) ListByState(ctx context.Context, state models.State, limit int) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE state = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, documentColumns, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents by state: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// List lists documents matching the filter, newest first.
func (r *PostgresDocumentRepository) List(ctx context.Context, filter contractRepo.DocumentFilter) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE 1=1`, documentColumns, r.tables.Documents)
	args := []interface{}{}

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		args = append(args, states)
		query += fmt.Sprintf(" AND state = ANY($%d)", len(args))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID,
		&doc.Role,
		&doc.TemplateID,
		&doc.Content,
		&doc.RenderedBlobRef,
		&doc.EnvelopeID,
		&doc.State,
		&doc.FailureReason,
		&doc.Metadata,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func collectDocuments(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]models.Document, error) {
	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
