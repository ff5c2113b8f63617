package postgres

import (
	"context"
	"fmt"
	"log/slog"

	models "carelane/internal/domain/models/contract"
	contractRepo "carelane/internal/domain/repositories/contract"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresComparisonRepository persists comparison records. The upsert
// is a single INSERT ... ON CONFLICT DO UPDATE, so concurrent queries
// observe either the old or the new record, never a partial write.
type PostgresComparisonRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewComparisonRepository creates a new comparison record repository
func NewComparisonRepository(config *RepositoryConfig) contractRepo.ComparisonRepository {
	return &PostgresComparisonRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Upsert replaces the record for rec.ID wholesale. Idempotent.
func (r *PostgresComparisonRepository) Upsert(ctx context.Context, rec *models.ComparisonRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, kind, vector, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind,
		    vector = EXCLUDED.vector,
		    metadata = EXCLUDED.metadata,
		    updated_at = EXCLUDED.updated_at
	`, r.tables.Comparison)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		rec.ID,
		rec.Kind,
		rec.Vector,
		rec.Metadata,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert comparison record: %w", err)
	}
	return nil
}

// GetAll loads every comparison record. Similarity scoring happens in
// the index service; the corpus here stays small (documents + plans).
func (r *PostgresComparisonRepository) GetAll(ctx context.Context) ([]models.ComparisonRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, vector, metadata, updated_at FROM %s
	`, r.tables.Comparison)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load comparison records: %w", err)
	}
	defer rows.Close()

	var records []models.ComparisonRecord
	for rows.Next() {
		var rec models.ComparisonRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Vector, &rec.Metadata, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comparison record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comparison records: %w", err)
	}
	return records, nil
}
