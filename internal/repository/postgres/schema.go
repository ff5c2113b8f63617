package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables this service needs if they do not
// exist yet. DDL is idempotent so every boot can run it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id                TEXT PRIMARY KEY,
				role              TEXT NOT NULL,
				template_id       TEXT NOT NULL,
				content           TEXT NOT NULL DEFAULT '',
				rendered_blob_ref TEXT NOT NULL DEFAULT '',
				envelope_id       TEXT NOT NULL DEFAULT '',
				state             TEXT NOT NULL,
				failure_reason    TEXT NOT NULL DEFAULT '',
				metadata          JSONB NOT NULL DEFAULT '{}'::jsonb,
				version           BIGINT NOT NULL DEFAULT 1,
				created_at        TIMESTAMPTZ NOT NULL,
				updated_at        TIMESTAMPTZ NOT NULL
			)
		`, tables.Documents),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_state_idx ON %s (state, updated_at)
		`, tables.Documents, tables.Documents),
		fmt.Sprintf(`
			CREATE UNIQUE INDEX IF NOT EXISTS %s_envelope_idx ON %s (envelope_id)
			WHERE envelope_id <> ''
		`, tables.Documents, tables.Documents),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				kind       TEXT NOT NULL,
				vector     REAL[] NOT NULL,
				metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
				updated_at TIMESTAMPTZ NOT NULL
			)
		`, tables.Comparison),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
