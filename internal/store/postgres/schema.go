package postgres

import (
	"context"
	"fmt"
)

// The full record lives in the JSONB column; status and score are copied
// out for the summary query.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    product_id  TEXT PRIMARY KEY,
    source_url  TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    status      TEXT,
    score       INTEGER,
    scanned_at  TIMESTAMPTZ NOT NULL,
    record      JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createScannedAtIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s (scanned_at DESC)`

// EnsureSchema creates the table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createTableSQL, s.tableName)); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	idx := indexName(s.tableName, "scanned_at")
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createScannedAtIndexSQL, idx, s.tableName)); err != nil {
		return fmt.Errorf("postgres: create scanned_at index: %w", err)
	}
	return nil
}

// indexName derives a quoted index identifier from a possibly quoted table name.
func indexName(table, column string) string {
	bare := table
	if len(bare) >= 2 && bare[0] == '"' && bare[len(bare)-1] == '"' {
		bare = bare[1 : len(bare)-1]
	}
	return fmt.Sprintf(`"idx_%s_%s"`, bare, column)
}
