// Package postgres stores scan records in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"complyscan/internal/domain"
	"complyscan/internal/store"
)

const defaultTableName = "complyscan_scan_records"

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db        Querier
	tableName string
	// closer releases db when the store owns it.
	closer func()
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithTableName overrides the table name. The name is quoted as an identifier.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = pgx.Identifier{name}.Sanitize()
	}
}

// New wraps an existing query executor. Close does not release db.
func New(db Querier, opts ...Option) *Store {
	s := &Store{db: db, tableName: defaultTableName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects a pool to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := New(pool, opts...)
	s.closer = pool.Close
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec *domain.ScanRecord) error {
	if err := store.Validate(rec); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal record: %w", err)
	}

	var status *string
	var score *int
	if rec.Compliance != nil {
		st := string(rec.Compliance.Status)
		status, score = &st, &rec.Compliance.Score
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(product_id, source_url, title, status, score, scanned_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			scanned_at = EXCLUDED.scanned_at,
			record = EXCLUDED.record,
			updated_at = NOW()`, s.tableName)

	if _, err := s.db.Exec(ctx, query,
		rec.ProductID, rec.SourceURL, rec.Title, status, score, rec.ScannedAt, raw,
	); err != nil {
		return fmt.Errorf("postgres: save %s: %w", rec.ProductID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.ScanRecord, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE product_id = $1`, s.tableName)

	var raw []byte
	if err := s.db.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get %s: %w", id, err)
	}
	return decode(raw)
}

func (s *Store) List(ctx context.Context, opts store.ListOptions) ([]*domain.ScanRecord, error) {
	// LIMIT NULL means no limit.
	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}
	query := fmt.Sprintf(`SELECT record FROM %s ORDER BY scanned_at DESC, product_id ASC LIMIT $1`, s.tableName)

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScanRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	return out, nil
}

func (s *Store) Summary(ctx context.Context) (domain.Summary, error) {
	query := fmt.Sprintf(`SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'Compliant'),
		COUNT(*) FILTER (WHERE status = 'Non-Compliant'),
		COUNT(*) FILTER (WHERE status = 'Needs Review'),
		COUNT(*) FILTER (WHERE status IS NULL),
		COALESCE(AVG(score), 0)::float8
		FROM %s`, s.tableName)

	var sum domain.Summary
	if err := s.db.QueryRow(ctx, query).Scan(
		&sum.Total, &sum.Compliant, &sum.NonCompliant, &sum.NeedsReview, &sum.Unevaluated, &sum.AverageScore,
	); err != nil {
		return domain.Summary{}, fmt.Errorf("postgres: summary: %w", err)
	}
	return sum, nil
}

func decode(raw []byte) (*domain.ScanRecord, error) {
	var rec domain.ScanRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal record: %w", err)
	}
	return &rec, nil
}
