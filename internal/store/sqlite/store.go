// Package sqlite stores scan records in a local SQLite database using the
// pure Go modernc.org/sqlite driver.
//
// The full record is kept as a JSON document; the columns beside it exist
// for ordering and reporting queries. The schema is managed through
// versioned migrations embedded from migrations/.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"complyscan/internal/domain"
	"complyscan/internal/store"
	"complyscan/internal/store/sqlite/migrations"
)

type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// NewStore opens (creating if needed) the database file at path.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec *domain.ScanRecord) error {
	if err := store.Validate(rec); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}

	var status, score, evaluatedAt any
	if rec.Compliance != nil {
		status = string(rec.Compliance.Status)
		score = rec.Compliance.Score
	}
	if !rec.EvaluatedAt.IsZero() {
		evaluatedAt = rec.EvaluatedAt.UnixNano()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_records (product_id, source_url, title, status, score, scanned_at, evaluated_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			source_url = excluded.source_url,
			title = excluded.title,
			status = excluded.status,
			score = excluded.score,
			scanned_at = excluded.scanned_at,
			evaluated_at = excluded.evaluated_at,
			record = excluded.record
	`, rec.ProductID, rec.SourceURL, rec.Title, status, score, rec.ScannedAt.UnixNano(), evaluatedAt, string(raw))
	if err != nil {
		return fmt.Errorf("saving record %s: %w", rec.ProductID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.ScanRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM scan_records WHERE product_id = ?", id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	return decode(raw)
}

func (s *Store) List(ctx context.Context, opts store.ListOptions) ([]*domain.ScanRecord, error) {
	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT record FROM scan_records ORDER BY scanned_at DESC, product_id ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScanRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return out, nil
}

func (s *Store) Summary(ctx context.Context) (domain.Summary, error) {
	var (
		sum domain.Summary
		avg sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'Compliant' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'Non-Compliant' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'Needs Review' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IS NULL THEN 1 ELSE 0 END), 0),
			AVG(score)
		FROM scan_records
	`).Scan(&sum.Total, &sum.Compliant, &sum.NonCompliant, &sum.NeedsReview, &sum.Unevaluated, &avg)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarizing records: %w", err)
	}
	if avg.Valid {
		sum.AverageScore = avg.Float64
	}
	return sum, nil
}

func decode(raw string) (*domain.ScanRecord, error) {
	var rec domain.ScanRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshalling record: %w", err)
	}
	return &rec, nil
}

