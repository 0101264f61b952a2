// Package store defines the persistence port for scan records.
// Adapters live in the memory, sqlite and postgres subpackages.
package store

import (
	"context"
	"errors"

	"complyscan/internal/domain"
)

// ErrNotFound indicates no record exists for the requested product ID.
var ErrNotFound = errors.New("not found")

// ListOptions bounds a List call. Limit <= 0 means no limit.
type ListOptions struct {
	Limit int
}

// Store persists scan records. Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts rec or replaces the record with the same product ID.
	Save(ctx context.Context, rec *domain.ScanRecord) error
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (*domain.ScanRecord, error)
	// List returns records most recent first.
	List(ctx context.Context, opts ListOptions) ([]*domain.ScanRecord, error)
	Summary(ctx context.Context) (domain.Summary, error)
	Close() error
}

// Validate checks the fields every adapter relies on.
func Validate(rec *domain.ScanRecord) error {
	if rec == nil {
		return errors.New("scan record is nil")
	}
	if rec.ProductID == "" {
		return errors.New("scan record has no product id")
	}
	return nil
}
