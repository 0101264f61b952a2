// Package memory is an in-process Store used for tests and one-shot CLI runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"complyscan/internal/domain"
	"complyscan/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
	scanned map[string]int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records: make(map[string][]byte),
		scanned: make(map[string]int64),
	}
}

// Records are kept encoded so callers never share memory with the store.
func (s *Store) Save(_ context.Context, rec *domain.ScanRecord) error {
	if err := store.Validate(rec); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ProductID] = raw
	s.scanned[rec.ProductID] = rec.ScannedAt.UnixNano()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.ScanRecord, error) {
	s.mu.RLock()
	raw, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return decode(raw)
}

func (s *Store) List(_ context.Context, opts store.ListOptions) ([]*domain.ScanRecord, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.scanned[ids[i]], s.scanned[ids[j]]
		if a != b {
			return a > b
		}
		return ids[i] < ids[j]
	})
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	raws := make([][]byte, len(ids))
	for i, id := range ids {
		raws[i] = s.records[id]
	}
	s.mu.RUnlock()

	out := make([]*domain.ScanRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Summary(ctx context.Context) (domain.Summary, error) {
	recs, err := s.List(ctx, store.ListOptions{})
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summarize(recs), nil
}

func (s *Store) Close() error { return nil }

func decode(raw []byte) (*domain.ScanRecord, error) {
	var rec domain.ScanRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshalling record: %w", err)
	}
	return &rec, nil
}
