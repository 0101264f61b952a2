// Package storetest is a conformance suite shared by Store adapters.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complyscan/internal/domain"
	"complyscan/internal/rules"
	"complyscan/internal/store"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Record builds a populated record scanned offset minutes after a fixed time.
// score < 0 leaves it unevaluated.
func Record(id string, offset int, score int) *domain.ScanRecord {
	rec := &domain.ScanRecord{
		ProductID:   id,
		SourceURL:   "https://shop.example/p/" + id,
		Title:       "Product " + id,
		Description: "desc",
		FeatureList: []string{"Naturally aged for two years"},
		Images: []domain.EvidenceImage{{
			SourceURL:      "https://shop.example/product.jpg",
			StoredPath:     "data/images/" + id + "/image_0.jpg",
			RecognizedText: "MRP 10",
			TextExtracted:  true,
		}},
		Evidence: domain.ExtractedEvidence{
			RawMarkupText: "Net Qty 1 kg",
			FeatureList:   []string{"Naturally aged for two years"},
			CombinedText:  "Net Qty 1 kg MRP 10",
		},
		ScannedAt: base.Add(time.Duration(offset) * time.Minute),
	}
	if score >= 0 {
		rec.Compliance = &rules.ComplianceResult{
			Score:      score,
			Status:     rules.Classify(score),
			Outcomes:   []rules.Outcome{{RuleID: "r1", RuleName: "MRP", Status: rules.StatusPass, Evidence: "MRP 10", Critical: true}},
			Violations: []string{},
		}
		rec.EvaluatedAt = rec.ScannedAt.Add(time.Second)
	}
	return rec
}

// Run exercises the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		rec := Record("prod_a", 0, 90)
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, "prod_a")
		require.NoError(t, err)
		assert.Equal(t, rec.ProductID, got.ProductID)
		assert.Equal(t, rec.Title, got.Title)
		assert.Equal(t, rec.Images, got.Images)
		assert.Equal(t, rec.Evidence, got.Evidence)
		assert.Equal(t, rec.Compliance, got.Compliance)
		assert.True(t, rec.ScannedAt.Equal(got.ScannedAt))
		assert.True(t, rec.EvaluatedAt.Equal(got.EvaluatedAt))
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "prod_missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, Record("prod_a", 0, -1)))
		require.NoError(t, s.Save(ctx, Record("prod_a", 0, 65)))

		got, err := s.Get(ctx, "prod_a")
		require.NoError(t, err)
		require.NotNil(t, got.Compliance)
		assert.Equal(t, 65, got.Compliance.Score)

		all, err := s.List(ctx, store.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("list most recent first", func(t *testing.T) {
		s := newStore(t)
		for i, off := range []int{5, 1, 9, 3} {
			require.NoError(t, s.Save(ctx, Record(fmt.Sprintf("prod_%d", i), off, -1)))
		}

		all, err := s.List(ctx, store.ListOptions{})
		require.NoError(t, err)
		var ids []string
		for _, r := range all {
			ids = append(ids, r.ProductID)
		}
		assert.Equal(t, []string{"prod_2", "prod_0", "prod_3", "prod_1"}, ids)

		two, err := s.List(ctx, store.ListOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, two, 2)
		assert.Equal(t, "prod_2", two[0].ProductID)
	})

	t.Run("summary", func(t *testing.T) {
		s := newStore(t)
		empty, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Summary{}, empty)

		require.NoError(t, s.Save(ctx, Record("a", 1, 90)))
		require.NoError(t, s.Save(ctx, Record("b", 2, 70)))
		require.NoError(t, s.Save(ctx, Record("c", 3, 20)))
		require.NoError(t, s.Save(ctx, Record("d", 4, -1)))

		sum, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Summary{
			Total:        4,
			Compliant:    1,
			NeedsReview:  1,
			NonCompliant: 1,
			Unevaluated:  1,
			AverageScore: 60,
		}, sum)
	})

	t.Run("rejects invalid record", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Save(ctx, nil))
		assert.Error(t, s.Save(ctx, &domain.ScanRecord{}))
	})
}
