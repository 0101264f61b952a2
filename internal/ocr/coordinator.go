package ocr

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Result is the recognition outcome for one image path.
type Result struct {
	Path      string
	Text      string
	Extracted bool
}

// Coordinator runs a Recognizer over a submission's images with per-image
// failure containment.
type Coordinator struct {
	rec         Recognizer
	concurrency int
}

// NewCoordinator returns a coordinator running at most concurrency
// recognitions at once; 1 (the default) processes images one by one.
func NewCoordinator(rec Recognizer, concurrency int) *Coordinator {
	if rec == nil {
		rec = Unavailable
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{rec: rec, concurrency: concurrency}
}

// Run recognizes every path. Results keep the order of paths; failed images
// have Extracted=false. The returned text joins recognized texts in image
// order with single spaces.
func (c *Coordinator) Run(ctx context.Context, paths []string) ([]Result, string) {
	results := make([]Result, len(paths))
	for i, p := range paths {
		results[i].Path = p
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, p := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			text, err := c.rec.Recognize(ctx, p)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, ErrUnavailable) {
					level = slog.LevelDebug
				}
				slog.Log(ctx, level, "text recognition failed", "path", p, "err", err)
				return nil
			}
			results[i].Text = text
			results[i].Extracted = true
			return nil
		})
	}
	_ = g.Wait()

	var texts []string
	for _, r := range results {
		if r.Extracted && r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	return results, strings.Join(texts, " ")
}
