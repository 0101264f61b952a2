package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"complyscan/internal/domain"
	"complyscan/internal/extract"
	"complyscan/internal/media"
	"complyscan/internal/ocr"
	"complyscan/internal/output"
	"complyscan/internal/rules"
	"complyscan/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeExtractor struct {
	page *extract.Page
	err  error
	// onExtract runs before returning, e.g. to cancel the caller's context.
	onExtract func()
}

func (f *fakeExtractor) Extract(_ context.Context, rawURL string) (*extract.Page, error) {
	if f.onExtract != nil {
		f.onExtract()
	}
	if f.err != nil {
		return nil, f.err
	}
	p := *f.page
	p.URL = rawURL
	return &p, nil
}

type fakeAcquirer struct {
	mu    sync.Mutex
	got   []string
	calls int
}

// Acquire pretends every URL was stored as <productID>/image_<i>.jpg.
func (f *fakeAcquirer) Acquire(_ context.Context, productID string, urls []string) []media.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = append(f.got, urls...)
	out := make([]media.Image, 0, len(urls))
	for i, u := range urls {
		out = append(out, media.Image{SourceURL: u, StoredPath: fmt.Sprintf("%s/image_%d.jpg", productID, i)})
	}
	return out
}

// textByPath recognizes text for known paths and fails for the rest.
func textByPath(texts map[string]string) *ocr.Coordinator {
	return ocr.NewCoordinator(ocr.RecognizerFunc(func(_ context.Context, path string) (string, error) {
		if t, ok := texts[path]; ok {
			return t, nil
		}
		return "", &ocr.ExtractionError{Path: path, ExitCode: 1, Err: errors.New("no text")}
	}), 1)
}

type recordingObserver struct {
	mu    sync.Mutex
	items []any
}

func (o *recordingObserver) Write(v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, v)
	return nil
}

func (o *recordingObserver) stages() []Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Stage
	for _, it := range o.items {
		if ev, ok := it.(output.Event); ok && ev.Type == "stage.changed" {
			out = append(out, Stage(ev.Stage))
		}
	}
	return out
}

func (o *recordingObserver) events(typ string) []output.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []output.Event
	for _, it := range o.items {
		if ev, ok := it.(output.Event); ok && ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (o *recordingObserver) ruleResults() []output.RuleResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []output.RuleResult
	for _, it := range o.items {
		if rr, ok := it.(output.RuleResult); ok {
			out = append(out, rr)
		}
	}
	return out
}

// failingStore rejects every Save.
type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) Save(context.Context, *domain.ScanRecord) error { return s.err }

func testRegistry(t *testing.T) *rules.Registry {
	t.Helper()
	reg, err := rules.NewRegistry(
		rules.Rule{ID: "LM001", Name: "MRP Declaration", Type: rules.TypePattern, Pattern: `MRP\s*[:.]?\s*Rs`, Critical: true},
		rules.Rule{ID: "LM002", Name: "Net Quantity", Type: rules.TypeKeywordSet, Keywords: []string{"net qty", "net quantity"}},
	)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	return reg
}

func newTestEngine(t *testing.T, x PageExtractor, a ImageAcquirer, r TextRecognizer) (*Engine, *memory.Store, *recordingObserver) {
	t.Helper()
	st := memory.New()
	obs := &recordingObserver{}
	e := NewEngine(x, a, r, testRegistry(t), st)
	e.Observer = obs
	e.now = func() time.Time { return fixedNow }
	e.newID = func() string { return "prod_test" }
	return e, st, obs
}
