package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"complyscan/internal/config"
	"complyscan/internal/domain"
	"complyscan/internal/extract"
	"complyscan/internal/fetcher"
	"complyscan/internal/output"
	"complyscan/internal/rules"
)

func TestExitCodeForRun(t *testing.T) {
	tests := []struct {
		fatal, partial, wrongs bool
		want                   int
	}{
		{want: 0},
		{wrongs: true, want: 1},
		{partial: true, want: 2},
		{partial: true, wrongs: true, want: 2},
		{fatal: true, partial: true, wrongs: true, want: 3},
	}
	for _, tt := range tests {
		if got := exitCodeForRun(tt.fatal, tt.partial, tt.wrongs); got != tt.want {
			t.Fatalf("exitCodeForRun(%v, %v, %v) = %d, want %d", tt.fatal, tt.partial, tt.wrongs, got, tt.want)
		}
	}
}

func quietConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Output.NoConsole = true
	cfg.Output.Out = filepath.Join(t.TempDir(), "out.json")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	return cfg
}

func readRecords(t *testing.T, path string) []domain.ScanRecord {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var recs []domain.ScanRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		t.Fatalf("invalid json output: %v\n%s", err, b)
	}
	return recs
}

func TestSetupOutputManager(t *testing.T) {
	dir := t.TempDir()
	cfg := config.New()
	cfg.Output.ConsoleFormat = "ndjson"
	cfg.Output.Emit = []string{"json"}
	cfg.Output.Out = filepath.Join(dir, "out.ndjson")
	cfg.Output.OutFormat = "ndjson"
	cfg.Output.Report = filepath.Join(dir, "report.md")

	var stdout bytes.Buffer
	mgr, err := setupOutputManager(cfg, &stdout)
	if err != nil {
		t.Fatalf("setupOutputManager returned error: %v", err)
	}
	_ = mgr.Write(output.Event{Type: "run.started"})
	_ = mgr.Write(&domain.ScanRecord{ProductID: "prod_1"})
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	if !strings.Contains(stdout.String(), `"type":"run.started"`) {
		t.Fatalf("expected ndjson console output, got %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), `"product_id": "prod_1"`) {
		t.Fatalf("expected emitted json array, got %q", stdout.String())
	}
	for _, p := range []string{cfg.Output.Out, cfg.Output.Report} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to exist: %v", p, err)
		}
	}
}

func TestSetupOutputManager_InvalidEmit(t *testing.T) {
	cfg := config.New()
	cfg.Output.NoConsole = true
	cfg.Output.Emit = []string{"text"}
	if _, err := setupOutputManager(cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unsupported emit format")
	}
}

func TestRun_ExitCodes(t *testing.T) {
	compliantPage := &extract.Page{RawMarkupText: "MRP: Rs 10, Net Qty 1 kg"}
	partialPage := &extract.Page{RawMarkupText: "MRP: Rs 10"}

	tests := []struct {
		name      string
		extractor PageExtractor
		urls      []string
		want      int
		wantRecs  int
	}{
		{name: "compliant", extractor: &fakeExtractor{page: compliantPage}, urls: []string{"https://a.example/p"}, want: 0, wantRecs: 1},
		{name: "needs review", extractor: &fakeExtractor{page: partialPage}, urls: []string{"https://a.example/p"}, want: 1, wantRecs: 1},
		{name: "fetch failure", extractor: &fakeExtractor{err: &fetcher.FetchError{URL: "https://a.example/p", StatusCode: 404}}, urls: []string{"https://a.example/p"}, want: 3},
		{name: "invalid url", extractor: extract.New(nil, 0, 0), urls: []string{"not a url"}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quietConfig(t)
			e, _, _ := newTestEngine(t, tt.extractor, &fakeAcquirer{}, nil)

			if got := e.Run(context.Background(), cfg, tt.urls); got != tt.want {
				t.Fatalf("Run exit code = %d, want %d", got, tt.want)
			}
			if recs := readRecords(t, cfg.Output.Out); len(recs) != tt.wantRecs {
				t.Fatalf("expected %d records in output, got %d", tt.wantRecs, len(recs))
			}
		})
	}
}

// mixedExtractor fails for one URL and serves a compliant page for the rest.
type mixedExtractor struct{ bad string }

func (m mixedExtractor) Extract(_ context.Context, rawURL string) (*extract.Page, error) {
	if rawURL == m.bad {
		return nil, &fetcher.FetchError{URL: rawURL, StatusCode: 500}
	}
	return &extract.Page{URL: rawURL, RawMarkupText: "MRP: Rs 10, Net Qty 1 kg"}, nil
}

func TestRun_PartialWhenSomeSubmissionsAbort(t *testing.T) {
	cfg := quietConfig(t)
	e, _, _ := newTestEngine(t, mixedExtractor{bad: "https://b.example/p"}, &fakeAcquirer{}, nil)
	ids := []string{"prod_a", "prod_b"}
	e.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	code := e.Run(context.Background(), cfg, []string{"https://a.example/p", "https://b.example/p", "https://c.example/p"})
	if code != 2 {
		t.Fatalf("Run exit code = %d, want 2", code)
	}
	if recs := readRecords(t, cfg.Output.Out); len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
}

func TestRun_LeavesSharedObserverUntouched(t *testing.T) {
	cfg := quietConfig(t)
	page := &extract.Page{RawMarkupText: "MRP: Rs 10, Net Qty 1 kg"}
	e, _, obs := newTestEngine(t, &fakeExtractor{page: page}, &fakeAcquirer{}, nil)

	// A caller submitting through the shared engine while a run is active.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_, _ = e.Submit(context.Background(), "https://shared.example/p")
		}
	}()

	if code := e.Run(context.Background(), cfg, []string{"https://a.example/p", "https://b.example/p"}); code != 0 {
		t.Fatalf("Run exit code = %d, want 0", code)
	}
	<-done

	if e.Observer != Observer(obs) {
		t.Fatalf("Run replaced the engine observer")
	}
	for _, ev := range obs.events("scan.started") {
		if ev.URL != "https://shared.example/p" {
			t.Fatalf("run event leaked to the shared observer: %+v", ev)
		}
	}
	if got := len(obs.events("scan.started")); got != 5 {
		t.Fatalf("expected 5 shared scan.started events, got %d", got)
	}
	if recs := readRecords(t, cfg.Output.Out); len(recs) != 2 {
		t.Fatalf("expected 2 records in run output, got %d", len(recs))
	}
}

func TestRun_PersistenceFailureIsPartial(t *testing.T) {
	cfg := quietConfig(t)
	e, mem, _ := newTestEngine(t, &fakeExtractor{page: &extract.Page{RawMarkupText: "MRP: Rs 10, Net Qty 1 kg"}}, &fakeAcquirer{}, nil)
	e.Store = &failingStore{Store: mem, err: errors.New("read-only")}

	if code := e.Run(context.Background(), cfg, []string{"https://a.example/p"}); code != 2 {
		t.Fatalf("Run exit code = %d, want 2", code)
	}
	// The computed record still reaches the sinks.
	if recs := readRecords(t, cfg.Output.Out); len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestRunEvaluate(t *testing.T) {
	cfg := quietConfig(t)
	e, st, _ := newTestEngine(t, nil, nil, nil)
	ctx := context.Background()

	_ = st.Save(ctx, &domain.ScanRecord{ProductID: "prod_ok", Evidence: domain.ExtractedEvidence{CombinedText: "MRP Rs 1 net quantity"}})
	_ = st.Save(ctx, &domain.ScanRecord{ProductID: "prod_bad", Evidence: domain.ExtractedEvidence{CombinedText: "nothing"}})

	if code := e.RunEvaluate(ctx, cfg, []string{"prod_ok"}); code != 0 {
		t.Fatalf("RunEvaluate exit code = %d, want 0", code)
	}
	if code := e.RunEvaluate(ctx, cfg, []string{"prod_ok", "prod_bad"}); code != 1 {
		t.Fatalf("RunEvaluate exit code = %d, want 1", code)
	}
	if code := e.RunEvaluate(ctx, cfg, []string{"prod_ok", "prod_missing"}); code != 2 {
		t.Fatalf("RunEvaluate exit code = %d, want 2", code)
	}
	if code := e.RunEvaluate(ctx, cfg, []string{"prod_missing"}); code != 3 {
		t.Fatalf("RunEvaluate exit code = %d, want 3", code)
	}

	rec, err := st.Get(ctx, "prod_bad")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec.Compliance == nil || rec.Compliance.Status != rules.NonCompliant {
		t.Fatalf("expected stored non-compliant evaluation, got %+v", rec.Compliance)
	}
}

func TestRun_ConcurrentSubmissions(t *testing.T) {
	cfg := quietConfig(t)
	cfg.Runtime.Concurrency = 3
	e, st, _ := newTestEngine(t, mixedExtractor{}, &fakeAcquirer{}, nil)
	var n atomic.Int32
	e.newID = func() string { return fmt.Sprintf("prod_%d", n.Add(1)) }

	urls := []string{"https://a.example/p", "https://b.example/p", "https://c.example/p"}
	if code := e.Run(context.Background(), cfg, urls); code != 0 {
		t.Fatalf("Run exit code = %d, want 0", code)
	}
	if recs := readRecords(t, cfg.Output.Out); len(recs) != len(urls) {
		t.Fatalf("expected %d records, got %d", len(urls), len(recs))
	}
	summary, err := st.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.Total != len(urls) {
		t.Fatalf("expected %d stored records, got %d", len(urls), summary.Total)
	}
}

func TestRun_CanceledBeforeStartIsFatal(t *testing.T) {
	cfg := quietConfig(t)
	e, _, _ := newTestEngine(t, &fakeExtractor{page: &extract.Page{RawMarkupText: "MRP: Rs 10"}}, &fakeAcquirer{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code := e.Run(ctx, cfg, []string{"https://a.example/p", "https://b.example/p"}); code != 3 {
		t.Fatalf("Run exit code = %d, want 3", code)
	}
}
