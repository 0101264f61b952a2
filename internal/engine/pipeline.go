package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"complyscan/internal/domain"
	"complyscan/internal/extract"
	"complyscan/internal/media"
	"complyscan/internal/ocr"
	"complyscan/internal/output"
	"complyscan/internal/rules"
	"complyscan/internal/store"
	"complyscan/internal/store/memory"
)

// PageExtractor fetches a product page and derives its fields.
type PageExtractor interface {
	Extract(ctx context.Context, rawURL string) (*extract.Page, error)
}

// ImageAcquirer stores product images. Failed downloads are omitted.
type ImageAcquirer interface {
	Acquire(ctx context.Context, productID string, urls []string) []media.Image
}

// TextRecognizer recognizes text in stored images, keeping their order.
type TextRecognizer interface {
	Run(ctx context.Context, paths []string) ([]ocr.Result, string)
}

// Engine runs submissions through fetch, image acquisition, text
// recognition and evaluation, then hands the record to the store.
// An Engine is safe for concurrent submissions when its collaborators are.
type Engine struct {
	Extractor PageExtractor
	Acquirer  ImageAcquirer
	OCR       TextRecognizer
	Rules     *rules.Registry
	Store     store.Store
	Observer  Observer

	now   func() time.Time
	newID func() string
}

// NewEngine wires the pipeline. A nil recognizer disables text recognition
// and a nil store keeps records in memory.
func NewEngine(x PageExtractor, a ImageAcquirer, r TextRecognizer, reg *rules.Registry, st store.Store) *Engine {
	if r == nil {
		r = ocr.NewCoordinator(nil, 1)
	}
	if st == nil {
		st = memory.New()
	}
	return &Engine{
		Extractor: x,
		Acquirer:  a,
		OCR:       r,
		Rules:     reg,
		Store:     st,
		now:       time.Now,
		newID:     NewProductID,
	}
}

// NewProductID returns "prod_" followed by a random UUID.
func NewProductID() string {
	return "prod_" + uuid.NewString()
}

// Submit scans rawURL. Only an invalid URL or a failed page fetch is fatal:
// the submission is aborted and nothing is stored. Image downloads and text
// recognition are best effort. When the completed record cannot be stored,
// Submit returns it together with a *PersistenceError.
func (e *Engine) Submit(ctx context.Context, rawURL string) (*domain.ScanRecord, error) {
	tr := &tracker{obs: e.Observer, url: rawURL}
	tr.emit(output.Event{Type: "scan.started", URL: rawURL})

	rec, err := e.run(ctx, tr, rawURL)
	if err != nil {
		_ = tr.advance(StageAborted)
		slog.Warn("scan aborted", "url", rawURL, "product_id", tr.productID, "error", err)
		tr.emit(output.Event{Type: "scan.finished", ProductID: tr.productID, URL: rawURL, Error: err.Error()})
		return nil, err
	}

	err = e.Persist(ctx, rec)
	fin := finishedEvent(rec)
	if err != nil {
		slog.Error("scan record not stored", "product_id", rec.ProductID, "error", err)
		fin.Error = err.Error()
	}
	tr.emit(fin)
	return rec, err
}

func (e *Engine) run(ctx context.Context, tr *tracker, rawURL string) (*domain.ScanRecord, error) {
	if err := tr.advance(StageFetching); err != nil {
		return nil, err
	}
	page, err := e.Extractor.Extract(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	now := e.now()
	rec := &domain.ScanRecord{
		ProductID:   e.newID(),
		SourceURL:   page.URL,
		Title:       page.Title,
		Description: page.Description,
		FeatureList: append([]string{}, page.Features...),
		Images:      []domain.EvidenceImage{},
		ScannedAt:   now,
	}
	tr.productID = rec.ProductID

	if err := e.step(ctx, tr, StageAcquiring); err != nil {
		return nil, err
	}
	var imgs []media.Image
	if e.Acquirer != nil {
		imgs = e.Acquirer.Acquire(ctx, rec.ProductID, page.ImageURLs())
	}

	if err := e.step(ctx, tr, StageExtracting); err != nil {
		return nil, err
	}
	paths := make([]string, len(imgs))
	for i, img := range imgs {
		paths[i] = img.StoredPath
	}
	results, recognized := e.OCR.Run(ctx, paths)
	rec.Images = evidenceImages(imgs, results)
	rec.Evidence = BuildEvidence(page, recognized)

	if err := e.step(ctx, tr, StageEvaluating); err != nil {
		return nil, err
	}
	e.evaluate(rec)

	if err := tr.advance(StageComplete); err != nil {
		return nil, err
	}
	tr.emit(rec)
	return rec, nil
}

// step advances to next unless ctx is already done.
func (e *Engine) step(ctx context.Context, tr *tracker, next Stage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan canceled before %s: %w", next, err)
	}
	return tr.advance(next)
}

// evaluate runs the registry against the record's combined text and emits
// one rule result per outcome.
func (e *Engine) evaluate(rec *domain.ScanRecord) {
	res := rules.Evaluate(e.Rules, rec.Evidence.CombinedText)
	rec.Compliance = &res
	rec.EvaluatedAt = e.now()
	if res.RulesUnavailable {
		slog.Warn("evaluated without rules", "product_id", rec.ProductID, "error", e.Rules.LoadErr())
	}
	if e.Observer == nil {
		return
	}
	for _, o := range res.Outcomes {
		if err := e.Observer.Write(output.RuleResult{ProductID: rec.ProductID, Outcome: o}); err != nil {
			slog.Warn("observer write failed", "error", err)
		}
	}
}

// Persist stores rec, wrapping any store failure in a *PersistenceError.
func (e *Engine) Persist(ctx context.Context, rec *domain.ScanRecord) error {
	if err := e.Store.Save(ctx, rec); err != nil {
		id := ""
		if rec != nil {
			id = rec.ProductID
		}
		return &PersistenceError{ProductID: id, Err: err}
	}
	return nil
}

// Evaluate re-evaluates a stored record against the current registry and
// stores the updated record. It returns store.ErrNotFound for an unknown
// product. When saving fails the fresh result is returned with a
// *PersistenceError.
func (e *Engine) Evaluate(ctx context.Context, productID string) (*rules.ComplianceResult, error) {
	rec, err := e.Store.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, err)
		}
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}

	e.evaluate(rec)
	if e.Observer != nil {
		_ = e.Observer.Write(rec)
	}
	if err := e.Persist(ctx, rec); err != nil {
		return rec.Compliance, err
	}
	return rec.Compliance, nil
}

func finishedEvent(rec *domain.ScanRecord) output.Event {
	ev := output.Event{
		Type:      "scan.finished",
		ProductID: rec.ProductID,
		URL:       rec.SourceURL,
		Title:     rec.Title,
		Images:    len(rec.Images),
	}
	if rec.Evaluated() {
		score := rec.Compliance.Score
		ev.Score = &score
		ev.Rules = len(rec.Compliance.Outcomes)
		ev.Classification = string(rec.Compliance.Status)
	}
	return ev
}
