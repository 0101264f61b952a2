package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"complyscan/internal/config"
	"complyscan/internal/engine"
	"complyscan/internal/extract"
	"complyscan/internal/fetcher"
	"complyscan/internal/media"
	"complyscan/internal/ocr"
	"complyscan/internal/rules"
	"complyscan/internal/store"
	"complyscan/internal/store/memory"
	"complyscan/internal/store/postgres"
	"complyscan/internal/store/sqlite"
)

// services is the wired pipeline shared by the scan, evaluate and serve commands.
type services struct {
	extractor *extract.Extractor
	registry  *rules.Registry
	store     store.Store
	engine    *engine.Engine
}

func newServices(ctx context.Context, c *config.Config) (*services, error) {
	st, err := openStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}

	client := newClient(c)
	x := extract.New(client, c.Fetch.Timeout, c.Fetch.MaxBodyBytes)
	acq := media.New(client, media.Options{
		DataDir:     c.Media.DataDir,
		MaxImages:   c.Media.MaxImages,
		Timeout:     c.Media.Timeout,
		MaxBytes:    c.Media.MaxBytes,
		Concurrency: c.Media.Concurrency,
	})

	rec, err := newRecognizer(c.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	reg := loadRegistry(c.Rules.Path)

	return &services{
		extractor: x,
		registry:  reg,
		store:     st,
		engine:    engine.NewEngine(x, acq, ocr.NewCoordinator(rec, c.OCR.Concurrency), reg, st),
	}, nil
}

func (s *services) Close() error {
	return s.store.Close()
}

func newExtractor(c *config.Config) *extract.Extractor {
	return extract.New(newClient(c), c.Fetch.Timeout, c.Fetch.MaxBodyBytes)
}

func newClient(c *config.Config) *fetcher.Client {
	return fetcher.NewClient(
		fetcher.WithVerbose(c.Runtime.Verbose, os.Stderr),
		fetcher.WithUserAgent(c.Fetch.UserAgent),
		fetcher.WithRateLimit(c.Fetch.RatePerHost, c.Fetch.Burst),
	)
}

func openStore(ctx context.Context, c config.Store) (store.Store, error) {
	switch c.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		st, err := sqlite.NewStore(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Debug("store opened", "driver", "sqlite", "path", st.Path())
		return st, nil
	case "postgres":
		var opts []postgres.Option
		if c.Table != "" {
			opts = append(opts, postgres.WithTableName(c.Table))
		}
		return postgres.Open(ctx, c.DSN, opts...)
	}
	return nil, fmt.Errorf("unsupported store driver %q", c.Driver)
}

// newRecognizer returns nil when recognition is disabled; the coordinator
// then reports every image as unrecognized.
func newRecognizer(c config.OCR) (ocr.Recognizer, error) {
	if c.Disabled {
		return nil, nil
	}
	r, err := ocr.NewExecRecognizer(c.Command, ocr.Format(c.Format), c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("configure text recognition: %w", err)
	}
	return r, nil
}

// loadRegistry never fails: a broken rule file leaves the registry degraded
// and every evaluation marked as run without rules.
func loadRegistry(path string) *rules.Registry {
	reg, err := rules.Load(path)
	if err != nil {
		slog.Warn("rules unavailable; evaluations will report no rules", "path", path, "error", err)
		return reg
	}
	slog.Debug("rules loaded", "source", reg.Source(), "rules", reg.Len())
	return reg
}
