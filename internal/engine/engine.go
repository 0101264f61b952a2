package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"complyscan/internal/config"
	"complyscan/internal/output"
	"complyscan/internal/rules"
)

func exitCodeForRun(fatal, partial, wrongs bool) int {
	// Exit code contract:
	// 0 = every product compliant
	// 1 = non-compliant or needs-review products found
	// 2 = partial failure (a submission aborted or a record was not stored)
	// 3 = fatal error (nothing was scanned)
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	if wrongs {
		return 1
	}
	return 0
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// Run submits every URL, at most cfg.Runtime.Concurrency at once, streaming
// events and records to the sinks configured in cfg, and returns the process
// exit code. URLs never started because ctx ended count as aborted.
func (e *Engine) Run(ctx context.Context, cfg *config.Config, urls []string) int {
	return e.runWithSinks(ctx, cfg, len(urls), func(run *Engine) (fatal, partial, wrongs bool) {
		sched, err := NewScheduler(cfg.Runtime.Concurrency)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true, false, false
		}

		started := make([]bool, len(urls))
		aborted := 0
		results, errs := sched.Execute(ctx, urls, run.Submit)
		for res := range results {
			started[res.Index] = true
			if res.Aborted() {
				fmt.Fprintf(os.Stderr, "Error scanning %s: %v\n", res.URL, res.Err)
				aborted++
				continue
			}
			if res.Err != nil {
				fmt.Fprintf(os.Stderr, "Error storing %s: %v\n", res.Record.ProductID, res.Err)
				partial = true
			}
			if needsAttention(res.Record.Compliance) {
				wrongs = true
			}
		}
		if err := <-errs; err != nil {
			for i, ok := range started {
				if !ok {
					fmt.Fprintf(os.Stderr, "Error scanning %s: not started: %v\n", urls[i], err)
					aborted++
				}
			}
		}

		if aborted > 0 {
			if aborted == len(urls) {
				fatal = true
			} else {
				partial = true
			}
		}
		return fatal, partial, wrongs
	})
}

// RunEvaluate re-evaluates stored products and returns the process exit code.
func (e *Engine) RunEvaluate(ctx context.Context, cfg *config.Config, productIDs []string) int {
	return e.runWithSinks(ctx, cfg, len(productIDs), func(run *Engine) (fatal, partial, wrongs bool) {
		missing := 0
		for _, id := range productIDs {
			res, err := run.Evaluate(ctx, id)
			var perr *PersistenceError
			switch {
			case errors.As(err, &perr):
				fmt.Fprintf(os.Stderr, "Error storing %s: %v\n", id, err)
				partial = true
			case err != nil:
				fmt.Fprintf(os.Stderr, "Error evaluating %s: %v\n", id, err)
				missing++
				continue
			}
			if needsAttention(res) {
				wrongs = true
			}
		}
		if missing > 0 {
			if missing == len(productIDs) {
				fatal = true
			} else {
				partial = true
			}
		}
		return fatal, partial, wrongs
	})
}

// runWithSinks hands body a copy of e whose observer is the run's sink
// manager, so e itself is never mutated and may keep serving other callers.
func (e *Engine) runWithSinks(ctx context.Context, cfg *config.Config, n int, body func(run *Engine) (fatal, partial, wrongs bool)) int {
	outMgr, err := setupOutputManager(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer outMgr.Close()

	run := e.withObserver(outMgr)

	_ = outMgr.Write(output.Event{Type: "run.started", Products: n, Rules: e.Rules.Len()})

	fatal, partial, wrongs := body(run)
	if ctx.Err() != nil && !fatal {
		partial = true
	}

	code := exitCodeForRun(fatal, partial, wrongs)
	_ = outMgr.Write(output.Event{Type: "run.finished", ExitCode: code})
	return code
}

func (e *Engine) withObserver(obs Observer) *Engine {
	run := *e
	run.Observer = obs
	return &run
}

func needsAttention(res *rules.ComplianceResult) bool {
	return res != nil && res.Status != rules.Compliant
}
