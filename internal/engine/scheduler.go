package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"complyscan/internal/domain"
)

// SubmitFunc scans one URL. (*Engine).Submit satisfies it.
type SubmitFunc func(ctx context.Context, rawURL string) (*domain.ScanRecord, error)

type Scheduler struct {
	concurrency int
}

func NewScheduler(concurrency int) (*Scheduler, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{concurrency: concurrency}, nil
}

// Execute streams one SubmissionResult per started submission.
//
// Channel semantics:
//   - Submissions start in input order; at most concurrency run at once. With
//     concurrency 1 results also arrive in input order.
//   - On context cancellation no further submissions start, so fewer than
//     len(urls) results may be sent. Submissions already running still report.
//   - The caller must drain the results channel.
//   - The results channel and error channel are both closed reliably. The error
//     channel carries setup errors or the cancellation cause.
func (s *Scheduler) Execute(ctx context.Context, urls []string, submit SubmitFunc) (<-chan SubmissionResult, <-chan error) {
	resultsCh := make(chan SubmissionResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if s == nil {
			trySendErr(errors.New("scheduler is nil"))
			return
		}
		if submit == nil {
			trySendErr(errors.New("submit func is nil"))
			return
		}

		// Limit active submissions.
		sem := make(chan struct{}, s.concurrency)
		var wg sync.WaitGroup

	scheduleLoop:
		for i, u := range urls {
			if ctx.Err() != nil {
				break
			}
			select {
			case sem <- struct{}{}:
				if ctx.Err() != nil {
					<-sem
					break scheduleLoop
				}
			case <-ctx.Done():
				break scheduleLoop
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				rec, err := submit(ctx, u)
				resultsCh <- SubmissionResult{Index: i, URL: u, Record: rec, Err: err}
			}()
		}

		wg.Wait()
		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}
