// Package executor runs a set of service scanners with bounded parallelism,
// per-scanner timeouts, and total failure isolation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// Options tunes one executor run.
type Options struct {
	// Concurrency caps how many scanners run at once. Values below one fall
	// back to full parallelism.
	Concurrency int

	// PerScannerTimeout bounds each scanner execution. Zero means no
	// per-scanner bound beyond the overall context deadline.
	PerScannerTimeout time.Duration
}

// Run executes every scanner against sc and returns one outcome per scanner.
//
// Scanners are isolated: a failure, panic, or timeout in one never cancels a
// sibling and never reduces the findings other scanners produce. Findings a
// scanner returned before failing are kept on its outcome. When ctx expires,
// scanners that have not started are marked timed out without launching.
// Outcome order matches the input scanner order.
func Run(ctx context.Context, scanners []scanner.Scanner, sc *scanner.Context, opts Options) []models.ScannerOutcome {
	limit := int64(opts.Concurrency)
	if limit < 1 {
		limit = int64(len(scanners))
	}
	if limit < 1 {
		return nil
	}

	sem := semaphore.NewWeighted(limit)
	outcomes := make([]models.ScannerOutcome, len(scanners))

	var wg sync.WaitGroup
	for i, s := range scanners {
		wg.Add(1)
		go func(i int, s scanner.Scanner) {
			defer wg.Done()

			start := time.Now()
			if err := sem.Acquire(ctx, 1); err != nil {
				// Overall deadline hit before this scanner could start.
				outcomes[i] = models.ScannerOutcome{
					Scanner:  s.ID(),
					Status:   models.OutcomeTimedOut,
					Err:      err,
					Duration: time.Since(start),
				}
				return
			}
			defer sem.Release(1)

			outcomes[i] = runOne(ctx, s, sc, opts.PerScannerTimeout)
		}(i, s)
	}
	wg.Wait()

	return outcomes
}

// runOne executes a single scanner under its own timeout, converting panics
// and errors into a failed outcome.
func runOne(ctx context.Context, s scanner.Scanner, sc *scanner.Context, timeout time.Duration) models.ScannerOutcome {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	findings, err := scanSafely(runCtx, s, sc)
	elapsed := time.Since(start)

	outcome := models.ScannerOutcome{
		Scanner:  s.ID(),
		Findings: findings,
		Duration: elapsed,
	}
	switch {
	case err == nil:
		outcome.Status = models.OutcomeCompleted
	case errors.Is(err, context.DeadlineExceeded):
		// Partial findings collected before the deadline are kept.
		outcome.Status = models.OutcomeTimedOut
		outcome.Err = err
	default:
		outcome.Status = models.OutcomeFailed
		outcome.Err = err
	}
	return outcome
}

// scanSafely invokes Scan with panic capture so a crashing scanner degrades
// into a failed outcome instead of taking the process down.
func scanSafely(ctx context.Context, s scanner.Scanner, sc *scanner.Context) (findings []models.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("scanner %s panicked: %v", s.ID(), r)
		}
	}()
	return s.Scan(ctx, sc)
}
