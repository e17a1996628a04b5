package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// fakeScanner is a configurable Scanner for executor tests.
type fakeScanner struct {
	id       string
	findings []models.Finding
	err      error
	panicMsg string
	delay    time.Duration
	running  *int32 // incremented while Scan is in flight (for concurrency assertions)
	maxSeen  *int32
}

func (f *fakeScanner) ID() string              { return f.id }
func (f *fakeScanner) Checks() []scanner.Check { return nil }

func (f *fakeScanner) Scan(ctx context.Context, _ *scanner.Context) ([]models.Finding, error) {
	if f.running != nil {
		cur := atomic.AddInt32(f.running, 1)
		for {
			max := atomic.LoadInt32(f.maxSeen)
			if cur <= max || atomic.CompareAndSwapInt32(f.maxSeen, max, cur) {
				break
			}
		}
		defer atomic.AddInt32(f.running, -1)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.findings, f.err
}

func finding(id string) models.Finding {
	return models.Finding{ID: id, ResourceID: id, Severity: models.SeverityLow}
}

func TestRun_AllComplete(t *testing.T) {
	scanners := []scanner.Scanner{
		&fakeScanner{id: "iam", findings: []models.Finding{finding("a")}},
		&fakeScanner{id: "s3", findings: []models.Finding{finding("b"), finding("c")}},
	}

	outcomes := Run(context.Background(), scanners, &scanner.Context{}, Options{})
	if len(outcomes) != 2 {
		t.Fatalf("want 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Scanner != "iam" || outcomes[1].Scanner != "s3" {
		t.Errorf("outcome order must match input order: %v, %v", outcomes[0].Scanner, outcomes[1].Scanner)
	}
	for _, o := range outcomes {
		if o.Status != models.OutcomeCompleted {
			t.Errorf("scanner %s: status %q; want completed", o.Scanner, o.Status)
		}
	}
	if len(outcomes[1].Findings) != 2 {
		t.Errorf("s3 findings = %d; want 2", len(outcomes[1].Findings))
	}
}

// TestRun_FailureIsolation verifies the core invariant: a failing scanner and
// a panicking scanner never reduce the findings of their siblings.
func TestRun_FailureIsolation(t *testing.T) {
	scanners := []scanner.Scanner{
		&fakeScanner{id: "iam", findings: []models.Finding{finding("a")}},
		&fakeScanner{id: "broken", err: errors.New("collect exploded")},
		&fakeScanner{id: "crashy", panicMsg: "nil deref"},
		&fakeScanner{id: "s3", findings: []models.Finding{finding("b")}},
	}

	outcomes := Run(context.Background(), scanners, &scanner.Context{}, Options{})

	byID := map[string]models.ScannerOutcome{}
	for _, o := range outcomes {
		byID[o.Scanner] = o
	}

	if byID["broken"].Status != models.OutcomeFailed {
		t.Errorf("broken: status %q; want failed", byID["broken"].Status)
	}
	if byID["crashy"].Status != models.OutcomeFailed {
		t.Errorf("crashy: status %q; want failed", byID["crashy"].Status)
	}
	if byID["crashy"].Err == nil {
		t.Error("crashy: panic must surface as an error")
	}
	if len(byID["iam"].Findings) != 1 || len(byID["s3"].Findings) != 1 {
		t.Error("healthy scanners lost findings because a sibling failed")
	}
}

func TestRun_PerScannerTimeout(t *testing.T) {
	scanners := []scanner.Scanner{
		&fakeScanner{id: "slow", delay: 5 * time.Second},
		&fakeScanner{id: "fast", findings: []models.Finding{finding("a")}},
	}

	outcomes := Run(context.Background(), scanners, &scanner.Context{}, Options{
		PerScannerTimeout: 50 * time.Millisecond,
	})

	byID := map[string]models.ScannerOutcome{}
	for _, o := range outcomes {
		byID[o.Scanner] = o
	}
	if byID["slow"].Status != models.OutcomeTimedOut {
		t.Errorf("slow: status %q; want timed_out", byID["slow"].Status)
	}
	if byID["fast"].Status != models.OutcomeCompleted {
		t.Errorf("fast: status %q; want completed", byID["fast"].Status)
	}
}

// TestRun_BoundedConcurrency verifies that no more than Concurrency scanners
// are ever in flight at once.
func TestRun_BoundedConcurrency(t *testing.T) {
	var running, maxSeen int32
	var scanners []scanner.Scanner
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		scanners = append(scanners, &fakeScanner{
			id:      id,
			delay:   20 * time.Millisecond,
			running: &running,
			maxSeen: &maxSeen,
		})
	}

	Run(context.Background(), scanners, &scanner.Context{}, Options{Concurrency: 2})

	if got := atomic.LoadInt32(&maxSeen); got > 2 {
		t.Errorf("observed %d concurrent scanners; want at most 2", got)
	}
}

// TestRun_OverallDeadlineStopsLaunches verifies that when the overall context
// expires, queued scanners are marked timed_out without running.
func TestRun_OverallDeadlineStopsLaunches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	scanners := []scanner.Scanner{
		&fakeScanner{id: "holder", delay: 200 * time.Millisecond},
		&fakeScanner{id: "queued", findings: []models.Finding{finding("x")}},
	}

	outcomes := Run(ctx, scanners, &scanner.Context{}, Options{Concurrency: 1})

	byID := map[string]models.ScannerOutcome{}
	for _, o := range outcomes {
		byID[o.Scanner] = o
	}
	if byID["queued"].Status != models.OutcomeTimedOut {
		t.Errorf("queued: status %q; want timed_out when the deadline expires before launch", byID["queued"].Status)
	}
	if len(byID["queued"].Findings) != 0 {
		t.Error("queued scanner must not have produced findings")
	}
}
