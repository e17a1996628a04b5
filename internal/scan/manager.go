// Package scan contains the top-level orchestrator for one scan invocation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/compliance"
	"github.com/evosec/cloudscan/internal/executor"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// quickServices is the fixed high-signal subset run at the quick level.
var quickServices = []string{"iam", "s3", "ec2", "vpc", "cloudtrail", "guardduty"}

// quickConcurrency caps parallelism at the quick level to stay well inside
// account-level API rate limits. Standard and deep run at full parallelism.
const quickConcurrency = 6

// Options tunes a Manager. Zero values fall back to production defaults.
type Options struct {
	// OverallTimeout bounds the whole scan. Default 5 minutes.
	OverallTimeout time.Duration

	// PerScannerTimeout bounds each scanner execution. Default 90 seconds.
	PerScannerTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = 5 * time.Minute
	}
	if o.PerScannerTimeout <= 0 {
		o.PerScannerTimeout = 90 * time.Second
	}
	return o
}

// Manager drives one scan invocation end to end: level resolution, credential
// establishment, parallel scanner execution, compliance stamping, and summary
// aggregation. It holds no per-scan state; Run may be called concurrently for
// independent scans.
type Manager struct {
	registry *scanner.Registry
	table    *compliance.Table
	provider common.CredentialProvider
	opts     Options
	log      *logrus.Logger
}

// NewManager wires a Manager to the supplied registry, compliance table, and
// credential provider collaborator.
func NewManager(
	registry *scanner.Registry,
	table *compliance.Table,
	provider common.CredentialProvider,
	opts Options,
	log *logrus.Logger,
) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		registry: registry,
		table:    table,
		provider: provider,
		opts:     opts.withDefaults(),
		log:      log,
	}
}

// Run executes one scan. Every non-fatal outcome returns a structured
// ScanResult; only an invalid request or a credential failure returns an
// error. A credential failure always aborts before any scanner launches.
func (m *Manager) Run(ctx context.Context, req models.ScanRequest) (*models.ScanResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	scanID := uuid.NewString()
	log := m.log.WithFields(logrus.Fields{
		"scan_id": scanID,
		"account": req.AccountID,
		"level":   req.Level,
	})
	log.Info("scan pending: resolving credentials")

	started := time.Now()

	// Identity must be established before anything else; failure here is
	// fatal for the whole scan with no partial result.
	factory := common.NewFactory(req.AccountID, m.provider, log)
	if err := factory.Connect(ctx); err != nil {
		log.WithError(err).Error("scan aborted: identity could not be established")
		return nil, err
	}

	scanners, concurrency := m.resolve(req.Level)
	log.WithFields(logrus.Fields{
		"scanners":    len(scanners),
		"concurrency": concurrency,
	}).Info("scan running")

	runCtx, cancel := context.WithTimeout(ctx, m.opts.OverallTimeout)
	defer cancel()

	sc := &scanner.Context{
		ScanID:  scanID,
		Account: req.AccountID,
		Regions: req.Regions,
		Level:   req.Level,
		Clients: factory,
		Cache:   cache.New(),
		Log:     log,
	}

	outcomes := executor.Run(runCtx, scanners, sc, executor.Options{
		Concurrency:       concurrency,
		PerScannerTimeout: m.opts.PerScannerTimeout,
	})

	result := m.assemble(scanID, req, started, scanners, outcomes)
	log.WithFields(logrus.Fields{
		"status":   result.Status,
		"findings": result.Summary.Total,
		"failed":   len(result.FailedServices),
	}).Info("scan finished")
	return result, nil
}

// validate rejects malformed requests before any credential work happens.
func validate(req models.ScanRequest) error {
	if req.AccountID == "" {
		return fmt.Errorf("scan request: account id is required")
	}
	if len(req.Regions) == 0 {
		return fmt.Errorf("scan request: at least one region is required")
	}
	if !req.Level.Valid() {
		return fmt.Errorf("scan request: unknown scan level %q", req.Level)
	}
	return nil
}

// resolve maps a scan level to the concrete scanner set and concurrency cap.
func (m *Manager) resolve(level models.ScanLevel) ([]scanner.Scanner, int) {
	if level == models.ScanLevelQuick {
		return m.registry.Select(quickServices), quickConcurrency
	}
	all := m.registry.All()
	return all, len(all)
}

// assemble folds the scanner outcomes into the final ScanResult: compliance
// stamping, severity/service/category aggregation, and status derivation.
func (m *Manager) assemble(
	scanID string,
	req models.ScanRequest,
	started time.Time,
	scanners []scanner.Scanner,
	outcomes []models.ScannerOutcome,
) *models.ScanResult {
	var (
		findings []models.Finding
		failed   []models.FailedService
		succeeded int
	)

	for _, o := range outcomes {
		findings = append(findings, o.Findings...)
		switch o.Status {
		case models.OutcomeCompleted:
			succeeded++
		default:
			failed = append(failed, models.FailedService{
				Service:   o.Scanner,
				ErrorKind: errorKind(o),
			})
		}
	}

	// Pure lookup over the immutable table; check ids were validated at
	// scanner registration so this can never miss.
	for i := range findings {
		findings[i].ComplianceRefs = m.table.Refs(findings[i].CheckID)
	}

	sortFindings(findings)

	status := models.ScanStatusCompleted
	switch {
	case len(failed) == len(outcomes) && len(outcomes) > 0:
		status = models.ScanStatusFailed
	case len(failed) > 0:
		status = models.ScanStatusPartial
	}

	return &models.ScanResult{
		ScanID:     scanID,
		AccountID:  req.AccountID,
		Regions:    req.Regions,
		Level:      req.Level,
		Status:     status,
		StartedAt:  started.UTC(),
		DurationMs: time.Since(started).Milliseconds(),
		Summary:    computeSummary(findings),
		Metrics: models.Metrics{
			ServicesScanned: succeeded,
			RegionsScanned:  len(req.Regions),
		},
		FailedServices: failed,
		Findings:       findings,
	}
}

// errorKind classifies an outcome error for the caller's narrow-retry
// decision.
func errorKind(o models.ScannerOutcome) string {
	if o.Status == models.OutcomeTimedOut {
		return "timeout"
	}
	var te *common.TransientError
	if errors.As(o.Err, &te) {
		return "transient"
	}
	return "scanner_error"
}

// computeSummary aggregates counts by severity, service, and category in a
// single pass. summary.Total always equals the severity counts' sum and the
// findings length.
func computeSummary(findings []models.Finding) models.Summary {
	s := models.Summary{
		Total:      len(findings),
		ByService:  make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityHigh:
			s.High++
		case models.SeverityMedium:
			s.Medium++
		case models.SeverityLow:
			s.Low++
		case models.SeverityInfo:
			s.Info++
		}
		s.ByService[f.Service]++
		s.ByCategory[string(f.Category)]++
	}
	return s
}

// sortFindings orders findings severity-first for presentation. Cross-scanner
// completion order varies run to run, so the sort also makes output
// deterministic for identical inputs.
func sortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ri := models.SeverityRank[findings[i].Severity]
		rj := models.SeverityRank[findings[j].Severity]
		if ri != rj {
			return ri < rj
		}
		if findings[i].CheckID != findings[j].CheckID {
			return findings[i].CheckID < findings[j].CheckID
		}
		return findings[i].ResourceID < findings[j].ResourceID
	})
}
