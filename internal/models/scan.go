package models

import "time"

// ScanLevel selects which scanners run and how exhaustively.
type ScanLevel string

const (
	// ScanLevelQuick runs a small set of high-signal scanners with capped
	// parallelism.
	ScanLevelQuick ScanLevel = "quick"

	// ScanLevelStandard runs the full scanner catalog.
	ScanLevelStandard ScanLevel = "standard"

	// ScanLevelDeep runs the full catalog plus the slower deep-only checks.
	ScanLevelDeep ScanLevel = "deep"
)

// Valid reports whether l is one of the recognised scan levels.
func (l ScanLevel) Valid() bool {
	switch l {
	case ScanLevelQuick, ScanLevelStandard, ScanLevelDeep:
		return true
	}
	return false
}

// ScanRequest is the immutable input that drives one scan invocation.
type ScanRequest struct {
	AccountID string    `json:"account_id"`
	Regions   []string  `json:"regions"`
	Level     ScanLevel `json:"level"`
}

// ScanStatus is the terminal state of a scan.
type ScanStatus string

const (
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusPartial   ScanStatus = "partial"
	ScanStatusFailed    ScanStatus = "failed"
)

// OutcomeStatus is the terminal state of a single scanner execution.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimedOut  OutcomeStatus = "timed_out"
)

// ScannerOutcome is the result of one scanner execution within a scan.
// Findings collected before a timeout are kept alongside the timed_out status.
type ScannerOutcome struct {
	Scanner  string        `json:"scanner"`
	Status   OutcomeStatus `json:"status"`
	Findings []Finding     `json:"findings,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// FailedService identifies a scanner that did not complete, with enough
// detail for the caller to decide whether to retry narrowly.
type FailedService struct {
	Service   string `json:"service"`
	ErrorKind string `json:"error_kind"`
}

// Summary aggregates finding counts across one scan.
type Summary struct {
	Total      int            `json:"total"`
	Critical   int            `json:"critical"`
	High       int            `json:"high"`
	Medium     int            `json:"medium"`
	Low        int            `json:"low"`
	Info       int            `json:"info"`
	ByService  map[string]int `json:"by_service"`
	ByCategory map[string]int `json:"by_category"`
}

// Metrics records scan coverage figures.
type Metrics struct {
	ServicesScanned int `json:"services_scanned"`
	RegionsScanned  int `json:"regions_scanned"`
}

// ScanResult is the top-level output of a scan invocation. It is always
// returned as a structured value for any non-fatal outcome; only a credential
// failure yields an error instead of a result.
type ScanResult struct {
	ScanID         string          `json:"scan_id"`
	AccountID      string          `json:"account_id"`
	Regions        []string        `json:"regions"`
	Level          ScanLevel       `json:"level"`
	Status         ScanStatus      `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	DurationMs     int64           `json:"duration_ms"`
	Summary        Summary         `json:"summary"`
	Metrics        Metrics         `json:"metrics"`
	FailedServices []FailedService `json:"failed_services,omitempty"`
	Findings       []Finding       `json:"findings"`
}
