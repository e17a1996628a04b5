// Package scanner defines the contract every service scanner implements and
// the shared check-evaluation loop.
package scanner

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
)

// Context carries everything a scanner needs for one scan invocation.
// It is shared read-only across all concurrently running scanners; the
// resource cache inside it performs its own per-key locking.
type Context struct {
	// ScanID identifies the invocation for log correlation.
	ScanID string

	// Account is the AWS account under scan.
	Account string

	// Regions is the ordered region list from the scan request. Scanners
	// iterate it for regional resources; global services ignore it.
	Regions []string

	// Level is the requested scan depth. Deep-only checks are skipped
	// unless Level is ScanLevelDeep.
	Level models.ScanLevel

	// Clients is the per-scan client factory. Scanners must obtain every
	// SDK client through it; they never construct credentials themselves.
	Clients *common.Factory

	// Cache is the per-scan resource cache. Scanners must route every
	// resource listing through it so repeated lookups deduplicate.
	Cache *cache.Store

	// Log is pre-tagged with the scan id.
	Log *logrus.Entry
}

// Logger returns the context logger, falling back to the standard logger so
// bare test contexts never nil-panic.
func (c *Context) Logger() *logrus.Entry {
	if c.Log != nil {
		return c.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Scanner is a single checkable unit covering one cloud service domain.
//
// Implementations own a fixed catalog of checks, fetch their resources
// through Context.Clients and Context.Cache, and must be safe to run
// concurrently with other scanners. An error from Scan marks the whole
// scanner failed but never affects sibling scanners.
type Scanner interface {
	// ID returns the stable service name, e.g. "iam" or "s3".
	ID() string

	// Checks returns the scanner's check catalog in declaration order.
	Checks() []Check

	// Scan collects the scanner's resources and evaluates its catalog,
	// returning all findings. Partial findings may be returned alongside
	// an error when collection fails midway.
	Scan(ctx context.Context, sc *Context) ([]models.Finding, error)
}
