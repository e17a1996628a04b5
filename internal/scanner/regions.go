package scanner

import (
	"context"
	"fmt"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
)

// ForEachRegion runs a regional scanner's collect-then-evaluate cycle over
// every region in the scan request. Each region's snapshot is cached under
// (account, region, resourceType) so sibling scanners sharing a listing
// deduplicate the fetch.
//
// A single region failing is logged and skipped; the scanner only fails as a
// whole when no region could be collected. Partial findings from the healthy
// regions are returned either way.
func ForEachRegion[S any](
	ctx context.Context,
	sc *Context,
	service, resourceType string,
	collect func(ctx context.Context, region string) (S, error),
	defs []Def[S],
) ([]models.Finding, error) {
	log := sc.Logger().WithField("scanner", service)

	var (
		findings  []models.Finding
		firstErr  error
		collected int
	)
	for _, region := range sc.Regions {
		region := region
		snap, err := cache.Fetch(ctx, sc.Cache,
			cache.Key{Account: sc.Account, Region: region, ResourceType: resourceType},
			func(ctx context.Context) (S, error) {
				return collect(ctx, region)
			})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("region %s: %w", region, err)
			}
			log.WithField("region", region).WithError(err).Warn("region collection failed; skipping")
			continue
		}
		collected++
		findings = append(findings, RunChecks(sc, service, snap, defs)...)
	}

	if collected == 0 && firstErr != nil {
		return findings, firstErr
	}
	return findings, nil
}
