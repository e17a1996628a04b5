// Package cloudtrail scans audit-trail coverage for the account.
package cloudtrail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ctsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// cloudTrailAPI is the narrow CloudTrail surface the scanner needs.
// DescribeTrails with shadow trails included returns the account-wide view
// from any single region.
type cloudTrailAPI interface {
	DescribeTrails(ctx context.Context, params *ctsvc.DescribeTrailsInput, optFns ...func(*ctsvc.Options)) (*ctsvc.DescribeTrailsOutput, error)
	GetEventSelectors(ctx context.Context, params *ctsvc.GetEventSelectorsInput, optFns ...func(*ctsvc.Options)) (*ctsvc.GetEventSelectorsOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context) (cloudTrailAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context) (cloudTrailAPI, error) {
	region := "us-east-1"
	if len(sc.Regions) > 0 {
		region = sc.Regions[0]
	}
	return common.ClientFor(ctx, sc.Clients, "cloudtrail", region, func(cfg aws.Config) cloudTrailAPI {
		return ctsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api cloudTrailAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context) (cloudTrailAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "cloudtrail" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	snap, err := cache.Fetch(ctx, sc.Cache,
		cache.Key{Account: sc.Account, Region: "global", ResourceType: "cloudtrail:trails"},
		func(ctx context.Context) (*Snapshot, error) {
			return s.collect(ctx, sc)
		})
	if err != nil {
		return nil, err
	}
	return scanner.RunChecks(sc, s.ID(), snap, checks), nil
}

// Snapshot is the account's trail configuration.
type Snapshot struct {
	Account string
	Trails  []Trail
}

type Trail struct {
	Name           string
	ARN            string
	HomeRegion     string
	MultiRegion    bool
	LogValidation  bool
	KMSEncrypted   bool
	CloudWatchLogs bool
	DataEvents     bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context) (*Snapshot, error) {
	client, err := s.clients(ctx, sc)
	if err != nil {
		return nil, err
	}

	out, err := common.Retry(ctx, "cloudtrail.DescribeTrails", func(ctx context.Context) (*ctsvc.DescribeTrailsOutput, error) {
		return client.DescribeTrails(ctx, &ctsvc.DescribeTrailsInput{
			IncludeShadowTrails: aws.Bool(true),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("describe trails: %w", err)
	}

	snap := &Snapshot{Account: sc.Account}
	seen := make(map[string]bool)
	for _, t := range out.TrailList {
		trailARN := aws.ToString(t.TrailARN)
		// Shadow trails repeat the home trail per region.
		if seen[trailARN] {
			continue
		}
		seen[trailARN] = true

		trail := Trail{
			Name:           aws.ToString(t.Name),
			ARN:            trailARN,
			HomeRegion:     aws.ToString(t.HomeRegion),
			MultiRegion:    aws.ToBool(t.IsMultiRegionTrail),
			LogValidation:  aws.ToBool(t.LogFileValidationEnabled),
			KMSEncrypted:   aws.ToString(t.KmsKeyId) != "",
			CloudWatchLogs: aws.ToString(t.CloudWatchLogsLogGroupArn) != "",
		}

		selectors, err := client.GetEventSelectors(ctx, &ctsvc.GetEventSelectorsInput{TrailName: t.TrailARN})
		if err == nil {
			trail.DataEvents = hasDataEvents(selectors)
		}

		snap.Trails = append(snap.Trails, trail)
	}
	return snap, nil
}

func hasDataEvents(out *ctsvc.GetEventSelectorsOutput) bool {
	for _, sel := range out.EventSelectors {
		if len(sel.DataResources) > 0 {
			return true
		}
	}
	for _, sel := range out.AdvancedEventSelectors {
		for _, f := range sel.FieldSelectors {
			if aws.ToString(f.Field) == "eventCategory" && containsValue(f.Equals, "Data") {
				return true
			}
		}
	}
	return false
}

func containsValue(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
