// Package cloudfront scans CDN distributions for transport and edge hygiene.
package cloudfront

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cfsvc "github.com/aws/aws-sdk-go-v2/service/cloudfront"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// cloudFrontAPI is the narrow CloudFront surface the scanner needs.
type cloudFrontAPI interface {
	cfsvc.ListDistributionsAPIClient
	GetDistributionConfig(ctx context.Context, params *cfsvc.GetDistributionConfigInput, optFns ...func(*cfsvc.Options)) (*cfsvc.GetDistributionConfigOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context) (cloudFrontAPI, error)

// CloudFront is a global service served from us-east-1.
func defaultClient(ctx context.Context, sc *scanner.Context) (cloudFrontAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "cloudfront", "us-east-1", func(cfg aws.Config) cloudFrontAPI {
		return cfsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api cloudFrontAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context) (cloudFrontAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "cloudfront" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	snap, err := cache.Fetch(ctx, sc.Cache,
		cache.Key{Account: sc.Account, Region: "global", ResourceType: "cloudfront:distributions"},
		func(ctx context.Context) (*Snapshot, error) {
			return s.collect(ctx, sc)
		})
	if err != nil {
		return nil, err
	}
	return scanner.RunChecks(sc, s.ID(), snap, checks), nil
}

// Snapshot is the account's distribution inventory.
type Snapshot struct {
	Account       string
	Distributions []Distribution
}

type Distribution struct {
	ID         string
	ARN        string
	DomainName string
	Enabled    bool

	AllowsPlainHTTP      bool
	MinProtocol          string
	WAFAttached          bool
	LoggingEnabled       bool
	OriginFailover       bool
	FieldLevelEncryption bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context) (*Snapshot, error) {
	client, err := s.clients(ctx, sc)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account}
	pager := cfsvc.NewListDistributionsPaginator(client, &cfsvc.ListDistributionsInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "cloudfront.ListDistributions", func(ctx context.Context) (*cfsvc.ListDistributionsOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list distributions: %w", err)
		}
		if page.DistributionList == nil {
			continue
		}
		for _, d := range page.DistributionList.Items {
			dist := Distribution{
				ID:         aws.ToString(d.Id),
				ARN:        aws.ToString(d.ARN),
				DomainName: aws.ToString(d.DomainName),
				Enabled:    aws.ToBool(d.Enabled),
			}
			if d.DefaultCacheBehavior != nil {
				dist.AllowsPlainHTTP = string(d.DefaultCacheBehavior.ViewerProtocolPolicy) == "allow-all"
				dist.FieldLevelEncryption = aws.ToString(d.DefaultCacheBehavior.FieldLevelEncryptionId) != ""
			}
			if d.ViewerCertificate != nil {
				dist.MinProtocol = string(d.ViewerCertificate.MinimumProtocolVersion)
			}
			dist.WAFAttached = aws.ToString(d.WebACLId) != ""
			if d.OriginGroups != nil {
				dist.OriginFailover = aws.ToInt32(d.OriginGroups.Quantity) > 0
			}

			// Logging only surfaces on the full config. Failure here keeps
			// the conservative default of logging enabled.
			dist.LoggingEnabled = true
			cfg, err := client.GetDistributionConfig(ctx, &cfsvc.GetDistributionConfigInput{Id: d.Id})
			if err != nil {
				sc.Logger().WithField("distribution", dist.ID).WithError(err).Warn("get distribution config failed")
			} else if cfg.DistributionConfig != nil && cfg.DistributionConfig.Logging != nil {
				dist.LoggingEnabled = aws.ToBool(cfg.DistributionConfig.Logging.Enabled)
			}

			snap.Distributions = append(snap.Distributions, dist)
		}
	}
	return snap, nil
}

// legacyMinProtocol reports whether the viewer certificate floor allows a
// protocol older than TLS 1.2.
func legacyMinProtocol(min string) bool {
	if min == "" {
		return false
	}
	return !strings.HasPrefix(min, "TLSv1.2") && !strings.HasPrefix(min, "TLSv1.3")
}
