// Package redshift scans data warehouse clusters for exposure and hygiene.
package redshift

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	redshiftsvc "github.com/aws/aws-sdk-go-v2/service/redshift"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// Snapshots retained for fewer days than this leave thin recovery windows.
const minSnapshotRetentionDays = 7

// The console default master user name, a permanent fixture of brute-force lists.
const defaultMasterUser = "awsuser"

// redshiftAPI is the narrow Redshift surface the scanner needs.
type redshiftAPI interface {
	redshiftsvc.DescribeClustersAPIClient
	DescribeLoggingStatus(ctx context.Context, params *redshiftsvc.DescribeLoggingStatusInput, optFns ...func(*redshiftsvc.Options)) (*redshiftsvc.DescribeLoggingStatusOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (redshiftAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (redshiftAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "redshift", region, func(cfg aws.Config) redshiftAPI {
		return redshiftsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api redshiftAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (redshiftAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "redshift" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "redshift:clusters", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's cluster inventory.
type Snapshot struct {
	Account  string
	Region   string
	Clusters []Cluster
}

type Cluster struct {
	ID string

	Encrypted          bool
	PubliclyAccessible bool
	EnhancedVPCRouting bool
	RetentionDays      int32
	AuditLogging       bool
	MasterUsername     string
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := redshiftsvc.NewDescribeClustersPaginator(client, &redshiftsvc.DescribeClustersInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "redshift.DescribeClusters", func(ctx context.Context) (*redshiftsvc.DescribeClustersOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("describe clusters: %w", err)
		}
		for _, c := range page.Clusters {
			cluster := Cluster{
				ID:                 aws.ToString(c.ClusterIdentifier),
				Encrypted:          aws.ToBool(c.Encrypted),
				PubliclyAccessible: aws.ToBool(c.PubliclyAccessible),
				EnhancedVPCRouting: aws.ToBool(c.EnhancedVpcRouting),
				RetentionDays:      aws.ToInt32(c.AutomatedSnapshotRetentionPeriod),
				MasterUsername:     aws.ToString(c.MasterUsername),
			}

			// Logging status failures keep the conservative default of enabled.
			cluster.AuditLogging = true
			logging, err := client.DescribeLoggingStatus(ctx, &redshiftsvc.DescribeLoggingStatusInput{
				ClusterIdentifier: c.ClusterIdentifier,
			})
			if err != nil {
				sc.Logger().WithField("cluster", cluster.ID).WithError(err).Warn("describe logging status failed")
			} else {
				cluster.AuditLogging = aws.ToBool(logging.LoggingEnabled)
			}

			snap.Clusters = append(snap.Clusters, cluster)
		}
	}
	return snap, nil
}
