// Package rds scans relational database posture per region.
package rds

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// rdsAPI is the narrow RDS surface the scanner needs. The whole catalog
// evaluates DescribeDBInstances output.
type rdsAPI interface {
	rdssvc.DescribeDBInstancesAPIClient
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (rdsAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (rdsAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "rds", region, func(cfg aws.Config) rdsAPI {
		return rdssvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api rdsAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (rdsAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "rds" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "rds:instances", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's database inventory.
type Snapshot struct {
	Account   string
	Region    string
	Instances []Instance
}

type Instance struct {
	ID                  string
	Engine              string
	Encrypted           bool
	PubliclyAccessible  bool
	MultiAZ             bool
	BackupRetentionDays int32
	DeletionProtection  bool
	Port                int32
	AutoMinorUpgrade    bool
	PerformanceInsights bool
}

// defaultEnginePorts maps engine family prefixes to their well-known ports.
// Databases listening on the default port are trivially fingerprinted.
var defaultEnginePorts = map[string]int32{
	"mysql":     3306,
	"mariadb":   3306,
	"aurora":    3306,
	"postgres":  5432,
	"sqlserver": 1433,
	"oracle":    1521,
}

// UsesDefaultPort reports whether the instance listens on its engine's
// well-known port.
func (i Instance) UsesDefaultPort() bool {
	for prefix, port := range defaultEnginePorts {
		if strings.HasPrefix(i.Engine, prefix) {
			return i.Port == port
		}
	}
	return false
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	paginator := rdssvc.NewDescribeDBInstancesPaginator(client, &rdssvc.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "rds.DescribeDBInstances", func(ctx context.Context) (*rdssvc.DescribeDBInstancesOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}
		for _, db := range page.DBInstances {
			inst := Instance{
				ID:                  aws.ToString(db.DBInstanceIdentifier),
				Engine:              aws.ToString(db.Engine),
				Encrypted:           aws.ToBool(db.StorageEncrypted),
				PubliclyAccessible:  aws.ToBool(db.PubliclyAccessible),
				MultiAZ:             aws.ToBool(db.MultiAZ),
				BackupRetentionDays: aws.ToInt32(db.BackupRetentionPeriod),
				DeletionProtection:  aws.ToBool(db.DeletionProtection),
				AutoMinorUpgrade:    aws.ToBool(db.AutoMinorVersionUpgrade),
				PerformanceInsights: aws.ToBool(db.PerformanceInsightsEnabled),
			}
			if db.Endpoint != nil {
				inst.Port = aws.ToInt32(db.Endpoint.Port)
			}
			snap.Instances = append(snap.Instances, inst)
		}
	}
	return snap, nil
}
