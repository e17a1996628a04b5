// Package dynamodb scans tables for backup and encryption posture.
package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddbsvc "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// dynamoAPI is the narrow DynamoDB surface the scanner needs.
type dynamoAPI interface {
	ddbsvc.ListTablesAPIClient
	DescribeTable(ctx context.Context, params *ddbsvc.DescribeTableInput, optFns ...func(*ddbsvc.Options)) (*ddbsvc.DescribeTableOutput, error)
	DescribeContinuousBackups(ctx context.Context, params *ddbsvc.DescribeContinuousBackupsInput, optFns ...func(*ddbsvc.Options)) (*ddbsvc.DescribeContinuousBackupsOutput, error)
	DescribeTimeToLive(ctx context.Context, params *ddbsvc.DescribeTimeToLiveInput, optFns ...func(*ddbsvc.Options)) (*ddbsvc.DescribeTimeToLiveOutput, error)
	ListBackups(ctx context.Context, params *ddbsvc.ListBackupsInput, optFns ...func(*ddbsvc.Options)) (*ddbsvc.ListBackupsOutput, error)
	GetResourcePolicy(ctx context.Context, params *ddbsvc.GetResourcePolicyInput, optFns ...func(*ddbsvc.Options)) (*ddbsvc.GetResourcePolicyOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (dynamoAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (dynamoAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "dynamodb", region, func(cfg aws.Config) dynamoAPI {
		return ddbsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api dynamoAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (dynamoAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "dynamodb" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "dynamodb:tables", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's table inventory.
type Snapshot struct {
	Account string
	Region  string
	Tables  []Table
}

type Table struct {
	Name string
	ARN  string

	UsesCMK       bool
	PITREnabled   bool
	HasBackups    bool
	TTLEnabled    bool
	PublicGateway bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := ddbsvc.NewListTablesPaginator(client, &ddbsvc.ListTablesInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "dynamodb.ListTables", func(ctx context.Context) (*ddbsvc.ListTablesOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		for _, name := range page.TableNames {
			snap.Tables = append(snap.Tables, s.describeTable(ctx, sc, client, name))
		}
	}
	return snap, nil
}

// describeTable enriches one table. Failed attribute calls keep conservative
// defaults so we never report a misconfiguration we could not confirm.
func (s *Scanner) describeTable(ctx context.Context, sc *scanner.Context, client dynamoAPI, name string) Table {
	log := sc.Logger().WithField("table", name)
	table := Table{Name: name, UsesCMK: true, PITREnabled: true, HasBackups: true}

	desc, err := client.DescribeTable(ctx, &ddbsvc.DescribeTableInput{TableName: aws.String(name)})
	if err != nil {
		log.WithError(err).Warn("describe table failed")
	} else if desc.Table != nil {
		table.ARN = aws.ToString(desc.Table.TableArn)
		sse := desc.Table.SSEDescription
		table.UsesCMK = sse != nil && aws.ToString(sse.KMSMasterKeyArn) != ""
	}

	backups, err := client.DescribeContinuousBackups(ctx, &ddbsvc.DescribeContinuousBackupsInput{TableName: aws.String(name)})
	if err != nil {
		log.WithError(err).Warn("describe continuous backups failed")
	} else if backups.ContinuousBackupsDescription != nil {
		pitr := backups.ContinuousBackupsDescription.PointInTimeRecoveryDescription
		table.PITREnabled = pitr != nil && pitr.PointInTimeRecoveryStatus == ddbtypes.PointInTimeRecoveryStatusEnabled
	}

	if !table.PITREnabled {
		table.HasBackups = false
		onDemand, err := client.ListBackups(ctx, &ddbsvc.ListBackupsInput{
			TableName: aws.String(name),
			Limit:     aws.Int32(1),
		})
		if err != nil {
			log.WithError(err).Warn("list backups failed")
			table.HasBackups = true
		} else {
			table.HasBackups = len(onDemand.BackupSummaries) > 0
		}
	}

	ttl, err := client.DescribeTimeToLive(ctx, &ddbsvc.DescribeTimeToLiveInput{TableName: aws.String(name)})
	if err == nil && ttl.TimeToLiveDescription != nil {
		table.TTLEnabled = ttl.TimeToLiveDescription.TimeToLiveStatus == ddbtypes.TimeToLiveStatusEnabled
	}

	// Tables without a resource policy return an error here, which is the
	// common case and not worth logging.
	if table.ARN != "" {
		policy, err := client.GetResourcePolicy(ctx, &ddbsvc.GetResourcePolicyInput{ResourceArn: aws.String(table.ARN)})
		if err == nil {
			table.PublicGateway = policyAllowsAnyPrincipal(aws.ToString(policy.Policy))
		}
	}

	return table
}

// policyAllowsAnyPrincipal reports an unconditional Allow for principal "*".
func policyAllowsAnyPrincipal(doc string) bool {
	if doc == "" {
		return false
	}
	var policy struct {
		Statement []struct {
			Effect    string          `json:"Effect"`
			Principal json.RawMessage `json:"Principal"`
			Condition json.RawMessage `json:"Condition"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(doc), &policy); err != nil {
		return false
	}
	for _, stmt := range policy.Statement {
		if stmt.Effect != "Allow" || len(stmt.Condition) > 0 {
			continue
		}
		var plain string
		if err := json.Unmarshal(stmt.Principal, &plain); err == nil && plain == "*" {
			return true
		}
		var keyed map[string]any
		if err := json.Unmarshal(stmt.Principal, &keyed); err == nil {
			if p, ok := keyed["AWS"].(string); ok && p == "*" {
				return true
			}
		}
	}
	return false
}
