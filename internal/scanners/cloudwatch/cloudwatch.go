// Package cloudwatch scans monitoring coverage per region: the CIS alarm set
// over CloudTrail metric filters and log group hygiene.
package cloudwatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwlsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// cwAPI is the narrow CloudWatch surface the scanner needs.
type cwAPI interface {
	cwsvc.DescribeAlarmsAPIClient
}

// cwlAPI is the narrow CloudWatch Logs surface the scanner needs.
type cwlAPI interface {
	cwlsvc.DescribeLogGroupsAPIClient
	cwlsvc.DescribeMetricFiltersAPIClient
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (cwAPI, cwlAPI, error)

func defaultClients(ctx context.Context, sc *scanner.Context, region string) (cwAPI, cwlAPI, error) {
	cw, err := common.ClientFor(ctx, sc.Clients, "cloudwatch", region, func(cfg aws.Config) cwAPI {
		return cwsvc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, err
	}
	cwl, err := common.ClientFor(ctx, sc.Clients, "cloudwatchlogs", region, func(cfg aws.Config) cwlAPI {
		return cwlsvc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, err
	}
	return cw, cwl, nil
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClients}
}

func newWithClients(cw cwAPI, cwl cwlAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (cwAPI, cwlAPI, error) {
		return cw, cwl, nil
	}}
}

func (s *Scanner) ID() string { return "cloudwatch" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "cloudwatch:monitoring", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's monitoring state.
type Snapshot struct {
	Account string
	Region  string

	LogGroups []LogGroup

	// AlarmedPatterns records which watched CloudTrail patterns have both a
	// metric filter and an alarm on the filter's metric.
	AlarmedPatterns map[string]bool
}

type LogGroup struct {
	Name         string
	RetentionSet bool
	KMSEncrypted bool
}

// watchedPatterns maps a pattern key to the substrings a CloudTrail metric
// filter must contain to count as coverage for it.
var watchedPatterns = map[string][]string{
	"unauthorized-api": {"UnauthorizedOperation"},
	"root-usage":       {"Root"},
	"console-no-mfa":   {"ConsoleLogin", "MFAUsed"},
	"nacl-change":      {"NetworkAcl"},
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	cw, cwl, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Account:         sc.Account,
		Region:          region,
		AlarmedPatterns: make(map[string]bool),
	}

	if err := collectLogGroups(ctx, cwl, snap); err != nil {
		return nil, err
	}

	// Pattern coverage: a filter matching the pattern plus an alarm on the
	// filter's output metric.
	filterMetrics, err := collectFilterMetrics(ctx, cwl)
	if err != nil {
		return nil, err
	}
	alarmed, err := collectAlarmedMetrics(ctx, cw)
	if err != nil {
		return nil, err
	}
	for key, metrics := range filterMetrics {
		for _, m := range metrics {
			if alarmed[m] {
				snap.AlarmedPatterns[key] = true
			}
		}
	}

	return snap, nil
}

func collectLogGroups(ctx context.Context, cwl cwlAPI, snap *Snapshot) error {
	paginator := cwlsvc.NewDescribeLogGroupsPaginator(cwl, &cwlsvc.DescribeLogGroupsInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "logs.DescribeLogGroups", func(ctx context.Context) (*cwlsvc.DescribeLogGroupsOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return fmt.Errorf("describe log groups: %w", err)
		}
		for _, g := range page.LogGroups {
			snap.LogGroups = append(snap.LogGroups, LogGroup{
				Name:         aws.ToString(g.LogGroupName),
				RetentionSet: g.RetentionInDays != nil,
				KMSEncrypted: aws.ToString(g.KmsKeyId) != "",
			})
		}
	}
	return nil
}

// collectFilterMetrics maps each watched pattern key to the metric names of
// filters whose pattern covers it.
func collectFilterMetrics(ctx context.Context, cwl cwlAPI) (map[string][]string, error) {
	out := make(map[string][]string)
	paginator := cwlsvc.NewDescribeMetricFiltersPaginator(cwl, &cwlsvc.DescribeMetricFiltersInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "logs.DescribeMetricFilters", func(ctx context.Context) (*cwlsvc.DescribeMetricFiltersOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("describe metric filters: %w", err)
		}
		for _, f := range page.MetricFilters {
			pattern := aws.ToString(f.FilterPattern)
			for key, needles := range watchedPatterns {
				if !patternCovers(pattern, needles) {
					continue
				}
				for _, t := range f.MetricTransformations {
					out[key] = append(out[key], aws.ToString(t.MetricName))
				}
			}
		}
	}
	return out, nil
}

func patternCovers(pattern string, needles []string) bool {
	for _, n := range needles {
		if !strings.Contains(pattern, n) {
			return false
		}
	}
	return true
}

func collectAlarmedMetrics(ctx context.Context, cw cwAPI) (map[string]bool, error) {
	alarmed := make(map[string]bool)
	paginator := cwsvc.NewDescribeAlarmsPaginator(cw, &cwsvc.DescribeAlarmsInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "cloudwatch.DescribeAlarms", func(ctx context.Context) (*cwsvc.DescribeAlarmsOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("describe alarms: %w", err)
		}
		for _, a := range page.MetricAlarms {
			alarmed[aws.ToString(a.MetricName)] = true
		}
	}
	return alarmed, nil
}
