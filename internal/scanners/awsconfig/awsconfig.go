// Package awsconfig scans configuration-recorder coverage per region.
package awsconfig

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// configAPI is the narrow AWS Config surface the scanner needs.
type configAPI interface {
	DescribeConfigurationRecorders(ctx context.Context, params *configsvc.DescribeConfigurationRecordersInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecordersOutput, error)
	DescribeConfigurationRecorderStatus(ctx context.Context, params *configsvc.DescribeConfigurationRecorderStatusInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (configAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (configAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "config", region, func(cfg aws.Config) configAPI {
		return configsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api configAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (configAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "awsconfig" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "config:recorders", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's recorder state.
type Snapshot struct {
	Account string
	Region  string

	RecorderName string
	Recording    bool
	AllSupported bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}

	recorders, err := common.Retry(ctx, "config.DescribeConfigurationRecorders", func(ctx context.Context) (*configsvc.DescribeConfigurationRecordersOutput, error) {
		return client.DescribeConfigurationRecorders(ctx, &configsvc.DescribeConfigurationRecordersInput{})
	})
	if err != nil {
		return nil, fmt.Errorf("describe recorders: %w", err)
	}
	if len(recorders.ConfigurationRecorders) == 0 {
		return snap, nil
	}

	rec := recorders.ConfigurationRecorders[0]
	snap.RecorderName = aws.ToString(rec.Name)
	if rec.RecordingGroup != nil {
		snap.AllSupported = rec.RecordingGroup.AllSupported
	}

	status, err := client.DescribeConfigurationRecorderStatus(ctx, &configsvc.DescribeConfigurationRecorderStatusInput{})
	if err != nil {
		return nil, fmt.Errorf("describe recorder status: %w", err)
	}
	for _, st := range status.ConfigurationRecordersStatus {
		if aws.ToString(st.Name) == snap.RecorderName {
			snap.Recording = st.Recording
		}
	}

	return snap, nil
}
