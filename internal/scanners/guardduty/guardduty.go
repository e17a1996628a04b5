// Package guardduty scans threat-detection coverage per region.
package guardduty

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	gdsvc "github.com/aws/aws-sdk-go-v2/service/guardduty"
	gdtypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// guardDutyAPI is the narrow GuardDuty surface the scanner needs.
type guardDutyAPI interface {
	ListDetectors(ctx context.Context, params *gdsvc.ListDetectorsInput, optFns ...func(*gdsvc.Options)) (*gdsvc.ListDetectorsOutput, error)
	GetDetector(ctx context.Context, params *gdsvc.GetDetectorInput, optFns ...func(*gdsvc.Options)) (*gdsvc.GetDetectorOutput, error)
	ListPublishingDestinations(ctx context.Context, params *gdsvc.ListPublishingDestinationsInput, optFns ...func(*gdsvc.Options)) (*gdsvc.ListPublishingDestinationsOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (guardDutyAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (guardDutyAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "guardduty", region, func(cfg aws.Config) guardDutyAPI {
		return gdsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api guardDutyAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (guardDutyAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "guardduty" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "guardduty:detectors", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's detector state. A region has at most one detector.
type Snapshot struct {
	Account string
	Region  string

	DetectorID    string
	Enabled       bool
	ExportsEvents bool
	S3Protection  bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}

	detectors, err := common.Retry(ctx, "guardduty.ListDetectors", func(ctx context.Context) (*gdsvc.ListDetectorsOutput, error) {
		return client.ListDetectors(ctx, &gdsvc.ListDetectorsInput{})
	})
	if err != nil {
		return nil, fmt.Errorf("list detectors: %w", err)
	}
	if len(detectors.DetectorIds) == 0 {
		return snap, nil
	}
	snap.DetectorID = detectors.DetectorIds[0]

	detector, err := client.GetDetector(ctx, &gdsvc.GetDetectorInput{
		DetectorId: aws.String(snap.DetectorID),
	})
	if err != nil {
		return nil, fmt.Errorf("get detector %s: %w", snap.DetectorID, err)
	}
	snap.Enabled = detector.Status == gdtypes.DetectorStatusEnabled
	if detector.DataSources != nil && detector.DataSources.S3Logs != nil {
		snap.S3Protection = detector.DataSources.S3Logs.Status == gdtypes.DataSourceStatusEnabled
	}

	destinations, err := client.ListPublishingDestinations(ctx, &gdsvc.ListPublishingDestinationsInput{
		DetectorId: aws.String(snap.DetectorID),
	})
	if err == nil {
		snap.ExportsEvents = len(destinations.Destinations) > 0
	}

	return snap, nil
}
