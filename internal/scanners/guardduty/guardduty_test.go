package guardduty

import (
	"context"
	"testing"

	gdsvc "github.com/aws/aws-sdk-go-v2/service/guardduty"
	gdtypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

type fakeGuardDuty struct {
	detectorIDs  []string
	status       gdtypes.DetectorStatus
	s3Protection gdtypes.DataSourceStatus
	destinations int
}

func (f *fakeGuardDuty) ListDetectors(context.Context, *gdsvc.ListDetectorsInput, ...func(*gdsvc.Options)) (*gdsvc.ListDetectorsOutput, error) {
	return &gdsvc.ListDetectorsOutput{DetectorIds: f.detectorIDs}, nil
}

func (f *fakeGuardDuty) GetDetector(context.Context, *gdsvc.GetDetectorInput, ...func(*gdsvc.Options)) (*gdsvc.GetDetectorOutput, error) {
	return &gdsvc.GetDetectorOutput{
		Status: f.status,
		DataSources: &gdtypes.DataSourceConfigurationsResult{
			S3Logs: &gdtypes.S3LogsConfigurationResult{Status: f.s3Protection},
		},
	}, nil
}

func (f *fakeGuardDuty) ListPublishingDestinations(context.Context, *gdsvc.ListPublishingDestinationsInput, ...func(*gdsvc.Options)) (*gdsvc.ListPublishingDestinationsOutput, error) {
	out := &gdsvc.ListPublishingDestinationsOutput{}
	for i := 0; i < f.destinations; i++ {
		out.Destinations = append(out.Destinations, gdtypes.Destination{})
	}
	return out, nil
}

func testContext(level models.ScanLevel) *scanner.Context {
	return &scanner.Context{
		ScanID:  "scan-1",
		Account: "111122223333",
		Regions: []string{"sa-east-1"},
		Level:   level,
		Cache:   cache.New(),
	}
}

func checkIDs(fs []models.Finding) map[string]int {
	m := make(map[string]int)
	for _, f := range fs {
		m[f.CheckID]++
	}
	return m
}

func TestScan_NoDetector(t *testing.T) {
	fs, err := newWithClient(&fakeGuardDuty{}).Scan(context.Background(), testContext(models.ScanLevelStandard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := checkIDs(fs)
	if got["GUARDDUTY_NOT_ENABLED"] != 1 {
		t.Errorf("findings = %v; want GUARDDUTY_NOT_ENABLED once", got)
	}
	// Detector-dependent checks must stay quiet without a detector.
	if len(fs) != 1 {
		t.Errorf("want only the not-enabled finding, got %v", got)
	}
}

func TestScan_SuspendedDetector(t *testing.T) {
	fake := &fakeGuardDuty{
		detectorIDs: []string{"det-1"},
		status:      gdtypes.DetectorStatusDisabled,
	}
	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelStandard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := checkIDs(fs)
	if got["GUARDDUTY_SUSPENDED"] != 1 {
		t.Errorf("findings = %v; want GUARDDUTY_SUSPENDED once", got)
	}
	if got["GUARDDUTY_NOT_ENABLED"] != 0 {
		t.Error("a present detector must not count as absent")
	}
	// Export posture of a suspended detector is noise, not signal.
	if got["GUARDDUTY_NO_EXPORT"] != 0 {
		t.Error("suspended detector must not stack the export finding")
	}
}

func TestScan_HealthyDetectorDeepChecks(t *testing.T) {
	fake := &fakeGuardDuty{
		detectorIDs:  []string{"det-1"},
		status:       gdtypes.DetectorStatusEnabled,
		s3Protection: gdtypes.DataSourceStatusDisabled,
		destinations: 1,
	}
	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelDeep))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := checkIDs(fs)
	if got["GUARDDUTY_S3_PROTECTION_OFF"] != 1 {
		t.Errorf("findings = %v; want S3 protection finding at deep level", got)
	}
	if got["GUARDDUTY_NO_EXPORT"] != 0 {
		t.Error("detector with a destination must not be flagged for export")
	}
}
