package ec2

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

type fakeEC2 struct {
	instances []ec2types.Instance
	volumes   []ec2types.Volume
	images    []ec2types.Image
	addresses []ec2types.Address
	vpcs      []ec2types.Vpc
}

func (f *fakeEC2) DescribeInstances(context.Context, *ec2svc.DescribeInstancesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeInstancesOutput, error) {
	return &ec2svc.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: f.instances}},
	}, nil
}

func (f *fakeEC2) DescribeVolumes(context.Context, *ec2svc.DescribeVolumesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeVolumesOutput, error) {
	return &ec2svc.DescribeVolumesOutput{Volumes: f.volumes}, nil
}

func (f *fakeEC2) DescribeImages(context.Context, *ec2svc.DescribeImagesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeImagesOutput, error) {
	return &ec2svc.DescribeImagesOutput{Images: f.images}, nil
}

func (f *fakeEC2) DescribeAddresses(context.Context, *ec2svc.DescribeAddressesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeAddressesOutput, error) {
	return &ec2svc.DescribeAddressesOutput{Addresses: f.addresses}, nil
}

func (f *fakeEC2) DescribeVpcs(context.Context, *ec2svc.DescribeVpcsInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcsOutput, error) {
	return &ec2svc.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func testContext(level models.ScanLevel, regions ...string) *scanner.Context {
	if len(regions) == 0 {
		regions = []string{"sa-east-1"}
	}
	return &scanner.Context{
		ScanID:  "scan-1",
		Account: "111122223333",
		Regions: regions,
		Level:   level,
		Cache:   cache.New(),
	}
}

func findingsByCheck(fs []models.Finding) map[string][]models.Finding {
	m := make(map[string][]models.Finding)
	for _, f := range fs {
		m[f.CheckID] = append(m[f.CheckID], f)
	}
	return m
}

func TestScan_InstancePosture(t *testing.T) {
	running := ec2types.InstanceStateNameRunning
	fake := &fakeEC2{
		instances: []ec2types.Instance{
			{
				InstanceId:      aws.String("i-exposed"),
				InstanceType:    ec2types.InstanceTypeM1Large,
				VpcId:           aws.String("vpc-default"),
				PublicIpAddress: aws.String("203.0.113.10"),
				State:           &ec2types.InstanceState{Name: running},
				MetadataOptions: &ec2types.InstanceMetadataOptionsResponse{HttpTokens: ec2types.HttpTokensStateOptional},
				Monitoring:      &ec2types.Monitoring{State: ec2types.MonitoringStateDisabled},
			},
			{
				InstanceId:      aws.String("i-hardened"),
				InstanceType:    ec2types.InstanceTypeM5Large,
				VpcId:           aws.String("vpc-app"),
				State:           &ec2types.InstanceState{Name: running},
				MetadataOptions: &ec2types.InstanceMetadataOptionsResponse{HttpTokens: ec2types.HttpTokensStateRequired},
				Monitoring:      &ec2types.Monitoring{State: ec2types.MonitoringStateEnabled},
			},
			{
				InstanceId: aws.String("i-gone"),
				State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameTerminated},
			},
		},
		volumes: []ec2types.Volume{
			{VolumeId: aws.String("vol-plain"), Encrypted: aws.Bool(false)},
			{VolumeId: aws.String("vol-enc"), Encrypted: aws.Bool(true)},
		},
		vpcs: []ec2types.Vpc{{VpcId: aws.String("vpc-default"), IsDefault: aws.Bool(true)}},
	}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelStandard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	assertOne := func(check, resource string) {
		t.Helper()
		got := byCheck[check]
		if len(got) != 1 || got[0].ResourceID != resource {
			t.Errorf("%s = %+v; want exactly %s", check, got, resource)
		}
	}
	assertOne("EC2_IMDSV1_ENABLED", "i-exposed")
	assertOne("EC2_PUBLIC_IP", "i-exposed")
	assertOne("EC2_NO_DETAILED_MONITORING", "i-exposed")
	assertOne("EC2_DEFAULT_VPC", "i-exposed")
	assertOne("EC2_UNENCRYPTED_EBS", "vol-plain")

	// Terminated instances are excluded from the inventory entirely.
	for _, f := range fs {
		if f.ResourceID == "i-gone" {
			t.Errorf("terminated instance surfaced in %s", f.CheckID)
		}
	}
	// Legacy type is a deep-only check.
	if len(byCheck["EC2_LEGACY_INSTANCE_TYPE"]) != 0 {
		t.Error("deep-only legacy type check ran at standard level")
	}

	if got := byCheck["EC2_PUBLIC_IP"][0].Region; got != "sa-east-1" {
		t.Errorf("region = %q; want sa-east-1", got)
	}
	if got := byCheck["EC2_PUBLIC_IP"][0].ResourceARN; got != "arn:aws:ec2:sa-east-1:111122223333:instance/i-exposed" {
		t.Errorf("ARN = %q", got)
	}
}

func TestScan_DeepInventoryChecks(t *testing.T) {
	fake := &fakeEC2{
		instances: []ec2types.Instance{{
			InstanceId:      aws.String("i-old"),
			InstanceType:    ec2types.InstanceTypeM1Small,
			State:           &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
			MetadataOptions: &ec2types.InstanceMetadataOptionsResponse{HttpTokens: ec2types.HttpTokensStateRequired},
			Monitoring:      &ec2types.Monitoring{State: ec2types.MonitoringStateEnabled},
		}},
		images:    []ec2types.Image{{ImageId: aws.String("ami-leaked"), Public: aws.Bool(true)}},
		addresses: []ec2types.Address{{AllocationId: aws.String("eipalloc-idle")}},
	}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelDeep))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	if len(byCheck["EC2_PUBLIC_AMI"]) != 1 {
		t.Error("want public AMI finding")
	}
	if len(byCheck["EC2_UNATTACHED_EIP"]) != 1 {
		t.Error("want unattached EIP finding at deep level")
	}
	if len(byCheck["EC2_LEGACY_INSTANCE_TYPE"]) != 1 {
		t.Error("want legacy instance type finding at deep level")
	}
}

func TestScan_MultiRegionSnapshotsAreIndependent(t *testing.T) {
	fake := &fakeEC2{
		volumes: []ec2types.Volume{{VolumeId: aws.String("vol-plain"), Encrypted: aws.Bool(false)}},
	}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelStandard, "sa-east-1", "us-east-1"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)
	got := byCheck["EC2_UNENCRYPTED_EBS"]
	if len(got) != 2 {
		t.Fatalf("want one finding per region, got %d", len(got))
	}
	if got[0].Region == got[1].Region {
		t.Errorf("regions not distinct: %q %q", got[0].Region, got[1].Region)
	}
}

func TestIsLegacyType(t *testing.T) {
	if !isLegacyType("m1.large") {
		t.Error("m1.large must be legacy")
	}
	if isLegacyType("m5.large") {
		t.Error("m5.large must not be legacy")
	}
}
