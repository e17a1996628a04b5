// Package ec2 scans compute posture per region: instance exposure, volume
// encryption, metadata service configuration, and resource hygiene.
package ec2

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// ec2API is the narrow EC2 surface the scanner needs.
type ec2API interface {
	ec2svc.DescribeInstancesAPIClient
	ec2svc.DescribeVolumesAPIClient
	DescribeImages(ctx context.Context, params *ec2svc.DescribeImagesInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeImagesOutput, error)
	DescribeAddresses(ctx context.Context, params *ec2svc.DescribeAddressesInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeAddressesOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2svc.DescribeVpcsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcsOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (ec2API, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (ec2API, error) {
	return common.ClientFor(ctx, sc.Clients, "ec2", region, func(cfg aws.Config) ec2API {
		return ec2svc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api ec2API) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (ec2API, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "ec2" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "ec2:resources", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's compute inventory.
type Snapshot struct {
	Account string
	Region  string

	Instances      []Instance
	Volumes        []Volume
	PublicImages   []string
	UnattachedEIPs []string

	// DefaultVPCID is set when the region has a default VPC.
	DefaultVPCID string
}

type Instance struct {
	ID                 string
	Type               string
	VPCID              string
	PublicIP           string
	IMDSv1Allowed      bool
	DetailedMonitoring bool
}

type Volume struct {
	ID        string
	Encrypted bool
	Attached  bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}
	log := sc.Logger().WithField("scanner", s.ID()).WithField("region", region)

	snap := &Snapshot{Account: sc.Account, Region: region}

	if err := collectInstances(ctx, client, snap); err != nil {
		return nil, err
	}
	if err := collectVolumes(ctx, client, snap); err != nil {
		return nil, err
	}

	// The remaining listings are enrichment; one failing is logged and the
	// dependent checks simply stay quiet for the region.
	images, err := client.DescribeImages(ctx, &ec2svc.DescribeImagesInput{
		Owners: []string{"self"},
		Filters: []ec2types.Filter{
			{Name: aws.String("is-public"), Values: []string{"true"}},
		},
	})
	if err != nil {
		log.WithError(err).Warn("image listing failed")
	} else {
		for _, img := range images.Images {
			snap.PublicImages = append(snap.PublicImages, aws.ToString(img.ImageId))
		}
	}

	addresses, err := client.DescribeAddresses(ctx, &ec2svc.DescribeAddressesInput{})
	if err != nil {
		log.WithError(err).Warn("address listing failed")
	} else {
		for _, a := range addresses.Addresses {
			if a.AssociationId == nil {
				snap.UnattachedEIPs = append(snap.UnattachedEIPs, aws.ToString(a.AllocationId))
			}
		}
	}

	vpcs, err := client.DescribeVpcs(ctx, &ec2svc.DescribeVpcsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("is-default"), Values: []string{"true"}},
		},
	})
	if err != nil {
		log.WithError(err).Warn("VPC listing failed")
	} else if len(vpcs.Vpcs) > 0 {
		snap.DefaultVPCID = aws.ToString(vpcs.Vpcs[0].VpcId)
	}

	return snap, nil
}

func collectInstances(ctx context.Context, client ec2API, snap *Snapshot) error {
	paginator := ec2svc.NewDescribeInstancesPaginator(client, &ec2svc.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "ec2.DescribeInstances", func(ctx context.Context) (*ec2svc.DescribeInstancesOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return fmt.Errorf("describe instances: %w", err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				if inst.State != nil && inst.State.Name == ec2types.InstanceStateNameTerminated {
					continue
				}
				i := Instance{
					ID:       aws.ToString(inst.InstanceId),
					Type:     string(inst.InstanceType),
					VPCID:    aws.ToString(inst.VpcId),
					PublicIP: aws.ToString(inst.PublicIpAddress),
				}
				if inst.MetadataOptions != nil {
					i.IMDSv1Allowed = inst.MetadataOptions.HttpTokens != ec2types.HttpTokensStateRequired
				}
				if inst.Monitoring != nil {
					i.DetailedMonitoring = inst.Monitoring.State == ec2types.MonitoringStateEnabled
				}
				snap.Instances = append(snap.Instances, i)
			}
		}
	}
	return nil
}

func collectVolumes(ctx context.Context, client ec2API, snap *Snapshot) error {
	paginator := ec2svc.NewDescribeVolumesPaginator(client, &ec2svc.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "ec2.DescribeVolumes", func(ctx context.Context) (*ec2svc.DescribeVolumesOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return fmt.Errorf("describe volumes: %w", err)
		}
		for _, v := range page.Volumes {
			snap.Volumes = append(snap.Volumes, Volume{
				ID:        aws.ToString(v.VolumeId),
				Encrypted: aws.ToBool(v.Encrypted),
				Attached:  len(v.Attachments) > 0,
			})
		}
	}
	return nil
}

// legacyGenerations are instance family prefixes AWS has superseded for
// years. Workloads still on them miss hardware security features like
// default-on IMDSv2 and Nitro enclave support.
var legacyGenerations = []string{"t1.", "m1.", "m2.", "m3.", "c1.", "c3.", "r3.", "i2.", "hs1."}

func isLegacyType(instanceType string) bool {
	for _, prefix := range legacyGenerations {
		if strings.HasPrefix(instanceType, prefix) {
			return true
		}
	}
	return false
}
