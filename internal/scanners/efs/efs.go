// Package efs scans elastic file systems and their mount target exposure.
package efs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	efssvc "github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

const nfsPort = 2049

// efsAPI is the narrow EFS surface the scanner needs.
type efsAPI interface {
	efssvc.DescribeFileSystemsAPIClient
	DescribeMountTargets(ctx context.Context, params *efssvc.DescribeMountTargetsInput, optFns ...func(*efssvc.Options)) (*efssvc.DescribeMountTargetsOutput, error)
	DescribeMountTargetSecurityGroups(ctx context.Context, params *efssvc.DescribeMountTargetSecurityGroupsInput, optFns ...func(*efssvc.Options)) (*efssvc.DescribeMountTargetSecurityGroupsOutput, error)
	DescribeBackupPolicy(ctx context.Context, params *efssvc.DescribeBackupPolicyInput, optFns ...func(*efssvc.Options)) (*efssvc.DescribeBackupPolicyOutput, error)
}

// sgAPI resolves mount target security groups through EC2.
type sgAPI interface {
	DescribeSecurityGroups(ctx context.Context, params *ec2svc.DescribeSecurityGroupsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeSecurityGroupsOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (efsAPI, sgAPI, error)

func defaultClients(ctx context.Context, sc *scanner.Context, region string) (efsAPI, sgAPI, error) {
	fs, err := common.ClientFor(ctx, sc.Clients, "efs", region, func(cfg aws.Config) efsAPI {
		return efssvc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, err
	}
	sg, err := common.ClientFor(ctx, sc.Clients, "ec2", region, func(cfg aws.Config) sgAPI {
		return ec2svc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, err
	}
	return fs, sg, nil
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClients}
}

func newWithClients(fs efsAPI, sg sgAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (efsAPI, sgAPI, error) {
		return fs, sg, nil
	}}
}

func (s *Scanner) ID() string { return "efs" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "efs:filesystems", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's file system inventory.
type Snapshot struct {
	Account     string
	Region      string
	FileSystems []FileSystem
}

type FileSystem struct {
	ID   string
	ARN  string
	Name string

	Encrypted     bool
	BackupEnabled bool

	// OpenMountTargets lists mount targets whose security groups admit NFS
	// from anywhere.
	OpenMountTargets []string
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	fsClient, sgClient, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := efssvc.NewDescribeFileSystemsPaginator(fsClient, &efssvc.DescribeFileSystemsInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "efs.DescribeFileSystems", func(ctx context.Context) (*efssvc.DescribeFileSystemsOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("describe file systems: %w", err)
		}
		for _, d := range page.FileSystems {
			snap.FileSystems = append(snap.FileSystems, s.describeFileSystem(ctx, sc, fsClient, sgClient, d))
		}
	}
	return snap, nil
}

func (s *Scanner) describeFileSystem(ctx context.Context, sc *scanner.Context, fsClient efsAPI, sgClient sgAPI, d efstypes.FileSystemDescription) FileSystem {
	fs := FileSystem{
		ID:        aws.ToString(d.FileSystemId),
		ARN:       aws.ToString(d.FileSystemArn),
		Name:      aws.ToString(d.Name),
		Encrypted: aws.ToBool(d.Encrypted),
	}
	log := sc.Logger().WithField("filesystem", fs.ID)

	// Backup policy failures keep the conservative default of enabled.
	fs.BackupEnabled = true
	policy, err := fsClient.DescribeBackupPolicy(ctx, &efssvc.DescribeBackupPolicyInput{FileSystemId: d.FileSystemId})
	if err != nil {
		log.WithError(err).Debug("describe backup policy failed")
		fs.BackupEnabled = false
	} else if policy.BackupPolicy != nil {
		fs.BackupEnabled = policy.BackupPolicy.Status == efstypes.StatusEnabled
	}

	targets, err := fsClient.DescribeMountTargets(ctx, &efssvc.DescribeMountTargetsInput{FileSystemId: d.FileSystemId})
	if err != nil {
		log.WithError(err).Warn("describe mount targets failed")
		return fs
	}
	for _, mt := range targets.MountTargets {
		mtID := aws.ToString(mt.MountTargetId)
		groups, err := fsClient.DescribeMountTargetSecurityGroups(ctx, &efssvc.DescribeMountTargetSecurityGroupsInput{
			MountTargetId: mt.MountTargetId,
		})
		if err != nil {
			log.WithField("mount_target", mtID).WithError(err).Warn("describe mount target security groups failed")
			continue
		}
		open, err := anyGroupOpensNFS(ctx, sgClient, groups.SecurityGroups)
		if err != nil {
			log.WithField("mount_target", mtID).WithError(err).Warn("describe security groups failed")
			continue
		}
		if open {
			fs.OpenMountTargets = append(fs.OpenMountTargets, mtID)
		}
	}
	return fs
}

// anyGroupOpensNFS reports whether any of the groups admits the NFS port
// from 0.0.0.0/0 or ::/0.
func anyGroupOpensNFS(ctx context.Context, client sgAPI, groupIDs []string) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}
	out, err := client.DescribeSecurityGroups(ctx, &ec2svc.DescribeSecurityGroupsInput{GroupIds: groupIDs})
	if err != nil {
		return false, err
	}
	for _, sg := range out.SecurityGroups {
		for _, perm := range sg.IpPermissions {
			if !coversPort(perm.FromPort, perm.ToPort, aws.ToString(perm.IpProtocol)) {
				continue
			}
			for _, r := range perm.IpRanges {
				if aws.ToString(r.CidrIp) == "0.0.0.0/0" {
					return true, nil
				}
			}
			for _, r := range perm.Ipv6Ranges {
				if aws.ToString(r.CidrIpv6) == "::/0" {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func coversPort(from, to *int32, protocol string) bool {
	if protocol == "-1" {
		return true
	}
	if from == nil || to == nil {
		return false
	}
	return *from <= nfsPort && nfsPort <= *to
}
