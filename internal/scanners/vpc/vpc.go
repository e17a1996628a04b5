// Package vpc scans network posture per region: security group exposure,
// flow logs, NACL configuration, and peering breadth.
package vpc

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// vpcAPI is the narrow EC2 networking surface the scanner needs.
type vpcAPI interface {
	ec2svc.DescribeSecurityGroupsAPIClient
	ec2svc.DescribeNetworkInterfacesAPIClient
	DescribeVpcs(ctx context.Context, params *ec2svc.DescribeVpcsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcsOutput, error)
	DescribeFlowLogs(ctx context.Context, params *ec2svc.DescribeFlowLogsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeFlowLogsOutput, error)
	DescribeNetworkAcls(ctx context.Context, params *ec2svc.DescribeNetworkAclsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeNetworkAclsOutput, error)
	DescribeVpcPeeringConnections(ctx context.Context, params *ec2svc.DescribeVpcPeeringConnectionsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcPeeringConnectionsOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (vpcAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (vpcAPI, error) {
	// Shares the per-region EC2 client slot with the compute scanner.
	return common.ClientFor(ctx, sc.Clients, "ec2", region, func(cfg aws.Config) vpcAPI {
		return ec2svc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api vpcAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (vpcAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "vpc" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "vpc:network", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's network inventory.
type Snapshot struct {
	Account string
	Region  string

	SecurityGroups []SecurityGroup

	// VPCsWithoutFlowLogs lists VPC ids with no flow log of any status.
	VPCsWithoutFlowLogs []string

	// OpenNACLs lists network ACLs with an allow-all ingress entry from
	// 0.0.0.0/0.
	OpenNACLs []string

	// BroadPeerings lists active peering connections where either side
	// exposes a /15 or wider CIDR.
	BroadPeerings []string

	// AttachedSGIDs holds every group id referenced by a network interface.
	AttachedSGIDs map[string]bool
}

type SecurityGroup struct {
	ID        string
	Name      string
	VPCID     string
	IsDefault bool
	Ingress   []IngressRule
}

type IngressRule struct {
	Protocol string
	FromPort int32
	ToPort   int32
	CIDRs    []string
}

// worldCIDRs are the any-address blocks that make a rule world-open.
var worldCIDRs = map[string]bool{"0.0.0.0/0": true, "::/0": true}

// OpensPortToWorld reports whether the group allows the given TCP port from
// any address. Protocol "-1" matches every port.
func (g SecurityGroup) OpensPortToWorld(port int32) bool {
	for _, r := range g.Ingress {
		if !ruleIsWorldOpen(r) {
			continue
		}
		if r.Protocol == "-1" {
			return true
		}
		if r.Protocol == "tcp" && r.FromPort <= port && port <= r.ToPort {
			return true
		}
	}
	return false
}

// OpensAllPortsToWorld reports whether the group allows every protocol and
// port from any address.
func (g SecurityGroup) OpensAllPortsToWorld() bool {
	for _, r := range g.Ingress {
		if r.Protocol == "-1" && ruleIsWorldOpen(r) {
			return true
		}
	}
	return false
}

func ruleIsWorldOpen(r IngressRule) bool {
	for _, c := range r.CIDRs {
		if worldCIDRs[c] {
			return true
		}
	}
	return false
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}
	log := sc.Logger().WithField("scanner", s.ID()).WithField("region", region)

	snap := &Snapshot{
		Account:       sc.Account,
		Region:        region,
		AttachedSGIDs: make(map[string]bool),
	}

	if err := collectSecurityGroups(ctx, client, snap); err != nil {
		return nil, err
	}

	if err := collectAttachedGroups(ctx, client, snap); err != nil {
		log.WithError(err).Warn("network interface listing failed")
	}

	vpcs, err := client.DescribeVpcs(ctx, &ec2svc.DescribeVpcsInput{})
	if err != nil {
		log.WithError(err).Warn("VPC listing failed")
	} else {
		logged := make(map[string]bool)
		flows, err := client.DescribeFlowLogs(ctx, &ec2svc.DescribeFlowLogsInput{})
		if err != nil {
			log.WithError(err).Warn("flow log listing failed")
		} else {
			for _, fl := range flows.FlowLogs {
				logged[aws.ToString(fl.ResourceId)] = true
			}
			for _, v := range vpcs.Vpcs {
				if id := aws.ToString(v.VpcId); !logged[id] {
					snap.VPCsWithoutFlowLogs = append(snap.VPCsWithoutFlowLogs, id)
				}
			}
		}
	}

	nacls, err := client.DescribeNetworkAcls(ctx, &ec2svc.DescribeNetworkAclsInput{})
	if err != nil {
		log.WithError(err).Warn("NACL listing failed")
	} else {
		for _, n := range nacls.NetworkAcls {
			if naclAllowsAllIngress(n) {
				snap.OpenNACLs = append(snap.OpenNACLs, aws.ToString(n.NetworkAclId))
			}
		}
	}

	peerings, err := client.DescribeVpcPeeringConnections(ctx, &ec2svc.DescribeVpcPeeringConnectionsInput{})
	if err != nil {
		log.WithError(err).Warn("peering listing failed")
	} else {
		for _, p := range peerings.VpcPeeringConnections {
			if p.Status != nil && p.Status.Code != ec2types.VpcPeeringConnectionStateReasonCodeActive {
				continue
			}
			if peeringIsBroad(p) {
				snap.BroadPeerings = append(snap.BroadPeerings, aws.ToString(p.VpcPeeringConnectionId))
			}
		}
	}

	return snap, nil
}

func collectSecurityGroups(ctx context.Context, client vpcAPI, snap *Snapshot) error {
	paginator := ec2svc.NewDescribeSecurityGroupsPaginator(client, &ec2svc.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "ec2.DescribeSecurityGroups", func(ctx context.Context) (*ec2svc.DescribeSecurityGroupsOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return fmt.Errorf("describe security groups: %w", err)
		}
		for _, g := range page.SecurityGroups {
			sg := SecurityGroup{
				ID:        aws.ToString(g.GroupId),
				Name:      aws.ToString(g.GroupName),
				VPCID:     aws.ToString(g.VpcId),
				IsDefault: aws.ToString(g.GroupName) == "default",
			}
			for _, p := range g.IpPermissions {
				rule := IngressRule{
					Protocol: aws.ToString(p.IpProtocol),
					FromPort: aws.ToInt32(p.FromPort),
					ToPort:   aws.ToInt32(p.ToPort),
				}
				for _, r := range p.IpRanges {
					rule.CIDRs = append(rule.CIDRs, aws.ToString(r.CidrIp))
				}
				for _, r := range p.Ipv6Ranges {
					rule.CIDRs = append(rule.CIDRs, aws.ToString(r.CidrIpv6))
				}
				sg.Ingress = append(sg.Ingress, rule)
			}
			snap.SecurityGroups = append(snap.SecurityGroups, sg)
		}
	}
	return nil
}

func collectAttachedGroups(ctx context.Context, client vpcAPI, snap *Snapshot) error {
	paginator := ec2svc.NewDescribeNetworkInterfacesPaginator(client, &ec2svc.DescribeNetworkInterfacesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, eni := range page.NetworkInterfaces {
			for _, g := range eni.Groups {
				snap.AttachedSGIDs[aws.ToString(g.GroupId)] = true
			}
		}
	}
	return nil
}

// naclAllowsAllIngress reports whether any ingress entry allows every
// protocol from the whole internet.
func naclAllowsAllIngress(n ec2types.NetworkAcl) bool {
	for _, e := range n.Entries {
		if aws.ToBool(e.Egress) || e.RuleAction != ec2types.RuleActionAllow {
			continue
		}
		if aws.ToString(e.Protocol) == "-1" && worldCIDRs[aws.ToString(e.CidrBlock)] {
			return true
		}
	}
	return false
}

// peeringIsBroad reports whether either side of the peering exposes a /15 or
// wider block, which typically means whole-network rather than service-level
// connectivity.
func peeringIsBroad(p ec2types.VpcPeeringConnection) bool {
	return cidrWiderThan(p.RequesterVpcInfo, 16) || cidrWiderThan(p.AccepterVpcInfo, 16)
}

func cidrWiderThan(info *ec2types.VpcPeeringConnectionVpcInfo, bits int) bool {
	if info == nil {
		return false
	}
	prefix, err := netip.ParsePrefix(aws.ToString(info.CidrBlock))
	if err != nil {
		return false
	}
	return prefix.Bits() < bits
}
