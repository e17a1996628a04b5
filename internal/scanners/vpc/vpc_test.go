package vpc

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

type fakeVPC struct {
	groups   []ec2types.SecurityGroup
	enis     []ec2types.NetworkInterface
	vpcs     []ec2types.Vpc
	flows    []ec2types.FlowLog
	nacls    []ec2types.NetworkAcl
	peerings []ec2types.VpcPeeringConnection
}

func (f *fakeVPC) DescribeSecurityGroups(context.Context, *ec2svc.DescribeSecurityGroupsInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeSecurityGroupsOutput, error) {
	return &ec2svc.DescribeSecurityGroupsOutput{SecurityGroups: f.groups}, nil
}

func (f *fakeVPC) DescribeNetworkInterfaces(context.Context, *ec2svc.DescribeNetworkInterfacesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeNetworkInterfacesOutput, error) {
	return &ec2svc.DescribeNetworkInterfacesOutput{NetworkInterfaces: f.enis}, nil
}

func (f *fakeVPC) DescribeVpcs(context.Context, *ec2svc.DescribeVpcsInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcsOutput, error) {
	return &ec2svc.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeVPC) DescribeFlowLogs(context.Context, *ec2svc.DescribeFlowLogsInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeFlowLogsOutput, error) {
	return &ec2svc.DescribeFlowLogsOutput{FlowLogs: f.flows}, nil
}

func (f *fakeVPC) DescribeNetworkAcls(context.Context, *ec2svc.DescribeNetworkAclsInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeNetworkAclsOutput, error) {
	return &ec2svc.DescribeNetworkAclsOutput{NetworkAcls: f.nacls}, nil
}

func (f *fakeVPC) DescribeVpcPeeringConnections(context.Context, *ec2svc.DescribeVpcPeeringConnectionsInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcPeeringConnectionsOutput, error) {
	return &ec2svc.DescribeVpcPeeringConnectionsOutput{VpcPeeringConnections: f.peerings}, nil
}

func tcpRule(from, to int32, cidr string) ec2types.IpPermission {
	return ec2types.IpPermission{
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int32(from),
		ToPort:     aws.Int32(to),
		IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(cidr)}},
	}
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

func findingsByCheck(fs []models.Finding) map[string][]models.Finding {
	m := make(map[string][]models.Finding)
	for _, f := range fs {
		m[f.CheckID] = append(m[f.CheckID], f)
	}
	return m
}

func TestScan_WorldOpenPorts(t *testing.T) {
	fake := &fakeVPC{
		groups: []ec2types.SecurityGroup{
			{
				GroupId:       aws.String("sg-ssh"),
				GroupName:     aws.String("bastion"),
				VpcId:         aws.String("vpc-1"),
				IpPermissions: []ec2types.IpPermission{tcpRule(22, 22, "0.0.0.0/0")},
			},
			{
				GroupId:       aws.String("sg-rdp"),
				GroupName:     aws.String("win"),
				VpcId:         aws.String("vpc-1"),
				IpPermissions: []ec2types.IpPermission{tcpRule(3000, 3500, "0.0.0.0/0")},
			},
			{
				GroupId:   aws.String("sg-any"),
				GroupName: aws.String("wide"),
				VpcId:     aws.String("vpc-1"),
				IpPermissions: []ec2types.IpPermission{{
					IpProtocol: aws.String("-1"),
					IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				}},
			},
			{
				GroupId:       aws.String("sg-internal"),
				GroupName:     aws.String("app"),
				VpcId:         aws.String("vpc-1"),
				IpPermissions: []ec2types.IpPermission{tcpRule(22, 22, "10.0.0.0/8")},
			},
		},
		vpcs:  []ec2types.Vpc{{VpcId: aws.String("vpc-1")}},
		flows: []ec2types.FlowLog{{ResourceId: aws.String("vpc-1")}},
	}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelStandard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	ssh := byCheck["VPC_SSH_OPEN_TO_WORLD"]
	// sg-ssh directly, sg-any via the all-traffic rule.
	if len(ssh) != 2 {
		t.Errorf("SSH findings = %d; want 2 (%v)", len(ssh), ssh)
	}
	rdp := byCheck["VPC_RDP_OPEN_TO_WORLD"]
	if len(rdp) != 2 {
		t.Errorf("RDP findings = %d; want sg-rdp range match and sg-any (%v)", len(rdp), rdp)
	}
	all := byCheck["VPC_ALL_PORTS_OPEN"]
	if len(all) != 1 || all[0].ResourceID != "sg-any" {
		t.Errorf("all-ports findings = %+v; want exactly sg-any", all)
	}
	for _, f := range fs {
		if f.ResourceID == "sg-internal" {
			t.Errorf("internal-only group flagged by %s", f.CheckID)
		}
	}
}

func TestScan_FlowLogsAndDefaultSG(t *testing.T) {
	fake := &fakeVPC{
		groups: []ec2types.SecurityGroup{{
			GroupId:       aws.String("sg-default"),
			GroupName:     aws.String("default"),
			VpcId:         aws.String("vpc-bare"),
			IpPermissions: []ec2types.IpPermission{tcpRule(80, 80, "10.0.0.0/16")},
		}},
		vpcs: []ec2types.Vpc{
			{VpcId: aws.String("vpc-bare")},
			{VpcId: aws.String("vpc-logged")},
		},
		flows: []ec2types.FlowLog{{ResourceId: aws.String("vpc-logged")}},
		nacls: []ec2types.NetworkAcl{{
			NetworkAclId: aws.String("acl-open"),
			Entries: []ec2types.NetworkAclEntry{{
				Egress:     aws.Bool(false),
				RuleAction: ec2types.RuleActionAllow,
				Protocol:   aws.String("-1"),
				CidrBlock:  aws.String("0.0.0.0/0"),
			}},
		}},
	}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelStandard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	flow := byCheck["VPC_FLOW_LOGS_DISABLED"]
	if len(flow) != 1 || flow[0].ResourceID != "vpc-bare" {
		t.Errorf("flow log findings = %+v; want exactly vpc-bare", flow)
	}
	def := byCheck["VPC_DEFAULT_SG_IN_USE"]
	if len(def) != 1 || def[0].ResourceID != "sg-default" {
		t.Errorf("default SG findings = %+v", def)
	}
	if len(byCheck["VPC_NACL_ALLOW_ALL"]) != 1 {
		t.Error("want open NACL finding")
	}
}

func TestScan_DeepNetworkChecks(t *testing.T) {
	fake := &fakeVPC{
		groups: []ec2types.SecurityGroup{
			{GroupId: aws.String("sg-orphan"), GroupName: aws.String("old-app"), VpcId: aws.String("vpc-1")},
			{GroupId: aws.String("sg-live"), GroupName: aws.String("app"), VpcId: aws.String("vpc-1")},
		},
		enis: []ec2types.NetworkInterface{{
			Groups: []ec2types.GroupIdentifier{{GroupId: aws.String("sg-live")}},
		}},
		peerings: []ec2types.VpcPeeringConnection{{
			VpcPeeringConnectionId: aws.String("pcx-wide"),
			Status:                 &ec2types.VpcPeeringConnectionStateReason{Code: ec2types.VpcPeeringConnectionStateReasonCodeActive},
			RequesterVpcInfo:       &ec2types.VpcPeeringConnectionVpcInfo{CidrBlock: aws.String("10.0.0.0/8")},
			AccepterVpcInfo:        &ec2types.VpcPeeringConnectionVpcInfo{CidrBlock: aws.String("172.16.0.0/16")},
		}},
	}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelDeep))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	unused := byCheck["VPC_UNUSED_SECURITY_GROUP"]
	if len(unused) != 1 || unused[0].ResourceID != "sg-orphan" {
		t.Errorf("unused SG findings = %+v; want exactly sg-orphan", unused)
	}
	if len(byCheck["VPC_BROAD_PEERING"]) != 1 {
		t.Error("want broad peering finding")
	}
}

func TestOpensPortToWorld(t *testing.T) {
	g := SecurityGroup{Ingress: []IngressRule{
		{Protocol: "tcp", FromPort: 20, ToPort: 25, CIDRs: []string{"0.0.0.0/0"}},
	}}
	if !g.OpensPortToWorld(22) {
		t.Error("port inside range must match")
	}
	if g.OpensPortToWorld(3389) {
		t.Error("port outside range must not match")
	}
	private := SecurityGroup{Ingress: []IngressRule{
		{Protocol: "tcp", FromPort: 22, ToPort: 22, CIDRs: []string{"192.168.0.0/24"}},
	}}
	if private.OpensPortToWorld(22) {
		t.Error("private CIDR must not count as world-open")
	}
}
