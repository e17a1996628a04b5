// Package eks scans Kubernetes control-plane exposure and hardening.
package eks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ekssvc "github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// Clusters on minor versions below this are past standard support.
const minSupportedMinor = 28

// eksAPI is the narrow EKS surface the scanner needs.
type eksAPI interface {
	ekssvc.ListClustersAPIClient
	DescribeCluster(ctx context.Context, params *ekssvc.DescribeClusterInput, optFns ...func(*ekssvc.Options)) (*ekssvc.DescribeClusterOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (eksAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (eksAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "eks", region, func(cfg aws.Config) eksAPI {
		return ekssvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api eksAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (eksAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "eks" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "eks:clusters", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's cluster inventory.
type Snapshot struct {
	Account  string
	Region   string
	Clusters []Cluster
}

type Cluster struct {
	Name    string
	ARN     string
	Version string

	PublicEndpoint   bool
	PublicCIDRs      []string
	ControlPlaneLogs bool
	SecretsEncrypted bool
	OIDCProvider     bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := ekssvc.NewListClustersPaginator(client, &ekssvc.ListClustersInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "eks.ListClusters", func(ctx context.Context) (*ekssvc.ListClustersOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list clusters: %w", err)
		}
		for _, name := range page.Clusters {
			out, err := client.DescribeCluster(ctx, &ekssvc.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				sc.Logger().WithField("cluster", name).WithError(err).Warn("describe cluster failed")
				continue
			}
			if out.Cluster == nil {
				continue
			}
			snap.Clusters = append(snap.Clusters, describeCluster(out.Cluster))
		}
	}
	return snap, nil
}

func describeCluster(c *ekstypes.Cluster) Cluster {
	cluster := Cluster{
		Name:    aws.ToString(c.Name),
		ARN:     aws.ToString(c.Arn),
		Version: aws.ToString(c.Version),
	}
	if c.ResourcesVpcConfig != nil {
		cluster.PublicEndpoint = c.ResourcesVpcConfig.EndpointPublicAccess
		cluster.PublicCIDRs = c.ResourcesVpcConfig.PublicAccessCidrs
	}
	if c.Logging != nil {
		for _, setup := range c.Logging.ClusterLogging {
			if aws.ToBool(setup.Enabled) && len(setup.Types) > 0 {
				cluster.ControlPlaneLogs = true
			}
		}
	}
	for _, enc := range c.EncryptionConfig {
		for _, res := range enc.Resources {
			if res == "secrets" && enc.Provider != nil && aws.ToString(enc.Provider.KeyArn) != "" {
				cluster.SecretsEncrypted = true
			}
		}
	}
	if c.Identity != nil && c.Identity.Oidc != nil {
		cluster.OIDCProvider = aws.ToString(c.Identity.Oidc.Issuer) != ""
	}
	return cluster
}

// OpenToWorld reports a public endpoint reachable from any address.
func (c Cluster) OpenToWorld() bool {
	if !c.PublicEndpoint {
		return false
	}
	for _, cidr := range c.PublicCIDRs {
		if cidr == "0.0.0.0/0" || cidr == "::/0" {
			return true
		}
	}
	return false
}

// Outdated reports a 1.x version below the supported minor floor. Unparseable
// versions stay conservative and count as supported.
func (c Cluster) Outdated() bool {
	parts := strings.SplitN(c.Version, ".", 3)
	if len(parts) < 2 || parts[0] != "1" {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return minor < minSupportedMinor
}
