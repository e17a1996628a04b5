// Package ecr scans container registries for image supply hygiene.
package ecr

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecrsvc "github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// ecrAPI is the narrow ECR surface the scanner needs.
type ecrAPI interface {
	ecrsvc.DescribeRepositoriesAPIClient
	GetLifecyclePolicy(ctx context.Context, params *ecrsvc.GetLifecyclePolicyInput, optFns ...func(*ecrsvc.Options)) (*ecrsvc.GetLifecyclePolicyOutput, error)
	GetRepositoryPolicy(ctx context.Context, params *ecrsvc.GetRepositoryPolicyInput, optFns ...func(*ecrsvc.Options)) (*ecrsvc.GetRepositoryPolicyOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (ecrAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (ecrAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "ecr", region, func(cfg aws.Config) ecrAPI {
		return ecrsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api ecrAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (ecrAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "ecr" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "ecr:repositories", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's repository inventory.
type Snapshot struct {
	Account      string
	Region       string
	Repositories []Repository
}

type Repository struct {
	Name string
	ARN  string

	ScanOnPush     bool
	ImmutableTags  bool
	HasLifecycle   bool
	WildcardPolicy bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := ecrsvc.NewDescribeRepositoriesPaginator(client, &ecrsvc.DescribeRepositoriesInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "ecr.DescribeRepositories", func(ctx context.Context) (*ecrsvc.DescribeRepositoriesOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("describe repositories: %w", err)
		}
		for _, r := range page.Repositories {
			repo := Repository{
				Name:          aws.ToString(r.RepositoryName),
				ARN:           aws.ToString(r.RepositoryArn),
				ImmutableTags: r.ImageTagMutability == ecrtypes.ImageTagMutabilityImmutable,
			}
			if r.ImageScanningConfiguration != nil {
				repo.ScanOnPush = r.ImageScanningConfiguration.ScanOnPush
			}

			// Repositories without a lifecycle or resource policy return a
			// not-found error, which is the signal itself.
			_, err := client.GetLifecyclePolicy(ctx, &ecrsvc.GetLifecyclePolicyInput{RepositoryName: r.RepositoryName})
			repo.HasLifecycle = err == nil

			policy, err := client.GetRepositoryPolicy(ctx, &ecrsvc.GetRepositoryPolicyInput{RepositoryName: r.RepositoryName})
			if err == nil {
				repo.WildcardPolicy = policyAllowsAnyPrincipal(aws.ToString(policy.PolicyText))
			}

			snap.Repositories = append(snap.Repositories, repo)
		}
	}
	return snap, nil
}

// policyAllowsAnyPrincipal reports an unconditional Allow for principal "*".
func policyAllowsAnyPrincipal(doc string) bool {
	if doc == "" {
		return false
	}
	var policy struct {
		Statement []struct {
			Effect    string          `json:"Effect"`
			Principal json.RawMessage `json:"Principal"`
			Condition json.RawMessage `json:"Condition"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(doc), &policy); err != nil {
		return false
	}
	for _, stmt := range policy.Statement {
		if stmt.Effect != "Allow" || len(stmt.Condition) > 0 {
			continue
		}
		var plain string
		if err := json.Unmarshal(stmt.Principal, &plain); err == nil && plain == "*" {
			return true
		}
		var keyed map[string]any
		if err := json.Unmarshal(stmt.Principal, &keyed); err == nil {
			if p, ok := keyed["AWS"].(string); ok && p == "*" {
				return true
			}
		}
	}
	return false
}
