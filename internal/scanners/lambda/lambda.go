// Package lambda scans serverless function posture per region.
package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// lambdaAPI is the narrow Lambda surface the scanner needs.
type lambdaAPI interface {
	lambdasvc.ListFunctionsAPIClient
	GetPolicy(ctx context.Context, params *lambdasvc.GetPolicyInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.GetPolicyOutput, error)
	GetFunctionConcurrency(ctx context.Context, params *lambdasvc.GetFunctionConcurrencyInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.GetFunctionConcurrencyOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (lambdaAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (lambdaAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "lambda", region, func(cfg aws.Config) lambdaAPI {
		return lambdasvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api lambdaAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (lambdaAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "lambda" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "lambda:functions", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's function inventory.
type Snapshot struct {
	Account   string
	Region    string
	Functions []Function
}

type Function struct {
	Name                string
	Runtime             string
	HasEnvVars          bool
	EnvEncryptedWithCMK bool
	HasDLQ              bool
	InVPC               bool
	ReservedConcurrency bool
	PolicyHasWildcard   bool
}

// deprecatedRuntimes lists runtime identifiers past their Lambda deprecation
// date. Functions on them no longer receive security updates.
var deprecatedRuntimes = map[string]bool{
	"python2.7":     true,
	"python3.6":     true,
	"python3.7":     true,
	"nodejs10.x":    true,
	"nodejs12.x":    true,
	"nodejs14.x":    true,
	"ruby2.5":       true,
	"ruby2.7":       true,
	"dotnetcore2.1": true,
	"dotnetcore3.1": true,
	"go1.x":         true,
	"java8":         true,
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	paginator := lambdasvc.NewListFunctionsPaginator(client, &lambdasvc.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "lambda.ListFunctions", func(ctx context.Context) (*lambdasvc.ListFunctionsOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}
		for _, fn := range page.Functions {
			name := aws.ToString(fn.FunctionName)
			f := Function{
				Name:    name,
				Runtime: string(fn.Runtime),
				HasDLQ:  fn.DeadLetterConfig != nil && fn.DeadLetterConfig.TargetArn != nil,
				InVPC:   fn.VpcConfig != nil && aws.ToString(fn.VpcConfig.VpcId) != "",
			}
			if fn.Environment != nil && len(fn.Environment.Variables) > 0 {
				f.HasEnvVars = true
				f.EnvEncryptedWithCMK = aws.ToString(fn.KMSKeyArn) != ""
			}

			// Resource policy and concurrency are per function; a failed
			// lookup leaves the conservative default.
			if policy, err := client.GetPolicy(ctx, &lambdasvc.GetPolicyInput{FunctionName: fn.FunctionName}); err == nil {
				f.PolicyHasWildcard = policyAllowsAnyPrincipal(aws.ToString(policy.Policy))
			}
			if conc, err := client.GetFunctionConcurrency(ctx, &lambdasvc.GetFunctionConcurrencyInput{FunctionName: fn.FunctionName}); err == nil {
				f.ReservedConcurrency = conc.ReservedConcurrentExecutions != nil
			}

			snap.Functions = append(snap.Functions, f)
		}
	}
	return snap, nil
}

// policyAllowsAnyPrincipal reports whether the function's resource policy
// contains an Allow statement for principal "*" without a source condition.
func policyAllowsAnyPrincipal(policy string) bool {
	var doc struct {
		Statement []struct {
			Effect    string
			Principal any
			Condition map[string]any
		}
	}
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return false
	}
	for _, stmt := range doc.Statement {
		if stmt.Effect != "Allow" || len(stmt.Condition) > 0 {
			continue
		}
		if principalIsWildcard(stmt.Principal) {
			return true
		}
	}
	return false
}

func principalIsWildcard(p any) bool {
	switch t := p.(type) {
	case string:
		return t == "*"
	case map[string]any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "*" {
				return true
			}
		}
	}
	return false
}

func isDeprecatedRuntime(runtime string) bool {
	if deprecatedRuntimes[runtime] {
		return true
	}
	// Anything still on a 1.x-era container base counts.
	return strings.HasPrefix(runtime, "dotnetcore1") || strings.HasPrefix(runtime, "nodejs4") || strings.HasPrefix(runtime, "nodejs6") || strings.HasPrefix(runtime, "nodejs8")
}
