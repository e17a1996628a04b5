// Package secretsmanager scans secret lifecycle and access posture per region.
package secretsmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	smsvc "github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// staleSecretAge is how long a secret may go unaccessed before it counts as
// unused.
const staleSecretAge = 90 * 24 * time.Hour

// secretsAPI is the narrow Secrets Manager surface the scanner needs.
type secretsAPI interface {
	smsvc.ListSecretsAPIClient
	GetResourcePolicy(ctx context.Context, params *smsvc.GetResourcePolicyInput, optFns ...func(*smsvc.Options)) (*smsvc.GetResourcePolicyOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (secretsAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (secretsAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "secretsmanager", region, func(cfg aws.Config) secretsAPI {
		return smsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api secretsAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (secretsAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "secretsmanager" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "secretsmanager:secrets", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's secret inventory.
type Snapshot struct {
	Account string
	Region  string
	Now     time.Time
	Secrets []Secret
}

type Secret struct {
	Name            string
	ARN             string
	RotationEnabled bool
	LastAccessed    *time.Time
	CreatedDate     time.Time
	UsesCMK         bool
	WidePolicy      bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region, Now: time.Now().UTC()}
	paginator := smsvc.NewListSecretsPaginator(client, &smsvc.ListSecretsInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "secretsmanager.ListSecrets", func(ctx context.Context) (*smsvc.ListSecretsOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list secrets: %w", err)
		}
		for _, entry := range page.SecretList {
			secret := Secret{
				Name:            aws.ToString(entry.Name),
				ARN:             aws.ToString(entry.ARN),
				RotationEnabled: aws.ToBool(entry.RotationEnabled),
				LastAccessed:    entry.LastAccessedDate,
				CreatedDate:     aws.ToTime(entry.CreatedDate),
				UsesCMK:         aws.ToString(entry.KmsKeyId) != "",
			}
			if pol, err := client.GetResourcePolicy(ctx, &smsvc.GetResourcePolicyInput{SecretId: entry.ARN}); err == nil {
				secret.WidePolicy = policyAllowsAnyPrincipal(aws.ToString(pol.ResourcePolicy))
			}
			snap.Secrets = append(snap.Secrets, secret)
		}
	}
	return snap, nil
}

// policyAllowsAnyPrincipal reports whether the resource policy grants access
// to principal "*" without conditions.
func policyAllowsAnyPrincipal(policy string) bool {
	if policy == "" {
		return false
	}
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
		switch p := stmt.Principal.(type) {
		case string:
			if p == "*" {
				return true
			}
		case map[string]any:
			if s, ok := p["AWS"].(string); ok && s == "*" {
				return true
			}
		}
	}
	return false
}
