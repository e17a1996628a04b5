// Package kms scans customer-managed key posture per region.
package kms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	kmssvc "github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// kmsAPI is the narrow KMS surface the scanner needs.
type kmsAPI interface {
	kmssvc.ListKeysAPIClient
	kmssvc.ListAliasesAPIClient
	DescribeKey(ctx context.Context, params *kmssvc.DescribeKeyInput, optFns ...func(*kmssvc.Options)) (*kmssvc.DescribeKeyOutput, error)
	GetKeyRotationStatus(ctx context.Context, params *kmssvc.GetKeyRotationStatusInput, optFns ...func(*kmssvc.Options)) (*kmssvc.GetKeyRotationStatusOutput, error)
	GetKeyPolicy(ctx context.Context, params *kmssvc.GetKeyPolicyInput, optFns ...func(*kmssvc.Options)) (*kmssvc.GetKeyPolicyOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (kmsAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (kmsAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "kms", region, func(cfg aws.Config) kmsAPI {
		return kmssvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api kmsAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (kmsAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "kms" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "kms:keys", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's customer-managed key inventory. AWS-managed keys
// are excluded; their lifecycle is not the account's responsibility.
type Snapshot struct {
	Account string
	Region  string
	Keys    []Key
}

type Key struct {
	ID              string
	ARN             string
	Enabled         bool
	PendingDeletion bool
	RotationEnabled bool
	WidePolicy      bool
	HasAlias        bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	aliased, err := collectAliasedKeys(ctx, client)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	paginator := kmssvc.NewListKeysPaginator(client, &kmssvc.ListKeysInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "kms.ListKeys", func(ctx context.Context) (*kmssvc.ListKeysOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		for _, entry := range page.Keys {
			key, ok := describeKey(ctx, client, entry, aliased)
			if ok {
				snap.Keys = append(snap.Keys, key)
			}
		}
	}
	return snap, nil
}

// describeKey resolves one key's posture. AWS-managed keys and unreadable
// keys return ok=false.
func describeKey(ctx context.Context, client kmsAPI, entry kmstypes.KeyListEntry, aliased map[string]bool) (Key, bool) {
	id := aws.ToString(entry.KeyId)
	desc, err := client.DescribeKey(ctx, &kmssvc.DescribeKeyInput{KeyId: entry.KeyId})
	if err != nil || desc.KeyMetadata == nil {
		return Key{}, false
	}
	meta := desc.KeyMetadata
	if meta.KeyManager != kmstypes.KeyManagerTypeCustomer {
		return Key{}, false
	}

	key := Key{
		ID:              id,
		ARN:             aws.ToString(meta.Arn),
		Enabled:         meta.Enabled,
		PendingDeletion: meta.KeyState == kmstypes.KeyStatePendingDeletion,
		HasAlias:        aliased[id],
	}

	if rot, err := client.GetKeyRotationStatus(ctx, &kmssvc.GetKeyRotationStatusInput{KeyId: entry.KeyId}); err == nil {
		key.RotationEnabled = rot.KeyRotationEnabled
	}
	if pol, err := client.GetKeyPolicy(ctx, &kmssvc.GetKeyPolicyInput{
		KeyId:      entry.KeyId,
		PolicyName: aws.String("default"),
	}); err == nil {
		key.WidePolicy = policyAllowsAnyPrincipal(aws.ToString(pol.Policy))
	}

	return key, true
}

func collectAliasedKeys(ctx context.Context, client kmsAPI) (map[string]bool, error) {
	aliased := make(map[string]bool)
	paginator := kmssvc.NewListAliasesPaginator(client, &kmssvc.ListAliasesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list aliases: %w", err)
		}
		for _, a := range page.Aliases {
			if a.TargetKeyId != nil {
				aliased[aws.ToString(a.TargetKeyId)] = true
			}
		}
	}
	return aliased, nil
}

// policyAllowsAnyPrincipal reports whether the key policy contains an Allow
// statement for principal "*" without conditions.
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
