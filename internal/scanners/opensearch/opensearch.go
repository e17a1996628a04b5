// Package opensearch scans search domains for network and encryption posture.
package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ossvc "github.com/aws/aws-sdk-go-v2/service/opensearch"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// openSearchAPI is the narrow OpenSearch surface the scanner needs.
type openSearchAPI interface {
	ListDomainNames(ctx context.Context, params *ossvc.ListDomainNamesInput, optFns ...func(*ossvc.Options)) (*ossvc.ListDomainNamesOutput, error)
	DescribeDomain(ctx context.Context, params *ossvc.DescribeDomainInput, optFns ...func(*ossvc.Options)) (*ossvc.DescribeDomainOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (openSearchAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (openSearchAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "opensearch", region, func(cfg aws.Config) openSearchAPI {
		return ossvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api openSearchAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (openSearchAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "opensearch" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "opensearch:domains", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's domain inventory.
type Snapshot struct {
	Account string
	Region  string
	Domains []Domain
}

type Domain struct {
	Name string
	ARN  string

	InVPC           bool
	EncryptedAtRest bool
	NodeToNode      bool
	AuditLogs       bool
	TLSPolicy       string
	AnonymousAccess bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	names, err := common.Retry(ctx, "opensearch.ListDomainNames", func(ctx context.Context) (*ossvc.ListDomainNamesOutput, error) {
		return client.ListDomainNames(ctx, &ossvc.ListDomainNamesInput{})
	})
	if err != nil {
		return nil, fmt.Errorf("list domain names: %w", err)
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	for _, dn := range names.DomainNames {
		name := aws.ToString(dn.DomainName)
		out, err := client.DescribeDomain(ctx, &ossvc.DescribeDomainInput{DomainName: dn.DomainName})
		if err != nil {
			sc.Logger().WithField("domain", name).WithError(err).Warn("describe domain failed")
			continue
		}
		st := out.DomainStatus
		if st == nil {
			continue
		}

		d := Domain{
			Name:  name,
			ARN:   aws.ToString(st.ARN),
			InVPC: st.VPCOptions != nil && len(st.VPCOptions.SubnetIds) > 0,
		}
		if st.EncryptionAtRestOptions != nil {
			d.EncryptedAtRest = aws.ToBool(st.EncryptionAtRestOptions.Enabled)
		}
		if st.NodeToNodeEncryptionOptions != nil {
			d.NodeToNode = aws.ToBool(st.NodeToNodeEncryptionOptions.Enabled)
		}
		if opt, ok := st.LogPublishingOptions["AUDIT_LOGS"]; ok {
			d.AuditLogs = aws.ToBool(opt.Enabled)
		}
		if st.DomainEndpointOptions != nil {
			d.TLSPolicy = string(st.DomainEndpointOptions.TLSSecurityPolicy)
		}
		d.AnonymousAccess = policyAllowsAnonymous(aws.ToString(st.AccessPolicies))

		snap.Domains = append(snap.Domains, d)
	}
	return snap, nil
}

// legacyTLSPolicy reports an endpoint policy with a minimum below TLS 1.2.
func legacyTLSPolicy(policy string) bool {
	return strings.Contains(policy, "TLS-1-0") || strings.Contains(policy, "TLS-1-1")
}

// policyAllowsAnonymous reports whether the domain access policy has an
// unconditional Allow for principal "*". Unparseable policies stay
// conservative and count as restricted.
func policyAllowsAnonymous(doc string) bool {
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
		if principalIsWildcard(stmt.Principal) {
			return true
		}
	}
	return false
}

func principalIsWildcard(raw json.RawMessage) bool {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain == "*"
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return false
	}
	principals, ok := keyed["AWS"]
	if !ok {
		return false
	}
	if err := json.Unmarshal(principals, &plain); err == nil {
		return plain == "*"
	}
	var many []string
	if err := json.Unmarshal(principals, &many); err == nil {
		for _, p := range many {
			if p == "*" {
				return true
			}
		}
	}
	return false
}
