// Package s3 scans bucket exposure and data-protection posture.
package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// s3API is the narrow S3 surface the scanner needs. Every call is per bucket
// except the listing.
type s3API interface {
	ListBuckets(ctx context.Context, params *s3svc.ListBucketsInput, optFns ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error)
	GetBucketPolicyStatus(ctx context.Context, params *s3svc.GetBucketPolicyStatusInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error)
	GetBucketPolicy(ctx context.Context, params *s3svc.GetBucketPolicyInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyOutput, error)
	GetBucketAcl(ctx context.Context, params *s3svc.GetBucketAclInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketAclOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error)
	GetBucketVersioning(ctx context.Context, params *s3svc.GetBucketVersioningInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketVersioningOutput, error)
	GetBucketLogging(ctx context.Context, params *s3svc.GetBucketLoggingInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketLoggingOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3svc.GetPublicAccessBlockInput, optFns ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error)
	GetBucketLifecycleConfiguration(ctx context.Context, params *s3svc.GetBucketLifecycleConfigurationInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketLifecycleConfigurationOutput, error)
	GetBucketReplication(ctx context.Context, params *s3svc.GetBucketReplicationInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketReplicationOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context) (s3API, error)

func defaultClient(ctx context.Context, sc *scanner.Context) (s3API, error) {
	return common.ClientFor(ctx, sc.Clients, "s3", "us-east-1", func(cfg aws.Config) s3API {
		return s3svc.NewFromConfig(cfg)
	})
}

// Scanner audits every bucket the account owns. The bucket listing is global,
// so the scan context's region list is not iterated.
type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api s3API) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context) (s3API, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "s3" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	snap, err := cache.Fetch(ctx, sc.Cache,
		cache.Key{Account: sc.Account, Region: "global", ResourceType: "s3:buckets"},
		func(ctx context.Context) (*Snapshot, error) {
			return s.collect(ctx, sc)
		})
	if err != nil {
		return nil, err
	}
	return scanner.RunChecks(sc, s.ID(), snap, checks), nil
}

// Snapshot holds the per-bucket posture the catalog evaluates.
type Snapshot struct {
	Account string
	Buckets []Bucket
}

// Bucket is one bucket's collected configuration. Boolean fields default to
// the conservative value when the underlying call fails, matching the
// collector's no-false-positives stance.
type Bucket struct {
	Name string

	PolicyPublic bool
	ACLPublic    bool

	Encrypted          bool
	VersioningEnabled  bool
	MFADeleteEnabled   bool
	AccessLogging      bool
	PublicAccessBlock  bool
	DeniesPlainHTTP    bool
	HasLifecycleRules  bool
	HasReplication     bool
	ReplicationPlained bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context) (*Snapshot, error) {
	client, err := s.clients(ctx, sc)
	if err != nil {
		return nil, err
	}

	out, err := common.Retry(ctx, "s3.ListBuckets", func(ctx context.Context) (*s3svc.ListBucketsOutput, error) {
		return client.ListBuckets(ctx, &s3svc.ListBucketsInput{})
	})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	snap := &Snapshot{Account: sc.Account}
	for _, b := range out.Buckets {
		snap.Buckets = append(snap.Buckets, describeBucket(ctx, client, aws.ToString(b.Name)))
	}
	return snap, nil
}

// describeBucket fans out the per-bucket configuration calls. Individual call
// failures leave the corresponding field at its conservative default so one
// unreadable attribute never fabricates a finding.
func describeBucket(ctx context.Context, client s3API, name string) Bucket {
	b := Bucket{Name: name}
	in := aws.String(name)

	if out, err := client.GetBucketPolicyStatus(ctx, &s3svc.GetBucketPolicyStatusInput{Bucket: in}); err == nil && out.PolicyStatus != nil {
		b.PolicyPublic = aws.ToBool(out.PolicyStatus.IsPublic)
	}

	if out, err := client.GetBucketAcl(ctx, &s3svc.GetBucketAclInput{Bucket: in}); err == nil {
		b.ACLPublic = aclHasPublicGrant(out.Grants)
	}

	if _, err := client.GetBucketEncryption(ctx, &s3svc.GetBucketEncryptionInput{Bucket: in}); err == nil {
		b.Encrypted = true
	}

	if out, err := client.GetBucketVersioning(ctx, &s3svc.GetBucketVersioningInput{Bucket: in}); err == nil {
		b.VersioningEnabled = out.Status == s3types.BucketVersioningStatusEnabled
		b.MFADeleteEnabled = out.MFADelete == s3types.MFADeleteStatusEnabled
	}

	if out, err := client.GetBucketLogging(ctx, &s3svc.GetBucketLoggingInput{Bucket: in}); err == nil {
		b.AccessLogging = out.LoggingEnabled != nil
	}

	if out, err := client.GetPublicAccessBlock(ctx, &s3svc.GetPublicAccessBlockInput{Bucket: in}); err == nil && out.PublicAccessBlockConfiguration != nil {
		c := out.PublicAccessBlockConfiguration
		b.PublicAccessBlock = aws.ToBool(c.BlockPublicAcls) && aws.ToBool(c.BlockPublicPolicy) &&
			aws.ToBool(c.IgnorePublicAcls) && aws.ToBool(c.RestrictPublicBuckets)
	}

	if out, err := client.GetBucketPolicy(ctx, &s3svc.GetBucketPolicyInput{Bucket: in}); err == nil {
		b.DeniesPlainHTTP = policyDeniesPlainHTTP(aws.ToString(out.Policy))
	}

	if out, err := client.GetBucketLifecycleConfiguration(ctx, &s3svc.GetBucketLifecycleConfigurationInput{Bucket: in}); err == nil {
		b.HasLifecycleRules = len(out.Rules) > 0
	}

	if out, err := client.GetBucketReplication(ctx, &s3svc.GetBucketReplicationInput{Bucket: in}); err == nil && out.ReplicationConfiguration != nil {
		b.HasReplication = len(out.ReplicationConfiguration.Rules) > 0
		for _, r := range out.ReplicationConfiguration.Rules {
			if r.Destination != nil && r.Destination.EncryptionConfiguration == nil {
				b.ReplicationPlained = true
			}
		}
	}

	return b
}

// aclHasPublicGrant reports whether any grant targets the AllUsers or
// AuthenticatedUsers group URIs.
func aclHasPublicGrant(grants []s3types.Grant) bool {
	for _, g := range grants {
		if g.Grantee == nil || g.Grantee.Type != s3types.TypeGroup {
			continue
		}
		uri := aws.ToString(g.Grantee.URI)
		if strings.HasSuffix(uri, "/global/AllUsers") || strings.HasSuffix(uri, "/global/AuthenticatedUsers") {
			return true
		}
	}
	return false
}

// policyDeniesPlainHTTP reports whether the bucket policy contains a Deny
// statement conditioned on aws:SecureTransport being false.
func policyDeniesPlainHTTP(policy string) bool {
	var doc struct {
		Statement []struct {
			Effect    string
			Condition map[string]map[string]any
		}
	}
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return false
	}
	for _, stmt := range doc.Statement {
		if stmt.Effect != "Deny" {
			continue
		}
		for op, cond := range stmt.Condition {
			if op != "Bool" {
				continue
			}
			if v, ok := cond["aws:SecureTransport"]; ok && fmt.Sprint(v) == "false" {
				return true
			}
		}
	}
	return false
}
