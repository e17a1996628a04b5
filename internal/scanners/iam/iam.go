// Package iam scans account identity posture: root account hygiene, user
// credential lifecycle, password policy strength, and policy sprawl.
package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// supportAccessPolicyARN is the AWS managed policy whose attachment signals
// that an incident-support role exists in the account.
const supportAccessPolicyARN = "arn:aws:iam::aws:policy/AWSSupportAccess"

// iamAPI is the narrow IAM surface the scanner needs. It embeds the SDK
// paginator interfaces so ListUsers and ListPolicies can be paginated.
type iamAPI interface {
	iamsvc.ListUsersAPIClient
	iamsvc.ListPoliciesAPIClient
	GetAccountSummary(ctx context.Context, params *iamsvc.GetAccountSummaryInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error)
	GetAccountPasswordPolicy(ctx context.Context, params *iamsvc.GetAccountPasswordPolicyInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountPasswordPolicyOutput, error)
	GetLoginProfile(ctx context.Context, params *iamsvc.GetLoginProfileInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error)
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	ListAccessKeys(ctx context.Context, params *iamsvc.ListAccessKeysInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListAccessKeysOutput, error)
	ListUserPolicies(ctx context.Context, params *iamsvc.ListUserPoliciesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListUserPoliciesOutput, error)
	GetPolicyVersion(ctx context.Context, params *iamsvc.GetPolicyVersionInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetPolicyVersionOutput, error)
	ListVirtualMFADevices(ctx context.Context, params *iamsvc.ListVirtualMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListVirtualMFADevicesOutput, error)
	ListEntitiesForPolicy(ctx context.Context, params *iamsvc.ListEntitiesForPolicyInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListEntitiesForPolicyOutput, error)
}

// clientFactory resolves the IAM client for a scan context.
// Tests swap it for a function returning a fake.
type clientFactory func(ctx context.Context, sc *scanner.Context) (iamAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context) (iamAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "iam", "us-east-1", func(cfg aws.Config) iamAPI {
		return iamsvc.NewFromConfig(cfg)
	})
}

// Scanner audits the account's identity configuration. IAM is a global
// service, so the region list in the scan context is ignored.
type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api iamAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context) (iamAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "iam" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	snap, err := cache.Fetch(ctx, sc.Cache,
		cache.Key{Account: sc.Account, Region: "global", ResourceType: "iam:account"},
		func(ctx context.Context) (*Snapshot, error) {
			return s.collect(ctx, sc)
		})
	if err != nil {
		return nil, err
	}
	return scanner.RunChecks(sc, s.ID(), snap, checks), nil
}

// Snapshot is the collected identity state the check catalog evaluates.
type Snapshot struct {
	Account string
	Now     time.Time

	// Summary is the raw GetAccountSummary map. Root posture comes from
	// AccountAccessKeysPresent and AccountMFAEnabled.
	Summary map[string]int32

	Users []User

	// PasswordPolicy is nil when the account has no custom policy.
	PasswordPolicy *PasswordPolicy

	// WildcardPolicies names customer-managed policies whose default
	// version grants Action "*" on Resource "*".
	WildcardPolicies []string

	// RootHasVirtualMFA is true when a virtual MFA device is bound to the
	// root serial, meaning root MFA is not hardware-backed.
	RootHasVirtualMFA bool

	SupportRoleAttached bool
}

type User struct {
	Name             string
	ARN              string
	ConsoleAccess    bool
	MFAEnabled       bool
	PasswordLastUsed *time.Time
	CreateDate       time.Time
	InlinePolicies   int
	AccessKeys       []AccessKey
}

type AccessKey struct {
	ID         string
	Active     bool
	CreateDate time.Time
}

type PasswordPolicy struct {
	MinimumLength   int32
	RequireSymbols  bool
	RequireNumbers  bool
	ReusePrevention int32
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context) (*Snapshot, error) {
	client, err := s.clients(ctx, sc)
	if err != nil {
		return nil, err
	}
	log := sc.Logger().WithField("scanner", s.ID())

	snap := &Snapshot{Account: sc.Account, Now: time.Now().UTC()}

	summary, err := common.Retry(ctx, "iam.GetAccountSummary", func(ctx context.Context) (*iamsvc.GetAccountSummaryOutput, error) {
		return client.GetAccountSummary(ctx, &iamsvc.GetAccountSummaryInput{})
	})
	if err != nil {
		return nil, fmt.Errorf("get account summary: %w", err)
	}
	snap.Summary = summary.SummaryMap

	if err := s.collectUsers(ctx, client, snap); err != nil {
		return nil, err
	}

	policy, err := client.GetAccountPasswordPolicy(ctx, &iamsvc.GetAccountPasswordPolicyInput{})
	if err == nil && policy.PasswordPolicy != nil {
		p := policy.PasswordPolicy
		snap.PasswordPolicy = &PasswordPolicy{
			MinimumLength:   aws.ToInt32(p.MinimumPasswordLength),
			RequireSymbols:  p.RequireSymbols,
			RequireNumbers:  p.RequireNumbers,
			ReusePrevention: aws.ToInt32(p.PasswordReusePrevention),
		}
	}
	// NoSuchEntity means no policy is configured, which the catalog flags.

	if err := s.collectWildcardPolicies(ctx, client, snap); err != nil {
		log.WithError(err).Warn("customer policy inspection incomplete")
	}

	virtual, err := client.ListVirtualMFADevices(ctx, &iamsvc.ListVirtualMFADevicesInput{
		AssignmentStatus: iamtypes.AssignmentStatusTypeAssigned,
	})
	if err == nil {
		for _, d := range virtual.VirtualMFADevices {
			if strings.HasSuffix(aws.ToString(d.SerialNumber), ":mfa/root-account-mfa-device") {
				snap.RootHasVirtualMFA = true
			}
		}
	}

	entities, err := client.ListEntitiesForPolicy(ctx, &iamsvc.ListEntitiesForPolicyInput{
		PolicyArn: aws.String(supportAccessPolicyARN),
	})
	if err == nil {
		snap.SupportRoleAttached = len(entities.PolicyRoles) > 0
	}

	return snap, nil
}

func (s *Scanner) collectUsers(ctx context.Context, client iamAPI, snap *Snapshot) error {
	paginator := iamsvc.NewListUsersPaginator(client, &iamsvc.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := common.Retry(ctx, "iam.ListUsers", func(ctx context.Context) (*iamsvc.ListUsersOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, u := range page.Users {
			user, err := s.describeUser(ctx, client, u)
			if err != nil {
				return err
			}
			snap.Users = append(snap.Users, user)
		}
	}
	return nil
}

func (s *Scanner) describeUser(ctx context.Context, client iamAPI, u iamtypes.User) (User, error) {
	name := aws.ToString(u.UserName)
	user := User{
		Name:             name,
		ARN:              aws.ToString(u.Arn),
		PasswordLastUsed: u.PasswordLastUsed,
		CreateDate:       aws.ToTime(u.CreateDate),
	}

	// A login profile exists only for console users; NoSuchEntity is the
	// normal answer for API-only principals.
	if _, err := client.GetLoginProfile(ctx, &iamsvc.GetLoginProfileInput{UserName: u.UserName}); err == nil {
		user.ConsoleAccess = true
	}

	mfa, err := client.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{UserName: u.UserName})
	if err != nil {
		return User{}, fmt.Errorf("list MFA devices for %s: %w", name, err)
	}
	user.MFAEnabled = len(mfa.MFADevices) > 0

	keys, err := client.ListAccessKeys(ctx, &iamsvc.ListAccessKeysInput{UserName: u.UserName})
	if err != nil {
		return User{}, fmt.Errorf("list access keys for %s: %w", name, err)
	}
	for _, k := range keys.AccessKeyMetadata {
		user.AccessKeys = append(user.AccessKeys, AccessKey{
			ID:         aws.ToString(k.AccessKeyId),
			Active:     k.Status == iamtypes.StatusTypeActive,
			CreateDate: aws.ToTime(k.CreateDate),
		})
	}

	inline, err := client.ListUserPolicies(ctx, &iamsvc.ListUserPoliciesInput{UserName: u.UserName})
	if err == nil {
		user.InlinePolicies = len(inline.PolicyNames)
	}

	return user, nil
}

// collectWildcardPolicies walks customer-managed policies and records the
// ones whose default version grants full administrative access.
func (s *Scanner) collectWildcardPolicies(ctx context.Context, client iamAPI, snap *Snapshot) error {
	paginator := iamsvc.NewListPoliciesPaginator(client, &iamsvc.ListPoliciesInput{
		Scope:        iamtypes.PolicyScopeTypeLocal,
		OnlyAttached: true,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, p := range page.Policies {
			version, err := client.GetPolicyVersion(ctx, &iamsvc.GetPolicyVersionInput{
				PolicyArn: p.Arn,
				VersionId: p.DefaultVersionId,
			})
			if err != nil || version.PolicyVersion == nil {
				continue
			}
			if policyGrantsAdmin(aws.ToString(version.PolicyVersion.Document)) {
				snap.WildcardPolicies = append(snap.WildcardPolicies, aws.ToString(p.PolicyName))
			}
		}
	}
	return nil
}

// policyGrantsAdmin reports whether the URL-encoded policy document contains
// an Allow statement with Action "*" over Resource "*".
func policyGrantsAdmin(encoded string) bool {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return false
	}
	var doc struct {
		Statement []json.RawMessage
	}
	if err := json.Unmarshal([]byte(decoded), &doc); err != nil {
		return false
	}
	for _, raw := range doc.Statement {
		var stmt struct {
			Effect   string
			Action   any
			Resource any
		}
		if err := json.Unmarshal(raw, &stmt); err != nil {
			continue
		}
		if stmt.Effect == "Allow" && valueContains(stmt.Action, "*") && valueContains(stmt.Resource, "*") {
			return true
		}
	}
	return false
}

// valueContains matches a policy element that may be a string or a list.
func valueContains(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}
