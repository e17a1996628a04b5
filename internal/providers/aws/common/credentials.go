package common

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CredentialContext is an opaque short-lived token bundle scoped to one
// account. It is owned exclusively by the client factory for the duration of
// a scan and is never persisted by the engine.
type CredentialContext struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// ExpiresAt is the instant after which the tokens are no longer valid.
	// Zero means the credentials do not expire.
	ExpiresAt time.Time
}

// ExpiresWithin reports whether the context expires inside the given window.
// Non-expiring credentials never report true.
func (c CredentialContext) ExpiresWithin(window time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(c.ExpiresAt) < window
}

// CredentialProvider supplies short-lived credentials for a target account.
// It is an external collaborator: implementations may perform cross-account
// role assumption, read the shared AWS config, or call a vault. The engine
// only depends on this contract.
//
// Resolve must return credentials valid for at least the scan's timeout
// window, or an error; the engine fails fast with a *CredentialError.
type CredentialProvider interface {
	Resolve(ctx context.Context, accountID string) (CredentialContext, error)
}

// SharedConfigProvider is the default CredentialProvider used by the CLI.
// It resolves the ambient credential chain (environment, shared config,
// instance metadata) via the AWS SDK and verifies with STS that the resolved
// identity belongs to the requested account.
type SharedConfigProvider struct {
	// Profile optionally names a shared-config profile. Empty means the
	// default chain.
	Profile string
}

// Resolve implements CredentialProvider.
func (p *SharedConfigProvider) Resolve(ctx context.Context, accountID string) (CredentialContext, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if p.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(p.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return CredentialContext{}, fmt.Errorf("load AWS config: %w", err)
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return CredentialContext{}, fmt.Errorf("retrieve credentials: %w", err)
	}

	// Fall back to us-east-1 so the STS client can be constructed even when
	// the ambient config carries no region.
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return CredentialContext{}, fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	if out.Account == nil || *out.Account != accountID {
		got := "<nil>"
		if out.Account != nil {
			got = *out.Account
		}
		return CredentialContext{}, fmt.Errorf("ambient credentials belong to account %s, not %s", got, accountID)
	}

	return CredentialContext{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		ExpiresAt:       creds.Expires,
	}, nil
}
