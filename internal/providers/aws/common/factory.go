package common

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/sirupsen/logrus"
)

// refreshWindow is how close to expiry the cached credential context may get
// before the factory refreshes it ahead of handing out new configurations.
const refreshWindow = 2 * time.Minute

// Factory produces and caches AWS service clients for one account across the
// lifetime of a single scan. It is the only component that touches the
// CredentialProvider; scanners obtain clients exclusively through it.
//
// Client construction is cached per (service, region). Credential refresh is
// guarded so that concurrent readers observe exactly one refresh
// (refresh-then-broadcast, never refresh-per-caller).
type Factory struct {
	account  string
	provider CredentialProvider
	log      *logrus.Entry

	mu      sync.Mutex
	creds   *CredentialContext
	clients map[clientKey]any
}

type clientKey struct {
	service string
	region  string
}

// NewFactory returns a Factory for the given account. No credentials are
// resolved until the first client or config request.
func NewFactory(account string, provider CredentialProvider, log *logrus.Entry) *Factory {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Factory{
		account:  account,
		provider: provider,
		log:      log,
		clients:  make(map[clientKey]any),
	}
}

// Account returns the account this factory is scoped to.
func (f *Factory) Account() string { return f.account }

// Connect eagerly resolves credentials so callers can fail fast before any
// scanner launches. A resolution failure is always a *CredentialError.
func (f *Factory) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.credentialsLocked(ctx)
	return err
}

// ConfigForRegion returns an aws.Config scoped to region, carrying the
// current credential context. The context is transparently refreshed when it
// is about to expire.
func (f *Factory) ConfigForRegion(ctx context.Context, region string) (aws.Config, error) {
	f.mu.Lock()
	creds, err := f.credentialsLocked(ctx)
	f.mu.Unlock()
	if err != nil {
		return aws.Config{}, err
	}

	return aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		),
	}, nil
}

// Client returns the cached client for (service, region), constructing it
// with build on first use. The returned value is shared across all checks
// that request the same key within the scan.
func (f *Factory) Client(ctx context.Context, service, region string, build func(aws.Config) any) (any, error) {
	key := clientKey{service: service, region: region}

	f.mu.Lock()
	if c, ok := f.clients[key]; ok {
		f.mu.Unlock()
		return c, nil
	}
	f.mu.Unlock()

	cfg, err := f.ConfigForRegion(ctx, region)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Another goroutine may have built the client while we were unlocked.
	if c, ok := f.clients[key]; ok {
		return c, nil
	}
	c := build(cfg)
	f.clients[key] = c
	return c, nil
}

// credentialsLocked returns the current credential context, resolving it on
// first use and refreshing it when it is about to expire. Callers must hold
// f.mu; the single lock is what makes refresh-then-broadcast safe.
func (f *Factory) credentialsLocked(ctx context.Context) (CredentialContext, error) {
	if f.creds != nil && !f.creds.ExpiresWithin(refreshWindow) {
		return *f.creds, nil
	}

	refreshing := f.creds != nil
	creds, err := f.provider.Resolve(ctx, f.account)
	if err != nil {
		return CredentialContext{}, &CredentialError{Account: f.account, Err: err}
	}
	f.creds = &creds

	if refreshing {
		f.log.WithField("account", f.account).Debug("refreshed scan credentials")
		// Cached clients hold the previous static credentials; drop them so
		// the next request rebuilds against the fresh context.
		f.clients = make(map[clientKey]any)
	}
	return creds, nil
}

// ClientFor is the typed wrapper around Factory.Client. Each scanner package
// uses it to obtain its narrow service client without repeating assertions.
func ClientFor[T any](ctx context.Context, f *Factory, service, region string, build func(aws.Config) T) (T, error) {
	var zero T
	c, err := f.Client(ctx, service, region, func(cfg aws.Config) any { return build(cfg) })
	if err != nil {
		return zero, err
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("client cache for %s/%s holds %T", service, region, c)
	}
	return t, nil
}
