package common

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
)

// fakeProvider counts Resolve calls and returns canned credentials or a
// canned error.
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	creds   CredentialContext
	err     error
}

func (p *fakeProvider) Resolve(_ context.Context, _ string) (CredentialContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return CredentialContext{}, p.err
	}
	return p.creds, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestFactory_ConnectFailureIsCredentialError(t *testing.T) {
	p := &fakeProvider{err: errors.New("assume role denied")}
	f := NewFactory("123456789012", p, nil)

	err := f.Connect(context.Background())
	if err == nil {
		t.Fatal("want error from Connect with failing provider")
	}
	if !IsCredentialError(err) {
		t.Errorf("want *CredentialError, got %T: %v", err, err)
	}
}

func TestFactory_ClientCachedPerServiceRegion(t *testing.T) {
	p := &fakeProvider{creds: CredentialContext{AccessKeyID: "AKIA"}}
	f := NewFactory("123456789012", p, nil)

	built := 0
	build := func(aws.Config) any { built++; return &struct{}{} }

	c1, err := f.Client(context.Background(), "s3", "us-east-1", build)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	c2, err := f.Client(context.Background(), "s3", "us-east-1", build)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if c1 != c2 {
		t.Error("same key must return the cached client")
	}
	if built != 1 {
		t.Errorf("build called %d times; want 1", built)
	}

	// A different region is a different cache key.
	if _, err := f.Client(context.Background(), "s3", "eu-west-1", build); err != nil {
		t.Fatalf("Client: %v", err)
	}
	if built != 2 {
		t.Errorf("build called %d times after second region; want 2", built)
	}
}

func TestFactory_CredentialsResolvedOnce(t *testing.T) {
	p := &fakeProvider{creds: CredentialContext{AccessKeyID: "AKIA"}}
	f := NewFactory("123456789012", p, nil)

	for i := 0; i < 5; i++ {
		if _, err := f.ConfigForRegion(context.Background(), "us-east-1"); err != nil {
			t.Fatalf("ConfigForRegion: %v", err)
		}
	}
	if got := p.callCount(); got != 1 {
		t.Errorf("Resolve called %d times; want 1 (non-expiring credentials)", got)
	}
}

func TestFactory_RefreshesNearExpiry(t *testing.T) {
	p := &fakeProvider{creds: CredentialContext{
		AccessKeyID: "AKIA",
		ExpiresAt:   time.Now().Add(30 * time.Second), // inside the refresh window
	}}
	f := NewFactory("123456789012", p, nil)

	if _, err := f.ConfigForRegion(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ConfigForRegion: %v", err)
	}
	if _, err := f.ConfigForRegion(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ConfigForRegion: %v", err)
	}
	if got := p.callCount(); got < 2 {
		t.Errorf("Resolve called %d times; want a refresh for near-expiry credentials", got)
	}
}

func TestClientFor_TypedAccess(t *testing.T) {
	p := &fakeProvider{creds: CredentialContext{AccessKeyID: "AKIA"}}
	f := NewFactory("123456789012", p, nil)

	type s3Stub struct{ region string }
	c, err := ClientFor(context.Background(), f, "s3", "us-east-1", func(cfg aws.Config) *s3Stub {
		return &s3Stub{region: cfg.Region}
	})
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if c.region != "us-east-1" {
		t.Errorf("client built with region %q; want us-east-1", c.region)
	}
}

// throttleErr satisfies smithy.APIError with a throttling code.
type throttleErr struct{ code string }

func (e *throttleErr) Error() string                 { return e.code }
func (e *throttleErr) ErrorCode() string             { return e.code }
func (e *throttleErr) ErrorMessage() string          { return e.code }
func (e *throttleErr) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestRetry_TransientErrorAfterBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "ec2.DescribeInstances", func(context.Context) (int, error) {
		calls++
		return 0, &throttleErr{code: "Throttling"}
	})
	if calls != maxAttempts {
		t.Errorf("fn called %d times; want %d", calls, maxAttempts)
	}
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransientError, got %T: %v", err, err)
	}
	if te.Attempts != maxAttempts {
		t.Errorf("Attempts = %d; want %d", te.Attempts, maxAttempts)
	}
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "iam.ListUsers", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("AccessDenied")
	})
	if calls != 1 {
		t.Errorf("fn called %d times; want 1 for non-retryable error", calls)
	}
	var te *TransientError
	if errors.As(err, &te) {
		t.Error("non-retryable error must not be wrapped as TransientError")
	}
}

func TestRetry_SucceedsAfterThrottle(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), "s3.ListBuckets", func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &throttleErr{code: "SlowDown"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if out != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls; want ok after 2", out, calls)
	}
}
