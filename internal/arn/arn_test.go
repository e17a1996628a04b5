package arn

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBuild_Format(t *testing.T) {
	got := Build("ec2", "us-east-1", "123456789012", "instance/i-abc123")
	want := "arn:aws:ec2:us-east-1:123456789012:instance/i-abc123"
	if got != want {
		t.Errorf("Build: got %q; want %q", got, want)
	}
}

func TestBucket_NoRegionNoAccount(t *testing.T) {
	got := Bucket("my-data")
	if got != "arn:aws:s3:::my-data" {
		t.Errorf("Bucket: got %q; want arn:aws:s3:::my-data", got)
	}
}

func TestIAMUser_Global(t *testing.T) {
	got := IAMUser("123456789012", "alice")
	if got != "arn:aws:iam::123456789012:user/alice" {
		t.Errorf("IAMUser: got %q", got)
	}
}

func TestRootAccount(t *testing.T) {
	got := RootAccount("123456789012")
	if got != "arn:aws:iam::123456789012:root" {
		t.Errorf("RootAccount: got %q", got)
	}
}

func TestRDSInstance_ColonSeparator(t *testing.T) {
	got := RDSInstance("eu-west-1", "123456789012", "prod-db")
	if got != "arn:aws:rds:eu-west-1:123456789012:db:prod-db" {
		t.Errorf("RDSInstance: got %q", got)
	}
}

func TestHostedZone_NoAccount(t *testing.T) {
	got := HostedZone("Z0ABCDEF")
	if got != "arn:aws:route53:::hostedzone/Z0ABCDEF" {
		t.Errorf("HostedZone: got %q", got)
	}
}

// TestBuild_Idempotent verifies the core identity property: building an ARN
// for the same raw descriptor twice always yields an identical string.
func TestBuild_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Build is deterministic", prop.ForAll(
		func(service, region, account, resource string) bool {
			return Build(service, region, account, resource) ==
				Build(service, region, account, resource)
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.Property("Build embeds every segment", prop.ForAll(
		func(service, region, account, resource string) bool {
			a := Build(service, region, account, resource)
			return strings.HasPrefix(a, "arn:aws:") &&
				strings.Contains(a, service) &&
				strings.Contains(a, resource)
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
