package s3

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// bucketState drives the fake's per-bucket answers.
type bucketState struct {
	policyPublic bool
	aclPublic    bool
	encrypted    bool
	versioning   bool
	mfaDelete    bool
	logging      bool
	pabComplete  bool
	policy       string
	lifecycle    bool
}

type fakeS3 struct {
	buckets map[string]bucketState
}

func (f *fakeS3) state(name *string) bucketState { return f.buckets[aws.ToString(name)] }

func (f *fakeS3) ListBuckets(context.Context, *s3svc.ListBucketsInput, ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error) {
	out := &s3svc.ListBucketsOutput{}
	for name := range f.buckets {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeS3) GetBucketPolicyStatus(_ context.Context, in *s3svc.GetBucketPolicyStatusInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error) {
	return &s3svc.GetBucketPolicyStatusOutput{
		PolicyStatus: &s3types.PolicyStatus{IsPublic: aws.Bool(f.state(in.Bucket).policyPublic)},
	}, nil
}

func (f *fakeS3) GetBucketPolicy(_ context.Context, in *s3svc.GetBucketPolicyInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyOutput, error) {
	s := f.state(in.Bucket)
	if s.policy == "" {
		return nil, errors.New("NoSuchBucketPolicy")
	}
	return &s3svc.GetBucketPolicyOutput{Policy: aws.String(s.policy)}, nil
}

func (f *fakeS3) GetBucketAcl(_ context.Context, in *s3svc.GetBucketAclInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketAclOutput, error) {
	out := &s3svc.GetBucketAclOutput{}
	if f.state(in.Bucket).aclPublic {
		out.Grants = []s3types.Grant{{
			Grantee: &s3types.Grantee{
				Type: s3types.TypeGroup,
				URI:  aws.String("http://acs.amazonaws.com/groups/global/AllUsers"),
			},
		}}
	}
	return out, nil
}

func (f *fakeS3) GetBucketEncryption(_ context.Context, in *s3svc.GetBucketEncryptionInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error) {
	if !f.state(in.Bucket).encrypted {
		return nil, errors.New("ServerSideEncryptionConfigurationNotFoundError")
	}
	return &s3svc.GetBucketEncryptionOutput{}, nil
}

func (f *fakeS3) GetBucketVersioning(_ context.Context, in *s3svc.GetBucketVersioningInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketVersioningOutput, error) {
	s := f.state(in.Bucket)
	out := &s3svc.GetBucketVersioningOutput{}
	if s.versioning {
		out.Status = s3types.BucketVersioningStatusEnabled
	}
	if s.mfaDelete {
		out.MFADelete = s3types.MFADeleteStatusEnabled
	}
	return out, nil
}

func (f *fakeS3) GetBucketLogging(_ context.Context, in *s3svc.GetBucketLoggingInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketLoggingOutput, error) {
	out := &s3svc.GetBucketLoggingOutput{}
	if f.state(in.Bucket).logging {
		out.LoggingEnabled = &s3types.LoggingEnabled{TargetBucket: aws.String("logs")}
	}
	return out, nil
}

func (f *fakeS3) GetPublicAccessBlock(_ context.Context, in *s3svc.GetPublicAccessBlockInput, _ ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error) {
	if !f.state(in.Bucket).pabComplete {
		return nil, errors.New("NoSuchPublicAccessBlockConfiguration")
	}
	return &s3svc.GetPublicAccessBlockOutput{
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	}, nil
}

func (f *fakeS3) GetBucketLifecycleConfiguration(_ context.Context, in *s3svc.GetBucketLifecycleConfigurationInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketLifecycleConfigurationOutput, error) {
	if !f.state(in.Bucket).lifecycle {
		return nil, errors.New("NoSuchLifecycleConfiguration")
	}
	return &s3svc.GetBucketLifecycleConfigurationOutput{Rules: []s3types.LifecycleRule{{ID: aws.String("expire")}}}, nil
}

func (f *fakeS3) GetBucketReplication(context.Context, *s3svc.GetBucketReplicationInput, ...func(*s3svc.Options)) (*s3svc.GetBucketReplicationOutput, error) {
	return nil, errors.New("ReplicationConfigurationNotFoundError")
}

const tlsOnlyPolicy = `{"Statement":[{"Effect":"Deny","Action":"s3:*","Condition":{"Bool":{"aws:SecureTransport":"false"}}}]}`

func hardenedBucket() bucketState {
	return bucketState{
		encrypted:   true,
		versioning:  true,
		mfaDelete:   true,
		logging:     true,
		pabComplete: true,
		policy:      tlsOnlyPolicy,
		lifecycle:   true,
	}
}

func testContext(level models.ScanLevel) *scanner.Context {
	return &scanner.Context{
		ScanID:  "scan-1",
		Account: "111122223333",
		Level:   level,
		Cache:   cache.New(),
	}
}

func findingsByCheck(fs []models.Finding) map[string][]models.Finding {
	m := make(map[string][]models.Finding)
	for _, f := range fs {
		m[f.CheckID] = append(m[f.CheckID], f)
	}
	return m
}

// TestScan_PublicBucket covers the quick-scan scenario input: one public
// bucket among hardened ones must yield a CRITICAL public-policy finding.
func TestScan_PublicBucket(t *testing.T) {
	public := hardenedBucket()
	public.policyPublic = true
	fake := &fakeS3{buckets: map[string]bucketState{
		"public-data": public,
		"private-ok":  hardenedBucket(),
	}}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelQuick))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	got := byCheck["S3_PUBLIC_POLICY"]
	if len(got) != 1 {
		t.Fatalf("S3_PUBLIC_POLICY findings = %d; want 1 (%v)", len(got), byCheck)
	}
	if got[0].ResourceID != "public-data" {
		t.Errorf("resource = %q; want public-data", got[0].ResourceID)
	}
	if got[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %q; want critical", got[0].Severity)
	}
	if got[0].ResourceARN != "arn:aws:s3:::public-data" {
		t.Errorf("ARN = %q", got[0].ResourceARN)
	}
	if len(fs) != 1 {
		t.Errorf("hardened bucket leaked findings: %v", byCheck)
	}
}

func TestScan_HygieneGaps(t *testing.T) {
	weak := bucketState{} // everything off
	fake := &fakeS3{buckets: map[string]bucketState{"legacy": weak}}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelStandard))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	for _, id := range []string{
		"S3_NO_DEFAULT_ENCRYPTION",
		"S3_NO_VERSIONING",
		"S3_NO_ACCESS_LOGGING",
		"S3_NO_PUBLIC_ACCESS_BLOCK",
		"S3_INSECURE_TRANSPORT",
	} {
		if len(byCheck[id]) != 1 {
			t.Errorf("%s findings = %d; want 1", id, len(byCheck[id]))
		}
	}
	// ACL and policy are not public, so the critical checks stay quiet.
	if len(byCheck["S3_PUBLIC_POLICY"])+len(byCheck["S3_PUBLIC_ACL"]) != 0 {
		t.Error("private bucket flagged as public")
	}
	// Deep-only lifecycle check must not fire at standard level.
	if len(byCheck["S3_NO_LIFECYCLE"]) != 0 {
		t.Error("deep-only check ran at standard level")
	}
}

func TestScan_DeepChecks(t *testing.T) {
	versionedNoMFA := hardenedBucket()
	versionedNoMFA.mfaDelete = false
	versionedNoMFA.lifecycle = false
	fake := &fakeS3{buckets: map[string]bucketState{"archive": versionedNoMFA}}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext(models.ScanLevelDeep))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	byCheck := findingsByCheck(fs)

	if len(byCheck["S3_NO_MFA_DELETE"]) != 1 {
		t.Error("want MFA delete finding at deep level")
	}
	if len(byCheck["S3_NO_LIFECYCLE"]) != 1 {
		t.Error("want lifecycle finding at deep level")
	}
}

func TestPolicyDeniesPlainHTTP(t *testing.T) {
	if !policyDeniesPlainHTTP(tlsOnlyPolicy) {
		t.Error("TLS-only policy not recognised")
	}
	allowOnly := `{"Statement":[{"Effect":"Allow","Action":"s3:GetObject"}]}`
	if policyDeniesPlainHTTP(allowOnly) {
		t.Error("allow-only policy misread as TLS enforcement")
	}
}
