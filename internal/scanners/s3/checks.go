package s3

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// perBucket builds an evaluation function that flags every bucket matching
// the predicate. Most of the catalog is a per-bucket condition.
func perBucket(match func(Bucket) bool, analysis func(Bucket) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, b := range snap.Buckets {
			if !match(b) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  b.Name,
				ResourceARN: arn.Bucket(b.Name),
				Analysis:    analysis(b),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "S3_PUBLIC_POLICY",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryExposure,
			Title:       "Bucket policy makes bucket public",
			Description: "The bucket policy grants access to anonymous or any-AWS principals.",
			RiskScore:   9,
			AttackVectors: []string{
				"Anyone on the internet can enumerate and read bucket contents",
				"Automated scanners index public buckets within hours",
			},
			BusinessImpact: "Direct data exposure and breach-notification liability.",
			Remediation: []string{
				"Remove the public statements from the policy of {resource}",
				"aws s3api put-public-access-block --bucket {resource} --public-access-block-configuration BlockPublicAcls=true,IgnorePublicAcls=true,BlockPublicPolicy=true,RestrictPublicBuckets=true",
			},
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return b.PolicyPublic },
			func(b Bucket) string {
				return fmt.Sprintf("GetBucketPolicyStatus reports the policy of %s as public.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_PUBLIC_ACL",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryExposure,
			Title:       "Bucket ACL grants public access",
			Description: "The bucket ACL grants permissions to the AllUsers or AuthenticatedUsers group.",
			RiskScore:   9,
			AttackVectors: []string{
				"ACL grants bypass policy review and expose objects directly",
			},
			BusinessImpact: "Uncontrolled public read or write of bucket objects.",
			Remediation: []string{
				"aws s3api put-bucket-acl --bucket {resource} --acl private",
			},
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return b.ACLPublic },
			func(b Bucket) string {
				return fmt.Sprintf("The ACL of %s contains a grant to a public group URI.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_NO_DEFAULT_ENCRYPTION",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "No default bucket encryption",
			Description: "The bucket has no server-side encryption configuration.",
			RiskScore:   7,
			AttackVectors: []string{
				"Objects land unencrypted and stay readable if storage media or backups leak",
			},
			BusinessImpact: "Compliance violations for data at rest.",
			Remediation: []string{
				"aws s3api put-bucket-encryption --bucket {resource} --server-side-encryption-configuration '{\"Rules\":[{\"ApplyServerSideEncryptionByDefault\":{\"SSEAlgorithm\":\"aws:kms\"}}]}'",
			},
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return !b.Encrypted },
			func(b Bucket) string {
				return fmt.Sprintf("GetBucketEncryption returned no configuration for %s.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_NO_VERSIONING",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Versioning disabled",
			Description: "Object versioning is not enabled, so overwrites and deletes are unrecoverable.",
			RiskScore:   5,
			AttackVectors: []string{
				"Ransomware or a compromised writer can destroy data irreversibly",
			},
			BusinessImpact: "No recovery path for corrupted or deleted objects.",
			Remediation: []string{
				"aws s3api put-bucket-versioning --bucket {resource} --versioning-configuration Status=Enabled",
			},
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return !b.VersioningEnabled },
			func(b Bucket) string {
				return fmt.Sprintf("Versioning status for %s is not Enabled.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_NO_ACCESS_LOGGING",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Server access logging disabled",
			Description: "Requests against the bucket leave no access log trail.",
			RiskScore:   4,
			AttackVectors: []string{
				"Data exfiltration through the bucket is invisible to investigation",
			},
			BusinessImpact: "No forensic record of who read or wrote which objects.",
			Remediation: []string{
				"Enable server access logging for {resource} targeting a dedicated log bucket",
			},
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return !b.AccessLogging },
			func(b Bucket) string {
				return fmt.Sprintf("No LoggingEnabled target is configured for %s.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_NO_PUBLIC_ACCESS_BLOCK",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Public access block not fully enabled",
			Description: "One or more of the four public access block settings is off, so a future policy or ACL change can expose the bucket.",
			RiskScore:   7,
			AttackVectors: []string{
				"A single misconfigured deploy can flip the bucket public",
			},
			BusinessImpact: "No guardrail between a config mistake and public data.",
			Remediation: []string{
				"aws s3api put-public-access-block --bucket {resource} --public-access-block-configuration BlockPublicAcls=true,IgnorePublicAcls=true,BlockPublicPolicy=true,RestrictPublicBuckets=true",
			},
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return !b.PublicAccessBlock },
			func(b Bucket) string {
				return fmt.Sprintf("The public access block for %s is absent or incomplete.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_INSECURE_TRANSPORT",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryDataProtection,
			Title:       "Plain HTTP access not denied",
			Description: "The bucket policy does not deny requests made without TLS.",
			RiskScore:   6,
			AttackVectors: []string{
				"Credentials and object data can be read on path by network observers",
			},
			BusinessImpact: "Data in transit to the bucket can be intercepted.",
			Remediation: []string{
				"Add a Deny statement to {resource} with the condition \"aws:SecureTransport\": \"false\"",
			},
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return !b.DeniesPlainHTTP },
			func(b Bucket) string {
				return fmt.Sprintf("No Deny statement conditioned on aws:SecureTransport exists for %s.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_NO_MFA_DELETE",
			Severity:    models.SeverityLow,
			Category:    models.CategoryResilience,
			Title:       "MFA delete disabled on versioned bucket",
			Description: "Versioned buckets allow permanent deletes without a second factor.",
			RiskScore:   3,
			AttackVectors: []string{
				"A compromised admin credential can purge versions permanently",
			},
			BusinessImpact: "Version history can be destroyed in one API call.",
			Remediation: []string{
				"Enable MFA delete on {resource} using the root account and a hardware token",
			},
			DeepOnly: true,
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return b.VersioningEnabled && !b.MFADeleteEnabled },
			func(b Bucket) string {
				return fmt.Sprintf("Bucket %s is versioned but MFADelete is not Enabled.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_NO_LIFECYCLE",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryResilience,
			Title:       "No lifecycle rules",
			Description: "The bucket accumulates objects and versions without expiry or transition rules.",
			RiskScore:   2,
			AttackVectors: []string{
				"Stale data outlives its business need and its protection requirements",
			},
			BusinessImpact: "Unbounded storage growth and retention-policy drift.",
			Remediation: []string{
				"Define lifecycle rules for {resource} covering noncurrent versions and incomplete uploads",
			},
			DeepOnly: true,
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return !b.HasLifecycleRules },
			func(b Bucket) string {
				return fmt.Sprintf("No lifecycle configuration exists for %s.", b.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "S3_REPLICATION_UNENCRYPTED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Replication without destination encryption",
			Description: "A replication rule copies objects without forcing encryption at the destination.",
			RiskScore:   4,
			AttackVectors: []string{
				"Replicated copies weaken the source bucket's encryption guarantees",
			},
			BusinessImpact: "Data protected at the source lands unprotected elsewhere.",
			Remediation: []string{
				"Add an EncryptionConfiguration with a destination KMS key to the replication rules of {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: perBucket(
			func(b Bucket) bool { return b.HasReplication && b.ReplicationPlained },
			func(b Bucket) string {
				return fmt.Sprintf("Replication rules of %s have no destination EncryptionConfiguration.", b.Name)
			},
		),
	},
}
