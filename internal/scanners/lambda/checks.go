package lambda

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perFunction(match func(Function) bool, analysis func(Function) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, f := range snap.Functions {
			if !match(f) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  f.Name,
				ResourceARN: arn.LambdaFunction(snap.Region, snap.Account, f.Name),
				Region:      snap.Region,
				Analysis:    analysis(f),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "LAMBDA_WILDCARD_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Function invocable by any principal",
			Description: "The resource policy allows invocation by principal \"*\" without a source condition.",
			RiskScore:   8,
			AttackVectors: []string{
				"Anyone with the function ARN can invoke it and drive its downstream access",
			},
			BusinessImpact: "Internal logic and its IAM role become a public API.",
			Remediation: []string{
				"Replace the wildcard statement on {resource} with the specific calling service and a SourceArn condition",
			},
		},
		Evaluate: perFunction(
			func(f Function) bool { return f.PolicyHasWildcard },
			func(f Function) string {
				return fmt.Sprintf("Resource policy of %s allows principal \"*\" unconditionally.", f.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "LAMBDA_UNENCRYPTED_ENV",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Environment variables without a CMK",
			Description: "Function environment variables rely on the default service key instead of a customer-managed KMS key.",
			RiskScore:   4,
			AttackVectors: []string{
				"Anyone with lambda:GetFunction reads the decrypted environment",
			},
			BusinessImpact: "Secrets in the environment lack key-level access control.",
			Remediation: []string{
				"Configure a customer-managed KMS key for {resource} or move secrets to Secrets Manager",
			},
		},
		Evaluate: perFunction(
			func(f Function) bool { return f.HasEnvVars && !f.EnvEncryptedWithCMK },
			func(f Function) string {
				return fmt.Sprintf("Function %s has environment variables without a customer-managed key.", f.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "LAMBDA_DEPRECATED_RUNTIME",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryPatching,
			Title:       "Function runs a deprecated runtime",
			Description: "The runtime no longer receives security patches from Lambda.",
			RiskScore:   7,
			AttackVectors: []string{
				"Known interpreter and dependency CVEs remain exploitable forever",
			},
			BusinessImpact: "The function accumulates unpatchable vulnerabilities.",
			Remediation: []string{
				"Migrate {resource} to a currently supported runtime version",
			},
		},
		Evaluate: perFunction(
			func(f Function) bool { return isDeprecatedRuntime(f.Runtime) },
			func(f Function) string {
				return fmt.Sprintf("Function %s runs deprecated runtime %s.", f.Name, f.Runtime)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "LAMBDA_NO_DLQ",
			Severity:    models.SeverityLow,
			Category:    models.CategoryResilience,
			Title:       "No dead-letter queue",
			Description: "Failed asynchronous invocations are dropped after retries.",
			RiskScore:   3,
			AttackVectors: []string{
				"Poison events disappear without trace, masking injection attempts",
			},
			BusinessImpact: "Silent event loss and no failure forensics.",
			Remediation: []string{
				"Configure a DLQ for {resource}: aws lambda update-function-configuration --function-name {resource} --dead-letter-config TargetArn=<queue-arn>",
			},
		},
		Evaluate: perFunction(
			func(f Function) bool { return !f.HasDLQ },
			func(f Function) string { return fmt.Sprintf("Function %s has no dead-letter target.", f.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "LAMBDA_NO_VPC",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryNetwork,
			Title:       "Function not VPC-attached",
			Description: "The function egresses directly to the internet rather than through controlled VPC networking.",
			RiskScore:   2,
			AttackVectors: []string{
				"Exfiltration from a compromised function bypasses VPC egress controls",
			},
			BusinessImpact: "Function traffic escapes network-level monitoring.",
			Remediation: []string{
				"Attach {resource} to a VPC with restricted egress if it handles sensitive data",
			},
			DeepOnly: true,
		},
		Evaluate: perFunction(
			func(f Function) bool { return !f.InVPC },
			func(f Function) string { return fmt.Sprintf("Function %s has no VPC configuration.", f.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "LAMBDA_NO_RESERVED_CONCURRENCY",
			Severity:    models.SeverityLow,
			Category:    models.CategoryResilience,
			Title:       "No reserved concurrency",
			Description: "The function competes in the unreserved account pool and can be starved or can starve others.",
			RiskScore:   2,
			AttackVectors: []string{
				"A flooded function exhausts account concurrency and silences other workloads",
			},
			BusinessImpact: "Denial of service propagates across unrelated functions.",
			Remediation: []string{
				"aws lambda put-function-concurrency --function-name {resource} --reserved-concurrent-executions <n>",
			},
			DeepOnly: true,
		},
		Evaluate: perFunction(
			func(f Function) bool { return !f.ReservedConcurrency },
			func(f Function) string { return fmt.Sprintf("Function %s has no reserved concurrency.", f.Name) },
		),
	},
}
