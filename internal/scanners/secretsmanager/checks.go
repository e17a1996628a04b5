package secretsmanager

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perSecret(match func(*Snapshot, Secret) bool, analysis func(Secret) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, sec := range snap.Secrets {
			if !match(snap, sec) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  sec.Name,
				ResourceARN: sec.ARN,
				Region:      snap.Region,
				Analysis:    analysis(sec),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "SECRETS_ROTATION_DISABLED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryIdentity,
			Title:       "Secret rotation disabled",
			Description: "The secret's value never rotates automatically.",
			RiskScore:   5,
			AttackVectors: []string{
				"A leaked value stays valid until a human notices",
			},
			BusinessImpact: "Credential leaks have an unbounded exploitation window.",
			Remediation: []string{
				"aws secretsmanager rotate-secret --secret-id {resource} --rotation-lambda-arn <fn> --rotation-rules AutomaticallyAfterDays=30",
			},
		},
		Evaluate: perSecret(
			func(_ *Snapshot, s Secret) bool { return !s.RotationEnabled },
			func(s Secret) string { return fmt.Sprintf("Automatic rotation is disabled for %s.", s.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "SECRETS_UNUSED",
			Severity:    models.SeverityLow,
			Category:    models.CategoryIdentity,
			Title:       "Secret unaccessed for 90 days",
			Description: "Nothing has read the secret in the last quarter.",
			RiskScore:   2,
			AttackVectors: []string{
				"Stale secrets are forgotten credentials nobody will rotate or revoke",
			},
			BusinessImpact: "Orphaned credentials accumulate outside any review cycle.",
			Remediation: []string{
				"Confirm {resource} is dead and delete it with a recovery window",
			},
		},
		Evaluate: perSecret(
			func(snap *Snapshot, s Secret) bool {
				last := s.CreatedDate
				if s.LastAccessed != nil {
					last = *s.LastAccessed
				}
				return !last.IsZero() && snap.Now.Sub(last) > staleSecretAge
			},
			func(s Secret) string { return fmt.Sprintf("Secret %s has not been accessed in over 90 days.", s.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "SECRETS_NO_CMK",
			Severity:    models.SeverityLow,
			Category:    models.CategoryEncryption,
			Title:       "Secret uses the default service key",
			Description: "The secret is encrypted with the account default key instead of a customer-managed KMS key.",
			RiskScore:   3,
			AttackVectors: []string{
				"Secret access control collapses to IAM alone, with no key policy layer",
			},
			BusinessImpact: "No independent key-level gate on the most sensitive values.",
			Remediation: []string{
				"Re-encrypt {resource} under a customer-managed key via update-secret --kms-key-id",
			},
		},
		Evaluate: perSecret(
			func(_ *Snapshot, s Secret) bool { return !s.UsesCMK },
			func(s Secret) string { return fmt.Sprintf("Secret %s uses the default aws/secretsmanager key.", s.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "SECRETS_WIDE_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Secret policy allows any principal",
			Description: "The resource policy grants access to principal \"*\" without conditions.",
			RiskScore:   8,
			AttackVectors: []string{
				"Any AWS identity can read the secret value",
			},
			BusinessImpact: "The secret is effectively public within AWS.",
			Remediation: []string{
				"Rewrite the resource policy of {resource} to name the consuming roles only",
			},
		},
		Evaluate: perSecret(
			func(_ *Snapshot, s Secret) bool { return s.WidePolicy },
			func(s Secret) string {
				return fmt.Sprintf("Resource policy of %s has an unconditional Allow for \"*\".", s.Name)
			},
		),
	},
}
