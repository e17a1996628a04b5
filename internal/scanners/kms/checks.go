package kms

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perKey(match func(Key) bool, analysis func(Key) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, k := range snap.Keys {
			if !match(k) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  k.ID,
				ResourceARN: k.ARN,
				Region:      snap.Region,
				Analysis:    analysis(k),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "KMS_ROTATION_DISABLED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "Key rotation disabled",
			Description: "The customer-managed key never rotates its cryptographic material.",
			RiskScore:   6,
			AttackVectors: []string{
				"A leaked key compromise covers all data ever encrypted under it",
			},
			BusinessImpact: "One key compromise spans the key's whole lifetime.",
			Remediation: []string{
				"aws kms enable-key-rotation --key-id {resource}",
			},
		},
		Evaluate: perKey(
			func(k Key) bool { return k.Enabled && !k.RotationEnabled },
			func(k Key) string { return fmt.Sprintf("Annual rotation is disabled for key %s.", k.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "KMS_KEY_PENDING_DELETION",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Key scheduled for deletion",
			Description: "Data encrypted under this key becomes unrecoverable when the deletion window closes.",
			RiskScore:   5,
			AttackVectors: []string{
				"Malicious key deletion is a destructive attack with a built-in timer",
			},
			BusinessImpact: "Permanent loss of everything encrypted under the key.",
			Remediation: []string{
				"Verify no data depends on {resource}; cancel with aws kms cancel-key-deletion --key-id {resource} if in doubt",
			},
		},
		Evaluate: perKey(
			func(k Key) bool { return k.PendingDeletion },
			func(k Key) string { return fmt.Sprintf("Key %s is in PendingDeletion state.", k.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "KMS_WIDE_KEY_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Key policy allows any principal",
			Description: "The key policy grants access to principal \"*\" without conditions.",
			RiskScore:   8,
			AttackVectors: []string{
				"Any AWS principal can use the key, voiding the encryption boundary",
			},
			BusinessImpact: "Encryption under this key provides no access control.",
			Remediation: []string{
				"Rewrite the policy of {resource} to name specific principals and add conditions",
			},
		},
		Evaluate: perKey(
			func(k Key) bool { return k.WidePolicy },
			func(k Key) string {
				return fmt.Sprintf("Key %s has an unconditional Allow for principal \"*\".", k.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "KMS_UNUSED_KEY",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryEncryption,
			Title:       "Key disabled but not scheduled for deletion",
			Description: "A disabled key lingers in the account with its policy and grants intact.",
			RiskScore:   1,
			AttackVectors: []string{
				"A forgotten key can be silently re-enabled with its old permissions",
			},
			BusinessImpact: "Key inventory noise and stale access grants.",
			Remediation: []string{
				"Schedule deletion for {resource} or document why it stays disabled",
			},
			DeepOnly: true,
		},
		Evaluate: perKey(
			func(k Key) bool { return !k.Enabled && !k.PendingDeletion },
			func(k Key) string { return fmt.Sprintf("Key %s is disabled with no deletion scheduled.", k.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "KMS_NO_ALIAS",
			Severity:    models.SeverityLow,
			Category:    models.CategoryEncryption,
			Title:       "Key has no alias",
			Description: "The key is referenced only by its raw id, making audits and rotation error-prone.",
			RiskScore:   2,
			AttackVectors: []string{
				"Unlabeled keys invite wrong-key misconfigurations during incident response",
			},
			BusinessImpact: "Operational mistakes around unidentifiable key material.",
			Remediation: []string{
				"aws kms create-alias --alias-name alias/<purpose> --target-key-id {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: perKey(
			func(k Key) bool { return k.Enabled && !k.HasAlias },
			func(k Key) string { return fmt.Sprintf("Key %s has no alias.", k.ID) },
		),
	},
}
