package dynamodb

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perTable(match func(Table) bool, analysis func(Table) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, t := range snap.Tables {
			if !match(t) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  t.Name,
				ResourceARN: t.ARN,
				Region:      snap.Region,
				Analysis:    analysis(t),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "DDB_NO_CMK",
			Severity:    models.SeverityLow,
			Category:    models.CategoryEncryption,
			Title:       "Table encrypted with AWS-owned key only",
			Description: "The table relies on the default AWS-owned key instead of a customer-managed KMS key.",
			RiskScore:   3,
			AttackVectors: []string{
				"No customer-side control over key rotation or revocation",
			},
			BusinessImpact: "Encryption cannot be audited or revoked from the customer side.",
			Remediation: []string{
				"aws dynamodb update-table --table-name {resource} --sse-specification Enabled=true,SSEType=KMS,KMSMasterKeyId=<key>",
			},
		},
		Evaluate: perTable(
			func(t Table) bool { return !t.UsesCMK },
			func(t Table) string {
				return fmt.Sprintf("Table %s uses no customer-managed KMS key.", t.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "DDB_PITR_DISABLED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Point-in-time recovery disabled",
			Description: "Without PITR the table cannot be restored to a moment before corruption or deletion.",
			RiskScore:   5,
			AttackVectors: []string{
				"Destructive writes or ransomware-style deletions become unrecoverable",
			},
			BusinessImpact: "Data loss from bad deploys or malicious writes is permanent.",
			Remediation: []string{
				"aws dynamodb update-continuous-backups --table-name {resource} --point-in-time-recovery-specification PointInTimeRecoveryEnabled=true",
			},
		},
		Evaluate: perTable(
			func(t Table) bool { return !t.PITREnabled },
			func(t Table) string {
				return fmt.Sprintf("Table %s has point-in-time recovery disabled.", t.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "DDB_NO_BACKUPS",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Table has no backups at all",
			Description: "Neither point-in-time recovery nor any on-demand backup protects the table.",
			RiskScore:   4,
			AttackVectors: []string{
				"A single destructive operation erases the table with no way back",
			},
			BusinessImpact: "Total, unrecoverable loss of the table's data.",
			Remediation: []string{
				"Enable PITR on {resource} or schedule on-demand backups through AWS Backup",
			},
		},
		Evaluate: perTable(
			func(t Table) bool { return !t.PITREnabled && !t.HasBackups },
			func(t Table) string {
				return fmt.Sprintf("Table %s has neither PITR nor on-demand backups.", t.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "DDB_TTL_WITHOUT_PITR",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryResilience,
			Title:       "TTL expiry without point-in-time recovery",
			Description: "TTL deletes items continuously while PITR is off, so a misconfigured TTL attribute destroys data irreversibly.",
			RiskScore:   1,
			AttackVectors: []string{
				"A wrong TTL attribute silently drains the table",
			},
			BusinessImpact: "TTL misconfiguration turns into unrecoverable data loss.",
			Remediation: []string{
				"Enable PITR on {resource} while TTL expiry is active",
			},
			DeepOnly: true,
		},
		Evaluate: perTable(
			func(t Table) bool { return t.TTLEnabled && !t.PITREnabled },
			func(t Table) string {
				return fmt.Sprintf("Table %s expires items via TTL with no PITR safety net.", t.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "DDB_PUBLIC_GATEWAY_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Resource policy allows any principal",
			Description: "The table's resource policy has an unconditional Allow for principal \"*\".",
			RiskScore:   8,
			AttackVectors: []string{
				"Any AWS principal can read or write table items directly",
			},
			BusinessImpact: "Table contents are open to arbitrary accounts.",
			Remediation: []string{
				"Rewrite the resource policy of {resource} to name specific principals",
			},
			DeepOnly: true,
		},
		Evaluate: perTable(
			func(t Table) bool { return t.PublicGateway },
			func(t Table) string {
				return fmt.Sprintf("Table %s resource policy allows principal \"*\".", t.Name)
			},
		),
	},
}
