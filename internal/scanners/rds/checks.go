package rds

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// shortRetentionDays is the minimum acceptable automated backup window.
const shortRetentionDays = 7

// perInstance builds an evaluation flagging every instance matching the
// predicate.
func perInstance(match func(Instance) bool, analysis func(Instance) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, i := range snap.Instances {
			if !match(i) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  i.ID,
				ResourceARN: arn.RDSInstance(snap.Region, snap.Account, i.ID),
				Region:      snap.Region,
				Analysis:    analysis(i),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "RDS_UNENCRYPTED",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryEncryption,
			Title:       "Database storage not encrypted",
			Description: "The instance stores data and automated backups without encryption at rest.",
			RiskScore:   9,
			AttackVectors: []string{
				"Snapshots shared or leaked expose the full plaintext dataset",
			},
			BusinessImpact: "Regulated data at rest without the mandated protection.",
			Remediation: []string{
				"Snapshot {resource}, copy the snapshot with encryption, and restore onto an encrypted instance",
			},
		},
		Evaluate: perInstance(
			func(i Instance) bool { return !i.Encrypted },
			func(i Instance) string { return fmt.Sprintf("StorageEncrypted is false for %s.", i.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_PUBLIC_INSTANCE",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryExposure,
			Title:       "Database publicly accessible",
			Description: "The instance resolves to a public address and accepts internet connections.",
			RiskScore:   9,
			AttackVectors: []string{
				"Credential brute-force and engine CVE exploitation from anywhere",
			},
			BusinessImpact: "The primary datastore is one weak password from compromise.",
			Remediation: []string{
				"aws rds modify-db-instance --db-instance-identifier {resource} --no-publicly-accessible",
			},
		},
		Evaluate: perInstance(
			func(i Instance) bool { return i.PubliclyAccessible },
			func(i Instance) string { return fmt.Sprintf("PubliclyAccessible is true for %s.", i.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_NO_MULTI_AZ",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "No Multi-AZ deployment",
			Description: "The instance runs in a single availability zone.",
			RiskScore:   4,
			AttackVectors: []string{
				"An AZ outage takes the database fully offline",
			},
			BusinessImpact: "Unplanned downtime for every dependent service during AZ events.",
			Remediation: []string{
				"aws rds modify-db-instance --db-instance-identifier {resource} --multi-az",
			},
		},
		Evaluate: perInstance(
			func(i Instance) bool { return !i.MultiAZ },
			func(i Instance) string { return fmt.Sprintf("MultiAZ is false for %s.", i.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_BACKUPS_DISABLED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryResilience,
			Title:       "Automated backups disabled",
			Description: "Backup retention is zero, so no automated recovery point exists.",
			RiskScore:   7,
			AttackVectors: []string{
				"Ransomware or operator error becomes unrecoverable data loss",
			},
			BusinessImpact: "No point-in-time recovery for the dataset.",
			Remediation: []string{
				"aws rds modify-db-instance --db-instance-identifier {resource} --backup-retention-period 7",
			},
		},
		Evaluate: perInstance(
			func(i Instance) bool { return i.BackupRetentionDays == 0 },
			func(i Instance) string { return fmt.Sprintf("Backup retention for %s is 0 days.", i.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_SHORT_BACKUP_RETENTION",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Backup retention below seven days",
			Description: "Automated backups are kept for less than a week.",
			RiskScore:   4,
			AttackVectors: []string{
				"Slow-burning corruption outlives the recovery window",
			},
			BusinessImpact: "Incidents detected late have no clean restore point.",
			Remediation: []string{
				"aws rds modify-db-instance --db-instance-identifier {resource} --backup-retention-period 7",
			},
		},
		Evaluate: perInstance(
			func(i Instance) bool {
				return i.BackupRetentionDays > 0 && i.BackupRetentionDays < shortRetentionDays
			},
			func(i Instance) string {
				return fmt.Sprintf("Backup retention for %s is %d days.", i.ID, i.BackupRetentionDays)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_NO_DELETION_PROTECTION",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Deletion protection off",
			Description: "The instance can be deleted with a single API call.",
			RiskScore:   4,
			AttackVectors: []string{
				"A compromised credential or automation bug can destroy the database",
			},
			BusinessImpact: "One mistaken call removes the datastore and its automated backups.",
			Remediation: []string{
				"aws rds modify-db-instance --db-instance-identifier {resource} --deletion-protection",
			},
		},
		Evaluate: perInstance(
			func(i Instance) bool { return !i.DeletionProtection },
			func(i Instance) string { return fmt.Sprintf("DeletionProtection is false for %s.", i.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_DEFAULT_PORT",
			Severity:    models.SeverityLow,
			Category:    models.CategoryNetwork,
			Title:       "Database on its default port",
			Description: "The instance listens on the engine's well-known port.",
			RiskScore:   2,
			AttackVectors: []string{
				"Mass scanners fingerprint the engine instantly from the port",
			},
			BusinessImpact: "Marginally easier reconnaissance against the database.",
			Remediation: []string{
				"Move {resource} to a non-default port via --db-port-number during a maintenance window",
			},
		},
		Evaluate: perInstance(
			Instance.UsesDefaultPort,
			func(i Instance) string {
				return fmt.Sprintf("Instance %s (%s) listens on default port %d.", i.ID, i.Engine, i.Port)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_AUTO_MINOR_UPGRADE_OFF",
			Severity:    models.SeverityLow,
			Category:    models.CategoryPatching,
			Title:       "Automatic minor upgrades disabled",
			Description: "Engine security patches require manual intervention.",
			RiskScore:   3,
			AttackVectors: []string{
				"Known engine CVEs stay exploitable until someone patches by hand",
			},
			BusinessImpact: "Patch latency stretches from days to quarters.",
			Remediation: []string{
				"aws rds modify-db-instance --db-instance-identifier {resource} --auto-minor-version-upgrade",
			},
		},
		Evaluate: perInstance(
			func(i Instance) bool { return !i.AutoMinorUpgrade },
			func(i Instance) string { return fmt.Sprintf("AutoMinorVersionUpgrade is false for %s.", i.ID) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "RDS_NO_PERFORMANCE_INSIGHTS",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryMonitoring,
			Title:       "Performance Insights disabled",
			Description: "Query-level visibility into the database is unavailable.",
			RiskScore:   1,
			AttackVectors: []string{
				"Abusive query patterns from a compromised app go unnoticed",
			},
			BusinessImpact: "Harder diagnosis of load anomalies and data-scraping behavior.",
			Remediation: []string{
				"aws rds modify-db-instance --db-instance-identifier {resource} --enable-performance-insights",
			},
			DeepOnly: true,
		},
		Evaluate: perInstance(
			func(i Instance) bool { return !i.PerformanceInsights },
			func(i Instance) string { return fmt.Sprintf("PerformanceInsights is disabled for %s.", i.ID) },
		),
	},
}
