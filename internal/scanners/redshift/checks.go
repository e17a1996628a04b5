package redshift

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perCluster(match func(Cluster) bool, analysis func(Cluster) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, c := range snap.Clusters {
			if !match(c) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID: c.ID,
				Region:     snap.Region,
				Analysis:   analysis(c),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "REDSHIFT_UNENCRYPTED",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryEncryption,
			Title:       "Cluster not encrypted at rest",
			Description: "The data warehouse stores its blocks without KMS encryption.",
			RiskScore:   9,
			AttackVectors: []string{
				"Snapshot or storage access reads warehouse contents directly",
			},
			BusinessImpact: "The entire analytical dataset leaks with the storage layer.",
			Remediation: []string{
				"aws redshift modify-cluster --cluster-identifier {resource} --encrypted --kms-key-id <key>",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return !c.Encrypted },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s is not encrypted at rest.", c.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "REDSHIFT_PUBLIC",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryExposure,
			Title:       "Cluster is publicly accessible",
			Description: "The cluster endpoint resolves to a public address reachable from the internet.",
			RiskScore:   9,
			AttackVectors: []string{
				"Credential brute force against an internet-facing database endpoint",
			},
			BusinessImpact: "The warehouse is one leaked password away from public exposure.",
			Remediation: []string{
				"aws redshift modify-cluster --cluster-identifier {resource} --no-publicly-accessible",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return c.PubliclyAccessible },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s is publicly accessible.", c.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "REDSHIFT_NO_ENHANCED_VPC_ROUTING",
			Severity:    models.SeverityLow,
			Category:    models.CategoryNetwork,
			Title:       "Enhanced VPC routing disabled",
			Description: "COPY and UNLOAD traffic bypasses the VPC and its network controls.",
			RiskScore:   3,
			AttackVectors: []string{
				"Bulk data movement escapes VPC flow logs and security groups",
			},
			BusinessImpact: "Data loading traffic is invisible to VPC network monitoring.",
			Remediation: []string{
				"aws redshift modify-cluster --cluster-identifier {resource} --enhanced-vpc-routing",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return !c.EnhancedVPCRouting },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s routes COPY/UNLOAD traffic outside the VPC.", c.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "REDSHIFT_SHORT_SNAPSHOT_RETENTION",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Short automated snapshot retention",
			Description: "Automated snapshots are kept for less than a week, or not at all.",
			RiskScore:   4,
			AttackVectors: []string{
				"Slow-burning corruption outlives every restorable snapshot",
			},
			BusinessImpact: "Recovery points expire before problems are noticed.",
			Remediation: []string{
				"aws redshift modify-cluster --cluster-identifier {resource} --automated-snapshot-retention-period 7",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return c.RetentionDays < minSnapshotRetentionDays },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s retains automated snapshots for %d days.", c.ID, c.RetentionDays)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "REDSHIFT_AUDIT_LOGGING_OFF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Audit logging disabled",
			Description: "Connection and user activity logs are not delivered anywhere.",
			RiskScore:   4,
			AttackVectors: []string{
				"Query-level data exfiltration leaves no record",
			},
			BusinessImpact: "Who queried the warehouse cannot be answered after an incident.",
			Remediation: []string{
				"aws redshift enable-logging --cluster-identifier {resource} --bucket-name <log-bucket>",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return !c.AuditLogging },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s has audit logging disabled.", c.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "REDSHIFT_DEFAULT_MASTER_USER",
			Severity:    models.SeverityLow,
			Category:    models.CategoryIdentity,
			Title:       "Cluster uses the default master user name",
			Description: "The master user is the console default, halving the work of credential guessing.",
			RiskScore:   3,
			AttackVectors: []string{
				"Brute force needs only the password once the user name is known",
			},
			BusinessImpact: "A predictable admin identity weakens the login barrier.",
			Remediation: []string{
				"Create a differently named admin user on {resource} and retire " + defaultMasterUser,
			},
			DeepOnly: true,
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return c.MasterUsername == defaultMasterUser },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s uses the default master user %q.", c.ID, defaultMasterUser)
			},
		),
	},
}
