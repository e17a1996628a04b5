package cloudtrail

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perTrail(match func(Trail) bool, analysis func(Trail) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, t := range snap.Trails {
			if !match(t) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  t.Name,
				ResourceARN: t.ARN,
				Analysis:    analysis(t),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "CLOUDTRAIL_NO_MULTI_REGION",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryLogging,
			Title:       "No multi-region trail",
			Description: "No trail records API activity across all regions, so actions in unwatched regions leave no audit record.",
			RiskScore:   9,
			AttackVectors: []string{
				"Attackers pivot to an unlogged region to operate invisibly",
			},
			BusinessImpact: "Incident reconstruction is impossible for most of the account.",
			Remediation: []string{
				"aws cloudtrail create-trail --name audit --s3-bucket-name <bucket> --is-multi-region-trail",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			for _, t := range snap.Trails {
				if t.MultiRegion {
					return nil, nil
				}
			}
			return []models.Finding{{
				ResourceID: "account",
				Analysis:   fmt.Sprintf("None of the %d trails is multi-region.", len(snap.Trails)),
				Evidence:   map[string]any{"trailCount": len(snap.Trails)},
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "CLOUDTRAIL_LOG_VALIDATION_OFF",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryLogging,
			Title:       "Log file validation disabled",
			Description: "Trail log files carry no integrity digest, so tampering is undetectable.",
			RiskScore:   6,
			AttackVectors: []string{
				"An attacker with bucket access can rewrite history unnoticed",
			},
			BusinessImpact: "Audit evidence loses its integrity guarantee.",
			Remediation: []string{
				"aws cloudtrail update-trail --name {resource} --enable-log-file-validation",
			},
		},
		Evaluate: perTrail(
			func(t Trail) bool { return !t.LogValidation },
			func(t Trail) string { return fmt.Sprintf("Trail %s has log file validation disabled.", t.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "CLOUDTRAIL_NO_KMS",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Trail logs not KMS-encrypted",
			Description: "Log files use bucket-level encryption instead of a dedicated KMS key.",
			RiskScore:   4,
			AttackVectors: []string{
				"Bucket read access alone suffices to read the full audit history",
			},
			BusinessImpact: "Audit logs lack key-level access separation.",
			Remediation: []string{
				"aws cloudtrail update-trail --name {resource} --kms-key-id <key-arn>",
			},
		},
		Evaluate: perTrail(
			func(t Trail) bool { return !t.KMSEncrypted },
			func(t Trail) string { return fmt.Sprintf("Trail %s has no KMS key configured.", t.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "CLOUDTRAIL_NO_CW_LOGS",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryMonitoring,
			Title:       "Trail not delivered to CloudWatch Logs",
			Description: "Without log group delivery, no metric filter or alarm can react to trail events.",
			RiskScore:   4,
			AttackVectors: []string{
				"Suspicious API activity is recorded but never alerts anyone",
			},
			BusinessImpact: "Detection latency grows from minutes to whenever someone reads S3.",
			Remediation: []string{
				"aws cloudtrail update-trail --name {resource} --cloud-watch-logs-log-group-arn <group-arn> --cloud-watch-logs-role-arn <role-arn>",
			},
		},
		Evaluate: perTrail(
			func(t Trail) bool { return !t.CloudWatchLogs },
			func(t Trail) string { return fmt.Sprintf("Trail %s has no CloudWatch Logs integration.", t.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "CLOUDTRAIL_NO_DATA_EVENTS",
			Severity:    models.SeverityLow,
			Category:    models.CategoryLogging,
			Title:       "Trail records no data events",
			Description: "Only management events are logged; object-level S3 and Lambda activity goes unrecorded.",
			RiskScore:   3,
			AttackVectors: []string{
				"Bulk object exfiltration never appears in the trail",
			},
			BusinessImpact: "Data access auditing has a blind spot at the object level.",
			Remediation: []string{
				"Add data event selectors to {resource} for sensitive buckets and functions",
			},
			DeepOnly: true,
		},
		Evaluate: perTrail(
			func(t Trail) bool { return !t.DataEvents },
			func(t Trail) string { return fmt.Sprintf("Trail %s has no data event selectors.", t.Name) },
		),
	},
}
