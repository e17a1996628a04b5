package guardduty

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "GUARDDUTY_NOT_ENABLED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryMonitoring,
			Title:       "GuardDuty not enabled",
			Description: "The region has no GuardDuty detector, so managed threat detection is off entirely.",
			RiskScore:   7,
			AttackVectors: []string{
				"Credential theft, crypto mining, and C2 traffic go undetected",
			},
			BusinessImpact: "No baseline threat detection for the region.",
			Remediation: []string{
				"aws guardduty create-detector --enable",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.DetectorID != "" {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: "detector",
				Region:     snap.Region,
				Analysis:   fmt.Sprintf("No GuardDuty detector exists in %s.", snap.Region),
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "GUARDDUTY_SUSPENDED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryMonitoring,
			Title:       "GuardDuty detector suspended",
			Description: "A detector exists but is disabled, which usually means detection was turned off deliberately.",
			RiskScore:   7,
			AttackVectors: []string{
				"Attackers disable detection before acting; a suspended detector may be the first artifact",
			},
			BusinessImpact: "Threat detection silently off while appearing provisioned.",
			Remediation: []string{
				"aws guardduty update-detector --detector-id {resource} --enable",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.DetectorID == "" || snap.Enabled {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID:  snap.DetectorID,
				ResourceARN: arn.GuardDutyDetector(snap.Region, snap.Account, snap.DetectorID),
				Region:      snap.Region,
				Analysis:    fmt.Sprintf("Detector %s exists but its status is not ENABLED.", snap.DetectorID),
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "GUARDDUTY_NO_EXPORT",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryMonitoring,
			Title:       "Findings not exported",
			Description: "GuardDuty findings stay in the console with no publishing destination.",
			RiskScore:   4,
			AttackVectors: []string{
				"Findings expire after the retention window without reaching responders",
			},
			BusinessImpact: "Detections exist but never enter the incident pipeline.",
			Remediation: []string{
				"aws guardduty create-publishing-destination --detector-id {resource} --destination-type S3 --destination-properties DestinationArn=<bucket>,KmsKeyArn=<key>",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.DetectorID == "" || !snap.Enabled || snap.ExportsEvents {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID:  snap.DetectorID,
				ResourceARN: arn.GuardDutyDetector(snap.Region, snap.Account, snap.DetectorID),
				Region:      snap.Region,
				Analysis:    "The detector has no publishing destination configured.",
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "GUARDDUTY_S3_PROTECTION_OFF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryMonitoring,
			Title:       "S3 protection disabled",
			Description: "The detector does not analyze S3 data events, missing bucket-level threats.",
			RiskScore:   4,
			AttackVectors: []string{
				"Bucket enumeration and exfiltration patterns escape detection",
			},
			BusinessImpact: "Blind spot over the account's object storage.",
			Remediation: []string{
				"aws guardduty update-detector --detector-id {resource} --data-sources '{\"S3Logs\":{\"Enable\":true}}'",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.DetectorID == "" || !snap.Enabled || snap.S3Protection {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID:  snap.DetectorID,
				ResourceARN: arn.GuardDutyDetector(snap.Region, snap.Account, snap.DetectorID),
				Region:      snap.Region,
				Analysis:    "S3 log analysis is disabled on the detector.",
			}}, nil
		},
	},
}
