package cloudwatch

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// missingAlarm builds the evaluation for one watched-pattern alarm check.
func missingAlarm(patternKey, what string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		if snap.AlarmedPatterns[patternKey] {
			return nil, nil
		}
		return []models.Finding{{
			ResourceID: patternKey,
			Region:     snap.Region,
			Analysis:   fmt.Sprintf("No metric filter with an alarm covers %s in this region.", what),
		}}, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "CW_NO_UNAUTHORIZED_API_ALARM",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryMonitoring,
			Title:       "No alarm on unauthorized API calls",
			Description: "Repeated UnauthorizedOperation errors raise no alert.",
			RiskScore:   5,
			AttackVectors: []string{
				"Permission probing by a compromised credential proceeds unnoticed",
			},
			BusinessImpact: "Early-stage intrusion signals are recorded but never seen.",
			Remediation: []string{
				"Create a metric filter for UnauthorizedOperation and AccessDenied events with an SNS-notifying alarm",
			},
		},
		Evaluate: missingAlarm("unauthorized-api", "unauthorized API calls"),
	},
	{
		Check: scanner.Check{
			ID:          "CW_NO_ROOT_USAGE_ALARM",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryMonitoring,
			Title:       "No alarm on root account usage",
			Description: "Root sign-ins and root API activity raise no alert.",
			RiskScore:   5,
			AttackVectors: []string{
				"Root compromise goes undetected until damage surfaces",
			},
			BusinessImpact: "The highest-privilege identity operates without oversight.",
			Remediation: []string{
				"Create a metric filter on userIdentity.type = Root with an alarm notifying the security channel",
			},
		},
		Evaluate: missingAlarm("root-usage", "root account usage"),
	},
	{
		Check: scanner.Check{
			ID:          "CW_NO_CONSOLE_NO_MFA_ALARM",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryMonitoring,
			Title:       "No alarm on console sign-in without MFA",
			Description: "Password-only console sign-ins raise no alert.",
			RiskScore:   5,
			AttackVectors: []string{
				"Phished password logins look indistinguishable from normal activity",
			},
			BusinessImpact: "MFA policy violations are invisible to the security team.",
			Remediation: []string{
				"Create a metric filter on ConsoleLogin events with MFAUsed != Yes and alarm on it",
			},
		},
		Evaluate: missingAlarm("console-no-mfa", "console sign-ins without MFA"),
	},
	{
		Check: scanner.Check{
			ID:          "CW_LOG_GROUP_NO_RETENTION",
			Severity:    models.SeverityLow,
			Category:    models.CategoryLogging,
			Title:       "Log group never expires",
			Description: "The log group has no retention policy and stores data forever.",
			RiskScore:   2,
			AttackVectors: []string{
				"Sensitive payloads logged years ago stay exposed to every log reader",
			},
			BusinessImpact: "Unbounded storage cost and retention-policy violations.",
			Remediation: []string{
				"aws logs put-retention-policy --log-group-name {resource} --retention-in-days 365",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, g := range snap.LogGroups {
				if g.RetentionSet {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  g.Name,
					ResourceARN: arn.LogGroup(snap.Region, snap.Account, g.Name),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Log group %s has no retention policy.", g.Name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "CW_LOG_GROUP_UNENCRYPTED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Log group without KMS encryption",
			Description: "The log group relies on default encryption instead of a customer-managed key.",
			RiskScore:   4,
			AttackVectors: []string{
				"Log readers gain access to payload data without key-level gating",
			},
			BusinessImpact: "Logs containing sensitive data lack independent access control.",
			Remediation: []string{
				"aws logs associate-kms-key --log-group-name {resource} --kms-key-id <key-arn>",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, g := range snap.LogGroups {
				if g.KMSEncrypted {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  g.Name,
					ResourceARN: arn.LogGroup(snap.Region, snap.Account, g.Name),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Log group %s has no KMS key associated.", g.Name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "CW_NO_NACL_CHANGE_ALARM",
			Severity:    models.SeverityLow,
			Category:    models.CategoryMonitoring,
			Title:       "No alarm on NACL changes",
			Description: "Network ACL modifications raise no alert.",
			RiskScore:   3,
			AttackVectors: []string{
				"An attacker quietly loosens subnet filtering before moving laterally",
			},
			BusinessImpact: "Network control changes escape review.",
			Remediation: []string{
				"Create a metric filter on NetworkAcl API events with an alarm",
			},
			DeepOnly: true,
		},
		Evaluate: missingAlarm("nacl-change", "network ACL changes"),
	},
}
