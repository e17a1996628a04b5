package route53

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "R53_DANGLING_CNAME",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "CNAME points at a claimable target",
			Description: "A CNAME record targets an AWS endpoint that no longer resolves, inviting subdomain takeover.",
			RiskScore:   7,
			AttackVectors: []string{
				"Recreating the abandoned resource serves attacker content under the trusted name",
			},
			BusinessImpact: "Phishing and cookie theft under the organization's own domain.",
			Remediation: []string{
				"Delete the dangling records in zone {resource} or recreate their targets",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, z := range snap.Zones {
				for record, target := range z.DanglingCNAMEs {
					out = append(out, models.Finding{
						ResourceID: z.Name,
						Analysis:   fmt.Sprintf("Record %s points at %s, which no longer resolves.", record, target),
						Evidence:   map[string]any{"record": record, "target": target},
					})
				}
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "R53_NO_QUERY_LOGGING",
			Severity:    models.SeverityLow,
			Category:    models.CategoryLogging,
			Title:       "Public zone has no query logging",
			Description: "DNS queries against the zone are not logged to CloudWatch.",
			RiskScore:   3,
			AttackVectors: []string{
				"Reconnaissance and exfiltration over DNS go unobserved",
			},
			BusinessImpact: "DNS-level attack patterns cannot be detected or investigated.",
			Remediation: []string{
				"aws route53 create-query-logging-config --hosted-zone-id <id> --cloud-watch-logs-log-group-arn <arn>",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, z := range snap.Zones {
				if z.Private || z.QueryLogging {
					continue
				}
				out = append(out, models.Finding{
					ResourceID: z.Name,
					Analysis:   fmt.Sprintf("Public zone %s has no query logging config.", z.Name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "R53_AUTO_RENEW_OFF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Registered domain will not auto-renew",
			Description: "The registration expires silently unless renewed by hand.",
			RiskScore:   4,
			AttackVectors: []string{
				"An expired domain can be registered by anyone, inheriting all its traffic",
			},
			BusinessImpact: "Losing the domain hands the organization's identity to a stranger.",
			Remediation: []string{
				"aws route53domains enable-domain-auto-renew --domain-name {resource}",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, d := range snap.Domains {
				if d.AutoRenew {
					continue
				}
				out = append(out, models.Finding{
					ResourceID: d.Name,
					Analysis:   fmt.Sprintf("Domain %s has auto-renew disabled.", d.Name),
				})
			}
			return out, nil
		},
	},
}
