package cloudfront

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perDist(match func(Distribution) bool, analysis func(Distribution) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, d := range snap.Distributions {
			if !match(d) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  d.ID,
				ResourceARN: d.ARN,
				Analysis:    analysis(d),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "CF_NO_HTTPS",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Distribution serves plain HTTP",
			Description: "The default cache behavior allows viewers to connect without TLS.",
			RiskScore:   7,
			AttackVectors: []string{
				"Session hijacking and content injection on unencrypted traffic",
			},
			BusinessImpact: "Viewer traffic can be intercepted or modified in transit.",
			Remediation: []string{
				"Set the viewer protocol policy of {resource} to redirect-to-https",
			},
		},
		Evaluate: perDist(
			func(d Distribution) bool { return d.Enabled && d.AllowsPlainHTTP },
			func(d Distribution) string {
				return fmt.Sprintf("Distribution %s (%s) accepts plain HTTP viewers.", d.ID, d.DomainName)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "CF_LEGACY_TLS",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "Distribution accepts legacy TLS",
			Description: "The viewer certificate minimum protocol version is below TLS 1.2.",
			RiskScore:   6,
			AttackVectors: []string{
				"Downgrade attacks against TLS 1.0/1.1 cipher suites",
			},
			BusinessImpact: "Viewer sessions can be negotiated down to broken protocol versions.",
			Remediation: []string{
				"Raise the minimum protocol version of {resource} to TLSv1.2_2021",
			},
		},
		Evaluate: perDist(
			func(d Distribution) bool { return d.Enabled && legacyMinProtocol(d.MinProtocol) },
			func(d Distribution) string {
				return fmt.Sprintf("Distribution %s allows minimum protocol %s.", d.ID, d.MinProtocol)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "CF_NO_WAF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryExposure,
			Title:       "Distribution has no WAF",
			Description: "No web ACL is attached, leaving the origin exposed to common web attacks.",
			RiskScore:   5,
			AttackVectors: []string{
				"SQL injection, XSS, and request floods reach the origin unfiltered",
			},
			BusinessImpact: "Application-layer attacks hit the origin directly.",
			Remediation: []string{
				"Attach an AWS WAF web ACL to {resource}",
			},
		},
		Evaluate: perDist(
			func(d Distribution) bool { return d.Enabled && !d.WAFAttached },
			func(d Distribution) string {
				return fmt.Sprintf("Distribution %s has no web ACL attached.", d.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "CF_LOGGING_DISABLED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Distribution access logging disabled",
			Description: "Standard logging is off, so viewer requests leave no record.",
			RiskScore:   4,
			AttackVectors: []string{
				"Abuse of the distribution cannot be investigated after the fact",
			},
			BusinessImpact: "No request history for forensics or abuse analysis.",
			Remediation: []string{
				"Enable standard logging on {resource} to an S3 bucket",
			},
		},
		Evaluate: perDist(
			func(d Distribution) bool { return d.Enabled && !d.LoggingEnabled },
			func(d Distribution) string {
				return fmt.Sprintf("Distribution %s has standard logging disabled.", d.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "CF_NO_ORIGIN_FAILOVER",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryResilience,
			Title:       "Distribution has no origin failover",
			Description: "No origin group is configured, so a single origin outage takes the distribution down.",
			RiskScore:   1,
			AttackVectors: []string{
				"A denial of service against the sole origin takes the edge down with it",
			},
			BusinessImpact: "Origin outages propagate directly to viewers.",
			Remediation: []string{
				"Configure an origin group with a failover origin for {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: perDist(
			func(d Distribution) bool { return d.Enabled && !d.OriginFailover },
			func(d Distribution) string {
				return fmt.Sprintf("Distribution %s has no origin group for failover.", d.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "CF_NO_FIELD_LEVEL_ENCRYPTION",
			Severity:    models.SeverityLow,
			Category:    models.CategoryEncryption,
			Title:       "No field-level encryption on default behavior",
			Description: "Sensitive form fields travel to the origin without an extra encryption layer.",
			RiskScore:   2,
			AttackVectors: []string{
				"Compromised origin infrastructure reads sensitive fields in clear text",
			},
			BusinessImpact: "Sensitive user input is only as protected as the origin itself.",
			Remediation: []string{
				"Create a field-level encryption config and attach it to {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: perDist(
			func(d Distribution) bool { return d.Enabled && !d.FieldLevelEncryption },
			func(d Distribution) string {
				return fmt.Sprintf("Distribution %s has no field-level encryption configured.", d.ID)
			},
		),
	},
}
