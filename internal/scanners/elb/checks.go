package elb

import (
	"fmt"
	"strings"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perLB(match func(LoadBalancer) bool, analysis func(LoadBalancer) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, lb := range snap.LoadBalancers {
			if !match(lb) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  lb.Name,
				ResourceARN: lb.ARN,
				Region:      snap.Region,
				Analysis:    analysis(lb),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "ELB_NO_HTTPS_LISTENER",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "Load balancer has no TLS listener",
			Description: "Every listener speaks a plaintext protocol, so client traffic is never encrypted.",
			RiskScore:   6,
			AttackVectors: []string{
				"Credential and session theft from unencrypted client traffic",
			},
			BusinessImpact: "All traffic through the load balancer crosses the network in clear text.",
			Remediation: []string{
				"Add an HTTPS or TLS listener to {resource} and redirect plaintext listeners to it",
			},
		},
		Evaluate: perLB(
			func(lb LoadBalancer) bool { return lb.HasListeners && !lb.HasHTTPSListener },
			func(lb LoadBalancer) string {
				return fmt.Sprintf("Load balancer %s has listeners but none speak HTTPS or TLS.", lb.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ELB_LEGACY_TLS_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "TLS listener uses a legacy negotiation policy",
			Description: "A TLS listener negotiates with a policy whose floor is below TLS 1.2.",
			RiskScore:   6,
			AttackVectors: []string{
				"Downgrade to TLS 1.0/1.1 cipher suites with known weaknesses",
			},
			BusinessImpact: "Encrypted sessions can be forced onto broken protocol versions.",
			Remediation: []string{
				"Switch the listeners of {resource} to ELBSecurityPolicy-TLS13-1-2-2021-06",
			},
		},
		Evaluate: perLB(
			func(lb LoadBalancer) bool { return len(lb.LegacyTLSPolicies) > 0 },
			func(lb LoadBalancer) string {
				return fmt.Sprintf("Load balancer %s negotiates with legacy policies: %s.", lb.Name, strings.Join(lb.LegacyTLSPolicies, ", "))
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ELB_NO_ACCESS_LOGS",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Access logging disabled",
			Description: "Request logs are not delivered to S3, so traffic history is lost.",
			RiskScore:   4,
			AttackVectors: []string{
				"Attack traffic through the load balancer leaves no record",
			},
			BusinessImpact: "No request history for forensics or abuse analysis.",
			Remediation: []string{
				"Enable access_logs.s3.enabled on {resource} with a log bucket",
			},
		},
		Evaluate: perLB(
			func(lb LoadBalancer) bool { return !lb.AccessLogs },
			func(lb LoadBalancer) string {
				return fmt.Sprintf("Load balancer %s has access logging disabled.", lb.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ELB_NO_DELETION_PROTECTION",
			Severity:    models.SeverityLow,
			Category:    models.CategoryResilience,
			Title:       "Deletion protection disabled",
			Description: "A single API call can delete the load balancer and take its services offline.",
			RiskScore:   3,
			AttackVectors: []string{
				"Accidental or malicious deletion drops all fronted services at once",
			},
			BusinessImpact: "One mistaken delete call causes an immediate outage.",
			Remediation: []string{
				"Enable deletion_protection.enabled on {resource}",
			},
		},
		Evaluate: perLB(
			func(lb LoadBalancer) bool { return !lb.DeletionProtection },
			func(lb LoadBalancer) string {
				return fmt.Sprintf("Load balancer %s has deletion protection disabled.", lb.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ELB_NO_WAF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryExposure,
			Title:       "Application load balancer has no WAF",
			Description: "No web ACL is associated, so application-layer attacks reach the targets unfiltered.",
			RiskScore:   5,
			AttackVectors: []string{
				"SQL injection, XSS, and request floods reach the targets directly",
			},
			BusinessImpact: "Fronted applications absorb web attacks without a filter.",
			Remediation: []string{
				"Associate an AWS WAF web ACL with {resource}",
			},
		},
		Evaluate: perLB(
			func(lb LoadBalancer) bool { return lb.Type == "application" && !lb.WAFAttached },
			func(lb LoadBalancer) string {
				return fmt.Sprintf("Application load balancer %s has no web ACL associated.", lb.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ELB_INVALID_HEADERS_ALLOWED",
			Severity:    models.SeverityLow,
			Category:    models.CategoryNetwork,
			Title:       "Invalid HTTP headers forwarded to targets",
			Description: "drop_invalid_header_fields is off, so malformed headers pass through to the targets.",
			RiskScore:   3,
			AttackVectors: []string{
				"Request smuggling via malformed header fields",
			},
			BusinessImpact: "Targets must defend against desynchronization attacks themselves.",
			Remediation: []string{
				"Enable routing.http.drop_invalid_header_fields.enabled on {resource}",
			},
		},
		Evaluate: perLB(
			func(lb LoadBalancer) bool { return lb.Type == "application" && !lb.DropInvalidHeaders },
			func(lb LoadBalancer) string {
				return fmt.Sprintf("Load balancer %s forwards invalid header fields to its targets.", lb.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ELB_IDLE_CLASSIC",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryExposure,
			Title:       "Classic load balancer with no instances",
			Description: "A classic load balancer runs with zero registered instances, pure attack surface and cost.",
			RiskScore:   1,
			AttackVectors: []string{
				"Forgotten endpoints accumulate unpatched configuration",
			},
			BusinessImpact: "Idle infrastructure billed and exposed for nothing.",
			Remediation: []string{
				"Delete the idle classic load balancer {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, name := range snap.IdleClassic {
				out = append(out, models.Finding{
					ResourceID: name,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Classic load balancer %s has no registered instances.", name),
				})
			}
			return out, nil
		},
	},
}
