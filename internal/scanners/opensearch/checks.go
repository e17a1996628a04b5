package opensearch

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perDomain(match func(Domain) bool, analysis func(Domain) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, d := range snap.Domains {
			if !match(d) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  d.Name,
				ResourceARN: d.ARN,
				Region:      snap.Region,
				Analysis:    analysis(d),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "OS_NOT_IN_VPC",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Domain endpoint is not in a VPC",
			Description: "The domain uses a public endpoint instead of VPC placement.",
			RiskScore:   7,
			AttackVectors: []string{
				"Search API reachable from the internet with only the access policy in the way",
			},
			BusinessImpact: "Indexed data is one policy mistake away from public exposure.",
			Remediation: []string{
				"Recreate {resource} with VPC options; public domains cannot be moved in place",
			},
		},
		Evaluate: perDomain(
			func(d Domain) bool { return !d.InVPC },
			func(d Domain) string {
				return fmt.Sprintf("Domain %s serves a public endpoint outside any VPC.", d.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "OS_NO_ENCRYPTION_AT_REST",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "Encryption at rest disabled",
			Description: "Indices, logs, and swap files reside on disk unencrypted.",
			RiskScore:   7,
			AttackVectors: []string{
				"Storage media or snapshot access reads index contents directly",
			},
			BusinessImpact: "Everything indexed in the domain leaks with the underlying storage.",
			Remediation: []string{
				"Enable encryption at rest on {resource}; older domains require a version upgrade first",
			},
		},
		Evaluate: perDomain(
			func(d Domain) bool { return !d.EncryptedAtRest },
			func(d Domain) string {
				return fmt.Sprintf("Domain %s stores indices without encryption at rest.", d.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "OS_NO_NODE_TO_NODE_ENCRYPTION",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "Node-to-node encryption disabled",
			Description: "Traffic between cluster nodes crosses the network in clear text.",
			RiskScore:   6,
			AttackVectors: []string{
				"Intra-cluster traffic sniffing exposes query and document contents",
			},
			BusinessImpact: "Data in motion inside the cluster is readable on the wire.",
			Remediation: []string{
				"Enable node-to-node encryption on {resource}",
			},
		},
		Evaluate: perDomain(
			func(d Domain) bool { return !d.NodeToNode },
			func(d Domain) string {
				return fmt.Sprintf("Domain %s has node-to-node encryption disabled.", d.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "OS_NO_AUDIT_LOGS",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Audit logging disabled",
			Description: "No AUDIT_LOGS publishing option ships access records to CloudWatch.",
			RiskScore:   4,
			AttackVectors: []string{
				"Data exfiltration via search queries leaves no record",
			},
			BusinessImpact: "Who queried what cannot be answered after an incident.",
			Remediation: []string{
				"Enable the AUDIT_LOGS publishing option on {resource}",
			},
		},
		Evaluate: perDomain(
			func(d Domain) bool { return !d.AuditLogs },
			func(d Domain) string {
				return fmt.Sprintf("Domain %s publishes no audit logs.", d.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "OS_LEGACY_TLS_POLICY",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Endpoint accepts legacy TLS",
			Description: "The TLS security policy permits protocol versions below TLS 1.2.",
			RiskScore:   5,
			AttackVectors: []string{
				"Protocol downgrade against TLS 1.0/1.1 clients",
			},
			BusinessImpact: "Client sessions can be negotiated onto broken protocol versions.",
			Remediation: []string{
				"Set the TLS security policy of {resource} to Policy-Min-TLS-1-2-2019-07 or newer",
			},
		},
		Evaluate: perDomain(
			func(d Domain) bool { return legacyTLSPolicy(d.TLSPolicy) },
			func(d Domain) string {
				return fmt.Sprintf("Domain %s endpoint uses TLS policy %s.", d.Name, d.TLSPolicy)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "OS_UNSIGNED_REQUESTS",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Access policy allows unsigned requests",
			Description: "The domain access policy has an unconditional Allow for principal \"*\".",
			RiskScore:   8,
			AttackVectors: []string{
				"Anyone who can reach the endpoint reads and writes without credentials",
			},
			BusinessImpact: "The domain's data is effectively public to whoever finds the endpoint.",
			Remediation: []string{
				"Rewrite the access policy of {resource} to require signed requests from named principals",
			},
			DeepOnly: true,
		},
		Evaluate: perDomain(
			func(d Domain) bool { return d.AnonymousAccess },
			func(d Domain) string {
				return fmt.Sprintf("Domain %s allows unsigned requests from any principal.", d.Name)
			},
		),
	},
}
