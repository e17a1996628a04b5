package ssm

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "SSM_PLAINTEXT_PARAMETER",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryDataProtection,
			Title:       "Secret-like parameter stored as plain String",
			Description: "A parameter whose name suggests a secret is stored without SecureString encryption.",
			RiskScore:   5,
			AttackVectors: []string{
				"Anyone with ssm:GetParameter reads the value without a KMS decrypt grant",
			},
			BusinessImpact: "Credentials readable by every principal with parameter read access.",
			Remediation: []string{
				"Recreate {resource} as a SecureString parameter or move it to Secrets Manager",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, name := range snap.PlaintextSecrets {
				out = append(out, models.Finding{
					ResourceID: name,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Parameter %s looks like a secret but is stored as a plain String.", name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "SSM_PATCH_NONCOMPLIANT",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryPatching,
			Title:       "Managed instance fails patch compliance",
			Description: "The instance misses patches required by its patch baseline.",
			RiskScore:   7,
			AttackVectors: []string{
				"Known CVEs on unpatched hosts are the cheapest entry point there is",
			},
			BusinessImpact: "Hosts run with publicly documented, fixable vulnerabilities.",
			Remediation: []string{
				"Run the AWS-RunPatchBaseline document against {resource}",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, id := range snap.PatchNonCompliant {
				out = append(out, models.Finding{
					ResourceID: id,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Instance %s is non-compliant with its patch baseline.", id),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "SSM_SESSION_LOGGING_OFF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Session Manager transcripts not logged",
			Description: "Session preferences ship transcripts to neither S3 nor CloudWatch Logs.",
			RiskScore:   4,
			AttackVectors: []string{
				"Interactive shell activity on instances leaves no record",
			},
			BusinessImpact: "What operators did during a session cannot be audited.",
			Remediation: []string{
				"Set an S3 bucket or CloudWatch log group in the Session Manager preferences",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.SessionLogging {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: sessionPrefsDocument,
				Region:     snap.Region,
				Analysis:   "Session Manager preferences ship transcripts to no destination.",
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "SSM_PUBLIC_DOCUMENT",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Document shared with all accounts",
			Description: "An owned SSM document is shared publicly, exposing its automation content.",
			RiskScore:   8,
			AttackVectors: []string{
				"Embedded endpoints and logic inform attacks; public automation invites misuse",
			},
			BusinessImpact: "Internal automation details are readable by any AWS account.",
			Remediation: []string{
				"aws ssm modify-document-permission --name {resource} --permission-type Share --account-ids-to-remove all",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, name := range snap.PublicDocuments {
				out = append(out, models.Finding{
					ResourceID: name,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Document %s is shared with all AWS accounts.", name),
				})
			}
			return out, nil
		},
	},
}
