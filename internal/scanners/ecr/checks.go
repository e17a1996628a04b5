package ecr

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perRepo(match func(Repository) bool, analysis func(Repository) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, r := range snap.Repositories {
			if !match(r) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  r.Name,
				ResourceARN: r.ARN,
				Region:      snap.Region,
				Analysis:    analysis(r),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "ECR_SCAN_ON_PUSH_OFF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryPatching,
			Title:       "Image scanning on push disabled",
			Description: "Pushed images are not scanned for known vulnerabilities.",
			RiskScore:   5,
			AttackVectors: []string{
				"Vulnerable base images flow into production unflagged",
			},
			BusinessImpact: "Known CVEs ship to runtime without any gate.",
			Remediation: []string{
				"aws ecr put-image-scanning-configuration --repository-name {resource} --image-scanning-configuration scanOnPush=true",
			},
		},
		Evaluate: perRepo(
			func(r Repository) bool { return !r.ScanOnPush },
			func(r Repository) string {
				return fmt.Sprintf("Repository %s does not scan images on push.", r.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ECR_MUTABLE_TAGS",
			Severity:    models.SeverityLow,
			Category:    models.CategoryPatching,
			Title:       "Image tags are mutable",
			Description: "Tags can be silently repointed at different image digests.",
			RiskScore:   3,
			AttackVectors: []string{
				"A compromised pusher swaps the image behind a trusted tag",
			},
			BusinessImpact: "Deployments pinned by tag can change content without notice.",
			Remediation: []string{
				"aws ecr put-image-tag-mutability --repository-name {resource} --image-tag-mutability IMMUTABLE",
			},
		},
		Evaluate: perRepo(
			func(r Repository) bool { return !r.ImmutableTags },
			func(r Repository) string {
				return fmt.Sprintf("Repository %s allows tag overwrites.", r.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ECR_NO_LIFECYCLE_POLICY",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryPatching,
			Title:       "Repository has no lifecycle policy",
			Description: "Old images accumulate forever, keeping stale vulnerable layers pullable.",
			RiskScore:   1,
			AttackVectors: []string{
				"Ancient vulnerable images stay deployable indefinitely",
			},
			BusinessImpact: "Storage growth and a long tail of outdated pullable images.",
			Remediation: []string{
				"Attach a lifecycle policy to {resource} expiring untagged and aged images",
			},
		},
		Evaluate: perRepo(
			func(r Repository) bool { return !r.HasLifecycle },
			func(r Repository) string {
				return fmt.Sprintf("Repository %s has no lifecycle policy.", r.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "ECR_WILDCARD_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Repository policy allows any principal",
			Description: "The repository policy has an unconditional Allow for principal \"*\".",
			RiskScore:   8,
			AttackVectors: []string{
				"Arbitrary accounts pull proprietary images or push poisoned ones",
			},
			BusinessImpact: "Image contents and supply chain integrity are open to strangers.",
			Remediation: []string{
				"Rewrite the policy of {resource} to name specific principals",
			},
		},
		Evaluate: perRepo(
			func(r Repository) bool { return r.WildcardPolicy },
			func(r Repository) string {
				return fmt.Sprintf("Repository %s policy allows principal \"*\".", r.Name)
			},
		),
	},
}
