package sns

import (
	"fmt"
	"strings"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perTopic(match func(Topic) bool, analysis func(Topic) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, t := range snap.Topics {
			if !match(t) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  t.Name,
				ResourceARN: t.ARN,
				Region:      snap.Region,
				Analysis:    analysis(t),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "SNS_TOPIC_UNENCRYPTED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Topic not encrypted with KMS",
			Description: "Messages rest in the topic without server-side encryption.",
			RiskScore:   4,
			AttackVectors: []string{
				"Message payloads readable wherever the service persists them",
			},
			BusinessImpact: "Notification contents lack an at-rest encryption boundary.",
			Remediation: []string{
				"aws sns set-topic-attributes --topic-arn {resource} --attribute-name KmsMasterKeyId --attribute-value alias/aws/sns",
			},
		},
		Evaluate: perTopic(
			func(t Topic) bool { return !t.Encrypted },
			func(t Topic) string { return fmt.Sprintf("Topic %s has no KMS master key.", t.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "SNS_TOPIC_PUBLIC",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Topic policy allows any principal",
			Description: "The topic policy has an unconditional Allow for principal \"*\".",
			RiskScore:   8,
			AttackVectors: []string{
				"Anyone can publish spoofed messages or subscribe to the feed",
			},
			BusinessImpact: "Downstream consumers trust messages any stranger can inject.",
			Remediation: []string{
				"Rewrite the policy of {resource} to name specific principals or add source conditions",
			},
		},
		Evaluate: perTopic(
			func(t Topic) bool { return t.PublicPolicy },
			func(t Topic) string {
				return fmt.Sprintf("Topic %s policy allows principal \"*\" without conditions.", t.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "SNS_HTTP_SUBSCRIPTION",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Topic delivers over plain HTTP",
			Description: "One or more subscriptions use the http protocol instead of https.",
			RiskScore:   5,
			AttackVectors: []string{
				"Message contents and subscription confirmations readable in transit",
			},
			BusinessImpact: "Notification payloads cross the network unencrypted.",
			Remediation: []string{
				"Resubscribe the http endpoints of {resource} over https",
			},
		},
		Evaluate: perTopic(
			func(t Topic) bool { return len(t.HTTPSubscriptions) > 0 },
			func(t Topic) string {
				return fmt.Sprintf("Topic %s delivers to plain HTTP endpoints: %s.", t.Name, strings.Join(t.HTTPSubscriptions, ", "))
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "SNS_WILDCARD_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Topic policy grants wildcard actions",
			Description: "An Allow statement grants \"*\" or \"sns:*\", including administrative actions.",
			RiskScore:   7,
			AttackVectors: []string{
				"Granted principals can rewrite the policy or delete the topic",
			},
			BusinessImpact: "Topic control extends far beyond publish and subscribe.",
			Remediation: []string{
				"Scope the policy of {resource} to the specific actions each principal needs",
			},
		},
		Evaluate: perTopic(
			func(t Topic) bool { return t.WildcardAction },
			func(t Topic) string {
				return fmt.Sprintf("Topic %s policy grants wildcard SNS actions.", t.Name)
			},
		),
	},
}
