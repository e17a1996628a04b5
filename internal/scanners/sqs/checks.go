package sqs

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perQueue(match func(Queue) bool, analysis func(Queue) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, q := range snap.Queues {
			if !match(q) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  q.Name,
				ResourceARN: q.ARN,
				Region:      snap.Region,
				Analysis:    analysis(q),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "SQS_QUEUE_UNENCRYPTED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryEncryption,
			Title:       "Queue has no server-side encryption",
			Description: "Neither a KMS key nor SQS-managed encryption protects messages at rest.",
			RiskScore:   4,
			AttackVectors: []string{
				"Message payloads readable wherever the service persists them",
			},
			BusinessImpact: "Queued payloads lack an at-rest encryption boundary.",
			Remediation: []string{
				"aws sqs set-queue-attributes --queue-url <url> --attributes SqsManagedSseEnabled=true",
			},
		},
		Evaluate: perQueue(
			func(q Queue) bool { return !q.Encrypted },
			func(q Queue) string { return fmt.Sprintf("Queue %s stores messages unencrypted.", q.Name) },
		),
	},
	{
		Check: scanner.Check{
			ID:          "SQS_QUEUE_PUBLIC",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Queue policy allows any principal",
			Description: "The queue policy has an unconditional Allow for principal \"*\".",
			RiskScore:   8,
			AttackVectors: []string{
				"Strangers can send poison messages or drain the queue",
			},
			BusinessImpact: "Consumers process messages anyone on the internet can inject.",
			Remediation: []string{
				"Rewrite the policy of {resource} to name specific principals or add source conditions",
			},
		},
		Evaluate: perQueue(
			func(q Queue) bool { return q.PublicPolicy },
			func(q Queue) string {
				return fmt.Sprintf("Queue %s policy allows principal \"*\" without conditions.", q.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "SQS_WILDCARD_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Queue policy grants wildcard actions",
			Description: "An Allow statement grants \"*\" or \"sqs:*\", including administrative actions.",
			RiskScore:   7,
			AttackVectors: []string{
				"Granted principals can purge the queue or rewrite its policy",
			},
			BusinessImpact: "Queue control extends far beyond send and receive.",
			Remediation: []string{
				"Scope the policy of {resource} to the specific actions each principal needs",
			},
		},
		Evaluate: perQueue(
			func(q Queue) bool { return q.WildcardAction },
			func(q Queue) string {
				return fmt.Sprintf("Queue %s policy grants wildcard SQS actions.", q.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "SQS_NO_DLQ",
			Severity:    models.SeverityLow,
			Category:    models.CategoryResilience,
			Title:       "Queue has no dead-letter queue",
			Description: "No redrive policy is configured, so failed messages are silently dropped after max receives.",
			RiskScore:   2,
			AttackVectors: []string{
				"Poison messages vanish without a trail for analysis",
			},
			BusinessImpact: "Message loss on consumer failures goes unnoticed.",
			Remediation: []string{
				"Attach a redrive policy pointing {resource} at a dead-letter queue",
			},
			DeepOnly: true,
		},
		Evaluate: perQueue(
			func(q Queue) bool { return !q.HasDLQ },
			func(q Queue) string { return fmt.Sprintf("Queue %s has no redrive policy.", q.Name) },
		),
	},
}
