package awsconfig

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "CONFIG_RECORDER_ABSENT",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryLogging,
			Title:       "No AWS Config recorder in region",
			Description: "No configuration recorder exists in this region, so resource changes leave no history.",
			RiskScore:   7,
			AttackVectors: []string{
				"Configuration tampering leaves no audit trail",
			},
			BusinessImpact: "Resource changes cannot be reconstructed during incident response.",
			Remediation: []string{
				"Create a configuration recorder and delivery channel with aws configservice put-configuration-recorder",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.RecorderName != "" {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: "recorder",
				Region:     snap.Region,
				Analysis:   fmt.Sprintf("Region %s has no AWS Config configuration recorder.", snap.Region),
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "CONFIG_RECORDER_STOPPED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryLogging,
			Title:       "AWS Config recorder stopped",
			Description: "A configuration recorder exists but is not currently recording.",
			RiskScore:   7,
			AttackVectors: []string{
				"A stopped recorder hides changes made during the gap",
			},
			BusinessImpact: "Resource changes during the stopped window are lost permanently.",
			Remediation: []string{
				"aws configservice start-configuration-recorder --configuration-recorder-name {resource}",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.RecorderName == "" || snap.Recording {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: snap.RecorderName,
				Region:     snap.Region,
				Analysis:   fmt.Sprintf("Configuration recorder %s exists but recording is stopped.", snap.RecorderName),
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "CONFIG_PARTIAL_COVERAGE",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "AWS Config records only some resource types",
			Description: "The recording group excludes supported resource types, leaving audit blind spots.",
			RiskScore:   5,
			AttackVectors: []string{
				"Excluded resource types escape change tracking entirely",
			},
			BusinessImpact: "Compliance tooling sees an incomplete picture of the region.",
			Remediation: []string{
				"Enable allSupported on the recording group of {resource}",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.RecorderName == "" || snap.AllSupported {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: snap.RecorderName,
				Region:     snap.Region,
				Analysis:   fmt.Sprintf("Configuration recorder %s records only a subset of resource types.", snap.RecorderName),
			}}, nil
		},
	},
}
