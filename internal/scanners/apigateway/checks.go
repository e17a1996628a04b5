package apigateway

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// perStage emits one finding per matching API stage, identified as id/stage.
func perStage(match func(API, Stage) bool, analysis func(API, Stage) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, api := range snap.APIs {
			for _, stage := range api.Stages {
				if !match(api, stage) {
					continue
				}
				out = append(out, models.Finding{
					ResourceID: api.ID + "/" + stage.Name,
					Region:     snap.Region,
					Analysis:   analysis(api, stage),
				})
			}
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "APIGW_NO_AUTHORIZER",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "API has no authorizer",
			Description: "The REST API defines no authorizer, so stages rely on method-level auth or nothing.",
			RiskScore:   7,
			AttackVectors: []string{
				"Unauthenticated access to API methods left at AuthorizationType NONE",
			},
			BusinessImpact: "Backend operations may be callable by anyone who finds the endpoint.",
			Remediation: []string{
				"Attach a Cognito, Lambda, or IAM authorizer to {resource}",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, api := range snap.APIs {
				if api.HasAuthorizer || len(api.Stages) == 0 {
					continue
				}
				out = append(out, models.Finding{
					ResourceID: api.ID,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("API %s (%s) has deployed stages but no authorizer.", api.Name, api.ID),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "APIGW_NO_LOGGING",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Stage has execution logging disabled",
			Description: "The stage's method settings ship no execution logs to CloudWatch.",
			RiskScore:   4,
			AttackVectors: []string{
				"API abuse and enumeration leave no trace",
			},
			BusinessImpact: "API traffic cannot be reconstructed after an incident.",
			Remediation: []string{
				"Set the logging level of {resource} to INFO or ERROR",
			},
		},
		Evaluate: perStage(
			func(_ API, st Stage) bool { return !st.LoggingEnabled },
			func(api API, st Stage) string {
				return fmt.Sprintf("Stage %s of API %s has execution logging off.", st.Name, api.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "APIGW_NO_WAF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryExposure,
			Title:       "Stage has no WAF",
			Description: "No web ACL is associated with the stage.",
			RiskScore:   5,
			AttackVectors: []string{
				"Injection and flood traffic reaches the integration backends unfiltered",
			},
			BusinessImpact: "Backends absorb application-layer attacks without a filter.",
			Remediation: []string{
				"Associate an AWS WAF web ACL with stage {resource}",
			},
		},
		Evaluate: perStage(
			func(_ API, st Stage) bool { return !st.WAFAttached },
			func(api API, st Stage) string {
				return fmt.Sprintf("Stage %s of API %s has no web ACL.", st.Name, api.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "APIGW_NO_TLS_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "Custom domain accepts TLS 1.0",
			Description: "The custom domain's security policy permits protocol versions below TLS 1.2.",
			RiskScore:   6,
			AttackVectors: []string{
				"Downgrade attacks against TLS 1.0 clients",
			},
			BusinessImpact: "API sessions can be negotiated onto broken protocol versions.",
			Remediation: []string{
				"Set the security policy of domain {resource} to TLS_1_2",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, d := range snap.Domains {
				if d.SecurityPolicy != "TLS_1_0" {
					continue
				}
				out = append(out, models.Finding{
					ResourceID: d.Name,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Custom domain %s accepts TLS 1.0 connections.", d.Name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "APIGW_CACHE_UNENCRYPTED",
			Severity:    models.SeverityLow,
			Category:    models.CategoryEncryption,
			Title:       "Stage cache not encrypted",
			Description: "The stage caches responses without encryption.",
			RiskScore:   3,
			AttackVectors: []string{
				"Cached response payloads readable at the cache layer",
			},
			BusinessImpact: "Sensitive responses persist unencrypted in the cache cluster.",
			Remediation: []string{
				"Enable cache data encryption in the method settings of {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: perStage(
			func(_ API, st Stage) bool { return st.CacheEnabled && !st.CacheEncrypted },
			func(api API, st Stage) string {
				return fmt.Sprintf("Stage %s of API %s caches responses unencrypted.", st.Name, api.Name)
			},
		),
	},
}
