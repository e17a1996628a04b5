package models

import "time"

// Severity represents the impact level of a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// SeverityRank maps Severity values to sort keys (lower = higher priority).
var SeverityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Category groups checks by the class of misconfiguration they detect.
type Category string

const (
	CategoryIdentity       Category = "identity"
	CategoryDataProtection Category = "data_protection"
	CategoryNetwork        Category = "network"
	CategoryLogging        Category = "logging"
	CategoryMonitoring     Category = "monitoring"
	CategoryResilience     Category = "resilience"
	CategoryEncryption     Category = "encryption"
	CategoryExposure       Category = "exposure"
	CategoryPatching       Category = "patching"
)

// ControlRef maps a finding to a single control within a compliance framework.
type ControlRef struct {
	Framework string `json:"framework"`
	ControlID string `json:"control_id"`
}

// Finding is a single detected security issue. It is the atomic output unit
// of the scan engine: one check matching against one resource.
//
// Findings are created once during check evaluation and never mutated after
// the scan manager stamps compliance references onto them.
type Finding struct {
	ID             string         `json:"id"`
	CheckID        string         `json:"check_id"`
	Service        string         `json:"service"`
	Category       Category       `json:"category"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Analysis       string         `json:"analysis,omitempty"`
	ResourceID     string         `json:"resource_id"`
	ResourceARN    string         `json:"resource_arn,omitempty"`
	Region         string         `json:"region"`
	AccountID      string         `json:"account_id"`
	RiskScore      int            `json:"risk_score"`
	AttackVectors  []string       `json:"attack_vectors,omitempty"`
	BusinessImpact string         `json:"business_impact,omitempty"`
	Remediation    []string       `json:"remediation,omitempty"`
	ComplianceRefs []ControlRef   `json:"compliance_refs,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
}
