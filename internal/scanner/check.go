package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/evosec/cloudscan/internal/models"
)

// Check is the static definition of one security rule: immutable data plus a
// pure evaluation function held by the owning scanner's Def. Severity and
// risk score are fixed per check, never computed from resource context.
type Check struct {
	// ID is unique across the whole catalog and stable across versions.
	ID string

	// Severity of every finding this check emits.
	Severity models.Severity

	// Category groups the check for summary aggregation.
	Category models.Category

	Title       string
	Description string

	// RiskScore is the 1-10 weight used by downstream prioritisation.
	RiskScore int

	// AttackVectors names the exploitation paths this misconfiguration opens.
	AttackVectors []string

	// BusinessImpact is a one-line consequence statement.
	BusinessImpact string

	// Remediation holds human-readable steps and example CLI commands.
	// The literal "{resource}" is replaced with the finding's resource id
	// when the finding is stamped.
	Remediation []string

	// DeepOnly marks slower checks that run only at the deep scan level.
	DeepOnly bool
}

// Def binds a Check to its evaluation function over the owning scanner's
// typed resource snapshot. Evaluate must be pure and CPU-light: it inspects
// already-fetched descriptors and never performs I/O.
type Def[S any] struct {
	Check
	Evaluate func(snap S) ([]models.Finding, error)
}

// Metas extracts the check metadata from a catalog in declaration order.
func Metas[S any](defs []Def[S]) []Check {
	checks := make([]Check, len(defs))
	for i, d := range defs {
		checks[i] = d.Check
	}
	return checks
}

// RunChecks evaluates a catalog against a collected snapshot and returns the
// stamped findings in check-declaration order.
//
// Per-check isolation: an evaluation error or panic is logged and skipped so
// one broken check never aborts the scanner. Deep-only checks are filtered by
// the context's scan level.
func RunChecks[S any](sc *Context, service string, snap S, defs []Def[S]) []models.Finding {
	log := sc.Logger().WithField("scanner", service)

	var findings []models.Finding
	for _, def := range defs {
		if def.DeepOnly && sc.Level != models.ScanLevelDeep {
			continue
		}
		raw, err := evaluateOne(def, snap)
		if err != nil {
			log.WithField("check", def.ID).WithError(err).Warn("check evaluation failed; skipping")
			continue
		}
		for _, f := range raw {
			findings = append(findings, stamp(sc, service, def.Check, f))
		}
	}
	return findings
}

// evaluateOne runs a single check, converting panics into errors so a broken
// evaluation function degrades like any other check failure.
func evaluateOne[S any](def Def[S], snap S) (findings []models.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("check %s panicked: %v", def.ID, r)
		}
	}()
	return def.Evaluate(snap)
}

// stamp fills the check-derived fields of a finding emitted by an evaluation
// function. Checks only set resource identity, region, evidence, and the
// analysis narrative; everything static comes from the Check definition.
func stamp(sc *Context, service string, c Check, f models.Finding) models.Finding {
	f.CheckID = c.ID
	f.Service = service
	f.Category = c.Category
	f.Severity = c.Severity
	f.Title = c.Title
	if f.Description == "" {
		f.Description = c.Description
	}
	f.RiskScore = c.RiskScore
	f.AttackVectors = c.AttackVectors
	f.BusinessImpact = c.BusinessImpact
	f.AccountID = sc.Account
	if f.Region == "" {
		f.Region = "global"
	}
	f.Remediation = renderRemediation(c.Remediation, f.ResourceID)
	f.ID = fmt.Sprintf("%s-%s-%s", c.ID, f.Region, f.ResourceID)
	f.DetectedAt = time.Now().UTC()
	return f
}

// renderRemediation substitutes the resource id into the static templates.
func renderRemediation(templates []string, resourceID string) []string {
	if len(templates) == 0 {
		return nil
	}
	steps := make([]string, len(templates))
	for i, tpl := range templates {
		steps[i] = strings.ReplaceAll(tpl, "{resource}", resourceID)
	}
	return steps
}
