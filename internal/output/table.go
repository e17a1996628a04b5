package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/evosec/cloudscan/internal/models"
)

// ANSI color codes for severity output (used when Colored=true).
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
	ansiRed     = "\033[0;31m"
	ansiYellow  = "\033[0;33m"
	ansiBlue    = "\033[0;34m"
)

// TableOptions controls how RenderTable renders the findings table.
type TableOptions struct {
	// Colored wraps severity labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// MaxTitle caps the TITLE column width. Zero means the default of 55.
	MaxTitle int
}

// RenderJSON writes the scan result as indented JSON to w.
func RenderJSON(w io.Writer, result *models.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorSeverity(sev models.Severity, colored bool) string {
	s := string(sev)
	if !colored {
		return s
	}
	switch sev {
	case models.SeverityCritical:
		return ansiBoldRed + s + ansiReset
	case models.SeverityHigh:
		return ansiRed + s + ansiReset
	case models.SeverityMedium:
		return ansiYellow + s + ansiReset
	case models.SeverityLow:
		return ansiBlue + s + ansiReset
	default:
		return s
	}
}

// ShortenMessage truncates msg to at most max runes, appending "..." when
// truncated. max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// severityCell returns the severity padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are
// plain so subsequent columns stay visually aligned regardless of terminal
// ANSI support.
func severityCell(sev models.Severity, width int, colored bool) string {
	text := string(sev)
	if !colored {
		return fmt.Sprintf("%-*s", width, text)
	}
	var code string
	switch sev {
	case models.SeverityCritical:
		code = ansiBoldRed
	case models.SeverityHigh:
		code = ansiRed
	case models.SeverityMedium:
		code = ansiYellow
	case models.SeverityLow:
		code = ansiBlue
	default:
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max bytes for ID/label columns.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// RenderSummary writes the compact scan header: identity, status, duration,
// severity breakdown, and any scanners that did not complete.
func RenderSummary(w io.Writer, result *models.ScanResult) {
	s := result.Summary

	fmt.Fprintf(w, "Account:   %s\n", result.AccountID)
	fmt.Fprintf(w, "Scan:      %s (%s)\n", result.ScanID, result.Level)
	fmt.Fprintf(w, "Regions:   %s\n", strings.Join(result.Regions, ", "))
	fmt.Fprintf(w, "Status:    %s\n", result.Status)
	fmt.Fprintf(w, "Duration:  %dms\n", result.DurationMs)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total Findings:  %d\n", s.Total)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Severity Breakdown")
	fmt.Fprintf(w, "  %-10s  %d\n", "CRITICAL", s.Critical)
	fmt.Fprintf(w, "  %-10s  %d\n", "HIGH", s.High)
	fmt.Fprintf(w, "  %-10s  %d\n", "MEDIUM", s.Medium)
	fmt.Fprintf(w, "  %-10s  %d\n", "LOW", s.Low)
	fmt.Fprintf(w, "  %-10s  %d\n", "INFO", s.Info)

	if len(result.FailedServices) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Incomplete Scanners")
	for _, fs := range result.FailedServices {
		fmt.Fprintf(w, "  %-16s  %s\n", fs.Service, fs.ErrorKind)
	}
}

// RenderTable writes the findings table to w, one row per finding in the
// result's (already severity-sorted) order.
//
// Column order:
//
//	CHECK  SEVERITY  SERVICE  REGION  RESOURCE ID  TITLE
func RenderTable(w io.Writer, result *models.ScanResult, opts TableOptions) {
	if len(result.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	wTitle := opts.MaxTitle
	if wTitle <= 0 {
		wTitle = 55
	}

	const (
		wCheck    = 30
		wSeverity = 10
		wService  = 14
		wRegion   = 15
		wResource = 30
	)

	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %-*s",
		wCheck, "CHECK",
		wSeverity, "SEVERITY",
		wService, "SERVICE",
		wRegion, "REGION",
		wResource, "RESOURCE ID",
		wTitle, "TITLE")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range result.Findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wCheck, truncateField(f.CheckID, wCheck)))
		rb.WriteString("  " + severityCell(f.Severity, wSeverity, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wService, truncateField(f.Service, wService)))
		rb.WriteString(fmt.Sprintf("  %-*s", wRegion, truncateField(f.Region, wRegion)))
		rb.WriteString(fmt.Sprintf("  %-*s", wResource, truncateField(f.ResourceID, wResource)))
		rb.WriteString(fmt.Sprintf("  %-*s", wTitle, ShortenMessage(f.Title, wTitle)))
		fmt.Fprintln(w, rb.String())
	}
}
