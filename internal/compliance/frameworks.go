// Package compliance holds the immutable mapping from check identifiers to
// compliance framework controls.
//
// The table is constructed once at process start and injected into the scan
// manager as a read-only value. It is safe to share across concurrent scanner
// executions without locking.
package compliance

import "github.com/evosec/cloudscan/internal/models"

// Supported framework identifiers.
const (
	FrameworkCIS   = "CIS"         // CIS AWS Foundations Benchmark
	FrameworkNIST  = "NIST-800-53" // NIST SP 800-53 Rev 5
	FrameworkPCI   = "PCI-DSS"     // PCI DSS v4.0
	FrameworkLGPD  = "LGPD"        // Lei Geral de Proteção de Dados
	FrameworkSOC2  = "SOC2"        // SOC 2 Trust Service Criteria
	FrameworkAWSWA = "AWS-WA"      // AWS Well-Architected, Security Pillar
)

// Frameworks lists every framework the engine can map findings onto.
func Frameworks() []string {
	return []string{
		FrameworkCIS,
		FrameworkNIST,
		FrameworkPCI,
		FrameworkLGPD,
		FrameworkSOC2,
		FrameworkAWSWA,
	}
}

// Shorthand constructors used by the default table. Keeping the table data
// dense makes review against the source benchmarks practical.

func cis(id string) models.ControlRef  { return models.ControlRef{Framework: FrameworkCIS, ControlID: id} }
func nist(id string) models.ControlRef { return models.ControlRef{Framework: FrameworkNIST, ControlID: id} }
func pci(id string) models.ControlRef  { return models.ControlRef{Framework: FrameworkPCI, ControlID: id} }
func lgpd(id string) models.ControlRef { return models.ControlRef{Framework: FrameworkLGPD, ControlID: id} }
func soc2(id string) models.ControlRef { return models.ControlRef{Framework: FrameworkSOC2, ControlID: id} }
func wa(id string) models.ControlRef   { return models.ControlRef{Framework: FrameworkAWSWA, ControlID: id} }
