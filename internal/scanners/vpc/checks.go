package vpc

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

// perOpenPort builds the evaluation for a single world-open port check.
func perOpenPort(port int32, service string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, g := range snap.SecurityGroups {
			if !g.OpensPortToWorld(port) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  g.ID,
				ResourceARN: arn.SecurityGroup(snap.Region, snap.Account, g.ID),
				Region:      snap.Region,
				Analysis:    fmt.Sprintf("Group %s (%s) allows %s port %d from 0.0.0.0/0.", g.ID, g.Name, service, port),
				Evidence:    map[string]any{"port": port, "groupName": g.Name},
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "VPC_SSH_OPEN_TO_WORLD",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryNetwork,
			Title:       "SSH open to the world",
			Description: "A security group allows SSH from any internet address.",
			RiskScore:   9,
			AttackVectors: []string{
				"Brute-force and credential-stuffing against SSH within minutes of exposure",
			},
			BusinessImpact: "Interactive shell access one password away for every attached host.",
			Remediation: []string{
				"Restrict the port 22 rule of {resource} to management CIDRs or replace SSH with Session Manager",
			},
		},
		Evaluate: perOpenPort(22, "SSH"),
	},
	{
		Check: scanner.Check{
			ID:          "VPC_RDP_OPEN_TO_WORLD",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryNetwork,
			Title:       "RDP open to the world",
			Description: "A security group allows RDP from any internet address.",
			RiskScore:   9,
			AttackVectors: []string{
				"RDP exposure is the leading ransomware entry point",
			},
			BusinessImpact: "Remote desktop access to attached Windows hosts for any attacker.",
			Remediation: []string{
				"Restrict the port 3389 rule of {resource} to management CIDRs behind a VPN",
			},
		},
		Evaluate: perOpenPort(3389, "RDP"),
	},
	{
		Check: scanner.Check{
			ID:          "VPC_ALL_PORTS_OPEN",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryNetwork,
			Title:       "All ports open to the world",
			Description: "A security group allows every protocol and port from any address.",
			RiskScore:   10,
			AttackVectors: []string{
				"Every service on every attached host is internet-reachable",
			},
			BusinessImpact: "The group provides no network protection at all.",
			Remediation: []string{
				"Delete the all-traffic rule from {resource} and add explicit per-service rules",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, g := range snap.SecurityGroups {
				if !g.OpensAllPortsToWorld() {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  g.ID,
					ResourceARN: arn.SecurityGroup(snap.Region, snap.Account, g.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Group %s (%s) allows all traffic from 0.0.0.0/0.", g.ID, g.Name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "VPC_FLOW_LOGS_DISABLED",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "VPC has no flow logs",
			Description: "Network traffic in the VPC leaves no flow log record.",
			RiskScore:   5,
			AttackVectors: []string{
				"Lateral movement and exfiltration cross the network unrecorded",
			},
			BusinessImpact: "Network forensics is impossible after an incident.",
			Remediation: []string{
				"aws ec2 create-flow-logs --resource-type VPC --resource-ids {resource} --traffic-type ALL --log-destination <destination>",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, id := range snap.VPCsWithoutFlowLogs {
				out = append(out, models.Finding{
					ResourceID:  id,
					ResourceARN: arn.VPC(snap.Region, snap.Account, id),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("No flow log is configured for VPC %s.", id),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "VPC_DEFAULT_SG_IN_USE",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryNetwork,
			Title:       "Default security group carries rules",
			Description: "A default security group has ingress rules instead of being locked down empty.",
			RiskScore:   4,
			AttackVectors: []string{
				"Resources created without an explicit group silently inherit the open default",
			},
			BusinessImpact: "Unintended connectivity for every carelessly launched resource.",
			Remediation: []string{
				"Remove all rules from {resource} so the default group denies everything",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, g := range snap.SecurityGroups {
				if !g.IsDefault || len(g.Ingress) == 0 {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  g.ID,
					ResourceARN: arn.SecurityGroup(snap.Region, snap.Account, g.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Default group %s in %s still has %d ingress rules.", g.ID, g.VPCID, len(g.Ingress)),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "VPC_NACL_ALLOW_ALL",
			Severity:    models.SeverityLow,
			Category:    models.CategoryNetwork,
			Title:       "NACL allows all ingress",
			Description: "A network ACL permits every protocol from the whole internet, providing no subnet-level filtering.",
			RiskScore:   3,
			AttackVectors: []string{
				"Subnet defense-in-depth reduces to security groups alone",
			},
			BusinessImpact: "A single permissive security group fully exposes the subnet.",
			Remediation: []string{
				"Tighten the ingress entries of {resource} to expected port ranges and sources",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, id := range snap.OpenNACLs {
				out = append(out, models.Finding{
					ResourceID: id,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("NACL %s has an allow-all ingress entry from 0.0.0.0/0.", id),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "VPC_BROAD_PEERING",
			Severity:    models.SeverityLow,
			Category:    models.CategoryNetwork,
			Title:       "Peering exposes a very wide CIDR",
			Description: "An active peering connection links networks at /15 or wider, granting whole-network reachability.",
			RiskScore:   3,
			AttackVectors: []string{
				"Compromise on either side reaches the full address space of the other",
			},
			BusinessImpact: "Blast radius of any breach spans both peered networks.",
			Remediation: []string{
				"Replace peering {resource} with narrower routes or a PrivateLink endpoint per service",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, id := range snap.BroadPeerings {
				out = append(out, models.Finding{
					ResourceID: id,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Peering %s exposes a /15 or wider CIDR block.", id),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "VPC_UNUSED_SECURITY_GROUP",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryNetwork,
			Title:       "Security group attached to nothing",
			Description: "A non-default security group is not referenced by any network interface.",
			RiskScore:   1,
			AttackVectors: []string{
				"Orphaned rules get reattached later without review",
			},
			BusinessImpact: "Rule sprawl makes the real exposure surface harder to audit.",
			Remediation: []string{
				"aws ec2 delete-security-group --group-id {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, g := range snap.SecurityGroups {
				if g.IsDefault || snap.AttachedSGIDs[g.ID] {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  g.ID,
					ResourceARN: arn.SecurityGroup(snap.Region, snap.Account, g.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Group %s (%s) is not attached to any network interface.", g.ID, g.Name),
				})
			}
			return out, nil
		},
	},
}
