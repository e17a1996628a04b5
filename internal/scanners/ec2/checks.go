package ec2

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "EC2_PUBLIC_AMI",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Account-owned AMI is public",
			Description: "An AMI owned by this account is shared with all AWS accounts.",
			RiskScore:   7,
			AttackVectors: []string{
				"Baked-in secrets, keys, and internal software leak with the image",
			},
			BusinessImpact: "Anyone can launch and inspect a copy of the machine image.",
			Remediation: []string{
				"aws ec2 modify-image-attribute --image-id {resource} --launch-permission '{\"Remove\":[{\"Group\":\"all\"}]}'",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, id := range snap.PublicImages {
				out = append(out, models.Finding{
					ResourceID: id,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Image %s is owned by the account and marked public.", id),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "EC2_UNENCRYPTED_EBS",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "EBS volume not encrypted",
			Description: "The volume stores data without encryption at rest.",
			RiskScore:   7,
			AttackVectors: []string{
				"Snapshots or detached volumes expose plaintext data if shared or leaked",
			},
			BusinessImpact: "Data-at-rest compliance failure for everything on the volume.",
			Remediation: []string{
				"Snapshot {resource}, copy the snapshot with encryption enabled, and recreate the volume from the encrypted copy",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, v := range snap.Volumes {
				if v.Encrypted {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  v.ID,
					ResourceARN: arn.EBSVolume(snap.Region, snap.Account, v.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Volume %s has encryption disabled.", v.ID),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "EC2_IMDSV1_ENABLED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Instance allows IMDSv1",
			Description: "The instance metadata service accepts unauthenticated v1 requests.",
			RiskScore:   8,
			AttackVectors: []string{
				"SSRF in any workload on the instance can steal the instance role credentials",
			},
			BusinessImpact: "Application-level bugs escalate to AWS credential theft.",
			Remediation: []string{
				"aws ec2 modify-instance-metadata-options --instance-id {resource} --http-tokens required",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, i := range snap.Instances {
				if !i.IMDSv1Allowed {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  i.ID,
					ResourceARN: arn.EC2Instance(snap.Region, snap.Account, i.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Instance %s does not require IMDSv2 session tokens.", i.ID),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "EC2_PUBLIC_IP",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryExposure,
			Title:       "Instance has a public IP",
			Description: "The instance is directly addressable from the internet.",
			RiskScore:   5,
			AttackVectors: []string{
				"Every listening service on the instance is internet-reachable",
			},
			BusinessImpact: "Attack surface grows with each directly exposed host.",
			Remediation: []string{
				"Move {resource} behind a load balancer or NAT and release the public address",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, i := range snap.Instances {
				if i.PublicIP == "" {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  i.ID,
					ResourceARN: arn.EC2Instance(snap.Region, snap.Account, i.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Instance %s carries public IP %s.", i.ID, i.PublicIP),
					Evidence:    map[string]any{"publicIp": i.PublicIP},
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "EC2_NO_DETAILED_MONITORING",
			Severity:    models.SeverityLow,
			Category:    models.CategoryMonitoring,
			Title:       "Detailed monitoring disabled",
			Description: "The instance reports metrics at five-minute granularity only.",
			RiskScore:   3,
			AttackVectors: []string{
				"Anomalous behavior hides inside coarse metric windows",
			},
			BusinessImpact: "Slower detection of abuse and performance incidents.",
			Remediation: []string{
				"aws ec2 monitor-instances --instance-ids {resource}",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, i := range snap.Instances {
				if i.DetailedMonitoring {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  i.ID,
					ResourceARN: arn.EC2Instance(snap.Region, snap.Account, i.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Instance %s has detailed monitoring disabled.", i.ID),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "EC2_DEFAULT_VPC",
			Severity:    models.SeverityLow,
			Category:    models.CategoryNetwork,
			Title:       "Instance runs in the default VPC",
			Description: "Workloads share the region's default VPC instead of a purpose-built network.",
			RiskScore:   3,
			AttackVectors: []string{
				"Default VPC networking is permissive and shared across unrelated workloads",
			},
			BusinessImpact: "Weak segmentation between workloads of different sensitivity.",
			Remediation: []string{
				"Migrate {resource} into a dedicated VPC with explicit subnets and security groups",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.DefaultVPCID == "" {
				return nil, nil
			}
			var out []models.Finding
			for _, i := range snap.Instances {
				if i.VPCID != snap.DefaultVPCID {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  i.ID,
					ResourceARN: arn.EC2Instance(snap.Region, snap.Account, i.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Instance %s runs in default VPC %s.", i.ID, snap.DefaultVPCID),
					Evidence:    map[string]any{"vpcId": snap.DefaultVPCID},
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "EC2_UNATTACHED_EIP",
			Severity:    models.SeverityInfo,
			Category:    models.CategoryResilience,
			Title:       "Elastic IP not associated",
			Description: "An allocated Elastic IP is not attached to anything.",
			RiskScore:   1,
			AttackVectors: []string{
				"Unused allocations hint at decommissioned infrastructure left half-removed",
			},
			BusinessImpact: "Ongoing cost and inventory noise.",
			Remediation: []string{
				"aws ec2 release-address --allocation-id {resource}",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, id := range snap.UnattachedEIPs {
				out = append(out, models.Finding{
					ResourceID: id,
					Region:     snap.Region,
					Analysis:   fmt.Sprintf("Allocation %s has no association.", id),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "EC2_LEGACY_INSTANCE_TYPE",
			Severity:    models.SeverityLow,
			Category:    models.CategoryPatching,
			Title:       "Instance runs a legacy generation",
			Description: "The instance family predates the Nitro platform and its security features.",
			RiskScore:   3,
			AttackVectors: []string{
				"Older virtualization stacks miss current isolation hardening",
			},
			BusinessImpact: "Degraded security baseline and looming end-of-support migrations.",
			Remediation: []string{
				"Resize {resource} to a current-generation equivalent instance type",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, i := range snap.Instances {
				if !isLegacyType(i.Type) {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  i.ID,
					ResourceARN: arn.EC2Instance(snap.Region, snap.Account, i.ID),
					Region:      snap.Region,
					Analysis:    fmt.Sprintf("Instance %s runs legacy type %s.", i.ID, i.Type),
					Evidence:    map[string]any{"instanceType": i.Type},
				})
			}
			return out, nil
		},
	},
}
