package eks

import (
	"fmt"
	"strings"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perCluster(match func(Cluster) bool, analysis func(Cluster) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, c := range snap.Clusters {
			if !match(c) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  c.Name,
				ResourceARN: c.ARN,
				Region:      snap.Region,
				Analysis:    analysis(c),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "EKS_PUBLIC_ENDPOINT",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryExposure,
			Title:       "Cluster API endpoint is public",
			Description: "The Kubernetes API server accepts connections from outside the VPC.",
			RiskScore:   7,
			AttackVectors: []string{
				"Internet-reachable API server invites credential stuffing and CVE scanning",
			},
			BusinessImpact: "The cluster control plane is one leaked token away from the internet.",
			Remediation: []string{
				"aws eks update-cluster-config --name {resource} --resources-vpc-config endpointPublicAccess=false,endpointPrivateAccess=true",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return c.PublicEndpoint },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s exposes its API endpoint publicly.", c.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "EKS_OPEN_PUBLIC_CIDR",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryExposure,
			Title:       "Public API endpoint open to the world",
			Description: "The public endpoint allows 0.0.0.0/0, so any host can reach the API server.",
			RiskScore:   9,
			AttackVectors: []string{
				"Unrestricted access to the Kubernetes API from any source address",
			},
			BusinessImpact: "Full cluster takeover is reachable from anywhere on the internet.",
			Remediation: []string{
				"Restrict publicAccessCidrs on {resource} to known office and VPN ranges",
			},
		},
		Evaluate: perCluster(
			Cluster.OpenToWorld,
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s public endpoint allows %s.", c.Name, strings.Join(c.PublicCIDRs, ", "))
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "EKS_CONTROL_PLANE_LOGGING_OFF",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryLogging,
			Title:       "Control plane logging disabled",
			Description: "No control plane log types are shipped to CloudWatch Logs.",
			RiskScore:   4,
			AttackVectors: []string{
				"API server abuse and RBAC probing leave no trace",
			},
			BusinessImpact: "Cluster-level incidents cannot be reconstructed from logs.",
			Remediation: []string{
				"Enable api, audit and authenticator log types on {resource}",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return !c.ControlPlaneLogs },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s ships no control plane logs.", c.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "EKS_SECRETS_NOT_ENCRYPTED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "Kubernetes secrets not envelope-encrypted",
			Description: "No KMS key encrypts secrets at rest in etcd beyond the default disk encryption.",
			RiskScore:   7,
			AttackVectors: []string{
				"An etcd snapshot or backup leak exposes every secret in the cluster",
			},
			BusinessImpact: "All in-cluster credentials fall together with a single storage leak.",
			Remediation: []string{
				"Associate a KMS encryption config for the secrets resource on {resource}",
			},
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return !c.SecretsEncrypted },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s has no KMS envelope encryption for secrets.", c.Name)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "EKS_OUTDATED_VERSION",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryPatching,
			Title:       "Cluster runs an outdated Kubernetes version",
			Description: "The control plane minor version is past standard support and no longer receives patches.",
			RiskScore:   5,
			AttackVectors: []string{
				"Known control plane CVEs stay exploitable without upstream patches",
			},
			BusinessImpact: "Security fixes stop arriving while the attack surface stays public.",
			Remediation: []string{
				"aws eks update-cluster-version --name {resource} --kubernetes-version <supported>",
			},
		},
		Evaluate: perCluster(
			Cluster.Outdated,
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s runs Kubernetes %s, past standard support.", c.Name, c.Version)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "EKS_NO_OIDC",
			Severity:    models.SeverityLow,
			Category:    models.CategoryIdentity,
			Title:       "Cluster has no OIDC identity provider",
			Description: "Without an OIDC issuer, pods cannot use fine-grained IAM roles for service accounts.",
			RiskScore:   2,
			AttackVectors: []string{
				"Node-wide instance roles hand every pod the union of all permissions",
			},
			BusinessImpact: "Workloads share over-broad node credentials instead of scoped roles.",
			Remediation: []string{
				"Associate an IAM OIDC provider with {resource} and move workloads to IRSA",
			},
			DeepOnly: true,
		},
		Evaluate: perCluster(
			func(c Cluster) bool { return !c.OIDCProvider },
			func(c Cluster) string {
				return fmt.Sprintf("Cluster %s has no OIDC identity provider associated.", c.Name)
			},
		),
	},
}
