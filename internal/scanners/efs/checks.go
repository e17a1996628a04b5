package efs

import (
	"fmt"
	"strings"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

func perFileSystem(match func(FileSystem) bool, analysis func(FileSystem) string) func(*Snapshot) ([]models.Finding, error) {
	return func(snap *Snapshot) ([]models.Finding, error) {
		var out []models.Finding
		for _, fs := range snap.FileSystems {
			if !match(fs) {
				continue
			}
			out = append(out, models.Finding{
				ResourceID:  fs.ID,
				ResourceARN: fs.ARN,
				Region:      snap.Region,
				Analysis:    analysis(fs),
			})
		}
		return out, nil
	}
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "EFS_UNENCRYPTED",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryEncryption,
			Title:       "File system not encrypted at rest",
			Description: "The file system stores data without KMS encryption. Encryption cannot be enabled after creation.",
			RiskScore:   7,
			AttackVectors: []string{
				"Underlying storage access reads file contents directly",
			},
			BusinessImpact: "Everything on the file system leaks with the storage layer.",
			Remediation: []string{
				"Create an encrypted file system and migrate data from {resource} with DataSync",
			},
		},
		Evaluate: perFileSystem(
			func(fs FileSystem) bool { return !fs.Encrypted },
			func(fs FileSystem) string {
				return fmt.Sprintf("File system %s is not encrypted at rest.", fs.ID)
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "EFS_OPEN_MOUNT_TARGET",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryNetwork,
			Title:       "Mount target open to the world",
			Description: "A mount target's security groups admit NFS (port 2049) from any address.",
			RiskScore:   7,
			AttackVectors: []string{
				"Any host with network reach can mount and browse the file system",
			},
			BusinessImpact: "File system contents are readable by whatever reaches the subnet.",
			Remediation: []string{
				"Restrict the mount target security groups of {resource} to known client groups",
			},
		},
		Evaluate: perFileSystem(
			func(fs FileSystem) bool { return len(fs.OpenMountTargets) > 0 },
			func(fs FileSystem) string {
				return fmt.Sprintf("File system %s has world-open mount targets: %s.", fs.ID, strings.Join(fs.OpenMountTargets, ", "))
			},
		),
	},
	{
		Check: scanner.Check{
			ID:          "EFS_NO_BACKUP_POLICY",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryResilience,
			Title:       "Automatic backups disabled",
			Description: "No AWS Backup policy protects the file system.",
			RiskScore:   4,
			AttackVectors: []string{
				"Deletion or ransomware-style encryption of files is unrecoverable",
			},
			BusinessImpact: "File data loss is permanent without a backup to restore.",
			Remediation: []string{
				"aws efs put-backup-policy --file-system-id {resource} --backup-policy Status=ENABLED",
			},
		},
		Evaluate: perFileSystem(
			func(fs FileSystem) bool { return !fs.BackupEnabled },
			func(fs FileSystem) string {
				return fmt.Sprintf("File system %s has automatic backups disabled.", fs.ID)
			},
		),
	},
}
