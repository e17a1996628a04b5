package iam

import (
	"fmt"
	"time"

	"github.com/evosec/cloudscan/internal/arn"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

const (
	staleCredentialAge = 90 * 24 * time.Hour
	keyRotationMaxAge  = 365 * 24 * time.Hour
)

func olderThan(now, t time.Time, age time.Duration) bool {
	return !t.IsZero() && now.Sub(t) > age
}

var checks = []scanner.Def[*Snapshot]{
	{
		Check: scanner.Check{
			ID:          "IAM_ROOT_ACCESS_KEY",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryIdentity,
			Title:       "Root account has active access keys",
			Description: "Access keys exist for the root account, giving programmatic access to an identity that cannot be constrained by IAM policy.",
			RiskScore:   10,
			AttackVectors: []string{
				"Leaked root key grants unrestricted control of the account",
				"Root API calls bypass all permission boundaries and SCP exemptions",
			},
			BusinessImpact: "Full account takeover including billing, identity, and data deletion.",
			Remediation: []string{
				"Delete the root access keys from the Security Credentials console page",
				"aws iam delete-access-key --access-key-id <key-id> (as root)",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.Summary["AccountAccessKeysPresent"] == 0 {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID:  "root",
				ResourceARN: arn.RootAccount(snap.Account),
				Analysis:    "The account summary reports one or more access keys bound to the root identity.",
				Evidence:    map[string]any{"accountAccessKeysPresent": snap.Summary["AccountAccessKeysPresent"]},
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_ROOT_NO_MFA",
			Severity:    models.SeverityCritical,
			Category:    models.CategoryIdentity,
			Title:       "Root account has no MFA",
			Description: "The root account can be accessed with only a password.",
			RiskScore:   10,
			AttackVectors: []string{
				"Password phishing or reuse compromises the whole account",
			},
			BusinessImpact: "Single stolen password yields unrestricted account control.",
			Remediation: []string{
				"Enable a hardware MFA device for the root account in the IAM console",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.Summary["AccountMFAEnabled"] != 0 {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID:  "root",
				ResourceARN: arn.RootAccount(snap.Account),
				Analysis:    "AccountMFAEnabled is zero, so root sign-in requires only the password.",
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_USER_NO_MFA",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Console user without MFA",
			Description: "A user with console access has no MFA device enrolled.",
			RiskScore:   8,
			AttackVectors: []string{
				"Credential stuffing against the console sign-in page",
				"Phished password grants immediate session access",
			},
			BusinessImpact: "Account access at the privilege level of the affected user.",
			Remediation: []string{
				"Enroll an MFA device for user {resource}",
				"aws iam enable-mfa-device --user-name {resource} --serial-number <serial> --authentication-code1 <c1> --authentication-code2 <c2>",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, u := range snap.Users {
				if !u.ConsoleAccess || u.MFAEnabled {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  u.Name,
					ResourceARN: u.ARN,
					Analysis:    fmt.Sprintf("User %s has a console login profile but no enrolled MFA device.", u.Name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_STALE_ACCESS_KEY",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryIdentity,
			Title:       "Access key not rotated within 90 days",
			Description: "An active access key is older than the 90-day rotation window.",
			RiskScore:   5,
			AttackVectors: []string{
				"Long-lived keys widen the window for undetected credential leaks",
			},
			BusinessImpact: "Leaked key remains valid until someone notices.",
			Remediation: []string{
				"Create a replacement key for {resource}, update consumers, then deactivate and delete the old key",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, u := range snap.Users {
				for _, k := range u.AccessKeys {
					if !k.Active || !olderThan(snap.Now, k.CreateDate, staleCredentialAge) {
						continue
					}
					out = append(out, models.Finding{
						ResourceID:  u.Name,
						ResourceARN: u.ARN,
						Analysis:    fmt.Sprintf("Key %s was created %s and is still active.", k.ID, k.CreateDate.Format("2006-01-02")),
						Evidence:    map[string]any{"accessKeyId": k.ID, "createDate": k.CreateDate},
					})
				}
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_UNUSED_CREDENTIALS",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryIdentity,
			Title:       "Console credentials unused for 90 days",
			Description: "A console user has not signed in within 90 days but the credentials remain active.",
			RiskScore:   5,
			AttackVectors: []string{
				"Dormant accounts are attractive takeover targets because misuse goes unnoticed",
			},
			BusinessImpact: "Forgotten identities expand the attack surface without business value.",
			Remediation: []string{
				"Disable console access for {resource} or remove the user entirely",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, u := range snap.Users {
				if !u.ConsoleAccess {
					continue
				}
				last := u.CreateDate
				if u.PasswordLastUsed != nil {
					last = *u.PasswordLastUsed
				}
				if !olderThan(snap.Now, last, staleCredentialAge) {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  u.Name,
					ResourceARN: u.ARN,
					Analysis:    fmt.Sprintf("Last console sign-in for %s was before the 90-day activity window.", u.Name),
					Evidence:    map[string]any{"lastActivity": last},
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_WEAK_PASSWORD_POLICY",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryIdentity,
			Title:       "Password policy below baseline",
			Description: "The account password policy allows short passwords, skips character classes, or permits reuse.",
			RiskScore:   5,
			AttackVectors: []string{
				"Weak passwords fall to offline and online guessing",
			},
			BusinessImpact: "Console accounts protected only by guessable passwords.",
			Remediation: []string{
				"aws iam update-account-password-policy --minimum-password-length 14 --require-symbols --require-numbers --password-reuse-prevention 24",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			p := snap.PasswordPolicy
			if p == nil {
				// Absence is covered by IAM_NO_PASSWORD_POLICY.
				return nil, nil
			}
			if p.MinimumLength >= 14 && p.RequireSymbols && p.RequireNumbers && p.ReusePrevention >= 24 {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: "password-policy",
				Analysis:   "The configured policy does not meet the 14-character, symbol, number, and 24-password reuse baseline.",
				Evidence: map[string]any{
					"minimumLength":   p.MinimumLength,
					"requireSymbols":  p.RequireSymbols,
					"requireNumbers":  p.RequireNumbers,
					"reusePrevention": p.ReusePrevention,
				},
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_NO_PASSWORD_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "No account password policy",
			Description: "The account relies on the AWS default password rules.",
			RiskScore:   7,
			AttackVectors: []string{
				"Users may choose trivially guessable passwords",
			},
			BusinessImpact: "Every console identity is only as strong as its weakest password.",
			Remediation: []string{
				"Create a custom password policy with aws iam update-account-password-policy",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.PasswordPolicy != nil {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: "password-policy",
				Analysis:   "GetAccountPasswordPolicy reports no custom policy for the account.",
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_WILDCARD_ADMIN_POLICY",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Customer policy grants full admin",
			Description: "An attached customer-managed policy allows every action on every resource.",
			RiskScore:   8,
			AttackVectors: []string{
				"Any principal holding the policy can escalate to account admin",
			},
			BusinessImpact: "Least privilege is void wherever the policy is attached.",
			Remediation: []string{
				"Replace the wildcard statement in {resource} with explicitly scoped actions and resources",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, name := range snap.WildcardPolicies {
				out = append(out, models.Finding{
					ResourceID: name,
					Analysis:   fmt.Sprintf("Policy %s contains an Allow statement with Action \"*\" over Resource \"*\".", name),
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_INLINE_POLICIES",
			Severity:    models.SeverityLow,
			Category:    models.CategoryIdentity,
			Title:       "User carries inline policies",
			Description: "Permissions attached inline to a user escape central policy review and reuse.",
			RiskScore:   3,
			AttackVectors: []string{
				"Inline grants drift without the visibility of managed policies",
			},
			BusinessImpact: "Privilege audits miss per-user permission sprawl.",
			Remediation: []string{
				"Move the inline policies of {resource} into managed policies attached via groups",
			},
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, u := range snap.Users {
				if u.InlinePolicies == 0 {
					continue
				}
				out = append(out, models.Finding{
					ResourceID:  u.Name,
					ResourceARN: u.ARN,
					Analysis:    fmt.Sprintf("User %s has %d inline policies.", u.Name, u.InlinePolicies),
					Evidence:    map[string]any{"inlinePolicyCount": u.InlinePolicies},
				})
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_ACCESS_KEY_OVER_365D",
			Severity:    models.SeverityHigh,
			Category:    models.CategoryIdentity,
			Title:       "Access key older than one year",
			Description: "An active access key has gone a full year without rotation.",
			RiskScore:   7,
			AttackVectors: []string{
				"Year-old keys have had many chances to leak into logs, images, and repos",
			},
			BusinessImpact: "Historic leaks remain exploitable indefinitely.",
			Remediation: []string{
				"Rotate the key for {resource} immediately and shorten the rotation cadence",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			var out []models.Finding
			for _, u := range snap.Users {
				for _, k := range u.AccessKeys {
					if !k.Active || !olderThan(snap.Now, k.CreateDate, keyRotationMaxAge) {
						continue
					}
					out = append(out, models.Finding{
						ResourceID:  u.Name,
						ResourceARN: u.ARN,
						Analysis:    fmt.Sprintf("Key %s has been active since %s.", k.ID, k.CreateDate.Format("2006-01-02")),
						Evidence:    map[string]any{"accessKeyId": k.ID, "createDate": k.CreateDate},
					})
				}
			}
			return out, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_ROOT_NO_HARDWARE_MFA",
			Severity:    models.SeverityMedium,
			Category:    models.CategoryIdentity,
			Title:       "Root MFA is virtual, not hardware",
			Description: "The root account uses a virtual MFA app instead of a hardware token.",
			RiskScore:   5,
			AttackVectors: []string{
				"Virtual MFA seeds can be exfiltrated from the device holding them",
			},
			BusinessImpact: "Root MFA strength depends on one phone's security.",
			Remediation: []string{
				"Replace the root virtual MFA device with a hardware security key",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if !snap.RootHasVirtualMFA {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID:  "root",
				ResourceARN: arn.RootAccount(snap.Account),
				Analysis:    "A virtual MFA device is assigned to the root MFA serial.",
			}}, nil
		},
	},
	{
		Check: scanner.Check{
			ID:          "IAM_NO_SUPPORT_ROLE",
			Severity:    models.SeverityLow,
			Category:    models.CategoryIdentity,
			Title:       "No role for AWS Support access",
			Description: "No role carries the AWSSupportAccess policy, so incident response has no pre-provisioned support channel.",
			RiskScore:   3,
			AttackVectors: []string{
				"During an incident, ad-hoc privilege grants replace a scoped support role",
			},
			BusinessImpact: "Slower incident handling and over-broad emergency access.",
			Remediation: []string{
				"Create a dedicated role and attach arn:aws:iam::aws:policy/AWSSupportAccess",
			},
			DeepOnly: true,
		},
		Evaluate: func(snap *Snapshot) ([]models.Finding, error) {
			if snap.SupportRoleAttached {
				return nil, nil
			}
			return []models.Finding{{
				ResourceID: "support-role",
				Analysis:   "No IAM role has the AWSSupportAccess managed policy attached.",
			}}, nil
		},
	},
}
