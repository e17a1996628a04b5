// Package ssm scans Systems Manager parameters, patch compliance, and
// session preferences.
package ssm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ssmsvc "github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// sessionPrefsDocument holds the account's Session Manager preferences.
const sessionPrefsDocument = "SSM-SessionManagerRunShell"

// Parameter names containing one of these fragments are treated as secrets.
var secretFragments = []string{"secret", "password", "passwd", "token", "apikey", "api_key", "credential"}

// ssmAPI is the narrow Systems Manager surface the scanner needs.
type ssmAPI interface {
	ssmsvc.DescribeParametersAPIClient
	ssmsvc.ListResourceComplianceSummariesAPIClient
	ssmsvc.ListDocumentsAPIClient
	GetDocument(ctx context.Context, params *ssmsvc.GetDocumentInput, optFns ...func(*ssmsvc.Options)) (*ssmsvc.GetDocumentOutput, error)
	DescribeDocumentPermission(ctx context.Context, params *ssmsvc.DescribeDocumentPermissionInput, optFns ...func(*ssmsvc.Options)) (*ssmsvc.DescribeDocumentPermissionOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (ssmAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (ssmAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "ssm", region, func(cfg aws.Config) ssmAPI {
		return ssmsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api ssmAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (ssmAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "ssm" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "ssm:resources", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's Systems Manager posture.
type Snapshot struct {
	Account string
	Region  string

	// PlaintextSecrets lists String parameters whose names look like secrets.
	PlaintextSecrets []string

	// PatchNonCompliant lists managed instances failing patch compliance.
	PatchNonCompliant []string

	// SessionLogging is true when session preferences ship transcripts to S3
	// or CloudWatch Logs.
	SessionLogging bool

	// PublicDocuments lists owned documents shared with all accounts.
	PublicDocuments []string
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	if err := s.collectParameters(ctx, client, snap); err != nil {
		return nil, err
	}
	log := sc.Logger().WithField("region", region)

	if err := s.collectPatchCompliance(ctx, client, snap); err != nil {
		log.WithError(err).Warn("patch compliance listing failed")
	}
	snap.SessionLogging = s.sessionLoggingEnabled(ctx, sc, client)
	if err := s.collectPublicDocuments(ctx, sc, client, snap); err != nil {
		log.WithError(err).Warn("document listing failed")
	}
	return snap, nil
}

func (s *Scanner) collectParameters(ctx context.Context, client ssmAPI, snap *Snapshot) error {
	pager := ssmsvc.NewDescribeParametersPaginator(client, &ssmsvc.DescribeParametersInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "ssm.DescribeParameters", func(ctx context.Context) (*ssmsvc.DescribeParametersOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return fmt.Errorf("describe parameters: %w", err)
		}
		for _, p := range page.Parameters {
			name := aws.ToString(p.Name)
			if p.Type != ssmtypes.ParameterTypeSecureString && looksLikeSecret(name) {
				snap.PlaintextSecrets = append(snap.PlaintextSecrets, name)
			}
		}
	}
	return nil
}

func (s *Scanner) collectPatchCompliance(ctx context.Context, client ssmAPI, snap *Snapshot) error {
	pager := ssmsvc.NewListResourceComplianceSummariesPaginator(client, &ssmsvc.ListResourceComplianceSummariesInput{
		Filters: []ssmtypes.ComplianceStringFilter{{
			Key:    aws.String("ComplianceType"),
			Values: []string{"Patch"},
			Type:   ssmtypes.ComplianceQueryOperatorTypeEqual,
		}},
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.ResourceComplianceSummaryItems {
			if item.Status == ssmtypes.ComplianceStatusNonCompliant {
				snap.PatchNonCompliant = append(snap.PatchNonCompliant, aws.ToString(item.ResourceId))
			}
		}
	}
	return nil
}

// sessionLoggingEnabled reads the Session Manager preferences document. A
// missing document or read failure counts as logging enabled so we never
// report what we could not confirm.
func (s *Scanner) sessionLoggingEnabled(ctx context.Context, sc *scanner.Context, client ssmAPI) bool {
	doc, err := client.GetDocument(ctx, &ssmsvc.GetDocumentInput{Name: aws.String(sessionPrefsDocument)})
	if err != nil {
		sc.Logger().WithError(err).Debug("session preferences document unavailable")
		return true
	}
	var prefs struct {
		Inputs struct {
			S3BucketName           string `json:"s3BucketName"`
			CloudWatchLogGroupName string `json:"cloudWatchLogGroupName"`
		} `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(aws.ToString(doc.Content)), &prefs); err != nil {
		return true
	}
	return prefs.Inputs.S3BucketName != "" || prefs.Inputs.CloudWatchLogGroupName != ""
}

func (s *Scanner) collectPublicDocuments(ctx context.Context, sc *scanner.Context, client ssmAPI, snap *Snapshot) error {
	pager := ssmsvc.NewListDocumentsPaginator(client, &ssmsvc.ListDocumentsInput{
		Filters: []ssmtypes.DocumentKeyValuesFilter{{
			Key:    aws.String("Owner"),
			Values: []string{"Self"},
		}},
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, d := range page.DocumentIdentifiers {
			name := aws.ToString(d.Name)
			perm, err := client.DescribeDocumentPermission(ctx, &ssmsvc.DescribeDocumentPermissionInput{
				Name:           d.Name,
				PermissionType: ssmtypes.DocumentPermissionTypeShare,
			})
			if err != nil {
				sc.Logger().WithField("document", name).WithError(err).Debug("describe document permission failed")
				continue
			}
			for _, account := range perm.AccountIds {
				if account == "all" {
					snap.PublicDocuments = append(snap.PublicDocuments, name)
					break
				}
			}
		}
	}
	return nil
}

func looksLikeSecret(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range secretFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
