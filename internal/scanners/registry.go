// Package scanners assembles the default scanner catalog.
package scanners

import (
	"github.com/evosec/cloudscan/internal/compliance"
	"github.com/evosec/cloudscan/internal/scanner"
	"github.com/evosec/cloudscan/internal/scanners/apigateway"
	"github.com/evosec/cloudscan/internal/scanners/awsconfig"
	"github.com/evosec/cloudscan/internal/scanners/cloudfront"
	"github.com/evosec/cloudscan/internal/scanners/cloudtrail"
	"github.com/evosec/cloudscan/internal/scanners/cloudwatch"
	"github.com/evosec/cloudscan/internal/scanners/dynamodb"
	"github.com/evosec/cloudscan/internal/scanners/ec2"
	"github.com/evosec/cloudscan/internal/scanners/ecr"
	"github.com/evosec/cloudscan/internal/scanners/efs"
	"github.com/evosec/cloudscan/internal/scanners/eks"
	"github.com/evosec/cloudscan/internal/scanners/elb"
	"github.com/evosec/cloudscan/internal/scanners/guardduty"
	"github.com/evosec/cloudscan/internal/scanners/iam"
	"github.com/evosec/cloudscan/internal/scanners/kms"
	"github.com/evosec/cloudscan/internal/scanners/lambda"
	"github.com/evosec/cloudscan/internal/scanners/opensearch"
	"github.com/evosec/cloudscan/internal/scanners/rds"
	"github.com/evosec/cloudscan/internal/scanners/redshift"
	"github.com/evosec/cloudscan/internal/scanners/route53"
	"github.com/evosec/cloudscan/internal/scanners/s3"
	"github.com/evosec/cloudscan/internal/scanners/secretsmanager"
	"github.com/evosec/cloudscan/internal/scanners/sns"
	"github.com/evosec/cloudscan/internal/scanners/sqs"
	"github.com/evosec/cloudscan/internal/scanners/ssm"
	"github.com/evosec/cloudscan/internal/scanners/vpc"
)

// Default builds the full production registry against table. Registration
// panics on catalog defects, so calling this at startup is itself the
// consistency check between scanners and the compliance table.
func Default(table *compliance.Table) *scanner.Registry {
	return DefaultExcluding(table, nil)
}

// DefaultExcluding builds the production registry without the named scanners.
// Unknown names are ignored.
func DefaultExcluding(table *compliance.Table, disabled []string) *scanner.Registry {
	skip := make(map[string]struct{}, len(disabled))
	for _, id := range disabled {
		skip[id] = struct{}{}
	}
	r := scanner.NewRegistry(table)
	for _, s := range catalog() {
		if _, ok := skip[s.ID()]; ok {
			continue
		}
		r.Register(s)
	}
	return r
}

func catalog() []scanner.Scanner {
	return []scanner.Scanner{
		iam.New(),
		s3.New(),
		ec2.New(),
		vpc.New(),
		rds.New(),
		lambda.New(),
		cloudtrail.New(),
		cloudwatch.New(),
		kms.New(),
		secretsmanager.New(),
		guardduty.New(),
		awsconfig.New(),
		cloudfront.New(),
		eks.New(),
		opensearch.New(),
		sns.New(),
		sqs.New(),
		dynamodb.New(),
		efs.New(),
		elb.New(),
		apigateway.New(),
		ecr.New(),
		redshift.New(),
		route53.New(),
		ssm.New(),
	}
}
