// Package sqs scans message queues for encryption and policy exposure.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	sqssvc "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// sqsAPI is the narrow SQS surface the scanner needs.
type sqsAPI interface {
	sqssvc.ListQueuesAPIClient
	GetQueueAttributes(ctx context.Context, params *sqssvc.GetQueueAttributesInput, optFns ...func(*sqssvc.Options)) (*sqssvc.GetQueueAttributesOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (sqsAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (sqsAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "sqs", region, func(cfg aws.Config) sqsAPI {
		return sqssvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api sqsAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (sqsAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "sqs" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "sqs:queues", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's queue inventory.
type Snapshot struct {
	Account string
	Region  string
	Queues  []Queue
}

type Queue struct {
	Name string
	ARN  string

	Encrypted      bool
	PublicPolicy   bool
	WildcardAction bool
	HasDLQ         bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := sqssvc.NewListQueuesPaginator(client, &sqssvc.ListQueuesInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "sqs.ListQueues", func(ctx context.Context) (*sqssvc.ListQueuesOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list queues: %w", err)
		}
		for _, url := range page.QueueUrls {
			queue := Queue{Name: queueName(url)}

			attrs, err := client.GetQueueAttributes(ctx, &sqssvc.GetQueueAttributesInput{
				QueueUrl:       aws.String(url),
				AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
			})
			if err != nil {
				sc.Logger().WithField("queue", queue.Name).WithError(err).Warn("get queue attributes failed")
				snap.Queues = append(snap.Queues, queue)
				continue
			}

			queue.ARN = attrs.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]
			queue.Encrypted = attrs.Attributes[string(sqstypes.QueueAttributeNameKmsMasterKeyId)] != "" ||
				attrs.Attributes[string(sqstypes.QueueAttributeNameSqsManagedSseEnabled)] == "true"
			queue.HasDLQ = attrs.Attributes[string(sqstypes.QueueAttributeNameRedrivePolicy)] != ""
			queue.PublicPolicy, queue.WildcardAction = inspectPolicy(attrs.Attributes[string(sqstypes.QueueAttributeNamePolicy)])

			snap.Queues = append(snap.Queues, queue)
		}
	}
	return snap, nil
}

func queueName(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// inspectPolicy reports an unconditional Allow for principal "*" and any
// Allow granting a wildcard action. Unparseable policies count as restricted.
func inspectPolicy(doc string) (public, wildcardAction bool) {
	if doc == "" {
		return false, false
	}
	var policy struct {
		Statement []struct {
			Effect    string          `json:"Effect"`
			Principal json.RawMessage `json:"Principal"`
			Action    json.RawMessage `json:"Action"`
			Condition json.RawMessage `json:"Condition"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(doc), &policy); err != nil {
		return false, false
	}
	for _, stmt := range policy.Statement {
		if stmt.Effect != "Allow" {
			continue
		}
		if len(stmt.Condition) == 0 && principalIsWildcard(stmt.Principal) {
			public = true
		}
		if actionIsWildcard(stmt.Action) {
			wildcardAction = true
		}
	}
	return public, wildcardAction
}

func principalIsWildcard(raw json.RawMessage) bool {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain == "*"
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return false
	}
	principals, ok := keyed["AWS"]
	if !ok {
		return false
	}
	if err := json.Unmarshal(principals, &plain); err == nil {
		return plain == "*"
	}
	var many []string
	if err := json.Unmarshal(principals, &many); err == nil {
		for _, p := range many {
			if p == "*" {
				return true
			}
		}
	}
	return false
}

func actionIsWildcard(raw json.RawMessage) bool {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain == "*" || strings.HasSuffix(plain, ":*")
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, a := range many {
			if a == "*" || strings.HasSuffix(a, ":*") {
				return true
			}
		}
	}
	return false
}
