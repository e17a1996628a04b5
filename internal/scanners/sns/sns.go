// Package sns scans notification topics for access and transport hygiene.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	snssvc "github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// snsAPI is the narrow SNS surface the scanner needs.
type snsAPI interface {
	snssvc.ListTopicsAPIClient
	snssvc.ListSubscriptionsByTopicAPIClient
	GetTopicAttributes(ctx context.Context, params *snssvc.GetTopicAttributesInput, optFns ...func(*snssvc.Options)) (*snssvc.GetTopicAttributesOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (snsAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (snsAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "sns", region, func(cfg aws.Config) snsAPI {
		return snssvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api snsAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (snsAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "sns" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "sns:topics", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's topic inventory.
type Snapshot struct {
	Account string
	Region  string
	Topics  []Topic
}

type Topic struct {
	Name string
	ARN  string

	Encrypted         bool
	PublicPolicy      bool
	WildcardAction    bool
	HTTPSubscriptions []string
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := snssvc.NewListTopicsPaginator(client, &snssvc.ListTopicsInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "sns.ListTopics", func(ctx context.Context) (*snssvc.ListTopicsOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list topics: %w", err)
		}
		for _, t := range page.Topics {
			topicARN := aws.ToString(t.TopicArn)
			topic := Topic{
				Name: topicName(topicARN),
				ARN:  topicARN,
			}

			attrs, err := client.GetTopicAttributes(ctx, &snssvc.GetTopicAttributesInput{TopicArn: t.TopicArn})
			if err != nil {
				sc.Logger().WithField("topic", topic.Name).WithError(err).Warn("get topic attributes failed")
			} else {
				topic.Encrypted = attrs.Attributes["KmsMasterKeyId"] != ""
				topic.PublicPolicy, topic.WildcardAction = inspectPolicy(attrs.Attributes["Policy"])
			}

			topic.HTTPSubscriptions = s.httpSubscriptions(ctx, sc, client, topicARN)
			snap.Topics = append(snap.Topics, topic)
		}
	}
	return snap, nil
}

func (s *Scanner) httpSubscriptions(ctx context.Context, sc *scanner.Context, client snsAPI, topicARN string) []string {
	var endpoints []string
	pager := snssvc.NewListSubscriptionsByTopicPaginator(client, &snssvc.ListSubscriptionsByTopicInput{
		TopicArn: aws.String(topicARN),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			sc.Logger().WithField("topic", topicARN).WithError(err).Warn("list subscriptions failed")
			return endpoints
		}
		for _, sub := range page.Subscriptions {
			if aws.ToString(sub.Protocol) == "http" {
				endpoints = append(endpoints, aws.ToString(sub.Endpoint))
			}
		}
	}
	return endpoints
}

func topicName(arn string) string {
	if i := strings.LastIndex(arn, ":"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

// inspectPolicy reports whether the topic policy has an unconditional Allow
// for principal "*", and whether any Allow grants a wildcard action.
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
