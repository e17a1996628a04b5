package sqs

import (
	"context"
	"strings"
	"testing"

	sqssvc "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

type fakeSQS struct {
	// attributes maps queue URL to its attribute set.
	attributes map[string]map[string]string
}

func (f *fakeSQS) ListQueues(context.Context, *sqssvc.ListQueuesInput, ...func(*sqssvc.Options)) (*sqssvc.ListQueuesOutput, error) {
	out := &sqssvc.ListQueuesOutput{}
	for url := range f.attributes {
		out.QueueUrls = append(out.QueueUrls, url)
	}
	return out, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, in *sqssvc.GetQueueAttributesInput, _ ...func(*sqssvc.Options)) (*sqssvc.GetQueueAttributesOutput, error) {
	return &sqssvc.GetQueueAttributesOutput{Attributes: f.attributes[*in.QueueUrl]}, nil
}

func testContext() *scanner.Context {
	return &scanner.Context{
		ScanID:  "scan-1",
		Account: "111122223333",
		Regions: []string{"us-east-1"},
		Level:   models.ScanLevelStandard,
		Cache:   cache.New(),
	}
}

func checkIDs(fs []models.Finding) map[string]int {
	m := make(map[string]int)
	for _, f := range fs {
		m[f.CheckID]++
	}
	return m
}

const publicWildcardPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": "*",
    "Action": "sqs:*",
    "Resource": "*"
  }]
}`

func TestScan_PublicWildcardQueue(t *testing.T) {
	fake := &fakeSQS{attributes: map[string]map[string]string{
		"https://sqs.us-east-1.amazonaws.com/111122223333/open": {
			string(sqstypes.QueueAttributeNameQueueArn): "arn:aws:sqs:us-east-1:111122223333:open",
			string(sqstypes.QueueAttributeNamePolicy):   publicWildcardPolicy,
		},
	}}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := checkIDs(fs)
	for _, want := range []string{"SQS_QUEUE_PUBLIC", "SQS_WILDCARD_POLICY", "SQS_QUEUE_UNENCRYPTED"} {
		if got[want] != 1 {
			t.Errorf("findings = %v; want %s once", got, want)
		}
	}
	for _, f := range fs {
		if f.ResourceID != "open" {
			t.Errorf("ResourceID = %q; want queue name derived from URL", f.ResourceID)
		}
	}
}

func TestScan_HardenedQueueIsQuiet(t *testing.T) {
	fake := &fakeSQS{attributes: map[string]map[string]string{
		"https://sqs.us-east-1.amazonaws.com/111122223333/orders": {
			string(sqstypes.QueueAttributeNameQueueArn):             "arn:aws:sqs:us-east-1:111122223333:orders",
			string(sqstypes.QueueAttributeNameSqsManagedSseEnabled): "true",
			string(sqstypes.QueueAttributeNameRedrivePolicy):        `{"deadLetterTargetArn":"arn:aws:sqs:us-east-1:111122223333:orders-dlq","maxReceiveCount":5}`,
		},
	}}

	fs, err := newWithClient(fake).Scan(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(fs) != 0 {
		t.Errorf("want no findings, got %v", checkIDs(fs))
	}
}

func TestInspectPolicy(t *testing.T) {
	cases := []struct {
		name         string
		doc          string
		wantPublic   bool
		wantWildcard bool
	}{
		{"empty", "", false, false},
		{"garbage", "not json", false, false},
		{"public wildcard", publicWildcardPolicy, true, true},
		{
			"conditioned principal is not public",
			`{"Statement":[{"Effect":"Allow","Principal":"*","Action":"sqs:SendMessage",
			  "Condition":{"ArnEquals":{"aws:SourceArn":"arn:aws:sns:us-east-1:111122223333:t"}}}]}`,
			false, false,
		},
		{
			"keyed wildcard principal",
			`{"Statement":[{"Effect":"Allow","Principal":{"AWS":"*"},"Action":"sqs:SendMessage"}]}`,
			true, false,
		},
		{
			"deny statements are ignored",
			`{"Statement":[{"Effect":"Deny","Principal":"*","Action":"*"}]}`,
			false, false,
		},
		{
			"scoped actions",
			`{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::111122223333:root"},
			  "Action":["sqs:SendMessage","sqs:ReceiveMessage"]}]}`,
			false, false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			public, wildcard := inspectPolicy(tc.doc)
			if public != tc.wantPublic || wildcard != tc.wantWildcard {
				t.Errorf("inspectPolicy = (%v, %v); want (%v, %v)", public, wildcard, tc.wantPublic, tc.wantWildcard)
			}
		})
	}
}

func TestQueueName(t *testing.T) {
	url := "https://sqs.us-east-1.amazonaws.com/111122223333/payments"
	if got := queueName(url); got != "payments" {
		t.Errorf("queueName(%q) = %q; want payments", url, got)
	}
	if got := queueName("no-slashes"); got != "no-slashes" {
		t.Errorf("queueName fallback = %q; want the input", got)
	}
	if strings.Contains(queueName(url), "/") {
		t.Error("queue name still contains a slash")
	}
}
