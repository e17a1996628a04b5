package route53

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	r53svc "github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	domainssvc "github.com/aws/aws-sdk-go-v2/service/route53domains"
	domainstypes "github.com/aws/aws-sdk-go-v2/service/route53domains/types"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/scanner"
)

type fakeRoute53 struct {
	zones      []r53types.HostedZone
	records    map[string][]r53types.ResourceRecordSet
	logConfigs map[string]int
}

func (f *fakeRoute53) ListHostedZones(context.Context, *r53svc.ListHostedZonesInput, ...func(*r53svc.Options)) (*r53svc.ListHostedZonesOutput, error) {
	return &r53svc.ListHostedZonesOutput{HostedZones: f.zones}, nil
}

func (f *fakeRoute53) ListResourceRecordSets(_ context.Context, in *r53svc.ListResourceRecordSetsInput, _ ...func(*r53svc.Options)) (*r53svc.ListResourceRecordSetsOutput, error) {
	return &r53svc.ListResourceRecordSetsOutput{
		ResourceRecordSets: f.records[aws.ToString(in.HostedZoneId)],
	}, nil
}

func (f *fakeRoute53) ListQueryLoggingConfigs(_ context.Context, in *r53svc.ListQueryLoggingConfigsInput, _ ...func(*r53svc.Options)) (*r53svc.ListQueryLoggingConfigsOutput, error) {
	out := &r53svc.ListQueryLoggingConfigsOutput{}
	for i := 0; i < f.logConfigs[aws.ToString(in.HostedZoneId)]; i++ {
		out.QueryLoggingConfigs = append(out.QueryLoggingConfigs, r53types.QueryLoggingConfig{})
	}
	return out, nil
}

type fakeDomains struct {
	domains []domainstypes.DomainSummary
}

func (f *fakeDomains) ListDomains(context.Context, *domainssvc.ListDomainsInput, ...func(*domainssvc.Options)) (*domainssvc.ListDomainsOutput, error) {
	return &domainssvc.ListDomainsOutput{Domains: f.domains}, nil
}

// resolveNone treats every target as gone from DNS.
func resolveNone(context.Context, string) (bool, error) { return false, nil }

// resolveAll treats every target as still resolving.
func resolveAll(context.Context, string) (bool, error) { return true, nil }

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

func exampleZone() *fakeRoute53 {
	return &fakeRoute53{
		zones: []r53types.HostedZone{{
			Id:     aws.String("/hostedzone/Z1"),
			Name:   aws.String("example.com."),
			Config: &r53types.HostedZoneConfig{PrivateZone: false},
		}},
		records: map[string][]r53types.ResourceRecordSet{
			"Z1": {
				{
					Name:            aws.String("assets.example.com."),
					Type:            r53types.RRTypeCname,
					ResourceRecords: []r53types.ResourceRecord{{Value: aws.String("old-site.s3-website.amazonaws.com")}},
				},
				{
					Name:            aws.String("partner.example.com."),
					Type:            r53types.RRTypeCname,
					ResourceRecords: []r53types.ResourceRecord{{Value: aws.String("partner.example.org")}},
				},
			},
		},
		logConfigs: map[string]int{"Z1": 1},
	}
}

func TestScan_DanglingCNAME(t *testing.T) {
	s := newWithClients(exampleZone(), &fakeDomains{}, resolveNone)
	fs, err := s.Scan(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := checkIDs(fs)
	// Only the takeover-prone AWS target counts; the external CNAME is never
	// resolved at all.
	if got["R53_DANGLING_CNAME"] != 1 {
		t.Errorf("findings = %v; want R53_DANGLING_CNAME once", got)
	}
	for _, f := range fs {
		if f.CheckID != "R53_DANGLING_CNAME" {
			continue
		}
		if f.Evidence["target"] != "old-site.s3-website.amazonaws.com" {
			t.Errorf("evidence = %v; want the S3 website target", f.Evidence)
		}
		if f.Region != "global" {
			t.Errorf("Region = %q; want global", f.Region)
		}
	}
}

func TestScan_ResolvingTargetsAreQuiet(t *testing.T) {
	s := newWithClients(exampleZone(), &fakeDomains{}, resolveAll)
	fs, err := s.Scan(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := checkIDs(fs); got["R53_DANGLING_CNAME"] != 0 {
		t.Errorf("findings = %v; dangling reported for a live target", got)
	}
}

func TestScan_QueryLoggingAndAutoRenew(t *testing.T) {
	dns := exampleZone()
	dns.logConfigs = nil
	domains := &fakeDomains{domains: []domainstypes.DomainSummary{
		{DomainName: aws.String("example.com"), AutoRenew: aws.Bool(false)},
		{DomainName: aws.String("example.net"), AutoRenew: aws.Bool(true)},
	}}

	fs, err := newWithClients(dns, domains, resolveAll).Scan(context.Background(), testContext())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := checkIDs(fs)
	if got["R53_NO_QUERY_LOGGING"] != 1 {
		t.Errorf("findings = %v; want R53_NO_QUERY_LOGGING once", got)
	}
	if got["R53_AUTO_RENEW_OFF"] != 1 {
		t.Errorf("findings = %v; want R53_AUTO_RENEW_OFF once for example.com only", got)
	}
}

func TestTakeoverProne(t *testing.T) {
	cases := []struct {
		target string
		want   bool
	}{
		{"old.s3.amazonaws.com", true},
		{"d111.cloudfront.net.", true},
		{"app.elasticbeanstalk.com", true},
		{"partner.example.org", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := takeoverProne(tc.target); got != tc.want {
			t.Errorf("takeoverProne(%q) = %v; want %v", tc.target, got, tc.want)
		}
	}
}
