// Package elb scans load balancers for transport and hygiene defects.
package elb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	classicsvc "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbsvc "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	wafsvc "github.com/aws/aws-sdk-go-v2/service/wafv2"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// elbAPI is the narrow ELBv2 surface the scanner needs.
type elbAPI interface {
	elbsvc.DescribeLoadBalancersAPIClient
	elbsvc.DescribeListenersAPIClient
	DescribeLoadBalancerAttributes(ctx context.Context, params *elbsvc.DescribeLoadBalancerAttributesInput, optFns ...func(*elbsvc.Options)) (*elbsvc.DescribeLoadBalancerAttributesOutput, error)
}

// classicAPI lists classic load balancers, kept only for the idle check.
type classicAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *classicsvc.DescribeLoadBalancersInput, optFns ...func(*classicsvc.Options)) (*classicsvc.DescribeLoadBalancersOutput, error)
}

// wafAPI resolves the web ACL association of an ALB.
type wafAPI interface {
	GetWebACLForResource(ctx context.Context, params *wafsvc.GetWebACLForResourceInput, optFns ...func(*wafsvc.Options)) (*wafsvc.GetWebACLForResourceOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (elbAPI, classicAPI, wafAPI, error)

func defaultClients(ctx context.Context, sc *scanner.Context, region string) (elbAPI, classicAPI, wafAPI, error) {
	v2, err := common.ClientFor(ctx, sc.Clients, "elbv2", region, func(cfg aws.Config) elbAPI {
		return elbsvc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	classic, err := common.ClientFor(ctx, sc.Clients, "elb", region, func(cfg aws.Config) classicAPI {
		return classicsvc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	waf, err := common.ClientFor(ctx, sc.Clients, "wafv2", region, func(cfg aws.Config) wafAPI {
		return wafsvc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return v2, classic, waf, nil
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClients}
}

func newWithClients(v2 elbAPI, classic classicAPI, waf wafAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (elbAPI, classicAPI, wafAPI, error) {
		return v2, classic, waf, nil
	}}
}

func (s *Scanner) ID() string { return "elb" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "elb:loadbalancers", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's load balancer inventory.
type Snapshot struct {
	Account       string
	Region        string
	LoadBalancers []LoadBalancer

	// IdleClassic names classic load balancers with no registered instances.
	IdleClassic []string
}

type LoadBalancer struct {
	Name   string
	ARN    string
	Type   string
	Scheme string

	HasListeners       bool
	HasHTTPSListener   bool
	LegacyTLSPolicies  []string
	AccessLogs         bool
	DeletionProtection bool
	DropInvalidHeaders bool
	WAFAttached        bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	v2, classic, waf, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := elbsvc.NewDescribeLoadBalancersPaginator(v2, &elbsvc.DescribeLoadBalancersInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "elbv2.DescribeLoadBalancers", func(ctx context.Context) (*elbsvc.DescribeLoadBalancersOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}
		for _, d := range page.LoadBalancers {
			lb := LoadBalancer{
				Name:   aws.ToString(d.LoadBalancerName),
				ARN:    aws.ToString(d.LoadBalancerArn),
				Type:   string(d.Type),
				Scheme: string(d.Scheme),
			}
			s.describeListeners(ctx, sc, v2, &lb)
			s.describeAttributes(ctx, sc, v2, &lb)
			if lb.Type == "application" {
				lb.WAFAttached = s.wafAttached(ctx, sc, waf, lb.ARN)
			}
			snap.LoadBalancers = append(snap.LoadBalancers, lb)
		}
	}

	snap.IdleClassic, err = idleClassicLBs(ctx, classic)
	if err != nil {
		sc.Logger().WithField("region", region).WithError(err).Warn("describe classic load balancers failed")
	}
	return snap, nil
}

func (s *Scanner) describeListeners(ctx context.Context, sc *scanner.Context, client elbAPI, lb *LoadBalancer) {
	pager := elbsvc.NewDescribeListenersPaginator(client, &elbsvc.DescribeListenersInput{
		LoadBalancerArn: aws.String(lb.ARN),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			sc.Logger().WithField("loadbalancer", lb.Name).WithError(err).Warn("describe listeners failed")
			return
		}
		for _, l := range page.Listeners {
			lb.HasListeners = true
			proto := string(l.Protocol)
			if proto == "HTTPS" || proto == "TLS" {
				lb.HasHTTPSListener = true
				if policy := aws.ToString(l.SslPolicy); legacySSLPolicy(policy) {
					lb.LegacyTLSPolicies = append(lb.LegacyTLSPolicies, policy)
				}
			}
		}
	}
}

func (s *Scanner) describeAttributes(ctx context.Context, sc *scanner.Context, client elbAPI, lb *LoadBalancer) {
	// Attribute failures keep conservative defaults.
	lb.AccessLogs = true
	lb.DeletionProtection = true
	lb.DropInvalidHeaders = true

	out, err := client.DescribeLoadBalancerAttributes(ctx, &elbsvc.DescribeLoadBalancerAttributesInput{
		LoadBalancerArn: aws.String(lb.ARN),
	})
	if err != nil {
		sc.Logger().WithField("loadbalancer", lb.Name).WithError(err).Warn("describe attributes failed")
		return
	}
	for _, attr := range out.Attributes {
		value := aws.ToString(attr.Value)
		switch aws.ToString(attr.Key) {
		case "access_logs.s3.enabled":
			lb.AccessLogs = value == "true"
		case "deletion_protection.enabled":
			lb.DeletionProtection = value == "true"
		case "routing.http.drop_invalid_header_fields.enabled":
			lb.DropInvalidHeaders = value == "true"
		}
	}
}

func (s *Scanner) wafAttached(ctx context.Context, sc *scanner.Context, client wafAPI, arn string) bool {
	out, err := client.GetWebACLForResource(ctx, &wafsvc.GetWebACLForResourceInput{ResourceArn: aws.String(arn)})
	if err != nil {
		sc.Logger().WithField("loadbalancer", arn).WithError(err).Debug("get web acl failed")
		// Conservative: assume protected when the association is unknown.
		return true
	}
	return out.WebACL != nil
}

func idleClassicLBs(ctx context.Context, client classicAPI) ([]string, error) {
	out, err := client.DescribeLoadBalancers(ctx, &classicsvc.DescribeLoadBalancersInput{})
	if err != nil {
		return nil, err
	}
	var idle []string
	for _, lb := range out.LoadBalancerDescriptions {
		if len(lb.Instances) == 0 {
			idle = append(idle, aws.ToString(lb.LoadBalancerName))
		}
	}
	return idle, nil
}

// legacySSLPolicy reports a negotiation policy whose floor is below TLS 1.2.
func legacySSLPolicy(policy string) bool {
	if policy == "" {
		return false
	}
	return !strings.Contains(policy, "TLS-1-2") && !strings.Contains(policy, "TLS13")
}
