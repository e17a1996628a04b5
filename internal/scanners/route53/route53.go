// Package route53 scans DNS zones and registered domains.
package route53

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	r53svc "github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	domainssvc "github.com/aws/aws-sdk-go-v2/service/route53domains"

	"github.com/evosec/cloudscan/internal/cache"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// CNAME targets under these suffixes point at claimable infrastructure when
// the backing resource is gone.
var takeoverSuffixes = []string{
	".s3.amazonaws.com.",
	".s3-website.amazonaws.com.",
	".cloudfront.net.",
	".elasticbeanstalk.com.",
	".execute-api.amazonaws.com.",
}

// route53API is the narrow Route 53 surface the scanner needs.
type route53API interface {
	r53svc.ListHostedZonesAPIClient
	ListResourceRecordSets(ctx context.Context, params *r53svc.ListResourceRecordSetsInput, optFns ...func(*r53svc.Options)) (*r53svc.ListResourceRecordSetsOutput, error)
	ListQueryLoggingConfigs(ctx context.Context, params *r53svc.ListQueryLoggingConfigsInput, optFns ...func(*r53svc.Options)) (*r53svc.ListQueryLoggingConfigsOutput, error)
}

// domainsAPI lists registered domains. Route 53 Domains only exists in
// us-east-1.
type domainsAPI interface {
	ListDomains(ctx context.Context, params *domainssvc.ListDomainsInput, optFns ...func(*domainssvc.Options)) (*domainssvc.ListDomainsOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context) (route53API, domainsAPI, error)

// resolveFunc answers whether a DNS name currently resolves. Swapped in tests.
type resolveFunc func(ctx context.Context, host string) (bool, error)

func defaultClients(ctx context.Context, sc *scanner.Context) (route53API, domainsAPI, error) {
	dns, err := common.ClientFor(ctx, sc.Clients, "route53", "us-east-1", func(cfg aws.Config) route53API {
		return r53svc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, err
	}
	domains, err := common.ClientFor(ctx, sc.Clients, "route53domains", "us-east-1", func(cfg aws.Config) domainsAPI {
		return domainssvc.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, nil, err
	}
	return dns, domains, nil
}

func defaultResolve(ctx context.Context, host string) (bool, error) {
	_, err := net.DefaultResolver.LookupHost(ctx, strings.TrimSuffix(host, "."))
	if err == nil {
		return true, nil
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false, nil
	}
	return false, err
}

type Scanner struct {
	clients clientFactory
	resolve resolveFunc
}

func New() *Scanner {
	return &Scanner{clients: defaultClients, resolve: defaultResolve}
}

func newWithClients(dns route53API, domains domainsAPI, resolve resolveFunc) *Scanner {
	return &Scanner{
		clients: func(context.Context, *scanner.Context) (route53API, domainsAPI, error) {
			return dns, domains, nil
		},
		resolve: resolve,
	}
}

func (s *Scanner) ID() string { return "route53" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	snap, err := cache.Fetch(ctx, sc.Cache,
		cache.Key{Account: sc.Account, Region: "global", ResourceType: "route53:zones"},
		func(ctx context.Context) (*Snapshot, error) {
			return s.collect(ctx, sc)
		})
	if err != nil {
		return nil, err
	}
	return scanner.RunChecks(sc, s.ID(), snap, checks), nil
}

// Snapshot is the account's DNS estate.
type Snapshot struct {
	Account string
	Zones   []Zone
	Domains []RegisteredDomain
}

type Zone struct {
	ID      string
	Name    string
	Private bool

	QueryLogging bool

	// DanglingCNAMEs maps record names to the unresolvable targets they
	// point at.
	DanglingCNAMEs map[string]string
}

type RegisteredDomain struct {
	Name      string
	AutoRenew bool
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context) (*Snapshot, error) {
	dns, domains, err := s.clients(ctx, sc)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account}
	pager := r53svc.NewListHostedZonesPaginator(dns, &r53svc.ListHostedZonesInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "route53.ListHostedZones", func(ctx context.Context) (*r53svc.ListHostedZonesOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list hosted zones: %w", err)
		}
		for _, hz := range page.HostedZones {
			zone := Zone{
				ID:   strings.TrimPrefix(aws.ToString(hz.Id), "/hostedzone/"),
				Name: aws.ToString(hz.Name),
			}
			if hz.Config != nil {
				zone.Private = hz.Config.PrivateZone
			}
			log := sc.Logger().WithField("zone", zone.Name)

			if !zone.Private {
				logs, err := dns.ListQueryLoggingConfigs(ctx, &r53svc.ListQueryLoggingConfigsInput{
					HostedZoneId: aws.String(zone.ID),
				})
				if err != nil {
					log.WithError(err).Warn("list query logging configs failed")
					zone.QueryLogging = true
				} else {
					zone.QueryLogging = len(logs.QueryLoggingConfigs) > 0
				}

				zone.DanglingCNAMEs, err = s.danglingCNAMEs(ctx, dns, zone.ID)
				if err != nil {
					log.WithError(err).Warn("record set inspection failed")
				}
			}
			snap.Zones = append(snap.Zones, zone)
		}
	}

	regs, err := domains.ListDomains(ctx, &domainssvc.ListDomainsInput{})
	if err != nil {
		sc.Logger().WithError(err).Warn("list registered domains failed")
	} else {
		for _, d := range regs.Domains {
			snap.Domains = append(snap.Domains, RegisteredDomain{
				Name:      aws.ToString(d.DomainName),
				AutoRenew: aws.ToBool(d.AutoRenew),
			})
		}
	}
	return snap, nil
}

// danglingCNAMEs walks the zone's record sets and resolves CNAME targets that
// live under takeover-prone AWS suffixes. A target that no longer resolves is
// claimable by whoever recreates the resource.
func (s *Scanner) danglingCNAMEs(ctx context.Context, dns route53API, zoneID string) (map[string]string, error) {
	dangling := make(map[string]string)
	input := &r53svc.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}
	for {
		out, err := dns.ListResourceRecordSets(ctx, input)
		if err != nil {
			return dangling, err
		}
		for _, rs := range out.ResourceRecordSets {
			if rs.Type != r53types.RRTypeCname {
				continue
			}
			for _, rr := range rs.ResourceRecords {
				target := aws.ToString(rr.Value)
				if !takeoverProne(target) {
					continue
				}
				resolves, err := s.resolve(ctx, target)
				if err == nil && !resolves {
					dangling[aws.ToString(rs.Name)] = target
				}
			}
		}
		if !out.IsTruncated {
			break
		}
		input.StartRecordName = out.NextRecordName
		input.StartRecordType = out.NextRecordType
		input.StartRecordIdentifier = out.NextRecordIdentifier
	}
	if len(dangling) == 0 {
		return nil, nil
	}
	return dangling, nil
}

func takeoverProne(target string) bool {
	if !strings.HasSuffix(target, ".") {
		target += "."
	}
	for _, suffix := range takeoverSuffixes {
		if strings.HasSuffix(target, suffix) {
			return true
		}
	}
	return false
}
