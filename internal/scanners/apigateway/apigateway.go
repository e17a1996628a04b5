// Package apigateway scans REST APIs, their stages, and custom domains.
package apigateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	apigwsvc "github.com/aws/aws-sdk-go-v2/service/apigateway"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// apiGatewayAPI is the narrow API Gateway surface the scanner needs.
type apiGatewayAPI interface {
	apigwsvc.GetRestApisAPIClient
	GetStages(ctx context.Context, params *apigwsvc.GetStagesInput, optFns ...func(*apigwsvc.Options)) (*apigwsvc.GetStagesOutput, error)
	GetAuthorizers(ctx context.Context, params *apigwsvc.GetAuthorizersInput, optFns ...func(*apigwsvc.Options)) (*apigwsvc.GetAuthorizersOutput, error)
	GetDomainNames(ctx context.Context, params *apigwsvc.GetDomainNamesInput, optFns ...func(*apigwsvc.Options)) (*apigwsvc.GetDomainNamesOutput, error)
}

type clientFactory func(ctx context.Context, sc *scanner.Context, region string) (apiGatewayAPI, error)

func defaultClient(ctx context.Context, sc *scanner.Context, region string) (apiGatewayAPI, error) {
	return common.ClientFor(ctx, sc.Clients, "apigateway", region, func(cfg aws.Config) apiGatewayAPI {
		return apigwsvc.NewFromConfig(cfg)
	})
}

type Scanner struct {
	clients clientFactory
}

func New() *Scanner {
	return &Scanner{clients: defaultClient}
}

func newWithClient(api apiGatewayAPI) *Scanner {
	return &Scanner{clients: func(context.Context, *scanner.Context, string) (apiGatewayAPI, error) {
		return api, nil
	}}
}

func (s *Scanner) ID() string { return "apigateway" }

func (s *Scanner) Checks() []scanner.Check { return scanner.Metas(checks) }

func (s *Scanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	return scanner.ForEachRegion(ctx, sc, s.ID(), "apigateway:apis", func(ctx context.Context, region string) (*Snapshot, error) {
		return s.collect(ctx, sc, region)
	}, checks)
}

// Snapshot is one region's REST API inventory.
type Snapshot struct {
	Account string
	Region  string
	APIs    []API
	Domains []Domain
}

type API struct {
	ID   string
	Name string

	HasAuthorizer bool
	Stages        []Stage
}

type Stage struct {
	Name string

	LoggingEnabled bool
	WAFAttached    bool
	CacheEnabled   bool
	CacheEncrypted bool
}

type Domain struct {
	Name           string
	SecurityPolicy string
}

func (s *Scanner) collect(ctx context.Context, sc *scanner.Context, region string) (*Snapshot, error) {
	client, err := s.clients(ctx, sc, region)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Account: sc.Account, Region: region}
	pager := apigwsvc.NewGetRestApisPaginator(client, &apigwsvc.GetRestApisInput{})
	for pager.HasMorePages() {
		page, err := common.Retry(ctx, "apigateway.GetRestApis", func(ctx context.Context) (*apigwsvc.GetRestApisOutput, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("get rest apis: %w", err)
		}
		for _, item := range page.Items {
			api := API{
				ID:   aws.ToString(item.Id),
				Name: aws.ToString(item.Name),
			}
			log := sc.Logger().WithField("api", api.ID)

			// Authorizer lookup failures stay conservative: assume protected.
			api.HasAuthorizer = true
			auths, err := client.GetAuthorizers(ctx, &apigwsvc.GetAuthorizersInput{RestApiId: item.Id})
			if err != nil {
				log.WithError(err).Warn("get authorizers failed")
			} else {
				api.HasAuthorizer = len(auths.Items) > 0
			}

			stages, err := client.GetStages(ctx, &apigwsvc.GetStagesInput{RestApiId: item.Id})
			if err != nil {
				log.WithError(err).Warn("get stages failed")
			} else {
				for _, st := range stages.Item {
					stage := Stage{
						Name:         aws.ToString(st.StageName),
						WAFAttached:  aws.ToString(st.WebAclArn) != "",
						CacheEnabled: st.CacheClusterEnabled,
					}
					if settings, ok := st.MethodSettings["*/*"]; ok {
						level := aws.ToString(settings.LoggingLevel)
						stage.LoggingEnabled = level != "" && level != "OFF"
						stage.CacheEncrypted = settings.CacheDataEncrypted
					}
					api.Stages = append(api.Stages, stage)
				}
			}
			snap.APIs = append(snap.APIs, api)
		}
	}

	domains, err := client.GetDomainNames(ctx, &apigwsvc.GetDomainNamesInput{})
	if err != nil {
		sc.Logger().WithField("region", region).WithError(err).Warn("get domain names failed")
	} else {
		for _, d := range domains.Items {
			snap.Domains = append(snap.Domains, Domain{
				Name:           aws.ToString(d.DomainName),
				SecurityPolicy: string(d.SecurityPolicy),
			})
		}
	}
	return snap, nil
}
