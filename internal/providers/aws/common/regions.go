package common

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// regionsAPI is the slice of the EC2 surface region discovery needs.
type regionsAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// DiscoverRegions returns every region enabled (opted in) for the scanned
// account, sorted. EC2 DescribeRegions is a global call, so the client's home
// region does not matter; us-east-1 is used by convention.
func DiscoverRegions(ctx context.Context, f *Factory) ([]string, error) {
	client, err := ClientFor(ctx, f, "ec2", "us-east-1", func(cfg aws.Config) regionsAPI {
		return ec2.NewFromConfig(cfg)
	})
	if err != nil {
		return nil, err
	}
	return discoverRegions(ctx, client)
}

func discoverRegions(ctx context.Context, client regionsAPI) ([]string, error) {
	out, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		// AllRegions false returns only regions the account has opted into.
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("ec2.DescribeRegions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	sort.Strings(regions)
	return regions, nil
}
