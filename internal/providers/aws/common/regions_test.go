package common

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type fakeRegionsClient struct {
	regions []string
	err     error
}

func (f *fakeRegionsClient) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &ec2.DescribeRegionsOutput{}
	for _, r := range f.regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(r)})
	}
	return out, nil
}

func TestDiscoverRegions_Sorted(t *testing.T) {
	client := &fakeRegionsClient{regions: []string{"us-west-2", "eu-west-1", "us-east-1"}}

	got, err := discoverRegions(context.Background(), client)
	if err != nil {
		t.Fatalf("discoverRegions() error = %v", err)
	}
	want := []string{"eu-west-1", "us-east-1", "us-west-2"}
	if len(got) != len(want) {
		t.Fatalf("got %d regions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("region[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverRegions_Error(t *testing.T) {
	client := &fakeRegionsClient{err: errors.New("access denied")}

	if _, err := discoverRegions(context.Background(), client); err == nil {
		t.Fatal("discoverRegions() succeeded, want error")
	}
}
