package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// ---------------------------------------------------------------------------
// Per-service client interfaces
//
// Each interface covers only the operations used by this package, so unit
// tests can satisfy them with a small struct returning canned data.
// ---------------------------------------------------------------------------

// STSClient is the subset of STS operations used by the credential broker.
type STSClient interface {
	AssumeRole(
		ctx context.Context,
		params *sts.AssumeRoleInput,
		optFns ...func(*sts.Options),
	) (*sts.AssumeRoleOutput, error)
}

// EC2RegionClient is the subset of EC2 operations used for region discovery.
type EC2RegionClient interface {
	DescribeRegions(
		ctx context.Context,
		params *ec2.DescribeRegionsInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeRegionsOutput, error)
}

// EC2RegionClientFactory builds a region-discovery client from a config.
// Swap it in tests to inject a fake.
type EC2RegionClientFactory func(cfg aws.Config) EC2RegionClient

// NewEC2RegionClient is the production EC2RegionClientFactory.
func NewEC2RegionClient(cfg aws.Config) EC2RegionClient {
	return ec2.NewFromConfig(cfg)
}

// ConfigForCredential returns a copy of base that signs with cred and
// targets cred.Region. Everything else (retryer, HTTP client, logger) is
// inherited from base.
func ConfigForCredential(base aws.Config, cred *models.SessionCredential) aws.Config {
	cfg := base.Copy()
	cfg.Region = cred.Region
	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		cred.AccessKeyID,
		cred.SecretAccessKey,
		cred.SessionToken,
	))
	return cfg
}
