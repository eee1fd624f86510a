package common

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/version"
)

// LoadBaseConfig loads the SDK configuration of the process's own identity:
// the Lambda execution role, or the named profile when running from the CLI.
// Pass an empty profile to use the default credential chain.
func LoadBaseConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithAppID(version.UserAgent()),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config for profile %q: %w", profileDisplayName(profile), err)
	}

	// STS and EC2 clients cannot be constructed without a region; the
	// broker overrides it per call anyway.
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// CredentialBroker implementation
// ---------------------------------------------------------------------------

// STSCredentialBroker assumes the audit role through STS.
type STSCredentialBroker struct {
	client STSClient
	log    zerolog.Logger
}

// NewSTSCredentialBroker returns a broker that calls AssumeRole on client.
func NewSTSCredentialBroker(client STSClient, log zerolog.Logger) *STSCredentialBroker {
	return &STSCredentialBroker{client: client, log: log}
}

// Acquire performs exactly one AssumeRole call with the fixed audit session
// name and duration, against the STS endpoint of region.
func (b *STSCredentialBroker) Acquire(ctx context.Context, roleARN, region string) (*models.SessionCredential, error) {
	fail := func(err error) error {
		return &models.DelegationError{RoleARN: roleARN, Region: region, Err: err}
	}

	if region == "" {
		return nil, fail(errors.New("region is required"))
	}
	parsed, err := arn.Parse(roleARN)
	if err != nil {
		return nil, fail(fmt.Errorf("malformed role ARN: %w", err))
	}
	if parsed.Service != "iam" {
		return nil, fail(fmt.Errorf("role ARN must belong to iam, got %q", parsed.Service))
	}

	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(AuditSessionName),
		DurationSeconds: aws.Int32(AuditSessionDuration),
	}, func(o *sts.Options) {
		o.Region = region
	})
	if err != nil {
		return nil, fail(err)
	}
	if out.Credentials == nil {
		return nil, fail(errors.New("STS AssumeRole returned no credentials"))
	}
	if out.Credentials.Expiration == nil || out.Credentials.Expiration.IsZero() {
		return nil, fail(errors.New("STS AssumeRole returned credentials without an expiration"))
	}

	cred := &models.SessionCredential{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Region:          region,
		Expires:         aws.ToTime(out.Credentials.Expiration),
	}
	b.log.Debug().
		Str("role_arn", roleARN).
		Str("region", region).
		Time("expires", cred.Expires).
		Msg("assumed audit role")
	return cred, nil
}

// ---------------------------------------------------------------------------
// RegionLister implementation
// ---------------------------------------------------------------------------

// DefaultRegionLister discovers enabled regions with EC2 DescribeRegions.
// When restrict is non-empty, only regions in that list are returned.
type DefaultRegionLister struct {
	base     aws.Config
	factory  EC2RegionClientFactory
	restrict map[string]struct{}
}

// NewDefaultRegionLister returns a lister that signs with the session
// credential passed to ListRegions and inherits the rest of base.
func NewDefaultRegionLister(base aws.Config, factory EC2RegionClientFactory, restrict []string) *DefaultRegionLister {
	l := &DefaultRegionLister{base: base, factory: factory}
	if len(restrict) > 0 {
		l.restrict = make(map[string]struct{}, len(restrict))
		for _, r := range restrict {
			l.restrict[r] = struct{}{}
		}
	}
	return l
}

// ListRegions returns all regions that are enabled (opted-in) for the
// account, sorted by name so a single run is deterministic.
func (l *DefaultRegionLister) ListRegions(ctx context.Context, cred *models.SessionCredential) ([]string, error) {
	client := l.factory(ConfigForCredential(l.base, cred))
	out, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		// AllRegions false (default) excludes regions the account has not
		// opted into.
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		name := aws.ToString(r.RegionName)
		if name == "" {
			continue
		}
		if l.restrict != nil {
			if _, ok := l.restrict[name]; !ok {
				continue
			}
		}
		regions = append(regions, name)
	}
	sort.Strings(regions)
	return regions, nil
}

// profileDisplayName returns a human-readable profile identifier. An empty
// string (the default profile) is shown as "default".
func profileDisplayName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}
