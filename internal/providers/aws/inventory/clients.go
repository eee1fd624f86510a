package awsinventory

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	kmssvc "github.com/aws/aws-sdk-go-v2/service/kms"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
)

// ---------------------------------------------------------------------------
// Narrow client interfaces
//
// Each interface lists only the SDK operations used by this package and
// embeds the SDK's *APIClient interface where a paginator is used. The real
// clients satisfy them; tests replace them with stub structs.
// ---------------------------------------------------------------------------

// kmsAPIClient covers key listing, metadata and rotation status.
type kmsAPIClient interface {
	kmssvc.ListKeysAPIClient
	DescribeKey(ctx context.Context, params *kmssvc.DescribeKeyInput, optFns ...func(*kmssvc.Options)) (*kmssvc.DescribeKeyOutput, error)
	GetKeyRotationStatus(ctx context.Context, params *kmssvc.GetKeyRotationStatusInput, optFns ...func(*kmssvc.Options)) (*kmssvc.GetKeyRotationStatusOutput, error)
}

// ec2VolumeAPIClient covers EBS volume listing.
type ec2VolumeAPIClient interface {
	ec2svc.DescribeVolumesAPIClient
}

// rdsAPIClient covers RDS instance listing.
type rdsAPIClient interface {
	rdssvc.DescribeDBInstancesAPIClient
}

// s3APIClient covers bucket listing, default encryption and bucket policy.
type s3APIClient interface {
	s3svc.ListBucketsAPIClient
	GetBucketEncryption(ctx context.Context, params *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error)
	GetBucketPolicy(ctx context.Context, params *s3svc.GetBucketPolicyInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyOutput, error)
}

// ClientFactories builds region-scoped service clients from an aws.Config.
// Injection point: tests replace individual fields with fakes.
type ClientFactories struct {
	KMS func(cfg aws.Config) kmsAPIClient
	EC2 func(cfg aws.Config) ec2VolumeAPIClient
	RDS func(cfg aws.Config) rdsAPIClient
	S3  func(cfg aws.Config) s3APIClient
}

// DefaultClientFactories returns factories for the real AWS SDK clients.
func DefaultClientFactories() ClientFactories {
	return ClientFactories{
		KMS: func(cfg aws.Config) kmsAPIClient { return kmssvc.NewFromConfig(cfg) },
		EC2: func(cfg aws.Config) ec2VolumeAPIClient { return ec2svc.NewFromConfig(cfg) },
		RDS: func(cfg aws.Config) rdsAPIClient { return rdssvc.NewFromConfig(cfg) },
		S3:  func(cfg aws.Config) s3APIClient { return s3svc.NewFromConfig(cfg) },
	}
}
