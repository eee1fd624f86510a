package rules

import "github.com/pankaj-dahiya-devops/config-rulesets/internal/models"

// S3BucketEncryptedAtRestRule checks that a bucket has a default server-side
// encryption configuration, so objects uploaded without SSE headers are
// still encrypted.
type S3BucketEncryptedAtRestRule struct{}

func (r S3BucketEncryptedAtRestRule) ID() string   { return "DP_4_5_S3_BUCKET_ENCRYPTED_AT_REST" }
func (r S3BucketEncryptedAtRestRule) Index() int   { return 5 }
func (r S3BucketEncryptedAtRestRule) Name() string { return "S3 Bucket Encrypted At Rest" }

func (r S3BucketEncryptedAtRestRule) ResourceType() models.ResourceType {
	return models.ResourceS3Bucket
}

func (r S3BucketEncryptedAtRestRule) Reads() []string {
	return []string{models.AttrDefaultEncryption, models.AttrSSEAlgorithm}
}

func (r S3BucketEncryptedAtRestRule) Evaluate(_ models.Resource, attrs models.Attributes) (models.Verdict, bool) {
	if attrs.Bool(models.AttrDefaultEncryption) {
		return compliant("Default encryption (" + attrs[models.AttrSSEAlgorithm] + ") is enabled on this bucket.")
	}
	return nonCompliant("Default encryption is not enabled on this bucket.")
}

// S3BucketEncryptedInTransitRule checks that the bucket policy denies every
// request not made over TLS (aws:SecureTransport = false).
type S3BucketEncryptedInTransitRule struct{}

func (r S3BucketEncryptedInTransitRule) ID() string   { return "DP_4_6_S3_BUCKET_ENCRYPTED_IN_TRANSIT" }
func (r S3BucketEncryptedInTransitRule) Index() int   { return 6 }
func (r S3BucketEncryptedInTransitRule) Name() string { return "S3 Bucket Encrypted In Transit" }

func (r S3BucketEncryptedInTransitRule) ResourceType() models.ResourceType {
	return models.ResourceS3Bucket
}

func (r S3BucketEncryptedInTransitRule) Reads() []string {
	return []string{models.AttrSecureTransportEnforced}
}

func (r S3BucketEncryptedInTransitRule) Evaluate(_ models.Resource, attrs models.Attributes) (models.Verdict, bool) {
	if attrs.Bool(models.AttrSecureTransportEnforced) {
		return compliant("The bucket policy denies requests made without TLS.")
	}
	return nonCompliant("The bucket policy does not deny requests made without TLS (aws:SecureTransport).")
}
