package models

import "strconv"

// ResourceType is the AWS Config resource type tag of an evaluated resource.
type ResourceType string

const (
	ResourceKMSKey        ResourceType = "AWS::KMS::Key"
	ResourceEBSVolume     ResourceType = "AWS::EC2::Volume"
	ResourceRDSDBInstance ResourceType = "AWS::RDS::DBInstance"
	ResourceS3Bucket      ResourceType = "AWS::S3::Bucket"
)

// Resource is a single enumerated cloud resource. ID is the value reported
// as ComplianceResourceId; Handle is what the provider API expects when the
// resource is described again (a key ID, a bucket name, ...).
type Resource struct {
	Type   ResourceType `json:"type"`
	ID     string       `json:"id"`
	Handle string       `json:"handle"`
	Region string       `json:"region"`

	// Attributes captured while listing. DescribeAttributes merges on top of
	// these, so enumerators whose list call already returns everything a
	// rule needs can skip the extra round trip.
	Listed Attributes `json:"listed,omitempty"`
}

// Attribute keys shared between enumerators and rules.
const (
	AttrKeyManager              = "key_manager"
	AttrKeyState                = "key_state"
	AttrRotationEnabled         = "rotation_enabled"
	AttrRotationSupported       = "rotation_supported"
	AttrEncrypted               = "encrypted"
	AttrVolumeState             = "volume_state"
	AttrKMSKeyID                = "kms_key_id"
	AttrStorageEncrypted        = "storage_encrypted"
	AttrEngine                  = "engine"
	AttrDBStatus                = "db_status"
	AttrDefaultEncryption       = "default_encryption"
	AttrSSEAlgorithm            = "sse_algorithm"
	AttrSecureTransportEnforced = "secure_transport_enforced"
)

// Key manager values reported by KMS DescribeKey.
const (
	KeyManagerAWS      = "AWS"
	KeyManagerCustomer = "CUSTOMER"
)

// Attributes is the kind-specific attribute set a rule evaluates.
type Attributes map[string]string

// Bool reports whether key holds a true boolean value. Missing or malformed
// values are false.
func (a Attributes) Bool(key string) bool {
	b, err := strconv.ParseBool(a[key])
	return err == nil && b
}

// SetBool stores b under key.
func (a Attributes) SetBool(key string, b bool) {
	a[key] = strconv.FormatBool(b)
}

// Merge returns a new set holding a's entries overlaid by other's.
func (a Attributes) Merge(other Attributes) Attributes {
	out := make(Attributes, len(a)+len(other))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
