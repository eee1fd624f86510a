// Package awsinventory enumerates the AWS resources that compliance rules
// evaluate. Enumerators are read-only and idempotent: every call may be
// retried safely. They never apply rule logic; they only turn provider
// responses into models.Resource values and attribute sets.
package awsinventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// ResourceEnumerator lists and describes the resources of one kind.
//
// The credential passed to every method carries the target region.
// ListResources pages through the provider API internally and returns the
// complete, possibly empty, set for that region.
// DescribeAttributes returns *models.NotFoundError when the resource has
// disappeared since it was listed.
type ResourceEnumerator interface {
	Kind() models.ResourceType
	ListResources(ctx context.Context, cred *models.SessionCredential) ([]models.Resource, error)
	DescribeAttributes(ctx context.Context, cred *models.SessionCredential, res models.Resource) (models.Attributes, error)
}

// Set maps a resource kind to its enumerator.
type Set map[models.ResourceType]ResourceEnumerator

// NewSet indexes enumerators by Kind. A later enumerator for the same kind
// replaces an earlier one.
func NewSet(enumerators ...ResourceEnumerator) Set {
	s := make(Set, len(enumerators))
	for _, e := range enumerators {
		s[e.Kind()] = e
	}
	return s
}

// NewDefaultSet returns production enumerators for every supported kind.
// base supplies everything except credentials and region, which come from
// the session credential of each call.
func NewDefaultSet(base aws.Config, f ClientFactories) Set {
	return NewSet(
		NewKMSKeyEnumerator(base, f.KMS),
		NewEBSVolumeEnumerator(base, f.EC2),
		NewRDSInstanceEnumerator(base, f.RDS),
		NewS3BucketEnumerator(base, f.S3),
	)
}

// Kinds returns the kinds in s in a stable order.
func (s Set) Kinds() []models.ResourceType {
	kinds := make([]models.ResourceType, 0, len(s))
	for k := range s {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// notFoundCodes are the API error codes meaning "the resource is gone".
var notFoundCodes = map[string]struct{}{
	"NotFoundException":       {}, // KMS
	"NoSuchBucket":            {}, // S3
	"DBInstanceNotFound":      {}, // RDS
	"DBInstanceNotFoundFault": {}, // RDS
	"InvalidVolume.NotFound":  {}, // EC2
}

// apiErrorCode returns the smithy API error code of err, or "".
func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// expiredCodes are the API error codes of a session that is no longer valid.
var expiredCodes = map[string]struct{}{
	"ExpiredToken":          {},
	"ExpiredTokenException": {},
	"RequestExpired":        {},
}

// classify wraps err in a *models.NotFoundError when its code says the
// resource vanished, marks it models.ErrCredentialExpired when the session
// ran out, and returns it unchanged otherwise.
func classify(err error, res models.Resource) error {
	code := apiErrorCode(err)
	if _, gone := notFoundCodes[code]; gone {
		return &models.NotFoundError{ResourceType: res.Type, ResourceID: res.ID, Err: err}
	}
	if _, expired := expiredCodes[code]; expired {
		return fmt.Errorf("%w: %w", models.ErrCredentialExpired, err)
	}
	return err
}

// resourceLevel reports whether err concerns the whole resource rather than
// a single attribute.
func resourceLevel(err error) bool {
	var nf *models.NotFoundError
	return errors.As(err, &nf) || errors.Is(err, models.ErrCredentialExpired)
}
