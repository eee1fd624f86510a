package awsinventory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/common"
)

const (
	codeNoEncryptionConfig = "ServerSideEncryptionConfigurationNotFoundError"
	codeNoBucketPolicy     = "NoSuchBucketPolicy"
)

// S3BucketEnumerator enumerates S3 buckets. Buckets are global in name but
// regional in residence: ListResources only returns the buckets whose home
// region is the credential's region, so a cross-region run sees each bucket
// exactly once.
type S3BucketEnumerator struct {
	base    aws.Config
	factory func(cfg aws.Config) s3APIClient
}

// NewS3BucketEnumerator returns an enumerator building clients with factory.
func NewS3BucketEnumerator(base aws.Config, factory func(cfg aws.Config) s3APIClient) *S3BucketEnumerator {
	return &S3BucketEnumerator{base: base, factory: factory}
}

func (e *S3BucketEnumerator) Kind() models.ResourceType { return models.ResourceS3Bucket }

// ListResources pages through ListBuckets filtered by BucketRegion.
func (e *S3BucketEnumerator) ListResources(ctx context.Context, cred *models.SessionCredential) ([]models.Resource, error) {
	client := e.factory(common.ConfigForCredential(e.base, cred))
	paginator := s3svc.NewListBucketsPaginator(client, &s3svc.ListBucketsInput{
		BucketRegion: aws.String(cred.Region),
	})

	var buckets []models.Resource
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list buckets in %s: %w", cred.Region, err)
		}
		for _, b := range page.Buckets {
			// Older endpoints ignore the filter; drop foreign buckets here.
			if r := aws.ToString(b.BucketRegion); r != "" && r != cred.Region {
				continue
			}
			name := aws.ToString(b.Name)
			buckets = append(buckets, models.Resource{
				Type:   models.ResourceS3Bucket,
				ID:     name,
				Handle: name,
				Region: cred.Region,
			})
		}
	}
	return buckets, nil
}

// DescribeAttributes reads the default encryption configuration and checks
// whether the bucket policy denies plain-HTTP requests. A missing
// configuration or policy is an attribute value, not an error. When only one
// of the two reads fails, the other attributes are returned together with a
// *models.AttributeError naming the failed ones.
func (e *S3BucketEnumerator) DescribeAttributes(ctx context.Context, cred *models.SessionCredential, res models.Resource) (models.Attributes, error) {
	client := e.factory(common.ConfigForCredential(e.base, cred))
	attrs := models.Attributes{}
	failed := map[string]error{}

	enc, err := client.GetBucketEncryption(ctx, &s3svc.GetBucketEncryptionInput{Bucket: aws.String(res.Handle)})
	switch {
	case err == nil:
		algo := sseAlgorithm(enc)
		attrs.SetBool(models.AttrDefaultEncryption, algo != "")
		attrs[models.AttrSSEAlgorithm] = algo
	case apiErrorCode(err) == codeNoEncryptionConfig:
		attrs.SetBool(models.AttrDefaultEncryption, false)
	default:
		err = classify(fmt.Errorf("get encryption of bucket %s: %w", res.Handle, err), res)
		if resourceLevel(err) {
			return nil, err
		}
		failed[models.AttrDefaultEncryption] = err
	}

	pol, err := client.GetBucketPolicy(ctx, &s3svc.GetBucketPolicyInput{Bucket: aws.String(res.Handle)})
	switch {
	case err == nil:
		attrs.SetBool(models.AttrSecureTransportEnforced, DeniesInsecureTransport(aws.ToString(pol.Policy)))
	case apiErrorCode(err) == codeNoBucketPolicy:
		attrs.SetBool(models.AttrSecureTransportEnforced, false)
	default:
		err = classify(fmt.Errorf("get policy of bucket %s: %w", res.Handle, err), res)
		if resourceLevel(err) {
			return nil, err
		}
		failed[models.AttrSecureTransportEnforced] = err
	}

	if len(failed) > 0 {
		return attrs, &models.AttributeError{ResourceType: res.Type, ResourceID: res.ID, Failed: failed}
	}
	return attrs, nil
}

func sseAlgorithm(out *s3svc.GetBucketEncryptionOutput) string {
	if out == nil || out.ServerSideEncryptionConfiguration == nil {
		return ""
	}
	for _, r := range out.ServerSideEncryptionConfiguration.Rules {
		if r.ApplyServerSideEncryptionByDefault != nil {
			return string(r.ApplyServerSideEncryptionByDefault.SSEAlgorithm)
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Bucket policy inspection
// ---------------------------------------------------------------------------

type policyDocument struct {
	Statement json.RawMessage `json:"Statement"`
}

type policyStatement struct {
	Effect    string                                `json:"Effect"`
	Principal json.RawMessage                       `json:"Principal"`
	Action    json.RawMessage                       `json:"Action"`
	Condition map[string]map[string]json.RawMessage `json:"Condition"`
}

// DeniesInsecureTransport reports whether policy contains a Deny statement
// for every principal and every S3 action, conditioned on
// aws:SecureTransport being false. Unparseable policies are treated as not
// enforcing TLS.
func DeniesInsecureTransport(policy string) bool {
	var doc policyDocument
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return false
	}

	// Statement may be a single object or an array of objects.
	var statements []policyStatement
	if err := json.Unmarshal(doc.Statement, &statements); err != nil {
		var single policyStatement
		if err := json.Unmarshal(doc.Statement, &single); err != nil {
			return false
		}
		statements = []policyStatement{single}
	}

	for _, st := range statements {
		if !strings.EqualFold(st.Effect, "Deny") || !anyPrincipal(st.Principal) || !allS3Actions(st.Action) {
			continue
		}
		for op, kv := range st.Condition {
			if !strings.HasPrefix(op, "Bool") {
				continue
			}
			for key, raw := range kv {
				if strings.EqualFold(key, "aws:SecureTransport") && conditionIsFalse(raw) {
					return true
				}
			}
		}
	}
	return false
}

// anyPrincipal accepts "*", {"AWS": "*"} and {"AWS": ["*"]}.
func anyPrincipal(raw json.RawMessage) bool {
	if values := stringValues(raw); values != nil {
		return slices.Contains(values, "*")
	}
	var byType map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byType); err != nil {
		return false
	}
	return slices.Contains(stringValues(byType["AWS"]), "*")
}

// allS3Actions accepts an action (or action list) covering "s3:*" or "*".
func allS3Actions(raw json.RawMessage) bool {
	for _, a := range stringValues(raw) {
		if a == "*" || strings.EqualFold(a, "s3:*") {
			return true
		}
	}
	return false
}

// stringValues decodes a JSON string or string list. It returns nil for any
// other shape.
func stringValues(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	return nil
}

// conditionIsFalse accepts "false", false, or a list containing either.
func conditionIsFalse(raw json.RawMessage) bool {
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		var single any
		if err := json.Unmarshal(raw, &single); err != nil {
			return false
		}
		values = []any{single}
	}
	for _, v := range values {
		switch t := v.(type) {
		case bool:
			if !t {
				return true
			}
		case string:
			if strings.EqualFold(t, "false") {
				return true
			}
		}
	}
	return false
}
