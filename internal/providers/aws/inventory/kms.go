package awsinventory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	kmssvc "github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/common"
)

// rotationUnsupportedCodes are GetKeyRotationStatus errors that describe the
// key rather than the call.
var rotationUnsupportedCodes = map[string]struct{}{
	"UnsupportedOperationException": {},
	"KMSInvalidStateException":      {},
}

// KMSKeyEnumerator enumerates KMS keys. Rotation status is only fetched for
// customer-managed keys.
type KMSKeyEnumerator struct {
	base    aws.Config
	factory func(cfg aws.Config) kmsAPIClient
}

// NewKMSKeyEnumerator returns an enumerator building clients with factory.
func NewKMSKeyEnumerator(base aws.Config, factory func(cfg aws.Config) kmsAPIClient) *KMSKeyEnumerator {
	return &KMSKeyEnumerator{base: base, factory: factory}
}

func (e *KMSKeyEnumerator) Kind() models.ResourceType { return models.ResourceKMSKey }

// ListResources pages through ListKeys. The key ARN is the reported
// resource ID; the key ID is kept as the describe handle.
func (e *KMSKeyEnumerator) ListResources(ctx context.Context, cred *models.SessionCredential) ([]models.Resource, error) {
	client := e.factory(common.ConfigForCredential(e.base, cred))
	paginator := kmssvc.NewListKeysPaginator(client, &kmssvc.ListKeysInput{})

	var keys []models.Resource
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list KMS keys in %s: %w", cred.Region, err)
		}
		for _, k := range page.Keys {
			keys = append(keys, models.Resource{
				Type:   models.ResourceKMSKey,
				ID:     aws.ToString(k.KeyArn),
				Handle: aws.ToString(k.KeyId),
				Region: cred.Region,
			})
		}
	}
	return keys, nil
}

// DescribeAttributes reads the key manager and state, then the rotation
// status for customer-managed keys only.
func (e *KMSKeyEnumerator) DescribeAttributes(ctx context.Context, cred *models.SessionCredential, res models.Resource) (models.Attributes, error) {
	client := e.factory(common.ConfigForCredential(e.base, cred))

	desc, err := client.DescribeKey(ctx, &kmssvc.DescribeKeyInput{KeyId: aws.String(res.Handle)})
	if err != nil {
		return nil, classify(fmt.Errorf("describe key %s: %w", res.Handle, err), res)
	}
	if desc.KeyMetadata == nil {
		return nil, fmt.Errorf("describe key %s: empty metadata", res.Handle)
	}

	attrs := models.Attributes{
		models.AttrKeyManager: string(desc.KeyMetadata.KeyManager),
		models.AttrKeyState:   string(desc.KeyMetadata.KeyState),
	}
	if desc.KeyMetadata.KeyManager != kmstypes.KeyManagerTypeCustomer {
		return attrs, nil
	}

	rot, err := client.GetKeyRotationStatus(ctx, &kmssvc.GetKeyRotationStatusInput{KeyId: aws.String(res.Handle)})
	if err != nil {
		if _, unsupported := rotationUnsupportedCodes[apiErrorCode(err)]; unsupported {
			attrs.SetBool(models.AttrRotationSupported, false)
			return attrs, nil
		}
		return nil, classify(fmt.Errorf("get rotation status of key %s: %w", res.Handle, err), res)
	}
	attrs.SetBool(models.AttrRotationSupported, true)
	attrs.SetBool(models.AttrRotationEnabled, rot.KeyRotationEnabled)
	return attrs, nil
}
