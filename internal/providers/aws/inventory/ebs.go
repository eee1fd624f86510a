package awsinventory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/common"
)

// EBSVolumeEnumerator enumerates EBS volumes. DescribeVolumes already
// returns the encryption flag, so no per-volume call is needed.
type EBSVolumeEnumerator struct {
	base    aws.Config
	factory func(cfg aws.Config) ec2VolumeAPIClient
}

// NewEBSVolumeEnumerator returns an enumerator building clients with factory.
func NewEBSVolumeEnumerator(base aws.Config, factory func(cfg aws.Config) ec2VolumeAPIClient) *EBSVolumeEnumerator {
	return &EBSVolumeEnumerator{base: base, factory: factory}
}

func (e *EBSVolumeEnumerator) Kind() models.ResourceType { return models.ResourceEBSVolume }

// ListResources pages through DescribeVolumes for the credential's region.
func (e *EBSVolumeEnumerator) ListResources(ctx context.Context, cred *models.SessionCredential) ([]models.Resource, error) {
	client := e.factory(common.ConfigForCredential(e.base, cred))
	paginator := ec2svc.NewDescribeVolumesPaginator(client, &ec2svc.DescribeVolumesInput{})

	var volumes []models.Resource
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes in %s: %w", cred.Region, err)
		}
		for _, v := range page.Volumes {
			volumes = append(volumes, toVolumeResource(v, cred.Region))
		}
	}
	return volumes, nil
}

// DescribeAttributes has nothing to add to the listed attributes.
func (e *EBSVolumeEnumerator) DescribeAttributes(_ context.Context, _ *models.SessionCredential, _ models.Resource) (models.Attributes, error) {
	return models.Attributes{}, nil
}

func toVolumeResource(v ec2types.Volume, region string) models.Resource {
	id := aws.ToString(v.VolumeId)
	attrs := models.Attributes{
		models.AttrVolumeState: string(v.State),
		models.AttrKMSKeyID:    aws.ToString(v.KmsKeyId),
	}
	attrs.SetBool(models.AttrEncrypted, aws.ToBool(v.Encrypted))
	return models.Resource{
		Type:   models.ResourceEBSVolume,
		ID:     id,
		Handle: id,
		Region: region,
		Listed: attrs,
	}
}
