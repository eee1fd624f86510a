package awsinventory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/common"
)

// RDSInstanceEnumerator enumerates RDS DB instances. AWS Config identifies
// AWS::RDS::DBInstance by its DbiResourceId, not by the instance name, so the
// reported ID and the describe handle differ.
type RDSInstanceEnumerator struct {
	base    aws.Config
	factory func(cfg aws.Config) rdsAPIClient
}

// NewRDSInstanceEnumerator returns an enumerator building clients with factory.
func NewRDSInstanceEnumerator(base aws.Config, factory func(cfg aws.Config) rdsAPIClient) *RDSInstanceEnumerator {
	return &RDSInstanceEnumerator{base: base, factory: factory}
}

func (e *RDSInstanceEnumerator) Kind() models.ResourceType { return models.ResourceRDSDBInstance }

// ListResources pages through DescribeDBInstances for the credential's region.
func (e *RDSInstanceEnumerator) ListResources(ctx context.Context, cred *models.SessionCredential) ([]models.Resource, error) {
	client := e.factory(common.ConfigForCredential(e.base, cred))
	paginator := rdssvc.NewDescribeDBInstancesPaginator(client, &rdssvc.DescribeDBInstancesInput{})

	var instances []models.Resource
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe DB instances in %s: %w", cred.Region, err)
		}
		for _, db := range page.DBInstances {
			instances = append(instances, toDBInstanceResource(db, cred.Region))
		}
	}
	return instances, nil
}

// DescribeAttributes has nothing to add to the listed attributes.
func (e *RDSInstanceEnumerator) DescribeAttributes(_ context.Context, _ *models.SessionCredential, _ models.Resource) (models.Attributes, error) {
	return models.Attributes{}, nil
}

func toDBInstanceResource(db rdstypes.DBInstance, region string) models.Resource {
	id := aws.ToString(db.DbiResourceId)
	if id == "" {
		id = aws.ToString(db.DBInstanceIdentifier)
	}
	attrs := models.Attributes{
		models.AttrEngine:   aws.ToString(db.Engine),
		models.AttrDBStatus: aws.ToString(db.DBInstanceStatus),
	}
	attrs.SetBool(models.AttrStorageEncrypted, aws.ToBool(db.StorageEncrypted))
	return models.Resource{
		Type:   models.ResourceRDSDBInstance,
		ID:     id,
		Handle: aws.ToString(db.DBInstanceIdentifier),
		Region: region,
		Listed: attrs,
	}
}
