package rules

import "github.com/pankaj-dahiya-devops/config-rulesets/internal/models"

// RDSStorageEncryptedRule checks that RDS instances have storage encryption
// enabled. Encryption can only be chosen at creation time, so the annotation
// points at the snapshot-copy remediation.
type RDSStorageEncryptedRule struct{}

func (r RDSStorageEncryptedRule) ID() string   { return "DP_4_4_RDS_STORAGE_ENCRYPTED" }
func (r RDSStorageEncryptedRule) Index() int   { return 4 }
func (r RDSStorageEncryptedRule) Name() string { return "RDS Storage Encrypted" }

func (r RDSStorageEncryptedRule) ResourceType() models.ResourceType {
	return models.ResourceRDSDBInstance
}

func (r RDSStorageEncryptedRule) Evaluate(_ models.Resource, attrs models.Attributes) (models.Verdict, bool) {
	if attrs[models.AttrDBStatus] == "deleting" {
		return notApplicable()
	}
	if attrs.Bool(models.AttrStorageEncrypted) {
		return compliant("The storage of this DB instance is encrypted.")
	}
	return nonCompliant("The storage of this DB instance is not encrypted. Restore it from an encrypted snapshot copy.")
}
