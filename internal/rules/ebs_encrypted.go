package rules

import "github.com/pankaj-dahiya-devops/config-rulesets/internal/models"

// EBSEncryptedRule checks that EBS volumes are encrypted at rest.
// Volumes that are being deleted carry no compliance signal.
type EBSEncryptedRule struct{}

func (r EBSEncryptedRule) ID() string   { return "DP_4_3_EBS_ENCRYPTED" }
func (r EBSEncryptedRule) Index() int   { return 3 }
func (r EBSEncryptedRule) Name() string { return "EBS Volume Encrypted" }

func (r EBSEncryptedRule) ResourceType() models.ResourceType {
	return models.ResourceEBSVolume
}

func (r EBSEncryptedRule) Evaluate(_ models.Resource, attrs models.Attributes) (models.Verdict, bool) {
	switch attrs[models.AttrVolumeState] {
	case "deleting", "deleted":
		return notApplicable()
	}
	if attrs.Bool(models.AttrEncrypted) {
		return compliant("The volume is encrypted.")
	}
	return nonCompliant("The volume is not encrypted.")
}
