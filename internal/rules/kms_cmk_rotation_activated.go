package rules

import "github.com/pankaj-dahiya-devops/config-rulesets/internal/models"

const (
	annotationRotationActivated    = "The yearly rotation is activated for this key."
	annotationRotationNotActivated = "The yearly rotation is not activated for this key."
)

// KMSCMKRotationActivatedRule checks that customer-managed KMS keys have
// automatic yearly key rotation enabled. AWS managed keys are rotated by
// the platform and are not evaluated.
type KMSCMKRotationActivatedRule struct{}

func (r KMSCMKRotationActivatedRule) ID() string   { return "DP_4_1_KMS_CMK_ROTATION_ACTIVATED" }
func (r KMSCMKRotationActivatedRule) Index() int   { return 1 }
func (r KMSCMKRotationActivatedRule) Name() string { return "KMS Customer Key Rotation Activated" }

func (r KMSCMKRotationActivatedRule) ResourceType() models.ResourceType {
	return models.ResourceKMSKey
}

// Evaluate skips AWS managed keys and keys whose rotation status cannot be
// read (asymmetric, HMAC, imported material, pending deletion).
func (r KMSCMKRotationActivatedRule) Evaluate(_ models.Resource, attrs models.Attributes) (models.Verdict, bool) {
	if attrs[models.AttrKeyManager] == models.KeyManagerAWS {
		return notApplicable()
	}
	if v, set := attrs[models.AttrRotationSupported]; set && v == "false" {
		return notApplicable()
	}
	if attrs.Bool(models.AttrRotationEnabled) {
		return compliant(annotationRotationActivated)
	}
	return nonCompliant(annotationRotationNotActivated)
}
