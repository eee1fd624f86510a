package rules

import (
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// Rule is a single deterministic compliance check over one resource kind.
// Rules must be stateless and safe to call concurrently.
// They must never call the AWS SDK or any external service: everything they
// need arrives in the attribute set.
type Rule interface {
	// ID returns the unique, stable identifier for this rule
	// (e.g. "DP_4_1_KMS_CMK_ROTATION_ACTIVATED").
	ID() string

	// Index returns the 1-based position of the rule inside its rule set.
	// It is what a discrete-mode rule name selects.
	Index() int

	// Name returns a short human-readable rule name.
	Name() string

	// ResourceType is the kind of resource the rule evaluates.
	ResourceType() models.ResourceType

	// Evaluate returns the verdict for res. ok is false when the rule does
	// not apply to res, in which case no record is reported.
	Evaluate(res models.Resource, attrs models.Attributes) (v models.Verdict, ok bool)
}

// RuleRegistry manages the set of active rules.
type RuleRegistry interface {
	// Register adds a rule to the registry. Panics on duplicate ID or index.
	Register(rule Rule)

	// All returns all registered rules in registration order.
	All() []Rule

	// ByIndex returns the rule registered at a discrete-mode index.
	ByIndex(index int) (Rule, bool)
}

// AttributeReader is implemented by rules that depend on only some of the
// attributes their resource kind describes.
type AttributeReader interface {
	Reads() []string
}

// ReadsAny reports whether rule may depend on any of keys. A rule that does
// not implement AttributeReader depends on every attribute.
func ReadsAny(rule Rule, keys []string) bool {
	ar, ok := rule.(AttributeReader)
	if !ok {
		return len(keys) > 0
	}
	for _, read := range ar.Reads() {
		for _, k := range keys {
			if read == k {
				return true
			}
		}
	}
	return false
}

func compliant(annotation string) (models.Verdict, bool) {
	return models.Verdict{Compliance: models.Compliant, Annotation: annotation}, true
}

func nonCompliant(annotation string) (models.Verdict, bool) {
	return models.Verdict{Compliance: models.NonCompliant, Annotation: annotation}, true
}

func notApplicable() (models.Verdict, bool) {
	return models.Verdict{}, false
}
