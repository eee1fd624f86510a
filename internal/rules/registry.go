package rules

import (
	"fmt"
)

// DefaultRuleRegistry is a simple, ordered, in-memory registry.
// Register panics on duplicate rule IDs or indices to catch wiring mistakes
// at startup.
type DefaultRuleRegistry struct {
	rules   []Rule
	ids     map[string]struct{}
	indices map[int]Rule
}

// NewDefaultRuleRegistry returns an empty registry ready for rule registration.
func NewDefaultRuleRegistry() *DefaultRuleRegistry {
	return &DefaultRuleRegistry{
		ids:     make(map[string]struct{}),
		indices: make(map[int]Rule),
	}
}

// Register adds rule to the registry.
func (r *DefaultRuleRegistry) Register(rule Rule) {
	if _, exists := r.ids[rule.ID()]; exists {
		panic(fmt.Sprintf("duplicate rule ID: %q", rule.ID()))
	}
	if prev, exists := r.indices[rule.Index()]; exists {
		panic(fmt.Sprintf("rule %q reuses index %d of %q", rule.ID(), rule.Index(), prev.ID()))
	}
	r.rules = append(r.rules, rule)
	r.ids[rule.ID()] = struct{}{}
	r.indices[rule.Index()] = rule
}

// All returns all registered rules in registration order.
func (r *DefaultRuleRegistry) All() []Rule {
	return r.rules
}

// ByIndex returns the rule registered at index.
func (r *DefaultRuleRegistry) ByIndex(index int) (Rule, bool) {
	rule, ok := r.indices[index]
	return rule, ok
}

// IDs returns every registered rule ID in registration order.
func (r *DefaultRuleRegistry) IDs() []string {
	ids := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		ids = append(ids, rule.ID())
	}
	return ids
}
