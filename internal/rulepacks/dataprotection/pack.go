// Package dataprotection provides the data-protection rule set (DP_4).
// It groups key rotation and encryption checks for KMS keys, EBS volumes,
// RDS instances and S3 buckets into a single registration call.
package dataprotection

import "github.com/pankaj-dahiya-devops/config-rulesets/internal/rules"

// New returns the data-protection rules in index order.
// Index 2 (public read on S3) is covered by an AWS managed rule and has no
// implementation here.
func New() []rules.Rule {
	return []rules.Rule{
		rules.KMSCMKRotationActivatedRule{},    // 1
		rules.EBSEncryptedRule{},               // 3
		rules.RDSStorageEncryptedRule{},        // 4
		rules.S3BucketEncryptedAtRestRule{},    // 5
		rules.S3BucketEncryptedInTransitRule{}, // 6
	}
}

// Register adds every rule of the set for which enabled returns true.
// A nil enabled func registers all of them.
func Register(reg rules.RuleRegistry, enabled func(ruleID string) bool) {
	for _, r := range New() {
		if enabled != nil && !enabled(r.ID()) {
			continue
		}
		reg.Register(r)
	}
}
