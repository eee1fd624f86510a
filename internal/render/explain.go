// Package render provides presentation helpers for the ruleset CLI.
// It is a pure rendering package: no AWS calls and no rule evaluation.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rules"
)

// RuleInfo is the serialisable description of a registered rule.
type RuleInfo struct {
	Index        int                 `json:"index"`
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	ResourceType models.ResourceType `json:"resource_type"`
	Enabled      bool                `json:"enabled"`
}

// Describe builds the RuleInfo of r.
func Describe(r rules.Rule, enabled bool) RuleInfo {
	return RuleInfo{
		Index:        r.Index(),
		ID:           r.ID(),
		Name:         r.Name(),
		ResourceType: r.ResourceType(),
		Enabled:      enabled,
	}
}

// FindRule returns the rule whose index or ID equals key, or nil.
func FindRule(all []rules.Rule, key string) rules.Rule {
	idx, err := strconv.Atoi(key)
	for _, r := range all {
		if r.ID() == key || (err == nil && r.Index() == idx) {
			return r
		}
	}
	return nil
}

// RenderRuleCatalog writes one line per rule to w, in index order.
//
// Example output:
//
//	INDEX  ID                                     RESOURCE TYPE         ENABLED
//	1      DP_4_1_KMS_CMK_ROTATION_ACTIVATED      AWS::KMS::Key         yes
func RenderRuleCatalog(w io.Writer, infos []RuleInfo) {
	sorted := append([]RuleInfo(nil), infos...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	fmt.Fprintf(w, "%-5s  %-38s  %-20s  %s\n", "INDEX", "ID", "RESOURCE TYPE", "ENABLED")
	for _, info := range sorted {
		enabled := "yes"
		if !info.Enabled {
			enabled = "no"
		}
		fmt.Fprintf(w, "%-5d  %-38s  %-20s  %s\n", info.Index, info.ID, info.ResourceType, enabled)
	}
}

// RenderRuleExplanation writes a rule's description followed by the
// journalled verdicts for it, NON_COMPLIANT resources first. recs may hold
// records of other rules; they are ignored.
//
// Example output:
//
//	RULE 1: DP_4_1_KMS_CMK_ROTATION_ACTIVATED
//	Name: KMS Customer Key Rotation Activated
//	Resource type: AWS::KMS::Key
//
//	NON_COMPLIANT (1):
//	  - arn:aws:kms:eu-west-1:111122223333:key/k2 (eu-west-1)
//	    The yearly rotation is not activated for this key.
//
//	COMPLIANT (1):
//	  - arn:aws:kms:eu-west-1:111122223333:key/k1 (eu-west-1)
func RenderRuleExplanation(w io.Writer, info RuleInfo, recs []models.EvaluationRecord) {
	fmt.Fprintf(w, "RULE %d: %s\n", info.Index, info.ID)
	fmt.Fprintf(w, "Name: %s\n", info.Name)
	fmt.Fprintf(w, "Resource type: %s\n", info.ResourceType)
	if !info.Enabled {
		fmt.Fprintln(w, "Disabled by configuration.")
	}

	byCompliance := map[models.ComplianceType][]models.EvaluationRecord{}
	for _, r := range recs {
		if r.RuleID != info.ID {
			continue
		}
		byCompliance[r.Compliance] = append(byCompliance[r.Compliance], r)
	}
	if len(byCompliance) == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "No journalled evaluations.")
		return
	}

	for _, c := range []models.ComplianceType{models.NonCompliant, models.Compliant} {
		group := byCompliance[c]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ResourceID < group[j].ResourceID })

		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s (%d):\n", c, len(group))
		for _, r := range group {
			fmt.Fprintf(w, "  - %s (%s)\n", r.ResourceID, r.Region)
			if c == models.NonCompliant && r.Annotation != "" {
				fmt.Fprintf(w, "    %s\n", r.Annotation)
			}
		}
	}
}

// WriteExplainJSON writes the explanation as indented JSON to w.
//
// When info is non-nil, the output is:
//
//	{"rule": {...}, "evaluations": [...]}
//
// When info is nil (no rule matched key), the output is:
//
//	{"error": "no rule with index or ID \"key\""}
func WriteExplainJSON(w io.Writer, info *RuleInfo, recs []models.EvaluationRecord, key string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if info == nil {
		return enc.Encode(map[string]string{
			"error": fmt.Sprintf("no rule with index or ID %q", key),
		})
	}
	matching := make([]models.EvaluationRecord, 0, len(recs))
	for _, r := range recs {
		if r.RuleID == info.ID {
			matching = append(matching, r)
		}
	}
	return enc.Encode(map[string]any{
		"rule":        info,
		"evaluations": matching,
	})
}
