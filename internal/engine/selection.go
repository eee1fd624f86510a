package engine

import (
	"strconv"
	"strings"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rules"
)

// Mode is the dispatch mode derived from a Config rule name.
type Mode int

const (
	// ModeAllRules runs every registered rule.
	ModeAllRules Mode = iota
	// ModeSingleRule runs the rule at Selection.Index.
	ModeSingleRule
)

func (m Mode) String() string {
	if m == ModeSingleRule {
		return "SingleRule"
	}
	return "AllRules"
}

// Selection is the parsed rule-name selector.
type Selection struct {
	Mode  Mode
	Index int
}

// ParseSelection reads the discrete rule index from a Config rule name of the
// form "<prefix>-<a>_<b>_<index>[_...]" (e.g. "ruleset-4_1_3" selects index 3).
// Any name that does not match runs all rules.
func ParseSelection(ruleName string) Selection {
	dashed := strings.Split(ruleName, "-")
	if len(dashed) < 2 {
		return Selection{Mode: ModeAllRules}
	}
	parts := strings.Split(dashed[1], "_")
	if len(parts) < 3 {
		return Selection{Mode: ModeAllRules}
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return Selection{Mode: ModeAllRules}
	}
	return Selection{Mode: ModeSingleRule, Index: idx}
}

// Resolve returns the rules the selection runs, in registration order.
// ok is false when a single rule was selected but no rule has that index.
func (s Selection) Resolve(reg rules.RuleRegistry) (selected []rules.Rule, ok bool) {
	if s.Mode == ModeAllRules {
		return reg.All(), true
	}
	r, found := reg.ByIndex(s.Index)
	if !found {
		return nil, false
	}
	return []rules.Rule{r}, true
}
