package config

import (
	"fmt"
	"sort"
)

var validSinks = map[string]struct{}{
	SinkConfig:  {},
	SinkJournal: {},
	SinkBoth:    {},
}

var validLogLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks cfg for semantic correctness and returns every error
// found. An empty slice means the config is valid.
//
// Checks performed:
//   - log.level must be a known level
//   - engine.concurrency must be positive
//   - report.sink must be config, journal or both
//   - report.journal_path must be set when the journal is used
//   - rule IDs under rules must appear in availableRuleIDs
//   - aws.regions must not contain empty entries
func Validate(cfg *Config, availableRuleIDs []string) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	knownIDs := make(map[string]struct{}, len(availableRuleIDs))
	for _, id := range availableRuleIDs {
		knownIDs[id] = struct{}{}
	}

	var errs []error

	if _, ok := validLogLevels[cfg.Log.Level]; !ok {
		errs = append(errs, fmt.Errorf("log.level: invalid value %q; valid values: trace, debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Engine.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("engine.concurrency: must be positive, got %d", cfg.Engine.Concurrency))
	}
	if _, ok := validSinks[cfg.Report.Sink]; !ok {
		errs = append(errs, fmt.Errorf("report.sink: invalid value %q; valid values: config, journal, both", cfg.Report.Sink))
	}
	if cfg.UsesJournal() && cfg.Report.JournalPath == "" {
		errs = append(errs, fmt.Errorf("report.journal_path: required when report.sink is %q", cfg.Report.Sink))
	}
	for i, r := range cfg.AWS.Regions {
		if r == "" {
			errs = append(errs, fmt.Errorf("aws.regions[%d]: empty region", i))
		}
	}

	// Map iteration order is random; sort so the output is stable.
	ruleIDs := make([]string, 0, len(cfg.Rules))
	for id := range cfg.Rules {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)
	for _, id := range ruleIDs {
		if _, ok := knownIDs[id]; !ok {
			errs = append(errs, fmt.Errorf("rules.%s: unknown rule ID", id))
		}
	}

	return errs
}
