package models

import "time"

// ComplianceType is the verdict of one rule against one resource.
type ComplianceType string

const (
	Compliant    ComplianceType = "COMPLIANT"
	NonCompliant ComplianceType = "NON_COMPLIANT"
)

// Verdict is the pure output of a rule evaluation. The ordering timestamp is
// attached afterwards by the engine when the Verdict becomes a record.
type Verdict struct {
	Compliance ComplianceType `json:"compliance"`
	Annotation string         `json:"annotation"`
}

// EvaluationRecord is a single verdict addressed to the compliance sink.
// It is the atomic output unit of the engine and is reported exactly once.
type EvaluationRecord struct {
	RuleID            string         `json:"rule_id"`
	ResourceType      ResourceType   `json:"compliance_resource_type"`
	ResourceID        string         `json:"compliance_resource_id"`
	Region            string         `json:"region"`
	Compliance        ComplianceType `json:"compliance_type"`
	Annotation        string         `json:"annotation"`
	OrderingTimestamp time.Time      `json:"ordering_timestamp"`
}

// NewEvaluationRecord stamps v with the run's ordering timestamp.
func NewEvaluationRecord(ruleID string, res Resource, v Verdict, orderedAt time.Time) EvaluationRecord {
	return EvaluationRecord{
		RuleID:            ruleID,
		ResourceType:      res.Type,
		ResourceID:        res.ID,
		Region:            res.Region,
		Compliance:        v.Compliance,
		Annotation:        v.Annotation,
		OrderingTimestamp: orderedAt,
	}
}

// RunSummary aggregates the outcome of one invocation. It is informational
// only: the records delivered to the sink are the real output of a run.
type RunSummary struct {
	Mode              string    `json:"mode"`
	RulesRun          []string  `json:"rules_run"`
	Regions           []string  `json:"regions"`
	OrderingTimestamp time.Time `json:"ordering_timestamp"`
	Compliant         int       `json:"compliant"`
	NonCompliant      int       `json:"non_compliant"`
	NotApplicable     int       `json:"not_applicable"`
	NotFound          int       `json:"not_found"`
	DescribeFailures  int       `json:"describe_failures"`
	ReportFailures    int       `json:"report_failures"`
}

// Reported returns the number of records the sink accepted.
func (s *RunSummary) Reported() int {
	return s.Compliant + s.NonCompliant
}
