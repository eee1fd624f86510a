package report

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	cstypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// maxAnnotationLen is the AWS Config limit for an evaluation annotation.
const maxAnnotationLen = 256

// PutEvaluationsAPIClient is the subset of the AWS Config API used by
// ConfigServiceReporter.
type PutEvaluationsAPIClient interface {
	PutEvaluations(ctx context.Context, params *configservice.PutEvaluationsInput, optFns ...func(*configservice.Options)) (*configservice.PutEvaluationsOutput, error)
}

// ConfigServiceReporter sends each record to AWS Config with one
// PutEvaluations call.
type ConfigServiceReporter struct {
	client PutEvaluationsAPIClient

	// testMode asks AWS Config to validate the evaluation without storing it.
	testMode bool
	log      zerolog.Logger
}

// NewConfigServiceReporter returns a reporter bound to client. The client
// must carry the session credential of the audited account.
func NewConfigServiceReporter(client PutEvaluationsAPIClient, testMode bool, log zerolog.Logger) *ConfigServiceReporter {
	return &ConfigServiceReporter{client: client, testMode: testMode, log: log}
}

// RequiresResultToken implements Reporter.
func (r *ConfigServiceReporter) RequiresResultToken() bool { return true }

// Report implements Reporter.
func (r *ConfigServiceReporter) Report(ctx context.Context, rec models.EvaluationRecord, resultToken string) error {
	if resultToken == "" {
		return reportError(rec, models.ErrMissingResultToken)
	}

	out, err := r.client.PutEvaluations(ctx, &configservice.PutEvaluationsInput{
		ResultToken: aws.String(resultToken),
		TestMode:    r.testMode,
		Evaluations: []cstypes.Evaluation{toEvaluation(rec)},
	})
	if err != nil {
		return reportError(rec, err)
	}
	if out != nil && len(out.FailedEvaluations) > 0 {
		return reportError(rec, errors.New("evaluation rejected by AWS Config"))
	}

	r.log.Debug().
		Str("rule", rec.RuleID).
		Str("resource_type", string(rec.ResourceType)).
		Str("resource_id", rec.ResourceID).
		Str("compliance", string(rec.Compliance)).
		Bool("test_mode", r.testMode).
		Msg("evaluation reported")
	return nil
}

func toEvaluation(rec models.EvaluationRecord) cstypes.Evaluation {
	ts := rec.OrderingTimestamp
	return cstypes.Evaluation{
		ComplianceResourceType: aws.String(string(rec.ResourceType)),
		ComplianceResourceId:   aws.String(rec.ResourceID),
		ComplianceType:         cstypes.ComplianceType(rec.Compliance),
		Annotation:             aws.String(truncate(rec.Annotation, maxAnnotationLen)),
		OrderingTimestamp:      &ts,
	}
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func reportError(rec models.EvaluationRecord, err error) error {
	return &models.ReportError{
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Err:          fmt.Errorf("rule %s: %w", rec.RuleID, err),
	}
}
