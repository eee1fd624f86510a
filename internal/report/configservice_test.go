package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	cstypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

type fakeConfigService struct {
	calls  []*configservice.PutEvaluationsInput
	err    error
	failed []cstypes.Evaluation
}

func (f *fakeConfigService) PutEvaluations(_ context.Context, params *configservice.PutEvaluationsInput, _ ...func(*configservice.Options)) (*configservice.PutEvaluationsOutput, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &configservice.PutEvaluationsOutput{FailedEvaluations: f.failed}, nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRecord() models.EvaluationRecord {
	return models.EvaluationRecord{
		RuleID:            "DP_4_1_KMS_CMK_ROTATION_ACTIVATED",
		ResourceType:      models.ResourceKMSKey,
		ResourceID:        "arn:aws:kms:eu-west-1:111122223333:key/k1",
		Region:            "eu-west-1",
		Compliance:        models.NonCompliant,
		Annotation:        "The yearly rotation is not activated for this key.",
		OrderingTimestamp: t0,
	}
}

func TestConfigServiceReporter_SendsOneEvaluation(t *testing.T) {
	f := &fakeConfigService{}
	r := NewConfigServiceReporter(f, true, zerolog.Nop())

	require.NoError(t, r.Report(context.Background(), sampleRecord(), "token-1"))
	require.Len(t, f.calls, 1)

	in := f.calls[0]
	assert.Equal(t, "token-1", aws.ToString(in.ResultToken))
	assert.True(t, in.TestMode)
	require.Len(t, in.Evaluations, 1)

	ev := in.Evaluations[0]
	assert.Equal(t, "AWS::KMS::Key", aws.ToString(ev.ComplianceResourceType))
	assert.Equal(t, "arn:aws:kms:eu-west-1:111122223333:key/k1", aws.ToString(ev.ComplianceResourceId))
	assert.Equal(t, cstypes.ComplianceTypeNonCompliant, ev.ComplianceType)
	assert.Equal(t, t0, aws.ToTime(ev.OrderingTimestamp))
}

func TestConfigServiceReporter_RequiresToken(t *testing.T) {
	f := &fakeConfigService{}
	r := NewConfigServiceReporter(f, false, zerolog.Nop())

	assert.True(t, r.RequiresResultToken())
	err := r.Report(context.Background(), sampleRecord(), "")
	assert.ErrorIs(t, err, models.ErrMissingResultToken)
	assert.Empty(t, f.calls)
}

func TestConfigServiceReporter_TransportFailure(t *testing.T) {
	r := NewConfigServiceReporter(&fakeConfigService{err: errors.New("throttled")}, false, zerolog.Nop())

	err := r.Report(context.Background(), sampleRecord(), "tok")
	var re *models.ReportError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, models.ResourceKMSKey, re.ResourceType)
}

func TestConfigServiceReporter_RejectedEvaluation(t *testing.T) {
	f := &fakeConfigService{failed: []cstypes.Evaluation{{ComplianceResourceId: aws.String("k1")}}}
	r := NewConfigServiceReporter(f, false, zerolog.Nop())

	var re *models.ReportError
	assert.ErrorAs(t, r.Report(context.Background(), sampleRecord(), "tok"), &re)
}

func TestConfigServiceReporter_TruncatesAnnotation(t *testing.T) {
	f := &fakeConfigService{}
	rec := sampleRecord()
	rec.Annotation = strings.Repeat("é", 200)

	require.NoError(t, NewConfigServiceReporter(f, false, zerolog.Nop()).Report(context.Background(), rec, "tok"))
	got := aws.ToString(f.calls[0].Evaluations[0].Annotation)
	assert.LessOrEqual(t, len(got), maxAnnotationLen)
	assert.True(t, strings.HasPrefix(rec.Annotation, got))
	assert.Equal(t, 128, len([]rune(got)))
}
