package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/metrics"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	awsinventory "github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/inventory"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/report"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rulepacks/dataprotection"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rules"
)

// ── fakes ────────────────────────────────────────────────────────────────────

const roleARN = "arn:aws:iam::111122223333:role/ComplianceAudit"

var (
	notifiedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedNow   = notifiedAt.Add(time.Minute)
)

type fakeBroker struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	expires time.Time
	// expired lists regions whose credential is already past expiry.
	expired map[string]bool
}

func (b *fakeBroker) Acquire(_ context.Context, role, region string) (*models.SessionCredential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, region)
	if err := b.fail[region]; err != nil {
		return nil, &models.DelegationError{RoleARN: role, Region: region, Err: err}
	}
	expires := b.expires
	if b.expired[region] {
		expires = fixedNow.Add(-time.Second)
	}
	return &models.SessionCredential{AccessKeyID: "ASIA" + region, Region: region, Expires: expires}, nil
}

type fakeRegions struct {
	regions []string
	err     error
}

func (f fakeRegions) ListRegions(context.Context, *models.SessionCredential) ([]string, error) {
	return f.regions, f.err
}

// fakeEnumerator serves per-region resources and per-ID described attributes.
type fakeEnumerator struct {
	kind        models.ResourceType
	byRegion    map[string][]models.Resource
	attrs       map[string]models.Attributes
	describeErr map[string]error
	listErr     map[string]error

	mu        sync.Mutex
	described []string
}

func (f *fakeEnumerator) Kind() models.ResourceType { return f.kind }

func (f *fakeEnumerator) ListResources(_ context.Context, cred *models.SessionCredential) ([]models.Resource, error) {
	if err := f.listErr[cred.Region]; err != nil {
		return nil, err
	}
	return f.byRegion[cred.Region], nil
}

func (f *fakeEnumerator) DescribeAttributes(_ context.Context, _ *models.SessionCredential, res models.Resource) (models.Attributes, error) {
	f.mu.Lock()
	f.described = append(f.described, res.ID)
	f.mu.Unlock()
	return f.attrs[res.ID], f.describeErr[res.ID]
}

type captureReporter struct {
	mu       sync.Mutex
	token    bool
	records  []models.EvaluationRecord
	failFor  map[string]bool
	gotToken []string
}

func (c *captureReporter) RequiresResultToken() bool { return c.token }

func (c *captureReporter) Report(_ context.Context, rec models.EvaluationRecord, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gotToken = append(c.gotToken, token)
	if c.failFor[rec.ResourceID] {
		return &models.ReportError{ResourceType: rec.ResourceType, ResourceID: rec.ResourceID, Err: errors.New("rejected")}
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *captureReporter) sorted() []models.EvaluationRecord {
	out := append([]models.EvaluationRecord(nil), c.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

func kmsKey(region, id string) models.Resource {
	return models.Resource{
		Type:   models.ResourceKMSKey,
		ID:     "arn:aws:kms:" + region + ":111122223333:key/" + id,
		Handle: id,
		Region: region,
	}
}

func customerKey(rotation bool) models.Attributes {
	a := models.Attributes{
		models.AttrKeyManager:        models.KeyManagerCustomer,
		models.AttrRotationSupported: "true",
	}
	a.SetBool(models.AttrRotationEnabled, rotation)
	return a
}

func event(ruleName, token string) *models.InvocationEvent {
	return &models.InvocationEvent{
		AccountID:                "111122223333",
		ExecutionRoleARN:         roleARN,
		ConfigRuleARN:            "arn:aws:config:eu-west-1:111122223333:config-rule/config-rule-abc",
		ConfigRuleName:           ruleName,
		ResultToken:              token,
		NotificationCreationTime: notifiedAt,
	}
}

type harness struct {
	broker   *fakeBroker
	regions  fakeRegions
	kms      *fakeEnumerator
	s3       *fakeEnumerator
	reporter *captureReporter
	registry *rules.DefaultRuleRegistry
	metrics  *metrics.Recorder
}

func newHarness(regions ...string) *harness {
	reg := rules.NewDefaultRuleRegistry()
	dataprotection.Register(reg, nil)
	return &harness{
		broker:   &fakeBroker{expires: fixedNow.Add(15 * time.Minute)},
		regions:  fakeRegions{regions: regions},
		kms:      &fakeEnumerator{kind: models.ResourceKMSKey, byRegion: map[string][]models.Resource{}, attrs: map[string]models.Attributes{}},
		s3:       &fakeEnumerator{kind: models.ResourceS3Bucket, byRegion: map[string][]models.Resource{}, attrs: map[string]models.Attributes{}},
		reporter: &captureReporter{token: true},
		registry: reg,
		metrics:  metrics.NewRecorder(),
	}
}

func (h *harness) engine() *DefaultEngine {
	empty := func(kind models.ResourceType) *fakeEnumerator {
		return &fakeEnumerator{kind: kind}
	}
	set := awsinventory.NewSet(
		h.kms,
		empty(models.ResourceEBSVolume),
		empty(models.ResourceRDSDBInstance),
		h.s3,
	)
	return NewDefaultEngine(h.broker, h.regions, set, h.registry,
		func(context.Context, *models.SessionCredential) (report.Reporter, error) { return h.reporter, nil },
		zerolog.Nop(),
		Options{Concurrency: 2, Metrics: h.metrics, Now: func() time.Time { return fixedNow }},
	)
}

// ── end-to-end scenarios ─────────────────────────────────────────────────────

func TestRun_ProviderManagedKeySkipped(t *testing.T) {
	h := newHarness("eu-west-1")
	a, b := kmsKey("eu-west-1", "a"), kmsKey("eu-west-1", "b")
	h.kms.byRegion["eu-west-1"] = []models.Resource{a, b}
	h.kms.attrs[a.ID] = models.Attributes{models.AttrKeyManager: models.KeyManagerAWS}
	h.kms.attrs[b.ID] = customerKey(false)

	summary, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.NoError(t, err)

	require.Len(t, h.reporter.records, 1)
	rec := h.reporter.records[0]
	assert.Equal(t, b.ID, rec.ResourceID)
	assert.Equal(t, models.ResourceKMSKey, rec.ResourceType)
	assert.Equal(t, models.NonCompliant, rec.Compliance)
	assert.Equal(t, "The yearly rotation is not activated for this key.", rec.Annotation)
	assert.True(t, rec.OrderingTimestamp.Equal(notifiedAt))

	assert.Equal(t, "SingleRule", summary.Mode)
	assert.Equal(t, []string{"DP_4_1_KMS_CMK_ROTATION_ACTIVATED"}, summary.RulesRun)
	assert.Equal(t, 1, summary.NonCompliant)
	assert.Equal(t, 1, summary.NotApplicable)
	assert.Equal(t, []string{"tok"}, h.reporter.gotToken)
}

func TestRun_TwoRegionsIndependentOfOrder(t *testing.T) {
	for _, order := range [][]string{{"eu-west-1", "us-east-1"}, {"us-east-1", "eu-west-1"}} {
		h := newHarness(order...)
		k1, k2 := kmsKey("eu-west-1", "k1"), kmsKey("us-east-1", "k2")
		h.kms.byRegion["eu-west-1"] = []models.Resource{k1}
		h.kms.byRegion["us-east-1"] = []models.Resource{k2}
		h.kms.attrs[k1.ID] = customerKey(true)
		h.kms.attrs[k2.ID] = customerKey(true)

		summary, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
		require.NoError(t, err)

		recs := h.reporter.sorted()
		require.Len(t, recs, 2, "order %v", order)
		assert.Equal(t, k1.ID, recs[0].ResourceID)
		assert.Equal(t, k2.ID, recs[1].ResourceID)
		for _, r := range recs {
			assert.Equal(t, models.Compliant, r.Compliance)
			assert.Equal(t, "The yearly rotation is activated for this key.", r.Annotation)
		}
		assert.Equal(t, 2, summary.Compliant)
		assert.ElementsMatch(t, []string{"eu-west-1", "us-east-1"}, summary.Regions)
	}
}

func TestRun_MissingTokenFailsFast(t *testing.T) {
	h := newHarness("eu-west-1")
	k := kmsKey("eu-west-1", "k")
	h.kms.byRegion["eu-west-1"] = []models.Resource{k}
	h.kms.attrs[k.ID] = customerKey(true)

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", ""))
	require.ErrorIs(t, err, models.ErrMissingResultToken)
	assert.Empty(t, h.kms.described, "no resource may be evaluated without a token")
	assert.Empty(t, h.reporter.gotToken)
}

func TestRun_TokenNotNeededForLocalSink(t *testing.T) {
	h := newHarness("eu-west-1")
	h.reporter.token = false
	k := kmsKey("eu-west-1", "k")
	h.kms.byRegion["eu-west-1"] = []models.Resource{k}
	h.kms.attrs[k.ID] = customerKey(true)

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", ""))
	require.NoError(t, err)
	assert.Len(t, h.reporter.records, 1)
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness("eu-west-1")
	k := kmsKey("eu-west-1", "k")
	h.kms.byRegion["eu-west-1"] = []models.Resource{k}
	h.kms.attrs[k.ID] = customerKey(false)
	eng := h.engine()

	ev := event("ruleset-4_1_1", "tok")
	_, err := eng.Run(context.Background(), ev)
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, h.reporter.records, 2)
	assert.Equal(t, h.reporter.records[0], h.reporter.records[1])
}

// ── dispatch ─────────────────────────────────────────────────────────────────

func TestRun_AllRulesWhenNameHasNoIndex(t *testing.T) {
	h := newHarness("eu-west-1")

	summary, err := h.engine().Run(context.Background(), event("data-protection", "tok"))
	require.NoError(t, err)
	assert.Equal(t, "AllRules", summary.Mode)
	assert.Equal(t, h.registry.IDs(), summary.RulesRun)
}

func TestRun_UnknownIndexRunsNothing(t *testing.T) {
	h := newHarness("eu-west-1")

	summary, err := h.engine().Run(context.Background(), event("ruleset-4_1_2", "tok"))
	require.NoError(t, err)
	assert.Empty(t, summary.RulesRun)
	assert.Empty(t, h.reporter.records)
	assert.Equal(t, []string{"eu-west-1"}, h.broker.calls, "only the home credential is acquired")
}

// ── failure isolation ────────────────────────────────────────────────────────

func TestRun_NotFoundAndDescribeFailuresAreSkipped(t *testing.T) {
	h := newHarness("eu-west-1")
	gone, broken, ok := kmsKey("eu-west-1", "gone"), kmsKey("eu-west-1", "broken"), kmsKey("eu-west-1", "ok")
	h.kms.byRegion["eu-west-1"] = []models.Resource{gone, broken, ok}
	h.kms.describeErr = map[string]error{
		gone.ID:   &models.NotFoundError{ResourceType: models.ResourceKMSKey, ResourceID: gone.ID, Err: errors.New("deleted")},
		broken.ID: errors.New("throttled"),
	}
	h.kms.attrs[ok.ID] = customerKey(true)

	summary, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.NoError(t, err)
	require.Len(t, h.reporter.records, 1)
	assert.Equal(t, ok.ID, h.reporter.records[0].ResourceID)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, 1, summary.DescribeFailures)
}

func TestRun_ReportFailureDoesNotStopRun(t *testing.T) {
	h := newHarness("eu-west-1")
	k1, k2 := kmsKey("eu-west-1", "k1"), kmsKey("eu-west-1", "k2")
	h.kms.byRegion["eu-west-1"] = []models.Resource{k1, k2}
	h.kms.attrs[k1.ID] = customerKey(true)
	h.kms.attrs[k2.ID] = customerKey(true)
	h.reporter.failFor = map[string]bool{k1.ID: true}

	summary, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.NoError(t, err)
	require.Len(t, h.reporter.records, 1)
	assert.Equal(t, k2.ID, h.reporter.records[0].ResourceID)
	assert.Equal(t, 1, summary.ReportFailures)
	assert.Equal(t, 1, summary.Reported())
}

func TestRun_HomeDelegationFailureIsFatal(t *testing.T) {
	h := newHarness("eu-west-1")
	h.broker.fail = map[string]error{"eu-west-1": errors.New("AccessDenied")}

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	var de *models.DelegationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "eu-west-1", de.Region)
}

func TestRun_RegionalDelegationFailureIsFatal(t *testing.T) {
	h := newHarness("eu-west-1", "ap-south-1")
	h.broker.fail = map[string]error{"ap-south-1": errors.New("region disabled for STS")}

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	var de *models.DelegationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "ap-south-1", de.Region)
}

func TestRun_ListFailureIsFatal(t *testing.T) {
	h := newHarness("eu-west-1")
	h.kms.listErr = map[string]error{"eu-west-1": errors.New("AccessDeniedException")}

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list AWS::KMS::Key in eu-west-1")
}

func TestRun_RegionListingFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.regions.err = errors.New("UnauthorizedOperation")

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.Error(t, err)
}

func TestRun_ExpiredCredentialAborts(t *testing.T) {
	h := newHarness("eu-west-1")
	h.broker.expires = fixedNow.Add(-time.Second)
	k := kmsKey("eu-west-1", "k")
	h.kms.byRegion["eu-west-1"] = []models.Resource{k}
	h.kms.attrs[k.ID] = customerKey(true)

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.ErrorIs(t, err, models.ErrCredentialExpired)
	assert.Empty(t, h.reporter.records)
}

func TestRun_ExpiredSessionDuringDescribeAborts(t *testing.T) {
	h := newHarness("eu-west-1")
	h.broker.expires = fixedNow.Add(-time.Second)
	k1, k2 := kmsKey("eu-west-1", "k1"), kmsKey("eu-west-1", "k2")
	h.kms.byRegion["eu-west-1"] = []models.Resource{k1, k2}
	expired := fmt.Errorf("%w: api error ExpiredTokenException", models.ErrCredentialExpired)
	h.kms.describeErr = map[string]error{k1.ID: expired, k2.ID: expired}

	summary, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.ErrorIs(t, err, models.ErrCredentialExpired)
	assert.Empty(t, h.kms.described, "no describe is attempted with an expired session")
	assert.Zero(t, summary.DescribeFailures)
	assert.Empty(t, h.reporter.records)
}

func TestRun_ExpiredTokenFromDescribeAborts(t *testing.T) {
	h := newHarness("eu-west-1")
	k1, k2 := kmsKey("eu-west-1", "k1"), kmsKey("eu-west-1", "k2")
	h.kms.byRegion["eu-west-1"] = []models.Resource{k1, k2}
	h.kms.attrs[k2.ID] = customerKey(true)
	h.kms.describeErr = map[string]error{
		k1.ID: fmt.Errorf("%w: api error ExpiredTokenException", models.ErrCredentialExpired),
	}

	summary, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.ErrorIs(t, err, models.ErrCredentialExpired)
	assert.Zero(t, summary.DescribeFailures)
	assert.Empty(t, h.reporter.records)
}

func TestRun_ExpiredRegionalCredentialAborts(t *testing.T) {
	h := newHarness("eu-west-1", "ap-south-1")
	h.broker.expired = map[string]bool{"ap-south-1": true}
	k := kmsKey("ap-south-1", "k")
	h.kms.byRegion["ap-south-1"] = []models.Resource{k}
	h.kms.attrs[k.ID] = customerKey(true)

	_, err := h.engine().Run(context.Background(), event("ruleset-4_1_1", "tok"))
	require.ErrorIs(t, err, models.ErrCredentialExpired)
	assert.NotContains(t, h.kms.described, k.ID)
}

func TestRun_UnreadAttributeFailureKeepsOtherRule(t *testing.T) {
	h := newHarness("eu-west-1")
	bucket := models.Resource{Type: models.ResourceS3Bucket, ID: "logs", Handle: "logs", Region: "eu-west-1"}
	h.s3.byRegion["eu-west-1"] = []models.Resource{bucket}
	h.s3.attrs[bucket.ID] = models.Attributes{
		models.AttrDefaultEncryption: "true",
		models.AttrSSEAlgorithm:      "AES256",
	}
	h.s3.describeErr = map[string]error{bucket.ID: &models.AttributeError{
		ResourceType: models.ResourceS3Bucket,
		ResourceID:   bucket.ID,
		Failed:       map[string]error{models.AttrSecureTransportEnforced: errors.New("AccessDenied")},
	}}

	summary, err := h.engine().Run(context.Background(), event("ruleset", "tok"))
	require.NoError(t, err)

	require.Len(t, h.reporter.records, 1)
	rec := h.reporter.records[0]
	assert.Equal(t, "DP_4_5_S3_BUCKET_ENCRYPTED_AT_REST", rec.RuleID)
	assert.Equal(t, models.Compliant, rec.Compliance)
	assert.Equal(t, 1, summary.DescribeFailures, "the in-transit rule still skips the bucket")
}

func TestRun_InvalidEvent(t *testing.T) {
	h := newHarness("eu-west-1")
	ev := event("ruleset-4_1_1", "tok")
	ev.ExecutionRoleARN = ""

	_, err := h.engine().Run(context.Background(), ev)
	require.ErrorIs(t, err, models.ErrInvalidEvent)
	assert.Empty(t, h.broker.calls)
}

func TestRun_RuleARNWithoutRegion(t *testing.T) {
	h := newHarness("eu-west-1")
	ev := event("ruleset-4_1_1", "tok")
	ev.ConfigRuleARN = "config-rule-abc"

	_, err := h.engine().Run(context.Background(), ev)
	var de *models.DelegationError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
}
