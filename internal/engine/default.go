package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/metrics"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/common"
	awsinventory "github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/inventory"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/report"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rules"
)

// Options tunes a DefaultEngine. The zero value is usable.
type Options struct {
	// Concurrency bounds the regions evaluated at once per rule.
	Concurrency int

	// Metrics receives run counters. Nil disables them.
	Metrics *metrics.Recorder

	// Now is the clock used for credential expiry checks.
	Now func() time.Time
}

// DefaultEngine is the production implementation of Engine.
type DefaultEngine struct {
	broker      common.CredentialBroker
	regions     common.RegionLister
	inventory   awsinventory.Set
	registry    rules.RuleRegistry
	newReporter ReporterFactory
	log         zerolog.Logger

	concurrency int
	metrics     *metrics.Recorder
	now         func() time.Time
}

// NewDefaultEngine constructs a DefaultEngine wired to the supplied
// collaborators.
func NewDefaultEngine(
	broker common.CredentialBroker,
	regions common.RegionLister,
	inventory awsinventory.Set,
	registry rules.RuleRegistry,
	newReporter ReporterFactory,
	log zerolog.Logger,
	opts Options,
) *DefaultEngine {
	e := &DefaultEngine{
		broker:      broker,
		regions:     regions,
		inventory:   inventory,
		registry:    registry,
		newReporter: newReporter,
		log:         log,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// run carries the state shared by every rule and region of one invocation.
type run struct {
	event    *models.InvocationEvent
	home     *models.SessionCredential
	reporter report.Reporter

	mu      sync.Mutex
	summary *models.RunSummary
}

func (r *run) tally(fn func(s *models.RunSummary)) {
	r.mu.Lock()
	fn(r.summary)
	r.mu.Unlock()
}

// Run implements Engine.
//
// Flow:
//  1. Validate the event and resolve the home region from the rule ARN.
//  2. Assume the audit role in the home region and build the reporter.
//  3. Fail fast when the reporter needs a result token the event lacks.
//  4. Resolve the rule selection and list the enabled regions once.
//  5. For each selected rule, evaluate every region in parallel (bounded).
//
// Delegation, region listing and resource listing failures abort the run.
// A resource that vanished or could not be described is skipped, and a
// record the sink rejected is counted; neither stops the run.
func (e *DefaultEngine) Run(ctx context.Context, event *models.InvocationEvent) (*models.RunSummary, error) {
	started := e.now()
	defer func() { e.metrics.RunFinished(e.now().Sub(started)) }()

	if event == nil {
		return nil, fmt.Errorf("%w: nil event", models.ErrInvalidEvent)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	homeRegion, err := event.HomeRegion()
	if err != nil {
		return nil, &models.DelegationError{RoleARN: event.ExecutionRoleARN, Err: err}
	}

	home, err := e.broker.Acquire(ctx, event.ExecutionRoleARN, homeRegion)
	if err != nil {
		e.log.Error().Err(err).Str("region", homeRegion).Msg("audit role delegation failed")
		return nil, err
	}

	reporter, err := e.newReporter(ctx, home)
	if err != nil {
		return nil, fmt.Errorf("build reporter: %w", err)
	}
	if reporter.RequiresResultToken() && event.ResultToken == "" {
		return nil, models.ErrMissingResultToken
	}

	sel := ParseSelection(event.ConfigRuleName)
	summary := &models.RunSummary{
		Mode:              sel.Mode.String(),
		OrderingTimestamp: event.NotificationCreationTime,
	}

	selected, ok := sel.Resolve(e.registry)
	if !ok {
		e.log.Warn().
			Str("config_rule", event.ConfigRuleName).
			Int("index", sel.Index).
			Msg("no rule registered at selected index")
		return summary, nil
	}
	if len(selected) == 0 {
		return summary, nil
	}

	regions, err := e.regions.ListRegions(ctx, home)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	summary.Regions = regions

	e.log.Info().
		Str("account_id", event.AccountID).
		Str("config_rule", event.ConfigRuleName).
		Str("mode", summary.Mode).
		Int("rules", len(selected)).
		Strs("regions", regions).
		Interface("rule_parameters", event.RuleParameters).
		Msg("evaluation started")

	st := &run{event: event, home: home, reporter: reporter, summary: summary}
	for _, rule := range selected {
		if err := e.runRule(ctx, st, rule, regions); err != nil {
			e.log.Error().Err(err).Str("rule", rule.ID()).Msg("evaluation aborted")
			return summary, err
		}
		summary.RulesRun = append(summary.RulesRun, rule.ID())
	}

	e.log.Info().
		Int("compliant", summary.Compliant).
		Int("non_compliant", summary.NonCompliant).
		Int("not_found", summary.NotFound).
		Int("describe_failures", summary.DescribeFailures).
		Int("report_failures", summary.ReportFailures).
		Msg("evaluation finished")
	return summary, nil
}

// runRule evaluates rule in every region. The first fatal error cancels the
// remaining regions.
func (e *DefaultEngine) runRule(ctx context.Context, st *run, rule rules.Rule, regions []string) error {
	enumerator, ok := e.inventory[rule.ResourceType()]
	if !ok {
		return fmt.Errorf("rule %s: no enumerator for %s", rule.ID(), rule.ResourceType())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, region := range regions {
		g.Go(func() error {
			return e.runRegion(gctx, st, rule, enumerator, region)
		})
	}
	return g.Wait()
}

func (e *DefaultEngine) runRegion(
	ctx context.Context,
	st *run,
	rule rules.Rule,
	enumerator awsinventory.ResourceEnumerator,
	region string,
) error {
	cred, err := e.broker.Acquire(ctx, st.event.ExecutionRoleARN, region)
	if err != nil {
		return err
	}

	resources, err := enumerator.ListResources(ctx, cred)
	if err != nil {
		return fmt.Errorf("rule %s: list %s in %s: %w", rule.ID(), rule.ResourceType(), region, err)
	}
	// Stable order keeps logs and reports reproducible across runs.
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })

	log := e.log.With().Str("rule", rule.ID()).Str("region", region).Logger()
	for _, res := range resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.evaluateResource(ctx, st, rule, enumerator, cred, res, log); err != nil {
			return err
		}
	}
	return nil
}

// evaluateResource describes, evaluates and reports one resource. It only
// returns an error when the run must stop: an expired session is never
// mistaken for a per-resource describe failure.
func (e *DefaultEngine) evaluateResource(
	ctx context.Context,
	st *run,
	rule rules.Rule,
	enumerator awsinventory.ResourceEnumerator,
	cred *models.SessionCredential,
	res models.Resource,
	log zerolog.Logger,
) error {
	if st.home.Expired(e.now()) || cred.Expired(e.now()) {
		return models.ErrCredentialExpired
	}

	described, err := enumerator.DescribeAttributes(ctx, cred, res)
	if errors.Is(err, models.ErrCredentialExpired) {
		return err
	}
	var partial *models.AttributeError
	if errors.As(err, &partial) && !rules.ReadsAny(rule, partial.Attributes()) {
		log.Debug().Err(err).Str("resource_id", res.ID).Msg("unread attributes could not be described")
		err = nil
	}
	if err != nil {
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			log.Debug().Str("resource_id", res.ID).Msg("resource disappeared before describe")
			st.tally(func(s *models.RunSummary) { s.NotFound++ })
			e.metrics.ResourceError(rule.ID(), "not_found")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("resource_id", res.ID).Msg("describe failed; resource skipped")
		st.tally(func(s *models.RunSummary) { s.DescribeFailures++ })
		e.metrics.ResourceError(rule.ID(), "describe")
		return nil
	}

	attrs := res.Listed.Merge(described)
	verdict, applies := rule.Evaluate(res, attrs)
	if !applies {
		st.tally(func(s *models.RunSummary) { s.NotApplicable++ })
		return nil
	}

	if st.home.Expired(e.now()) {
		return models.ErrCredentialExpired
	}

	rec := models.NewEvaluationRecord(rule.ID(), res, verdict, st.event.NotificationCreationTime)
	if err := st.reporter.Report(ctx, rec, st.event.ResultToken); err != nil {
		log.Warn().Err(err).Str("resource_id", res.ID).Msg("report failed")
		st.tally(func(s *models.RunSummary) { s.ReportFailures++ })
		e.metrics.ReportFailure(rule.ID())
		return nil
	}

	st.tally(func(s *models.RunSummary) {
		if verdict.Compliance == models.Compliant {
			s.Compliant++
		} else {
			s.NonCompliant++
		}
	})
	e.metrics.Evaluation(rule.ID(), string(verdict.Compliance))
	log.Debug().
		Str("resource_id", res.ID).
		Str("compliance", string(verdict.Compliance)).
		Msg("evaluation recorded")
	return nil
}
