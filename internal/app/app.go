// Package app wires configuration, AWS clients, rules and reporters into an
// engine. It is shared by the CLI and the Lambda entrypoint.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/config"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/engine"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/metrics"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/common"
	awsinventory "github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/inventory"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/report"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rulepacks/dataprotection"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rules"
)

// Registry returns a registry holding every rule cfg leaves enabled.
func Registry(cfg *config.Config) *rules.DefaultRuleRegistry {
	reg := rules.NewDefaultRuleRegistry()
	dataprotection.Register(reg, cfg.RuleEnabled)
	return reg
}

// AllRuleIDs lists the IDs of every rule the binary ships, enabled or not.
func AllRuleIDs() []string {
	var ids []string
	for _, r := range dataprotection.New() {
		ids = append(ids, r.ID())
	}
	return ids
}

// Runtime is a wired engine plus the resources it holds open.
type Runtime struct {
	Engine  *engine.DefaultEngine
	Metrics *metrics.Recorder
	Config  *config.Config

	journal *report.JournalReporter
}

// Close releases the journal, if one is open.
func (r *Runtime) Close() error {
	if r.journal == nil {
		return nil
	}
	return r.journal.Close()
}

// Run evaluates one invocation event.
func (r *Runtime) Run(ctx context.Context, ev *models.InvocationEvent) (*models.RunSummary, error) {
	return r.Engine.Run(ctx, ev)
}

// Finish writes the run's metrics to the configured textfile.
func (r *Runtime) Finish() error {
	return r.Metrics.WriteTextfile(r.Config.Metrics.Textfile)
}

// Validate returns cfg's validation errors joined into one.
func Validate(cfg *config.Config) error {
	return errors.Join(config.Validate(cfg, AllRuleIDs())...)
}

// New builds a production Runtime from cfg.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Runtime, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	base, err := common.LoadBaseConfig(ctx, cfg.AWS.Profile, "")
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Metrics: metrics.NewRecorder(), Config: cfg}
	if cfg.UsesJournal() {
		rt.journal, err = report.OpenJournal(cfg.Report.JournalPath, log)
		if err != nil {
			return nil, err
		}
	}

	broker := common.NewSTSCredentialBroker(sts.NewFromConfig(base), log)
	regions := common.NewDefaultRegionLister(base, common.NewEC2RegionClient, cfg.AWS.Regions)
	inventory := awsinventory.NewDefaultSet(base, awsinventory.DefaultClientFactories())

	rt.Engine = engine.NewDefaultEngine(
		broker,
		regions,
		inventory,
		Registry(cfg),
		ReporterFactory(base, cfg, rt.journal, log),
		log,
		engine.Options{Concurrency: cfg.Engine.Concurrency, Metrics: rt.Metrics},
	)
	return rt, nil
}

// ReporterFactory returns the engine's reporter builder for cfg's sink.
// The AWS Config reporter signs with the home-region session of the audited
// account; journal may be nil when the journal sink is off.
func ReporterFactory(base aws.Config, cfg *config.Config, journal *report.JournalReporter, log zerolog.Logger) engine.ReporterFactory {
	return func(_ context.Context, home *models.SessionCredential) (report.Reporter, error) {
		var sinks report.MultiReporter
		if cfg.UsesConfigService() {
			client := configservice.NewFromConfig(common.ConfigForCredential(base, home))
			sinks = append(sinks, report.NewConfigServiceReporter(client, cfg.Report.TestMode, log))
		}
		if cfg.UsesJournal() {
			if journal == nil {
				return nil, errors.New("journal sink selected but no journal is open")
			}
			sinks = append(sinks, journal)
		}
		switch len(sinks) {
		case 0:
			return nil, fmt.Errorf("no reporter for sink %q", cfg.Report.Sink)
		case 1:
			return sinks[0], nil
		}
		return sinks, nil
	}
}
