// Command ruleset-lambda is the AWS Lambda entrypoint invoked by AWS Config
// for the custom rule set. Configuration comes from the file named by
// $RULESET_CONFIG and the RULESET_* environment overrides.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/app"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/config"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/logging"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// session is one wired evaluation run. *app.Runtime satisfies it.
type session interface {
	Run(ctx context.Context, ev *models.InvocationEvent) (*models.RunSummary, error)
	Finish() error
	Close() error
}

type handler struct {
	log  zerolog.Logger
	open func(ctx context.Context) (session, error)
}

// Handle evaluates a single AWS Config rule event.
func (h *handler) Handle(ctx context.Context, payload json.RawMessage) (*models.RunSummary, error) {
	event, err := models.ParseInvocationEvent(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("rejecting invocation")
		return nil, err
	}
	log := h.log.With().
		Str("rule_name", event.ConfigRuleName).
		Str("account_id", event.AccountID).
		Str("message_type", event.MessageType).
		Logger()

	s, err := h.open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("build runtime")
		return nil, err
	}
	defer s.Close()

	summary, runErr := s.Run(ctx, event)
	if err := s.Finish(); err != nil {
		log.Warn().Err(err).Msg("write metrics textfile")
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("evaluation failed")
		return nil, runErr
	}

	log.Info().
		Str("mode", summary.Mode).
		Strs("rules", summary.RulesRun).
		Int("compliant", summary.Compliant).
		Int("non_compliant", summary.NonCompliant).
		Int("report_failures", summary.ReportFailures).
		Msg("evaluation complete")
	return summary, nil
}

// loadConfig reads the config file named by $RULESET_CONFIG, if any, and
// applies the environment overrides.
func loadConfig(getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(getenv(config.EnvConfigPath))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(getenv)
	return cfg, nil
}

func newHandler(cfg *config.Config, log zerolog.Logger) *handler {
	return &handler{
		log: log,
		open: func(ctx context.Context) (session, error) {
			rt, err := app.New(ctx, cfg, log)
			if err != nil {
				return nil, err
			}
			return rt, nil
		},
	}
}

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		boot := logging.New(config.DefaultLogLevel, "ruleset-lambda")
		boot.Fatal().Err(err).Msg("load configuration")
	}
	log := logging.New(cfg.Log.Level, "ruleset-lambda")
	if err := app.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	lambda.Start(newHandler(cfg, log).Handle)
}
