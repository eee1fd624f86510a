package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/app"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/config"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/logging"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/output"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/render"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/report"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/rulepacks/dataprotection"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ruleset",
		Short:         "Evaluate AWS Config compliance rule sets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to the ruleset YAML config (default: $RULESET_CONFIG)")
	root.AddCommand(
		newEvaluateCmd(),
		newRulesCmd(),
		newExplainCmd(),
		newJournalCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// loadConfig resolves --config (or $RULESET_CONFIG), loads the file and
// applies environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// evaluateFlags holds the evaluate flags that override configuration.
type evaluateFlags struct {
	event           string
	profile         string
	regions         []string
	sink            string
	journal         string
	testMode        bool
	metricsTextfile string
	logLevel        string
	format          string
}

// apply copies every flag the user set onto cfg.
func (f evaluateFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("profile") {
		cfg.AWS.Profile = f.profile
	}
	if changed("region") {
		cfg.AWS.Regions = f.regions
	}
	if changed("sink") {
		cfg.Report.Sink = f.sink
	}
	if changed("journal") {
		cfg.Report.JournalPath = f.journal
	}
	if changed("test-mode") {
		cfg.Report.TestMode = f.testMode
	}
	if changed("metrics-textfile") {
		cfg.Metrics.Textfile = f.metricsTextfile
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
}

func newEvaluateCmd() *cobra.Command {
	var flags evaluateFlags

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the rule set for one AWS Config rule event",
		Long: `Reads an AWS Config custom rule event (the Lambda payload) from a file,
or from stdin with --event -, assumes the event's execution role and reports
one evaluation per resource to the configured sink.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

			data, err := readEvent(flags.event, cmd.InOrStdin())
			if err != nil {
				return err
			}
			event, err := models.ParseInvocationEvent(data)
			if err != nil {
				return err
			}

			log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "ruleset")
			rt, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			summary, runErr := rt.Engine.Run(cmd.Context(), event)
			if err := rt.Finish(); err != nil {
				log.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("write metrics textfile")
			}
			if runErr != nil {
				return fmt.Errorf("evaluation failed: %w", runErr)
			}
			return printSummary(cmd.OutOrStdout(), summary, flags.format)
		},
	}

	cmd.Flags().StringVar(&flags.event, "event", "", `Path to the Config rule event JSON, or "-" for stdin`)
	cmd.Flags().StringVar(&flags.profile, "profile", "", "AWS profile of the caller (default: credential chain)")
	cmd.Flags().StringSliceVar(&flags.regions, "region", nil, "Restrict evaluation to these region(s) (default: all enabled regions)")
	cmd.Flags().StringVar(&flags.sink, "sink", "", "Where to report: config, journal or both")
	cmd.Flags().StringVar(&flags.journal, "journal", "", "Path of the local journal file")
	cmd.Flags().BoolVar(&flags.testMode, "test-mode", false, "Send PutEvaluations with TestMode (AWS Config does not store the results)")
	cmd.Flags().StringVar(&flags.metricsTextfile, "metrics-textfile", "", "Write run metrics to this node-exporter textfile")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&flags.format, "format", "table", "Summary format: table or json")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

// readEvent reads the event from path, or from stdin when path is "-".
func readEvent(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read event from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file %q: %w", path, err)
	}
	return data, nil
}

// printSummary renders the run summary as a table or indented JSON.
func printSummary(w io.Writer, summary *models.RunSummary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	output.RenderSummary(w, summary)
	return nil
}

func newRulesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the rules of the rule set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var infos []render.RuleInfo
			for _, r := range dataprotection.New() {
				infos = append(infos, render.Describe(r, cfg.RuleEnabled(r.ID())))
			}
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			render.RenderRuleCatalog(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newExplainCmd() *cobra.Command {
	var (
		format  string
		journal string
	)

	cmd := &cobra.Command{
		Use:   "explain <index|rule-id>",
		Short: "Describe a rule and its journalled verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if journal == "" {
				journal = cfg.Report.JournalPath
			}

			var info *render.RuleInfo
			if r := render.FindRule(dataprotection.New(), args[0]); r != nil {
				d := render.Describe(r, cfg.RuleEnabled(r.ID()))
				info = &d
			}

			var recs []models.EvaluationRecord
			if _, statErr := os.Stat(journal); statErr == nil {
				recs, err = listJournal(journal)
				if err != nil {
					return err
				}
			}

			if format == "json" {
				return render.WriteExplainJSON(cmd.OutOrStdout(), info, recs, args[0])
			}
			if info == nil {
				return fmt.Errorf("no rule with index or ID %q", args[0])
			}
			render.RenderRuleExplanation(cmd.OutOrStdout(), *info, recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().StringVar(&journal, "journal", "", "Journal file to read verdicts from (default: report.journal_path)")
	return cmd
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the local evaluation journal",
	}
	cmd.AddCommand(newJournalListCmd())
	return cmd
}

func newJournalListCmd() *cobra.Command {
	var (
		format  string
		journal string
		color   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the latest evaluation per rule and resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if journal == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				journal = cfg.Report.JournalPath
			}
			if _, err := os.Stat(journal); err != nil {
				return fmt.Errorf("journal %q: %w", journal, err)
			}
			recs, err := listJournal(journal)
			if err != nil {
				return err
			}
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			output.RenderRecords(cmd.OutOrStdout(), recs, output.TableOptions{
				Colored:          color,
				IncludeRule:      true,
				IncludeTimestamp: true,
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().StringVar(&journal, "journal", "", "Journal file (default: report.journal_path)")
	cmd.Flags().BoolVar(&color, "color", false, "Colour compliance labels")
	return cmd
}

// listJournal opens the journal read-write (bbolt takes an exclusive lock),
// reads every record and closes it again.
func listJournal(path string) ([]models.EvaluationRecord, error) {
	j, err := report.OpenJournal(path, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	defer j.Close()
	return j.List()
}
