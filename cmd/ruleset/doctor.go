package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/app"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/config"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/report"
)

// DoctorResult is the structured output of ruleset doctor. It can be
// serialised to JSON via --format=json or rendered as a table (default).
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		Role        string `json:"role,omitempty"`
		Delegation  bool   `json:"delegation_ok"`
		RegionsOK   bool   `json:"regions_ok"`
		Regions     int    `json:"regions"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Config struct {
		Path    string   `json:"path,omitempty"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"config"`

	Journal struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
		OK      bool   `json:"ok"`
		Error   string `json:"error,omitempty"`
	} `json:"journal"`

	OverallHealthy bool `json:"overall_healthy"`
}

// doctorChecks bundles the AWS calls so tests can replace them.
type doctorChecks struct {
	// credentials checks that the caller's own credentials resolve.
	credentials func(ctx context.Context) error
	broker      common.CredentialBroker
	regions     common.RegionLister
}

// newAWSChecks builds the production AWS checks for profile.
func newAWSChecks(ctx context.Context, profile string, regions []string) (doctorChecks, error) {
	base, err := common.LoadBaseConfig(ctx, profile, "")
	if err != nil {
		return doctorChecks{}, err
	}
	return doctorChecks{
		credentials: func(ctx context.Context) error {
			_, err := base.Credentials.Retrieve(ctx)
			return err
		},
		broker:  common.NewSTSCredentialBroker(sts.NewFromConfig(base), zerolog.Nop()),
		regions: common.NewDefaultRegionLister(base, common.NewEC2RegionClient, regions),
	}, nil
}

// doctorOptions are the inputs of one diagnostics run.
type doctorOptions struct {
	configPath string
	role       string
	region     string
}

func newDoctorCmd() *cobra.Command {
	var (
		format  string
		profile string
		opts    doctorOptions
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.configPath, _ = cmd.Flags().GetString("config")
			if opts.configPath == "" {
				opts.configPath = os.Getenv(config.EnvConfigPath)
			}

			cfg, _ := config.Load(opts.configPath)
			if cfg == nil {
				cfg = config.Default()
			}
			if profile == "" {
				profile = cfg.AWS.Profile
			}

			checks, checksErr := newAWSChecks(cmd.Context(), profile, cfg.AWS.Regions)
			result, err := runDoctor(cmd.Context(), checks, checksErr, cmd.OutOrStdout(), format, profile, opts)
			if err != nil {
				return err
			}
			if !result.OverallHealthy {
				return errors.New("environment is not healthy")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", `Output format: "table" or "json"`)
	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use (default: aws.profile, then credential chain)")
	cmd.Flags().StringVar(&opts.role, "role", "", "Audit role ARN to test delegation with")
	cmd.Flags().StringVar(&opts.region, "region", "us-east-1", "Home region used for the delegation check")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result. The returned error covers only
// rendering failures; callers inspect result.OverallHealthy.
func runDoctor(ctx context.Context, checks doctorChecks, checksErr error, w io.Writer, format, profile string, opts doctorOptions) (DoctorResult, error) {
	result := collectDoctorResult(ctx, checks, checksErr, profile, opts)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}
	return result, nil
}

// collectDoctorResult runs all environment checks and populates a
// DoctorResult. It performs no rendering.
func collectDoctorResult(ctx context.Context, checks doctorChecks, checksErr error, profile string, opts doctorOptions) DoctorResult {
	var result DoctorResult
	result.AWS.Profile = profile
	result.AWS.Role = opts.role

	// AWS: own credentials, then delegation and region discovery with the
	// assumed role when one is given.
	switch {
	case checksErr != nil:
		result.AWS.Error = checksErr.Error()
	default:
		if err := checks.credentials(ctx); err != nil {
			result.AWS.Error = err.Error()
			break
		}
		result.AWS.Credentials = true
		if opts.role == "" {
			break
		}
		cred, err := checks.broker.Acquire(ctx, opts.role, opts.region)
		if err != nil {
			result.AWS.Error = err.Error()
			break
		}
		result.AWS.Delegation = true
		regions, err := checks.regions.ListRegions(ctx, cred)
		if err != nil {
			result.AWS.Error = err.Error()
			break
		}
		result.AWS.RegionsOK = true
		result.AWS.Regions = len(regions)
	}

	// Config: stat, load, validate (the file is optional).
	cfg := config.Default()
	result.Config.Path = opts.configPath
	if opts.configPath != "" {
		if _, statErr := os.Stat(opts.configPath); statErr == nil {
			result.Config.Present = true
			loaded, err := config.Load(opts.configPath)
			if err != nil {
				result.Config.Errors = []string{err.Error()}
			} else {
				cfg = loaded
			}
		} else if !os.IsNotExist(statErr) {
			result.Config.Present = true
			result.Config.Errors = []string{statErr.Error()}
		}
	}
	if len(result.Config.Errors) == 0 {
		for _, e := range config.Validate(cfg, app.AllRuleIDs()) {
			result.Config.Errors = append(result.Config.Errors, e.Error())
		}
		result.Config.Valid = len(result.Config.Errors) == 0
	}

	// Journal: only when the sink uses it.
	if cfg.UsesJournal() {
		result.Journal.Enabled = true
		result.Journal.Path = cfg.Report.JournalPath
		j, err := report.OpenJournal(cfg.Report.JournalPath, zerolog.Nop())
		if err != nil {
			result.Journal.Error = err.Error()
		} else {
			result.Journal.OK = true
			j.Close()
		}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		(opts.role == "" || (result.AWS.Delegation && result.AWS.RegionsOK)) &&
		result.Config.Valid &&
		(!result.Journal.Enabled || result.Journal.OK)

	return result
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	switch {
	case !result.AWS.Credentials:
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "Audit Role", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	case result.AWS.Role == "":
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "Audit Role", "SKIPPED", "no --role")
		doctorPrint(w, "Regions API", "SKIPPED", "no --role")
	case !result.AWS.Delegation:
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "Audit Role", "FAIL", result.AWS.Error)
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	default:
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "Audit Role", "OK", result.AWS.Role)
		if result.AWS.RegionsOK {
			doctorPrint(w, "Regions API", "OK", fmt.Sprintf("%d enabled", result.AWS.Regions))
		} else {
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintln(w, "\nConfig:")
	if !result.Config.Present {
		doctorPrint(w, "Config file", "Not found (defaults)", "")
	} else {
		doctorPrint(w, "Config file", "YES", result.Config.Path)
	}
	if result.Config.Valid {
		doctorPrint(w, "Config valid", "OK", "")
	} else {
		for _, e := range result.Config.Errors {
			doctorPrint(w, "Config valid", "FAIL", e)
		}
	}

	if result.Journal.Enabled {
		fmt.Fprintln(w, "\nJournal:")
		if result.Journal.OK {
			doctorPrint(w, "Journal", "OK", result.Journal.Path)
		} else {
			doctorPrint(w, "Journal", "FAIL", result.Journal.Error)
		}
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
