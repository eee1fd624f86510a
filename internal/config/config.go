// Package config loads the evaluator configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sink names accepted by report.sink.
const (
	SinkConfig  = "config"
	SinkJournal = "journal"
	SinkBoth    = "both"
)

// Environment variables read by the entrypoints.
const (
	EnvConfigPath = "RULESET_CONFIG"
	EnvLogLevel   = "RULESET_LOG_LEVEL"
	EnvSink       = "RULESET_SINK"
)

const (
	DefaultConcurrency = 4
	DefaultJournalPath = "ruleset-journal.db"
	DefaultLogLevel    = "info"
)

// Config is the top-level evaluator configuration.
// It never holds credentials: every AWS session is obtained by assuming
// the event's execution role.
type Config struct {
	Log     LogConfig             `yaml:"log"     json:"log"`
	AWS     AWSConfig             `yaml:"aws"     json:"aws"`
	Engine  EngineConfig          `yaml:"engine"  json:"engine"`
	Report  ReportConfig          `yaml:"report"  json:"report"`
	Rules   map[string]RuleConfig `yaml:"rules"   json:"rules"`
	Metrics MetricsConfig         `yaml:"metrics" json:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// AWSConfig holds the base session used before the audit role is assumed.
type AWSConfig struct {
	// Profile is the shared-config profile of the caller. Empty means the
	// default credential chain (always the case in Lambda).
	Profile string `yaml:"profile" json:"profile"`

	// Regions restricts evaluation to these regions. Empty means every
	// region enabled in the audited account.
	Regions []string `yaml:"regions" json:"regions"`
}

type EngineConfig struct {
	// Concurrency bounds the number of regions evaluated at once.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

type ReportConfig struct {
	// Sink is one of "config", "journal" or "both".
	Sink string `yaml:"sink" json:"sink"`

	// TestMode sets TestMode on PutEvaluations.
	TestMode bool `yaml:"test_mode" json:"test_mode"`

	JournalPath string `yaml:"journal_path" json:"journal_path"`
}

type RuleConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

type MetricsConfig struct {
	// Textfile is the node-exporter textfile the run's metrics are written
	// to. Empty disables the export.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path and applies defaults. An empty path or a
// missing file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Engine.Concurrency <= 0 {
		c.Engine.Concurrency = DefaultConcurrency
	}
	if c.Report.Sink == "" {
		c.Report.Sink = SinkConfig
	}
	if c.Report.JournalPath == "" {
		c.Report.JournalPath = DefaultJournalPath
	}
	if c.Rules == nil {
		c.Rules = make(map[string]RuleConfig)
	}
}

// ApplyEnv overrides file values with the RULESET_* environment variables
// returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvSink); v != "" {
		c.Report.Sink = strings.ToLower(v)
	}
}

// RuleEnabled reports whether ruleID may be registered. Rules are enabled
// unless explicitly disabled.
func (c *Config) RuleEnabled(ruleID string) bool {
	rc, ok := c.Rules[ruleID]
	if !ok || rc.Enabled == nil {
		return true
	}
	return *rc.Enabled
}

// UsesConfigService reports whether evaluations go to AWS Config.
func (c *Config) UsesConfigService() bool {
	return c.Report.Sink == SinkConfig || c.Report.Sink == SinkBoth
}

// UsesJournal reports whether evaluations go to the local journal.
func (c *Config) UsesJournal() bool {
	return c.Report.Sink == SinkJournal || c.Report.Sink == SinkBoth
}
