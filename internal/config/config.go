// Package config loads tool configuration from file, environment, and flags
// via viper. Search order: apivault.toml, .apivault.toml in the working
// directory, then ~/.apivault/config.toml. Environment variables use the
// APIVAULT_ prefix with underscores (APIVAULT_RUN_MODEL and so on).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"apivault/internal/llm"
)

// ScanSettings tune the repository walk and context packaging.
type ScanSettings struct {
	MaxFileSizeBytes     int64    `mapstructure:"max_file_size_bytes"`
	MaxExcerptBytes      int      `mapstructure:"max_excerpt_bytes"`
	MaxTotalContextBytes int      `mapstructure:"max_total_context_bytes"`
	ExcludedDirs         []string `mapstructure:"excluded_dirs"`
	AdditionalExcluded   []string `mapstructure:"additional_excluded_dirs"`
}

// PlanSettings tune artifact selection.
type PlanSettings struct {
	DefaultBudgetTokens  int      `mapstructure:"default_budget_tokens"`
	DefaultBudgetSeconds int      `mapstructure:"default_budget_seconds"`
	DefaultFamilies      []string `mapstructure:"default_families"`
}

// RunSettings tune plan execution.
type RunSettings struct {
	Model          string  `mapstructure:"model"`
	CacheEnabled   bool    `mapstructure:"cache_enabled"`
	MaxRetries     int     `mapstructure:"max_retries"`
	RetryDelaySecs float64 `mapstructure:"retry_delay_seconds"`
	TimeoutSecs    int     `mapstructure:"timeout_seconds"`
	Concurrency    int     `mapstructure:"concurrency"`
}

// SecretSettings tune secret detection.
type SecretSettings struct {
	MinConfidence      float64  `mapstructure:"min_confidence"`
	AdditionalPatterns []string `mapstructure:"additional_patterns"`
}

// OutputSettings tune artifact output.
type OutputSettings struct {
	DefaultOutputDir string `mapstructure:"default_output_dir"`
}

// Config is the complete tool configuration.
type Config struct {
	Scan    ScanSettings   `mapstructure:"scan"`
	Plan    PlanSettings   `mapstructure:"plan"`
	Run     RunSettings    `mapstructure:"run"`
	Secrets SecretSettings `mapstructure:"secrets"`
	Output  OutputSettings `mapstructure:"output"`
}

// APIKey resolves the Anthropic key from the environment. Keys never live in
// config files.
func (c *Config) APIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.max_file_size_bytes", 1_000_000)
	v.SetDefault("scan.max_excerpt_bytes", 8192)
	v.SetDefault("scan.max_total_context_bytes", 65536)
	v.SetDefault("scan.excluded_dirs", []string{
		"node_modules", "dist", "build", ".next", ".git", "coverage",
		"vendor", "__pycache__", "target", ".venv", "venv",
	})

	v.SetDefault("plan.default_budget_tokens", 100_000)
	v.SetDefault("plan.default_budget_seconds", 3600)
	v.SetDefault("plan.default_families", []string{
		"docs", "security", "tests", "api", "observability", "product",
	})

	v.SetDefault("run.model", llm.DefaultModel)
	v.SetDefault("run.cache_enabled", true)
	v.SetDefault("run.max_retries", 3)
	v.SetDefault("run.retry_delay_seconds", 1.0)
	v.SetDefault("run.timeout_seconds", 300)
	v.SetDefault("run.concurrency", 2)

	v.SetDefault("secrets.min_confidence", 0.5)

	v.SetDefault("output.default_output_dir", "./apivault-output")
}

// Load reads configuration. An explicit path must exist; otherwise the
// standard locations are searched and missing files fall back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APIVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("apivault")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".apivault"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	if c.Plan.DefaultBudgetTokens < 1000 {
		return fmt.Errorf("plan.default_budget_tokens must be at least 1000, got %d", c.Plan.DefaultBudgetTokens)
	}
	if c.Plan.DefaultBudgetSeconds < 60 {
		return fmt.Errorf("plan.default_budget_seconds must be at least 60, got %d", c.Plan.DefaultBudgetSeconds)
	}
	if c.Secrets.MinConfidence < 0 || c.Secrets.MinConfidence > 1 {
		return fmt.Errorf("secrets.min_confidence must be within [0, 1], got %g", c.Secrets.MinConfidence)
	}
	if c.Run.MaxRetries < 0 || c.Run.MaxRetries > 10 {
		return fmt.Errorf("run.max_retries must be within [0, 10], got %d", c.Run.MaxRetries)
	}
	return nil
}

// ExcludedDirs merges the base exclusion list with additions.
func (c *Config) ExcludedDirs() []string {
	return append(append([]string(nil), c.Scan.ExcludedDirs...), c.Scan.AdditionalExcluded...)
}

const defaultFileTemplate = `# apivault configuration. Every value below is the default; uncomment and
# edit what you want to change. The API key is never read from this file,
# only from the ANTHROPIC_API_KEY environment variable.

[scan]
# max_file_size_bytes = 1000000
# additional_excluded_dirs = []

[plan]
# default_budget_tokens = 100000
# default_budget_seconds = 3600
# default_families = ["docs", "security", "tests", "api", "observability", "product"]

[run]
# model = "%s"
# cache_enabled = true
# max_retries = 3
# concurrency = 2

[secrets]
# min_confidence = 0.5
# additional_patterns = []

[output]
# default_output_dir = "./apivault-output"
`

// WriteDefault scaffolds a commented config file at path. An existing file is
// never overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	content := fmt.Sprintf(defaultFileTemplate, llm.DefaultModel)
	return os.WriteFile(path, []byte(content), 0o644)
}
