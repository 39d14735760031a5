package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir, which needs Go 1.24+; this keeps the
// tests runnable on Go 1.21.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 100_000, cfg.Plan.DefaultBudgetTokens)
	require.Equal(t, 3600, cfg.Plan.DefaultBudgetSeconds)
	require.Len(t, cfg.Plan.DefaultFamilies, 6)
	require.True(t, cfg.Run.CacheEnabled)
	require.Equal(t, 3, cfg.Run.MaxRetries)
	require.Equal(t, 0.5, cfg.Secrets.MinConfidence)
	require.Equal(t, int64(1_000_000), cfg.Scan.MaxFileSizeBytes)
	require.Contains(t, cfg.Scan.ExcludedDirs, "node_modules")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apivault.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[plan]
default_budget_tokens = 50000

[run]
model = "claude-haiku-4-5"
concurrency = 4

[scan]
additional_excluded_dirs = ["generated"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 50_000, cfg.Plan.DefaultBudgetTokens)
	require.Equal(t, "claude-haiku-4-5", cfg.Run.Model)
	require.Equal(t, 4, cfg.Run.Concurrency)
	require.Contains(t, cfg.ExcludedDirs(), "generated")
	require.Contains(t, cfg.ExcludedDirs(), "node_modules")
	// Untouched sections keep defaults.
	require.Equal(t, 3600, cfg.Plan.DefaultBudgetSeconds)
}

func TestLoadRejectsMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apivault.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[plan]
default_budget_tokens = 10
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "default_budget_tokens")
}

func TestWriteDefaultScaffoldsLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apivault.toml")
	require.NoError(t, WriteDefault(path))

	// The scaffold is all comments, so loading it yields pure defaults.
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100_000, cfg.Plan.DefaultBudgetTokens)

	require.Error(t, WriteDefault(path), "existing file must not be overwritten")
}

func TestAPIKeyComesFromEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	cfg := &Config{}
	require.Equal(t, "sk-test", cfg.APIKey())
}
