package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"apivault/internal/planner"
	"apivault/internal/render"
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

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return buf.String()
}

func TestEstimateCommandPricesSavedPlan(t *testing.T) {
	chdir(t, t.TempDir())
	out := t.TempDir()

	plan := &planner.Plan{
		PlanID:   "abc123",
		RepoPath: "/tmp/demo",
		RepoName: "demo",
		Jobs: []planner.PlanJob{
			{ID: "j1", ArtifactName: "RUNBOOK.md", EstimatedInputTokens: 2000, MaxOutputTokens: 4096},
			{ID: "j2", ArtifactName: "THREAT_MODEL.md", EstimatedInputTokens: 3000, MaxOutputTokens: 8192},
		},
	}
	require.NoError(t, planner.Save(plan, filepath.Join(out, "plan.json")))

	got := runCommand(t, "estimate", "--output", out)
	require.Contains(t, got, "abc123")
	require.Contains(t, got, "RUNBOOK.md")
	require.Contains(t, got, "THREAT_MODEL.md")
	require.Contains(t, got, "$")
	require.Contains(t, got, "Total input tokens:  5000")
}

func TestEstimateCommandFailsWithoutPlan(t *testing.T) {
	chdir(t, t.TempDir())

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"estimate", "--output", t.TempDir()})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestPricingForModel(t *testing.T) {
	require.Equal(t, render.Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}, pricingFor("claude-sonnet-4-5"))
	require.Equal(t, render.Pricing{InputPerMTok: 15.0, OutputPerMTok: 75.0}, pricingFor("claude-opus-4-1"))
	require.Equal(t, render.Pricing{InputPerMTok: 0.25, OutputPerMTok: 1.25}, pricingFor("claude-haiku-4-5"))
	// Unknown models fall back to sonnet pricing.
	require.Equal(t, render.Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}, pricingFor("some-future-model"))
}

func TestConfigInitCreatesScaffold(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "apivault.toml")

	got := runCommand(t, "config", "--init", "--path", path)
	require.Contains(t, got, "Created")
	require.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[plan]")
	require.Contains(t, string(data), "ANTHROPIC_API_KEY")
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	chdir(t, t.TempDir())

	got := runCommand(t, "config", "--show")
	require.Contains(t, got, "DefaultBudgetTokens")
	require.Contains(t, got, "100000")
}
