package planner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"apivault/internal/catalog"
	"apivault/internal/index"
)

func fixtureIndex(t *testing.T) (*index.RepoIndex, *index.RepoSignals) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":          "# demo project\n\nRuns an HTTP API with auth.\n",
		"go.mod":             "module demo\n",
		"main.go":            "package main\n",
		"api/routes.go":      "package api\n",
		"internal/auth/a.go": "package auth\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	idx, err := index.NewScanner(index.ScanConfig{}, nil).Scan(root)
	require.NoError(t, err)

	signals := &index.RepoSignals{
		RepoPath: idx.RepoPath,
		RepoName: idx.RepoName,
		HasAPI:   true,
		HasAuth:  true,
		Gaps: []string{
			"No architecture documentation",
			"API exists but lacks documentation",
		},
	}
	return idx, signals
}

func TestCreatePlanIsDeterministic(t *testing.T) {
	idx, signals := fixtureIndex(t)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	opts := Options{BudgetTokens: 100_000, BudgetSeconds: 600, Now: now}

	p := New(nil)
	plan1, err := p.CreatePlan(idx, signals, opts)
	require.NoError(t, err)
	plan2, err := p.CreatePlan(idx, signals, opts)
	require.NoError(t, err)

	require.Equal(t, plan1, plan2)
	require.NotEmpty(t, plan1.Jobs)
	require.Equal(t, len(plan1.Jobs), plan1.JobsWithinBudget)
}

func TestCreatePlanOrdersJobsByScore(t *testing.T) {
	idx, signals := fixtureIndex(t)
	plan, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 200_000, BudgetSeconds: 3600})
	require.NoError(t, err)
	require.NotEmpty(t, plan.Jobs)

	for i := 1; i < len(plan.Jobs); i++ {
		prev, cur := plan.Jobs[i-1], plan.Jobs[i]
		require.GreaterOrEqual(t, prev.Score.TotalScore, cur.Score.TotalScore)
		if prev.Score.TotalScore == cur.Score.TotalScore {
			prevCost := prev.EstimatedInputTokens + prev.MaxOutputTokens
			curCost := cur.EstimatedInputTokens + cur.MaxOutputTokens
			require.LessOrEqual(t, prevCost, curCost)
			if prevCost == curCost {
				require.Less(t, prev.ArtifactName, cur.ArtifactName)
			}
		}
	}
}

func TestCreatePlanFiltersByPrerequisites(t *testing.T) {
	idx, signals := fixtureIndex(t)
	signals.HasAPI = false
	signals.HasAuth = false

	plan, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 500_000, BudgetSeconds: 3600})
	require.NoError(t, err)

	for _, job := range plan.Jobs {
		require.NotEqual(t, "ENDPOINT_INVENTORY.md", job.ArtifactName)
		require.NotEqual(t, "openapi_draft.json", job.ArtifactName)
		require.NotEqual(t, "AUTHZ_AUTHN_NOTES.md", job.ArtifactName)
		require.NotEqual(t, "UX_COPY_BANK.md", job.ArtifactName)
	}
}

func TestCreatePlanFiltersByFamily(t *testing.T) {
	idx, signals := fixtureIndex(t)
	plan, err := New(nil).CreatePlan(idx, signals, Options{
		BudgetTokens:  500_000,
		BudgetSeconds: 3600,
		Families:      []catalog.Family{catalog.FamilySecurity},
	})
	require.NoError(t, err)
	require.NotEmpty(t, plan.Jobs)

	for _, job := range plan.Jobs {
		require.Equal(t, catalog.FamilySecurity, job.Family)
	}
}

func TestCreatePlanGreedyBudgetSelection(t *testing.T) {
	idx, signals := fixtureIndex(t)

	// A budget big enough for exactly one large job: the top scorer gets in,
	// everything else lands in excluded_jobs with a budget reason.
	full, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 500_000, BudgetSeconds: 3600})
	require.NoError(t, err)
	require.Greater(t, len(full.Jobs), 1)

	topCost := full.Jobs[0].EstimatedInputTokens + full.Jobs[0].MaxOutputTokens
	tight, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: topCost + 100, BudgetSeconds: 3600})
	require.NoError(t, err)

	require.NotEmpty(t, tight.Jobs)
	require.Equal(t, full.Jobs[0].ArtifactName, tight.Jobs[0].ArtifactName)
	require.LessOrEqual(t, tight.TotalEstimatedTokens, topCost+100)
	require.NotEmpty(t, tight.ExcludedJobs)
	for _, ex := range tight.ExcludedJobs {
		require.Contains(t, ex.Reason, "budget")
	}
}

func TestCreatePlanGreedyDoesNotBacktrack(t *testing.T) {
	// Three candidates scoring 50/40/35 at 8000/6000/5000 tokens against a
	// 10000 token budget: greedy takes the 50 and nothing else, even though
	// 40+35 would fit together.
	idx := &index.RepoIndex{
		RepoPath:   "/tmp/greedy-fixture",
		RepoName:   "greedy-fixture",
		TotalFiles: 1,
		Files:      []index.FileEntry{{Path: "data/fixtures/seed.txt", SizeBytes: 10, Extension: "txt"}},
	}
	signals := &index.RepoSignals{RepoPath: idx.RepoPath, RepoName: idx.RepoName}

	// The file matches no ref pattern, so context tokens are zero and the
	// job cost is max output tokens plus the fixed overhead. With default
	// weights and the neutral gap factor (5 * 1.5 = 7.5), totals come out to
	// exactly 50, 40, and 35.
	mk := func(name string, reuse, saved float64, maxOut int) catalog.Template {
		return catalog.Template{
			Name:             name,
			Family:           catalog.FamilyDocs,
			OutputFilename:   name,
			PromptTemplateID: "runbook",
			BaseReusability:  reuse,
			BaseTimeSaved:    saved,
			BaseLeverage:     10,
			MaxOutputTokens:  maxOut,
		}
	}
	pool := []catalog.Template{
		mk("ALPHA.md", 7.5, 10, 7500), // 7.5 + 15 + 20 + 7.5 = 50, cost 8000
		mk("BRAVO.md", 5, 5, 5500),    // 5 + 7.5 + 20 + 7.5 = 40, cost 6000
		mk("CHARLIE.md", 3, 3, 4500),  // 3 + 4.5 + 20 + 7.5 = 35, cost 5000
	}

	plan, err := New(nil).CreatePlan(idx, signals, Options{
		BudgetTokens:  10_000,
		BudgetSeconds: 3600,
		Candidates:    pool,
	})
	require.NoError(t, err)

	require.Len(t, plan.Jobs, 1)
	require.Equal(t, "ALPHA.md", plan.Jobs[0].ArtifactName)
	require.Equal(t, 50.0, plan.Jobs[0].Score.TotalScore)
	require.Equal(t, 8000, plan.TotalEstimatedTokens)
	require.LessOrEqual(t, plan.TotalEstimatedTokens, 10_000)

	require.Len(t, plan.ExcludedJobs, 2)
	for _, ex := range plan.ExcludedJobs {
		require.Equal(t, "Exceeded token budget", ex.Reason)
	}
}

func TestCreatePlanTimeBudget(t *testing.T) {
	idx, signals := fixtureIndex(t)

	// Each job needs at least 20 seconds; a 25 second budget fits one job.
	plan, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 500_000, BudgetSeconds: 25})
	require.NoError(t, err)

	require.Len(t, plan.Jobs, 1)
	require.LessOrEqual(t, plan.TotalEstimatedSecs, 25)
	found := false
	for _, ex := range plan.ExcludedJobs {
		if ex.Reason == "Exceeded time budget" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCreatePlanMinScoreThreshold(t *testing.T) {
	idx, signals := fixtureIndex(t)

	weights := Weights{Reusability: 0.1, TimeSaved: 0.1, Leverage: 0.1, ContextCost: -0.5, GapWeight: 0.1}
	plan, err := New(nil).CreatePlan(idx, signals, Options{
		BudgetTokens:  500_000,
		BudgetSeconds: 3600,
		Weights:       &weights,
	})
	require.NoError(t, err)

	require.Empty(t, plan.Jobs)
	require.NotEmpty(t, plan.ExcludedJobs)
	for _, ex := range plan.ExcludedJobs {
		require.Equal(t, "Below minimum score threshold", ex.Reason)
	}
}

func TestCreatePlanAcceptsCustomCandidates(t *testing.T) {
	idx, signals := fixtureIndex(t)

	custom := catalog.Template{
		Name:             "ONBOARDING.md",
		Family:           catalog.FamilyDocs,
		OutputFilename:   "ONBOARDING.md",
		PromptTemplateID: "runbook",
		BaseReusability:  9,
		BaseTimeSaved:    9,
		BaseLeverage:     9,
		BaseContextCost:  3,
		MaxOutputTokens:  4096,
	}
	pool := append([]catalog.Template{custom}, catalog.Builtin()...)

	plan, err := New(nil).CreatePlan(idx, signals, Options{
		BudgetTokens:  500_000,
		BudgetSeconds: 3600,
		Candidates:    pool,
	})
	require.NoError(t, err)

	names := make([]string, 0, len(plan.Jobs))
	for _, job := range plan.Jobs {
		names = append(names, job.ArtifactName)
	}
	require.Contains(t, names, "ONBOARDING.md")
}

func TestCreatePlanRejectsInvalidInputs(t *testing.T) {
	idx, signals := fixtureIndex(t)

	_, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 0, BudgetSeconds: 60})
	require.Error(t, err)

	_, err = New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 1000, BudgetSeconds: 0})
	require.Error(t, err)

	_, err = New(nil).CreatePlan(&index.RepoIndex{}, signals, Options{BudgetTokens: 1000, BudgetSeconds: 60})
	require.Error(t, err)
}

func TestPlanJobIDsAreStable(t *testing.T) {
	idx, signals := fixtureIndex(t)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	plan, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 100_000, BudgetSeconds: 600, Now: now})
	require.NoError(t, err)
	require.NotEmpty(t, plan.Jobs)

	require.Len(t, plan.PlanID, 16)
	for _, job := range plan.Jobs {
		require.Len(t, job.ID, 12)
		require.Equal(t, generateJobID(plan.PlanID, job.ArtifactName), job.ID)
	}
}

func TestPlanSaveLoadRoundTrip(t *testing.T) {
	idx, signals := fixtureIndex(t)
	plan, err := New(nil).CreatePlan(idx, signals, Options{BudgetTokens: 100_000, BudgetSeconds: 600})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "plan.json")
	require.NoError(t, Save(plan, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, plan.PlanID, loaded.PlanID)
	require.Len(t, loaded.Jobs, len(plan.Jobs))
	require.Equal(t, plan.Jobs[0].ContextRefs, loaded.Jobs[0].ContextRefs)
}

func TestLoadRejectsMalformedPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"jobs": []}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "plan id")
}
