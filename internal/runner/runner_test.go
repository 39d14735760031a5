package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apierrors "apivault/internal/errors"
	"apivault/internal/index"
	"apivault/internal/llm"
	"apivault/internal/planner"
)

// fakeClient counts calls and runs an optional per-call hook.
type fakeClient struct {
	mu    sync.Mutex
	calls int
	fail  func(call int) error
	block chan struct{}
}

func (f *fakeClient) Model() string { return "fake-model" }

func (f *fakeClient) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return nil, err
		}
	}
	return &llm.Result{
		Text:         "# Generated\n\ncontent for " + req.Model,
		InputTokens:  100,
		OutputTokens: 300,
		Model:        "fake-model",
		StopReason:   "end_turn",
	}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fixturePlan(t *testing.T) (string, *index.RepoIndex, *index.RepoSignals, *planner.Plan) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":     "# demo\n\nAn API service with auth.\n",
		"go.mod":        "module demo\n",
		"api/routes.go": "package api\n",
		"auth/jwt.go":   "package auth\n",
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
		Gaps:     []string{"No architecture documentation"},
	}

	plan, err := planner.New(nil).CreatePlan(idx, signals, planner.Options{
		BudgetTokens:  500_000,
		BudgetSeconds: 3600,
		Now:           time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Greater(t, len(plan.Jobs), 2)
	return root, idx, signals, plan
}

func newRunner(t *testing.T, root string, idx *index.RepoIndex, signals *index.RepoSignals, client llm.Client, outputDir string) *Runner {
	t.Helper()
	r, err := New(Config{
		OutputDir:   outputDir,
		Concurrency: 2,
		Retry:       apierrors.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, client, root, idx, signals, nil)
	require.NoError(t, err)
	return r
}

func TestRunGeneratesArtifactsAndReport(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()
	client := &fakeClient{}
	r := newRunner(t, root, idx, signals, client, out)

	report, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)

	require.Equal(t, len(plan.Jobs), report.TotalJobs)
	require.Equal(t, len(plan.Jobs), report.JobsCompleted)
	require.Zero(t, report.JobsFailed)
	require.Equal(t, len(plan.Jobs)*100, report.TotalInputTokens)
	require.Equal(t, len(plan.Jobs)*300, report.TotalOutputTokens)

	// Results follow plan order even with concurrent execution.
	require.Len(t, report.JobResults, len(plan.Jobs))
	for i, res := range report.JobResults {
		require.Equal(t, plan.Jobs[i].ID, res.JobID)
		require.Equal(t, "completed", res.Status)
		require.FileExists(t, res.ArtifactPath)
		require.FileExists(t, res.MetaPath)
	}

	loaded, err := LoadReport(filepath.Join(out, "report.json"))
	require.NoError(t, err)
	require.Equal(t, report.ReportID, loaded.ReportID)
}

func TestRunIsIdempotent(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()
	client := &fakeClient{}
	r := newRunner(t, root, idx, signals, client, out)

	first, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Equal(t, len(plan.Jobs), first.JobsCompleted)
	callsAfterFirst := client.callCount()

	second, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)

	require.Equal(t, len(plan.Jobs), second.JobsSkipped)
	require.Zero(t, second.JobsCompleted)
	require.Equal(t, callsAfterFirst, client.callCount(), "rerun must not call the client")
}

func TestRunServesFromCacheWhenArtifactRemoved(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()
	client := &fakeClient{}
	r := newRunner(t, root, idx, signals, client, out)

	_, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	callsAfterFirst := client.callCount()

	// Losing the artifacts but keeping the cache must not trigger new calls.
	require.NoError(t, os.RemoveAll(filepath.Join(out, "artifacts")))

	second, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Equal(t, len(plan.Jobs), second.JobsCompleted)
	require.Equal(t, len(plan.Jobs), second.JobsCached)
	require.Equal(t, callsAfterFirst, client.callCount())
}

func TestRunFailsOnCorruptedCache(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()
	client := &fakeClient{}
	r := newRunner(t, root, idx, signals, client, out)

	_, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)

	// Force a cache read on rerun, then corrupt every entry.
	require.NoError(t, os.RemoveAll(filepath.Join(out, "artifacts")))
	entries, err := filepath.Glob(filepath.Join(out, "cache", "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, path := range entries {
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	}

	fresh := newRunner(t, root, idx, signals, client, out)
	_, err = fresh.Run(context.Background(), plan, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache read")
}

func TestRunRecordsFailuresWithoutAborting(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()
	client := &fakeClient{fail: func(call int) error {
		if call == 1 {
			return apierrors.NewPermanent(nil, "invalid request")
		}
		return nil
	}}
	r := newRunner(t, root, idx, signals, client, out)

	report, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)

	require.Equal(t, 1, report.JobsFailed)
	require.Equal(t, len(plan.Jobs)-1, report.JobsCompleted)
	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0], "invalid request")
}

func TestRunRetriesTransientFailures(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	plan.Jobs = plan.Jobs[:1]
	out := t.TempDir()
	client := &fakeClient{fail: func(call int) error {
		if call == 1 {
			return apierrors.NewTransient(nil, "overloaded")
		}
		return nil
	}}
	r := newRunner(t, root, idx, signals, client, out)

	report, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.JobsCompleted)
	require.Equal(t, 2, client.callCount())
}

func TestRunCancellationMarksRemainingJobsFailed(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()

	block := make(chan struct{})
	client := &fakeClient{block: block}
	r := newRunner(t, root, idx, signals, client, out)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Let the first wave start, then cancel everything.
		time.Sleep(50 * time.Millisecond)
		cancel()
		close(block)
	}()

	report, err := r.Run(ctx, plan, nil)
	require.NoError(t, err)
	require.Zero(t, report.JobsCompleted)
	require.Equal(t, len(plan.Jobs), report.JobsFailed)
}

func TestRunResumesAfterPartialCompletion(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()
	client := &fakeClient{}
	r := newRunner(t, root, idx, signals, client, out)

	// First run covers a prefix of the plan, as if interrupted partway.
	partial := *plan
	partial.Jobs = plan.Jobs[:2]
	_, err := r.Run(context.Background(), &partial, nil)
	require.NoError(t, err)
	require.Equal(t, 2, client.callCount())

	full, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)

	require.Equal(t, len(plan.Jobs), full.TotalJobs)
	require.Equal(t, 2, full.JobsSkipped)
	require.Equal(t, len(plan.Jobs)-2, full.JobsCompleted)
	require.Equal(t, "skipped", full.JobResults[0].Status)
	require.Equal(t, "skipped", full.JobResults[1].Status)
	require.Equal(t, len(plan.Jobs), client.callCount(), "finished jobs must not be re-called")
}

func TestRunResumeAfterPartialFailure(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()

	failing := &fakeClient{fail: func(call int) error {
		return apierrors.NewPermanent(nil, "boom")
	}}
	r := newRunner(t, root, idx, signals, failing, out)
	first, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Equal(t, len(plan.Jobs), first.JobsFailed)

	healthy := &fakeClient{}
	r2 := newRunner(t, root, idx, signals, healthy, out)
	second, err := r2.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Equal(t, len(plan.Jobs), second.JobsCompleted)
	require.Zero(t, second.JobsFailed)
}

func TestRunEmitsProgressTransitions(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	plan.Jobs = plan.Jobs[:1]
	out := t.TempDir()
	r := newRunner(t, root, idx, signals, &fakeClient{}, out)

	var mu sync.Mutex
	var states []JobState
	progress := func(p Progress) {
		mu.Lock()
		states = append(states, p.State)
		mu.Unlock()
	}

	_, err := r.Run(context.Background(), plan, progress)
	require.NoError(t, err)

	require.Equal(t, []JobState{
		StatePending, StateContextBuilt, StateFingerprinted, StateCalling, StateCompleted,
	}, states)
}

func TestRunRejectsEmptyPlan(t *testing.T) {
	root, idx, signals, _ := fixturePlan(t)
	r := newRunner(t, root, idx, signals, &fakeClient{}, t.TempDir())

	_, err := r.Run(context.Background(), &planner.Plan{PlanID: "empty"}, nil)
	require.Error(t, err)
}

func TestRunConcurrencyIsBounded(t *testing.T) {
	root, idx, signals, plan := fixturePlan(t)
	out := t.TempDir()

	var inFlight, peak atomic.Int32
	client := &fakeClient{fail: func(call int) error {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil
	}}
	r := newRunner(t, root, idx, signals, client, out)

	_, err := r.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(2), fmt.Sprintf("peak concurrency %d", peak.Load()))
}
