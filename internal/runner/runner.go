// Package runner executes artifact generation plans: it packages context,
// fingerprints each request, consults the response cache, calls the
// generation client with retries, and writes artifacts plus a run report.
// Interrupted runs resume by skipping artifacts whose fingerprint still
// matches.
package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"apivault/internal/cache"
	"apivault/internal/contextpack"
	apierrors "apivault/internal/errors"
	"apivault/internal/index"
	"apivault/internal/llm"
	"apivault/internal/logging"
	"apivault/internal/planner"
	"apivault/internal/templates"
)

// JobState is one step of a job's lifecycle.
type JobState string

const (
	StatePending       JobState = "pending"
	StateContextBuilt  JobState = "context-built"
	StateFingerprinted JobState = "fingerprinted"
	StateSkipped       JobState = "skipped"
	StateCalling       JobState = "calling"
	StateCompleted     JobState = "completed"
	StateFailed        JobState = "failed"
)

// Progress reports one job state transition.
type Progress struct {
	JobID        string
	ArtifactName string
	State        JobState
	Message      string
}

// ProgressFunc receives transitions as they happen; it may be called from
// multiple goroutines.
type ProgressFunc func(Progress)

// JobResult is the terminal outcome of one job.
type JobResult struct {
	JobID             string  `json:"job_id"`
	ArtifactName      string  `json:"artifact_name"`
	Status            string  `json:"status"` // completed, skipped, failed
	ArtifactPath      string  `json:"artifact_path,omitempty"`
	MetaPath          string  `json:"meta_path,omitempty"`
	Fingerprint       string  `json:"fingerprint,omitempty"`
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	Cached            bool    `json:"cached"`
	GenerationSeconds float64 `json:"generation_time_seconds"`
	Error             string  `json:"error_message,omitempty"`
}

// Report summarizes one run. JobResults follow plan order regardless of
// completion order.
type Report struct {
	ReportID           string      `json:"report_id"`
	RepoPath           string      `json:"repo_path"`
	RepoName           string      `json:"repo_name"`
	PlanID             string      `json:"plan_id"`
	StartedAt          time.Time   `json:"started_at"`
	CompletedAt        time.Time   `json:"completed_at"`
	TotalJobs          int         `json:"total_jobs"`
	JobsCompleted      int         `json:"jobs_completed"`
	JobsSkipped        int         `json:"jobs_skipped"`
	JobsFailed         int         `json:"jobs_failed"`
	JobsCached         int         `json:"jobs_cached"`
	TotalInputTokens   int         `json:"total_input_tokens"`
	TotalOutputTokens  int         `json:"total_output_tokens"`
	TotalGenerationSec float64     `json:"total_generation_time_seconds"`
	JobResults         []JobResult `json:"job_results"`
	ArtifactsGenerated []string    `json:"artifacts_generated"`
	Errors             []string    `json:"errors,omitempty"`
}

// artifactMeta sits next to each artifact and carries what resume needs.
type artifactMeta struct {
	ArtifactID       string    `json:"artifact_id"`
	JobID            string    `json:"job_id"`
	Family           string    `json:"family"`
	ArtifactName     string    `json:"artifact_name"`
	OutputPath       string    `json:"output_path"`
	GeneratedAt      time.Time `json:"generated_at"`
	Fingerprint      string    `json:"fingerprint"`
	ModelUsed        string    `json:"model_used"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	ContextFiles     []string  `json:"context_files_used"`
	PromptTemplateID string    `json:"prompt_template_id"`
}

// Config tunes a run.
type Config struct {
	OutputDir string
	// Concurrency bounds parallel generation requests (default 2).
	Concurrency int
	Temperature float64
	// DisableCache bypasses the response cache for both reads and writes.
	DisableCache bool
	Retry        apierrors.RetryConfig
}

// Runner executes plans against one repository snapshot.
type Runner struct {
	cfg      Config
	client   llm.Client
	store    *cache.Store
	packager *contextpack.Packager
	repoRoot string
	idx      *index.RepoIndex
	signals  *index.RepoSignals
	base     string // shared context prefix, built once per runner
	log      logging.Logger
}

// New builds a Runner. The cache store lives under <output>/cache.
func New(cfg Config, client llm.Client, repoRoot string, idx *index.RepoIndex, signals *index.RepoSignals, log logging.Logger) (*Runner, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if client == nil {
		return nil, fmt.Errorf("generation client is required")
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = apierrors.DefaultRetryConfig()
	}

	log = logging.OrNop(log)
	store, err := cache.NewStore(filepath.Join(cfg.OutputDir, "cache"), log)
	if err != nil {
		return nil, err
	}

	base := contextpack.FileTree(idx, 100) + "\n\n" + contextpack.SignalsSection(signals)
	return &Runner{
		cfg:      cfg,
		client:   client,
		store:    store,
		packager: contextpack.NewPackager(nil, contextpack.Limits{}, log),
		repoRoot: repoRoot,
		idx:      idx,
		signals:  signals,
		base:     base,
		log:      log,
	}, nil
}

// Run executes every job in the plan with bounded concurrency. Job failures
// are recorded in the report, not returned; the error covers run-level
// problems only. Cancelling ctx stops new work and marks unfinished jobs
// failed.
func (r *Runner) Run(ctx context.Context, plan *planner.Plan, progress ProgressFunc) (*Report, error) {
	if len(plan.Jobs) == 0 {
		return nil, fmt.Errorf("plan %s has no jobs", plan.PlanID)
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	startedAt := time.Now().UTC()
	results := make([]JobResult, len(plan.Jobs))

	var totalIn, totalOut atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for i := range plan.Jobs {
		job := plan.Jobs[i]
		slot := &results[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				*slot = failedResult(job, fmt.Sprintf("cancelled before start: %v", err))
				progress(Progress{JobID: job.ID, ArtifactName: job.ArtifactName, State: StateFailed, Message: "cancelled"})
				return nil
			}
			res, fatal := r.executeJob(ctx, job, progress)
			totalIn.Add(int64(res.InputTokens))
			totalOut.Add(int64(res.OutputTokens))
			*slot = res
			// Cache failures void the idempotence guarantee, so they stop
			// the run instead of degrading into always-regenerate.
			return fatal
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		ReportID:    generateReportID(plan.PlanID, startedAt),
		RepoPath:    plan.RepoPath,
		RepoName:    plan.RepoName,
		PlanID:      plan.PlanID,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		TotalJobs:   len(plan.Jobs),
		JobResults:  results,
	}
	for _, res := range results {
		switch res.Status {
		case "completed":
			report.JobsCompleted++
			report.ArtifactsGenerated = append(report.ArtifactsGenerated, res.ArtifactPath)
		case "skipped":
			report.JobsSkipped++
		case "failed":
			report.JobsFailed++
			report.Errors = append(report.Errors, res.ArtifactName+": "+res.Error)
		}
		if res.Cached {
			report.JobsCached++
		}
		report.TotalGenerationSec += res.GenerationSeconds
	}
	report.TotalInputTokens = int(totalIn.Load())
	report.TotalOutputTokens = int(totalOut.Load())

	if err := SaveReport(report, filepath.Join(r.cfg.OutputDir, "report.json")); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	r.log.Info("run %s: %d completed, %d skipped, %d failed, %d cached",
		report.ReportID, report.JobsCompleted, report.JobsSkipped, report.JobsFailed, report.JobsCached)
	return report, nil
}

// executeJob runs one job to a terminal state. The second return value is
// non-nil only for cache failures, which are fatal for the whole run.
func (r *Runner) executeJob(ctx context.Context, job planner.PlanJob, progress ProgressFunc) (JobResult, error) {
	step := func(state JobState, msg string) {
		progress(Progress{JobID: job.ID, ArtifactName: job.ArtifactName, State: state, Message: msg})
	}
	step(StatePending, "queued")

	packed, err := r.packager.Package(r.repoRoot, r.idx, job.ContextRefs)
	if err != nil {
		step(StateFailed, err.Error())
		return failedResult(job, fmt.Sprintf("package context: %v", err)), nil
	}
	excerpts := packed.Context
	if excerpts == "" {
		excerpts = "No additional context files."
	}
	step(StateContextBuilt, fmt.Sprintf("%d files, %d tokens, %d redactions",
		len(packed.FilesUsed), packed.TokenCount, packed.Redactions))

	system, user, err := templates.Render(job.PromptTemplateID, r.base+"\n\n## Artifact-Specific Files\n\n"+excerpts)
	if err != nil {
		step(StateFailed, err.Error())
		return failedResult(job, err.Error()), nil
	}

	req := llm.Request{
		Model:       r.client.Model(),
		System:      system,
		User:        user,
		MaxTokens:   job.MaxOutputTokens,
		Temperature: r.cfg.Temperature,
	}
	fingerprint := cache.Fingerprint(cache.Request{
		Model:       req.Model,
		System:      req.System,
		User:        req.User,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	step(StateFingerprinted, fingerprint[:12])

	artifactPath := filepath.Join(r.cfg.OutputDir, filepath.FromSlash(job.OutputPath))
	metaPath := metaPathFor(artifactPath)

	// A prior run already produced this artifact from an identical request.
	if prior, ok := r.loadMeta(metaPath); ok && prior.Fingerprint == fingerprint {
		if _, err := os.Stat(artifactPath); err == nil {
			step(StateSkipped, "artifact exists with matching fingerprint")
			return JobResult{
				JobID:        job.ID,
				ArtifactName: job.ArtifactName,
				Status:       "skipped",
				ArtifactPath: artifactPath,
				MetaPath:     metaPath,
				Fingerprint:  fingerprint,
			}, nil
		}
	}

	var result *llm.Result
	cached := false
	start := time.Now()

	if !r.cfg.DisableCache {
		entry, err := r.store.Get(fingerprint)
		if err != nil {
			step(StateFailed, err.Error())
			return failedResult(job, fmt.Sprintf("cache read: %v", err)),
				fmt.Errorf("cache read for %s: %w", job.ArtifactName, err)
		}
		if entry != nil {
			result = &llm.Result{
				Text:         entry.ResponseText,
				InputTokens:  entry.InputTokens,
				OutputTokens: entry.OutputTokens,
				Model:        entry.Model,
			}
			cached = true
		}
	}

	if result == nil {
		step(StateCalling, r.client.Model())
		result, err = apierrors.RetryWithResult(ctx, r.cfg.Retry, func(ctx context.Context) (*llm.Result, error) {
			return r.client.Generate(ctx, req)
		}, r.log)
		if err != nil {
			step(StateFailed, err.Error())
			return failedResult(job, err.Error()), nil
		}

		if !r.cfg.DisableCache {
			// Cache before declaring completion so a crash between the two
			// never loses a paid response.
			putErr := r.store.Put(&cache.Entry{
				Fingerprint:      fingerprint,
				CreatedAt:        time.Now().UTC(),
				Model:            result.Model,
				InputTokens:      result.InputTokens,
				OutputTokens:     result.OutputTokens,
				ResponseText:     result.Text,
				PromptTemplateID: job.PromptTemplateID,
				ContextHash:      contextHash(r.base + excerpts),
			})
			if putErr != nil {
				step(StateFailed, putErr.Error())
				return failedResult(job, fmt.Sprintf("cache write: %v", putErr)),
					fmt.Errorf("cache write for %s: %w", job.ArtifactName, putErr)
			}
		}
	}

	if err := r.writeArtifact(artifactPath, metaPath, job, result, fingerprint, packed.FilesUsed); err != nil {
		step(StateFailed, err.Error())
		return failedResult(job, err.Error()), nil
	}

	elapsed := time.Since(start).Seconds()
	step(StateCompleted, artifactPath)
	return JobResult{
		JobID:             job.ID,
		ArtifactName:      job.ArtifactName,
		Status:            "completed",
		ArtifactPath:      artifactPath,
		MetaPath:          metaPath,
		Fingerprint:       fingerprint,
		InputTokens:       result.InputTokens,
		OutputTokens:      result.OutputTokens,
		Cached:            cached,
		GenerationSeconds: elapsed,
	}, nil
}

func (r *Runner) writeArtifact(artifactPath, metaPath string, job planner.PlanJob, result *llm.Result, fingerprint string, contextFiles []string) error {
	if err := os.MkdirAll(filepath.Dir(artifactPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(artifactPath, []byte(result.Text), 0o644); err != nil {
		return err
	}

	meta := artifactMeta{
		ArtifactID:       generateArtifactID(job.ID, fingerprint),
		JobID:            job.ID,
		Family:           string(job.Family),
		ArtifactName:     job.ArtifactName,
		OutputPath:       job.OutputPath,
		GeneratedAt:      time.Now().UTC(),
		Fingerprint:      fingerprint,
		ModelUsed:        result.Model,
		InputTokens:      result.InputTokens,
		OutputTokens:     result.OutputTokens,
		ContextFiles:     contextFiles,
		PromptTemplateID: job.PromptTemplateID,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, append(data, '\n'), 0o644)
}

func (r *Runner) loadMeta(path string) (*artifactMeta, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var meta artifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		r.log.Warn("unreadable artifact meta %s: %v", path, err)
		return nil, false
	}
	return &meta, true
}

func failedResult(job planner.PlanJob, message string) JobResult {
	return JobResult{
		JobID:        job.ID,
		ArtifactName: job.ArtifactName,
		Status:       "failed",
		Error:        message,
	}
}

func metaPathFor(artifactPath string) string {
	ext := filepath.Ext(artifactPath)
	return strings.TrimSuffix(artifactPath, ext) + ".meta.json"
}

func contextHash(context string) string {
	sum := sha256.Sum256([]byte(context))
	return hex.EncodeToString(sum[:])[:16]
}

func generateReportID(planID string, ts time.Time) string {
	sum := sha256.Sum256([]byte(planID + ":" + ts.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:8]
}

func generateArtifactID(jobID, fingerprint string) string {
	sum := sha256.Sum256([]byte(jobID + ":" + fingerprint))
	return hex.EncodeToString(sum[:])[:16]
}

// SaveReport persists a report as JSON.
func SaveReport(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadReport reads a persisted report.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
