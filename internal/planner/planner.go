// Package planner scores artifact candidates against repository signals and
// selects a deterministic set within token and time budgets.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"apivault/internal/catalog"
	"apivault/internal/contextpack"
	"apivault/internal/index"
	"apivault/internal/logging"
)

// Weights combine the scoring factors. ContextCost is negative because less
// context is better.
type Weights struct {
	Reusability float64 `json:"reusability"`
	TimeSaved   float64 `json:"time_saved"`
	Leverage    float64 `json:"leverage"`
	ContextCost float64 `json:"context_cost"`
	GapWeight   float64 `json:"gap_weight"`
}

// DefaultWeights returns the documented scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Reusability: 1.0,
		TimeSaved:   1.5,
		Leverage:    2.0,
		ContextCost: -0.5,
		GapWeight:   1.5,
	}
}

// ScoreBreakdown records every factor that produced a total score. All
// factors sit on a 0 to 10 scale.
type ScoreBreakdown struct {
	Reusability float64 `json:"reusability"`
	TimeSaved   float64 `json:"time_saved"`
	Leverage    float64 `json:"leverage"`
	ContextCost float64 `json:"context_cost"`
	GapWeight   float64 `json:"gap_weight"`
	TotalScore  float64 `json:"total_score"`
}

// ComputeTotal applies weights to the factors.
func (s ScoreBreakdown) ComputeTotal(w Weights) float64 {
	return s.Reusability*w.Reusability +
		s.TimeSaved*w.TimeSaved +
		s.Leverage*w.Leverage +
		s.ContextCost*w.ContextCost +
		s.GapWeight*w.GapWeight
}

// PlanJob is one selected artifact generation job.
type PlanJob struct {
	ID                   string           `json:"id"`
	Family               catalog.Family   `json:"family"`
	ArtifactName         string           `json:"artifact_name"`
	OutputPath           string           `json:"output_path"`
	PromptTemplateID     string           `json:"prompt_template_id"`
	MaxOutputTokens      int              `json:"max_output_tokens"`
	ContextRefs          []contextpack.Ref `json:"context_refs"`
	Score                ScoreBreakdown   `json:"score_breakdown"`
	Reason               string           `json:"reason"`
	EstimatedInputTokens int              `json:"estimated_input_tokens"`
	EstimatedSeconds     int              `json:"estimated_seconds"`
}

// ExcludedJob records why a candidate was left out of the plan.
type ExcludedJob struct {
	ArtifactName    string         `json:"artifact_name"`
	Family          catalog.Family `json:"family"`
	Score           float64        `json:"score"`
	EstimatedTokens int            `json:"estimated_tokens"`
	Reason          string         `json:"reason"`
}

// Plan is the complete, reproducible selection for one repository snapshot.
type Plan struct {
	PlanID               string           `json:"plan_id"`
	RepoPath             string           `json:"repo_path"`
	RepoName             string           `json:"repo_name"`
	CreatedAt            time.Time        `json:"created_at"`
	BudgetTokens         int              `json:"budget_tokens"`
	BudgetSeconds        int              `json:"budget_seconds"`
	FamiliesRequested    []catalog.Family `json:"families_requested"`
	Jobs                 []PlanJob        `json:"jobs"`
	TotalEstimatedTokens int              `json:"total_estimated_tokens"`
	TotalEstimatedSecs   int              `json:"total_estimated_seconds"`
	JobsWithinBudget     int              `json:"jobs_within_budget"`
	ExcludedJobs         []ExcludedJob    `json:"excluded_jobs,omitempty"`
}

// Fixed per-job token overhead for the system prompt and formatting.
const overheadTokens = 500

// MinScoreThreshold drops candidates whose weighted score is too low to be
// worth a request at any budget.
const MinScoreThreshold = 10.0

// Options tune a single planning run. Zero values get defaults.
type Options struct {
	BudgetTokens  int
	BudgetSeconds int
	Families      []catalog.Family
	Weights       *Weights
	// Candidates overrides the builtin artifact catalog; callers can extend
	// it with their own templates. Nil means catalog.Builtin().
	Candidates []catalog.Template
	// Now fixes the plan timestamp, mainly for reproducibility in tests.
	Now time.Time
}

// Planner builds plans from an index plus signals.
type Planner struct {
	log logging.Logger
}

// New builds a Planner.
func New(log logging.Logger) *Planner {
	return &Planner{log: logging.OrNop(log)}
}

type candidate struct {
	template      catalog.Template
	score         ScoreBreakdown
	refs          []contextpack.Ref
	contextTokens int
	jobTokens     int
	jobSeconds    int
}

// CreatePlan scores every applicable template and greedily packs the highest
// scorers into the budgets. Selection is deterministic: identical inputs
// yield an identical job set in identical order.
func (p *Planner) CreatePlan(idx *index.RepoIndex, signals *index.RepoSignals, opts Options) (*Plan, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	if err := signals.Validate(); err != nil {
		return nil, err
	}
	if opts.BudgetTokens <= 0 {
		return nil, fmt.Errorf("token budget must be positive, got %d", opts.BudgetTokens)
	}
	if opts.BudgetSeconds <= 0 {
		return nil, fmt.Errorf("time budget must be positive, got %d", opts.BudgetSeconds)
	}

	families := opts.Families
	if len(families) == 0 {
		families = catalog.AllFamilies()
	}
	requested := make(map[catalog.Family]bool, len(families))
	for _, f := range families {
		requested[f] = true
	}

	weights := DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	planID := generatePlanID(idx.RepoPath, now)

	pool := opts.Candidates
	if pool == nil {
		pool = catalog.Builtin()
	}

	var candidates []candidate
	var excluded []ExcludedJob
	for _, tmpl := range pool {
		if !requested[tmpl.Family] {
			continue
		}
		if !tmpl.MeetsPrerequisites(signals) {
			continue
		}

		refs := contextpack.SelectRefs(tmpl.Name, string(tmpl.Family), idx)
		contextTokens := contextpack.EstimateTokens(refs)
		score := p.score(tmpl, signals.Gaps, contextTokens, weights)

		if score.TotalScore < MinScoreThreshold {
			excluded = append(excluded, ExcludedJob{
				ArtifactName:    tmpl.Name,
				Family:          tmpl.Family,
				Score:           score.TotalScore,
				EstimatedTokens: contextTokens + tmpl.MaxOutputTokens + overheadTokens,
				Reason:          "Below minimum score threshold",
			})
			continue
		}

		candidates = append(candidates, candidate{
			template:      tmpl,
			score:         score,
			refs:          refs,
			contextTokens: contextTokens,
			jobTokens:     contextTokens + tmpl.MaxOutputTokens + overheadTokens,
			jobSeconds:    EstimateJobSeconds(contextTokens),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score.TotalScore != candidates[j].score.TotalScore {
			return candidates[i].score.TotalScore > candidates[j].score.TotalScore
		}
		if candidates[i].jobTokens != candidates[j].jobTokens {
			return candidates[i].jobTokens < candidates[j].jobTokens
		}
		return candidates[i].template.Name < candidates[j].template.Name
	})

	plan := &Plan{
		PlanID:            planID,
		RepoPath:          idx.RepoPath,
		RepoName:          idx.RepoName,
		CreatedAt:         now,
		BudgetTokens:      opts.BudgetTokens,
		BudgetSeconds:     opts.BudgetSeconds,
		FamiliesRequested: families,
	}

	// Greedy, no backtracking: candidates are taken in score order and one
	// that does not fit is excluded for good.
	for _, c := range candidates {
		overTokens := plan.TotalEstimatedTokens+c.jobTokens > opts.BudgetTokens
		overSeconds := plan.TotalEstimatedSecs+c.jobSeconds > opts.BudgetSeconds
		if overTokens || overSeconds {
			reason := "Exceeded token budget"
			if !overTokens {
				reason = "Exceeded time budget"
			}
			excluded = append(excluded, ExcludedJob{
				ArtifactName:    c.template.Name,
				Family:          c.template.Family,
				Score:           c.score.TotalScore,
				EstimatedTokens: c.jobTokens,
				Reason:          reason,
			})
			continue
		}

		plan.Jobs = append(plan.Jobs, PlanJob{
			ID:                   generateJobID(planID, c.template.Name),
			Family:               c.template.Family,
			ArtifactName:         c.template.Name,
			OutputPath:           filepath.ToSlash(filepath.Join("artifacts", string(c.template.Family), c.template.OutputFilename)),
			PromptTemplateID:     c.template.PromptTemplateID,
			MaxOutputTokens:      c.template.MaxOutputTokens,
			ContextRefs:          c.refs,
			Score:                c.score,
			Reason:               selectionReason(c.template, c.score, signals.Gaps),
			EstimatedInputTokens: c.contextTokens + overheadTokens,
			EstimatedSeconds:     c.jobSeconds,
		})
		plan.TotalEstimatedTokens += c.jobTokens
		plan.TotalEstimatedSecs += c.jobSeconds
	}

	plan.JobsWithinBudget = len(plan.Jobs)
	plan.ExcludedJobs = excluded
	p.log.Info("plan %s: %d jobs selected, %d excluded, est %d tokens / %ds",
		planID, len(plan.Jobs), len(excluded), plan.TotalEstimatedTokens, plan.TotalEstimatedSecs)
	return plan, nil
}

func (p *Planner) score(tmpl catalog.Template, gaps []string, contextTokens int, weights Weights) ScoreBreakdown {
	contextCost := tmpl.BaseContextCost + float64(contextTokens)/2000
	if contextCost > 10 {
		contextCost = 10
	}
	breakdown := ScoreBreakdown{
		Reusability: tmpl.BaseReusability,
		TimeSaved:   tmpl.BaseTimeSaved,
		Leverage:    tmpl.BaseLeverage,
		ContextCost: contextCost,
		GapWeight:   tmpl.GapWeight(gaps),
	}
	breakdown.TotalScore = breakdown.ComputeTotal(weights)
	return breakdown
}

// EstimateJobSeconds predicts wall time for one generation request from its
// context size.
func EstimateJobSeconds(contextTokens int) int {
	return 20 + contextTokens/4000
}

func selectionReason(tmpl catalog.Template, score ScoreBreakdown, gaps []string) string {
	factors := []struct {
		label string
		value float64
	}{
		{"high reusability", score.Reusability},
		{"significant time savings", score.TimeSaved},
		{"high leverage impact", score.Leverage},
		{"addresses identified gaps", score.GapWeight},
	}
	top := factors[0]
	for _, f := range factors[1:] {
		if f.value > top.value {
			top = f
		}
	}
	parts := []string{fmt.Sprintf("Selected for %s (score: %.1f)", top.label, top.value)}

	if matched := tmpl.MatchedGaps(gaps); len(matched) > 0 {
		parts = append(parts, "Addresses: "+matched[0])
	}
	if len(tmpl.RequiredSignals) > 0 {
		names := strings.ReplaceAll(strings.Join(tmpl.RequiredSignals, ", "), "_", " ")
		parts = append(parts, "Applicable because project has: "+names)
	}
	return strings.Join(parts, "; ")
}

func generatePlanID(repoPath string, ts time.Time) string {
	sum := sha256.Sum256([]byte(repoPath + ":" + ts.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:16]
}

func generateJobID(planID, artifactName string) string {
	sum := sha256.Sum256([]byte(planID + ":" + artifactName))
	return hex.EncodeToString(sum[:])[:12]
}

// Save persists the plan as JSON.
func Save(plan *Plan, path string) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Load reads and validates a persisted plan.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if plan.PlanID == "" {
		return nil, fmt.Errorf("plan at %s has no plan id", path)
	}
	return &plan, nil
}
