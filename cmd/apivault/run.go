package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apierrors "apivault/internal/errors"
	"apivault/internal/llm"
	"apivault/internal/logging"
	"apivault/internal/planner"
	"apivault/internal/render"
	"apivault/internal/runner"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		planPath    string
		model       string
		concurrency int
		noCache     bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "run [repo-path]",
		Short: "Execute a saved plan and write artifacts",
		Long: `run loads plan.json and generates each artifact. Identical requests are
served from the response cache, and rerunning after an interruption
skips artifacts that are already up to date. Requires ANTHROPIC_API_KEY
unless --dry-run is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) == 1 {
				repoPath = args[0]
			}
			if planPath == "" {
				planPath = a.planPath()
			}

			plan, err := planner.Load(planPath)
			if err != nil {
				return fmt.Errorf("load plan: %w", err)
			}
			idx, signals, err := a.loadSnapshot(repoPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%s plan %s: %d jobs, ~%d tokens, ~%ds\n",
					yellow("Dry run"), plan.PlanID, len(plan.Jobs),
					plan.TotalEstimatedTokens, plan.TotalEstimatedSecs)
				for _, job := range plan.Jobs {
					fmt.Fprintf(out, "  %-28s -> %s\n", job.ArtifactName, job.OutputPath)
				}
				return nil
			}

			apiKey := a.cfg.APIKey()
			if apiKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is not set")
			}
			if model == "" {
				model = a.cfg.Run.Model
			}
			client, err := llm.NewAnthropicClient(llm.Config{
				APIKey:  apiKey,
				Model:   model,
				Timeout: time.Duration(a.cfg.Run.TimeoutSecs) * time.Second,
			}, logging.NewComponentLogger("anthropic"))
			if err != nil {
				return err
			}

			if concurrency == 0 {
				concurrency = a.cfg.Run.Concurrency
			}
			retry := apierrors.DefaultRetryConfig()
			retry.MaxAttempts = a.cfg.Run.MaxRetries
			retry.BaseDelay = time.Duration(a.cfg.Run.RetryDelaySecs * float64(time.Second))

			r, err := runner.New(runner.Config{
				OutputDir:    a.outputDir,
				Concurrency:  concurrency,
				DisableCache: noCache || !a.cfg.Run.CacheEnabled,
				Retry:        retry,
			}, client, idx.RepoPath, idx, signals, logging.NewComponentLogger("runner"))
			if err != nil {
				return err
			}

			progress := func(p runner.Progress) {
				switch p.State {
				case runner.StateCalling:
					fmt.Fprintf(out, "  %s %s (%s)\n", cyan("generating"), p.ArtifactName, p.Message)
				case runner.StateSkipped:
					fmt.Fprintf(out, "  %s %s\n", yellow("up to date"), p.ArtifactName)
				case runner.StateCompleted:
					fmt.Fprintf(out, "  %s %s\n", green("done"), p.ArtifactName)
				case runner.StateFailed:
					fmt.Fprintf(out, "  %s %s: %s\n", "failed", p.ArtifactName, p.Message)
				}
			}

			fmt.Fprintf(out, "Running plan %s (%d jobs, concurrency %d)\n",
				plan.PlanID, len(plan.Jobs), concurrency)
			report, err := r.Run(cmd.Context(), plan, progress)
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			render.Report(out, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "path to plan.json (default: <output>/plan.json)")
	cmd.Flags().StringVar(&model, "model", "", "model to use (default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel generation requests (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be generated without calling the API")
	return cmd
}
