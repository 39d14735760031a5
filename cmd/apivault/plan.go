package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"apivault/internal/catalog"
	"apivault/internal/logging"
	"apivault/internal/planner"
	"apivault/internal/render"
)

func newPlanCmd(a *app) *cobra.Command {
	var (
		budgetTokens  int
		budgetSeconds int
		families      []string
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "plan [repo-path]",
		Short: "Select artifacts worth generating within budget",
		Long: `plan scores every applicable artifact against the repository's signals
and selects the highest-value set that fits the token and time budgets.
The result is deterministic for a given repository snapshot and saved to
plan.json for the run command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) == 1 {
				repoPath = args[0]
			}

			idx, signals, err := a.loadSnapshot(repoPath)
			if err != nil {
				return err
			}

			opts := planner.Options{
				BudgetTokens:  budgetTokens,
				BudgetSeconds: budgetSeconds,
			}
			if opts.BudgetTokens == 0 {
				opts.BudgetTokens = a.cfg.Plan.DefaultBudgetTokens
			}
			if opts.BudgetSeconds == 0 {
				opts.BudgetSeconds = a.cfg.Plan.DefaultBudgetSeconds
			}
			requested := families
			if len(requested) == 0 {
				requested = a.cfg.Plan.DefaultFamilies
			}
			for _, name := range requested {
				family, ok := catalog.ParseFamily(name)
				if !ok {
					return fmt.Errorf("unknown artifact family %q", name)
				}
				opts.Families = append(opts.Families, family)
			}

			plan, err := planner.New(logging.NewComponentLogger("planner")).CreatePlan(idx, signals, opts)
			if err != nil {
				return err
			}
			if err := planner.Save(plan, a.planPath()); err != nil {
				return fmt.Errorf("save plan: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			render.Plan(out, plan)
			fmt.Fprintf(out, "\nSaved %s\n", cyan(a.planPath()))
			return nil
		},
	}

	cmd.Flags().IntVar(&budgetTokens, "budget-tokens", 0, "token budget for the whole plan (default from config)")
	cmd.Flags().IntVar(&budgetSeconds, "budget-seconds", 0, "wall-clock budget in seconds (default from config)")
	cmd.Flags().StringSliceVar(&families, "families", nil, "artifact families to consider (docs,security,tests,api,observability,product)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the plan as JSON instead of a table")
	return cmd
}
