package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"apivault/internal/planner"
	"apivault/internal/render"
)

// pricingFor maps a model name to approximate per-million-token prices.
func pricingFor(model string) render.Pricing {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "opus"):
		return render.Pricing{InputPerMTok: 15.0, OutputPerMTok: 75.0}
	case strings.Contains(name, "haiku"):
		return render.Pricing{InputPerMTok: 0.25, OutputPerMTok: 1.25}
	default:
		return render.Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}
	}
}

func newEstimateCmd(a *app) *cobra.Command {
	var (
		planPath string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate API costs for a saved plan",
		Long: `estimate prices the token counts in plan.json without making any API
calls, so the cost of a run is known before anything is spent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if planPath == "" {
				planPath = a.planPath()
			}
			plan, err := planner.Load(planPath)
			if err != nil {
				return fmt.Errorf("load plan: %w", err)
			}
			if model == "" {
				model = a.cfg.Run.Model
			}

			render.Estimate(cmd.OutOrStdout(), plan, model, pricingFor(model))
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "path to plan.json (default: <output>/plan.json)")
	cmd.Flags().StringVar(&model, "model", "", "model for pricing (default from config)")
	return cmd
}
