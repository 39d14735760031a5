package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"apivault/internal/render"
	"apivault/internal/runner"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		path   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the result of the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = a.reportPath()
			}
			report, err := runner.LoadReport(path)
			if err != nil {
				return fmt.Errorf("load report: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			render.Report(out, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "path to report.json (default: <output>/report.json)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON instead of a table")
	return cmd
}
