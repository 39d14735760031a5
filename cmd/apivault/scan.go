package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"apivault/internal/index"
)

func newScanCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan [repo-path]",
		Short: "Index a repository and extract planning signals",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) == 1 {
				repoPath = args[0]
			}

			idx, signals, err := a.scanRepo(repoPath)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
				return err
			}
			if err := index.SaveIndex(idx, a.indexPath()); err != nil {
				return fmt.Errorf("save index: %w", err)
			}
			if err := index.SaveSignals(signals, a.signalsPath()); err != nil {
				return fmt.Errorf("save signals: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(signals, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "%s %s\n", green("Scanned"), idx.RepoPath)
			fmt.Fprintf(out, "  Files indexed: %d (%d bytes)\n", len(idx.Files), idx.TotalSizeBytes)
			fmt.Fprintf(out, "  Primary language: %s\n", orNone(signals.PrimaryLanguage))
			fmt.Fprintf(out, "  Frameworks: %s\n", frameworkList(signals))
			fmt.Fprintf(out, "  Docs %.0f/10 | Tests %.0f/10 | CI %.0f/10 | Security %.0f/10\n",
				signals.Docs.Score, signals.Testing.Score, signals.CI.Score, signals.Security.Score)
			if len(signals.Gaps) > 0 {
				fmt.Fprintf(out, "  %s\n", yellow(fmt.Sprintf("Gaps (%d):", len(signals.Gaps))))
				for _, gap := range signals.Gaps {
					fmt.Fprintf(out, "    - %s\n", gap)
				}
			}
			fmt.Fprintf(out, "Saved %s and %s\n", cyan(a.indexPath()), cyan(a.signalsPath()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit signals as JSON instead of a summary")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "none detected"
	}
	return s
}

func frameworkList(signals *index.RepoSignals) string {
	if len(signals.Frameworks) == 0 {
		return "none detected"
	}
	names := make([]string, 0, len(signals.Frameworks))
	for _, fw := range signals.Frameworks {
		names = append(names, fw.Name)
	}
	return strings.Join(names, ", ")
}
