package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"apivault/internal/guard"
	"apivault/internal/index"
	"apivault/internal/logging"
	"apivault/internal/render"
)

func newAuditCmd(a *app) *cobra.Command {
	var minConfidence float64

	cmd := &cobra.Command{
		Use:   "audit [repo-path]",
		Short: "Detect secrets without sending anything off-machine",
		Long: `audit runs the same detection the context packager applies before any
content leaves the machine. Findings show file, pattern, and byte span
only; the matched secret bytes are never printed or stored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) == 1 {
				repoPath = args[0]
			}

			idx, err := index.NewScanner(a.scanConfig(), logging.NewComponentLogger("scan")).Scan(repoPath)
			if err != nil {
				return err
			}

			gcfg := guard.Config{MinConfidence: minConfidence}
			if gcfg.MinConfidence == 0 {
				gcfg.MinConfidence = a.cfg.Secrets.MinConfidence
			}
			for i, expr := range a.cfg.Secrets.AdditionalPatterns {
				pattern, err := guard.NewPattern(
					fmt.Sprintf("custom_%d", i+1), guard.SeverityHigh, 0.9, expr)
				if err != nil {
					return fmt.Errorf("secrets.additional_patterns[%d]: %w", i, err)
				}
				gcfg.ExtraPatterns = append(gcfg.ExtraPatterns, pattern)
			}
			g := guard.New(gcfg)

			var findings []render.AuditFinding
			for _, entry := range idx.Files {
				if guard.IsSensitivePath(entry.Path) {
					findings = append(findings, render.AuditFinding{Path: entry.Path, Blocked: true})
					continue
				}
				if entry.IsBinary {
					continue
				}
				content, err := index.ReadContent(idx.RepoPath, entry, int(entry.SizeBytes))
				if err != nil {
					a.log.Warn("read %s: %v", entry.Path, err)
					continue
				}
				_, report := g.Sanitize(content, entry.Path)
				if len(report.Entries) > 0 || report.Unscannable {
					findings = append(findings, render.AuditFinding{Path: entry.Path, Report: report})
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Audited %d files in %s\n\n", len(idx.Files), idx.RepoPath)
			render.Audit(out, findings)
			return nil
		},
	}

	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "confidence threshold for findings (default from config)")
	return cmd
}
