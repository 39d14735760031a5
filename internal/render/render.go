// Package render formats plans, reports, and audit results for the terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"apivault/internal/guard"
	"apivault/internal/planner"
	"apivault/internal/runner"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	failColor   = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

// Plan prints the selected jobs and budget usage.
func Plan(w io.Writer, plan *planner.Plan) {
	headerColor.Fprintf(w, "Plan %s for %s\n", plan.PlanID, plan.RepoName)
	fmt.Fprintf(w, "Budget: %d tokens / %ds | Estimated: %d tokens / %ds\n\n",
		plan.BudgetTokens, plan.BudgetSeconds, plan.TotalEstimatedTokens, plan.TotalEstimatedSecs)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Artifact", "Family", "Score", "Est Tokens", "Reason"})
	table.SetAutoWrapText(false)
	table.SetColWidth(60)
	for _, job := range plan.Jobs {
		table.Append([]string{
			job.ArtifactName,
			string(job.Family),
			fmt.Sprintf("%.1f", job.Score.TotalScore),
			fmt.Sprintf("%d", job.EstimatedInputTokens+job.MaxOutputTokens),
			truncate(job.Reason, 70),
		})
	}
	table.Render()

	if len(plan.ExcludedJobs) > 0 {
		fmt.Fprintln(w)
		dimColor.Fprintf(w, "Excluded (%d):\n", len(plan.ExcludedJobs))
		for _, ex := range plan.ExcludedJobs {
			dimColor.Fprintf(w, "  %-28s %-14s score %.1f  %s\n",
				ex.ArtifactName, string(ex.Family), ex.Score, ex.Reason)
		}
	}
}

// Report prints the run outcome per job plus usage totals.
func Report(w io.Writer, report *runner.Report) {
	headerColor.Fprintf(w, "Report %s for %s (plan %s)\n",
		report.ReportID, report.RepoName, report.PlanID)
	fmt.Fprintf(w, "Duration: %s\n\n", report.CompletedAt.Sub(report.StartedAt).Round(1e9))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Artifact", "Status", "Tokens In", "Tokens Out", "Cached", "Detail"})
	table.SetAutoWrapText(false)
	for _, res := range report.JobResults {
		detail := res.ArtifactPath
		if res.Status == "failed" {
			detail = truncate(res.Error, 60)
		}
		table.Append([]string{
			res.ArtifactName,
			statusLabel(res.Status),
			fmt.Sprintf("%d", res.InputTokens),
			fmt.Sprintf("%d", res.OutputTokens),
			boolLabel(res.Cached),
			detail,
		})
	}
	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Jobs: %s completed, %s skipped, %s failed, %d cached\n",
		okColor.Sprintf("%d", report.JobsCompleted),
		warnColor.Sprintf("%d", report.JobsSkipped),
		failColor.Sprintf("%d", report.JobsFailed),
		report.JobsCached)
	fmt.Fprintf(w, "Tokens: %d in / %d out | Generation time: %.1fs\n",
		report.TotalInputTokens, report.TotalOutputTokens, report.TotalGenerationSec)
}

// Pricing is the per-million-token price pair used for cost estimates.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost prices a token pair.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputPerMTok/1_000_000 +
		float64(outputTokens)*p.OutputPerMTok/1_000_000
}

// Estimate prints per-job token counts and projected cost for a plan before
// anything is spent.
func Estimate(w io.Writer, plan *planner.Plan, model string, pricing Pricing) {
	headerColor.Fprintf(w, "Cost estimate for plan %s (%s)\n\n", plan.PlanID, model)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Artifact", "Input Tokens", "Output Tokens", "Est Cost"})
	table.SetAutoWrapText(false)

	totalIn, totalOut := 0, 0
	for _, job := range plan.Jobs {
		totalIn += job.EstimatedInputTokens
		totalOut += job.MaxOutputTokens
		table.Append([]string{
			job.ArtifactName,
			fmt.Sprintf("%d", job.EstimatedInputTokens),
			fmt.Sprintf("%d", job.MaxOutputTokens),
			fmt.Sprintf("$%.4f", pricing.Cost(job.EstimatedInputTokens, job.MaxOutputTokens)),
		})
	}
	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total input tokens:  %d\n", totalIn)
	fmt.Fprintf(w, "Total output tokens: %d\n", totalOut)
	okColor.Fprintf(w, "Estimated cost:      $%.4f\n", pricing.Cost(totalIn, totalOut))
	dimColor.Fprintln(w, "Actual costs may vary; cached requests are free.")
}

// AuditFinding is one file's detection summary for the audit view.
type AuditFinding struct {
	Path    string
	Blocked bool
	Report  guard.Report
}

// Audit prints detection findings. Spans and pattern names only; the matched
// bytes are not available and must never be.
func Audit(w io.Writer, findings []AuditFinding) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Pattern", "Severity", "Span", "Redacted"})
	rows := 0
	for _, f := range findings {
		if f.Blocked {
			table.Append([]string{f.Path, "sensitive_path", string(guard.SeverityCritical), "-", "blocked"})
			rows++
			continue
		}
		for _, entry := range f.Report.Entries {
			table.Append([]string{
				f.Path,
				entry.Pattern,
				string(entry.Severity),
				fmt.Sprintf("%d-%d", entry.Start, entry.End),
				boolLabel(entry.Redacted),
			})
			rows++
		}
	}
	if rows == 0 {
		okColor.Fprintln(w, "No secrets detected.")
		return
	}
	table.Render()
}

func statusLabel(status string) string {
	switch status {
	case "completed":
		return okColor.Sprint(status)
	case "skipped":
		return warnColor.Sprint(status)
	case "failed":
		return failColor.Sprint(status)
	}
	return status
}

func boolLabel(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-3]) + "..."
}
