package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"apivault/internal/config"
	"apivault/internal/index"
	"apivault/internal/logging"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

// app carries flag values and the loaded configuration across subcommands.
type app struct {
	cfgPath   string
	outputDir string
	verbose   bool
	quiet     bool

	cfg *config.Config
	log logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "apivault",
		Short: "Generate documentation artifacts for a repository",
		Long: `apivault scans a repository, plans which documentation artifacts are
worth generating within a token and time budget, and executes the plan
against the Anthropic API. All file content sent off-machine passes
through secret redaction first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if a.outputDir == "" {
				a.outputDir = cfg.Output.DefaultOutputDir
			}
			if a.verbose {
				logging.SetLevel(logging.LevelDebug)
			}
			logging.SetQuiet(a.quiet)
			a.log = logging.NewComponentLogger("cli")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to config file (default: apivault.toml, ~/.apivault/config.toml)")
	root.PersistentFlags().StringVarP(&a.outputDir, "output", "o", "", "output directory for index, plan, artifacts, and cache")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress log output")

	root.AddCommand(
		newScanCmd(a),
		newPlanCmd(a),
		newEstimateCmd(a),
		newRunCmd(a),
		newReportCmd(a),
		newAuditCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) indexPath() string   { return filepath.Join(a.outputDir, "index.json") }
func (a *app) signalsPath() string { return filepath.Join(a.outputDir, "signals.json") }
func (a *app) planPath() string    { return filepath.Join(a.outputDir, "plan.json") }
func (a *app) reportPath() string  { return filepath.Join(a.outputDir, "report.json") }

func (a *app) scanConfig() index.ScanConfig {
	return index.ScanConfig{
		ExcludedDirs:     a.cfg.ExcludedDirs(),
		MaxFileSizeBytes: a.cfg.Scan.MaxFileSizeBytes,
	}
}

// scanRepo walks the repository and extracts signals in one pass.
func (a *app) scanRepo(repoPath string) (*index.RepoIndex, *index.RepoSignals, error) {
	scanner := index.NewScanner(a.scanConfig(), logging.NewComponentLogger("scan"))
	idx, err := scanner.Scan(repoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", repoPath, err)
	}

	reader := func(entry index.FileEntry, maxBytes int) (string, error) {
		return index.ReadContent(idx.RepoPath, entry, maxBytes)
	}
	signals, err := index.NewExtractor(reader, logging.NewComponentLogger("signals")).Extract(idx)
	if err != nil {
		return nil, nil, fmt.Errorf("extract signals: %w", err)
	}
	return idx, signals, nil
}

// loadSnapshot prefers a previously saved index and signals for the same
// repository and falls back to a fresh scan.
func (a *app) loadSnapshot(repoPath string) (*index.RepoIndex, *index.RepoSignals, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, nil, err
	}
	idx, idxErr := index.LoadIndex(a.indexPath())
	signals, sigErr := index.LoadSignals(a.signalsPath())
	if idxErr == nil && sigErr == nil && idx.RepoPath == abs {
		a.log.Debug("reusing saved index for %s", abs)
		return idx, signals, nil
	}
	return a.scanRepo(repoPath)
}
