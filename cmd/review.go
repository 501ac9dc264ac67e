package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/coderev/internal/git"
	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/pipeline"
)

var (
	reviewDiff       bool
	reviewDiffBase   string
	reviewJSON       bool
	reviewNoArchive  bool
	reviewNoSecurity bool
	reviewNoPerf     bool
	reviewNoDocs     bool
	reviewConfidence float64
)

var reviewCmd = &cobra.Command{
	Use:   "review [files...]",
	Short: "Review files and print a consolidated report",
	Long: `Review one or more files synchronously and print the consolidated
report. With --diff, the files changed on the current branch are reviewed
instead of explicit arguments.

Examples:
  coderev review app.py handlers.py
  coderev review --diff
  coderev review --diff --base origin/main --json`,
	RunE: reviewRun,
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewDiff, "diff", false, "Review files changed relative to --base")
	reviewCmd.Flags().StringVar(&reviewDiffBase, "base", "HEAD", "Base ref for --diff")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Print the raw report as JSON")
	reviewCmd.Flags().BoolVar(&reviewNoArchive, "no-archive", false, "Skip saving the report to the local archive")
	reviewCmd.Flags().BoolVar(&reviewNoSecurity, "no-security", false, "Disable the security producer")
	reviewCmd.Flags().BoolVar(&reviewNoPerf, "no-performance", false, "Disable the performance producer")
	reviewCmd.Flags().BoolVar(&reviewNoDocs, "no-documentation", false, "Disable the documentation producer")
	reviewCmd.Flags().Float64Var(&reviewConfidence, "confidence", 0, "Minimum finding confidence (default from config)")
	rootCmd.AddCommand(reviewCmd)
}

func reviewOptions() models.Options {
	opts := models.DefaultOptions()
	if reviewNoSecurity {
		opts.EnableSecurity = false
	}
	if reviewNoPerf {
		opts.EnablePerformance = false
	}
	if reviewNoDocs {
		opts.EnableDocumentation = false
	}
	if reviewConfidence > 0 {
		opts.ConfidenceThreshold = reviewConfidence
	} else if v := viper.GetFloat64("review.confidence_threshold"); v > 0 {
		opts.ConfidenceThreshold = v
	}
	return opts
}

// loadUnits reads the given paths into code units, skipping unreadable files
// with a warning.
func loadUnits(paths []string) ([]models.CodeUnit, error) {
	units := make([]models.CodeUnit, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			ui.Warning("Skipping %s: %v", p, err)
			continue
		}
		units = append(units, models.NewCodeUnit(filepath.ToSlash(p), string(content), ""))
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no readable files to review")
	}
	return units, nil
}

// newGitClient builds the local git client, replaceable in tests.
var newGitClient = func() git.Client { return git.NewClient() }

// changedUnits resolves --diff into code units via git.
func changedUnits(base string) ([]models.CodeUnit, error) {
	g := newGitClient()
	root, err := g.RepoRoot(".")
	if err != nil {
		return nil, fmt.Errorf("not inside a git repository: %w", err)
	}
	if branch, berr := g.CurrentBranch(root); berr == nil {
		ui.Info("Reviewing changes on %s relative to %s", branch, base)
	}
	if dirty, derr := g.IsDirty(root); derr == nil && dirty {
		ui.Warning("Working tree has uncommitted changes; files are reviewed as they are on disk")
	}
	paths, err := g.ChangedPaths(root, base)
	if err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no changed files relative to %s", base)
	}

	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if models.LanguageSupported(models.LanguageForPath(p)) {
			abs = append(abs, filepath.Join(root, p))
		}
	}
	if len(abs) == 0 {
		return nil, fmt.Errorf("no reviewable source files changed relative to %s", base)
	}
	return loadUnits(abs)
}

func reviewRun(cmd *cobra.Command, args []string) error {
	var (
		units []models.CodeUnit
		err   error
	)
	switch {
	case reviewDiff:
		units, err = changedUnits(reviewDiffBase)
	case len(args) > 0:
		units, err = loadUnits(args)
	default:
		return fmt.Errorf("nothing to review: pass file paths or use --diff")
	}
	if err != nil {
		return err
	}

	svc, err := newReviewServices()
	if err != nil {
		return err
	}

	ui.Info("Reviewing %d file(s)...", len(units))
	report, err := svc.controller.Run(cmd.Context(), units, reviewOptions())
	if err != nil {
		if pipeline.IsValidation(err) {
			return fmt.Errorf("invalid submission: %w", err)
		}
		return err
	}

	if !reviewNoArchive {
		if st, serr := getStore(); serr == nil {
			if serr = st.SaveReport(cmd.Context(), report); serr != nil {
				ui.Warning("Failed to archive report: %v", serr)
			}
		} else {
			ui.Warning("Archive unavailable: %v", serr)
		}
	}

	if reviewJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	ui.RenderReport(report)
	if report.Recommendation == models.RecommendationReject {
		os.Exit(1)
	}
	return nil
}
