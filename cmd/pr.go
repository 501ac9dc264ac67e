package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/coderev/internal/git"
	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/pipeline"
)

var (
	prRepo    string
	prComment bool
	prJSON    bool
)

var prCmd = &cobra.Command{
	Use:   "pr <number>",
	Short: "Review a GitHub pull request",
	Long: `Fetch the changed files of a GitHub pull request, review them, and
print the consolidated report. Requires the gh CLI to be authenticated.

The repository is detected from the current directory's origin remote, or
passed explicitly with --repo owner/name.

Examples:
  coderev pr 123
  coderev pr 123 --repo joescharf/coderev --comment`,
	Args: cobra.ExactArgs(1),
	RunE: prRun,
}

func init() {
	prCmd.Flags().StringVar(&prRepo, "repo", "", "Repository as owner/name (default: detect from origin)")
	prCmd.Flags().BoolVar(&prComment, "comment", false, "Post the report as a PR comment")
	prCmd.Flags().BoolVar(&prJSON, "json", false, "Print the raw report as JSON")
	rootCmd.AddCommand(prCmd)
}

// resolveRepo returns (owner, repo) from --repo or the origin remote.
func resolveRepo() (string, string, error) {
	if prRepo != "" {
		parts := strings.SplitN(prRepo, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid --repo %q: expected owner/name", prRepo)
		}
		return parts[0], parts[1], nil
	}

	g := newGitClient()
	remote, err := g.RemoteURL(".")
	if err != nil {
		return "", "", fmt.Errorf("detect repository: %w (use --repo owner/name)", err)
	}
	return git.ExtractOwnerRepo(remote)
}

func prRun(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(args[0])
	if err != nil || number <= 0 {
		return fmt.Errorf("invalid PR number: %s", args[0])
	}

	owner, repo, err := resolveRepo()
	if err != nil {
		return err
	}

	gh := git.NewGitHubClient()
	ui.Info("Fetching changed files for %s/%s#%d...", owner, repo, number)
	units, pr, err := git.FetchPRUnits(gh, owner, repo, number, pipeline.MaxFileBytes)
	if err != nil {
		return fmt.Errorf("fetch PR files: %w", err)
	}
	if len(units) == 0 {
		return fmt.Errorf("PR #%d has no reviewable source files", number)
	}

	svc, err := newReviewServices()
	if err != nil {
		return err
	}

	ui.Info("Reviewing %d file(s) from %q...", len(units), pr.Title)
	report, err := svc.controller.Run(cmd.Context(), units, reviewOptions())
	if err != nil {
		return err
	}

	if st, serr := getStore(); serr == nil {
		if serr = st.SaveReport(cmd.Context(), report); serr != nil {
			ui.Warning("Failed to archive report: %v", serr)
		}
	}

	if prComment {
		if err := gh.PostComment(owner, repo, number, git.FormatReviewComment(report)); err != nil {
			ui.Warning("Failed to post PR comment: %v", err)
		} else {
			ui.Success("Posted review comment to %s/%s#%d", owner, repo, number)
		}
	}

	if prJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	ui.RenderReport(report)
	if report.Recommendation == models.RecommendationReject {
		return fmt.Errorf("review recommends rejecting PR #%d", number)
	}
	return nil
}
