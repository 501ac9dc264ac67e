package git

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/joescharf/coderev/internal/models"
)

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Branch string `json:"headRefName"`
	URL    string `json:"url"`
}

// ChangedFile is one file touched by a pull request.
type ChangedFile struct {
	Path      string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// GitHubClient wraps the gh CLI for pull request access.
type GitHubClient interface {
	PRView(owner, repo string, number int) (*PullRequest, error)
	ChangedFiles(owner, repo string, number int) ([]ChangedFile, error)
	FileContent(owner, repo, ref, path string) (string, error)
	PostComment(owner, repo string, number int, body string) error
}

// RealGitHubClient implements GitHubClient using the gh CLI.
type RealGitHubClient struct{}

// NewGitHubClient returns a new RealGitHubClient.
func NewGitHubClient() *RealGitHubClient {
	return &RealGitHubClient{}
}

func ghCmd(args ...string) (string, error) {
	out, err := exec.Command("gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealGitHubClient) PRView(owner, repo string, number int) (*PullRequest, error) {
	out, err := ghCmd("pr", "view", fmt.Sprintf("%d", number),
		"--repo", fmt.Sprintf("%s/%s", owner, repo),
		"--json", "number,title,state,headRefName,url",
	)
	if err != nil {
		return nil, err
	}

	var pr PullRequest
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return nil, fmt.Errorf("parse PR: %w", err)
	}
	return &pr, nil
}

func (c *RealGitHubClient) ChangedFiles(owner, repo string, number int) ([]ChangedFile, error) {
	out, err := ghCmd("api",
		fmt.Sprintf("repos/%s/%s/pulls/%d/files", owner, repo, number),
		"--paginate",
	)
	if err != nil {
		return nil, err
	}

	var files []ChangedFile
	if err := json.Unmarshal([]byte(out), &files); err != nil {
		return nil, fmt.Errorf("parse changed files: %w", err)
	}
	return files, nil
}

func (c *RealGitHubClient) FileContent(owner, repo, ref, path string) (string, error) {
	out, err := ghCmd("api",
		fmt.Sprintf("repos/%s/%s/contents/%s?ref=%s", owner, repo, path, ref),
		"--jq", ".content",
	)
	if err != nil {
		return "", err
	}
	return DecodeContent(out)
}

func (c *RealGitHubClient) PostComment(owner, repo string, number int, body string) error {
	_, err := ghCmd("pr", "comment", fmt.Sprintf("%d", number),
		"--repo", fmt.Sprintf("%s/%s", owner, repo),
		"--body", body,
	)
	return err
}

// DecodeContent decodes the base64 body returned by the contents API.
func DecodeContent(encoded string) (string, error) {
	// The API wraps base64 at 60 columns.
	cleaned := strings.ReplaceAll(strings.TrimSpace(encoded), "\n", "")
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return string(data), nil
}

// FetchPRUnits turns a pull request into reviewable code units: removed
// files, unsupported languages, and oversized files are skipped.
func FetchPRUnits(client GitHubClient, owner, repo string, number int, maxBytes int) ([]models.CodeUnit, *PullRequest, error) {
	pr, err := client.PRView(owner, repo, number)
	if err != nil {
		return nil, nil, err
	}
	files, err := client.ChangedFiles(owner, repo, number)
	if err != nil {
		return nil, nil, err
	}

	var units []models.CodeUnit
	for _, f := range files {
		if f.Status == "removed" {
			continue
		}
		language := models.LanguageForPath(f.Path)
		if !models.LanguageSupported(language) {
			slog.Debug("skipping unsupported file", "path", f.Path)
			continue
		}
		content, err := client.FileContent(owner, repo, pr.Branch, f.Path)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", f.Path, "error", err)
			continue
		}
		if maxBytes > 0 && len(content) > maxBytes {
			slog.Warn("skipping oversized file", "path", f.Path, "bytes", len(content))
			continue
		}
		units = append(units, models.NewCodeUnit(f.Path, content, language))
	}
	return units, pr, nil
}

// FormatReviewComment renders a report as a PR comment body.
func FormatReviewComment(report *models.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Code Review: %s\n\n", strings.ToUpper(strings.ReplaceAll(string(report.Recommendation), "_", " ")))
	fmt.Fprintf(&sb, "**Score:** %d/100\n\n%s\n", report.Score, report.Summary)

	if len(report.Issues) > 0 {
		sb.WriteString("\n| Severity | File | Line | Issue |\n|---|---|---|---|\n")
		for _, f := range report.Issues {
			fmt.Fprintf(&sb, "| %s | %s | %d | %s |\n", f.Severity, f.Path, f.LineStart, f.Title)
		}
	}
	return sb.String()
}
