package git

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/coderev/internal/models"
)

func TestExtractOwnerRepo(t *testing.T) {
	tests := []struct {
		url   string
		owner string
		repo  string
		ok    bool
	}{
		{"git@github.com:octocat/hello.git", "octocat", "hello", true},
		{"https://github.com/octocat/hello.git", "octocat", "hello", true},
		{"https://github.com/octocat/hello", "octocat", "hello", true},
		{"http://github.com/octocat/hello", "octocat", "hello", true},
		{"not-a-url", "", "", false},
		{"https://github.com/", "", "", false},
	}
	for _, tt := range tests {
		owner, repo, err := ExtractOwnerRepo(tt.url)
		if !tt.ok {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}

func TestDecodeContent(t *testing.T) {
	// The contents API wraps base64 at 60 columns.
	raw := base64.StdEncoding.EncodeToString([]byte("print('hello world')\n"))
	wrapped := raw[:10] + "\n" + raw[10:]

	decoded, err := DecodeContent(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "print('hello world')\n", decoded)

	_, err = DecodeContent("!!not base64!!")
	assert.Error(t, err)
}

// fakeGitHub serves canned PR data.
type fakeGitHub struct {
	pr       PullRequest
	files    []ChangedFile
	contents map[string]string
	comments []string
}

func (f *fakeGitHub) PRView(string, string, int) (*PullRequest, error) {
	pr := f.pr
	return &pr, nil
}

func (f *fakeGitHub) ChangedFiles(string, string, int) ([]ChangedFile, error) {
	return f.files, nil
}

func (f *fakeGitHub) FileContent(_, _, _, path string) (string, error) {
	content, ok := f.contents[path]
	if !ok {
		return "", fmt.Errorf("no content for %s", path)
	}
	return content, nil
}

func (f *fakeGitHub) PostComment(_, _ string, _ int, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func TestFetchPRUnits_Filters(t *testing.T) {
	client := &fakeGitHub{
		pr: PullRequest{Number: 7, Branch: "feature", Title: "Add things"},
		files: []ChangedFile{
			{Path: "app.py", Status: "modified"},
			{Path: "old.py", Status: "removed"},
			{Path: "logo.png", Status: "added"},
			{Path: "big.py", Status: "added"},
			{Path: "gone.py", Status: "modified"}, // content fetch fails
		},
		contents: map[string]string{
			"app.py": "import os\n",
			"big.py": strings.Repeat("x", 200),
		},
	}

	units, pr, err := FetchPRUnits(client, "octocat", "hello", 7, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)

	require.Len(t, units, 1, "removed, binary, oversized, and unreadable files are skipped")
	assert.Equal(t, "app.py", units[0].Path)
	assert.Equal(t, "python", units[0].Language)
	assert.NotEmpty(t, units[0].Fingerprint)
}

func TestFormatReviewComment(t *testing.T) {
	report := &models.Report{
		ReviewID:       "rev_01",
		Score:          55,
		Recommendation: models.RecommendationRequestChanges,
		Summary:        "Code review found 2 major issues.",
		Issues: []models.Finding{
			{Severity: models.SeverityMajor, Path: "app.py", LineStart: 12, Title: "Missing error check"},
		},
	}

	body := FormatReviewComment(report)
	assert.Contains(t, body, "REQUEST CHANGES")
	assert.Contains(t, body, "**Score:** 55/100")
	assert.Contains(t, body, "| major | app.py | 12 | Missing error check |")
}
