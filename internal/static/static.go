// Package static runs structural pre-analysis tools over code units before
// the producers see them. The pipeline depends only on the Runner contract;
// tool failures degrade to empty results and never abort a review.
package static

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joescharf/coderev/internal/models"
)

// Runner analyzes one code unit with external tooling.
type Runner interface {
	Run(ctx context.Context, unit models.CodeUnit) (*models.StaticResult, error)
}

// toolForLanguage maps languages to their default lint command. The file
// path placeholder is appended as the final argument.
var toolForLanguage = map[string][]string{
	"python":     {"ruff", "check", "--output-format", "concise"},
	"javascript": {"eslint", "--format", "unix"},
	"typescript": {"eslint", "--format", "unix"},
	"go":         {"gofmt", "-l"},
}

// ExecRunner shells out to language-specific linters. A tool that is not
// installed yields an empty result, not an error.
type ExecRunner struct {
	// WorkDir receives the temporary copies of reviewed files. Defaults to
	// the system temp dir.
	WorkDir string
}

// NewExecRunner returns a runner using the system temp dir for scratch files.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run writes the unit to a scratch file and runs the language's linter over
// it, parsing `path:line: message` style diagnostics.
func (r *ExecRunner) Run(ctx context.Context, unit models.CodeUnit) (*models.StaticResult, error) {
	args, ok := toolForLanguage[unit.Language]
	if !ok {
		return &models.StaticResult{Path: unit.Path, Tool: "none"}, nil
	}
	tool := args[0]

	if _, err := exec.LookPath(tool); err != nil {
		return &models.StaticResult{Path: unit.Path, Tool: tool}, nil
	}

	dir := r.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	scratch := filepath.Join(dir, fmt.Sprintf("coderev-%s-%s", unit.Fingerprint[:12], filepath.Base(unit.Path)))
	if err := os.WriteFile(scratch, []byte(unit.Content), 0o600); err != nil {
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	defer os.Remove(scratch)

	cmd := exec.CommandContext(ctx, tool, append(args[1:], scratch)...)
	out, _ := cmd.Output() // linters exit non-zero when they find issues

	return &models.StaticResult{
		Path:   unit.Path,
		Tool:   tool,
		Issues: ParseDiagnostics(string(out)),
	}, nil
}

// diagRe matches `path:line:col: CODE message` and `path:line: message`.
var diagRe = regexp.MustCompile(`^.*?:(\d+)(?::\d+)?:?\s+(?:([A-Z]+\d+)\s+)?(.+)$`)

// ParseDiagnostics extracts line-oriented diagnostics from linter output.
func ParseDiagnostics(out string) []models.StaticIssue {
	var issues []models.StaticIssue
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m := diagRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		issues = append(issues, models.StaticIssue{
			Line:    n,
			Code:    m[2],
			Message: strings.TrimSpace(m[3]),
		})
	}
	return issues
}
