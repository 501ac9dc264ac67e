package producer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joescharf/coderev/internal/models"
)

// rawResponse is the JSON envelope a producer is prompted to return.
type rawResponse struct {
	Reasoning string     `json:"reasoning"`
	Issues    []rawIssue `json:"issues"`
	Score     *int       `json:"score"`
}

type rawIssue struct {
	Severity       string   `json:"severity"`
	Category       string   `json:"category"`
	LineStart      int      `json:"line_start"`
	LineEnd        int      `json:"line_end"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Suggestion     string   `json:"suggestion"`
	SuggestedPatch string   `json:"suggested_patch"`
	Confidence     *float64 `json:"confidence"`
	CWEID          string   `json:"cwe_id"`
	Impact         string   `json:"impact"`
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, which models add despite instructions not to.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.SplitN(content, "\n", 2)
	if len(lines) > 1 {
		content = lines[1]
	}
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

// parseResponse decodes a producer's raw text into findings. Missing fields
// get conservative defaults; findings keep the producer as their sole source
// until consolidation merges duplicates.
func parseResponse(content, producerName string, unit models.CodeUnit) ([]models.Finding, string, *int, error) {
	content = stripFences(content)

	var raw rawResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, "", nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// IDs carry the content fingerprint so one producer reviewing several
	// files in a run never mints colliding IDs.
	idScope := unit.Fingerprint
	if len(idScope) > 8 {
		idScope = idScope[:8]
	}
	if idScope == "" {
		idScope = unit.Path
	}

	findings := make([]models.Finding, 0, len(raw.Issues))
	for i, issue := range raw.Issues {
		f := models.Finding{
			ID:             fmt.Sprintf("%s_%s_%d", producerName, idScope, i),
			Severity:       models.Severity(issue.Severity),
			Category:       models.Category(issue.Category),
			Path:           unit.Path,
			LineStart:      issue.LineStart,
			LineEnd:        issue.LineEnd,
			Title:          issue.Title,
			Description:    issue.Description,
			Suggestion:     issue.Suggestion,
			SuggestedPatch: issue.SuggestedPatch,
			Confidence:     0.8,
			Sources:        []string{producerName},
			CWEID:          issue.CWEID,
			Impact:         issue.Impact,
		}
		if issue.Confidence != nil {
			f.Confidence = *issue.Confidence
		}
		if models.SeverityRank(f.Severity) > models.SeverityRank(models.SeverityInfo) {
			f.Severity = models.SeverityMinor
		}
		if f.Category == "" {
			f.Category = models.CategoryStyle
		}
		if f.Title == "" {
			f.Title = "Issue found"
		}
		findings = append(findings, f)
	}

	return findings, raw.Reasoning, raw.Score, nil
}
