package models

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityInfo     Severity = "info"
)

// SeverityRank returns a numeric rank for sorting (lower = more severe).
// Unknown severities sort last.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// Category is the kind of issue a finding reports.
type Category string

const (
	CategoryBug          Category = "bug"
	CategorySecurity     Category = "security"
	CategoryPerformance  Category = "performance"
	CategoryStyle        Category = "style"
	CategoryDocs         Category = "documentation"
	CategoryBestPractice Category = "best_practice"
)

// Finding is a single issue reported by a producer for one file.
// Confidence and Sources are adjusted only during consolidation; producers
// never mutate a finding after returning it.
type Finding struct {
	ID             string   `json:"id"`
	Severity       Severity `json:"severity"`
	Category       Category `json:"category"`
	Path           string   `json:"path"`
	LineStart      int      `json:"line_start"`
	LineEnd        int      `json:"line_end,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Suggestion     string   `json:"suggestion,omitempty"`
	SuggestedPatch string   `json:"suggested_patch,omitempty"`
	Confidence     float64  `json:"confidence"`
	Sources        []string `json:"sources"`
	CWEID          string   `json:"cwe_id,omitempty"`
	Impact         string   `json:"impact,omitempty"`
}

// Recommendation is the overall verdict derived from consolidated findings.
type Recommendation string

const (
	RecommendationApprove        Recommendation = "approve"
	RecommendationRequestChanges Recommendation = "request_changes"
	RecommendationReject         Recommendation = "reject"
)
