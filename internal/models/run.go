package models

import "time"

// Stage is one sequential phase of the review pipeline. Stages advance
// monotonically; a run never revisits an earlier stage.
type Stage string

const (
	StagePending       Stage = "pending"
	StagePreprocessing Stage = "preprocessing"
	StageEnriching     Stage = "enriching"
	StageProducing     Stage = "producing"
	StageConsolidating Stage = "consolidating"
	StageComplete      Stage = "complete"
	StageFailed        Stage = "failed"
)

// Terminal reports whether the stage is a terminal state.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// stageOrder maps stages to their position in the pipeline.
var stageOrder = map[Stage]int{
	StagePending:       0,
	StagePreprocessing: 1,
	StageEnriching:     2,
	StageProducing:     3,
	StageConsolidating: 4,
	StageComplete:      5,
	StageFailed:        5,
}

// CanTransition reports whether moving from s to next preserves the
// monotonic stage invariant. Failed is reachable from any non-terminal stage.
func (s Stage) CanTransition(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return stageOrder[next] == stageOrder[s]+1
}

// Progress returns an approximate completion percentage for status polling.
func (s Stage) Progress() int {
	switch s {
	case StagePending:
		return 0
	case StagePreprocessing:
		return 10
	case StageEnriching:
		return 25
	case StageProducing:
		return 40
	case StageConsolidating:
		return 90
	case StageComplete, StageFailed:
		return 100
	default:
		return 0
	}
}

// StaticResult holds raw issues from a static analysis tool for one file.
type StaticResult struct {
	Path   string        `json:"path"`
	Tool   string        `json:"tool"`
	Issues []StaticIssue `json:"issues"`
	Error  string        `json:"error,omitempty"`
}

// StaticIssue is one raw diagnostic from a static analysis tool.
type StaticIssue struct {
	Line     int    `json:"line"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// Guidance is one retrieved best-practice document chunk.
type Guidance struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Distance float64           `json:"distance"`
}

// ReviewRun is the aggregate root for one review. It is owned by the
// registry for its lifetime and mutated only by the pipeline controller;
// once the stage is terminal the run is immutable.
type ReviewRun struct {
	ID            string                     `json:"review_id"`
	Units         []CodeUnit                 `json:"units"`
	Options       Options                    `json:"options"`
	Stage         Stage                      `json:"stage"`
	StaticResults []StaticResult             `json:"static_results,omitempty"`
	Guidance      []Guidance                 `json:"guidance,omitempty"`
	Outcomes      map[string]ProducerOutcome `json:"outcomes,omitempty"`
	Consolidated  []Finding                  `json:"consolidated,omitempty"`
	Summary       string                     `json:"summary,omitempty"`
	Score         int                        `json:"score"`
	Recommend     Recommendation             `json:"recommendation,omitempty"`
	Err           string                     `json:"error,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	CompletedAt   *time.Time                 `json:"completed_at,omitempty"`
	TotalCost     float64                    `json:"total_cost"`
}

// NewReviewRun creates a pending run for the given units.
func NewReviewRun(id string, units []CodeUnit, opts Options) *ReviewRun {
	return &ReviewRun{
		ID:        id,
		Units:     units,
		Options:   opts,
		Stage:     StagePending,
		Outcomes:  make(map[string]ProducerOutcome),
		CreatedAt: time.Now().UTC(),
	}
}

// SeverityCounts counts consolidated findings per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Info     int `json:"info"`
}

// CountBySeverity tallies findings into severity buckets.
func CountBySeverity(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityMajor:
			c.Major++
		case SeverityMinor:
			c.Minor++
		case SeverityInfo:
			c.Info++
		}
	}
	return c
}

// Statistics summarizes a completed review.
type Statistics struct {
	TotalIssues int            `json:"total_issues"`
	BySeverity  SeverityCounts `json:"by_severity"`
	TotalCost   float64        `json:"total_cost"`
}

// ReportMetadata carries run timestamps into the final report.
type ReportMetadata struct {
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Report is the final caller-facing result of a completed review.
type Report struct {
	ReviewID       string         `json:"review_id"`
	Files          []string       `json:"files"`
	Summary        string         `json:"summary"`
	Score          int            `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
	Statistics     Statistics     `json:"statistics"`
	Issues         []Finding      `json:"issues"`
	Metadata       ReportMetadata `json:"metadata"`
}

// BuildReport assembles the final report from a completed run.
func (r *ReviewRun) BuildReport() *Report {
	files := make([]string, len(r.Units))
	for i, u := range r.Units {
		files[i] = u.Path
	}
	issues := r.Consolidated
	if issues == nil {
		issues = []Finding{}
	}
	return &Report{
		ReviewID:       r.ID,
		Files:          files,
		Summary:        r.Summary,
		Score:          r.Score,
		Recommendation: r.Recommend,
		Statistics: Statistics{
			TotalIssues: len(issues),
			BySeverity:  CountBySeverity(issues),
			TotalCost:   r.TotalCost,
		},
		Issues:   issues,
		Metadata: ReportMetadata{CreatedAt: r.CreatedAt, CompletedAt: r.CompletedAt},
	}
}
