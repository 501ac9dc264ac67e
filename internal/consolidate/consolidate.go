// Package consolidate merges the findings of every producer into one ranked,
// deduplicated report with a score and a pass/fail recommendation. The logic
// is deterministic given the producer outputs; it judges only structural
// metadata, never finding content.
package consolidate

import (
	"fmt"
	"sort"

	"github.com/joescharf/coderev/internal/models"
)

// Result is the consolidated view written back onto the review run.
type Result struct {
	Findings       []models.Finding
	Summary        string
	Score          int
	Recommendation models.Recommendation
	TotalCost      float64
}

// Consolidate flattens, deduplicates, ranks, and scores the findings of all
// producer outcomes. Failed outcomes contribute cost but no findings.
func Consolidate(outcomes map[string]models.ProducerOutcome) Result {
	var all []models.Finding
	var totalCost float64
	for _, outcome := range outcomes {
		totalCost += outcome.Cost
		if !outcome.Succeeded {
			continue
		}
		all = append(all, outcome.Findings...)
	}

	unique := Deduplicate(all)

	sort.SliceStable(unique, func(i, j int) bool {
		ri, rj := models.SeverityRank(unique[i].Severity), models.SeverityRank(unique[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return unique[i].Confidence > unique[j].Confidence
	})

	score := Score(unique)
	return Result{
		Findings:       unique,
		Summary:        Summarize(unique),
		Score:          score,
		Recommendation: Recommend(unique, score),
		TotalCost:      totalCost,
	}
}

// dedupKey is the heuristic identity for "same underlying issue reported by
// different producers". The 50-char title prefix is a known imprecision:
// differently phrased titles for the same root cause will not merge.
type dedupKey struct {
	lineStart   int
	category    models.Category
	titlePrefix string
}

func keyOf(f models.Finding) dedupKey {
	title := f.Title
	if len(title) > 50 {
		title = title[:50]
	}
	return dedupKey{lineStart: f.LineStart, category: f.Category, titlePrefix: title}
}

// Deduplicate groups findings by (line_start, category, title[:50]) and keeps
// one representative per group: the highest-confidence finding, carrying the
// union of every source in the group.
func Deduplicate(findings []models.Finding) []models.Finding {
	groups := make(map[dedupKey][]models.Finding)
	var order []dedupKey
	for _, f := range findings {
		k := keyOf(f)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}

	unique := make([]models.Finding, 0, len(groups))
	for _, k := range order {
		group := groups[k]
		best := group[0]
		for _, f := range group[1:] {
			if f.Confidence > best.Confidence {
				best = f
			}
		}

		sources := make(map[string]struct{})
		for _, f := range group {
			for _, s := range f.Sources {
				sources[s] = struct{}{}
			}
		}
		merged := make([]string, 0, len(sources))
		for s := range sources {
			merged = append(merged, s)
		}
		sort.Strings(merged)
		best.Sources = merged

		unique = append(unique, best)
	}
	return unique
}

// Score computes the 0-100 quality score: start at 100, subtract 15 per
// critical, 5 per major, 2 per minor; info findings are free.
func Score(findings []models.Finding) int {
	score := 100
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			score -= 15
		case models.SeverityMajor:
			score -= 5
		case models.SeverityMinor:
			score -= 2
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Recommend derives the verdict: any critical or score below 50 rejects,
// score below 70 requests changes, otherwise approve.
func Recommend(findings []models.Finding, score int) models.Recommendation {
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			return models.RecommendationReject
		}
	}
	if score < 50 {
		return models.RecommendationReject
	}
	if score < 70 {
		return models.RecommendationRequestChanges
	}
	return models.RecommendationApprove
}

// Summarize renders the deterministic executive summary keyed on critical
// and major counts.
func Summarize(findings []models.Finding) string {
	counts := models.CountBySeverity(findings)
	switch {
	case counts.Critical > 0:
		return fmt.Sprintf("Code review found %d critical and %d major issues that must be addressed before merging.",
			counts.Critical, counts.Major)
	case counts.Major > 3:
		return fmt.Sprintf("Code review found %d major issues. Please address these before merging.", counts.Major)
	case counts.Major > 0:
		return fmt.Sprintf("Code is generally good with %d major issues to consider.", counts.Major)
	default:
		return "Code looks great! Only minor suggestions for improvement."
	}
}
