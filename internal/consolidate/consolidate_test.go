package consolidate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/coderev/internal/models"
)

func finding(severity models.Severity, category models.Category, line int, title string, confidence float64, sources ...string) models.Finding {
	return models.Finding{
		Severity:   severity,
		Category:   category,
		LineStart:  line,
		Title:      title,
		Confidence: confidence,
		Sources:    sources,
	}
}

func TestDeduplicate_MergesSourcesKeepsMaxConfidence(t *testing.T) {
	// Two producers report the same null pointer risk at line 10.
	findings := []models.Finding{
		finding(models.SeverityMajor, models.CategoryBug, 10, "Null pointer risk when user is missing", 0.6, "analyzer"),
		finding(models.SeverityMajor, models.CategoryBug, 10, "Null pointer risk when user is missing", 0.9, "security"),
	}

	unique := Deduplicate(findings)
	require.Len(t, unique, 1)
	assert.InDelta(t, 0.9, unique[0].Confidence, 1e-9)
	assert.Equal(t, []string{"analyzer", "security"}, unique[0].Sources)
}

func TestDeduplicate_TitlePrefixWidth(t *testing.T) {
	long := strings.Repeat("a", 50)
	findings := []models.Finding{
		finding(models.SeverityMinor, models.CategoryStyle, 1, long+" tail one", 0.8, "analyzer"),
		finding(models.SeverityMinor, models.CategoryStyle, 1, long+" tail two", 0.9, "optimizer"),
	}

	// Identical 50-char prefixes merge even with different tails.
	unique := Deduplicate(findings)
	require.Len(t, unique, 1)
	assert.Equal(t, []string{"analyzer", "optimizer"}, unique[0].Sources)
}

func TestDeduplicate_DistinctKeysSurvive(t *testing.T) {
	findings := []models.Finding{
		finding(models.SeverityMinor, models.CategoryStyle, 1, "same title", 0.8, "analyzer"),
		finding(models.SeverityMinor, models.CategoryBug, 1, "same title", 0.8, "analyzer"),
		finding(models.SeverityMinor, models.CategoryStyle, 2, "same title", 0.8, "analyzer"),
	}
	assert.Len(t, Deduplicate(findings), 3)
}

func TestConsolidate_SortInvariant(t *testing.T) {
	outcomes := map[string]models.ProducerOutcome{
		"analyzer": {
			Producer:  "analyzer",
			Succeeded: true,
			Findings: []models.Finding{
				finding(models.SeverityInfo, models.CategoryDocs, 1, "a", 0.9, "analyzer"),
				finding(models.SeverityCritical, models.CategoryBug, 2, "b", 0.7, "analyzer"),
				finding(models.SeverityMajor, models.CategoryBug, 3, "c", 0.6, "analyzer"),
				finding(models.SeverityMajor, models.CategoryBug, 4, "d", 0.95, "analyzer"),
				finding(models.SeverityMinor, models.CategoryStyle, 5, "e", 0.8, "analyzer"),
			},
		},
	}

	result := Consolidate(outcomes)
	for i := 1; i < len(result.Findings); i++ {
		prev, cur := result.Findings[i-1], result.Findings[i]
		ri, rj := models.SeverityRank(prev.Severity), models.SeverityRank(cur.Severity)
		assert.LessOrEqual(t, ri, rj)
		if ri == rj {
			assert.GreaterOrEqual(t, prev.Confidence, cur.Confidence)
		}
	}
	// Highest-confidence major before lower-confidence major.
	assert.Equal(t, "b", result.Findings[0].Title)
	assert.Equal(t, "d", result.Findings[1].Title)
	assert.Equal(t, "c", result.Findings[2].Title)
}

func TestScore_ClampedAndMonotonic(t *testing.T) {
	var findings []models.Finding
	prev := 100
	for i := 0; i < 10; i++ {
		findings = append(findings, finding(models.SeverityCritical, models.CategoryBug, i, "x", 0.9, "analyzer"))
		s := Score(findings)
		assert.LessOrEqual(t, s, prev, "score must not increase as criticals accumulate")
		assert.GreaterOrEqual(t, s, 0)
		assert.LessOrEqual(t, s, 100)
		prev = s
	}
	assert.Zero(t, Score(findings), "7+ criticals floor the score")

	assert.Equal(t, 100, Score(nil))
	assert.Equal(t, 100, Score([]models.Finding{
		finding(models.SeverityInfo, models.CategoryDocs, 1, "x", 0.9, "analyzer"),
	}), "info findings are free")
}

func TestRecommend(t *testing.T) {
	critical := []models.Finding{finding(models.SeverityCritical, models.CategoryBug, 1, "x", 0.9, "a")}
	assert.Equal(t, models.RecommendationReject, Recommend(critical, 90),
		"any critical rejects regardless of score")

	assert.Equal(t, models.RecommendationReject, Recommend(nil, 49))
	assert.Equal(t, models.RecommendationRequestChanges, Recommend(nil, 69))
	assert.Equal(t, models.RecommendationApprove, Recommend(nil, 70))
	assert.Equal(t, models.RecommendationApprove, Recommend(nil, 100))
}

func TestSummarize(t *testing.T) {
	critical := []models.Finding{
		finding(models.SeverityCritical, models.CategoryBug, 1, "x", 0.9, "a"),
		finding(models.SeverityMajor, models.CategoryBug, 2, "y", 0.9, "a"),
	}
	assert.Equal(t, "Code review found 1 critical and 1 major issues that must be addressed before merging.",
		Summarize(critical))

	majors := make([]models.Finding, 4)
	for i := range majors {
		majors[i] = finding(models.SeverityMajor, models.CategoryBug, i, "x", 0.9, "a")
	}
	assert.Contains(t, Summarize(majors), "found 4 major issues")
	assert.Contains(t, Summarize(majors[:2]), "generally good with 2 major issues")
	assert.Contains(t, Summarize(nil), "looks great")
}

func TestConsolidate_TwoProducersOneIssue(t *testing.T) {
	// Spec scenario: 2 producers report the same bug at line 10 with
	// confidence 0.6 and 0.9.
	outcomes := map[string]models.ProducerOutcome{
		"analyzer": {
			Producer: "analyzer", Succeeded: true, Cost: 0.01,
			Findings: []models.Finding{
				finding(models.SeverityMajor, models.CategoryBug, 10, "Null pointer risk when user lookup fails", 0.6, "analyzer"),
			},
		},
		"security": {
			Producer: "security", Succeeded: true, Cost: 0.02,
			Findings: []models.Finding{
				finding(models.SeverityMajor, models.CategoryBug, 10, "Null pointer risk when user lookup fails", 0.9, "security"),
			},
		},
	}

	result := Consolidate(outcomes)
	require.Len(t, result.Findings, 1)
	assert.InDelta(t, 0.9, result.Findings[0].Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"analyzer", "security"}, result.Findings[0].Sources)
	assert.InDelta(t, 0.03, result.TotalCost, 1e-9)
	assert.Equal(t, 95, result.Score)
	assert.Equal(t, models.RecommendationApprove, result.Recommendation)
}

func TestConsolidate_FailedOutcomesExcludedButCosted(t *testing.T) {
	outcomes := map[string]models.ProducerOutcome{
		"analyzer": {
			Producer: "analyzer", Succeeded: true, Cost: 0.01,
			Findings: []models.Finding{
				finding(models.SeverityMinor, models.CategoryStyle, 1, "x", 0.8, "analyzer"),
			},
		},
		"security": {
			Producer: "security", Succeeded: false, Cost: 0.005, Error: "provider down",
			Findings: []models.Finding{
				finding(models.SeverityCritical, models.CategorySecurity, 2, "must not appear", 0.9, "security"),
			},
		},
	}

	result := Consolidate(outcomes)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "x", result.Findings[0].Title)
	assert.InDelta(t, 0.015, result.TotalCost, 1e-9)
}

func TestConsolidate_Empty(t *testing.T) {
	result := Consolidate(nil)
	assert.Empty(t, result.Findings)
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, models.RecommendationApprove, result.Recommendation)
}
