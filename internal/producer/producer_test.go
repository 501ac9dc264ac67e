package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/provider"
)

// fakeInvoker returns a canned response or error.
type fakeInvoker struct {
	content string
	cost    float64
	err     error
	lastReq provider.Request
}

func (f *fakeInvoker) Invoke(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Content: f.content, Cost: f.cost}, nil
}

const validResponse = `{
  "reasoning": "one real problem",
  "issues": [
    {
      "severity": "critical",
      "category": "security",
      "line_start": 10,
      "title": "SQL injection via string concatenation",
      "description": "user input flows into the query",
      "suggestion": "use parameterized queries",
      "confidence": 0.95
    },
    {
      "severity": "minor",
      "category": "style",
      "line_start": 3,
      "title": "Unused variable",
      "confidence": 0.4
    }
  ],
  "score": 60
}`

func TestAdapter_Analyze_ParsesAndFilters(t *testing.T) {
	inv := &fakeInvoker{content: validResponse, cost: 0.02}
	adapter := Security(0.7)
	unit := models.NewCodeUnit("db.py", "query = 'SELECT * FROM t WHERE id=' + uid", "python")

	outcome := adapter.Analyze(context.Background(), inv, unit, Context{})

	require.True(t, outcome.Succeeded)
	assert.Equal(t, NameSecurity, outcome.Producer)
	require.Len(t, outcome.Findings, 1, "low-confidence finding must be dropped")

	f := outcome.Findings[0]
	assert.Equal(t, models.SeverityCritical, f.Severity)
	assert.Equal(t, models.CategorySecurity, f.Category)
	assert.Equal(t, "db.py", f.Path)
	assert.Equal(t, 10, f.LineStart)
	assert.Equal(t, []string{NameSecurity}, f.Sources)
	assert.InDelta(t, 0.95, f.Confidence, 1e-9)

	assert.Equal(t, "one real problem", outcome.Narrative)
	require.NotNil(t, outcome.Score)
	assert.Equal(t, 60, *outcome.Score)
	assert.InDelta(t, 0.02, outcome.Cost, 1e-9)
}

func TestAdapter_Analyze_ProviderFailure(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("provider down")}
	adapter := Analyzer(0.7)
	unit := models.NewCodeUnit("a.go", "package a", "")

	outcome := adapter.Analyze(context.Background(), inv, unit, Context{})
	assert.False(t, outcome.Succeeded)
	assert.Empty(t, outcome.Findings)
	assert.Contains(t, outcome.Error, "provider down")
}

func TestAdapter_Analyze_UnparseableResponse(t *testing.T) {
	inv := &fakeInvoker{content: "I think the code looks fine!", cost: 0.01}
	adapter := Analyzer(0.7)
	unit := models.NewCodeUnit("a.go", "package a", "")

	outcome := adapter.Analyze(context.Background(), inv, unit, Context{})
	assert.False(t, outcome.Succeeded)
	assert.Contains(t, outcome.Error, "parse response")
	assert.InDelta(t, 0.01, outcome.Cost, 1e-9, "cost of the wasted call is still accounted")
}

func TestAdapter_Analyze_ContextInPrompt(t *testing.T) {
	inv := &fakeInvoker{content: `{"issues": []}`}
	adapter := Analyzer(0.7)
	unit := models.NewCodeUnit("a.go", "package a", "")

	pctx := Context{
		Static: []models.StaticResult{{
			Path: "a.go",
			Tool: "go vet",
			Issues: []models.StaticIssue{{Line: 5, Message: "unreachable code"}},
		}},
		Guidance: []models.Guidance{{Content: "prefer early returns"}},
	}
	adapter.Analyze(context.Background(), inv, unit, pctx)

	assert.Contains(t, inv.lastReq.User, "unreachable code")
	assert.Contains(t, inv.lastReq.User, "prefer early returns")
	assert.Contains(t, inv.lastReq.User, "   1 | package a")
}

func TestParseResponse_Fences(t *testing.T) {
	unit := models.NewCodeUnit("a.go", "package a", "")
	fenced := "```json\n" + `{"issues":[{"title":"x","line_start":1}]}` + "\n```"
	findings, _, _, err := parseResponse(fenced, "analyzer", unit)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "x", findings[0].Title)
}

func TestParseResponse_Defaults(t *testing.T) {
	unit := models.NewCodeUnit("a.go", "package a", "")
	content := `{"issues":[{"line_start": 2}]}`
	findings, _, _, err := parseResponse(content, "documenter", unit)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, models.SeverityMinor, f.Severity)
	assert.Equal(t, models.CategoryStyle, f.Category)
	assert.Equal(t, "Issue found", f.Title)
	assert.InDelta(t, 0.8, f.Confidence, 1e-9)
	assert.Equal(t, "documenter_"+unit.Fingerprint[:8]+"_0", f.ID)
}

func TestParseResponse_IDsUniquePerFile(t *testing.T) {
	content := `{"issues":[{"title":"x","line_start":1}]}`
	first := models.NewCodeUnit("a.py", "x = 1\n", "python")
	second := models.NewCodeUnit("b.py", "y = 2\n", "python")

	fa, _, _, err := parseResponse(content, "analyzer", first)
	require.NoError(t, err)
	fb, _, _, err := parseResponse(content, "analyzer", second)
	require.NoError(t, err)

	assert.NotEqual(t, fa[0].ID, fb[0].ID,
		"one producer reviewing two files must not mint colliding IDs")
}

func TestParseResponse_UnknownSeverityNormalized(t *testing.T) {
	unit := models.NewCodeUnit("a.go", "package a", "")
	content := `{"issues":[{"title":"x","severity":"catastrophic","line_start":1}]}`
	findings, _, _, err := parseResponse(content, "analyzer", unit)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMinor, findings[0].Severity)
}

func TestForOptions(t *testing.T) {
	all := ForOptions(models.DefaultOptions())
	require.Len(t, all, 4)

	opts := models.DefaultOptions()
	opts.EnableSecurity = false
	opts.EnableDocumentation = false
	subset := ForOptions(opts)
	require.Len(t, subset, 2)
	assert.Equal(t, NameAnalyzer, subset[0].Name())
	assert.Equal(t, NameOptimizer, subset[1].Name())
}
