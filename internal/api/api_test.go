package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/coderev/internal/cache"
	"github.com/joescharf/coderev/internal/knowledge"
	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/pipeline"
	"github.com/joescharf/coderev/internal/provider"
	"github.com/joescharf/coderev/internal/registry"
	"github.com/joescharf/coderev/internal/store"
)

// memStore is an in-memory cache.Store for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Close() error { return nil }

// stubInvoker always reports the same single issue.
type stubInvoker struct{}

func (stubInvoker) Invoke(context.Context, provider.Request) (*provider.Response, error) {
	return &provider.Response{
		Content: `{
			"reasoning": "reviewed",
			"issues": [{
				"severity": "major", "category": "bug", "line_start": 1,
				"title": "Unchecked return value", "confidence": 0.9
			}],
			"score": 80
		}`,
		Cost: 0.01,
	}, nil
}

// stubRunner returns empty static results.
type stubRunner struct{}

func (stubRunner) Run(_ context.Context, unit models.CodeUnit) (*models.StaticResult, error) {
	return &models.StaticResult{Path: unit.Path, Tool: "none"}, nil
}

func setupTestServer(t *testing.T) (*Server, *registry.Registry, store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := registry.New()
	gate := cache.NewGate(newMemStore(), time.Hour)
	meter := provider.NewMeter()
	ctrl := pipeline.NewController(reg, gate, stubInvoker{}, stubRunner{}, knowledge.Noop{}, pipeline.Config{})

	srv := NewServer(ctrl, reg, gate, st, nil, meter)
	srv.streamInterval = 5 * time.Millisecond
	return srv, reg, st
}

const submitBody = `{
	"files": [{"path": "app.py", "content": "import os\n"}],
	"options": {"enable_performance": false, "enable_documentation": false}
}`

func TestSubmitReview_Accepted(t *testing.T) {
	srv, reg, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/reviews", bytes.NewBufferString(submitBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id := resp["review_id"]
	assert.True(t, strings.HasPrefix(id, "rev_"))
	assert.Equal(t, "pending", resp["status"])

	// The run completes in the background.
	require.Eventually(t, func() bool {
		status, ok := reg.Get(id)
		return ok && status.Stage.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSubmitReview_ValidationRejected(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/reviews", bytes.NewBufferString(`{"files": []}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no files")
}

func TestRunReviewSync_ReturnsReport(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/reviews/sync", bytes.NewBufferString(submitBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, []string{"app.py"}, report.Files)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "Unchecked return value", report.Issues[0].Title)
	assert.Equal(t, models.RecommendationApprove, report.Recommendation)
}

func TestGetReview_StatusAndNotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/reviews", bytes.NewBufferString(submitBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	req = httptest.NewRequest("GET", "/api/v1/reviews/"+resp["review_id"], nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var status registry.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, resp["review_id"], status.ReviewID)

	req = httptest.NewRequest("GET", "/api/v1/reviews/rev_missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamReview_EmitsStatusEvents(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/reviews", bytes.NewBufferString(submitBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	req = httptest.NewRequest("GET", "/api/v1/reviews/"+resp["review_id"]+"/stream", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event: status")
	assert.Contains(t, body, `"review_id"`)
	assert.Contains(t, body, "event: done")
}

func TestDeleteReview(t *testing.T) {
	srv, reg, _ := setupTestServer(t)
	router := srv.Router()

	reg.Create(models.NewReviewRun("rev_x", nil, models.DefaultOptions()), nil)

	req := httptest.NewRequest("DELETE", "/api/v1/reviews/rev_x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/reviews/rev_x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReports_ArchiveEndpoints(t *testing.T) {
	srv, _, st := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveReport(ctx, &models.Report{
		ReviewID:       "rev_done",
		Files:          []string{"app.py"},
		Score:          95,
		Recommendation: models.RecommendationApprove,
		Summary:        "Looks good.",
		Metadata:       models.ReportMetadata{CreatedAt: created},
	}))

	req := httptest.NewRequest("GET", "/api/v1/reports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var summaries []*store.ReportSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "rev_done", summaries[0].ReviewID)

	req = httptest.NewRequest("GET", "/api/v1/reports/rev_done", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 95, report.Score)

	req = httptest.NewRequest("DELETE", "/api/v1/reports/rev_done", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/reports/rev_done", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	// Run one review so the cache has entries and counters.
	req := httptest.NewRequest("POST", "/api/v1/reviews/sync", bytes.NewBufferString(submitBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/cache/stats", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Entries, "analyzer and security results cached")

	req = httptest.NewRequest("DELETE", "/api/v1/cache/path?path=app.py", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":2`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/cache/path", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/cache", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCostsAndHealthz(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/costs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "total_cost_usd")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
