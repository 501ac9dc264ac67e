package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/coderev/internal/models"
)

func newTestRun(id string) *models.ReviewRun {
	unit := models.NewCodeUnit("app.py", "print('hi')\n", "python")
	return models.NewReviewRun(id, []models.CodeUnit{unit}, models.DefaultOptions())
}

func TestRegistry_CreateGet(t *testing.T) {
	r := New()
	r.Create(newTestRun("rev_1"), nil)

	status, ok := r.Get("rev_1")
	require.True(t, ok)
	assert.Equal(t, "rev_1", status.ReviewID)
	assert.Equal(t, models.StagePending, status.Stage)
	assert.Equal(t, 0, status.Progress)
	assert.Nil(t, status.Result)

	_, ok = r.Get("rev_missing")
	assert.False(t, ok)
}

func TestRegistry_UpdateAdvancesStage(t *testing.T) {
	r := New()
	r.Create(newTestRun("rev_1"), nil)

	err := r.Update("rev_1", func(run *models.ReviewRun) {
		run.Stage = models.StageProducing
	})
	require.NoError(t, err)

	status, _ := r.Get("rev_1")
	assert.Equal(t, models.StageProducing, status.Stage)
	assert.Equal(t, 40, status.Progress)

	assert.ErrorIs(t, r.Update("rev_missing", func(*models.ReviewRun) {}), ErrNotFound)
}

func TestRegistry_ResultOnlyWhenComplete(t *testing.T) {
	r := New()
	r.Create(newTestRun("rev_1"), nil)

	require.NoError(t, r.Update("rev_1", func(run *models.ReviewRun) {
		run.Stage = models.StageFailed
		run.Err = "all producers failed"
	}))
	status, _ := r.Get("rev_1")
	assert.Nil(t, status.Result)
	assert.Equal(t, "all producers failed", status.Error)

	r.Create(newTestRun("rev_2"), nil)
	require.NoError(t, r.Update("rev_2", func(run *models.ReviewRun) {
		run.Stage = models.StageComplete
		run.Score = 95
		run.Summary = "Code review completed."
	}))
	status, _ = r.Get("rev_2")
	require.NotNil(t, status.Result)
	assert.Equal(t, 95, status.Result.Score)
	assert.Equal(t, []string{"app.py"}, status.Result.Files)
}

func TestRegistry_DeleteCancelsInFlight(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	r.Create(newTestRun("rev_1"), cancel)

	require.True(t, r.Delete("rev_1"))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("delete did not cancel the run context")
	}

	_, ok := r.Get("rev_1")
	assert.False(t, ok)
	assert.False(t, r.Delete("rev_1"))
}

func TestRegistry_TerminalHookFiresOnce(t *testing.T) {
	r := New()
	var mu sync.Mutex
	var archived []string
	r.OnTerminal = func(run *models.ReviewRun) {
		mu.Lock()
		archived = append(archived, run.ID)
		mu.Unlock()
	}
	r.Create(newTestRun("rev_1"), nil)

	require.NoError(t, r.Update("rev_1", func(run *models.ReviewRun) {
		run.Stage = models.StageComplete
	}))
	// A second update on a terminal run must not re-archive.
	require.NoError(t, r.Update("rev_1", func(*models.ReviewRun) {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"rev_1"}, archived)
}

func TestRegistry_WatchUntilTerminal(t *testing.T) {
	r := New()
	r.Create(newTestRun("rev_1"), nil)

	ch := r.Watch(context.Background(), "rev_1", 5*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = r.Update("rev_1", func(run *models.ReviewRun) {
			run.Stage = models.StageComplete
		})
	}()

	var last Status
	count := 0
	for status := range ch {
		last = status
		count++
	}
	assert.GreaterOrEqual(t, count, 1)
	assert.Equal(t, models.StageComplete, last.Stage)
	assert.Equal(t, 100, last.Progress)
}

func TestRegistry_WatchStopsOnDelete(t *testing.T) {
	r := New()
	r.Create(newTestRun("rev_1"), nil)

	ch := r.Watch(context.Background(), "rev_1", 5*time.Millisecond)
	<-ch // first snapshot
	r.Delete("rev_1")

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("watch channel did not close after delete")
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("rev_%d", i)
			r.Create(newTestRun(id), nil)
			_ = r.Update(id, func(run *models.ReviewRun) {
				run.Stage = models.StagePreprocessing
			})
			_, _ = r.Get(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())
}
