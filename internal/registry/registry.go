// Package registry owns every ReviewRun for its lifetime: creation at
// submission, mutation by the pipeline, status snapshots for pollers, and
// deletion. It is one of the two pieces of process-wide mutable state (the
// other is the provider cost meter) and is safe for concurrent use.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joescharf/coderev/internal/models"
)

// ErrNotFound is returned when a review id is unknown.
var ErrNotFound = errors.New("review not found")

// Status is a point-in-time snapshot of a run, safe to hand to callers
// while the pipeline keeps mutating the underlying run.
type Status struct {
	ReviewID string         `json:"review_id"`
	Stage    models.Stage   `json:"stage"`
	Progress int            `json:"progress"`
	Result   *models.Report `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Registry is the process-wide map of review id → run.
type Registry struct {
	mu      sync.RWMutex
	runs    map[string]*models.ReviewRun
	cancels map[string]context.CancelFunc

	// OnTerminal, when set, is called once per run as it reaches a terminal
	// stage. Used to archive completed reports; failures are the hook's
	// problem, not the registry's.
	OnTerminal func(run *models.ReviewRun)
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		runs:    make(map[string]*models.ReviewRun),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a new run. cancel, when non-nil, is invoked if the run is
// deleted while in flight so outstanding provider calls stop.
func (r *Registry) Create(run *models.ReviewRun, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	if cancel != nil {
		r.cancels[run.ID] = cancel
	}
}

// Update applies mutate to the run under the registry lock. Returns
// ErrNotFound for unknown ids. The terminal hook fires after the lock is
// released when mutate moved the run into a terminal stage.
func (r *Registry) Update(id string, mutate func(*models.ReviewRun)) error {
	r.mu.Lock()
	run, ok := r.runs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	wasTerminal := run.Stage.Terminal()
	mutate(run)
	isTerminal := run.Stage.Terminal()
	if isTerminal {
		delete(r.cancels, id)
	}
	hook := r.OnTerminal
	r.mu.Unlock()

	if hook != nil && isTerminal && !wasTerminal {
		hook(run)
	}
	return nil
}

// Get returns a status snapshot for the id.
func (r *Registry) Get(id string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Status{}, false
	}
	return snapshot(run), true
}

// Delete removes the run, cancelling its pipeline context if still in
// flight. Reports whether the id existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	_, ok := r.runs[id]
	cancel := r.cancels[id]
	delete(r.runs, id)
	delete(r.cancels, id)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return ok
}

// Len returns the number of registered runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Watch emits status snapshots every interval until the run reaches a
// terminal stage, the run is deleted, or ctx is done. The final snapshot
// before close is terminal (or reports the deletion as a miss via channel
// close without a terminal snapshot).
func (r *Registry) Watch(ctx context.Context, id string, interval time.Duration) <-chan Status {
	ch := make(chan Status, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			status, ok := r.Get(id)
			if !ok {
				return
			}
			select {
			case ch <- status:
			case <-ctx.Done():
				return
			}
			if status.Stage.Terminal() {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// snapshot builds a Status from a run. Caller holds at least a read lock.
func snapshot(run *models.ReviewRun) Status {
	s := Status{
		ReviewID: run.ID,
		Stage:    run.Stage,
		Progress: run.Stage.Progress(),
		Error:    run.Err,
	}
	if run.Stage == models.StageComplete {
		s.Result = run.BuildReport()
	}
	return s
}
