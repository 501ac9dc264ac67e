// Package pipeline drives a review run through its four sequential stages:
// preprocess, enrich, produce, consolidate. The controller owns all stage
// transitions; everything else (static tools, retrieval, producers, cache) is
// injected behind small interfaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/coderev/internal/cache"
	"github.com/joescharf/coderev/internal/consolidate"
	"github.com/joescharf/coderev/internal/knowledge"
	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/producer"
	"github.com/joescharf/coderev/internal/registry"
	"github.com/joescharf/coderev/internal/static"
)

// Submission limits. Reviews are interactive; anything larger belongs in a
// batch tool.
const (
	MaxFiles       = 50
	MaxFileBytes   = 100 * 1024
	DefaultTimeout = 5 * time.Minute
)

// ValidationError rejects a submission before any pipeline work starts. API
// handlers map it to a 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IsValidation reports whether err is a submission validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks a submission against the size limits.
func Validate(units []models.CodeUnit) error {
	if len(units) == 0 {
		return &ValidationError{Reason: "no files submitted"}
	}
	if len(units) > MaxFiles {
		return &ValidationError{Reason: fmt.Sprintf("too many files: %d exceeds the limit of %d", len(units), MaxFiles)}
	}
	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		if u.Path == "" {
			return &ValidationError{Reason: "file with empty path"}
		}
		if _, dup := seen[u.Path]; dup {
			return &ValidationError{Reason: fmt.Sprintf("duplicate path: %s", u.Path)}
		}
		seen[u.Path] = struct{}{}
		if len(u.Content) > MaxFileBytes {
			return &ValidationError{Reason: fmt.Sprintf("%s is too large: %d bytes exceeds the limit of %d", u.Path, len(u.Content), MaxFileBytes)}
		}
	}
	return nil
}

// Config tunes the controller.
type Config struct {
	// Timeout bounds a whole run. Zero means DefaultTimeout.
	Timeout time.Duration
	// Concurrency caps in-flight (file, producer) pairs. Zero means 4.
	Concurrency int
	// GuidanceTopK is how many guidance chunks each file gets. Zero means 3.
	GuidanceTopK int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.GuidanceTopK <= 0 {
		c.GuidanceTopK = 3
	}
	return c
}

// Controller executes review runs.
type Controller struct {
	registry  *registry.Registry
	gate      *cache.Gate
	invoker   producer.Invoker
	analyzer  static.Runner
	retriever knowledge.Retriever
	cfg       Config
}

// NewController wires a controller. Pass knowledge.Noop{} when no guidance
// corpus is configured.
func NewController(reg *registry.Registry, gate *cache.Gate, invoker producer.Invoker,
	analyzer static.Runner, retriever knowledge.Retriever, cfg Config) *Controller {
	return &Controller{
		registry:  reg,
		gate:      gate,
		invoker:   invoker,
		analyzer:  analyzer,
		retriever: retriever,
		cfg:       cfg.withDefaults(),
	}
}

// NewReviewID mints a review identifier.
func NewReviewID() string {
	return "rev_" + strings.ToLower(ulid.Make().String())
}

// Submit validates the submission, registers a pending run, and executes it
// in the background. The returned id can be polled through the registry
// immediately.
func (c *Controller) Submit(units []models.CodeUnit, opts models.Options) (string, error) {
	if err := Validate(units); err != nil {
		return "", err
	}
	id := NewReviewID()
	run := models.NewReviewRun(id, units, opts)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	c.registry.Create(run, cancel)
	go func() {
		defer cancel()
		c.execute(ctx, id)
	}()
	return id, nil
}

// Run executes a review synchronously and returns the final report. Used by
// the CLI and the blocking API endpoint.
func (c *Controller) Run(ctx context.Context, units []models.CodeUnit, opts models.Options) (*models.Report, error) {
	if err := Validate(units); err != nil {
		return nil, err
	}
	id := NewReviewID()
	run := models.NewReviewRun(id, units, opts)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	c.registry.Create(run, cancel)
	c.execute(ctx, id)

	status, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("review %s disappeared mid-run", id)
	}
	if status.Stage == models.StageFailed {
		return nil, fmt.Errorf("review failed: %s", status.Error)
	}
	return status.Result, nil
}

// execute runs every stage, recording progress and failures on the registry.
func (c *Controller) execute(ctx context.Context, id string) {
	started := time.Now()
	log := slog.With("review_id", id)

	units, opts, staticResults, err := c.preprocess(ctx, id)
	if err != nil {
		c.fail(id, err)
		return
	}

	guidance, err := c.enrich(ctx, id, units)
	if err != nil {
		c.fail(id, err)
		return
	}

	enr := &enrichment{static: staticResults, guidance: guidance}
	outcomes, err := c.produce(ctx, id, units, opts, enr)
	if err != nil {
		c.fail(id, err)
		return
	}

	if err := c.consolidateStage(id, outcomes); err != nil {
		c.fail(id, err)
		return
	}
	log.Info("review complete", "elapsed", time.Since(started).Round(time.Millisecond))
}

// advance moves the run to the next stage, enforcing monotonic transitions.
func (c *Controller) advance(id string, next models.Stage) error {
	var transitionErr error
	err := c.registry.Update(id, func(run *models.ReviewRun) {
		if !run.Stage.CanTransition(next) {
			transitionErr = fmt.Errorf("illegal stage transition %s -> %s", run.Stage, next)
			return
		}
		run.Stage = next
	})
	if err != nil {
		return err
	}
	return transitionErr
}

func (c *Controller) fail(id string, cause error) {
	slog.Error("review failed", "review_id", id, "error", cause)
	_ = c.registry.Update(id, func(run *models.ReviewRun) {
		if run.Stage.Terminal() {
			return
		}
		run.Stage = models.StageFailed
		run.Err = cause.Error()
		now := time.Now().UTC()
		run.CompletedAt = &now
	})
}

// preprocess normalizes units and runs structural checks: fingerprints and
// languages are filled for submissions that arrived without them, then the
// static tools fan out per file. A tool failure degrades to an empty result.
func (c *Controller) preprocess(ctx context.Context, id string) ([]models.CodeUnit, models.Options, map[string][]models.StaticResult, error) {
	if err := c.advance(id, models.StagePreprocessing); err != nil {
		return nil, models.Options{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, models.Options{}, nil, err
	}

	var units []models.CodeUnit
	var opts models.Options
	err := c.registry.Update(id, func(run *models.ReviewRun) {
		for i := range run.Units {
			u := &run.Units[i]
			if u.Fingerprint == "" {
				u.Fingerprint = models.FingerprintContent(u.Content)
			}
			if u.Language == "" {
				u.Language = models.LanguageForPath(u.Path)
			}
			u.Size = len(u.Content)
		}
		units = append([]models.CodeUnit(nil), run.Units...)
		opts = run.Options
	})
	if err != nil {
		return nil, models.Options{}, nil, err
	}

	staticResults := make(map[string][]models.StaticResult)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, unit := range units {
		g.Go(func() error {
			result, err := c.analyzer.Run(gctx, unit)
			if err != nil {
				slog.Warn("static analysis failed", "review_id", id, "file", unit.Path, "error", err)
				result = &models.StaticResult{Path: unit.Path, Error: err.Error()}
			}
			mu.Lock()
			staticResults[unit.Path] = append(staticResults[unit.Path], *result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, models.Options{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, models.Options{}, nil, err
	}

	err = c.registry.Update(id, func(run *models.ReviewRun) {
		for _, unit := range run.Units {
			run.StaticResults = append(run.StaticResults, staticResults[unit.Path]...)
		}
	})
	return units, opts, staticResults, err
}

// enrichment is the per-file context handed to producers.
type enrichment struct {
	static   map[string][]models.StaticResult
	guidance map[string][]models.Guidance
}

// enrich retrieves guidance context per file. Best effort: a retrieval
// failure degrades to an empty context.
func (c *Controller) enrich(ctx context.Context, id string, units []models.CodeUnit) (map[string][]models.Guidance, error) {
	if err := c.advance(id, models.StageEnriching); err != nil {
		return nil, err
	}

	guidance := make(map[string][]models.Guidance)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, unit := range units {
		g.Go(func() error {
			docs, err := c.retriever.Retrieve(gctx, snippet(unit.Content, 400), unit.Language, "", c.cfg.GuidanceTopK)
			if err != nil {
				slog.Warn("guidance retrieval failed", "review_id", id, "file", unit.Path, "error", err)
				docs = nil
			}
			mu.Lock()
			guidance[unit.Path] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := c.registry.Update(id, func(run *models.ReviewRun) {
		for _, unit := range run.Units {
			run.Guidance = append(run.Guidance, guidance[unit.Path]...)
		}
	})
	return guidance, err
}

// produce fans out over every (file, producer) pair through the cache gate.
// A single pair failing is isolated into its outcome; only all pairs failing
// fails the run.
func (c *Controller) produce(ctx context.Context, id string, units []models.CodeUnit,
	opts models.Options, enr *enrichment) (map[string]models.ProducerOutcome, error) {

	if err := c.advance(id, models.StageProducing); err != nil {
		return nil, err
	}

	adapters := producer.ForOptions(opts)
	perProducer := make(map[string][]models.ProducerOutcome)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, unit := range units {
		for _, ad := range adapters {
			g.Go(func() error {
				pctx := producer.Context{
					Static:   enr.static[unit.Path],
					Guidance: enr.guidance[unit.Path],
				}
				outcome, err := c.gate.GetOrCompute(gctx, unit, ad.Name(), func(cctx context.Context) (models.ProducerOutcome, error) {
					return ad.Analyze(cctx, c.invoker, unit, pctx), nil
				})
				if err != nil {
					outcome = models.ProducerOutcome{Producer: ad.Name(), Error: err.Error()}
				}
				mu.Lock()
				perProducer[ad.Name()] = append(perProducer[ad.Name()], outcome)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deadline expiry mid-produce shows up as failed outcomes on the pairs
	// that were still in flight; pairs that finished first keep their
	// results. The run only fails when nothing succeeded.
	outcomes := make(map[string]models.ProducerOutcome, len(perProducer))
	pairs, failed := 0, 0
	for name, list := range perProducer {
		outcomes[name] = models.AggregateOutcomes(list)
		for _, o := range list {
			pairs++
			if !o.Succeeded {
				failed++
			}
		}
	}
	if pairs > 0 && failed == pairs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("review timed out: %w", err)
		}
		return nil, errors.New("all producers failed")
	}

	err := c.registry.Update(id, func(run *models.ReviewRun) {
		run.Outcomes = outcomes
	})
	return outcomes, err
}

// consolidateStage merges outcomes into the final report fields and marks the
// run complete.
func (c *Controller) consolidateStage(id string, outcomes map[string]models.ProducerOutcome) error {
	if err := c.advance(id, models.StageConsolidating); err != nil {
		return err
	}

	result := consolidate.Consolidate(outcomes)
	var transitionErr error
	err := c.registry.Update(id, func(run *models.ReviewRun) {
		if !run.Stage.CanTransition(models.StageComplete) {
			transitionErr = fmt.Errorf("illegal stage transition %s -> %s", run.Stage, models.StageComplete)
			return
		}
		run.Consolidated = result.Findings
		run.Summary = result.Summary
		run.Score = result.Score
		run.Recommend = result.Recommendation
		run.TotalCost = result.TotalCost
		run.Stage = models.StageComplete
		now := time.Now().UTC()
		run.CompletedAt = &now
	})
	if err != nil {
		return err
	}
	return transitionErr
}

// snippet truncates content for use as a retrieval query.
func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
