// Package producer wraps each analysis producer behind a uniform adapter:
// domain request in, structured findings out. The pipeline never needs to
// know how a producer judges code, only this contract.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/provider"
)

// Invoker is the provider-facing dependency of an adapter. *provider.Gateway
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req provider.Request) (*provider.Response, error)
}

// Context carries the enrichment data handed to every producer.
type Context struct {
	Static   []models.StaticResult
	Guidance []models.Guidance
}

// Adapter turns one named producer into a uniform findings source.
type Adapter struct {
	name      string
	system    string
	buildUser func(unit models.CodeUnit, pctx Context) string
	threshold float64
}

// New creates an adapter. threshold drops findings whose confidence falls
// below it.
func New(name, system string, buildUser func(models.CodeUnit, Context) string, threshold float64) *Adapter {
	return &Adapter{name: name, system: system, buildUser: buildUser, threshold: threshold}
}

// Name returns the producer name used for cache keys and finding sources.
func (a *Adapter) Name() string { return a.name }

// Analyze runs the producer over one file. Failures are captured in the
// outcome rather than returned; one producer's failure must never crash its
// siblings.
func (a *Adapter) Analyze(ctx context.Context, inv Invoker, unit models.CodeUnit, pctx Context) models.ProducerOutcome {
	start := time.Now()

	resp, err := inv.Invoke(ctx, provider.Request{
		System:      a.system,
		User:        a.buildUser(unit, pctx),
		Temperature: 0.1,
	})
	if err != nil {
		slog.Warn("producer invocation failed",
			"producer", a.name, "file", unit.Path, "error", err)
		return models.ProducerOutcome{
			Producer: a.name,
			Elapsed:  time.Since(start),
			Error:    err.Error(),
		}
	}

	findings, narrative, score, err := parseResponse(resp.Content, a.name, unit)
	if err != nil {
		slog.Warn("producer response unparseable",
			"producer", a.name, "file", unit.Path, "error", err)
		return models.ProducerOutcome{
			Producer: a.name,
			Elapsed:  time.Since(start),
			Cost:     resp.Cost,
			Error:    fmt.Sprintf("parse response: %v", err),
		}
	}

	kept := findings[:0]
	for _, f := range findings {
		if f.Confidence >= a.threshold {
			kept = append(kept, f)
		}
	}

	return models.ProducerOutcome{
		Producer:  a.name,
		Findings:  kept,
		Narrative: narrative,
		Score:     score,
		Elapsed:   time.Since(start),
		Cost:      resp.Cost,
		Succeeded: true,
	}
}
