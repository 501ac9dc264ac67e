package provider

import (
	"context"
	"fmt"
	"log/slog"
)

// Gateway routes generation requests to a primary provider with a single
// failover to a fallback provider. Any primary failure (timeout, transport
// error, malformed response) triggers exactly one fallback attempt; a
// fallback failure is terminal. There is no retry loop.
type Gateway struct {
	primary  Provider
	fallback Provider
	meter    *Meter
}

// NewGateway wires the two providers to a shared cost meter. fallback may be
// nil, in which case primary failures are terminal.
func NewGateway(primary, fallback Provider, meter *Meter) *Gateway {
	if meter == nil {
		meter = NewMeter()
	}
	return &Gateway{primary: primary, fallback: fallback, meter: meter}
}

// Meter exposes the gateway's cost meter for read-only consumers.
func (g *Gateway) Meter() *Meter { return g.meter }

// Invoke runs the request through the primary provider, failing over to the
// fallback once. Successful calls increment the process-wide cost total.
func (g *Gateway) Invoke(ctx context.Context, req Request) (*Response, error) {
	resp, primaryErr := g.primary.Generate(ctx, req)
	if primaryErr == nil {
		g.meter.Add(resp.Cost)
		return resp, nil
	}

	if g.fallback == nil {
		return nil, primaryErr
	}
	if ctx.Err() != nil {
		// The review deadline expired; the fallback would fail the same way.
		return nil, primaryErr
	}

	slog.Warn("primary provider failed, trying fallback",
		"primary", g.primary.Name(),
		"fallback", g.fallback.Name(),
		"error", primaryErr)

	resp, fallbackErr := g.fallback.Generate(ctx, req)
	if fallbackErr != nil {
		return nil, &Error{
			Kind:     ErrPermanent,
			Provider: g.fallback.Name(),
			Err:      fmt.Errorf("both primary and fallback failed: %v; fallback: %w", primaryErr, fallbackErr),
		}
	}

	g.meter.Add(resp.Cost)
	return resp, nil
}
