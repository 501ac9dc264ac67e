package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joescharf/coderev/internal/models"
)

// Gate fronts a Store with the review cache policy: keys derived from
// (path, content fingerprint, producer), best-effort writes that never fail a
// review, a reverse path index so invalidation can enumerate keys without
// reversing hashes, and a singleflight group so an identical (file, producer)
// pair racing across concurrent reviews computes at most once.
type Gate struct {
	store Store
	ttl   time.Duration
	group singleflight.Group

	mu      sync.Mutex
	byPath  map[string]map[string]struct{}
	hits    int64
	misses  int64
}

// NewGate wraps a store with the given result TTL.
func NewGate(store Store, ttl time.Duration) *Gate {
	return &Gate{
		store:  store,
		ttl:    ttl,
		byPath: make(map[string]map[string]struct{}),
	}
}

// Key derives the deterministic cache key for one (unit, producer) pair.
func Key(unit models.CodeUnit, producer string) string {
	material := fmt.Sprintf("%s:%s:%s", unit.Path, unit.Fingerprint, producer)
	sum := sha256.Sum256([]byte(material))
	return fmt.Sprintf("review:%s:%s", producer, hex.EncodeToString(sum[:8]))
}

// Get returns the cached outcome for the pair, or ok=false on a miss.
// A backend failure is logged and treated as a miss.
func (g *Gate) Get(ctx context.Context, unit models.CodeUnit, producer string) (models.ProducerOutcome, bool) {
	key := Key(unit, producer)
	data, ok, err := g.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache get failed, treating as miss", "key", key, "error", err)
		g.countMiss()
		return models.ProducerOutcome{}, false
	}
	if !ok {
		g.countMiss()
		return models.ProducerOutcome{}, false
	}

	var outcome models.ProducerOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		slog.Warn("cache entry corrupt, treating as miss", "key", key, "error", err)
		g.countMiss()
		return models.ProducerOutcome{}, false
	}
	g.countHit()
	outcome.CacheHit = true
	return outcome, true
}

// Put stores an outcome for the pair. Best effort: a write failure is logged
// and swallowed so it cannot fail the review.
func (g *Gate) Put(ctx context.Context, unit models.CodeUnit, producer string, outcome models.ProducerOutcome) {
	key := Key(unit, producer)
	data, err := json.Marshal(outcome)
	if err != nil {
		slog.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := g.store.Set(ctx, key, data, g.ttl); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
		return
	}
	g.index(unit.Path, key)
}

// GetOrCompute returns the cached outcome for the pair or computes it,
// deduplicating concurrent computations of the same key across all reviews.
// Only successful outcomes are written through to the cache.
func (g *Gate) GetOrCompute(ctx context.Context, unit models.CodeUnit, producer string,
	compute func(context.Context) (models.ProducerOutcome, error)) (models.ProducerOutcome, error) {

	if outcome, ok := g.Get(ctx, unit, producer); ok {
		return outcome, nil
	}

	key := Key(unit, producer)
	v, err, _ := g.group.Do(key, func() (any, error) {
		outcome, err := compute(ctx)
		if err != nil {
			return models.ProducerOutcome{}, err
		}
		if outcome.Succeeded {
			g.Put(ctx, unit, producer, outcome)
		}
		return outcome, nil
	})
	if err != nil {
		return models.ProducerOutcome{}, err
	}
	return v.(models.ProducerOutcome), nil
}

// InvalidatePath removes every cached entry recorded for the path, across
// all fingerprints and producers. Returns the number of keys deleted.
func (g *Gate) InvalidatePath(ctx context.Context, path string) int {
	g.mu.Lock()
	keys := g.byPath[path]
	delete(g.byPath, path)
	g.mu.Unlock()

	deleted := 0
	for key := range keys {
		if err := g.store.Delete(ctx, key); err != nil {
			slog.Warn("cache delete failed", "key", key, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// Clear removes every indexed entry. Returns the number of keys deleted.
func (g *Gate) Clear(ctx context.Context) int {
	g.mu.Lock()
	byPath := g.byPath
	g.byPath = make(map[string]map[string]struct{})
	g.mu.Unlock()

	deleted := 0
	for _, keys := range byPath {
		for key := range keys {
			if err := g.store.Delete(ctx, key); err != nil {
				slog.Warn("cache delete failed", "key", key, "error", err)
				continue
			}
			deleted++
		}
	}
	return deleted
}

// Stats reports gate-level hit/miss counters and the indexed entry count.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns a snapshot of the gate counters.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries := 0
	for _, keys := range g.byPath {
		entries += len(keys)
	}
	total := g.hits + g.misses
	rate := 0.0
	if total > 0 {
		rate = float64(g.hits) / float64(total)
	}
	return Stats{Hits: g.hits, Misses: g.misses, Entries: entries, HitRate: rate}
}

func (g *Gate) index(path, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys, ok := g.byPath[path]
	if !ok {
		keys = make(map[string]struct{})
		g.byPath[path] = keys
	}
	keys[key] = struct{}{}
}

func (g *Gate) countHit() {
	g.mu.Lock()
	g.hits++
	g.mu.Unlock()
}

func (g *Gate) countMiss() {
	g.mu.Lock()
	g.misses++
	g.mu.Unlock()
}
