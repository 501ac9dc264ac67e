package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/coderev/internal/models"
)

// memStore is a deterministic in-memory Store for gate tests.
type memStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	failGet bool
	failSet bool
}

type memEntry struct {
	data    []byte
	expires time.Time
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]memEntry)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("backend down")
	}
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("backend down")
	}
	m.entries[key] = memEntry{data: value, expires: time.Now().Add(ttl)}
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func testUnit(path, content string) models.CodeUnit {
	return models.NewCodeUnit(path, content, "go")
}

func TestKey_DeterministicAndDistinct(t *testing.T) {
	u := testUnit("a.go", "package a")

	assert.Equal(t, Key(u, "security"), Key(u, "security"))
	assert.NotEqual(t, Key(u, "security"), Key(u, "analyzer"))

	changed := testUnit("a.go", "package a // changed")
	assert.NotEqual(t, Key(u, "security"), Key(changed, "security"))

	moved := testUnit("b.go", "package a")
	assert.NotEqual(t, Key(u, "security"), Key(moved, "security"))
}

func TestGate_PutGetRoundTrip(t *testing.T) {
	gate := NewGate(newMemStore(), time.Hour)
	ctx := context.Background()
	u := testUnit("a.go", "package a")

	outcome := models.ProducerOutcome{
		Producer:  "security",
		Findings:  []models.Finding{{Title: "SQL injection", Severity: models.SeverityCritical}},
		Cost:      0.03,
		Succeeded: true,
	}
	gate.Put(ctx, u, "security", outcome)

	got, ok := gate.Get(ctx, u, "security")
	require.True(t, ok)
	assert.True(t, got.CacheHit)
	assert.Equal(t, outcome.Findings, got.Findings)
	assert.InDelta(t, outcome.Cost, got.Cost, 1e-9)
}

func TestGate_TTLExpiry(t *testing.T) {
	gate := NewGate(newMemStore(), 10*time.Millisecond)
	ctx := context.Background()
	u := testUnit("a.go", "package a")

	gate.Put(ctx, u, "security", models.ProducerOutcome{Producer: "security", Succeeded: true})
	_, ok := gate.Get(ctx, u, "security")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = gate.Get(ctx, u, "security")
	assert.False(t, ok, "entry must be absent after TTL expiry")
}

func TestGate_BackendFailureIsAMiss(t *testing.T) {
	store := newMemStore()
	gate := NewGate(store, time.Hour)
	ctx := context.Background()
	u := testUnit("a.go", "package a")

	store.failGet = true
	_, ok := gate.Get(ctx, u, "security")
	assert.False(t, ok)

	// A write failure must not propagate.
	store.failSet = true
	gate.Put(ctx, u, "security", models.ProducerOutcome{Succeeded: true})
}

func TestGate_InvalidatePath(t *testing.T) {
	gate := NewGate(newMemStore(), time.Hour)
	ctx := context.Background()

	a := testUnit("a.go", "package a")
	b := testUnit("b.go", "package b")
	for _, producer := range []string{"analyzer", "security"} {
		gate.Put(ctx, a, producer, models.ProducerOutcome{Producer: producer, Succeeded: true})
		gate.Put(ctx, b, producer, models.ProducerOutcome{Producer: producer, Succeeded: true})
	}

	deleted := gate.InvalidatePath(ctx, "a.go")
	assert.Equal(t, 2, deleted)

	_, ok := gate.Get(ctx, a, "analyzer")
	assert.False(t, ok)
	_, ok = gate.Get(ctx, b, "analyzer")
	assert.True(t, ok, "other paths must survive invalidation")
}

func TestGate_GetOrCompute_SingleFlight(t *testing.T) {
	gate := NewGate(newMemStore(), time.Hour)
	ctx := context.Background()
	u := testUnit("a.go", "package a")

	var computes atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (models.ProducerOutcome, error) {
		computes.Add(1)
		<-release
		return models.ProducerOutcome{Producer: "security", Succeeded: true}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.ProducerOutcome, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := gate.GetOrCompute(ctx, u, "security", compute)
			require.NoError(t, err)
			results[i] = out
		}(i)
	}

	// Give all goroutines a chance to pile onto the same key.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computes.Load(), "concurrent identical pairs must compute once")
	for _, out := range results {
		assert.Equal(t, "security", out.Producer)
	}
}

func TestGate_GetOrCompute_FailedOutcomeNotCached(t *testing.T) {
	gate := NewGate(newMemStore(), time.Hour)
	ctx := context.Background()
	u := testUnit("a.go", "package a")

	_, err := gate.GetOrCompute(ctx, u, "security", func(context.Context) (models.ProducerOutcome, error) {
		return models.ProducerOutcome{Producer: "security", Succeeded: false, Error: "provider down"}, nil
	})
	require.NoError(t, err)

	_, ok := gate.Get(ctx, u, "security")
	assert.False(t, ok, "failed outcomes must not be cached")
}

func TestGate_Stats(t *testing.T) {
	gate := NewGate(newMemStore(), time.Hour)
	ctx := context.Background()
	u := testUnit("a.go", "package a")

	gate.Get(ctx, u, "security") // miss
	gate.Put(ctx, u, "security", models.ProducerOutcome{Succeeded: true})
	gate.Get(ctx, u, "security") // hit

	stats := gate.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	deleted := gate.Clear(ctx)
	assert.Equal(t, 1, deleted)
	assert.Zero(t, gate.Stats().Entries)
}

func TestRistretto_RoundTrip(t *testing.T) {
	r, err := NewRistretto(1 << 20)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Hour))
	r.Wait()

	data, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	require.NoError(t, r.Delete(ctx, "k"))
	_, ok, _ = r.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTiered_BackfillsL1(t *testing.T) {
	l1 := newMemStore()
	l2 := newMemStore()
	tiered := NewTiered(l1, l2, time.Minute)
	ctx := context.Background()

	// Seed only L2, as if another instance populated Redis.
	require.NoError(t, l2.Set(ctx, "k", []byte("v"), time.Hour))

	data, ok, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	_, ok, _ = l1.Get(ctx, "k")
	assert.True(t, ok, "L2 hit must backfill L1")
}

func TestTiered_SetAndDeleteHitBothLevels(t *testing.T) {
	l1 := newMemStore()
	l2 := newMemStore()
	tiered := NewTiered(l1, l2, time.Minute)
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Hour))
	_, ok, _ := l1.Get(ctx, "k")
	assert.True(t, ok)
	_, ok, _ = l2.Get(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, tiered.Delete(ctx, "k"))
	_, ok, _ = l1.Get(ctx, "k")
	assert.False(t, ok)
	_, ok, _ = l2.Get(ctx, "k")
	assert.False(t, ok)
}
