package cache

import (
	"context"
	"time"
)

// Tiered combines an L1 (in-process) and L2 (remote) store. Get checks L1
// first, then L2, backfilling L1 on an L2 hit. Set and Delete hit both.
type Tiered struct {
	l1       Store
	l2       Store
	l1Expire time.Duration
}

// NewTiered creates a tiered store. l1Expire controls how long L2 backfill
// entries live in L1.
func NewTiered(l1, l2 Store, l1Expire time.Duration) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2. On L2 hit, backfills L1.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := t.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = t.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = t.l1.Set(ctx, key, val, t.l1Expire)
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes to both levels.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return t.l2.Set(ctx, key, value, ttl)
}

// Delete removes from both levels.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	if err := t.l1.Delete(ctx, key); err != nil {
		return err
	}
	return t.l2.Delete(ctx, key)
}

// Close closes both levels.
func (t *Tiered) Close() error {
	err := t.l1.Close()
	if err2 := t.l2.Close(); err == nil {
		err = err2
	}
	return err
}
