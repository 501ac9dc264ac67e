// Package cache is the content-addressed result cache that prevents
// redundant producer invocations for unchanged file content.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented cache backend. Implementations must be safe for
// concurrent use by many in-flight fan-out tasks. A Store does not serialize
// concurrent misses for the same key; that is the Gate's job.
type Store interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
