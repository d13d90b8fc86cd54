package viewcache

import (
	"context"
	"time"
)

// Store is the backing key/value store for cached views. Group versions are monotonic
// counters; bumping a version orphans every key built with the previous one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Version(ctx context.Context, versionKey string) (int64, error)
	Bump(ctx context.Context, versionKey string) error
}
