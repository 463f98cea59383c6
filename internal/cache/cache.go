package cache

import (
	"context"
	"errors"
	"time"
)

var ErrKeyNotFound = errors.New("key not found")

// NoTTL is reported for keys that exist without an expiry.
const NoTTL = time.Duration(-1)

// Client is the boundary to the cache backend. The cache handler depends on
// this interface only; the Redis adapter implements it.
type Client interface {
	ScanKeys(ctx context.Context, pattern string, count int) ([]string, error)
	Get(ctx context.Context, key string) (string, error)
	// TTL returns the remaining time to live, NoTTL for keys without expiry,
	// and ErrKeyNotFound for missing keys.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, keys ...string) (int, error)
	FlushAll(ctx context.Context) error
}
