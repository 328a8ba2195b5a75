package cache

import (
	"context"
	"time"
)

// Cache is the subset of key-value operations the contest service relies on.
// Implementations must return "" and a nil error for missing keys.
type Cache interface {
	BasicOps
	HashOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; ttl 0 means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// HashOps defines hash (map) operations
type HashOps interface {
	HSet(ctx context.Context, key, field string, value interface{}) error

	// HGet returns "" when the field does not exist.
	HGet(ctx context.Context, key, field string) (string, error)

	HGetAll(ctx context.Context, key string) (map[string]string, error)

	HDel(ctx context.Context, key string, fields ...string) error
}
