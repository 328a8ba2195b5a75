package cache_test

import (
	"context"
	"testing"
	"time"

	"codeblack/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	rc, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, srv
}

func TestRedisCacheMissingKeysReturnEmpty(t *testing.T) {
	rc, _ := newTestCache(t)
	ctx := context.Background()

	value, err := rc.Get(ctx, "missing")
	if err != nil || value != "" {
		t.Fatalf("expected empty value and nil error, got %q %v", value, err)
	}
	field, err := rc.HGet(ctx, "missing", "field")
	if err != nil || field != "" {
		t.Fatalf("expected empty field and nil error, got %q %v", field, err)
	}
}

func TestRedisCacheHashRoundTrip(t *testing.T) {
	rc, srv := newTestCache(t)
	ctx := context.Background()

	if err := rc.HSet(ctx, "h", "a", "1"); err != nil {
		t.Fatalf("hset failed: %v", err)
	}
	if err := rc.HSet(ctx, "h", "b", "2"); err != nil {
		t.Fatalf("hset failed: %v", err)
	}
	if err := rc.Expire(ctx, "h", time.Minute); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	all, err := rc.HGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("hgetall failed: %v", err)
	}
	if len(all) != 2 || all["a"] != "1" || all["b"] != "2" {
		t.Fatalf("unexpected hash content: %v", all)
	}
	if err := rc.HDel(ctx, "h", "a"); err != nil {
		t.Fatalf("hdel failed: %v", err)
	}
	if got, _ := rc.HGet(ctx, "h", "a"); got != "" {
		t.Fatalf("expected field deleted, got %q", got)
	}

	srv.FastForward(2 * time.Minute)
	if srv.Exists("h") {
		t.Fatalf("expected hash to expire")
	}
}
