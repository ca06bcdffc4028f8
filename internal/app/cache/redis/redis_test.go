package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

func newTestCache(t *testing.T) (*Cache, context.Context) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	return New(client, time.Minute), ctx
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c, ctx := newTestCache(t)

	if err := c.Put(ctx, "orchestrator-test:k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	t.Cleanup(func() { _ = c.Delete(ctx, "orchestrator-test:k1") })

	got, ok, err := c.Get(ctx, "orchestrator-test:k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(got) != "v1" {
		t.Fatalf("expected v1, got %q ok=%v", got, ok)
	}
}

func TestCacheGetMissingKeyIsNotError(t *testing.T) {
	c, ctx := newTestCache(t)

	_, ok, err := c.Get(ctx, "orchestrator-test:does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to report ok=false")
	}
}
