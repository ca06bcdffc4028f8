package memory

import (
	"context"
	"testing"
	"time"
)

func TestCachePutGetRoundTrip(t *testing.T) {
	c := New(time.Minute, 0)
	ctx := context.Background()

	if err := c.Put(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(got) != "v1" {
		t.Fatalf("expected v1, got %q ok=%v", got, ok)
	}
}

func TestCacheExpiresEntries(t *testing.T) {
	c := New(time.Millisecond, 0)
	ctx := context.Background()

	if err := c.Put(ctx, "k1", []byte("v1"), time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to be absent")
	}
}

func TestCacheKeysFiltersByPrefix(t *testing.T) {
	c := New(time.Minute, 0)
	ctx := context.Background()

	_ = c.Put(ctx, "exec:1:snapshot", []byte("a"), 0)
	_ = c.Put(ctx, "exec:2:snapshot", []byte("b"), 0)
	_ = c.Put(ctx, "other:1", []byte("c"), 0)

	keys, err := c.Keys(ctx, "exec:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys with prefix, got %d: %v", len(keys), keys)
	}
}

func TestCacheDeleteRemovesEntry(t *testing.T) {
	c := New(time.Minute, 0)
	ctx := context.Background()

	_ = c.Put(ctx, "k1", []byte("v1"), 0)
	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, _ := c.Get(ctx, "k1")
	if ok {
		t.Fatalf("expected deleted entry to be absent")
	}
}
