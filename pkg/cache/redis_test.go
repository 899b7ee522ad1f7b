package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func skipIfNoRedis(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}

	c, err := NewRedisCache(&Options{
		Backend:       BackendRedis,
		RedisAddr:     addr,
		RedisPassword: os.Getenv("REDIS_TEST_PASSWORD"),
		DefaultTTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCache_SetGet(t *testing.T) {
	c := skipIfNoRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "trafficassign-test:key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	defer c.Delete(ctx, "trafficassign-test:key")

	val, err := c.Get(ctx, "trafficassign-test:key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(val) != "value" {
		t.Errorf("Get() = %s, want value", val)
	}
}

func TestRedisCache_NotFound(t *testing.T) {
	c := skipIfNoRedis(t)

	_, err := c.Get(context.Background(), "trafficassign-test:nonexistent")
	if err != ErrKeyNotFound {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestRedisCache_DeleteByPrefix(t *testing.T) {
	c := skipIfNoRedis(t)
	ctx := context.Background()

	for _, k := range []string{"trafficassign-test:p:1", "trafficassign-test:p:2"} {
		if err := c.Set(ctx, k, []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	n, err := c.DeleteByPrefix(ctx, "trafficassign-test:p:")
	if err != nil {
		t.Fatalf("DeleteByPrefix() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d keys, want 2", n)
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	_, err := NewRedisCache(&Options{RedisAddr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Error("expected error for unreachable redis")
	}
}
