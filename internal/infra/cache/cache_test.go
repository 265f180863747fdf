package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/cache"

	"go.uber.org/zap"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestRedis_UnreachableDegradesToMiss(t *testing.T) {
	rdb, err := cache.NewRedisClient("redis://127.0.0.1:1/0")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	defer rdb.Close()

	c := cache.NewRedis[string](rdb, "test:", time.Minute, zap.NewNop())
	c.Set("key1", "value1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected miss when redis is unreachable")
	}
	c.Delete("key1")
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	if _, err := cache.NewRedisClient("://nope"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c := cache.New[int](20 * time.Millisecond)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(80 * time.Millisecond)

	if n := c.Len(); n != 0 {
		t.Errorf("expected expired entries to be swept, got %d", n)
	}
}
