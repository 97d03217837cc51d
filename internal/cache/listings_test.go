package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ecocycle/internal/cache"
	"ecocycle/internal/domain"
)

func TestNopAlwaysMisses(t *testing.T) {
	var c cache.Listings = cache.Nop{}
	c.Set(context.Background(), domain.Listing{ID: "l-1"})
	if _, ok := c.Get(context.Background(), "l-1"); ok {
		t.Fatal("nop cache must never hit")
	}
}

// An unreachable Redis degrades to misses and warnings instead of errors.
func TestRedisUnavailableIsAMiss(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	c := cache.NewRedisWithClient(rdb, time.Minute, zap.New(core))

	ctx := context.Background()
	c.Set(ctx, domain.Listing{ID: "l-1", Title: "PET"})
	if _, ok := c.Get(ctx, "l-1"); ok {
		t.Fatal("want miss when redis is down")
	}
	c.Invalidate(ctx, "l-1")

	if logs.Len() < 3 {
		t.Fatalf("want warnings for set/get/invalidate, got %d", logs.Len())
	}
}
