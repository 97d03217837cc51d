// Package cache holds the read-through cache for listing detail pages.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ecocycle/internal/domain"
)

// Listings caches listing rows by id. Implementations never fail the caller:
// a cache error is logged and treated as a miss.
type Listings interface {
	Get(ctx context.Context, id string) (domain.Listing, bool)
	Set(ctx context.Context, l domain.Listing)
	Invalidate(ctx context.Context, ids ...string)
}

// Nop is used when no cache is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (domain.Listing, bool) { return domain.Listing{}, false }
func (Nop) Set(context.Context, domain.Listing)                {}
func (Nop) Invalidate(context.Context, ...string)              {}

type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis connects and pings; the caller decides whether a failure is fatal.
func NewRedis(addr, password string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("Redis connection established", zap.String("addr", addr))
	return NewRedisWithClient(rdb, ttl, logger), nil
}

func NewRedisWithClient(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}
}

func key(id string) string { return fmt.Sprintf("listing:%s", id) }

func (c *Redis) Get(ctx context.Context, id string) (domain.Listing, bool) {
	b, err := c.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("listing cache get failed", zap.String("listing_id", id), zap.Error(err))
		}
		return domain.Listing{}, false
	}
	var l domain.Listing
	if err := json.Unmarshal(b, &l); err != nil {
		c.logger.Warn("listing cache entry unreadable", zap.String("listing_id", id), zap.Error(err))
		return domain.Listing{}, false
	}
	return l, true
}

func (c *Redis) Set(ctx context.Context, l domain.Listing) {
	b, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(l.ID), b, c.ttl).Err(); err != nil {
		c.logger.Warn("listing cache set failed", zap.String("listing_id", l.ID), zap.Error(err))
	}
}

func (c *Redis) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("listing cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *Redis) Close() error { return c.rdb.Close() }
