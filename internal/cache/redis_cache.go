package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasirkredit/backend/internal/domain"
)

const summaryKeyPrefix = "kasirkredit:debt-summary:"

// RedisSummaryCache stores one hash per store, keyed by as-of date, so a
// single DEL invalidates all of them.
type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) Get(ctx context.Context, storeID string, asOf string) (*domain.DebtSummary, bool, error) {
	val, err := c.client.HGet(ctx, summaryKeyPrefix+storeID, asOf).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DebtSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, summary domain.DebtSummary, ttl time.Duration) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	key := summaryKeyPrefix + summary.StoreID
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, summary.AsOf, payload)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, storeID string) error {
	return c.client.Del(ctx, summaryKeyPrefix+storeID).Err()
}
