package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirkredit/backend/internal/domain"
)

func newTestRedisCache(t *testing.T) (*RedisSummaryCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	c := NewRedisSummaryCache(server.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c, server
}

func summaryFor(storeID, asOf string, outstanding int64) domain.DebtSummary {
	return domain.DebtSummary{
		StoreID:               storeID,
		AsOf:                  asOf,
		ActiveCredits:         2,
		TotalOutstandingCents: outstanding,
		OverdueInstallments:   1,
		OverduePendingCents:   2500,
	}
}

func TestRedisSummaryCacheStoresOneHashPerStore(t *testing.T) {
	c, server := newTestRedisCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "lima-centro", "2026-04-20")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, summaryFor("lima-centro", "2026-04-20", 90000), time.Minute))
	require.NoError(t, c.Set(ctx, summaryFor("lima-centro", "2026-04-21", 85000), time.Minute))

	key := summaryKeyPrefix + "lima-centro"
	fields, err := server.HKeys(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2026-04-20", "2026-04-21"}, fields)
	assert.Equal(t, time.Minute, server.TTL(key))

	var stored domain.DebtSummary
	require.NoError(t, json.Unmarshal([]byte(server.HGet(key, "2026-04-21")), &stored))
	assert.Equal(t, int64(85000), stored.TotalOutstandingCents)

	got, ok, err := c.Get(ctx, "lima-centro", "2026-04-20")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summaryFor("lima-centro", "2026-04-20", 90000), *got)
}

func TestRedisSummaryCacheExpiresWithTTL(t *testing.T) {
	c, server := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, summaryFor("lima-centro", "2026-04-20", 90000), 30*time.Second))
	server.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "lima-centro", "2026-04-20")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, summaryFor("arequipa", "2026-04-20", 1000), 0))
	assert.Zero(t, server.TTL(summaryKeyPrefix+"arequipa"))
}

func TestRedisSummaryCacheInvalidateDropsOnlyThatStore(t *testing.T) {
	c, server := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, summaryFor("lima-centro", "2026-04-20", 90000), time.Minute))
	require.NoError(t, c.Set(ctx, summaryFor("lima-centro", "2026-04-21", 85000), time.Minute))
	require.NoError(t, c.Set(ctx, summaryFor("arequipa", "2026-04-20", 1000), time.Minute))

	require.NoError(t, c.Invalidate(ctx, "lima-centro"))

	assert.False(t, server.Exists(summaryKeyPrefix+"lima-centro"))
	assert.True(t, server.Exists(summaryKeyPrefix+"arequipa"))
	_, ok, err := c.Get(ctx, "lima-centro", "2026-04-21")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Invalidate(ctx, "unknown-store"))
}

func TestRedisSummaryCacheReportsCorruptEntries(t *testing.T) {
	c, server := newTestRedisCache(t)

	server.HSet(summaryKeyPrefix+"lima-centro", "2026-04-20", "not-json")
	_, ok, err := c.Get(context.Background(), "lima-centro", "2026-04-20")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisSummaryCacheSurfacesConnectionErrors(t *testing.T) {
	c, server := newTestRedisCache(t)
	server.Close()

	ctx := context.Background()
	assert.Error(t, c.Ping(ctx))
	assert.Error(t, c.Set(ctx, summaryFor("lima-centro", "2026-04-20", 1), time.Minute))
	_, _, err := c.Get(ctx, "lima-centro", "2026-04-20")
	assert.Error(t, err)
}
