package cache

import (
	"context"
	"time"

	"kasirkredit/backend/internal/domain"
)

// SummaryCache keeps debt summaries per store and as-of date. Invalidate drops
// every cached date of a store and is called after each ledger mutation.
type SummaryCache interface {
	Get(ctx context.Context, storeID string, asOf string) (*domain.DebtSummary, bool, error)
	Set(ctx context.Context, summary domain.DebtSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, storeID string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string, _ string) (*domain.DebtSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ domain.DebtSummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
