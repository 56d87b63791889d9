package cache

import (
	"context"
	"time"

	"vereinskasse/backend/internal/domain"
)

// DaySummaryCache holds computed day summaries keyed by business date.
type DaySummaryCache interface {
	Get(ctx context.Context, date string) (*domain.DaySummary, bool, error)
	Set(ctx context.Context, date string, value *domain.DaySummary, ttl time.Duration) error
	Invalidate(ctx context.Context, dates ...string) error
}

type NoopDaySummaryCache struct{}

func (NoopDaySummaryCache) Get(_ context.Context, _ string) (*domain.DaySummary, bool, error) {
	return nil, false, nil
}

func (NoopDaySummaryCache) Set(_ context.Context, _ string, _ *domain.DaySummary, _ time.Duration) error {
	return nil
}

func (NoopDaySummaryCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
