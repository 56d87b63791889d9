package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vereinskasse/backend/internal/domain"
)

const daySummaryKeyPrefix = "vereinskasse:day-summary:"

type RedisDaySummaryCache struct {
	client *redis.Client
}

func NewRedisDaySummaryCache(addr string, password string, db int) *RedisDaySummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDaySummaryCache{client: client}
}

func (c *RedisDaySummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDaySummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisDaySummaryCache) Get(ctx context.Context, date string) (*domain.DaySummary, bool, error) {
	val, err := c.client.Get(ctx, daySummaryKey(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DaySummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisDaySummaryCache) Set(ctx context.Context, date string, value *domain.DaySummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, daySummaryKey(date), payload, ttl).Err()
}

func (c *RedisDaySummaryCache) Invalidate(ctx context.Context, dates ...string) error {
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, 0, len(dates))
	for _, date := range dates {
		keys = append(keys, daySummaryKey(date))
	}
	return c.client.Del(ctx, keys...).Err()
}

func daySummaryKey(date string) string {
	return daySummaryKeyPrefix + date
}
