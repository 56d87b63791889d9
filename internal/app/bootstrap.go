// Package app wires configuration to the repository, cache and service shared
// by the HTTP server and the worker.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vereinskasse/backend/internal/cache"
	"vereinskasse/backend/internal/config"
	"vereinskasse/backend/internal/service"
	"vereinskasse/backend/internal/store"
	"vereinskasse/backend/internal/store/memory"
	pgstore "vereinskasse/backend/internal/store/postgres"
)

// Closer releases a resource opened during startup.
type Closer func() error

// OpenRepository uses Postgres when DATABASE_URL is set and the seeded
// in-memory store otherwise. A configured but unreachable database is an
// error; there is no silent fallback.
func OpenRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []Closer, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema migrated")
	}
	logger.Info("repository: postgres")
	return pg, []Closer{pg.Close}, nil
}

// OpenCache returns the Redis day summary cache when REDIS_ADDR is set and
// reachable. An unreachable Redis degrades to no caching.
func OpenCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.DaySummaryCache, []Closer) {
	if cfg.RedisAddr == "" {
		logger.Info("cache: noop")
		return cache.NoopDaySummaryCache{}, nil
	}
	redisCache := cache.NewRedisDaySummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using noop cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = redisCache.Close()
		return cache.NoopDaySummaryCache{}, nil
	}
	logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, []Closer{redisCache.Close}
}

// NewService builds the register service from configuration.
func NewService(cfg config.Config, repo store.Repository, summaryCache cache.DaySummaryCache, recorder service.Recorder, logger *zap.Logger) (*service.Service, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	denominations, err := cfg.TillDenominations()
	if err != nil {
		return nil, err
	}
	return service.New(repo, service.Options{
		Location:      location,
		TipBooking:    service.TipBooking(cfg.TipBooking),
		Cache:         summaryCache,
		CacheTTL:      cfg.DaySummaryTTL(),
		Denominations: denominations,
		Logger:        logger,
		Recorder:      recorder,
	}), nil
}

// CloseAll runs closers in reverse order and logs failures.
func CloseAll(closers []Closer, logger *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}
}
