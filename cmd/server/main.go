package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vereinskasse/backend/internal/app"
	"vereinskasse/backend/internal/config"
	"vereinskasse/backend/internal/httpapi"
	"vereinskasse/backend/internal/logger"
	"vereinskasse/backend/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := app.OpenRepository(startupCtx, cfg, log)
	if err != nil {
		return err
	}
	summaryCache, cacheClosers := app.OpenCache(startupCtx, cfg, log)
	closers = append(closers, cacheClosers...)
	defer app.CloseAll(closers, log)

	metrics := observability.NewMetrics()
	svc, err := app.NewService(cfg, repo, summaryCache, metrics, log)
	if err != nil {
		return err
	}
	api := httpapi.New(svc, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		WriteRateLimit: cfg.WriteRateLimit,
		Logger:         log,
		Metrics:        metrics,
	})

	server := newHTTPServer(cfg, api.Handler())
	errCh := make(chan error, 1)
	go func() {
		log.Info("vereinskasse listening",
			zap.String("addr", server.Addr),
			zap.String("timezone", cfg.Timezone),
			zap.String("tip_booking", cfg.TipBooking),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}

func newHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
