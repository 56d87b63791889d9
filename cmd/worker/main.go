package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"vereinskasse/backend/internal/app"
	"vereinskasse/backend/internal/config"
	"vereinskasse/backend/internal/jobs"
	"vereinskasse/backend/internal/logger"
	"vereinskasse/backend/internal/service"
)

func main() {
	closeDate := flag.String("enqueue-close", "", "queue a close for this day (YYYY-MM-DD, today or yesterday) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	if cfg.RedisAddr == "" {
		log.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *closeDate != "" {
		err = enqueueClose(ctx, redisOpts, *closeDate, log)
	} else {
		err = run(ctx, cfg, redisOpts, log)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker failed", zap.Error(err))
		os.Exit(1)
	}
}

// errNoSharedLedger stops a worker that would otherwise close days in a
// private in-memory store nobody else writes to.
var errNoSharedLedger = errors.New("DATABASE_URL is required for the worker: the in-memory store is not shared with the server")

func validateRunConfig(cfg config.Config) error {
	if cfg.DatabaseURL == "" {
		return errNoSharedLedger
	}
	return nil
}

// closeSchedule returns the cron registration for the automatic close, or nil
// when it is off. It is off unless CLOSE_CRON is set, and always off when tips
// are booked at close, since the operator enters the counted tip then. The
// task closes the previous business day, so it belongs in the early morning
// after the last sale of the evening.
func closeSchedule(cfg config.Config) (*jobs.CronRegistration, error) {
	if cfg.CloseCron == "" || service.TipBooking(cfg.TipBooking) == service.TipAtClose {
		return nil, nil
	}
	task, err := jobs.NewCloseDayTask(jobs.CloseDayPayload{Date: "yesterday"})
	if err != nil {
		return nil, fmt.Errorf("build close task: %w", err)
	}
	return &jobs.CronRegistration{
		Spec:    cfg.CloseCron,
		Task:    task,
		Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)},
	}, nil
}

func run(ctx context.Context, cfg config.Config, redisOpts asynq.RedisClientOpt, log *zap.Logger) error {
	if err := validateRunConfig(cfg); err != nil {
		return err
	}
	schedule, err := closeSchedule(cfg)
	if err != nil {
		return err
	}

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closers, err := app.OpenRepository(startupCtx, cfg, log)
	if err != nil {
		return err
	}
	summaryCache, cacheClosers := app.OpenCache(startupCtx, cfg, log)
	closers = append(closers, cacheClosers...)
	defer app.CloseAll(closers, log)

	svc, err := app.NewService(cfg, repo, summaryCache, nil, log)
	if err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	var cron []jobs.CronRegistration
	if schedule != nil {
		cron = append(cron, *schedule)
	} else {
		log.Info("automatic close disabled", zap.String("tip_booking", cfg.TipBooking), zap.String("close_cron", cfg.CloseCron))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    log,
		Location:  location,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCloseDay, Handler: jobs.NewCloseDayJob(svc, log).Handle},
		},
		Cron: cron,
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	log.Info("worker started", zap.String("close_cron", cfg.CloseCron), zap.String("timezone", cfg.Timezone))
	return worker.Run(ctx)
}

func enqueueClose(ctx context.Context, redisOpts asynq.RedisClientOpt, date string, log *zap.Logger) error {
	client := jobs.NewClient(redisOpts)
	defer func() { _ = client.Close() }()

	info, err := client.EnqueueCloseDay(ctx, jobs.CloseDayPayload{Date: date})
	if err != nil {
		return fmt.Errorf("enqueue close: %w", err)
	}
	log.Info("close queued", zap.String("date", date), zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return nil
}
