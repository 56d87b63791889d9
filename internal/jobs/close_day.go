package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/service"
)

// DayCloser is the part of the service the close job needs.
type DayCloser interface {
	CloseDay(ctx context.Context, date string, manualTip string) (domain.DayCloseResponse, error)
}

// CloseDayJob books the open tab of a day at the end of the evening.
type CloseDayJob struct {
	closer DayCloser
	logger *zap.Logger
}

func NewCloseDayJob(closer DayCloser, logger *zap.Logger) *CloseDayJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloseDayJob{closer: closer, logger: logger}
}

// Handle runs the close. A day that is already closed or had nothing to book
// counts as done so the scheduler does not retry it.
func (j *CloseDayJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.closer == nil {
		return errors.New("close day: handler not configured")
	}
	var payload CloseDayPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	logger := j.logger.With(zap.String("task", TaskCloseDay), zap.String("date", payload.Date))

	resp, err := j.closer.CloseDay(ctx, payload.Date, payload.Tip)
	switch {
	case errors.Is(err, service.ErrAlreadyClosed):
		logger.Info("day already closed")
		return nil
	case errors.Is(err, service.ErrNothingToClose):
		logger.Info("nothing to close")
		return nil
	case errors.Is(err, service.ErrInvalidInput):
		logger.Warn("close day payload rejected", zap.Error(err))
		return asynq.SkipRetry
	case err != nil:
		logger.Error("close day failed", zap.Error(err))
		return err
	}

	var booked int64
	for _, entry := range resp.Entries {
		booked += int64(entry.AmountCents)
	}
	logger.Info("day closed by worker",
		zap.String("business_date", resp.Date),
		zap.Int("entries", len(resp.Entries)),
		zap.Int64("booked_cents", booked),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
