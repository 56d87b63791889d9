package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the only queue the worker serves.
	QueueDefault = "default"
	// TaskCloseDay closes one business day in the ledger.
	TaskCloseDay = "ledger:close_day"
)

// CloseDayPayload names the business day to close. An empty date means the
// current business day at the venue when the task runs.
type CloseDayPayload struct {
	Date string `json:"date"`
	Tip  string `json:"tip,omitempty"`
}

func NewCloseDayTask(payload CloseDayPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCloseDay, data), nil
}
