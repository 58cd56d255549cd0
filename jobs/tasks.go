package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotificationDispatch persists one notification event.
	TaskNotificationDispatch = "notification:dispatch"
	// TaskReceivableOverdueScan publishes ACCOUNT_OVERDUE for newly overdue accounts.
	TaskReceivableOverdueScan = "receivable:overdue-scan"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// OverdueScanPayload configures one overdue scan run.
type OverdueScanPayload struct {
	// WindowMinutes is how far back due dates are considered newly overdue.
	WindowMinutes int `json:"window_minutes"`
}

// IdempotencyCleanupPayload configures one cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewNotificationDispatchTask wraps an event for the dispatch handler.
func NewNotificationDispatchTask(event notify.Event) (*asynq.Task, error) {
	if event.Type == "" {
		return nil, fmt.Errorf("notification: event type required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, data, asynq.MaxRetry(5)), nil
}

// NewOverdueScanTask constructs the scheduled overdue scan.
func NewOverdueScanTask(windowMinutes int) (*asynq.Task, error) {
	data, err := json.Marshal(OverdueScanPayload{WindowMinutes: windowMinutes})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceivableOverdueScan, data), nil
}

// NewIdempotencyCleanupTask constructs the scheduled key purge.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
