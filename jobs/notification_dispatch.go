package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/notify"
)

// NotificationDispatchJob persists queued events through a notify.Publisher,
// normally notify.Store.
type NotificationDispatchJob struct {
	Store   notify.Publisher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotificationDispatchJob wires the dispatch handler.
func NewNotificationDispatchJob(store notify.Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationDispatchJob {
	return &NotificationDispatchJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes notification:dispatch tasks.
func (j *NotificationDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("notification dispatch: handler not configured")
	}
	var event notify.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil || event.Type == "" {
		jobLogger(j.Logger, TaskNotificationDispatch).Warn("drop malformed notification", slog.Any("error", err))
		return fmt.Errorf("notification dispatch: malformed payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskNotificationDispatch)
	if err := j.Store.Publish(ctx, event); err != nil {
		return tracker.End(fmt.Errorf("persist %s: %w", event.Type, err))
	}
	j.Metrics.AddProcessed(TaskNotificationDispatch, 1)
	return tracker.End(nil)
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
