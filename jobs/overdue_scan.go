package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/receivable"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// DefaultOverdueWindow covers the hourly schedule with some overlap for late runs.
const DefaultOverdueWindow = 75 * time.Minute

// Receivables is the receivable service surface used by the scan.
type Receivables interface {
	NotifyOverdue(ctx context.Context, window time.Duration) (int, error)
	Aging(ctx context.Context, asOf time.Time) (receivable.AgingReport, error)
}

// Locker obtains distributed locks.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// OverdueScanJob publishes ACCOUNT_OVERDUE events for accounts that fell due
// since the previous run and warms the aging report. Only one worker runs it
// at a time.
type OverdueScanJob struct {
	Receivables Receivables
	Locker      Locker
	LockTTL     time.Duration
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewOverdueScanJob wires the scan handler.
func NewOverdueScanJob(receivables Receivables, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{Receivables: receivables, Locker: locker, LockTTL: 5 * time.Minute, Logger: logger, Metrics: metrics}
}

// Handle processes receivable:overdue-scan tasks.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Receivables == nil {
		return errors.New("overdue scan: handler not configured")
	}
	payload := OverdueScanPayload{}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("overdue scan: malformed payload: %w", asynq.SkipRetry)
		}
	}
	window := DefaultOverdueWindow
	if payload.WindowMinutes > 0 {
		window = time.Duration(payload.WindowMinutes) * time.Minute
	}
	logger := jobLogger(j.Logger, TaskReceivableOverdueScan)

	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.JobLockKey(TaskReceivableOverdueScan), j.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("overdue scan already running elsewhere")
			j.Metrics.Skip(TaskReceivableOverdueScan)
			return nil
		}
		if err != nil {
			return fmt.Errorf("overdue scan: obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release overdue scan lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.Metrics.Track(TaskReceivableOverdueScan)
	published, err := j.Receivables.NotifyOverdue(ctx, window)
	j.Metrics.AddProcessed(TaskReceivableOverdueScan, published)
	if err != nil {
		logger.Error("notify overdue", slog.Int("published", published), slog.Any("error", err))
		return tracker.End(err)
	}
	if _, err := j.Receivables.Aging(ctx, time.Time{}); err != nil {
		logger.Warn("warm aging report", slog.Any("error", err))
	}
	logger.Info("overdue scan complete", slog.Int("published", published), slog.Duration("window", window))
	return tracker.End(nil)
}
