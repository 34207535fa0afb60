// Package jobs hosts the background worker: scheduled cache warming and
// retention cleanup, processed through Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/larderhq/larder/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSnapshot warms the cached stock dashboard projection.
	TaskStockSnapshot = "stock:snapshot"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "recon:cleanup"
)

// StockSnapshotPayload carries scheduling metadata.
type StockSnapshotPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockSnapshotTask constructs an Asynq task for dashboard warming.
func NewStockSnapshotTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockSnapshotPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// DashboardWarmer recomputes and caches the current stock projection.
type DashboardWarmer interface {
	WarmDashboard(ctx context.Context) error
}

// NewStockSnapshotHandler returns the handler for TaskStockSnapshot.
func NewStockSnapshotHandler(warmer DashboardWarmer, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskStockSnapshot)
		var payload StockSnapshotPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if err := warmer.WarmDashboard(ctx); err != nil {
			logger.Warn("stock snapshot warmup failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("stock snapshot warmed", slog.Time("scheduled_for", payload.ScheduledFor))
		return tracker.End(nil)
	}
}

// IdempotencyCleanupPayload bounds the retention window for one run.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key pruning.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// KeyPruner deletes idempotency keys older than the given duration.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupHandler returns the handler for TaskIdempotencyCleanup.
func NewIdempotencyCleanupHandler(pruner KeyPruner, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskIdempotencyCleanup)
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		retention := payload.Retention
		if retention <= 0 {
			retention = 90 * 24 * time.Hour
		}
		if err := pruner.Cleanup(ctx, retention); err != nil {
			logger.Warn("idempotency cleanup failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
		return tracker.End(nil)
	}
}
