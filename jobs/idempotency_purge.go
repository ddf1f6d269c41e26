package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// IdempotencyPurgeJob evicts idempotency keys past their retention window so
// the guard table stays small.
type IdempotencyPurgeJob struct {
	Store   *shared.IdempotencyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyPurgeJob initialises the purge handler.
func NewIdempotencyPurgeJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyPurgeJob {
	return &IdempotencyPurgeJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the purge.
func (j *IdempotencyPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency purge: handler not configured")
	}
	var payload IdempotencyPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxAgeHours <= 0 {
		payload.MaxAgeHours = 48
	}

	tracker := j.Metrics.Track(TaskIdempotencyPurge)
	err := j.Store.Purge(ctx, time.Duration(payload.MaxAgeHours)*time.Hour)
	if err != nil {
		j.logger().Error("idempotency purge failed", slog.Any("error", err))
	} else {
		j.logger().Info("idempotency purge completed", slog.Int("max_age_hours", payload.MaxAgeHours))
	}
	return tracker.End(err)
}

func (j *IdempotencyPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
