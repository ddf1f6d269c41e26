package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// StocktakeScanJob walks the product ledger and flags entries that need a
// fresh count: low stock, never counted, or counted too long ago.
type StocktakeScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStocktakeScanJob initialises the scan handler.
func NewStocktakeScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *StocktakeScanJob {
	return &StocktakeScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *StocktakeScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("stocktake scan: handler not configured")
	}
	var payload StocktakeScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxAgeMonths <= 0 {
		payload.MaxAgeMonths = 3
	}
	if payload.Limit <= 0 {
		payload.Limit = 1000
	}

	start := j.now()
	tracker := j.metrics().Track(TaskStocktakeScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	runID := uuid.NewString()
	logger := j.logger().With(
		slog.String("run_id", runID),
		slog.Int("max_age_months", payload.MaxAgeMonths),
	)
	logger.Info("starting stocktake scan")

	flagged, err := j.scan(ctx, payload, start)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddFlaggedProducts(flagged)

	logger.Info("completed stocktake scan",
		slog.Int("flagged", flagged),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *StocktakeScanJob) scan(ctx context.Context, payload StocktakeScanPayload, now time.Time) (int, error) {
	if j.Pool == nil {
		return 0, errors.New("stocktake scan: pool not configured")
	}
	cutoff := now.AddDate(0, -payload.MaxAgeMonths, 0)
	tag, err := j.Pool.Exec(ctx, `UPDATE products
SET needs_stocktake = TRUE, updated_at = NOW()
WHERE id IN (
    SELECT id FROM products
    WHERE needs_stocktake = FALSE
      AND active = TRUE
      AND (on_hand <= min_stock OR last_stocktake_at IS NULL OR last_stocktake_at < $1)
    ORDER BY id
    LIMIT $2
)`, cutoff, payload.Limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (j *StocktakeScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *StocktakeScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *StocktakeScanJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
