package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStocktakeScan flags products whose ledger needs a fresh count.
	TaskStocktakeScan = "stocktake:scan"
	// TaskIdempotencyPurge evicts expired idempotency keys.
	TaskIdempotencyPurge = "idempotency:purge"
)

// StocktakeScanPayload tunes the needs-stocktake scan.
type StocktakeScanPayload struct {
	// MaxAgeMonths is how old a count may be before the product is flagged.
	MaxAgeMonths int `json:"max_age_months"`
	// Limit caps how many products one run flags.
	Limit int `json:"limit"`
}

// NewStocktakeScanTask constructs an Asynq task for the scan.
func NewStocktakeScanTask(payload StocktakeScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStocktakeScan, data), nil
}

// IdempotencyPurgePayload tunes the idempotency key purge.
type IdempotencyPurgePayload struct {
	// MaxAgeHours is how long reserved keys are kept before eviction.
	MaxAgeHours int `json:"max_age_hours"`
}

// NewIdempotencyPurgeTask constructs an Asynq task for the purge.
func NewIdempotencyPurgeTask(payload IdempotencyPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyPurge, data), nil
}
