package stocktake

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const taskEntity = "stocktake task"

// NewTask builds a pending counting task, snapshotting the theoretical
// quantity from the ledger at creation time.
func NewTask(sessionID, productID int64, theoreticalQty int, assignedTo string, now time.Time) *Task {
	return &Task{
		SessionID:      sessionID,
		ProductID:      productID,
		TheoreticalQty: theoreticalQty,
		Status:         TaskStatusPending,
		AssignedTo:     assignedTo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Start moves PENDING -> IN_PROGRESS and stamps the start time.
func (t *Task) Start(now time.Time) error {
	if t.Status != TaskStatusPending {
		return shared.NewInvalidState(taskEntity, t.ID, string(t.Status), "start")
	}
	t.Status = TaskStatusInProgress
	t.StartedAt = &now
	return nil
}

// Complete records the physical count, moves the task to COMPLETED, and
// returns the ledger correction. Completing straight from PENDING is allowed;
// the start stamp simply stays empty and Duration reports zero. The
// discrepancy is physical minus theoretical; a zero discrepancy still
// produces a correction so the product's last stocktake timestamp gets
// bumped.
func (t *Task) Complete(physicalQty *int, comment string, now time.Time) (StockCorrection, error) {
	if t.Terminal() {
		return StockCorrection{}, shared.NewInvalidState(taskEntity, t.ID, string(t.Status), "complete")
	}
	if physicalQty == nil {
		return StockCorrection{}, shared.NewValidation(taskEntity, t.ID, "physical quantity is required")
	}
	if *physicalQty < 0 {
		return StockCorrection{}, shared.NewValidation(taskEntity, t.ID, "physical quantity cannot be negative")
	}
	qty := *physicalQty
	disc := qty - t.TheoreticalQty
	t.PhysicalQty = &qty
	t.Discrepancy = &disc
	t.Comment = comment
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	return StockCorrection{ProductID: t.ProductID, CountedQty: qty, Discrepancy: disc}, nil
}

// Cancel aborts the task from any non-terminal state.
func (t *Task) Cancel(reason string, now time.Time) error {
	if t.Terminal() {
		return shared.NewInvalidState(taskEntity, t.ID, string(t.Status), "cancel")
	}
	t.Status = TaskStatusCancelled
	t.Comment = reason
	t.CompletedAt = &now
	return nil
}

// Terminal reports whether the task accepts no further transitions.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

// HasDiscrepancy reports whether the count differed from the ledger.
func (t *Task) HasDiscrepancy() bool {
	return t.Discrepancy != nil && *t.Discrepancy != 0
}

// Duration returns the time spent counting, or zero when either stamp is
// missing.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
