package stocktake

import (
	"time"
)

// SessionStatus enumerates stocktake session lifecycle states. Closing a
// session is irreversible.
type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "OPEN"
	SessionStatusClosed SessionStatus = "CLOSED"
)

// TaskStatus enumerates counting task states.
// PENDING -> IN_PROGRESS -> COMPLETED, with CANCELLED reachable from any
// non-terminal state. COMPLETED and CANCELLED are terminal.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// Session groups counting tasks for one stocktake run. The statistics fields
// are always recomputed from the tasks, never incremented in place.
type Session struct {
	ID               int64         `json:"id" db:"id"`
	DocNumber        string        `json:"doc_number" db:"doc_number"`
	Name             string        `json:"name" db:"name"`
	Supervisor       string        `json:"supervisor,omitempty" db:"supervisor"`
	Description      string        `json:"description,omitempty" db:"description"`
	Status           SessionStatus `json:"status" db:"status"`
	PlannedCount     int           `json:"planned_count" db:"planned_count"`
	TaskTotal        int           `json:"task_total" db:"task_total"`
	TaskCompleted    int           `json:"task_completed" db:"task_completed"`
	DiscrepancyCount int           `json:"discrepancy_count" db:"discrepancy_count"`
	StartedAt        time.Time     `json:"started_at" db:"started_at"`
	ClosedAt         *time.Time    `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
	Tasks            []Task        `json:"tasks,omitempty" db:"-"`
}

// Task is one product count within a session. TheoreticalQty is snapshotted
// from the ledger when the task is created; PhysicalQty and Discrepancy are
// nil until the count is recorded.
type Task struct {
	ID             int64      `json:"id" db:"id"`
	SessionID      int64      `json:"session_id" db:"session_id"`
	ProductID      int64      `json:"product_id" db:"product_id"`
	TheoreticalQty int        `json:"theoretical_qty" db:"theoretical_qty"`
	PhysicalQty    *int       `json:"physical_qty,omitempty" db:"physical_qty"`
	Discrepancy    *int       `json:"discrepancy,omitempty" db:"discrepancy"`
	Status         TaskStatus `json:"status" db:"status"`
	AssignedTo     string     `json:"assigned_to,omitempty" db:"assigned_to"`
	Comment        string     `json:"comment,omitempty" db:"comment"`
	StartedAt      *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// StockCorrection is the ledger outcome of a completed task. The service
// applies it inside the completing transaction: the counted quantity replaces
// on-hand stock when the discrepancy is non-zero, and the product's last
// stocktake timestamp is bumped either way.
type StockCorrection struct {
	ProductID   int64
	CountedQty  int
	Discrepancy int
}

// CreateSessionRequest carries session creation input.
type CreateSessionRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Supervisor   string `json:"supervisor,omitempty" validate:"max=100"`
	Description  string `json:"description,omitempty" validate:"max=500"`
	PlannedCount int    `json:"planned_count" validate:"gte=0"`
}

// CreateTaskRequest carries task creation input.
type CreateTaskRequest struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	AssignedTo string `json:"assigned_to,omitempty" validate:"max=100"`
}

// CompleteTaskRequest carries the physically counted quantity.
type CompleteTaskRequest struct {
	PhysicalQty *int   `json:"physical_qty" validate:"required"`
	Comment     string `json:"comment,omitempty" validate:"max=500"`
}

// ListSessionsRequest filters session listings.
type ListSessionsRequest struct {
	Status *SessionStatus `json:"status,omitempty"`
	Limit  int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset int            `json:"offset" validate:"gte=0"`
}

// ListTasksRequest filters tasks within a session.
type ListTasksRequest struct {
	Status    *TaskStatus `json:"status,omitempty"`
	ProductID *int64      `json:"product_id,omitempty"`
}

// Progress summarizes a session for dashboards.
type Progress struct {
	SessionID            int64         `json:"session_id"`
	DocNumber            string        `json:"doc_number"`
	Status               SessionStatus `json:"status"`
	PlannedCount         int           `json:"planned_count"`
	TaskTotal            int           `json:"task_total"`
	TaskCompleted        int           `json:"task_completed"`
	DiscrepancyCount     int           `json:"discrepancy_count"`
	CompletionPercentage float64       `json:"completion_percentage"`
}
