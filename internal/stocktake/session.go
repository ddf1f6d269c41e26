package stocktake

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const sessionEntity = "stocktake session"

// NewSession opens a session with the given planned scope.
func NewSession(docNumber string, req CreateSessionRequest, now time.Time) *Session {
	return &Session{
		DocNumber:    docNumber,
		Name:         req.Name,
		Supervisor:   req.Supervisor,
		Description:  req.Description,
		Status:       SessionStatusOpen,
		PlannedCount: req.PlannedCount,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Open reports whether tasks can still be added or worked.
func (s *Session) Open() bool {
	return s.Status == SessionStatusOpen
}

// AddTask attaches a task and recomputes statistics. Closed sessions accept
// no new tasks.
func (s *Session) AddTask(task Task) error {
	if !s.Open() {
		return shared.NewInvalidState(sessionEntity, s.ID, string(s.Status), "add task")
	}
	task.SessionID = s.ID
	s.Tasks = append(s.Tasks, task)
	s.RecalculateStatistics()
	return nil
}

// RemoveTask detaches a pending task and recomputes statistics. Started or
// finished tasks cannot be removed, only cancelled.
func (s *Session) RemoveTask(taskID int64) error {
	if !s.Open() {
		return shared.NewInvalidState(sessionEntity, s.ID, string(s.Status), "remove task")
	}
	for i := range s.Tasks {
		if s.Tasks[i].ID != taskID {
			continue
		}
		if s.Tasks[i].Status != TaskStatusPending {
			return shared.NewInvalidState(taskEntity, taskID, string(s.Tasks[i].Status), "remove")
		}
		s.Tasks = append(s.Tasks[:i], s.Tasks[i+1:]...)
		s.RecalculateStatistics()
		return nil
	}
	return fmt.Errorf("stocktake task %d: %w", taskID, shared.ErrNotFound)
}

// RecalculateStatistics recomputes the aggregate counters from the current
// tasks. Cancelled tasks count toward the total but never toward completion
// or discrepancies.
func (s *Session) RecalculateStatistics() {
	total, completed, discrepancies := 0, 0, 0
	for i := range s.Tasks {
		total++
		if s.Tasks[i].Status == TaskStatusCompleted {
			completed++
			if s.Tasks[i].HasDiscrepancy() {
				discrepancies++
			}
		}
	}
	s.TaskTotal = total
	s.TaskCompleted = completed
	s.DiscrepancyCount = discrepancies
}

// CompletionPercentage returns completed tasks against the planned scope,
// or zero when no scope was planned.
func (s *Session) CompletionPercentage() float64 {
	if s.PlannedCount <= 0 {
		return 0
	}
	return float64(s.TaskCompleted) / float64(s.PlannedCount) * 100
}

// IsComplete reports whether every planned count is done.
func (s *Session) IsComplete() bool {
	return s.PlannedCount > 0 && s.TaskCompleted >= s.PlannedCount
}

// Close finalizes the session. Closing is irreversible and leaves open tasks
// untouched; cancel them first if they should not linger.
func (s *Session) Close(now time.Time) error {
	if !s.Open() {
		return shared.NewInvalidState(sessionEntity, s.ID, string(s.Status), "close")
	}
	s.RecalculateStatistics()
	s.Status = SessionStatusClosed
	s.ClosedAt = &now
	return nil
}

// Task returns the task with the given id.
func (s *Session) Task(taskID int64) (*Task, error) {
	for i := range s.Tasks {
		if s.Tasks[i].ID == taskID {
			return &s.Tasks[i], nil
		}
	}
	return nil, fmt.Errorf("stocktake task %d: %w", taskID, shared.ErrNotFound)
}
