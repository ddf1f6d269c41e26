package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// sessionDocPrefix is the stocktake document number prefix
// (INV<YYYY><MM><seq>).
const sessionDocPrefix = "INV"

// Repository defines data access for stocktake sessions and tasks.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSession(ctx context.Context, id int64) (*Session, error)
	ListSessions(ctx context.Context, req ListSessionsRequest) ([]Session, error)
	ListTasks(ctx context.Context, sessionID int64, req ListTasksRequest) ([]Task, error)
	NextDocNumber(ctx context.Context, prefix string, date time.Time) (string, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetSessionForUpdate(ctx context.Context, id int64) (*Session, error)
	InsertSession(ctx context.Context, s *Session) (int64, error)
	UpdateSession(ctx context.Context, s *Session) error
	InsertTask(ctx context.Context, t *Task) (int64, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, taskID int64) error
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error)
	SaveProductStock(ctx context.Context, p *catalog.Product) error
}

// Service drives stocktake sessions and their counting tasks.
type Service struct {
	repo   Repository
	logger *slog.Logger
	cache  *StatsCache
	clock  shared.Clock
}

// NewService builds Service. The stats cache may be nil, in which case
// progress reads go straight to the database.
func NewService(repo Repository, logger *slog.Logger, cache *StatsCache) *Service {
	return &Service{repo: repo, logger: logger, cache: cache, clock: shared.SystemClock}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(clock shared.Clock) *Service {
	s.clock = clock
	return s
}

// CreateSession opens a stocktake session with a fresh INV document number.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	now := s.clock()
	docNumber, err := s.repo.NextDocNumber(ctx, sessionDocPrefix, now)
	if err != nil {
		return nil, fmt.Errorf("generate doc number: %w", err)
	}
	session := NewSession(docNumber, req, now)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSession(ctx, session)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		session.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("stocktake session opened",
		slog.Int64("session_id", session.ID),
		slog.String("doc_number", docNumber),
	)
	return session, nil
}

// GetSession loads one session with its tasks.
func (s *Service) GetSession(ctx context.Context, id int64) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

// ListSessions returns sessions matching the filter.
func (s *Service) ListSessions(ctx context.Context, req ListSessionsRequest) ([]Session, error) {
	return s.repo.ListSessions(ctx, req)
}

// ListTasks returns a session's tasks matching the filter.
func (s *Service) ListTasks(ctx context.Context, sessionID int64, req ListTasksRequest) ([]Task, error) {
	return s.repo.ListTasks(ctx, sessionID, req)
}

// CreateTask adds a counting task to an open session, snapshotting the
// product's current on-hand quantity as the theoretical count.
func (s *Service) CreateTask(ctx context.Context, sessionID int64, req CreateTaskRequest) (*Task, error) {
	now := s.clock()
	var task *Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.Open() {
			return shared.NewInvalidState(sessionEntity, session.ID, string(session.Status), "add task")
		}
		p, err := tx.GetProduct(ctx, req.ProductID)
		if err != nil {
			return fmt.Errorf("verify product: %w", err)
		}
		task = NewTask(session.ID, p.ID, p.OnHand, req.AssignedTo, now)
		if _, err := tx.InsertTask(ctx, task); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		session.Tasks = append(session.Tasks, *task)
		session.RecalculateStatistics()
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, sessionID)
	return task, nil
}

// StartTask moves a task to IN_PROGRESS.
func (s *Service) StartTask(ctx context.Context, sessionID, taskID int64) (*Task, error) {
	return s.mutateTask(ctx, sessionID, taskID, func(session *Session, task *Task, tx TxRepository) error {
		return task.Start(s.clock())
	})
}

// CompleteTask records the physical count and applies the resulting ledger
// correction in the same transaction: on a non-zero discrepancy the counted
// quantity replaces on-hand stock and the product stays flagged for a
// follow-up count; the product's last stocktake timestamp is bumped either
// way.
func (s *Service) CompleteTask(ctx context.Context, sessionID, taskID int64, req CompleteTaskRequest) (*Task, error) {
	now := s.clock()
	task, err := s.mutateTask(ctx, sessionID, taskID, func(session *Session, task *Task, tx TxRepository) error {
		corr, err := task.Complete(req.PhysicalQty, req.Comment, now)
		if err != nil {
			return err
		}
		p, err := tx.GetProductForUpdate(ctx, corr.ProductID)
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		if corr.Discrepancy != 0 {
			p.SetCounted(corr.CountedQty, now)
			s.logger.Warn("stocktake discrepancy corrected",
				slog.Int64("task_id", task.ID),
				slog.Int64("product_id", p.ID),
				slog.Int("discrepancy", corr.Discrepancy),
			)
		} else {
			p.LastStocktakeAt = &now
			p.RefreshStocktakeFlag(now)
		}
		return tx.SaveProductStock(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CancelTask aborts a task from any non-terminal state.
func (s *Service) CancelTask(ctx context.Context, sessionID, taskID int64, reason string) (*Task, error) {
	return s.mutateTask(ctx, sessionID, taskID, func(session *Session, task *Task, tx TxRepository) error {
		return task.Cancel(reason, s.clock())
	})
}

// RemoveTask deletes a pending task from an open session.
func (s *Service) RemoveTask(ctx context.Context, sessionID, taskID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := session.RemoveTask(taskID); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}
	s.invalidateStats(ctx, sessionID)
	return nil
}

// CloseSession finalizes the session after a last statistics pass.
func (s *Service) CloseSession(ctx context.Context, sessionID int64) (*Session, error) {
	now := s.clock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := session.Close(now); err != nil {
			return err
		}
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, sessionID)
	s.logger.Info("stocktake session closed", slog.Int64("session_id", sessionID))
	return s.repo.GetSession(ctx, sessionID)
}

// Progress returns the session's aggregate counters, served from the stats
// cache when one is configured.
func (s *Service) Progress(ctx context.Context, sessionID int64) (*Progress, error) {
	if s.cache != nil {
		return s.cache.GetOrCompute(ctx, sessionID, func(ctx context.Context) (*Progress, error) {
			return s.computeProgress(ctx, sessionID)
		})
	}
	return s.computeProgress(ctx, sessionID)
}

func (s *Service) computeProgress(ctx context.Context, sessionID int64) (*Progress, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.RecalculateStatistics()
	return &Progress{
		SessionID:            session.ID,
		DocNumber:            session.DocNumber,
		Status:               session.Status,
		PlannedCount:         session.PlannedCount,
		TaskTotal:            session.TaskTotal,
		TaskCompleted:        session.TaskCompleted,
		DiscrepancyCount:     session.DiscrepancyCount,
		CompletionPercentage: session.CompletionPercentage(),
	}, nil
}

// mutateTask runs a task transition inside a session-locked transaction and
// persists both the task and the recomputed session statistics.
func (s *Service) mutateTask(ctx context.Context, sessionID, taskID int64, fn func(*Session, *Task, TxRepository) error) (*Task, error) {
	var result *Task
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.Open() {
			return shared.NewInvalidState(sessionEntity, session.ID, string(session.Status), "work task")
		}
		task, err := session.Task(taskID)
		if err != nil {
			return err
		}
		if err := fn(session, task, tx); err != nil {
			return err
		}
		if err := tx.UpdateTask(ctx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		session.RecalculateStatistics()
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		cp := *task
		result = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, sessionID)
	return result, nil
}

func (s *Service) invalidateStats(ctx context.Context, sessionID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, sessionID); err != nil {
		s.logger.Warn("invalidate stats cache",
			slog.Int64("session_id", sessionID),
			slog.Any("error", err),
		)
	}
}
