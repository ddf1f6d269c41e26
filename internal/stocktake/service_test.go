package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	sessions    map[int64]*Session
	tasks       map[int64]*Task
	products    map[int64]*catalog.Product
	nextSession int64
	nextTask    int64
	docSeq      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sessions: make(map[int64]*Session),
		tasks:    make(map[int64]*Task),
		products: make(map[int64]*catalog.Product),
	}
}

func (r *memoryRepo) addProduct(p catalog.Product) {
	r.products[p.ID] = &p
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetSession(ctx context.Context, id int64) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("stocktake session: %w", shared.ErrNotFound)
	}
	cp := *s
	cp.Tasks = nil
	for _, task := range r.tasks {
		if task.SessionID == id {
			cp.Tasks = append(cp.Tasks, *task)
		}
	}
	return &cp, nil
}

func (r *memoryRepo) ListSessions(ctx context.Context, req ListSessionsRequest) ([]Session, error) {
	out := []Session{}
	for id := range r.sessions {
		s, _ := r.GetSession(ctx, id)
		out = append(out, *s)
	}
	return out, nil
}

func (r *memoryRepo) ListTasks(ctx context.Context, sessionID int64, req ListTasksRequest) ([]Task, error) {
	out := []Task{}
	for _, task := range r.tasks {
		if task.SessionID != sessionID {
			continue
		}
		if req.Status != nil && task.Status != *req.Status {
			continue
		}
		if req.ProductID != nil && task.ProductID != *req.ProductID {
			continue
		}
		out = append(out, *task)
	}
	return out, nil
}

func (r *memoryRepo) NextDocNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	r.docSeq++
	return shared.FormatDocNumber(prefix, date, r.docSeq), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetSessionForUpdate(ctx context.Context, id int64) (*Session, error) {
	return tx.repo.GetSession(ctx, id)
}

func (tx *memoryTx) InsertSession(ctx context.Context, s *Session) (int64, error) {
	tx.repo.nextSession++
	cp := *s
	cp.ID = tx.repo.nextSession
	cp.Tasks = nil
	tx.repo.sessions[cp.ID] = &cp
	return cp.ID, nil
}

func (tx *memoryTx) UpdateSession(ctx context.Context, s *Session) error {
	stored, ok := tx.repo.sessions[s.ID]
	if !ok {
		return fmt.Errorf("stocktake session %d: %w", s.ID, shared.ErrNotFound)
	}
	cp := *s
	cp.Tasks = nil
	*stored = cp
	return nil
}

func (tx *memoryTx) InsertTask(ctx context.Context, t *Task) (int64, error) {
	tx.repo.nextTask++
	t.ID = tx.repo.nextTask
	cp := *t
	tx.repo.tasks[cp.ID] = &cp
	return cp.ID, nil
}

func (tx *memoryTx) UpdateTask(ctx context.Context, t *Task) error {
	stored, ok := tx.repo.tasks[t.ID]
	if !ok {
		return fmt.Errorf("stocktake task %d: %w", t.ID, shared.ErrNotFound)
	}
	*stored = *t
	return nil
}

func (tx *memoryTx) DeleteTask(ctx context.Context, taskID int64) error {
	if _, ok := tx.repo.tasks[taskID]; !ok {
		return fmt.Errorf("stocktake task %d: %w", taskID, shared.ErrNotFound)
	}
	delete(tx.repo.tasks, taskID)
	return nil
}

func (tx *memoryTx) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	p, ok := tx.repo.products[id]
	if !ok {
		return nil, fmt.Errorf("product: %w", shared.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error) {
	return tx.GetProduct(ctx, id)
}

func (tx *memoryTx) SaveProductStock(ctx context.Context, p *catalog.Product) error {
	stored, ok := tx.repo.products[p.ID]
	if !ok {
		return fmt.Errorf("product %d: %w", p.ID, shared.ErrNotFound)
	}
	stored.OnHand = p.OnHand
	stored.LastStocktakeAt = p.LastStocktakeAt
	stored.NeedsStocktake = p.NeedsStocktake
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, slog.Default(), nil).WithClock(shared.FixedClock(fixedNow()))
	return svc, repo
}

func seedLedger(repo *memoryRepo) {
	old := fixedNow().AddDate(0, -5, 0)
	repo.addProduct(catalog.Product{
		ID: 42, Code: "SKU-001", Name: "test product",
		UnitPrice: decimal.NewFromInt(10), OnHand: 45, MinStock: 5,
		Active: true, Available: true, LastStocktakeAt: &old, NeedsStocktake: true,
	})
}

func startSessionWithTask(t *testing.T, svc *Service) (*Session, *Task) {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), CreateSessionRequest{Name: "quarterly count", PlannedCount: 1})
	require.NoError(t, err)
	task, err := svc.CreateTask(context.Background(), session.ID, CreateTaskRequest{ProductID: 42})
	require.NoError(t, err)
	return session, task
}

func TestCreateSessionAssignsDocNumber(t *testing.T) {
	svc, _ := newTestService(t)
	session, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		Name:         "count",
		Supervisor:   "warehouse lead",
		Description:  "annual full count",
		PlannedCount: 3,
	})
	require.NoError(t, err)
	require.Equal(t, "INV2026080001", session.DocNumber)
	require.Equal(t, SessionStatusOpen, session.Status)
	require.Equal(t, "warehouse lead", session.Supervisor)
	require.Equal(t, "annual full count", session.Description)
}

func TestCreateTaskSnapshotsTheoretical(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	_, task := startSessionWithTask(t, svc)
	require.Equal(t, 45, task.TheoreticalQty)
	require.Equal(t, TaskStatusPending, task.Status)
}

func TestCompleteTaskCorrectsStock(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	session, task := startSessionWithTask(t, svc)

	_, err := svc.StartTask(context.Background(), session.ID, task.ID)
	require.NoError(t, err)

	done, err := svc.CompleteTask(context.Background(), session.ID, task.ID, CompleteTaskRequest{PhysicalQty: intPtr(40)})
	require.NoError(t, err)
	require.Equal(t, TaskStatusCompleted, done.Status)
	require.Equal(t, -5, *done.Discrepancy)

	p := repo.products[42]
	require.Equal(t, 40, p.OnHand, "counted quantity replaces on-hand stock")
	require.NotNil(t, p.LastStocktakeAt)
	require.Equal(t, fixedNow(), *p.LastStocktakeAt)
	require.True(t, p.NeedsStocktake, "a discrepancy flags the product for a follow-up count")

	stored, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.TaskCompleted)
	require.Equal(t, 1, stored.DiscrepancyCount)
}

func TestCompleteTaskZeroDiscrepancyBumpsTimestampOnly(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	session, task := startSessionWithTask(t, svc)

	_, err := svc.StartTask(context.Background(), session.ID, task.ID)
	require.NoError(t, err)
	_, err = svc.CompleteTask(context.Background(), session.ID, task.ID, CompleteTaskRequest{PhysicalQty: intPtr(45)})
	require.NoError(t, err)

	p := repo.products[42]
	require.Equal(t, 45, p.OnHand)
	require.Equal(t, fixedNow(), *p.LastStocktakeAt)
	require.False(t, p.NeedsStocktake, "fresh count clears the flag")
}

func TestClosedSessionRejectsWork(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	session, task := startSessionWithTask(t, svc)

	_, err := svc.CloseSession(context.Background(), session.ID)
	require.NoError(t, err)

	_, err = svc.StartTask(context.Background(), session.ID, task.ID)
	require.True(t, shared.IsInvalidState(err))

	_, err = svc.CreateTask(context.Background(), session.ID, CreateTaskRequest{ProductID: 42})
	require.True(t, shared.IsInvalidState(err))
}

func TestProgressComputation(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	session, task := startSessionWithTask(t, svc)

	_, err := svc.StartTask(context.Background(), session.ID, task.ID)
	require.NoError(t, err)
	_, err = svc.CompleteTask(context.Background(), session.ID, task.ID, CompleteTaskRequest{PhysicalQty: intPtr(40)})
	require.NoError(t, err)

	progress, err := svc.Progress(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, progress.TaskCompleted)
	require.Equal(t, 1, progress.DiscrepancyCount)
	require.InDelta(t, 100.0, progress.CompletionPercentage, 0.001)
}
