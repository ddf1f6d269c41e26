package stocktake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const sessionColumns = `id, doc_number, name, supervisor, description, status, planned_count, task_total, task_completed, discrepancy_count, started_at, closed_at, created_at, updated_at`

const taskColumns = `id, session_id, product_id, theoretical_qty, physical_qty, discrepancy, status, assigned_to, comment, started_at, completed_at, created_at, updated_at`

// PgRepository persists stocktake sessions in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type pgTxRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

func (r *PgRepository) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM stocktake_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	tasks, err := loadTasks(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	session.Tasks = tasks
	return session, nil
}

func (r *PgRepository) ListSessions(ctx context.Context, req ListSessionsRequest) ([]Session, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM stocktake_sessions
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC, id DESC
LIMIT $2 OFFSET $3`, req.Status, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := []Session{}
	for rows.Next() {
		var s Session
		if err := scanSessionInto(rows, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *PgRepository) ListTasks(ctx context.Context, sessionID int64, req ListTasksRequest) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM stocktake_tasks
WHERE session_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::bigint IS NULL OR product_id = $3)
ORDER BY id ASC`, sessionID, req.Status, req.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := scanTaskInto(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// NextDocNumber allocates the next monthly sequence for the prefix, sharing
// the doc_sequences counter table with sales.
func (r *PgRepository) NextDocNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `INSERT INTO doc_sequences (prefix, period, last_seq)
VALUES ($1, $2, 1)
ON CONFLICT (prefix, period) DO UPDATE SET last_seq = doc_sequences.last_seq + 1
RETURNING last_seq`, prefix, date.Format("200601")).Scan(&seq)
	if err != nil {
		return "", err
	}
	return shared.FormatDocNumber(prefix, date, seq), nil
}

func (r *pgTxRepository) GetSessionForUpdate(ctx context.Context, id int64) (*Session, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM stocktake_sessions WHERE id = $1 FOR UPDATE`, id)
	session, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	tasks, err := loadTasks(ctx, r.tx, id)
	if err != nil {
		return nil, err
	}
	session.Tasks = tasks
	return session, nil
}

func (r *pgTxRepository) InsertSession(ctx context.Context, s *Session) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stocktake_sessions
(doc_number, name, supervisor, description, status, planned_count, task_total, task_completed, discrepancy_count, started_at, closed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		s.DocNumber, s.Name, s.Supervisor, s.Description, s.Status, s.PlannedCount,
		s.TaskTotal, s.TaskCompleted, s.DiscrepancyCount, s.StartedAt, s.ClosedAt,
		s.CreatedAt, s.UpdatedAt).Scan(&id)
	return id, err
}

func (r *pgTxRepository) UpdateSession(ctx context.Context, s *Session) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stocktake_sessions
SET status = $2, planned_count = $3, task_total = $4, task_completed = $5,
    discrepancy_count = $6, closed_at = $7, updated_at = NOW()
WHERE id = $1`,
		s.ID, s.Status, s.PlannedCount, s.TaskTotal, s.TaskCompleted, s.DiscrepancyCount, s.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stocktake session %d: %w", s.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgTxRepository) InsertTask(ctx context.Context, t *Task) (int64, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stocktake_tasks
(session_id, product_id, theoretical_qty, physical_qty, discrepancy, status, assigned_to, comment, started_at, completed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		t.SessionID, t.ProductID, t.TheoreticalQty, t.PhysicalQty, t.Discrepancy,
		t.Status, t.AssignedTo, t.Comment, t.StartedAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	return t.ID, err
}

func (r *pgTxRepository) UpdateTask(ctx context.Context, t *Task) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stocktake_tasks
SET physical_qty = $2, discrepancy = $3, status = $4, assigned_to = $5, comment = $6,
    started_at = $7, completed_at = $8, updated_at = NOW()
WHERE id = $1`,
		t.ID, t.PhysicalQty, t.Discrepancy, t.Status, t.AssignedTo, t.Comment, t.StartedAt, t.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stocktake task %d: %w", t.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgTxRepository) DeleteTask(ctx context.Context, taskID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stocktake_tasks WHERE id = $1`, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stocktake task %d: %w", taskID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgTxRepository) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	return scanTxProduct(r.tx.QueryRow(ctx, productSelect+` WHERE id = $1`, id))
}

func (r *pgTxRepository) GetProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error) {
	return scanTxProduct(r.tx.QueryRow(ctx, productSelect+` WHERE id = $1 FOR UPDATE`, id))
}

func (r *pgTxRepository) SaveProductStock(ctx context.Context, p *catalog.Product) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products
SET on_hand = $2, last_stocktake_at = $3, needs_stocktake = $4, updated_at = NOW()
WHERE id = $1`, p.ID, p.OnHand, p.LastStocktakeAt, p.NeedsStocktake)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", p.ID, shared.ErrNotFound)
	}
	return nil
}

const productSelect = `SELECT id, code, name, unit_price, on_hand, min_stock, last_stocktake_at, active, available, needs_stocktake, created_at, updated_at FROM products`

func scanTxProduct(row pgx.Row) (*catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.UnitPrice, &p.OnHand, &p.MinStock,
		&p.LastStocktakeAt, &p.Active, &p.Available, &p.NeedsStocktake, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product: %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTasks(ctx context.Context, q queryer, sessionID int64) ([]Task, error) {
	rows, err := q.Query(ctx, `SELECT `+taskColumns+` FROM stocktake_tasks WHERE session_id = $1 ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := scanTaskInto(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	if err := scanSessionInto(row, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSessionInto(row pgx.Row, s *Session) error {
	err := row.Scan(&s.ID, &s.DocNumber, &s.Name, &s.Supervisor, &s.Description,
		&s.Status, &s.PlannedCount, &s.TaskTotal, &s.TaskCompleted,
		&s.DiscrepancyCount, &s.StartedAt, &s.ClosedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("stocktake session: %w", shared.ErrNotFound)
	}
	return err
}

func scanTaskInto(row pgx.Row, t *Task) error {
	err := row.Scan(&t.ID, &t.SessionID, &t.ProductID, &t.TheoreticalQty, &t.PhysicalQty,
		&t.Discrepancy, &t.Status, &t.AssignedTo, &t.Comment, &t.StartedAt,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("stocktake task: %w", shared.ErrNotFound)
	}
	return err
}
