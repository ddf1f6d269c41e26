package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrDuplicateCode indicates a product code collision.
var ErrDuplicateCode = errors.New("catalog: product code already exists")

const productColumns = `id, code, name, unit_price, on_hand, min_stock, last_stocktake_at, active, available, needs_stocktake, created_at, updated_at`

// Repository persists the catalog in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) Get(ctx context.Context, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, code)
	return scanProduct(row)
}

func (r *Repository) List(ctx context.Context, req ListProductsRequest) ([]Product, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1::bool IS NULL OR needs_stocktake = $1)
  AND ($2::bool IS NULL OR (on_hand <= min_stock) = $2)
ORDER BY code ASC
LIMIT $3 OFFSET $4`, req.NeedsStocktake, req.LowStock, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := scanProductInto(rows, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) Create(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products
(code, name, unit_price, on_hand, min_stock, last_stocktake_at, active, available, needs_stocktake, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		p.Code, p.Name, p.UnitPrice, p.OnHand, p.MinStock, p.LastStocktakeAt,
		p.Active, p.Available, p.NeedsStocktake, p.CreatedAt, p.UpdatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (*Product, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	return scanProduct(row)
}

func (r *txRepository) SaveStock(ctx context.Context, p *Product) error {
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

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := scanProductInto(row, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProductInto(row pgx.Row, p *Product) error {
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.UnitPrice, &p.OnHand, &p.MinStock,
		&p.LastStocktakeAt, &p.Active, &p.Available, &p.NeedsStocktake, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("product: %w", shared.ErrNotFound)
	}
	return err
}
