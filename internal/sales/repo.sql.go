package sales

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

const orderColumns = `id, doc_number, customer_id, order_date, status, subtotal, discount, tax, shipping_fee, grand_total, comment, created_at, validated_at, shipped_at, updated_at`

const lineColumns = `id, order_id, product_id, quantity, unit_price, discount, subtotal, delivered_qty, returned_qty, status, failed, comment, created_at, updated_at`

// PgRepository persists sales orders in PostgreSQL.
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

func (r *PgRepository) GetOrder(ctx context.Context, id int64) (*SalesOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (r *PgRepository) ListOrders(ctx context.Context, req ListOrdersRequest) ([]SalesOrder, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders
WHERE ($1::bigint IS NULL OR customer_id = $1)
  AND ($2::text IS NULL OR status = $2)
ORDER BY order_date DESC, id DESC
LIMIT $3 OFFSET $4`, req.CustomerID, req.Status, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []SalesOrder{}
	for rows.Next() {
		var o SalesOrder
		if err := scanOrderInto(rows, &o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// NextDocNumber allocates the next monthly sequence for the prefix. The
// counter row is locked so concurrent allocations cannot collide.
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

func (r *pgTxRepository) GetOrderForUpdate(ctx context.Context, id int64) (*SalesOrder, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, r.tx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (r *pgTxRepository) InsertOrder(ctx context.Context, o *SalesOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_orders
(doc_number, customer_id, order_date, status, subtotal, discount, tax, shipping_fee, grand_total, comment, created_at, validated_at, shipped_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		o.DocNumber, o.CustomerID, o.OrderDate, o.Status, o.Subtotal, o.Discount, o.Tax,
		o.ShippingFee, o.GrandTotal, o.Comment, o.CreatedAt, o.ValidatedAt, o.ShippedAt, o.UpdatedAt).Scan(&id)
	return id, err
}

func (r *pgTxRepository) UpdateOrder(ctx context.Context, o *SalesOrder) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_orders
SET status = $2, subtotal = $3, discount = $4, tax = $5, shipping_fee = $6, grand_total = $7,
    comment = $8, validated_at = $9, shipped_at = $10, updated_at = NOW()
WHERE id = $1`,
		o.ID, o.Status, o.Subtotal, o.Discount, o.Tax, o.ShippingFee, o.GrandTotal,
		o.Comment, o.ValidatedAt, o.ShippedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sales order %d: %w", o.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgTxRepository) InsertLine(ctx context.Context, l *OrderLine) (int64, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO order_lines
(order_id, product_id, quantity, unit_price, discount, subtotal, delivered_qty, returned_qty, status, failed, comment, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		l.OrderID, l.ProductID, l.Quantity, l.UnitPrice, l.Discount, l.Subtotal,
		l.DeliveredQty, l.ReturnedQty, l.Status, l.Failed, l.Comment, l.CreatedAt, l.UpdatedAt).Scan(&l.ID)
	return l.ID, err
}

func (r *pgTxRepository) UpdateLine(ctx context.Context, l *OrderLine) error {
	tag, err := r.tx.Exec(ctx, `UPDATE order_lines
SET quantity = $2, unit_price = $3, discount = $4, subtotal = $5, delivered_qty = $6,
    returned_qty = $7, status = $8, failed = $9, comment = $10, updated_at = NOW()
WHERE id = $1`,
		l.ID, l.Quantity, l.UnitPrice, l.Discount, l.Subtotal, l.DeliveredQty,
		l.ReturnedQty, l.Status, l.Failed, l.Comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order line %d: %w", l.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgTxRepository) DeleteLine(ctx context.Context, lineID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM order_lines WHERE id = $1`, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order line %d: %w", lineID, shared.ErrNotFound)
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
SET on_hand = $2, needs_stocktake = $3, updated_at = NOW()
WHERE id = $1`, p.ID, p.OnHand, p.NeedsStocktake)
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

func loadLines(ctx context.Context, q queryer, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM order_lines WHERE order_id = $1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []OrderLine{}
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice,
			&l.Discount, &l.Subtotal, &l.DeliveredQty, &l.ReturnedQty, &l.Status,
			&l.Failed, &l.Comment, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanOrder(row pgx.Row) (*SalesOrder, error) {
	var o SalesOrder
	if err := scanOrderInto(row, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrderInto(row pgx.Row, o *SalesOrder) error {
	err := row.Scan(&o.ID, &o.DocNumber, &o.CustomerID, &o.OrderDate, &o.Status,
		&o.Subtotal, &o.Discount, &o.Tax, &o.ShippingFee, &o.GrandTotal, &o.Comment,
		&o.CreatedAt, &o.ValidatedAt, &o.ShippedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("sales order: %w", shared.ErrNotFound)
	}
	return err
}
