package sales

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
	orders    map[int64]*SalesOrder
	lines     map[int64]*OrderLine
	products  map[int64]*catalog.Product
	nextOrder int64
	nextLine  int64
	docSeq    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:   make(map[int64]*SalesOrder),
		lines:    make(map[int64]*OrderLine),
		products: make(map[int64]*catalog.Product),
	}
}

func (r *memoryRepo) addProduct(p catalog.Product) {
	r.products[p.ID] = &p
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (*SalesOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("sales order: %w", shared.ErrNotFound)
	}
	cp := *o
	cp.Lines = nil
	for _, l := range r.lines {
		if l.OrderID == id {
			cp.Lines = append(cp.Lines, *l)
		}
	}
	return &cp, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, req ListOrdersRequest) ([]SalesOrder, error) {
	out := []SalesOrder{}
	for id := range r.orders {
		o, _ := r.GetOrder(ctx, id)
		out = append(out, *o)
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

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (*SalesOrder, error) {
	return tx.repo.GetOrder(ctx, id)
}

func (tx *memoryTx) InsertOrder(ctx context.Context, o *SalesOrder) (int64, error) {
	tx.repo.nextOrder++
	cp := *o
	cp.ID = tx.repo.nextOrder
	cp.Lines = nil
	tx.repo.orders[cp.ID] = &cp
	return cp.ID, nil
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, o *SalesOrder) error {
	stored, ok := tx.repo.orders[o.ID]
	if !ok {
		return fmt.Errorf("sales order %d: %w", o.ID, shared.ErrNotFound)
	}
	cp := *o
	cp.Lines = nil
	*stored = cp
	return nil
}

func (tx *memoryTx) InsertLine(ctx context.Context, l *OrderLine) (int64, error) {
	tx.repo.nextLine++
	l.ID = tx.repo.nextLine
	cp := *l
	tx.repo.lines[cp.ID] = &cp
	return cp.ID, nil
}

func (tx *memoryTx) UpdateLine(ctx context.Context, l *OrderLine) error {
	stored, ok := tx.repo.lines[l.ID]
	if !ok {
		return fmt.Errorf("order line %d: %w", l.ID, shared.ErrNotFound)
	}
	*stored = *l
	return nil
}

func (tx *memoryTx) DeleteLine(ctx context.Context, lineID int64) error {
	if _, ok := tx.repo.lines[lineID]; !ok {
		return fmt.Errorf("order line %d: %w", lineID, shared.ErrNotFound)
	}
	delete(tx.repo.lines, lineID)
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
	counted := fixedNow().AddDate(0, -1, 0)
	repo.addProduct(catalog.Product{
		ID: 42, Code: "SKU-001", Name: "test product",
		UnitPrice: decimal.NewFromInt(10), OnHand: 50, MinStock: 5,
		Active: true, Available: true, LastStocktakeAt: &counted,
	})
}

func createDemoOrder(t *testing.T, svc *Service) *SalesOrder {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateOrderRequest{
		CustomerID: 7,
		Lines:      []CreateOrderLineReq{{ProductID: 42, Quantity: 5}},
	})
	require.NoError(t, err)
	return order
}

func TestCreateAssignsDocNumber(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)

	order := createDemoOrder(t, svc)
	require.Equal(t, "CMD2026080001", order.DocNumber)
	require.Equal(t, OrderStatusDraft, order.Status)
	require.Len(t, order.Lines, 1)
	require.True(t, order.Subtotal.Equal(decimal.NewFromInt(50)))
}

func TestCreateRejectsUnavailableQuantity(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)

	_, err := svc.Create(context.Background(), CreateOrderRequest{
		CustomerID: 7,
		Lines:      []CreateOrderLineReq{{ProductID: 42, Quantity: 500}},
	})
	require.True(t, shared.IsValidation(err))
}

func TestValidateDoesNotTouchStock(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	order := createDemoOrder(t, svc)

	validated, err := svc.Validate(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusValidated, validated.Status)
	require.Equal(t, LineStatusStockReserved, validated.Lines[0].Status)
	require.Equal(t, 50, repo.products[42].OnHand)
}

func TestShipDecrementsStockOnce(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	order := createDemoOrder(t, svc)

	_, err := svc.Validate(context.Background(), order.ID)
	require.NoError(t, err)

	shipped, err := svc.Ship(context.Background(), order.ID, "")
	require.NoError(t, err)
	require.Equal(t, OrderStatusShipped, shipped.Status)
	require.Equal(t, LineStatusDelivered, shipped.Lines[0].Status)
	require.Equal(t, 45, repo.products[42].OnHand)

	_, err = svc.Ship(context.Background(), order.ID, "")
	require.True(t, shared.IsInvalidState(err))
	require.Equal(t, 45, repo.products[42].OnHand, "double ship must not decrement again")
}

func TestFailAfterValidateRestoresNothing(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	order := createDemoOrder(t, svc)

	_, err := svc.Validate(context.Background(), order.ID)
	require.NoError(t, err)

	failed, err := svc.Fail(context.Background(), order.ID, "payment declined")
	require.NoError(t, err)
	require.Equal(t, OrderStatusFailed, failed.Status)
	require.Equal(t, LineStatusStockReleased, failed.Lines[0].Status)
	require.Equal(t, 50, repo.products[42].OnHand, "reservation was logical, stock unchanged")
}

func TestFailRequiresReason(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	order := createDemoOrder(t, svc)

	_, err := svc.Fail(context.Background(), order.ID, "")
	require.True(t, shared.IsValidation(err))
}

func TestProcessReturnCreditsStock(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	order := createDemoOrder(t, svc)

	_, err := svc.Validate(context.Background(), order.ID)
	require.NoError(t, err)
	shipped, err := svc.Ship(context.Background(), order.ID, "")
	require.NoError(t, err)
	require.Equal(t, 45, repo.products[42].OnHand)

	lineID := shipped.Lines[0].ID
	returned, err := svc.ProcessReturn(context.Background(), order.ID, lineID, ProcessReturnRequest{
		Quantity: 2, Reason: "damaged in transit",
	}, "")
	require.NoError(t, err)
	require.Equal(t, LineStatusReturnPartial, returned.Lines[0].Status)
	require.Equal(t, 47, repo.products[42].OnHand)
}

func TestAddAndRemoveLine(t *testing.T) {
	svc, repo := newTestService(t)
	seedLedger(repo)
	repo.addProduct(catalog.Product{
		ID: 43, Code: "SKU-002", Name: "second product",
		UnitPrice: decimal.NewFromInt(4), OnHand: 100, MinStock: 5,
		Active: true, Available: true,
	})
	order := createDemoOrder(t, svc)

	updated, err := svc.AddLine(context.Background(), order.ID, CreateOrderLineReq{ProductID: 43, Quantity: 10})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
	require.True(t, updated.Subtotal.Equal(decimal.NewFromInt(90)))

	var secondID int64
	for _, l := range updated.Lines {
		if l.ProductID == 43 {
			secondID = l.ID
		}
	}
	updated, err = svc.RemoveLine(context.Background(), order.ID, secondID)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.True(t, updated.Subtotal.Equal(decimal.NewFromInt(50)))
}
