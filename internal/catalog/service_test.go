package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	products map[int64]*Product
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]*Product)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product: %w", shared.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (*Product, error) {
	for _, p := range r.products {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("product: %w", shared.ErrNotFound)
}

func (r *memoryRepo) List(ctx context.Context, req ListProductsRequest) ([]Product, error) {
	out := []Product{}
	for _, p := range r.products {
		if req.NeedsStocktake != nil && p.NeedsStocktake != *req.NeedsStocktake {
			continue
		}
		if req.LowStock != nil && p.LowStock() != *req.LowStock {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryRepo) Create(ctx context.Context, p Product) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = &p
	return p.ID, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (*Product, error) {
	p, ok := tx.repo.products[id]
	if !ok {
		return nil, fmt.Errorf("product: %w", shared.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (tx *memoryTx) SaveStock(ctx context.Context, p *Product) error {
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
	svc := NewService(repo, slog.Default()).WithClock(shared.FixedClock(fixedNow()))
	return svc, repo
}

func seedProduct(t *testing.T, repo *memoryRepo, onHand, minStock int) int64 {
	t.Helper()
	counted := fixedNow().AddDate(0, -1, 0)
	id, err := repo.Create(context.Background(), Product{
		Code:            fmt.Sprintf("SKU-%03d", repo.nextID+1),
		Name:            "test product",
		UnitPrice:       decimal.NewFromInt(10),
		OnHand:          onHand,
		MinStock:        minStock,
		Active:          true,
		Available:       true,
		LastStocktakeAt: &counted,
	})
	require.NoError(t, err)
	return id
}

func TestCreateProductValidatesPrice(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Code:      "SKU-100",
		Name:      "free sample",
		UnitPrice: decimal.Zero,
	})
	require.True(t, shared.IsValidation(err))
}

func TestAdjustStockAppliesDelta(t *testing.T) {
	svc, repo := newTestService(t)
	id := seedProduct(t, repo, 50, 5)

	p, err := svc.AdjustStock(context.Background(), id, -20)
	require.NoError(t, err)
	require.Equal(t, 30, p.OnHand)
}

func TestAdjustStockClampsWithoutError(t *testing.T) {
	svc, repo := newTestService(t)
	id := seedProduct(t, repo, 10, 0)

	p, err := svc.AdjustStock(context.Background(), id, -25)
	require.NoError(t, err)
	require.Equal(t, 0, p.OnHand)

	stored, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 0, stored.OnHand)
}

func TestAdjustStockZeroDeltaIsNoOp(t *testing.T) {
	svc, repo := newTestService(t)
	id := seedProduct(t, repo, 10, 0)

	p, err := svc.AdjustStock(context.Background(), id, 0)
	require.NoError(t, err)
	require.Equal(t, 10, p.OnHand)
}

func TestCheckAvailability(t *testing.T) {
	svc, repo := newTestService(t)
	id := seedProduct(t, repo, 5, 0)

	ok, err := svc.CheckAvailability(context.Background(), id, 5)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CheckAvailability(context.Background(), id, 6)
	require.NoError(t, err)
	require.False(t, ok)
}
