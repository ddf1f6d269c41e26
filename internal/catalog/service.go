package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for the stock ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)
	List(ctx context.Context, req ListProductsRequest) ([]Product, error)
	Create(ctx context.Context, p Product) (int64, error)
}

// TxRepository exposes the transactional operations the ledger needs.
// GetForUpdate takes a row lock so concurrent adjustments against the same
// product serialize: the net effect equals the sum of the deltas, clamped at
// zero.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Product, error)
	SaveStock(ctx context.Context, p *Product) error
}

// Service coordinates stock ledger operations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	clock  shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, clock: shared.SystemClock}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(clock shared.Clock) *Service {
	s.clock = clock
	return s
}

// CreateProduct registers a catalog entry.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	if req.UnitPrice.Sign() <= 0 {
		return nil, shared.NewValidation("product", 0, "unit price must be positive")
	}
	if req.OnHand < 0 {
		return nil, shared.NewValidation("product", 0, "on-hand quantity cannot be negative")
	}
	now := s.clock()
	p := Product{
		Code:      req.Code,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		OnHand:    req.OnHand,
		MinStock:  req.MinStock,
		Active:    true,
		Available: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.RefreshStocktakeFlag(now)
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Get loads one product.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// GetByCode loads one product by its unique code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Product, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns catalog entries matching the filter.
func (s *Service) List(ctx context.Context, req ListProductsRequest) ([]Product, error) {
	return s.repo.List(ctx, req)
}

// ListNeedingStocktake returns products flagged for a count.
func (s *Service) ListNeedingStocktake(ctx context.Context, limit int) ([]Product, error) {
	needs := true
	return s.repo.List(ctx, ListProductsRequest{NeedsStocktake: &needs, Limit: limit})
}

// AdjustStock applies delta to the product's on-hand quantity inside a
// transaction holding the product row lock. The result clamps at zero; no
// error is raised when delta would drive stock negative. A zero delta is a
// harmless no-op.
func (s *Service) AdjustStock(ctx context.Context, productID int64, delta int) (*Product, error) {
	var adjusted *Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, productID)
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		applied := p.Adjust(delta, s.clock())
		if err := tx.SaveStock(ctx, p); err != nil {
			return fmt.Errorf("save stock: %w", err)
		}
		if applied != delta {
			s.logger.Warn("stock adjustment clamped at zero",
				slog.Int64("product_id", productID),
				slog.Int("requested", delta),
				slog.Int("applied", applied),
			)
		}
		adjusted = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

// CheckAvailability reports whether qty units of the product can be sold.
func (s *Service) CheckAvailability(ctx context.Context, productID int64, qty int) (bool, error) {
	p, err := s.repo.Get(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.AvailableForSale(qty), nil
}
