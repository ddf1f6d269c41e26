package sales

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// docPrefix is the sales order document number prefix (CMD<YYYY><MM><seq>).
const docPrefix = "CMD"

// Repository defines data access for sales orders.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (*SalesOrder, error)
	ListOrders(ctx context.Context, req ListOrdersRequest) ([]SalesOrder, error)
	NextDocNumber(ctx context.Context, prefix string, date time.Time) (string, error)
}

// TxRepository exposes the transactional operations used by the service.
// Product rows are locked through here so order shipment and stock
// adjustment serialize per product.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (*SalesOrder, error)
	InsertOrder(ctx context.Context, o *SalesOrder) (int64, error)
	UpdateOrder(ctx context.Context, o *SalesOrder) error
	InsertLine(ctx context.Context, l *OrderLine) (int64, error)
	UpdateLine(ctx context.Context, l *OrderLine) error
	DeleteLine(ctx context.Context, lineID int64) error
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error)
	SaveProductStock(ctx context.Context, p *catalog.Product) error
}

// Service drives the sales order state machine.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	idempotency *shared.IdempotencyStore
	clock       shared.Clock
}

// NewService builds Service. The idempotency store may be nil, in which case
// duplicate-submission guarding is skipped.
func NewService(repo Repository, logger *slog.Logger, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, logger: logger, idempotency: idem, clock: shared.SystemClock}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(clock shared.Clock) *Service {
	s.clock = clock
	return s
}

// Create opens a DRAFT order, snapshotting unit prices from the catalog for
// lines that do not carry an explicit price.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*SalesOrder, error) {
	if req.CustomerID <= 0 {
		return nil, shared.NewValidation(orderEntity, 0, "customer is required")
	}
	if req.Discount.Sign() < 0 || req.Tax.Sign() < 0 || req.ShippingFee.Sign() < 0 {
		return nil, shared.NewValidation(orderEntity, 0, "monetary fields cannot be negative")
	}
	now := s.clock()
	docNumber, err := s.repo.NextDocNumber(ctx, docPrefix, now)
	if err != nil {
		return nil, fmt.Errorf("generate doc number: %w", err)
	}

	order := &SalesOrder{
		DocNumber:   docNumber,
		CustomerID:  req.CustomerID,
		OrderDate:   now,
		Status:      OrderStatusDraft,
		Discount:    req.Discount,
		Tax:         req.Tax,
		ShippingFee: req.ShippingFee,
		Comment:     req.Comment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order.ID = id
		orderID = id
		for _, lineReq := range req.Lines {
			line, err := s.buildLine(ctx, tx, order, lineReq, now)
			if err != nil {
				return err
			}
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
			order.Lines = append(order.Lines, *line)
		}
		order.RecalculateTotals()
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, orderID)
}

func (s *Service) buildLine(ctx context.Context, tx TxRepository, order *SalesOrder, req CreateOrderLineReq, now time.Time) (*OrderLine, error) {
	p, err := tx.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("verify product: %w", err)
	}
	if !p.AvailableForSale(req.Quantity) {
		return nil, shared.NewValidation("product", p.ID, "not available for sale in the requested quantity")
	}
	line, err := NewOrderLine(p, req.Quantity, req.UnitPrice, req.Discount, now)
	if err != nil {
		return nil, err
	}
	line.OrderID = order.ID
	return line, nil
}

// AddLine attaches a line to a DRAFT order and recalculates totals.
func (s *Service) AddLine(ctx context.Context, orderID int64, req CreateOrderLineReq) (*SalesOrder, error) {
	now := s.clock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Modifiable() {
			return shared.NewInvalidState(orderEntity, order.ID, string(order.Status), "add line")
		}
		line, err := s.buildLine(ctx, tx, order, req, now)
		if err != nil {
			return err
		}
		if _, err := tx.InsertLine(ctx, line); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
		if err := order.AddLine(*line); err != nil {
			return err
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, orderID)
}

// RemoveLine detaches a line from a DRAFT order and recalculates totals.
func (s *Service) RemoveLine(ctx context.Context, orderID, lineID int64) (*SalesOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.RemoveLine(lineID); err != nil {
			return err
		}
		if err := tx.DeleteLine(ctx, lineID); err != nil {
			return fmt.Errorf("delete order line: %w", err)
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, orderID)
}

// Validate moves the order to VALIDATED and reserves stock on every line.
func (s *Service) Validate(ctx context.Context, orderID int64) (*SalesOrder, error) {
	now := s.clock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Validate(now); err != nil {
			return err
		}
		for i := range order.Lines {
			if err := tx.UpdateLine(ctx, &order.Lines[i]); err != nil {
				return fmt.Errorf("update order line: %w", err)
			}
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sales order validated", slog.Int64("order_id", orderID))
	return s.repo.GetOrder(ctx, orderID)
}

// Ship moves the order to SHIPPED and applies the physical stock decrements.
// Product rows are locked in ascending id order to avoid deadlocks between
// concurrent shipments. idemKey, when non-empty, guards against duplicate
// submission of the same shipment.
func (s *Service) Ship(ctx context.Context, orderID int64, idemKey string) (*SalesOrder, error) {
	if err := s.reserveKey(ctx, idemKey, "sales:ship"); err != nil {
		return nil, err
	}
	now := s.clock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		adjustments, err := order.Ship(now)
		if err != nil {
			return err
		}
		if err := s.applyAdjustments(ctx, tx, adjustments, now); err != nil {
			return err
		}
		for i := range order.Lines {
			if err := tx.UpdateLine(ctx, &order.Lines[i]); err != nil {
				return fmt.Errorf("update order line: %w", err)
			}
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return nil, err
	}
	s.logger.Info("sales order shipped", slog.Int64("order_id", orderID))
	return s.repo.GetOrder(ctx, orderID)
}

// Fail terminates the order and releases every line's reservation.
func (s *Service) Fail(ctx context.Context, orderID int64, reason string) (*SalesOrder, error) {
	if reason == "" {
		return nil, shared.NewValidation(orderEntity, orderID, "failure reason is required")
	}
	now := s.clock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Fail(reason, now); err != nil {
			return err
		}
		for i := range order.Lines {
			if err := tx.UpdateLine(ctx, &order.Lines[i]); err != nil {
				return fmt.Errorf("update order line: %w", err)
			}
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sales order failed", slog.Int64("order_id", orderID), slog.String("reason", reason))
	return s.repo.GetOrder(ctx, orderID)
}

// ProcessReturn books a return on a delivered line and credits the stock
// back in the same transaction. idemKey, when non-empty, guards duplicates.
func (s *Service) ProcessReturn(ctx context.Context, orderID, lineID int64, req ProcessReturnRequest, idemKey string) (*SalesOrder, error) {
	if err := s.reserveKey(ctx, idemKey, "sales:return"); err != nil {
		return nil, err
	}
	now := s.clock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		line, err := order.Line(lineID)
		if err != nil {
			return err
		}
		adj, err := line.ProcessReturn(req.Quantity, req.Reason)
		if err != nil {
			return err
		}
		if err := s.applyAdjustments(ctx, tx, []StockAdjustment{adj}, now); err != nil {
			return err
		}
		return tx.UpdateLine(ctx, line)
	})
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return nil, err
	}
	s.logger.Info("order line return processed",
		slog.Int64("order_id", orderID),
		slog.Int64("line_id", lineID),
		slog.Int("quantity", req.Quantity),
	)
	return s.repo.GetOrder(ctx, orderID)
}

// Get loads one order with its lines.
func (s *Service) Get(ctx context.Context, orderID int64) (*SalesOrder, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]SalesOrder, error) {
	return s.repo.ListOrders(ctx, req)
}

func (s *Service) applyAdjustments(ctx context.Context, tx TxRepository, adjustments []StockAdjustment, now time.Time) error {
	sort.Slice(adjustments, func(i, j int) bool {
		return adjustments[i].ProductID < adjustments[j].ProductID
	})
	for _, adj := range adjustments {
		p, err := tx.GetProductForUpdate(ctx, adj.ProductID)
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		p.Adjust(adj.Delta, now)
		if err := tx.SaveProductStock(ctx, p); err != nil {
			return fmt.Errorf("save product stock: %w", err)
		}
	}
	return nil
}

func (s *Service) reserveKey(ctx context.Context, key, operation string) error {
	if key == "" || s.idempotency == nil {
		return nil
	}
	return s.idempotency.Reserve(ctx, key, operation)
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", slog.Any("error", err))
	}
}
