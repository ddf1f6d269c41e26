package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const lineEntity = "order line"

// NewOrderLine builds a pending line for the product. A zero unitPrice means
// "snapshot the product's current price". The subtotal is computed
// immediately.
func NewOrderLine(p *catalog.Product, quantity int, unitPrice *decimal.Decimal, discount decimal.Decimal, now time.Time) (*OrderLine, error) {
	if quantity < 1 {
		return nil, shared.NewValidation(lineEntity, 0, "quantity must be at least 1")
	}
	if discount.Sign() < 0 {
		return nil, shared.NewValidation(lineEntity, 0, "discount cannot be negative")
	}
	price := p.UnitPrice
	if unitPrice != nil {
		price = *unitPrice
	}
	if price.Sign() <= 0 {
		return nil, shared.NewValidation(lineEntity, 0, "unit price must be positive")
	}
	l := &OrderLine{
		ProductID: p.ID,
		Quantity:  quantity,
		UnitPrice: price,
		Discount:  discount,
		Status:    LineStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.ComputeSubtotal()
	return l, nil
}

// ComputeSubtotal recalculates quantity x unit price minus the line discount.
func (l *OrderLine) ComputeSubtotal() {
	l.Subtotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Sub(l.Discount)
}

// Reserve places a logical hold on the line's stock. Reservation does not
// decrement on-hand quantity; the physical decrement happens at shipment.
func (l *OrderLine) Reserve() error {
	if l.Status != LineStatusPending {
		return shared.NewInvalidState(lineEntity, l.ID, string(l.Status), "reserve stock")
	}
	l.Status = LineStatusStockReserved
	return nil
}

// Release drops the logical hold, used when the order fails before shipment.
func (l *OrderLine) Release() {
	l.Status = LineStatusStockReleased
}

// ConfirmSale turns the reservation into a physical decrement: the full
// ordered quantity is delivered and the returned adjustment debits the
// ledger. Called once, at order shipment.
func (l *OrderLine) ConfirmSale() (StockAdjustment, error) {
	if l.Status != LineStatusStockReserved {
		return StockAdjustment{}, shared.NewInvalidState(lineEntity, l.ID, string(l.Status), "confirm sale")
	}
	l.DeliveredQty = l.Quantity
	l.Status = LineStatusDelivered
	return StockAdjustment{ProductID: l.ProductID, Delta: -l.Quantity}, nil
}

// FullyDelivered reports whether every ordered unit was delivered.
func (l *OrderLine) FullyDelivered() bool {
	return l.DeliveredQty > 0 && l.DeliveredQty == l.Quantity
}

// PartiallyDelivered reports a delivery in progress.
func (l *OrderLine) PartiallyDelivered() bool {
	return l.DeliveredQty > 0 && l.DeliveredQty < l.Quantity
}

// RemainingToDeliver returns the undelivered quantity.
func (l *OrderLine) RemainingToDeliver() int {
	return l.Quantity - l.DeliveredQty
}

// CanBeReturned reports whether the line accepts return processing.
func (l *OrderLine) CanBeReturned() bool {
	return l.FullyDelivered() && !l.Failed && l.ReturnedQty < l.DeliveredQty
}

// ProcessReturn books qty returned units and credits them back to the
// ledger. Invalid returns surface a ValidationError before any mutation.
func (l *OrderLine) ProcessReturn(qty int, reason string) (StockAdjustment, error) {
	if qty < 1 {
		return StockAdjustment{}, shared.NewValidation(lineEntity, l.ID, "return quantity must be at least 1")
	}
	if !l.FullyDelivered() {
		return StockAdjustment{}, shared.NewValidation(lineEntity, l.ID, "line is not fully delivered")
	}
	if l.Failed {
		return StockAdjustment{}, shared.NewValidation(lineEntity, l.ID, "line already failed")
	}
	if l.ReturnedQty+qty > l.DeliveredQty {
		return StockAdjustment{}, shared.NewValidation(lineEntity, l.ID, "return quantity exceeds delivered quantity")
	}
	l.ReturnedQty += qty
	l.Comment = reason
	if l.ReturnedQty == l.DeliveredQty {
		l.Status = LineStatusReturnComplete
	} else {
		l.Status = LineStatusReturnPartial
	}
	return StockAdjustment{ProductID: l.ProductID, Delta: qty}, nil
}

// MarkFailed flags the line failed and releases any reservation. The line
// ends in STOCK_RELEASED with the failed flag set.
func (l *OrderLine) MarkFailed(reason string) {
	l.Failed = true
	l.Comment = reason
	l.Status = LineStatusFailed
	l.Release()
}
