package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const orderEntity = "sales order"

// RecalculateTotals recomputes the monetary fields from the current lines:
// subtotal is the sum of line subtotals and grand total is
// (subtotal - discount) + tax + shipping fee. Invoked after every line
// mutation and before every transition.
func (o *SalesOrder) RecalculateTotals() {
	sub := decimal.Zero
	for i := range o.Lines {
		sub = sub.Add(o.Lines[i].Subtotal)
	}
	o.Subtotal = sub
	o.GrandTotal = sub.Sub(o.Discount).Add(o.Tax).Add(o.ShippingFee)
}

// Modifiable reports whether lines can still be added or removed.
func (o *SalesOrder) Modifiable() bool {
	return o.Status == OrderStatusDraft
}

// ReadyToValidate reports whether the order can leave DRAFT: at least one
// line, a customer, and a positive subtotal.
func (o *SalesOrder) ReadyToValidate() bool {
	return len(o.Lines) > 0 && o.CustomerID > 0 && o.Subtotal.Sign() > 0
}

// ReadyToShip reports whether the order can be shipped.
func (o *SalesOrder) ReadyToShip() bool {
	return o.Status == OrderStatusValidated
}

// AddLine attaches a line and immediately recalculates totals. Only DRAFT
// orders are modifiable.
func (o *SalesOrder) AddLine(line OrderLine) error {
	if !o.Modifiable() {
		return shared.NewInvalidState(orderEntity, o.ID, string(o.Status), "add line")
	}
	line.OrderID = o.ID
	o.Lines = append(o.Lines, line)
	o.RecalculateTotals()
	return nil
}

// RemoveLine detaches a line and immediately recalculates totals.
func (o *SalesOrder) RemoveLine(lineID int64) error {
	if !o.Modifiable() {
		return shared.NewInvalidState(orderEntity, o.ID, string(o.Status), "remove line")
	}
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			o.RecalculateTotals()
			return nil
		}
	}
	return fmt.Errorf("order line %d: %w", lineID, shared.ErrNotFound)
}

// Validate moves DRAFT -> VALIDATED, stamps the validation time, and places
// a logical stock reservation on every line. On-hand quantities are not
// touched here.
func (o *SalesOrder) Validate(now time.Time) error {
	if o.Status != OrderStatusDraft {
		return shared.NewInvalidState(orderEntity, o.ID, string(o.Status), "validate")
	}
	o.RecalculateTotals()
	if !o.ReadyToValidate() {
		return shared.NewInvalidState(orderEntity, o.ID, string(o.Status), "validate")
	}
	for i := range o.Lines {
		if err := o.Lines[i].Reserve(); err != nil {
			return err
		}
	}
	o.Status = OrderStatusValidated
	o.ValidatedAt = &now
	return nil
}

// Ship moves VALIDATED -> SHIPPED, confirms the sale on every line, and
// returns the ledger adjustments to apply. This is the only point where
// reserved stock becomes a physical decrement; calling Ship twice raises
// InvalidStateError rather than double-decrementing.
func (o *SalesOrder) Ship(now time.Time) ([]StockAdjustment, error) {
	if !o.ReadyToShip() {
		return nil, shared.NewInvalidState(orderEntity, o.ID, string(o.Status), "ship")
	}
	o.RecalculateTotals()
	adjustments := make([]StockAdjustment, 0, len(o.Lines))
	for i := range o.Lines {
		adj, err := o.Lines[i].ConfirmSale()
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	o.Status = OrderStatusShipped
	o.ShippedAt = &now
	return adjustments, nil
}

// Fail terminates the order from DRAFT or VALIDATED, records the reason,
// and releases every line's reservation. On-hand quantities stay unchanged
// since validation never physically decremented them.
func (o *SalesOrder) Fail(reason string, now time.Time) error {
	if o.Status == OrderStatusShipped || o.Status == OrderStatusFailed {
		return shared.NewInvalidState(orderEntity, o.ID, string(o.Status), "fail")
	}
	for i := range o.Lines {
		o.Lines[i].MarkFailed(reason)
	}
	o.Status = OrderStatusFailed
	o.Comment = reason
	return nil
}

// Line returns the line with the given id.
func (o *SalesOrder) Line(lineID int64) (*OrderLine, error) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i], nil
		}
	}
	return nil, fmt.Errorf("order line %d: %w", lineID, shared.ErrNotFound)
}
