package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates sales order lifecycle states.
// DRAFT -> VALIDATED -> SHIPPED, with DRAFT|VALIDATED -> FAILED as the
// alternate terminal branch. SHIPPED and FAILED accept no further
// transitions (return processing mutates lines, not the order status).
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusValidated OrderStatus = "VALIDATED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// LineStatus enumerates order line sub-states.
type LineStatus string

const (
	LineStatusPending        LineStatus = "PENDING"
	LineStatusStockReserved  LineStatus = "STOCK_RESERVED"
	LineStatusStockReleased  LineStatus = "STOCK_RELEASED"
	LineStatusDelivered      LineStatus = "DELIVERED"
	LineStatusReturnPartial  LineStatus = "RETURN_PARTIAL"
	LineStatusReturnComplete LineStatus = "RETURN_COMPLETE"
	LineStatusFailed         LineStatus = "FAILED"
)

// SalesOrder aggregates order lines and carries the monetary totals. The
// grand total is always recomputed from current lines, never trusted from
// caller input.
type SalesOrder struct {
	ID          int64           `json:"id" db:"id"`
	DocNumber   string          `json:"doc_number" db:"doc_number"`
	CustomerID  int64           `json:"customer_id" db:"customer_id"`
	OrderDate   time.Time       `json:"order_date" db:"order_date"`
	Status      OrderStatus     `json:"status" db:"status"`
	Subtotal    decimal.Decimal `json:"subtotal" db:"subtotal"`
	Discount    decimal.Decimal `json:"discount" db:"discount"`
	Tax         decimal.Decimal `json:"tax" db:"tax"`
	ShippingFee decimal.Decimal `json:"shipping_fee" db:"shipping_fee"`
	GrandTotal  decimal.Decimal `json:"grand_total" db:"grand_total"`
	Comment     string          `json:"comment,omitempty" db:"comment"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ValidatedAt *time.Time      `json:"validated_at,omitempty" db:"validated_at"`
	ShippedAt   *time.Time      `json:"shipped_at,omitempty" db:"shipped_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Lines       []OrderLine     `json:"lines,omitempty" db:"-"`
}

// OrderLine is one product position on a sales order. Unit price is a
// snapshot taken at line creation. Invariants: DeliveredQty <= Quantity and
// ReturnedQty <= DeliveredQty.
type OrderLine struct {
	ID           int64           `json:"id" db:"id"`
	OrderID      int64           `json:"order_id" db:"order_id"`
	ProductID    int64           `json:"product_id" db:"product_id"`
	Quantity     int             `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price" db:"unit_price"`
	Discount     decimal.Decimal `json:"discount" db:"discount"`
	Subtotal     decimal.Decimal `json:"subtotal" db:"subtotal"`
	DeliveredQty int             `json:"delivered_qty" db:"delivered_qty"`
	ReturnedQty  int             `json:"returned_qty" db:"returned_qty"`
	Status       LineStatus      `json:"status" db:"status"`
	Failed       bool            `json:"failed" db:"failed"`
	Comment      string          `json:"comment,omitempty" db:"comment"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// StockAdjustment is a pending on-hand delta produced by a line transition.
// Transitions return the adjustments to apply instead of mutating the ledger
// themselves; the service applies them inside the same transaction.
type StockAdjustment struct {
	ProductID int64
	Delta     int
}

// CreateOrderRequest carries order creation input.
type CreateOrderRequest struct {
	CustomerID  int64                `json:"customer_id" validate:"required,gt=0"`
	Discount    decimal.Decimal      `json:"discount"`
	Tax         decimal.Decimal      `json:"tax"`
	ShippingFee decimal.Decimal      `json:"shipping_fee"`
	Comment     string               `json:"comment,omitempty" validate:"max=500"`
	Lines       []CreateOrderLineReq `json:"lines" validate:"dive"`
}

// CreateOrderLineReq carries one line of order creation input. UnitPrice is
// optional: when absent the product's current price is snapshotted.
type CreateOrderLineReq struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"required,gte=1"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Discount  decimal.Decimal  `json:"discount"`
}

// ProcessReturnRequest carries return input for a delivered line.
type ProcessReturnRequest struct {
	Quantity int    `json:"quantity" validate:"required,gte=1"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

// FailOrderRequest carries the failure reason.
type FailOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ListOrdersRequest filters order listings.
type ListOrdersRequest struct {
	CustomerID *int64       `json:"customer_id,omitempty"`
	Status     *OrderStatus `json:"status,omitempty"`
	Limit      int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int          `json:"offset" validate:"gte=0"`
}
