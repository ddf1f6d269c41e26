package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// stocktakeMaxAge is how long a count stays fresh before the product is
// flagged for a new one.
const stocktakeMaxAgeMonths = 3

// Product is the stock ledger entry for one sellable item. OnHand never goes
// negative: adjustments clamp at zero.
type Product struct {
	ID              int64           `json:"id" db:"id"`
	Code            string          `json:"code" db:"code"`
	Name            string          `json:"name" db:"name"`
	UnitPrice       decimal.Decimal `json:"unit_price" db:"unit_price"`
	OnHand          int             `json:"on_hand" db:"on_hand"`
	MinStock        int             `json:"min_stock" db:"min_stock"`
	LastStocktakeAt *time.Time      `json:"last_stocktake_at,omitempty" db:"last_stocktake_at"`
	Active          bool            `json:"active" db:"active"`
	Available       bool            `json:"available" db:"available"`
	NeedsStocktake  bool            `json:"needs_stocktake" db:"needs_stocktake"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// LowStock reports whether on-hand quantity is at or below the minimum.
func (p *Product) LowStock() bool {
	return p.OnHand <= p.MinStock
}

// OutOfStock reports whether there is nothing left to sell.
func (p *Product) OutOfStock() bool {
	return p.OnHand <= 0
}

// AvailableForSale reports whether qty units can be sold right now.
func (p *Product) AvailableForSale(qty int) bool {
	return p.Active && p.Available && !p.OutOfStock() && qty > 0 && p.OnHand >= qty
}

// Adjust adds delta (positive or negative) to on-hand quantity, clamping the
// result at zero. Driving stock negative is a deliberate no-op past zero, not
// an error: callers that must detect shortage check AvailableForSale first.
// Returns the delta actually applied.
func (p *Product) Adjust(delta int, now time.Time) int {
	before := p.OnHand
	p.OnHand += delta
	if p.OnHand < 0 {
		p.OnHand = 0
	}
	p.RefreshStocktakeFlag(now)
	return p.OnHand - before
}

// SetCounted replaces on-hand quantity with a physically counted value and
// stamps the count time. Used by stocktake task completion when the count
// disagreed with the ledger, so the product stays flagged for a follow-up
// count regardless of how fresh this one is.
func (p *Product) SetCounted(qty int, now time.Time) {
	if qty < 0 {
		qty = 0
	}
	p.OnHand = qty
	p.LastStocktakeAt = &now
	p.NeedsStocktake = true
}

// RefreshStocktakeFlag recomputes NeedsStocktake: low stock, never counted,
// or last counted more than three months ago.
func (p *Product) RefreshStocktakeFlag(now time.Time) {
	stale := p.LastStocktakeAt == nil || p.LastStocktakeAt.Before(now.AddDate(0, -stocktakeMaxAgeMonths, 0))
	p.NeedsStocktake = p.LowStock() || stale
}

// CreateProductRequest carries catalog creation input.
type CreateProductRequest struct {
	Code      string          `json:"code" validate:"required,max=50"`
	Name      string          `json:"name" validate:"required,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
	OnHand    int             `json:"on_hand" validate:"gte=0"`
	MinStock  int             `json:"min_stock" validate:"gte=0"`
}

// AdjustStockRequest carries a manual stock adjustment. A zero delta is
// accepted and leaves the quantity untouched.
type AdjustStockRequest struct {
	Delta int `json:"delta"`
}

// ListProductsRequest filters catalog listings.
type ListProductsRequest struct {
	NeedsStocktake *bool `json:"needs_stocktake,omitempty"`
	LowStock       *bool `json:"low_stock,omitempty"`
	Limit          int   `json:"limit" validate:"gte=0,lte=1000"`
	Offset         int   `json:"offset" validate:"gte=0"`
}
