package sales

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
}

func testProduct(id int64, onHand int) *catalog.Product {
	return &catalog.Product{
		ID:        id,
		Code:      "SKU-001",
		Name:      "test product",
		UnitPrice: decimal.NewFromInt(10),
		OnHand:    onHand,
		Active:    true,
		Available: true,
	}
}

func draftOrder(t *testing.T, lineQty int) *SalesOrder {
	t.Helper()
	now := fixedNow()
	order := &SalesOrder{
		ID:         1,
		DocNumber:  "CMD2026080001",
		CustomerID: 7,
		OrderDate:  now,
		Status:     OrderStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	line, err := NewOrderLine(testProduct(42, 50), lineQty, nil, decimal.Zero, now)
	require.NoError(t, err)
	line.ID = 100
	require.NoError(t, order.AddLine(*line))
	return order
}

func TestNewOrderLineValidation(t *testing.T) {
	now := fixedNow()
	p := testProduct(1, 10)

	_, err := NewOrderLine(p, 0, nil, decimal.Zero, now)
	require.True(t, shared.IsValidation(err))

	_, err = NewOrderLine(p, 1, nil, decimal.NewFromInt(-1), now)
	require.True(t, shared.IsValidation(err))

	zero := decimal.Zero
	_, err = NewOrderLine(p, 1, &zero, decimal.Zero, now)
	require.True(t, shared.IsValidation(err))
}

func TestLineSnapshotsProductPrice(t *testing.T) {
	now := fixedNow()
	line, err := NewOrderLine(testProduct(1, 10), 3, nil, decimal.Zero, now)
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(decimal.NewFromInt(10)))
	require.True(t, line.Subtotal.Equal(decimal.NewFromInt(30)))
}

func TestRecalculateTotals(t *testing.T) {
	order := draftOrder(t, 5)
	order.Discount = decimal.NewFromInt(10)
	order.Tax = decimal.NewFromInt(5)
	order.ShippingFee = decimal.NewFromInt(3)
	order.RecalculateTotals()

	require.True(t, order.Subtotal.Equal(decimal.NewFromInt(50)))
	require.True(t, order.GrandTotal.Equal(decimal.NewFromInt(48)))
}

func TestValidateReservesWithoutDecrement(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))

	require.Equal(t, OrderStatusValidated, order.Status)
	require.NotNil(t, order.ValidatedAt)
	require.Equal(t, LineStatusStockReserved, order.Lines[0].Status)
}

func TestValidateRequiresLines(t *testing.T) {
	now := fixedNow()
	order := &SalesOrder{ID: 1, CustomerID: 7, Status: OrderStatusDraft}
	err := order.Validate(now)
	require.True(t, shared.IsInvalidState(err))
}

func TestValidateTwiceFails(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))
	err := order.Validate(fixedNow())
	require.True(t, shared.IsInvalidState(err))
}

func TestShipProducesAdjustments(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))

	adjustments, err := order.Ship(fixedNow())
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	require.Equal(t, int64(42), adjustments[0].ProductID)
	require.Equal(t, -5, adjustments[0].Delta)

	require.Equal(t, OrderStatusShipped, order.Status)
	require.NotNil(t, order.ShippedAt)
	require.Equal(t, LineStatusDelivered, order.Lines[0].Status)
	require.Equal(t, 5, order.Lines[0].DeliveredQty)
}

func TestShipTwiceFails(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))
	_, err := order.Ship(fixedNow())
	require.NoError(t, err)

	_, err = order.Ship(fixedNow())
	require.True(t, shared.IsInvalidState(err))

	var ise *shared.InvalidStateError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, order.ID, ise.ID)
	require.Equal(t, "ship", ise.Op)
}

func TestShipFromDraftFails(t *testing.T) {
	order := draftOrder(t, 5)
	_, err := order.Ship(fixedNow())
	require.True(t, shared.IsInvalidState(err))
}

func TestFailAfterValidateReleasesLines(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))

	require.NoError(t, order.Fail("customer cancelled", fixedNow()))

	require.Equal(t, OrderStatusFailed, order.Status)
	require.Equal(t, "customer cancelled", order.Comment)
	require.Equal(t, LineStatusStockReleased, order.Lines[0].Status)
	require.True(t, order.Lines[0].Failed)
}

func TestFailAfterShipRejected(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))
	_, err := order.Ship(fixedNow())
	require.NoError(t, err)

	err = order.Fail("too late", fixedNow())
	require.True(t, shared.IsInvalidState(err))
}

func TestAddLineRejectedAfterValidate(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))

	line, err := NewOrderLine(testProduct(43, 20), 2, nil, decimal.Zero, fixedNow())
	require.NoError(t, err)
	err = order.AddLine(*line)
	require.True(t, shared.IsInvalidState(err))
}

func TestRemoveLineRecalculates(t *testing.T) {
	order := draftOrder(t, 5)
	line, err := NewOrderLine(testProduct(43, 20), 2, nil, decimal.Zero, fixedNow())
	require.NoError(t, err)
	line.ID = 101
	require.NoError(t, order.AddLine(*line))
	require.True(t, order.Subtotal.Equal(decimal.NewFromInt(70)))

	require.NoError(t, order.RemoveLine(101))
	require.True(t, order.Subtotal.Equal(decimal.NewFromInt(50)))

	err = order.RemoveLine(999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestProcessReturn(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))
	_, err := order.Ship(fixedNow())
	require.NoError(t, err)

	line := &order.Lines[0]

	adj, err := line.ProcessReturn(2, "damaged in transit")
	require.NoError(t, err)
	require.Equal(t, int64(42), adj.ProductID)
	require.Equal(t, 2, adj.Delta)
	require.Equal(t, LineStatusReturnPartial, line.Status)
	require.Equal(t, 2, line.ReturnedQty)

	adj, err = line.ProcessReturn(3, "remainder refused")
	require.NoError(t, err)
	require.Equal(t, 3, adj.Delta)
	require.Equal(t, LineStatusReturnComplete, line.Status)
	require.Equal(t, 5, line.ReturnedQty)
}

func TestProcessReturnValidation(t *testing.T) {
	order := draftOrder(t, 5)
	require.NoError(t, order.Validate(fixedNow()))

	// Not yet delivered.
	_, err := order.Lines[0].ProcessReturn(1, "early")
	require.True(t, shared.IsValidation(err))

	_, shipErr := order.Ship(fixedNow())
	require.NoError(t, shipErr)
	line := &order.Lines[0]

	_, err = line.ProcessReturn(0, "nothing")
	require.True(t, shared.IsValidation(err))

	_, err = line.ProcessReturn(6, "too many")
	require.True(t, shared.IsValidation(err))

	_, err = line.ProcessReturn(3, "first")
	require.NoError(t, err)
	_, err = line.ProcessReturn(3, "exceeds delivered")
	require.True(t, shared.IsValidation(err))
}

func TestRemainingToDeliver(t *testing.T) {
	line := &OrderLine{Quantity: 10, DeliveredQty: 4}
	require.Equal(t, 6, line.RemainingToDeliver())
	require.True(t, line.PartiallyDelivered())
	require.False(t, line.FullyDelivered())
}
