package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatDocNumber(t *testing.T) {
	date := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "CMD2026080042", FormatDocNumber("CMD", date, 42))
	require.Equal(t, "INV2026080001", FormatDocNumber("INV", date, 1))
	require.Equal(t, "CMD20260812345", FormatDocNumber("CMD", date, 12345))
}

func TestInvalidStateErrorCarriesContext(t *testing.T) {
	err := NewInvalidState("sales order", 7, "SHIPPED", "ship")
	require.True(t, IsInvalidState(err))

	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, int64(7), ise.ID)
	require.Equal(t, "SHIPPED", ise.State)
	require.Equal(t, "ship", ise.Op)
	require.Contains(t, err.Error(), "sales order 7")
	require.Contains(t, err.Error(), "ship")
}

func TestValidationErrorDetection(t *testing.T) {
	err := NewValidation("order line", 3, "quantity must be at least 1")
	require.True(t, IsValidation(err))
	require.False(t, IsInvalidState(err))

	wrapped := fmt.Errorf("add line: %w", err)
	require.True(t, IsValidation(wrapped))
}

func TestErrNotFoundWrapping(t *testing.T) {
	err := fmt.Errorf("product 9: %w", ErrNotFound)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestFixedClock(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := FixedClock(ts)
	require.Equal(t, ts, clock())
}
