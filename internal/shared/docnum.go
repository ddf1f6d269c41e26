package shared

import (
	"context"
	"fmt"
	"time"
)

// NumberGenerator produces document numbers in the <PREFIX><YYYY><MM><seq>
// format, e.g. CMD2026080042. Repositories provide pg-backed implementations;
// tests inject fixed ones.
type NumberGenerator func(ctx context.Context, prefix string, date time.Time) (string, error)

// FormatDocNumber renders a document number from its parts.
func FormatDocNumber(prefix string, date time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%04d", prefix, date.Format("200601"), seq)
}
