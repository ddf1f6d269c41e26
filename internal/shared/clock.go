package shared

import "time"

// Clock abstracts the time source so transitions and timestamps are testable.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a clock pinned to ts, used by tests.
func FixedClock(ts time.Time) Clock {
	return func() time.Time { return ts }
}
