package timex

import "time"

// Clock returns the current instant in epoch milliseconds. Repositories and
// the orchestrator take a Clock so tests can pin or freeze time.
type Clock func() int64

// SystemClock reads the wall clock.
func SystemClock() int64 {
	return time.Now().UnixMilli()
}

// FixedClock always returns ms.
func FixedClock(ms int64) Clock {
	return func() int64 { return ms }
}

// FromMillis converts epoch milliseconds to a UTC time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
