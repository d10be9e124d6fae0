package poller

import (
	"math"
	"time"
)

// Seconds converts a timeout in seconds to a Duration. Negative values mean
// wait forever and map to -1; values beyond the Duration range saturate.
func Seconds(seconds float64) time.Duration {
	switch {
	case seconds < 0 || math.IsNaN(seconds):
		return -1
	case seconds >= float64(math.MaxInt64)/float64(time.Second):
		return math.MaxInt64
	}
	return time.Duration(seconds * float64(time.Second))
}

// Millis converts timeout to the millisecond argument of epoll_wait and poll.
// Negative blocks forever, a positive timeout below 1ms rounds up to 1ms, and
// the result never exceeds the kernel's int range.
func Millis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	switch {
	case ms == 0 && timeout > 0:
		return 1
	case ms > math.MaxInt32:
		return math.MaxInt32
	}
	return int(ms)
}
