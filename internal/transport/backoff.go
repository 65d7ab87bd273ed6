package transport

import "time"

// Backoff returns the delay before the given reconnect attempt. The delay
// grows linearly with the attempt number and is capped:
// min(attempt * base, max).
//
// Precondition: attempt >= 1; base > 0; max >= base.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := time.Duration(attempt) * base
	if d > max {
		return max
	}
	return d
}
