package channel

import (
	"math/rand/v2"
	"time"
)

// Backoff is the reconnect policy after an unexpected drop.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff is used when Options leaves Backoff zero.
var DefaultBackoff = Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second, MaxAttempts: 10}

// Delay returns the wait before the given zero-based attempt: exponential
// in the attempt number plus up to Base of jitter, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Max
	if attempt < 32 {
		if exp := b.Base << attempt; exp > 0 && exp < b.Max {
			d = exp
		}
	}
	if b.Base > 0 {
		d += time.Duration(rand.Int64N(int64(b.Base)))
	}
	return min(d, b.Max)
}
