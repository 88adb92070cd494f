package gateway

import "time"

// tokenBucket is a fixed-size bucket refilled one token per period. Not safe
// for concurrent use; the hub serializes access under its own lock.
type tokenBucket struct {
	size   int
	period time.Duration

	tokens     int
	lastRefill time.Time
}

func newTokenBucket(size int, period time.Duration) *tokenBucket {
	return &tokenBucket{size: size, period: period, tokens: size, lastRefill: time.Now()}
}

// take refills based on elapsed time, then consumes one token if available.
func (b *tokenBucket) take(now time.Time) bool {
	if b.period > 0 {
		refill := int(now.Sub(b.lastRefill) / b.period)
		if refill > 0 {
			b.tokens += refill
			if b.tokens > b.size {
				b.tokens = b.size
			}
			b.lastRefill = now
		}
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
