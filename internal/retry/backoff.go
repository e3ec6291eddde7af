package retry

import (
	"math"
	"time"

	"github.com/austindbirch/hookrelay/internal/webhook"
)

// Backoff computes exponential retry delays with a hard cap.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// PolicyBackoff builds a Backoff from the retry policy frozen on a delivery.
func PolicyBackoff(p webhook.RetryPolicy) Backoff {
	return Backoff{Base: p.BaseDelay, Multiplier: p.Multiplier, Max: p.MaxDelay}
}

// Delay returns min(base * multiplier^attempt, max). Attempt 0 is the first
// retry. Delays are monotonically non-decreasing and never exceed Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(b.Base) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}
