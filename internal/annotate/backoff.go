package annotate

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before a retry.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Jitter     time.Duration
}

// DefaultBackoff is 1s * 1.5^n plus up to 0.5s of jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       time.Second,
		Multiplier: 1.5,
		Jitter:     500 * time.Millisecond,
	}
}

// Delay returns the wait before retry n, where n is 0 for the first retry.
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(n)))
	if b.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(b.Jitter)))
	}
	return d
}
