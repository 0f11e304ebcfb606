package connection

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: Base * Factor^(attempt-1), capped at
// Max, with up to Jitter (0-1) of the delay randomized away.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff returns sensible defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   1 * time.Second,
		Max:    60 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

// Duration returns the delay before reconnect attempt n (1-based).
func (b Backoff) Duration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	wait := float64(b.Base)
	for i := 1; i < attempt; i++ {
		wait *= factor
		if b.Max > 0 && wait >= float64(b.Max) {
			wait = float64(b.Max)
			break
		}
	}
	if b.Max > 0 && wait > float64(b.Max) {
		wait = float64(b.Max)
	}

	if b.Jitter > 0 && wait > 0 {
		jitter := b.Jitter
		if jitter > 1 {
			jitter = 1
		}
		// Shave off up to jitter*wait so retries from many clients spread out.
		wait -= wait * jitter * rand.Float64()
	}

	return time.Duration(wait)
}
