package sync

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes jittered exponential retry delays.
type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the capped delay added as random jitter
}

// DefaultBackoff returns the sync engine's retry defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:        time.Second,
		Max:        15 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Delay returns the wait before the given retry attempt (1-based):
// min(Max, Min*Multiplier^(attempt-1)) plus up to Jitter of that value,
// so repeated failures across devices don't synchronize.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := float64(b.Min) * math.Pow(b.Multiplier, float64(attempt-1))
	capped := math.Min(base, float64(b.Max))

	jitter := capped * b.Jitter * rand.Float64()
	return time.Duration(capped + jitter)
}
