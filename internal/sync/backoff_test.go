package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_ExponentialGrowth(t *testing.T) {
	b := DefaultBackoff()

	cases := []struct {
		attempt int
		base    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}

	for _, tc := range cases {
		delay := b.Delay(tc.attempt)
		assert.GreaterOrEqual(t, delay, tc.base, "attempt %d", tc.attempt)
		// Jitter adds at most 10% on top of the base.
		assert.LessOrEqual(t, delay, tc.base+tc.base/10, "attempt %d", tc.attempt)
	}
}

func TestBackoff_CapsAtMax(t *testing.T) {
	b := DefaultBackoff()

	for _, attempt := range []int{5, 10, 100} {
		delay := b.Delay(attempt)
		assert.GreaterOrEqual(t, delay, b.Max, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, b.Max+b.Max/10, "attempt %d", attempt)
	}
}

func TestBackoff_ClampsAttempt(t *testing.T) {
	b := DefaultBackoff()

	for _, attempt := range []int{0, -3} {
		delay := b.Delay(attempt)
		assert.GreaterOrEqual(t, delay, b.Min)
		assert.LessOrEqual(t, delay, b.Min+b.Min/10)
	}
}
