package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowCounterAdmitsUpToLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	counter := NewWindowCounter(3, time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, counter.Allow("owner-a"), "attempt %d should be admitted", i+1)
	}
	assert.False(t, counter.Allow("owner-a"), "attempt over the limit must be rejected")
}

func TestWindowCounterKeysAreIndependent(t *testing.T) {
	now := time.Unix(1000, 0)
	counter := NewWindowCounter(1, time.Minute).WithClock(func() time.Time { return now })

	assert.True(t, counter.Allow("owner-a"))
	assert.False(t, counter.Allow("owner-a"))
	assert.True(t, counter.Allow("owner-b"), "other owners keep their own budget")
}

func TestWindowCounterSlides(t *testing.T) {
	now := time.Unix(1000, 0)
	counter := NewWindowCounter(2, time.Minute).WithClock(func() time.Time { return now })

	assert.True(t, counter.Allow("owner-a"))
	assert.True(t, counter.Allow("owner-a"))
	assert.False(t, counter.Allow("owner-a"))

	// Rejected attempts count too, so the budget only recovers once the
	// burst including the rejection ages out.
	now = now.Add(61 * time.Second)
	assert.True(t, counter.Allow("owner-a"))
}

func TestWindowCounterZeroLimitDisables(t *testing.T) {
	counter := NewWindowCounter(0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, counter.Allow("anyone"))
	}
}
