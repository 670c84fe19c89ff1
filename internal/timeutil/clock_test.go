package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock_SleepAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(100 * time.Millisecond)
	c.Sleep(250 * time.Millisecond)

	assert.Equal(t, 350*time.Millisecond, c.Since(start))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 250 * time.Millisecond}, c.Sleeps())
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(0, 0))
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, int64(1500), NowMillis(c))

	c.Set(time.UnixMilli(42))
	assert.Equal(t, int64(42), NowMillis(c))
}

func TestRealClock(t *testing.T) {
	t.Parallel()

	var c Clock = RealClock{}
	before := c.Now()
	c.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, c.Since(before), time.Millisecond)
}
