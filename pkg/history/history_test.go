package history

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out the queued times in order, repeating the last one.
type fakeClock struct {
	mu    sync.Mutex
	times []int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return time.UnixMilli(ms)
}

func newWithTimes(ms ...int64) *History {
	c := &fakeClock{times: ms}
	return New(WithClock(c.Now))
}

func TestAddFix_NewAndRepeat(t *testing.T) {
	h := newWithTimes(100, 250)

	prev, found := h.AddFix(31.0, 121.0)
	assert.False(t, found)
	assert.Equal(t, NotFound, prev)

	prev, found = h.AddFix(31.0, 121.0)
	assert.True(t, found)
	assert.Equal(t, int64(100), prev)

	ts, ok := h.TimestampOf(Fix{31.0, 121.0})
	require.True(t, ok)
	assert.Equal(t, int64(250), ts)
	assert.Equal(t, 1, h.Len())
}

func TestAddFix_RepeatKeepsOrderPosition(t *testing.T) {
	h := newWithTimes(1, 2, 3)
	h.AddFix(1, 1)
	h.AddFix(2, 2)
	h.AddFix(1, 1)

	assert.Equal(t, []Fix{{2, 2}, {1, 1}}, h.OrderedMostRecentFirst())

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].Millis)
	assert.Equal(t, int64(3), entries[1].Millis)
}

func TestAddFix_ClockStepsBackward(t *testing.T) {
	h := newWithTimes(1000, 400)
	h.AddFix(1, 1)
	h.AddFix(2, 2)

	ts, _ := h.TimestampOf(Fix{2, 2})
	assert.Equal(t, int64(1000), ts, "timestamps must be non-decreasing")
}

func TestAddFix_Invalid(t *testing.T) {
	h := New()
	calls := 0
	h.SetObserver(func() { calls++ })

	_, found := h.AddFix(math.NaN(), 121)
	assert.False(t, found)
	_, found = h.AddFix(95, 121)
	assert.False(t, found)
	_, found = h.AddFix(31, math.Inf(1))
	assert.False(t, found)

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, calls)
}

func TestOrderedMostRecentFirst_NonMutating(t *testing.T) {
	h := newWithTimes(1, 2, 3)
	h.AddFix(1, 1)
	h.AddFix(2, 2)
	h.AddFix(3, 3)

	first := h.OrderedMostRecentFirst()
	second := h.OrderedMostRecentFirst()
	assert.Equal(t, first, second)
	assert.Equal(t, []Fix{{3, 3}, {2, 2}, {1, 1}}, first)

	// Mutating the snapshot must not leak into the history.
	first[0] = Fix{9, 9}
	assert.Equal(t, Fix{3, 3}, h.OrderedMostRecentFirst()[0])
	assert.Equal(t, 3, h.Len())
}

func TestObserver_CalledWithoutLock(t *testing.T) {
	h := New()
	var seen int
	h.SetObserver(func() {
		// Would deadlock if AddFix still held the write lock.
		seen = h.Len()
	})
	h.AddFix(31, 121)
	assert.Equal(t, 1, seen)
}

func TestRemoveOlderThan(t *testing.T) {
	h := newWithTimes(0, 500, 1200, 1800)
	h.AddFix(1, 1)
	h.AddFix(2, 2)
	h.AddFix(3, 3)
	h.AddFix(4, 4)

	removed := h.RemoveOlderThan(500)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []Fix{{4, 4}, {3, 3}, {2, 2}}, h.OrderedMostRecentFirst())

	_, ok := h.TimestampOf(Fix{1, 1})
	assert.False(t, ok)

	assert.Equal(t, 0, h.RemoveOlderThan(NotFound))
	assert.Equal(t, 3, h.Len())
}

func TestRetainOnly(t *testing.T) {
	h := newWithTimes(1, 2, 3, 4)
	h.AddFix(1, 1)
	h.AddFix(2, 2)
	h.AddFix(3, 3)
	h.AddFix(4, 4)

	removed := h.RetainOnly(Fix{4, 4}, Fix{2, 2})
	assert.Equal(t, 2, removed)
	assert.Equal(t, []Fix{{4, 4}, {2, 2}}, h.OrderedMostRecentFirst())
}

func TestRemoveAndClear(t *testing.T) {
	h := newWithTimes(1, 2, 3)
	h.AddFix(1, 1)
	h.AddFix(2, 2)

	assert.True(t, h.Remove(Fix{1, 1}))
	assert.False(t, h.Remove(Fix{1, 1}))
	assert.Equal(t, []Fix{{2, 2}}, h.OrderedMostRecentFirst())

	h.Clear()
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Entries())

	h.AddFix(5, 5)
	assert.Equal(t, 1, h.Len())
}

func TestConcurrentAddAndRead(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.AddFix(float64(i), float64(j)/1000)
				_ = h.OrderedMostRecentFirst()
				if j%10 == 0 {
					h.RemoveOlderThan(0)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 800, h.Len())
	assert.Len(t, h.Entries(), 800)
}

func TestRetainSince(t *testing.T) {
	h := newWithTimes(1, 2, 3, 4)
	h.AddFix(1, 1)
	h.AddFix(2, 2)
	h.AddFix(3, 3)
	h.AddFix(4, 4)

	removed := h.RetainSince(3, Fix{1, 1})
	assert.Equal(t, 1, removed)
	assert.Equal(t, []Fix{{4, 4}, {3, 3}, {1, 1}}, h.OrderedMostRecentFirst())
}
