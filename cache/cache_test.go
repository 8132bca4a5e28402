package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func TestGetWithinTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", 100*time.Millisecond, 10, WithClock[string](clock.Now))

	c.Set("k", "v")
	clock.Advance(50 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestGetAfterTTLReturnsAbsentAndRemoves(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", 100*time.Millisecond, 10, WithClock[string](clock.Now))

	c.Set("k", "v")
	clock.Advance(150 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	// Lazy expiry removed the entry, not just hid it.
	assert.Equal(t, 0, c.Len())
}

func TestExpiredEntryStaysStoredUntilTouched(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", time.Minute, 10, WithClock[int](clock.Now))

	c.Set("k", 1)
	clock.Advance(time.Minute + time.Millisecond)

	// Physically present, logically absent.
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Has("k"))
}

func TestPruneRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", time.Minute, 10, WithClock[int](clock.Now))

	c.Set("old", 1)
	clock.Advance(30 * time.Second)
	c.Set("young", 2)
	clock.Advance(45 * time.Second) // "old" is 75s, "young" is 45s

	removed := c.Prune()
	assert.Equal(t, 1, removed)
	assert.False(t, c.Has("old"))
	assert.True(t, c.Has("young"))
}

func TestCapacityEvictsOldestFifth(t *testing.T) {
	clock := newFakeClock()
	const maxSize = 10
	c := New[int]("test", time.Hour, maxSize, WithClock[int](clock.Now))

	for i := 0; i < maxSize; i++ {
		c.Set(fmt.Sprintf("k%02d", i), i)
		clock.Advance(time.Second)
	}
	require.Equal(t, maxSize, c.Len())

	c.Set("overflow", 99)

	// max(1, 10/5) = 2 oldest evicted, then the new entry inserted.
	assert.Equal(t, maxSize-1, c.Len())
	assert.False(t, c.Has("k00"))
	assert.False(t, c.Has("k01"))
	assert.True(t, c.Has("k02"))
	assert.True(t, c.Has("overflow"))
}

func TestCapacityEvictsAtLeastOne(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", time.Hour, 3, WithClock[int](clock.Now))

	c.Set("a", 1)
	clock.Advance(time.Second)
	c.Set("b", 2)
	clock.Advance(time.Second)
	c.Set("c", 3)
	clock.Advance(time.Second)
	c.Set("d", 4)

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("d"))
}

func TestResetRefreshesTimestampWithoutEviction(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", time.Minute, 2, WithClock[int](clock.Now))

	c.Set("a", 1)
	clock.Advance(50 * time.Second)
	c.Set("a", 2) // refresh, not insert: no eviction at capacity check
	clock.Advance(30 * time.Second)

	// 80s since first insert, 30s since refresh: still live.
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestGetDoesNotRefreshAge(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", time.Minute, 10, WithClock[int](clock.Now))

	c.Set("a", 1)
	clock.Advance(30 * time.Second)
	c.Get("a")
	clock.Advance(31 * time.Second)

	// Insertion-recency eviction, not LRU: the read did not keep it alive.
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestAge(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", time.Minute, 10, WithClock[int](clock.Now))

	_, ok := c.Age("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	clock.Advance(10 * time.Second)

	age, ok := c.Age("a")
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, age)
}

func TestClear(t *testing.T) {
	c := New[int]("test", time.Minute, 10)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
