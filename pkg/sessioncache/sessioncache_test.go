package sessioncache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) now() time.Time { return f.current }

func (f *fakeClock) advance(d time.Duration) { f.current = f.current.Add(d) }

func newTestCache(ttl time.Duration) (*Cache[string], *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
	c := New[string](ttl)
	c.now = clock.now
	return c, clock
}

func TestCache(t *testing.T) {
	t.Run("put then get", func(t *testing.T) {
		c, _ := newTestCache(time.Minute)
		c.Put("k", "v")

		got, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", got)
	})

	t.Run("missing key", func(t *testing.T) {
		c, _ := newTestCache(time.Minute)
		_, ok := c.Get("missing")
		assert.False(t, ok)
	})

	t.Run("expired entries are gone on read", func(t *testing.T) {
		c, clock := newTestCache(time.Minute)
		c.Put("k", "v")

		clock.advance(2 * time.Minute)
		_, ok := c.Get("k")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("put resets expiry", func(t *testing.T) {
		c, clock := newTestCache(time.Minute)
		c.Put("k", "v1")
		clock.advance(45 * time.Second)
		c.Put("k", "v2")
		clock.advance(45 * time.Second)

		got, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v2", got)
	})

	t.Run("delete", func(t *testing.T) {
		c, _ := newTestCache(time.Minute)
		c.Put("k", "v")
		c.Delete("k")
		_, ok := c.Get("k")
		assert.False(t, ok)
	})

	t.Run("sweep drops only expired entries", func(t *testing.T) {
		c, clock := newTestCache(time.Minute)
		c.Put("old", "v")
		clock.advance(2 * time.Minute)
		c.Put("fresh", "v")

		assert.Equal(t, 1, c.Sweep())
		assert.Equal(t, 1, c.Len())

		_, ok := c.Get("fresh")
		assert.True(t, ok)
	})
}
