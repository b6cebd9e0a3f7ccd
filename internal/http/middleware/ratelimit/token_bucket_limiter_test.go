package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTokenBucket_BurstThenDeny(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := NewTokenBucketLimiter(clk, Config{Rate: 1, Burst: 3})

	require.True(t, l.Allow("ip"))
	require.True(t, l.Allow("ip"))
	require.True(t, l.Allow("ip"))
	require.False(t, l.Allow("ip"))
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := NewTokenBucketLimiter(clk, Config{Rate: 2, Burst: 2})

	require.True(t, l.Allow("ip"))
	require.True(t, l.Allow("ip"))
	require.False(t, l.Allow("ip"))

	clk.Advance(500 * time.Millisecond) // +1 token
	require.True(t, l.Allow("ip"))
	require.False(t, l.Allow("ip"))
}

func TestTokenBucket_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := NewTokenBucketLimiter(clk, Config{Rate: 1, Burst: 1})

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
}

func TestTokenBucket_MaxBuckets(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := NewTokenBucketLimiter(clk, Config{Rate: 1, Burst: 1, MaxBuckets: 2})

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	// новый ключ сверх лимита не получает бакет
	require.False(t, l.Allow("c"))
	// существующие ключи продолжают работать
	clk.Advance(time.Second)
	require.True(t, l.Allow("a"))
}

func TestTokenBucket_TTLSweep(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := NewTokenBucketLimiter(clk, Config{Rate: 1, Burst: 1, TTL: 2 * time.Minute, MaxBuckets: 1})

	require.True(t, l.Allow("a"))
	// бакет "a" протухает и освобождает место под "b"
	clk.Advance(5 * time.Minute)
	require.True(t, l.Allow("b"))
}

func TestTokenBucket_DefaultsApplied(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(nil, Config{})
	require.True(t, l.Allow("ip"))
	require.False(t, l.Allow("ip"))
}
