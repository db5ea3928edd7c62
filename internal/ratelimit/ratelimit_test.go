package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{"burst allows initial requests", 1, 3, 3, 3},
		{"exceeding burst blocks", 1, 2, 5, 2},
		{"single token", 0.001, 1, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			defer rl.Stop()

			passed := 0
			for range tt.calls {
				if rl.Allow("203.0.113.7") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	assert.True(t, rl.Allow("203.0.113.7"))
	assert.False(t, rl.Allow("203.0.113.7"), "first client exhausted")
	assert.True(t, rl.Allow("198.51.100.2"), "second client has its own bucket")
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_WaitContextCancelled(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()

	rl.Allow("client")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "client"))
}

func TestKeyedRateLimiter_SweepDropsIdleKeys(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)}
	rl := New(0.001, 1, WithIdleTTL(time.Minute), WithClock(clock.Now))
	defer rl.Stop()

	require.True(t, rl.Allow("idle"))
	require.False(t, rl.Allow("idle"))

	clock.Advance(30 * time.Second)
	rl.Allow("active")

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Len())

	assert.True(t, rl.Allow("idle"), "evicted key starts with a full bucket")
}

func TestKeyedRateLimiter_StopTwice(t *testing.T) {
	rl := New(1, 1)
	rl.Stop()
	rl.Stop()
}
