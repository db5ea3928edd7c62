// Package ratelimit provides per-key token bucket limiting, keyed by client
// IP on the public API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultIdleTTL is how long an unused key keeps its bucket.
	DefaultIdleTTL = 10 * time.Minute
	sweepInterval  = time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter gives every key its own token bucket. Buckets idle for
// longer than the TTL are dropped, which refills them.
type KeyedRateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option tunes a KeyedRateLimiter.
type Option func(*KeyedRateLimiter)

// WithIdleTTL sets how long an unused key is remembered.
func WithIdleTTL(d time.Duration) Option {
	return func(k *KeyedRateLimiter) { k.idleTTL = d }
}

// WithClock replaces time.Now for eviction.
func WithClock(now func() time.Time) Option {
	return func(k *KeyedRateLimiter) { k.now = now }
}

// New creates a limiter allowing rps requests per second per key with the
// given burst. Call Stop to end the background sweep.
func New(rps float64, burst int, opts ...Option) *KeyedRateLimiter {
	k := &KeyedRateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}

	k.wg.Add(1)
	go k.sweepLoop()
	return k
}

// Allow reports whether a request for key may proceed now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	return k.get(key).Allow()
}

// Wait blocks until key has a token or ctx is done.
func (k *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return k.get(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (k *KeyedRateLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *KeyedRateLimiter) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = k.now()
	return e.limiter
}

// Sweep drops keys idle for longer than the TTL and returns how many went.
func (k *KeyedRateLimiter) Sweep() int {
	cutoff := k.now().Add(-k.idleTTL)

	k.mu.Lock()
	defer k.mu.Unlock()
	removed := 0
	for key, e := range k.entries {
		if e.lastSeen.Before(cutoff) {
			delete(k.entries, key)
			removed++
		}
	}
	return removed
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (k *KeyedRateLimiter) Stop() {
	k.stopOnce.Do(func() {
		close(k.done)
	})
	k.wg.Wait()
}

func (k *KeyedRateLimiter) sweepLoop() {
	defer k.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			k.Sweep()
		}
	}
}
