// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// windowStart returns a time aligned to a minute boundary.
func windowStart() time.Time {
	return time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)
}

func newMemory(t *testing.T, rule Rule, clock *manualClock, opts ...MemoryOption) *Memory {
	t.Helper()
	m, err := NewMemory(rule, append([]MemoryOption{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemory_AllowsUpToLimit(t *testing.T) {
	clock := &manualClock{t: windowStart()}
	m := newMemory(t, Rule{Limit: 3, Window: time.Minute}, clock)
	ctx := context.Background()

	for i := range 3 {
		d, err := m.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := m.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	other, err := m.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")
}

func TestMemory_RejectedRequestsDoNotCount(t *testing.T) {
	clock := &manualClock{t: windowStart()}
	m := newMemory(t, Rule{Limit: 2, Window: time.Minute}, clock)
	ctx := context.Background()

	for range 10 {
		_, _ = m.Allow(ctx, "k")
	}
	clock.Advance(2 * time.Minute)

	d, err := m.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemory_SlidesAcrossWindowBoundary(t *testing.T) {
	clock := &manualClock{t: windowStart()}
	m := newMemory(t, Rule{Limit: 4, Window: time.Minute}, clock)
	ctx := context.Background()

	for range 4 {
		d, _ := m.Allow(ctx, "k")
		require.True(t, d.Allowed)
	}

	// 15s into the next window the previous four still weigh 3.
	clock.Advance(75 * time.Second)
	d, _ := m.Allow(ctx, "k")
	assert.True(t, d.Allowed, "3 + 0 < 4")
	d, _ = m.Allow(ctx, "k")
	assert.False(t, d.Allowed, "3 + 1 reaches the limit")
	assert.Less(t, d.RetryAfter, time.Second)

	clock.Advance(15 * time.Second)
	d, _ = m.Allow(ctx, "k")
	assert.True(t, d.Allowed, "2 + 1 < 4")
}

func TestMemory_CleanupDropsIdleKeys(t *testing.T) {
	clock := &manualClock{t: windowStart()}
	reg := prometheus.NewRegistry()
	m := newMemory(t, Rule{Limit: 5, Window: time.Minute}, clock, WithRegistry(reg, "auth"))
	ctx := context.Background()

	_, _ = m.Allow(ctx, "old")
	clock.Advance(90 * time.Second)
	_, _ = m.Allow(ctx, "fresh")

	clock.Advance(60 * time.Second)
	m.Cleanup()

	assert.Equal(t, 1, m.Len())
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.keys), 0)
}

func TestMemory_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMemory(Rule{Limit: 1, Window: time.Minute}, WithRegistry(reg, "auth"))
	require.NoError(t, err)
	defer first.Close() //nolint:errcheck // test cleanup

	_, err = NewMemory(Rule{Limit: 1, Window: time.Minute}, WithRegistry(reg, "auth"))
	assert.Error(t, err)
}

func TestMemory_BackgroundCleanupStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &manualClock{t: windowStart()}
	m, err := NewMemory(Rule{Limit: 1, Window: time.Second},
		WithClock(clock.Now), WithCleanupInterval(5*time.Millisecond))
	require.NoError(t, err)

	_, _ = m.Allow(context.Background(), "k")
	clock.Advance(time.Hour)

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())
}

func TestMemory_ConcurrentAllowNeverExceedsLimit(t *testing.T) {
	clock := &manualClock{t: windowStart()}
	m := newMemory(t, Rule{Limit: 50, Window: time.Minute}, clock)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := m.Allow(context.Background(), "shared")
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestOpen_Memory(t *testing.T) {
	l, err := Open(context.Background(), DefaultConfig(), "auth", DefaultConfig().Auth, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, l)
	require.NoError(t, l.Close())
}
