// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCleanupInterval is how often idle keys are dropped.
const DefaultCleanupInterval = time.Minute

type counter struct {
	index int64
	prev  int
	curr  int
	seen  time.Time
}

// Memory is an in-process Limiter. It is safe for concurrent use and runs a
// background goroutine that drops idle keys; call Close to stop it.
type Memory struct {
	rule Rule
	now  func() time.Time

	mu       sync.Mutex
	counters map[string]*counter

	stop chan struct{}
	wg   sync.WaitGroup

	keys prometheus.Gauge
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now      func() time.Time
	interval time.Duration
	reg      prometheus.Registerer
	name     string
}

// WithClock sets the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

// WithCleanupInterval sets how often idle keys are dropped.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.interval = d }
}

// WithRegistry registers a tracked-keys gauge labelled with name.
func WithRegistry(reg prometheus.Registerer, name string) MemoryOption {
	return func(o *memoryOptions) {
		o.reg = reg
		o.name = name
	}
}

// NewMemory creates a Memory limiter enforcing rule.
func NewMemory(rule Rule, opts ...MemoryOption) (*Memory, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	o := memoryOptions{now: time.Now, interval: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if o.interval <= 0 {
		o.interval = DefaultCleanupInterval
	}

	m := &Memory{
		rule:     rule,
		now:      o.now,
		counters: make(map[string]*counter),
		stop:     make(chan struct{}),
	}
	if o.reg != nil {
		m.keys = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "turnstile_ratelimit_tracked_keys",
			Help:        "Number of client keys tracked by the in-memory rate limiter",
			ConstLabels: prometheus.Labels{"limiter": o.name},
		})
		if err := o.reg.Register(m.keys); err != nil {
			return nil, err
		}
	}

	m.wg.Add(1)
	go m.cleanupLoop(o.interval)
	return m, nil
}

// Allow records a request for key when the rule admits it.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()
	index, elapsed := window(now, m.rule.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok {
		c = &counter{index: index}
		m.counters[key] = c
	}
	switch {
	case c.index == index:
	case c.index == index-1:
		c.prev, c.curr, c.index = c.curr, 0, index
	default:
		c.prev, c.curr, c.index = 0, 0, index
	}
	c.seen = now

	d := decide(m.rule, c.prev, c.curr, elapsed)
	if d.Allowed {
		c.curr++
	}
	return d, nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// Cleanup drops keys idle for longer than two windows; their counts can no
// longer affect a decision.
func (m *Memory) Cleanup() {
	threshold := m.now().Add(-2 * m.rule.Window)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, c := range m.counters {
		if c.seen.Before(threshold) {
			delete(m.counters, key)
		}
	}
	if m.keys != nil {
		m.keys.Set(float64(len(m.counters)))
	}
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit.
func (m *Memory) Close() error {
	close(m.stop)
	m.wg.Wait()
	return nil
}

var _ Limiter = (*Memory)(nil)
