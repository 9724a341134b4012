// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package ratelimit implements sliding-window request limits keyed by client.
//
// The estimate for a key is the count in the current fixed window plus the
// previous window's count weighted by how much of it still overlaps the
// trailing window:
//
//	count = current + previous * (1 - elapsed/window)
//
// A request is rejected when count has already reached the limit.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/samber/oops"
)

// Rule is a request budget over a trailing window.
type Rule struct {
	Limit  int           `koanf:"limit" yaml:"limit" json:"limit" jsonschema:"minimum=1"`
	Window time.Duration `koanf:"window" yaml:"window" json:"window"`
}

// Validate checks that the rule admits at least one request per window.
func (r Rule) Validate() error {
	if r.Limit < 1 {
		return oops.Code("RATELIMIT_INVALID_RULE").With("limit", r.Limit).Errorf("limit must be at least 1")
	}
	if r.Window < time.Second {
		return oops.Code("RATELIMIT_INVALID_RULE").With("window", r.Window.String()).Errorf("window must be at least 1s")
	}
	return nil
}

// Minutes is the window rounded up to whole minutes, for client messages.
func (r Rule) Minutes() int {
	return int(math.Ceil(r.Window.Minutes()))
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// window locates t inside fixed windows of the given size.
func window(t time.Time, size time.Duration) (index int64, elapsed time.Duration) {
	n := t.UnixNano()
	return n / int64(size), time.Duration(n % int64(size))
}

// estimate returns the weighted request count for the trailing window.
func estimate(prev, curr int, elapsed, size time.Duration) float64 {
	weight := 1 - float64(elapsed)/float64(size)
	return float64(prev)*weight + float64(curr)
}

// decide applies rule to the counts observed before the current request.
func decide(rule Rule, prev, curr int, elapsed time.Duration) Decision {
	count := estimate(prev, curr, elapsed, rule.Window)
	if count < float64(rule.Limit) {
		remaining := rule.Limit - int(math.Ceil(count)) - 1
		return Decision{Allowed: true, Remaining: max(remaining, 0)}
	}
	return Decision{RetryAfter: retryAfter(rule, prev, curr, elapsed)}
}

// retryAfter is the wait until the estimate drops below the limit, assuming
// no further requests arrive.
func retryAfter(rule Rule, prev, curr int, elapsed time.Duration) time.Duration {
	untilNext := rule.Window - elapsed
	if curr >= rule.Limit || prev == 0 {
		// Only the next window can help; there prev becomes curr.
		if curr < rule.Limit {
			return max(untilNext, time.Millisecond)
		}
		// t into the next window: curr*(1 - t/W) < limit.
		t := time.Duration(float64(rule.Window) * (1 - float64(rule.Limit)/float64(curr)))
		return max(untilNext+t, time.Millisecond)
	}
	// Solve prev*(1 - (elapsed+t)/W) + curr < limit for t.
	t := time.Duration(float64(rule.Window)*(1-float64(rule.Limit-curr)/float64(prev))) - elapsed
	return max(t, time.Millisecond)
}
