// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects the backend and the per-route budgets.
type Config struct {
	Backend string      `koanf:"backend" yaml:"backend" json:"backend" jsonschema:"enum=memory,enum=redis"`
	Redis   RedisConfig `koanf:"redis" yaml:"redis" json:"redis"`
	// Auth limits signup and signin attempts per client.
	Auth Rule `koanf:"auth" yaml:"auth" json:"auth"`
	// Mail limits verification resends per client.
	Mail Rule `koanf:"mail" yaml:"mail" json:"mail"`
}

// DefaultConfig returns in-memory limits.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		Redis:   RedisConfig{URL: "redis://localhost:6379/0", KeyPrefix: "turnstile:ratelimit"},
		Auth:    Rule{Limit: 10, Window: 15 * time.Minute},
		Mail:    Rule{Limit: 3, Window: 15 * time.Minute},
	}
}

// Validate checks the backend and both rules.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return oops.Code("RATELIMIT_INVALID_CONFIG").Errorf("redis url is required for the redis backend")
		}
	default:
		return oops.Code("RATELIMIT_INVALID_CONFIG").With("backend", c.Backend).Errorf("unknown rate limit backend")
	}
	if err := c.Auth.Validate(); err != nil {
		return oops.With("rule", "auth").Wrap(err)
	}
	if err := c.Mail.Validate(); err != nil {
		return oops.With("rule", "mail").Wrap(err)
	}
	return nil
}

// Open builds the limiter named name for rule on the configured backend.
func Open(ctx context.Context, cfg Config, name string, rule Rule, reg prometheus.Registerer) (Limiter, error) {
	if cfg.Backend == BackendRedis {
		return DialRedis(ctx, cfg.Redis, rule, name)
	}
	var opts []MemoryOption
	if reg != nil {
		opts = append(opts, WithRegistry(reg, name))
	}
	return NewMemory(rule, opts...)
}
