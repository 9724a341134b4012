// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RedisConfig locates the Redis server shared by all instances.
type RedisConfig struct {
	URL       string `koanf:"url" yaml:"url" json:"url"`
	KeyPrefix string `koanf:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
}

// Redis is a Limiter whose counters live in Redis, so every instance behind
// a load balancer shares one budget per key.
type Redis struct {
	rule   Rule
	client redis.Cmdable
	prefix string
	now    func() time.Time
	closer func() error
}

// NewRedis creates a Redis limiter over an existing client. The caller owns
// the client.
func NewRedis(client redis.Cmdable, rule Rule, prefix string) (*Redis, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "turnstile:ratelimit"
	}
	return &Redis{rule: rule, client: client, prefix: prefix, now: time.Now}, nil
}

// DialRedis parses cfg.URL, pings the server and returns a limiter that
// closes the client on Close.
func DialRedis(ctx context.Context, cfg RedisConfig, rule Rule, name string) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, oops.Code("RATELIMIT_REDIS_INVALID_URL").Wrap(err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("RATELIMIT_REDIS_UNREACHABLE").With("addr", opts.Addr).Wrap(err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "turnstile:ratelimit"
	}
	r, err := NewRedis(client, rule, prefix+":"+name)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	r.closer = client.Close
	return r, nil
}

func (r *Redis) key(key string, index int64) string {
	return r.prefix + ":" + key + ":" + strconv.FormatInt(index, 10)
}

// Allow reads both window counters and, when admitted, increments the
// current one. Concurrent callers may overshoot the limit slightly.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	index, elapsed := window(r.now(), r.rule.Window)
	currKey, prevKey := r.key(key, index), r.key(key, index-1)

	var curr, prev *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		curr = p.Get(ctx, currKey)
		prev = p.Get(ctx, prevKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").With("operation", "read counters").Wrap(err)
	}

	currN, err := count(curr)
	if err != nil {
		return Decision{}, err
	}
	prevN, err := count(prev)
	if err != nil {
		return Decision{}, err
	}

	d := decide(r.rule, prevN, currN, elapsed)
	if !d.Allowed {
		return d, nil
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, currKey)
		p.PExpire(ctx, currKey, 2*r.rule.Window)
		return nil
	})
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").With("operation", "increment counter").Wrap(err)
	}
	return d, nil
}

func count(cmd *redis.StringCmd) (int, error) {
	n, err := cmd.Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.Code("RATELIMIT_REDIS_FAILED").With("operation", "parse counter").Wrap(err)
	}
	return n, nil
}

// Close closes the client when the limiter dialed it.
func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

var _ Limiter = (*Redis)(nil)
