// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/turnstile-auth/turnstile/internal/auth/postgres"
	"github.com/turnstile-auth/turnstile/internal/httpapi"
	"github.com/turnstile-auth/turnstile/internal/observability"
	"github.com/turnstile-auth/turnstile/internal/ratelimit"
	"github.com/turnstile-auth/turnstile/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error)

	// MigratorFactory opens a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// LimiterFactory opens a named rate limiter.
	// Default: ratelimit.Open
	LimiterFactory func(ctx context.Context, cfg ratelimit.Config, name string, rule ratelimit.Rule, reg prometheus.Registerer) (ratelimit.Limiter, error)

	// HTTPServerFactory creates the API server.
	// Default: httpapi.New
	HTTPServerFactory func(cfg httpapi.Config, svc httpapi.AuthService, opts ...httpapi.Option) HTTPServer
}

// MigrateDeps contains injectable dependencies for the migrate commands.
type MigrateDeps struct {
	// MigratorFactory opens a migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// Pool wraps the methods used from pgxpool.Pool.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() *prometheus.Registry
}

// HTTPServer wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Run(ctx context.Context) error
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error) {
			return store.Connect(ctx, cfg, logger)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = defaultMigrator
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readiness, logger)
		}
	}
	if out.LimiterFactory == nil {
		out.LimiterFactory = ratelimit.Open
	}
	if out.HTTPServerFactory == nil {
		out.HTTPServerFactory = func(cfg httpapi.Config, svc httpapi.AuthService, opts ...httpapi.Option) HTTPServer {
			return httpapi.New(cfg, svc, opts...)
		}
	}
	return &out
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = defaultMigrator
	}
	return &out
}

func defaultMigrator(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}
