// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnstile-auth/turnstile/internal/auth"
	"github.com/turnstile-auth/turnstile/internal/auth/postgres"
	"github.com/turnstile-auth/turnstile/internal/config"
	"github.com/turnstile-auth/turnstile/internal/google"
	"github.com/turnstile-auth/turnstile/internal/httpapi"
	"github.com/turnstile-auth/turnstile/internal/logging"
	"github.com/turnstile-auth/turnstile/internal/mail"
	"github.com/turnstile-auth/turnstile/internal/observability"
	"github.com/turnstile-auth/turnstile/internal/ratelimit"
	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

const (
	serviceName = "turnstile"

	// cleanupTimeout bounds stopping the observability server.
	cleanupTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP API",
		Long: `Start the HTTP API together with the metrics and health server.
Configuration is read from the config file, TURNSTILE_* variables and flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return oops.With("operation", "load config").Wrap(err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps wires the service and blocks until ctx is done or a
// server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	logger, err := logging.SetDefault(cfg.Logging, serviceName, version)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}
	logger.Info("starting turnstile",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"rate_limit_backend", cfg.RateLimit.Backend,
	)

	if cfg.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		metrics  *observability.Metrics
		registry prometheus.Registerer
		obs      ObservabilityServer
	)
	if cfg.Observability.Enabled {
		obs = deps.ObservabilityServerFactory(cfg.Observability.Addr, pool.Ping, logger)
		obsErrCh, err := obs.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopObservability(obs, logger)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics, registry = obs.Metrics(), obs.Registry()
		logger.Info("observability server started", "addr", obs.Addr())
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	svc, err := newAuthService(cfg, pool, metrics, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	authLimiter, err := deps.LimiterFactory(ctx, cfg.RateLimit, "auth", cfg.RateLimit.Auth, registry)
	if err != nil {
		return oops.With("operation", "open auth rate limiter").Wrap(err)
	}
	defer closeLimiter(authLimiter, "auth", logger)
	mailLimiter, err := deps.LimiterFactory(ctx, cfg.RateLimit, "mail", cfg.RateLimit.Mail, registry)
	if err != nil {
		return oops.With("operation", "open mail rate limiter").Wrap(err)
	}
	defer closeLimiter(mailLimiter, "mail", logger)

	server := deps.HTTPServerFactory(cfg.Server, svc,
		httpapi.WithLogger(logger),
		httpapi.WithRecorder(metrics),
		httpapi.WithAuthLimit(httpapi.Limit{Name: "auth", Limiter: authLimiter, Rule: cfg.RateLimit.Auth}),
		httpapi.WithMailLimit(httpapi.Limit{Name: "mail", Limiter: mailLimiter, Rule: cfg.RateLimit.Mail}),
	)

	cmd.Println("Turnstile started")
	logger.Info("turnstile ready", "addr", cfg.Server.Addr)

	if err := server.Run(ctx); err != nil {
		return oops.With("operation", "run http server").Wrap(err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newAuthService builds the auth service on the PostgreSQL repositories.
func newAuthService(cfg config.Config, db postgres.DB, observer auth.Observer, logger *slog.Logger) (*auth.Service, error) {
	cipher, err := auth.NewAESTokenCipher(cfg.Crypto.HashSecret, cfg.Crypto.Salt)
	if err != nil {
		return nil, oops.With("operation", "create token cipher").Wrap(err)
	}

	deps := auth.Deps{
		Users:    postgres.NewUserRepository(db),
		Sessions: postgres.NewSessionRepository(db),
		Tokens:   postgres.NewTokenRepository(db),
		Hasher:   auth.NewArgon2idHasher(cfg.Auth.Argon2),
		Cipher:   cipher,
		Mailer:   mail.New(cfg.Mail, logger),
	}
	if cfg.Google.Enabled() {
		verifier, err := google.NewVerifier(cfg.Google)
		if err != nil {
			return nil, oops.With("operation", "create google verifier").Wrap(err)
		}
		deps.Identity = verifier
		logger.Info("google sign-in enabled")
	}

	svc, err := auth.NewService(deps,
		auth.WithLogger(logger),
		auth.WithPolicies(cfg.Auth.Policies),
		auth.WithObserver(observer),
		auth.WithMailTimeout(cfg.Auth.MailTimeout),
	)
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return svc, nil
}

// autoMigrate applies pending migrations before the pool is opened.
func autoMigrate(databaseURL string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	m, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func stopObservability(obs ObservabilityServer, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := obs.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

func closeLimiter(l ratelimit.Limiter, name string, logger *slog.Logger) {
	if err := l.Close(); err != nil {
		logger.Warn("error closing rate limiter", "limiter", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
