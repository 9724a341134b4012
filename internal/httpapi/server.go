// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package httpapi exposes the authentication service over HTTP with fiber.
package httpapi

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/turnstile-auth/turnstile/internal/auth"
	"github.com/turnstile-auth/turnstile/internal/ratelimit"
)

const tracerName = "github.com/turnstile-auth/turnstile/internal/httpapi"

// AuthService is the part of auth.Service the API calls.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.User, error)
	Signin(ctx context.Context, in auth.SigninInput) (*auth.SigninResult, error)
	SigninGoogle(ctx context.Context, in auth.GoogleSigninInput) (*auth.SigninResult, error)
	CheckAuthSession(ctx context.Context, hashedSessionID string, client auth.ClientMeta) (*auth.SessionCheck, error)
	Logout(ctx context.Context, userID ulid.ULID) error
	ResendVerification(ctx context.Context, userID ulid.ULID) (*auth.User, error)
	VerifyEmail(ctx context.Context, in auth.VerifyEmailInput) (*auth.VerifyResult, error)
	ResetPassword(ctx context.Context, in auth.ResetPasswordInput) error
	GetProfile(ctx context.Context, userID ulid.ULID) (*auth.User, error)
	UpdateProfile(ctx context.Context, userID ulid.ULID, name string) (*auth.User, error)
	ListUsers(ctx context.Context, page, limit int) (*auth.UserPage, error)
	ListSessions(ctx context.Context, userID ulid.ULID, limit int) ([]*auth.Session, error)
}

var _ AuthService = (*auth.Service)(nil)

// Recorder receives request metrics.
type Recorder interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
	RequestLimited(limiter string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, int, time.Duration) {}
func (nopRecorder) RequestLimited(string)                             {}

// Limit binds a limiter to the rule it enforces.
type Limit struct {
	Name    string
	Limiter ratelimit.Limiter
	Rule    ratelimit.Rule
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRecorder reports request metrics to r.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithAuthLimit limits signup and signin per client IP.
func WithAuthLimit(l Limit) Option {
	return func(s *Server) { s.authLimit = &l }
}

// WithMailLimit limits verification email resends per client IP.
func WithMailLimit(l Limit) Option {
	return func(s *Server) { s.mailLimit = &l }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp.Tracer(tracerName) }
}

// Server is the HTTP API.
type Server struct {
	cfg       Config
	svc       AuthService
	app       *fiber.App
	logger    *slog.Logger
	recorder  Recorder
	tracer    trace.Tracer
	authLimit *Limit
	mailLimit *Limit
}

// New builds the fiber app and registers every route.
func New(cfg Config, svc AuthService, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "turnstile",
		ErrorHandler:          s.handleError,
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ProxyHeader:           cfg.ProxyHeader,
		DisableStartupMessage: true,
	})
	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{EnableStackTrace: true}))
	s.app.Use(requestid.New(requestid.Config{ContextKey: localRequestID}))
	s.app.Use(s.observe)
	if len(s.cfg.CORS.AllowOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(s.cfg.CORS.AllowOrigins, ","),
			AllowCredentials: true,
		}))
	}

	api := s.app.Group("/api")

	authGroup := api.Group("/auth", component("auth"))
	authGroup.Post("/signup", s.rateLimit(s.authLimit), s.signup)
	authGroup.Post("/signin", s.rateLimit(s.authLimit), s.signin)
	authGroup.Post("/signin/google", s.rateLimit(s.authLimit), s.signinGoogle)
	authGroup.Post("/logout", s.requireSession, s.logout)

	users := api.Group("/users", component("user"))
	users.Get("/check-session", s.requireSession, s.checkSession)
	users.Post("/verify-email", s.verifyEmail)
	users.Post("/resend-email-verification", s.rateLimit(s.mailLimit), s.requireSession, s.resendVerification)
	users.Patch("/reset-password", s.requireSession, s.resetPassword)
	users.Get("/", s.requireSession, requireVerified, s.listUsers)
	users.Get("/profile", s.requireSession, requireVerified, s.getProfile)
	users.Patch("/profile", s.requireSession, requireVerified, s.updateProfile)
	users.Get("/sessions", s.requireSession, requireVerified, s.listSessions)
}

// Run serves until ctx is cancelled, then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Addr)
	}()
	s.logger.Info("http server started", "addr", s.cfg.Addr, "environment", s.cfg.Environment)

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("HTTP_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	if err := s.app.ShutdownWithTimeout(timeout); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").With("operation", "shutdown http server").Wrap(err)
	}
	if err := <-errCh; err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}
