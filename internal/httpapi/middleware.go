// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package httpapi

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turnstile-auth/turnstile/internal/auth"
	"github.com/turnstile-auth/turnstile/internal/fault"
	"github.com/turnstile-auth/turnstile/internal/logging"
	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

// Locals keys.
const (
	localRequestID = "request_id"
	localComponent = "component"
	localSession   = "session"
)

// MsgVerificationRequired is returned by verified-only routes.
const MsgVerificationRequired = "Email verification required"

// observe opens a span, tags the context with the request id, renders any
// error through the error handler and records the access log and metrics.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	requestID, _ := c.Locals(localRequestID).(string)

	ctx := logging.WithRequestID(c.UserContext(), requestID)
	ctx, span := s.tracer.Start(ctx, c.Method()+" "+c.Path(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", c.Method()),
			attribute.String("url.path", c.Path()),
			attribute.String("client.address", c.IP()),
		))
	defer span.End()
	c.SetUserContext(ctx)

	if err := c.Next(); err != nil {
		if herr := s.handleError(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError) //nolint:errcheck // last resort
		}
	}

	status := c.Response().StatusCode()
	route := c.Route().Path
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", status),
	)
	if status >= fiber.StatusInternalServerError {
		span.SetStatus(codes.Error, strconv.Itoa(status))
	}
	s.recorder.ObserveRequest(route, c.Method(), status, elapsed)
	s.logger.InfoContext(ctx, "http request",
		"method", c.Method(),
		"path", c.Path(),
		"route", route,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
		"ip", c.IP())
	return nil
}

// component names the service reported in internal error messages.
func component(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(localComponent, name)
		return c.Next()
	}
}

func componentOf(c *fiber.Ctx) string {
	if name, ok := c.Locals(localComponent).(string); ok {
		return name
	}
	return "auth"
}

// requireSession validates the session cookie and replaces it when the
// session was rotated.
func (s *Server) requireSession(c *fiber.Ctx) error {
	check, err := s.svc.CheckAuthSession(c.UserContext(), c.Cookies(s.cfg.Cookie.Name), clientMeta(c))
	if err != nil {
		return fault.Wrap(err, componentOf(c))
	}
	if check.Rotated {
		s.setSessionCookie(c, check.Session)
	}
	c.Locals(localSession, check)
	return c.Next()
}

func sessionOf(c *fiber.Ctx) *auth.SessionCheck {
	check, _ := c.Locals(localSession).(*auth.SessionCheck)
	return check
}

// requireVerified must follow requireSession.
func requireVerified(c *fiber.Ctx) error {
	check := sessionOf(c)
	if check == nil || !check.User.IsVerified() {
		return fault.Forbidden("EMAIL_NOT_VERIFIED", MsgVerificationRequired)
	}
	return c.Next()
}

// rateLimit counts requests per client IP. A failing limiter lets the
// request through.
func (s *Server) rateLimit(l *Limit) fiber.Handler {
	if l == nil || l.Limiter == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		decision, err := l.Limiter.Allow(c.UserContext(), c.IP())
		if err != nil {
			errutil.LogErrorContext(c.UserContext(), s.logger.With("limiter", l.Name), "rate limiter unavailable, allowing request", err)
			return c.Next()
		}

		c.Set("RateLimit-Limit", strconv.Itoa(l.Rule.Limit))
		c.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			s.recorder.RequestLimited(l.Name)
			return fault.TooManyRequests("RATE_LIMITED",
				fmt.Sprintf("Please try again %d minutes later", l.Rule.Minutes()))
		}
		return c.Next()
	}
}

func clientMeta(c *fiber.Ctx) auth.ClientMeta {
	return auth.ClientMeta{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		IPAddress: c.IP(),
	}
}

func (s *Server) setSessionCookie(c *fiber.Ctx, session *auth.Session) {
	cookie := s.baseCookie()
	cookie.Value = session.HashedSessionID
	if s.cfg.Cookie.MaxAge > 0 {
		cookie.MaxAge = int(s.cfg.Cookie.MaxAge.Seconds())
	} else {
		cookie.SessionOnly = true
	}
	c.Cookie(cookie)
}

// clearSessionCookie expires the cookie with the same attributes it was set
// with, so the browser matches and drops it.
func (s *Server) clearSessionCookie(c *fiber.Ctx) {
	cookie := s.baseCookie()
	cookie.Expires = time.Unix(0, 0).UTC()
	c.Cookie(cookie)
}

func (s *Server) baseCookie() *fiber.Cookie {
	path := s.cfg.Cookie.Path
	if path == "" {
		path = "/"
	}
	return &fiber.Cookie{
		Name:     s.cfg.Cookie.Name,
		Path:     path,
		Domain:   s.cfg.Cookie.Domain,
		Secure:   s.cfg.Secure(),
		HTTPOnly: true,
		SameSite: s.cfg.Cookie.SameSite,
	}
}
