// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/turnstile-auth/turnstile/internal/auth"
	"github.com/turnstile-auth/turnstile/internal/fault"
	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

// Envelope is the body of every response.
type Envelope struct {
	Success  bool      `json:"success"`
	Message  any       `json:"message"`
	Data     any       `json:"data,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata describes a page of results.
type Metadata struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{Success: true, Message: message, Data: data})
}

func respondPage(c *fiber.Ctx, message string, data any, meta Metadata) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Success: true, Message: message, Data: data, Metadata: &meta})
}

// handleError renders err as a failure envelope. Unclassified errors are
// logged and reported as internal failures of the route's component.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(Envelope{Message: fiberErr.Message})
	}

	component := componentOf(c)
	kind := fault.KindOf(err)
	if kind == fault.KindInternal {
		errutil.LogErrorContext(c.UserContext(), s.logger, "request failed", err)
	}
	if kind == fault.KindUnauthorized && c.Cookies(s.cfg.Cookie.Name) != "" {
		s.clearSessionCookie(c)
	}
	return c.Status(kind.Status()).JSON(Envelope{Message: fault.Message(err, component)})
}

// UserView is the public form of auth.User.
type UserView struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	LoginCounter int        `json:"login_counter"`
	IsLoggedIn   bool       `json:"is_logged_in"`
	SignedInAt   *time.Time `json:"signed_in_at"`
	LastSession  *time.Time `json:"last_session"`
	VerifiedAt   *time.Time `json:"verified_at"`
	SignedUpAt   time.Time  `json:"signed_up_at"`
	RegisterType string     `json:"register_type"`
}

func userView(u *auth.User) UserView {
	return UserView{
		ID:           u.ID.String(),
		Email:        u.Email,
		Name:         u.Name,
		LoginCounter: u.LoginCounter,
		IsLoggedIn:   u.IsLoggedIn,
		SignedInAt:   u.SignedInAt,
		LastSession:  u.LastSession,
		VerifiedAt:   u.VerifiedAt,
		SignedUpAt:   u.SignedUpAt,
		RegisterType: string(u.RegisterType),
	}
}

// SessionView is the public form of auth.Session. The hashed id stays in the cookie.
type SessionView struct {
	ID           string    `json:"id"`
	SessionStart time.Time `json:"session_start"`
	ExpiredAt    time.Time `json:"expired_at"`
	CreatedAt    time.Time `json:"created_at"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
}

func sessionView(s *auth.Session) SessionView {
	return SessionView{
		ID:           s.ID.String(),
		SessionStart: s.SessionStart,
		ExpiredAt:    s.ExpiredAt,
		CreatedAt:    s.CreatedAt,
		UserAgent:    s.UserAgent,
		IPAddress:    s.IPAddress,
	}
}
