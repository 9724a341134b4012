// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/turnstile-auth/turnstile/internal/auth"
	"github.com/turnstile-auth/turnstile/internal/dto"
	"github.com/turnstile-auth/turnstile/internal/fault"
)

// Success messages.
const (
	MsgSignup           = "Signup success! Please check your email to verify your account"
	MsgSignin           = "Signin success"
	MsgLogout           = "Logout success"
	MsgSessionValid     = "Session is valid"
	MsgEmailVerified    = "Your email has been verified"
	MsgVerifiedOther    = "Email verified for another account; you are still signed in as yourself"
	MsgVerificationSent = "Verification email sent"
	MsgPasswordReset    = "Password updated, please sign in again"
	MsgUsers            = "Users retrieved"
	MsgProfile          = "Profile retrieved"
	MsgProfileUpdated   = "Profile updated"
	MsgSessions         = "Sessions retrieved"
)

// bind parses the JSON body into v and validates it.
func bind(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return fault.BadRequest("INVALID_BODY", "Invalid request body")
	}
	return dto.Validate(v)
}

type signinView struct {
	User    UserView    `json:"user"`
	Session SessionView `json:"session"`
}

type checkView struct {
	User    UserView    `json:"user"`
	Session SessionView `json:"session"`
	Rotated bool        `json:"rotated"`
}

func (s *Server) signup(c *fiber.Ctx) error {
	var body dto.Signup
	if err := bind(c, &body); err != nil {
		return err
	}
	user, err := s.svc.Signup(c.UserContext(), auth.SignupInput{
		Email:    body.Email,
		Name:     body.Name,
		Password: body.Password,
	})
	if err != nil {
		return fault.Wrap(err, "auth")
	}
	return respond(c, fiber.StatusCreated, MsgSignup, userView(user))
}

func (s *Server) signin(c *fiber.Ctx) error {
	var body dto.Signin
	if err := bind(c, &body); err != nil {
		return err
	}
	result, err := s.svc.Signin(c.UserContext(), auth.SigninInput{
		Email:    body.Email,
		Password: body.Password,
		Client:   clientMeta(c),
	})
	if err != nil {
		return fault.Wrap(err, "auth")
	}
	s.setSessionCookie(c, result.Session)
	return respond(c, fiber.StatusOK, MsgSignin, signinView{User: userView(result.User), Session: sessionView(result.Session)})
}

func (s *Server) signinGoogle(c *fiber.Ctx) error {
	var body dto.GoogleSignin
	if err := bind(c, &body); err != nil {
		return err
	}
	result, err := s.svc.SigninGoogle(c.UserContext(), auth.GoogleSigninInput{
		IDToken: body.IDToken,
		Client:  clientMeta(c),
	})
	if err != nil {
		return fault.Wrap(err, "auth")
	}
	s.setSessionCookie(c, result.Session)
	return respond(c, fiber.StatusOK, MsgSignin, signinView{User: userView(result.User), Session: sessionView(result.Session)})
}

func (s *Server) logout(c *fiber.Ctx) error {
	check := sessionOf(c)
	if err := s.svc.Logout(c.UserContext(), check.User.ID); err != nil {
		return fault.Wrap(err, "auth")
	}
	s.clearSessionCookie(c)
	return respond(c, fiber.StatusOK, MsgLogout, nil)
}

func (s *Server) checkSession(c *fiber.Ctx) error {
	check := sessionOf(c)
	return respond(c, fiber.StatusOK, MsgSessionValid, checkView{
		User:    userView(check.User),
		Session: sessionView(check.Session),
		Rotated: check.Rotated,
	})
}

// verifyEmail works with or without a session cookie. An invalid cookie is
// ignored and the token owner is signed in.
func (s *Server) verifyEmail(c *fiber.Ctx) error {
	var body dto.VerifyEmail
	if err := bind(c, &body); err != nil {
		return err
	}
	result, err := s.svc.VerifyEmail(c.UserContext(), auth.VerifyEmailInput{
		Token:     body.Token,
		SessionID: c.Cookies(s.cfg.Cookie.Name),
		Client:    clientMeta(c),
	})
	if err != nil {
		return fault.Wrap(err, "user")
	}
	if result.SessionChanged {
		s.setSessionCookie(c, result.Session)
	}
	message := MsgEmailVerified
	if result.DifferentUser {
		message = MsgVerifiedOther
	}
	return respond(c, fiber.StatusOK, message, userView(result.User))
}

func (s *Server) resendVerification(c *fiber.Ctx) error {
	user, err := s.svc.ResendVerification(c.UserContext(), sessionOf(c).User.ID)
	if err != nil {
		return fault.Wrap(err, "user")
	}
	return respond(c, fiber.StatusOK, MsgVerificationSent, userView(user))
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	var body dto.ResetPassword
	if err := bind(c, &body); err != nil {
		return err
	}
	err := s.svc.ResetPassword(c.UserContext(), auth.ResetPasswordInput{
		UserID:      sessionOf(c).User.ID,
		OldPassword: *body.OldPassword,
		NewPassword: body.Password,
	})
	if err != nil {
		return fault.Wrap(err, "user")
	}
	s.clearSessionCookie(c)
	return respond(c, fiber.StatusOK, MsgPasswordReset, nil)
}

func bindQuery(c *fiber.Ctx) (dto.Query, error) {
	var q dto.Query
	if err := c.QueryParser(&q); err != nil {
		return q, fault.BadRequest("INVALID_QUERY", "Invalid query parameters")
	}
	if err := dto.Validate(&q); err != nil {
		return q, err
	}
	q.Normalize()
	return q, nil
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	q, err := bindQuery(c)
	if err != nil {
		return err
	}
	page, err := s.svc.ListUsers(c.UserContext(), q.Page, q.Limit)
	if err != nil {
		return fault.Wrap(err, "user")
	}
	views := make([]UserView, 0, len(page.Users))
	for _, u := range page.Users {
		views = append(views, userView(u))
	}
	return respondPage(c, MsgUsers, views, Metadata{Page: page.Page, Limit: page.Limit, TotalCount: page.TotalCount})
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	user, err := s.svc.GetProfile(c.UserContext(), sessionOf(c).User.ID)
	if err != nil {
		return fault.Wrap(err, "user")
	}
	return respond(c, fiber.StatusOK, MsgProfile, userView(user))
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	var body dto.EditProfile
	if err := bind(c, &body); err != nil {
		return err
	}
	user, err := s.svc.UpdateProfile(c.UserContext(), sessionOf(c).User.ID, body.Name)
	if err != nil {
		return fault.Wrap(err, "user")
	}
	return respond(c, fiber.StatusOK, MsgProfileUpdated, userView(user))
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	q, err := bindQuery(c)
	if err != nil {
		return err
	}
	sessions, err := s.svc.ListSessions(c.UserContext(), sessionOf(c).User.ID, q.Limit)
	if err != nil {
		return fault.Wrap(err, "user")
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView(session))
	}
	return respond(c, fiber.StatusOK, MsgSessions, views)
}
