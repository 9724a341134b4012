// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnstile-auth/turnstile/internal/expiry"
	"github.com/turnstile-auth/turnstile/internal/fault"
	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

// Client-facing messages.
const (
	MsgEmailTaken          = "Your email is already used. Please use another email!"
	MsgInvalidCredentials  = "Invalid email or password"
	MsgGoogleTokenInvalid  = "Your google token is invalid!"
	MsgGoogleDisabled      = "Google sign-in is not enabled"
	MsgSessionExpired      = "Your session has expired"
	MsgAlreadyVerified     = "Your email is already verified"
	MsgTokenNotFound       = "Verification token not found"
	MsgTokenExpired        = "Your verification token is expired"
	MsgOldPasswordMismatch = "Your old password is incorrect"
	MsgUserNotFound        = "User not found"
	MsgNameRequired        = "name should not be empty"
)

// Pagination bounds for ListUsers.
const (
	DefaultPage  = 1
	DefaultLimit = 25
	MaxLimit     = 100
)

// DefaultMailTimeout bounds a single background mail send.
const DefaultMailTimeout = 30 * time.Second

// Policies are the lifetimes enforced by the Service.
type Policies struct {
	// Session bounds a single session record before rotation.
	Session expiry.Policy `koanf:"session" yaml:"session" json:"session"`
	// Auth bounds a login from signed_in_at regardless of rotation.
	Auth expiry.Policy `koanf:"auth" yaml:"auth" json:"auth"`
	// Token bounds how long a verification token is redeemable.
	Token expiry.Policy `koanf:"token" yaml:"token" json:"token"`
}

// DefaultPolicies returns 5 minute sessions, 30 day logins and 30 minute tokens.
func DefaultPolicies() Policies {
	return Policies{
		Session: expiry.DefaultSession,
		Auth:    expiry.DefaultAuth,
		Token:   expiry.DefaultToken,
	}
}

// Validate checks every policy.
func (p Policies) Validate() error {
	for name, policy := range map[string]expiry.Policy{"session": p.Session, "auth": p.Auth, "token": p.Token} {
		if err := policy.Validate(); err != nil {
			return oops.With("policy", name).Wrap(err)
		}
	}
	return nil
}

// Deps are the collaborators a Service needs. Identity may be nil when
// Google sign-in is disabled.
type Deps struct {
	Users    UserRepository
	Sessions SessionRepository
	Tokens   TokenRepository
	Hasher   PasswordHasher
	Cipher   TokenCipher
	Mailer   Mailer
	Identity IdentityVerifier
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used for background failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPolicies overrides the default lifetimes.
func WithPolicies(p Policies) Option {
	return func(s *Service) { s.policies = p }
}

// WithObserver reports authentication events to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithMailTimeout bounds each background mail send.
func WithMailTimeout(d time.Duration) Option {
	return func(s *Service) { s.mailTimeout = d }
}

// Service runs the authentication lifecycle: signup, signin, session
// validation and rotation, logout, email verification and password reset.
//
// Service holds no per-user state. All coordination goes through the
// repositories' single-statement updates.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	tokens   TokenRepository
	hasher   PasswordHasher
	cipher   TokenCipher
	mailer   Mailer
	identity IdentityVerifier

	// dummyHash is verified when no real hash exists so that response time
	// does not reveal whether an account exists. It is produced by the
	// configured hasher and never matches a submitted password.
	dummyHash string

	policies    Policies
	now         func() time.Time
	logger      *slog.Logger
	observer    Observer
	mailTimeout time.Duration

	mailWG sync.WaitGroup
}

// NewService creates a Service. Returns an error if a required dependency is nil
// or a policy is invalid.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"user repository", deps.Users == nil},
		{"session repository", deps.Sessions == nil},
		{"token repository", deps.Tokens == nil},
		{"password hasher", deps.Hasher == nil},
		{"token cipher", deps.Cipher == nil},
		{"mailer", deps.Mailer == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("%s is required", r.name)
		}
	}

	s := &Service{
		users:       deps.Users,
		sessions:    deps.Sessions,
		tokens:      deps.Tokens,
		hasher:      deps.Hasher,
		cipher:      deps.Cipher,
		mailer:      deps.Mailer,
		identity:    deps.Identity,
		policies:    DefaultPolicies(),
		now:         time.Now,
		logger:      slog.Default(),
		observer:    nopObserver{},
		mailTimeout: DefaultMailTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policies.Validate(); err != nil {
		return nil, oops.Code("AUTH_INVALID_POLICY").Wrap(err)
	}

	dummy, err := deps.Hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").With("operation", "compute dummy hash").Wrap(err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Close waits for background mail sends to finish.
func (s *Service) Close() {
	s.mailWG.Wait()
}

// SignupInput is a validated signup request.
type SignupInput struct {
	Email    string
	Name     string
	Password string
}

// Signup registers a credential account and mails a verification link.
// Mail delivery happens in the background; its failure does not fail signup.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	email := NormalizeEmail(in.Email)

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil, emailTaken()
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, in.Name, RegisterCredential, s.now())
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "new user").
			Wrap(err)
	}
	if err := s.users.Create(ctx, user, &hash); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, emailTaken()
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	return s.issueVerification(ctx, user)
}

// SigninInput is a validated credential signin request.
type SigninInput struct {
	Email    string
	Password string
	Client   ClientMeta
}

// SigninResult is a freshly opened session and its owner.
type SigninResult struct {
	Session *Session
	User    *User
}

// Signin authenticates with email and password and opens a session.
// Unknown emails, wrong passwords and password-less accounts all fail
// with the same error after the same amount of hashing work.
func (s *Service) Signin(ctx context.Context, in SigninInput) (*SigninResult, error) {
	user, hash, lookupErr := s.users.GetCredentials(ctx, NormalizeEmail(in.Email))
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		s.observer.SigninAttempt(MethodCredential, OutcomeError)
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "get credentials").
			Wrap(lookupErr)
	}

	hasPassword := lookupErr == nil && hash != nil
	target := s.dummyHash
	if hasPassword {
		target = *hash
	}

	valid, verifyErr := s.hasher.Verify(in.Password, target)
	if verifyErr != nil && hasPassword {
		s.observer.SigninAttempt(MethodCredential, OutcomeError)
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !hasPassword || !valid {
		s.observer.SigninAttempt(MethodCredential, OutcomeInvalid)
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(*hash) {
		s.upgradeHash(ctx, user.ID, in.Password)
	}

	result, err := s.openSession(ctx, user.ID, in.Client)
	if err != nil {
		s.observer.SigninAttempt(MethodCredential, OutcomeError)
		return nil, err
	}
	s.observer.SigninAttempt(MethodCredential, OutcomeSuccess)
	return result, nil
}

// upgradeHash rehashes with current parameters. Best effort: signin succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, userID ulid.ULID, password string) {
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, userID, newHash)
	}
	if err != nil {
		s.logger.Warn("password hash upgrade failed", "user_id", userID.String(), "error", err)
	}
}

// GoogleSigninInput carries a Google ID token.
type GoogleSigninInput struct {
	IDToken string
	Client  ClientMeta
}

// SigninGoogle authenticates with a Google ID token, creating a verified
// account on first use.
func (s *Service) SigninGoogle(ctx context.Context, in GoogleSigninInput) (*SigninResult, error) {
	if s.identity == nil {
		return nil, fault.BadRequest("AUTH_GOOGLE_DISABLED", MsgGoogleDisabled)
	}

	identity, err := s.identity.Verify(ctx, in.IDToken)
	if err != nil {
		s.observer.SigninAttempt(MethodGoogle, OutcomeInvalid)
		s.logger.Info("google token rejected", "error", err)
		return nil, fault.Unauthorized("AUTH_GOOGLE_TOKEN_INVALID", MsgGoogleTokenInvalid)
	}

	user, err := s.findOrCreateGoogleUser(ctx, identity)
	if err != nil {
		s.observer.SigninAttempt(MethodGoogle, OutcomeError)
		return nil, err
	}

	result, err := s.openSession(ctx, user.ID, in.Client)
	if err != nil {
		s.observer.SigninAttempt(MethodGoogle, OutcomeError)
		return nil, err
	}
	s.observer.SigninAttempt(MethodGoogle, OutcomeSuccess)
	return result, nil
}

func (s *Service) findOrCreateGoogleUser(ctx context.Context, identity *Identity) (*User, error) {
	email := NormalizeEmail(identity.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_GOOGLE_SIGNIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	name := identity.Name
	if strings.TrimSpace(name) == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	user, err = NewUser(email, name, RegisterGoogle, s.now())
	if err != nil {
		return nil, oops.Code("AUTH_GOOGLE_SIGNIN_FAILED").
			With("operation", "new user").
			Wrap(err)
	}
	if err := s.users.Create(ctx, user, nil); err != nil {
		if !errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("AUTH_GOOGLE_SIGNIN_FAILED").
				With("operation", "create user").
				Wrap(err)
		}
		// Lost a race with a concurrent first signin.
		existing, getErr := s.users.GetByEmail(ctx, email)
		if getErr != nil {
			return nil, oops.Code("AUTH_GOOGLE_SIGNIN_FAILED").
				With("operation", "get user by email").
				Wrap(getErr)
		}
		return existing, nil
	}
	return user, nil
}

// openSession mints a session and records the login.
func (s *Service) openSession(ctx context.Context, userID ulid.ULID, client ClientMeta) (*SigninResult, error) {
	now := s.now()
	session, err := s.createSession(ctx, userID, now, client)
	if err != nil {
		return nil, err
	}
	user, err := s.users.RecordLogin(ctx, userID, now)
	if err != nil {
		return nil, oops.Code("AUTH_RECORD_LOGIN_FAILED").
			With("operation", "record login").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return &SigninResult{Session: session, User: user}, nil
}

func (s *Service) createSession(ctx context.Context, userID ulid.ULID, now time.Time, client ClientMeta) (*Session, error) {
	hashed, err := GenerateSessionID(userID)
	if err != nil {
		return nil, err
	}
	expiredAt, err := s.policies.Session.ExpiresAt(now)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").Wrap(err)
	}
	session, err := NewSession(userID, hashed, now, expiredAt, client)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return session, nil
}

// SessionCheck is the outcome of validating a session id. When Rotated is
// true, Session is a new record and its hashed id must replace the client's cookie.
type SessionCheck struct {
	Session *Session
	User    *User
	Rotated bool
}

// CheckAuthSession validates a hashed session id.
//
// The login must be active and inside the auth window, otherwise the user is
// logged out and the check fails. A session past its own expiry inside a valid
// auth window is rotated: a new session is minted and last_session is stamped,
// while signed_in_at is left untouched.
func (s *Service) CheckAuthSession(ctx context.Context, hashedSessionID string, client ClientMeta) (*SessionCheck, error) {
	if hashedSessionID == "" {
		return nil, sessionExpired("SESSION_MISSING")
	}

	session, err := s.sessions.GetByHash(ctx, hashedSessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, sessionExpired("SESSION_NOT_FOUND")
	}
	if err != nil {
		return nil, oops.Code("AUTH_CHECK_SESSION_FAILED").
			With("operation", "get session by hash").
			Wrap(err)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, sessionExpired("SESSION_USER_NOT_FOUND")
	}
	if err != nil {
		return nil, oops.Code("AUTH_CHECK_SESSION_FAILED").
			With("operation", "get user").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	now := s.now()
	active, err := s.loginActive(user, now)
	if err != nil {
		return nil, err
	}
	if !active {
		if _, err := s.users.ClearLogin(ctx, user.ID); err != nil {
			return nil, oops.Code("AUTH_CHECK_SESSION_FAILED").
				With("operation", "clear login").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		return nil, sessionExpired("AUTH_WINDOW_EXPIRED")
	}

	if !session.IsExpiredAt(now) {
		return &SessionCheck{Session: session, User: user}, nil
	}

	user, err = s.users.TouchLastSession(ctx, user.ID, now)
	if err != nil {
		return nil, oops.Code("AUTH_ROTATE_SESSION_FAILED").
			With("operation", "touch last session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	if client == (ClientMeta{}) {
		client = ClientMeta{UserAgent: session.UserAgent, IPAddress: session.IPAddress}
	}
	fresh, err := s.createSession(ctx, user.ID, now, client)
	if err != nil {
		return nil, err
	}
	s.observer.SessionRotated()
	return &SessionCheck{Session: fresh, User: user, Rotated: true}, nil
}

// loginActive reports whether the user is logged in and inside the auth window.
func (s *Service) loginActive(user *User, now time.Time) (bool, error) {
	if !user.IsLoggedIn || user.SignedInAt == nil {
		return false, nil
	}
	windowEnd, err := s.policies.Auth.ExpiresAt(*user.SignedInAt)
	if err != nil {
		return false, oops.Code("AUTH_CHECK_SESSION_FAILED").Wrap(err)
	}
	return !now.After(windowEnd), nil
}

// Logout ends the user's login. Session records are kept as history.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) error {
	if _, err := s.users.ClearLogin(ctx, userID); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "clear login").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// ResendVerification issues a new verification token, invalidating earlier ones.
func (s *Service) ResendVerification(ctx context.Context, userID ulid.ULID) (*User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsVerified() {
		return nil, fault.BadRequest("USER_ALREADY_VERIFIED", MsgAlreadyVerified)
	}
	return s.issueVerification(ctx, user)
}

// issueVerification replaces the user's active token and mails it.
func (s *Service) issueVerification(ctx context.Context, user *User) (*User, error) {
	now := s.now()
	if _, err := s.tokens.DeactivateAll(ctx, user.ID, TokenEmailVerification); err != nil {
		return nil, oops.Code("AUTH_ISSUE_TOKEN_FAILED").
			With("operation", "deactivate tokens").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	expiresAt, err := s.policies.Token.ExpiresAt(now)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_TOKEN_FAILED").Wrap(err)
	}
	token, err := NewVerificationToken(user.ID, TokenEmailVerification, now, expiresAt)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_TOKEN_FAILED").Wrap(err)
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, oops.Code("AUTH_ISSUE_TOKEN_FAILED").
			With("operation", "create token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	encrypted, err := s.cipher.Encrypt(token.Token)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_TOKEN_FAILED").
			With("operation", "encrypt token").
			Wrap(err)
	}

	updated, err := s.users.MarkVerificationSent(ctx, user.ID, now)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_TOKEN_FAILED").
			With("operation", "mark verification sent").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.sendVerification(ctx, user.ID, VerificationMail{
		To:        updated.Email,
		Name:      updated.Name,
		Token:     encrypted,
		ExpiresAt: expiresAt,
	})
	return updated, nil
}

// sendVerification mails in the background on a context detached from the
// request, so a finished request does not cancel delivery.
func (s *Service) sendVerification(ctx context.Context, userID ulid.ULID, mail VerificationMail) {
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
		defer cancel()
		if err := s.mailer.SendVerification(sendCtx, mail); err != nil {
			s.observer.MailFailed("verification")
			errutil.LogError(s.logger.With("user_id", userID.String()), "verification email failed", err)
		}
	}()
}

// VerifyEmailInput carries an encrypted token and the caller's session id, if any.
type VerifyEmailInput struct {
	Token     string
	SessionID string
	Client    ClientMeta
}

// VerifyResult describes a completed verification.
type VerifyResult struct {
	// User is the token owner after verification.
	User *User
	// Session is the caller's session, possibly rotated, or a new one.
	Session *Session
	// SessionChanged is true when Session's id differs from the caller's cookie.
	SessionChanged bool
	// DifferentUser is true when the caller's session belongs to another account.
	DifferentUser bool
}

// VerifyEmail redeems a verification token. A caller with a valid session
// keeps it; anyone else is signed in as the token owner. Every verification
// token of the owner is deactivated afterwards.
func (s *Service) VerifyEmail(ctx context.Context, in VerifyEmailInput) (*VerifyResult, error) {
	plain, err := s.cipher.Decrypt(in.Token)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GetByToken(ctx, plain, TokenEmailVerification)
	if errors.Is(err, ErrNotFound) {
		return nil, fault.NotFound("TOKEN_NOT_FOUND", MsgTokenNotFound)
	}
	if err != nil {
		return nil, oops.Code("AUTH_VERIFY_EMAIL_FAILED").
			With("operation", "get token").
			Wrap(err)
	}
	if !token.IsUsableAt(s.now()) {
		return nil, fault.BadRequest("TOKEN_EXPIRED", MsgTokenExpired)
	}

	var current *SessionCheck
	if in.SessionID != "" {
		current, err = s.CheckAuthSession(ctx, in.SessionID, in.Client)
		if err != nil && !fault.Is(err, fault.KindUnauthorized) {
			return nil, err
		}
	}

	now := s.now()
	user, err := s.users.MarkVerified(ctx, token.UserID, now)
	if err != nil {
		return nil, oops.Code("AUTH_VERIFY_EMAIL_FAILED").
			With("operation", "mark verified").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}

	result := &VerifyResult{User: user}
	if current != nil {
		result.Session = current.Session
		result.SessionChanged = current.Rotated
		result.DifferentUser = current.User.ID != token.UserID
	} else {
		opened, err := s.openSession(ctx, token.UserID, in.Client)
		if err != nil {
			return nil, err
		}
		s.observer.SigninAttempt(MethodVerification, OutcomeSuccess)
		result.User = opened.User
		result.Session = opened.Session
		result.SessionChanged = true
	}

	if _, err := s.tokens.DeactivateAll(ctx, token.UserID, TokenEmailVerification); err != nil {
		return nil, oops.Code("AUTH_VERIFY_EMAIL_FAILED").
			With("operation", "deactivate tokens").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return result, nil
}

// ResetPasswordInput is a validated password change.
type ResetPasswordInput struct {
	UserID      ulid.ULID
	OldPassword string
	NewPassword string
}

// ResetPassword replaces the user's password and ends the login everywhere.
// The old password is required only when one is set.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	current, err := s.users.GetPasswordHash(ctx, in.UserID)
	if errors.Is(err, ErrNotFound) {
		return fault.NotFound("USER_NOT_FOUND", MsgUserNotFound)
	}
	if err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "get password hash").
			With("user_id", in.UserID.String()).
			Wrap(err)
	}

	if current != nil {
		ok, err := s.hasher.Verify(in.OldPassword, *current)
		if err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").
				With("operation", "verify old password").
				With("user_id", in.UserID.String()).
				Wrap(err)
		}
		if !ok {
			return fault.Unauthorized("AUTH_OLD_PASSWORD_INCORRECT", MsgOldPasswordMismatch)
		}
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, in.UserID, hash); err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", in.UserID.String()).
			Wrap(err)
	}
	if _, err := s.users.ClearLogin(ctx, in.UserID); err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "clear login").
			With("user_id", in.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetProfile returns the user.
func (s *Service) GetProfile(ctx context.Context, userID ulid.ULID) (*User, error) {
	return s.getUser(ctx, userID)
}

// UpdateProfile changes the user's display name.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fault.BadRequest("USER_INVALID_NAME", MsgNameRequired)
	}
	user, err := s.users.UpdateName(ctx, userID, name)
	if errors.Is(err, ErrNotFound) {
		return nil, fault.NotFound("USER_NOT_FOUND", MsgUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "update name").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

// UserPage is one page of users.
type UserPage struct {
	Users      []*User
	Page       int
	Limit      int
	TotalCount int
}

// ListUsers returns a page of users. Page and limit are clamped to sane bounds.
func (s *Service) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	users, total, err := s.users.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("page", page).
			With("limit", limit).
			Wrap(err)
	}
	return &UserPage{Users: users, Page: page, Limit: limit, TotalCount: total}, nil
}

// ListSessions returns the user's most recent sessions.
func (s *Service) ListSessions(ctx context.Context, userID ulid.ULID, limit int) ([]*Session, error) {
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}
	sessions, err := s.sessions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return sessions, nil
}

func (s *Service) getUser(ctx context.Context, userID ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, fault.NotFound("USER_NOT_FOUND", MsgUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

func emailTaken() error {
	return fault.BadRequest("AUTH_EMAIL_TAKEN", MsgEmailTaken)
}

func invalidCredentials() error {
	return fault.Unauthorized("AUTH_INVALID_CREDENTIALS", MsgInvalidCredentials)
}

func sessionExpired(code string) error {
	return fault.Unauthorized(code, MsgSessionExpired)
}
