// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package memory provides in-process implementations of the auth repositories
// for tests. Data does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnstile-auth/turnstile/internal/auth"
)

type userRecord struct {
	user         auth.User
	passwordHash *string
}

// Store holds users, sessions and tokens behind a single lock.
type Store struct {
	mu       sync.RWMutex
	users    map[ulid.ULID]*userRecord
	byEmail  map[string]ulid.ULID
	sessions []*auth.Session
	tokens   []*auth.VerificationToken
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:   make(map[ulid.ULID]*userRecord),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Users returns the store's UserRepository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Sessions returns the store's SessionRepository.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// Tokens returns the store's TokenRepository.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// UserRepository implements auth.UserRepository in memory.
type UserRepository struct{ s *Store }

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User, passwordHash *string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_CREATE_FAILED").Wrap(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := auth.NormalizeEmail(user.Email)
	if _, taken := r.s.byEmail[email]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrEmailTaken)
	}
	rec := &userRecord{user: *user}
	rec.user.Email = email
	if passwordHash != nil {
		h := *passwordHash
		rec.passwordHash = &h
	}
	r.s.users[user.ID] = rec
	r.s.byEmail[email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.users[id]
	if !ok {
		return nil, userNotFound(id)
	}
	return copyUser(&rec.user), nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	rec, err := r.byEmail(email)
	if err != nil {
		return nil, err
	}
	return copyUser(&rec.user), nil
}

// GetCredentials retrieves a user and its password hash by email.
func (r *UserRepository) GetCredentials(ctx context.Context, email string) (*auth.User, *string, error) {
	rec, err := r.byEmail(email)
	if err != nil {
		return nil, nil, err
	}
	var hash *string
	if rec.passwordHash != nil {
		h := *rec.passwordHash
		hash = &h
	}
	return copyUser(&rec.user), hash, nil
}

func (r *UserRepository) byEmail(email string) (*userRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return r.s.users[id], nil
}

// GetPasswordHash retrieves the password hash for a user.
func (r *UserRepository) GetPasswordHash(ctx context.Context, id ulid.ULID) (*string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.users[id]
	if !ok {
		return nil, userNotFound(id)
	}
	if rec.passwordHash == nil {
		return nil, nil
	}
	h := *rec.passwordHash
	return &h, nil
}

// List returns a page of users ordered by signup time.
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*auth.User, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := make([]*auth.User, 0, len(r.s.users))
	for _, rec := range r.s.users {
		all = append(all, copyUser(&rec.user))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].SignedUpAt.Equal(all[j].SignedUpAt) {
			return all[i].ID.Compare(all[j].ID) < 0
		}
		return all[i].SignedUpAt.Before(all[j].SignedUpAt)
	})

	total := len(all)
	if offset >= total {
		return []*auth.User{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// RecordLogin increments the login counter and marks the user logged in.
func (r *UserRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(id, func(u *auth.User) {
		u.LoginCounter++
		u.IsLoggedIn = true
		u.SignedInAt = &at
		u.LastSession = &at
	})
}

// ClearLogin marks the user logged out.
func (r *UserRepository) ClearLogin(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.update(id, func(u *auth.User) {
		u.IsLoggedIn = false
		u.SignedInAt = nil
	})
}

// TouchLastSession stamps last_session.
func (r *UserRepository) TouchLastSession(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(id, func(u *auth.User) { u.LastSession = &at })
}

// MarkVerified stamps verified_at unless already set.
func (r *UserRepository) MarkVerified(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(id, func(u *auth.User) {
		if u.VerifiedAt == nil {
			u.VerifiedAt = &at
		}
	})
}

// MarkVerificationSent stamps verification_sent_at.
func (r *UserRepository) MarkVerificationSent(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(id, func(u *auth.User) { u.VerificationSentAt = &at })
}

// UpdateName changes the display name.
func (r *UserRepository) UpdateName(ctx context.Context, id ulid.ULID, name string) (*auth.User, error) {
	return r.update(id, func(u *auth.User) { u.Name = name })
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.users[id]
	if !ok {
		return userNotFound(id)
	}
	rec.passwordHash = &passwordHash
	rec.user.UpdatedAt = time.Now()
	return nil
}

func (r *UserRepository) update(id ulid.ULID, fn func(*auth.User)) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.users[id]
	if !ok {
		return nil, userNotFound(id)
	}
	fn(&rec.user)
	rec.user.UpdatedAt = time.Now()
	return copyUser(&rec.user), nil
}

// SessionRepository implements auth.SessionRepository in memory.
type SessionRepository struct{ s *Store }

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[session.UserID]; !ok {
		return oops.Code("SESSION_CREATE_FAILED").
			With("user_id", session.UserID.String()).
			Errorf("user does not exist")
	}
	cp := *session
	r.s.sessions = append(r.s.sessions, &cp)
	return nil
}

// GetByHash retrieves the newest session with the hashed id.
func (r *SessionRepository) GetByHash(ctx context.Context, hashedSessionID string) (*auth.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *auth.Session
	for _, s := range r.s.sessions {
		if s.HashedSessionID == hashedSessionID && (found == nil || !s.CreatedAt.Before(found.CreatedAt)) {
			found = s
		}
	}
	if found == nil {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	cp := *found
	return &cp, nil
}

// ListByUser retrieves a user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID ulid.ULID, limit int) ([]*auth.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*auth.Session
	for i := len(r.s.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		if s := r.s.sessions[i]; s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TokenRepository implements auth.TokenRepository in memory.
type TokenRepository struct{ s *Store }

// Create stores a new token.
func (r *TokenRepository) Create(ctx context.Context, token *auth.VerificationToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *token
	r.s.tokens = append(r.s.tokens, &cp)
	return nil
}

// GetByToken retrieves the newest token with the plaintext value.
func (r *TokenRepository) GetByToken(ctx context.Context, token string, tokenType auth.TokenType) (*auth.VerificationToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := len(r.s.tokens) - 1; i >= 0; i-- {
		if t := r.s.tokens[i]; t.Token == token && t.Type == tokenType {
			cp := *t
			return &cp, nil
		}
	}
	return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// DeactivateAll marks every token of the type for the user inactive.
func (r *TokenRepository) DeactivateAll(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.Type == tokenType && t.Active {
			t.Active = false
			n++
		}
	}
	return n, nil
}

// ActiveTokens returns the user's active tokens of the given type.
func (r *TokenRepository) ActiveTokens(userID ulid.ULID, tokenType auth.TokenType) []*auth.VerificationToken {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*auth.VerificationToken
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.Type == tokenType && t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

func userNotFound(id ulid.ULID) error {
	return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
}

func copyUser(u *auth.User) *auth.User {
	cp := *u
	return &cp
}

// Compile-time interface checks.
var (
	_ auth.UserRepository    = (*UserRepository)(nil)
	_ auth.SessionRepository = (*SessionRepository)(nil)
	_ auth.TokenRepository   = (*TokenRepository)(nil)
)
