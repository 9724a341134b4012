// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RegisterType records how an account was created.
type RegisterType string

// Register types.
const (
	RegisterCredential RegisterType = "credential"
	RegisterGoogle     RegisterType = "google"
)

// User is an account as exposed outside the repository layer.
// The password hash is never part of it.
type User struct {
	ID                 ulid.ULID
	Email              string
	Name               string
	LoginCounter       int
	IsLoggedIn         bool
	SignedInAt         *time.Time
	LastSession        *time.Time
	VerifiedAt         *time.Time
	VerificationSentAt *time.Time
	SignedUpAt         time.Time
	RegisterType       RegisterType
	UpdatedAt          time.Time
}

// IsVerified reports whether the user's email address has been confirmed.
func (u *User) IsVerified() bool {
	return u.VerifiedAt != nil
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser creates a validated User. Google accounts are created verified.
func NewUser(email, name string, registerType RegisterType, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, oops.Code("USER_INVALID_NAME").Errorf("name cannot be empty")
	}
	if registerType != RegisterCredential && registerType != RegisterGoogle {
		return nil, oops.Code("USER_INVALID_REGISTER_TYPE").
			With("register_type", string(registerType)).
			Errorf("unknown register type %q", registerType)
	}

	u := &User{
		ID:           ulid.Make(),
		Email:        email,
		Name:         name,
		SignedUpAt:   now,
		RegisterType: registerType,
		UpdatedAt:    now,
	}
	if registerType == RegisterGoogle {
		verified := now
		u.VerifiedAt = &verified
	}
	return u, nil
}

// UserRepository manages user persistence.
//
// Update methods are single-statement and return the row as written, so
// concurrent callers never lose a counter increment.
type UserRepository interface {
	// Create stores a new user. passwordHash is nil for Google accounts.
	// Returns ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, user *User, passwordHash *string) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetCredentials retrieves a user and its password hash by email.
	// The hash is nil for accounts without a password.
	GetCredentials(ctx context.Context, email string) (*User, *string, error)

	// GetPasswordHash retrieves only the password hash for a user.
	GetPasswordHash(ctx context.Context, id ulid.ULID) (*string, error)

	// List returns a page of users ordered by signup time and the total count.
	List(ctx context.Context, offset, limit int) ([]*User, int, error)

	// RecordLogin increments the login counter, marks the user logged in and
	// stamps signed_in_at and last_session with at.
	RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) (*User, error)

	// ClearLogin marks the user logged out and clears signed_in_at.
	ClearLogin(ctx context.Context, id ulid.ULID) (*User, error)

	// TouchLastSession stamps last_session with at.
	TouchLastSession(ctx context.Context, id ulid.ULID, at time.Time) (*User, error)

	// MarkVerified stamps verified_at with at.
	MarkVerified(ctx context.Context, id ulid.ULID, at time.Time) (*User, error)

	// MarkVerificationSent stamps verification_sent_at with at.
	MarkVerificationSent(ctx context.Context, id ulid.ULID, at time.Time) (*User, error)

	// UpdateName changes the display name.
	UpdateName(ctx context.Context, id ulid.ULID, name string) (*User, error)

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
