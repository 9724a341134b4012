// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenType distinguishes token families.
type TokenType string

// TokenEmailVerification is the only token family issued today.
const TokenEmailVerification TokenType = "email-verification"

// VerificationTokenLength is the number of characters in a plaintext token.
const VerificationTokenLength = 32

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// VerificationToken is a single-use token mailed to a user.
// Token holds the plaintext; only the encrypted form leaves the server.
type VerificationToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Token     string
	Type      TokenType
	ExpiredAt time.Time
	Active    bool
	CreatedAt time.Time
}

// IsUsableAt reports whether the token is active and unexpired at t.
func (v *VerificationToken) IsUsableAt(t time.Time) bool {
	return v.Active && !v.ExpiredAt.Before(t)
}

// GenerateVerificationToken returns a random alphanumeric token.
func GenerateVerificationToken() (string, error) {
	buf := make([]byte, VerificationTokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", oops.Code("TOKEN_GENERATE_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// NewVerificationToken creates an active token for userID.
func NewVerificationToken(userID ulid.ULID, tokenType TokenType, now, expiredAt time.Time) (*VerificationToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if !expiredAt.After(now) {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").
			With("expired_at", expiredAt).
			Errorf("token must expire in the future")
	}
	plain, err := GenerateVerificationToken()
	if err != nil {
		return nil, err
	}
	return &VerificationToken{
		ID:        ulid.Make(),
		UserID:    userID,
		Token:     plain,
		Type:      tokenType,
		ExpiredAt: expiredAt,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// TokenRepository manages verification token persistence.
type TokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *VerificationToken) error

	// GetByToken retrieves the newest token of the given type with the plaintext value.
	GetByToken(ctx context.Context, token string, tokenType TokenType) (*VerificationToken, error)

	// DeactivateAll marks every token of the given type for userID inactive
	// and returns the number of rows changed.
	DeactivateAll(ctx context.Context, userID ulid.ULID, tokenType TokenType) (int64, error)
}
