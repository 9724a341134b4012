// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnstile-auth/turnstile/internal/auth"
)

const tokenColumns = `id, user_id, token, type, expired_at, active, created_at`

// TokenRepository implements auth.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new verification token.
func (r *TokenRepository) Create(ctx context.Context, token *auth.VerificationToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO verification_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.Token,
		string(token.Type),
		token.ExpiredAt,
		token.Active,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert verification token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByToken retrieves the newest token of the type with the plaintext value.
func (r *TokenRepository) GetByToken(ctx context.Context, token string, tokenType auth.TokenType) (*auth.VerificationToken, error) {
	var (
		t         auth.VerificationToken
		idStr     string
		userIDStr string
		typeStr   string
	)
	err := r.db.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM verification_tokens
		WHERE token = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, token, string(tokenType)).Scan(&idStr, &userIDStr, &t.Token, &typeStr, &t.ExpiredAt, &t.Active, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get verification token").
			Wrap(err)
	}

	if t.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if t.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	t.Type = auth.TokenType(typeStr)
	return &t, nil
}

// DeactivateAll marks every active token of the type for the user inactive.
func (r *TokenRepository) DeactivateAll(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE verification_tokens SET active = FALSE
		WHERE user_id = $1 AND type = $2 AND active
	`, userID.String(), string(tokenType))
	if err != nil {
		return 0, oops.Code("TOKEN_DEACTIVATE_FAILED").
			With("operation", "deactivate verification tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
