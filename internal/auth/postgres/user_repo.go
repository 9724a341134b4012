// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnstile-auth/turnstile/internal/auth"
)

// userColumns never includes password_hash.
const userColumns = `id, email, name, login_counter, is_logged_in, signed_in_at, last_session,
	verified_at, verification_sent_at, signed_up_at, register_type, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User, passwordHash *string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, login_counter, is_logged_in, signed_in_at, last_session,
			verified_at, verification_sent_at, signed_up_at, register_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		user.ID.String(),
		auth.NormalizeEmail(user.Email),
		passwordHash,
		user.Name,
		user.LoginCounter,
		user.IsLoggedIn,
		user.SignedInAt,
		user.LastSession,
		user.VerifiedAt,
		user.VerificationSentAt,
		user.SignedUpAt,
		string(user.RegisterType),
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EMAIL_TAKEN").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, auth.NormalizeEmail(email))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// GetCredentials retrieves a user and its password hash by email.
func (r *UserRepository) GetCredentials(ctx context.Context, email string) (*auth.User, *string, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE lower(email) = $1`,
		auth.NormalizeEmail(email))

	var hash *string
	user, err := scanUser(row, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, nil, oops.Code("USER_GET_FAILED").
			With("operation", "get credentials").
			Wrap(err)
	}
	return user, hash, nil
}

// GetPasswordHash retrieves the password hash for a user.
func (r *UserRepository) GetPasswordHash(ctx context.Context, id ulid.ULID) (*string, error) {
	var hash *string
	err := r.db.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id.String()).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get password hash").
			With("id", id.String()).
			Wrap(err)
	}
	return hash, nil
}

// List returns a page of users ordered by signup time and the total count.
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*auth.User, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, oops.Code("USER_LIST_FAILED").
			With("operation", "count users").
			Wrap(err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY signed_up_at, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	defer rows.Close()

	users := []*auth.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, oops.Code("USER_SCAN_FAILED").
				With("operation", "scan user row").
				Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, oops.Code("USER_ROWS_ERROR").
			With("operation", "iterate user rows").
			Wrap(err)
	}
	return users, total, nil
}

// RecordLogin increments the login counter and marks the user logged in.
func (r *UserRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(ctx, "record login", id, `
		UPDATE users
		SET login_counter = login_counter + 1, is_logged_in = TRUE, signed_in_at = $2, last_session = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, at)
}

// ClearLogin marks the user logged out.
func (r *UserRepository) ClearLogin(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.update(ctx, "clear login", id, `
		UPDATE users SET is_logged_in = FALSE, signed_in_at = NULL, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns)
}

// TouchLastSession stamps last_session.
func (r *UserRepository) TouchLastSession(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(ctx, "touch last session", id, `
		UPDATE users SET last_session = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, at)
}

// MarkVerified stamps verified_at, keeping the first verification time.
func (r *UserRepository) MarkVerified(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(ctx, "mark verified", id, `
		UPDATE users SET verified_at = COALESCE(verified_at, $2), updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, at)
}

// MarkVerificationSent stamps verification_sent_at.
func (r *UserRepository) MarkVerificationSent(ctx context.Context, id ulid.ULID, at time.Time) (*auth.User, error) {
	return r.update(ctx, "mark verification sent", id, `
		UPDATE users SET verification_sent_at = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, at)
}

// UpdateName changes the display name.
func (r *UserRepository) UpdateName(ctx context.Context, id ulid.ULID, name string) (*auth.User, error) {
	return r.update(ctx, "update name", id, `
		UPDATE users SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, name)
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// update runs a single-row UPDATE ... RETURNING and scans the result.
func (r *UserRepository) update(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) (*auth.User, error) {
	row := r.db.QueryRow(ctx, sql, append([]any{id.String()}, args...)...)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans userColumns followed by any extra destinations.
// pgx.ErrNoRows is returned unchanged.
func scanUser(row scanner, extra ...any) (*auth.User, error) {
	var (
		u            auth.User
		idStr        string
		registerType string
	)
	dest := append([]any{
		&idStr, &u.Email, &u.Name, &u.LoginCounter, &u.IsLoggedIn, &u.SignedInAt, &u.LastSession,
		&u.VerifiedAt, &u.VerificationSentAt, &u.SignedUpAt, &registerType, &u.UpdatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").With("operation", "scan user").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	u.ID = id
	u.RegisterType = auth.RegisterType(registerType)
	return &u, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
