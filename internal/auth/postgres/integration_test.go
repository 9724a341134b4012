// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turnstile-auth/turnstile/internal/auth"
	"github.com/turnstile-auth/turnstile/internal/auth/postgres"
	"github.com/turnstile-auth/turnstile/internal/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("turnstile_test"),
		tcpostgres.WithUsername("turnstile"),
		tcpostgres.WithPassword("turnstile"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create migrator: " + err.Error())
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}
	_ = migrator.Close()

	cfg := store.DefaultPoolConfig()
	cfg.URL = connStr
	testPool, err = store.Connect(ctx, cfg, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func createUser(ctx context.Context, t *testing.T, email string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, "Integration", auth.RegisterCredential, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	hash := "$argon2id$placeholder"
	require.NoError(t, postgres.NewUserRepository(testPool).Create(ctx, user, &hash))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("email uniqueness ignores case", func(t *testing.T) {
		createUser(ctx, t, "case@x.com")

		dup, err := auth.NewUser("CASE@x.com", "Dup", auth.RegisterCredential, time.Now())
		require.NoError(t, err)
		hash := "h"
		err = repo.Create(ctx, dup, &hash)
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("credential users need a password hash", func(t *testing.T) {
		user, err := auth.NewUser("nohash@x.com", "No Hash", auth.RegisterCredential, time.Now())
		require.NoError(t, err)
		require.Error(t, repo.Create(ctx, user, nil))
	})

	t.Run("google users may omit the password", func(t *testing.T) {
		user, err := auth.NewUser("google@x.com", "G", auth.RegisterGoogle, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, user, nil))
		t.Cleanup(func() { _, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String()) })

		_, hash, err := repo.GetCredentials(ctx, "GOOGLE@x.com")
		require.NoError(t, err)
		assert.Nil(t, hash)
	})

	t.Run("record login and clear login", func(t *testing.T) {
		user := createUser(ctx, t, "login@x.com")
		at := time.Now().UTC().Truncate(time.Microsecond)

		updated, err := repo.RecordLogin(ctx, user.ID, at)
		require.NoError(t, err)
		updated, err = repo.RecordLogin(ctx, user.ID, at)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.LoginCounter)
		assert.True(t, updated.IsLoggedIn)
		assert.True(t, at.Equal(*updated.SignedInAt))

		cleared, err := repo.ClearLogin(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, cleared.IsLoggedIn)
		assert.Nil(t, cleared.SignedInAt)
		assert.Equal(t, 2, cleared.LoginCounter)
	})

	t.Run("verification stamp is written once", func(t *testing.T) {
		user := createUser(ctx, t, "verify@x.com")
		first := time.Now().UTC().Truncate(time.Microsecond)

		_, err := repo.MarkVerified(ctx, user.ID, first)
		require.NoError(t, err)
		again, err := repo.MarkVerified(ctx, user.ID, first.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, first.Equal(*again.VerifiedAt))
	})

	t.Run("update password and name", func(t *testing.T) {
		user := createUser(ctx, t, "pw@x.com")
		require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new-hash"))
		hash, err := repo.GetPasswordHash(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", *hash)

		renamed, err := repo.UpdateName(ctx, user.ID, "Renamed")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", renamed.Name)

		assert.ErrorIs(t, repo.UpdatePassword(ctx, ulid.Make(), "x"), auth.ErrNotFound)
	})

	t.Run("list pages in signup order", func(t *testing.T) {
		_, before, err := repo.List(ctx, 0, 1)
		require.NoError(t, err)
		createUser(ctx, t, "list1@x.com")
		createUser(ctx, t, "list2@x.com")

		users, total, err := repo.List(ctx, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, before+2, total)
		assert.Len(t, users, total)
	})
}

func TestSessionRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewSessionRepository(testPool)
	user := createUser(ctx, t, "sessions@x.com")
	start := time.Now().UTC().Truncate(time.Microsecond)

	older, err := auth.NewSession(user.ID, "shared-hash", start, start.Add(time.Minute), auth.ClientMeta{})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, older))

	newer, err := auth.NewSession(user.ID, "shared-hash", start.Add(time.Second), start.Add(2*time.Minute),
		auth.ClientMeta{UserAgent: "curl", IPAddress: "10.1.1.1"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newer))

	got, err := repo.GetByHash(ctx, "shared-hash")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, "curl", got.UserAgent)

	list, err := repo.ListByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	_, err = repo.GetByHash(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	orphan, err := auth.NewSession(ulid.Make(), "orphan", start, start.Add(time.Minute), auth.ClientMeta{})
	require.NoError(t, err)
	assert.Error(t, repo.Create(ctx, orphan))
}

func TestTokenRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewTokenRepository(testPool)
	user := createUser(ctx, t, "tokens@x.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	first, err := auth.NewVerificationToken(user.ID, auth.TokenEmailVerification, now, now.Add(30*time.Minute))
	require.NoError(t, err)
	second, err := auth.NewVerificationToken(user.ID, auth.TokenEmailVerification, now, now.Add(30*time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	n, err := repo.DeactivateAll(ctx, user.ID, auth.TokenEmailVerification)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.GetByToken(ctx, first.Token, auth.TokenEmailVerification)
	require.NoError(t, err)
	assert.False(t, got.Active)

	n, err = repo.DeactivateAll(ctx, user.ID, auth.TokenEmailVerification)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.GetByToken(ctx, first.Token, auth.TokenType("password-reset"))
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
