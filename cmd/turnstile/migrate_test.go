// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-auth/turnstile/internal/store"
	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

type fakeMigrator struct {
	upCalled   bool
	downCalled bool
	steps      int
	forced     int
	closed     bool
	upErr      error
	status     *store.Status
}

func (m *fakeMigrator) Up() error { m.upCalled = true; return m.upErr }
func (m *fakeMigrator) Down() error { m.downCalled = true; return nil }
func (m *fakeMigrator) Steps(n int) error { m.steps = n; return nil }
func (m *fakeMigrator) Force(v int) error { m.forced = v; return nil }
func (m *fakeMigrator) Close() error { m.closed = true; return nil }
func (m *fakeMigrator) Status() (*store.Status, error) {
	if m.status == nil {
		return &store.Status{}, nil
	}
	return m.status, nil
}

const testDatabaseURL = "postgres://turnstile:pw@db.test:5432/turnstile"

func runMigrate(t *testing.T, m *fakeMigrator, args ...string) (string, string, error) {
	t.Helper()
	configFile = ""
	t.Setenv(configEnv, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var gotURL string
	cmd := newMigrateCmdWithDeps(&MigrateDeps{
		MigratorFactory: func(url string) (Migrator, error) {
			gotURL = url
			return m, nil
		},
	})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), gotURL, err
}

func TestMigrate_DefaultRunsUp(t *testing.T) {
	m := &fakeMigrator{}
	out, url, err := runMigrate(t, m, "--database-url", testDatabaseURL)
	require.NoError(t, err)

	assert.True(t, m.upCalled)
	assert.True(t, m.closed)
	assert.Equal(t, testDatabaseURL, url)
	assert.Contains(t, out, "Migrations completed successfully")
}

func TestMigrate_UpFromEnvironment(t *testing.T) {
	t.Setenv("TURNSTILE_DATABASE__URL", testDatabaseURL)
	m := &fakeMigrator{}
	_, url, err := runMigrate(t, m, "up")
	require.NoError(t, err)
	assert.True(t, m.upCalled)
	assert.Equal(t, testDatabaseURL, url)
}

func TestMigrate_UpError(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("dirty")}
	_, _, err := runMigrate(t, m, "up")
	require.Error(t, err)
	assert.True(t, m.closed, "migrator is closed on failure")
}

func TestMigrate_DownRequiresConfirmation(t *testing.T) {
	m := &fakeMigrator{}
	_, _, err := runMigrate(t, m, "down")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")
	assert.False(t, m.downCalled)

	out, _, err := runMigrate(t, m, "down", "--yes")
	require.NoError(t, err)
	assert.True(t, m.downCalled)
	assert.Contains(t, out, "Rollback completed successfully")
}

func TestMigrate_Steps(t *testing.T) {
	m := &fakeMigrator{}
	out, _, err := runMigrate(t, m, "steps", "--", "-1")
	require.NoError(t, err)
	assert.Equal(t, -1, m.steps)
	assert.Contains(t, out, "Migrated -1 step(s)")

	_, _, err = runMigrate(t, &fakeMigrator{}, "steps", "two")
	errutil.AssertErrorCode(t, err, "INVALID_STEPS")
}

func TestMigrate_Force(t *testing.T) {
	m := &fakeMigrator{}
	out, _, err := runMigrate(t, m, "force", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, m.forced)
	assert.Contains(t, out, "Forced version 2")

	_, _, err = runMigrate(t, &fakeMigrator{}, "force", "latest")
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrate_Status(t *testing.T) {
	m := &fakeMigrator{status: &store.Status{
		Version: 2,
		Name:    "000002_create_sessions",
		Dirty:   true,
		Applied: []uint{1, 2},
		Pending: []uint{3},
	}}
	out, _, err := runMigrate(t, m, "status")
	require.NoError(t, err)

	assert.Contains(t, out, "Current version: 2 (000002_create_sessions)")
	assert.Contains(t, out, "State: dirty")
	assert.Contains(t, out, "Applied: [1 2]")
	assert.Contains(t, out, "Pending: [3]")
}

func TestMigrate_StatusFreshDatabase(t *testing.T) {
	out, _, err := runMigrate(t, &fakeMigrator{}, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0 (none)")
	assert.Contains(t, out, "Applied: none")
}

func TestMigrate_MissingDatabaseURL(t *testing.T) {
	t.Setenv("TURNSTILE_DATABASE__URL", "")
	_, _, err := runMigrate(t, &fakeMigrator{}, "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_INVALID_CONFIG")
}

func TestMigrate_FactoryError(t *testing.T) {
	configFile = ""
	t.Setenv(configEnv, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := newMigrateCmdWithDeps(&MigrateDeps{
		MigratorFactory: func(string) (Migrator, error) { return nil, errors.New("bad url") },
	})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"status"})
	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}
