// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	tests := []struct {
		name      string
		xdgConfig string
		home      string
		want      string
	}{
		{"env var", "/custom/config", "/home/testuser", "/custom/config/turnstile"},
		{"default", "", "/home/testuser", "/home/testuser/.config/turnstile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", tt.xdgConfig)
			t.Setenv("HOME", tt.home)
			assert.Equal(t, tt.want, ConfigDir())
		})
	}
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg")
	assert.Equal(t, "/etc/xdg/turnstile/turnstile.yaml", ConfigFile())
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Empty(t, FindConfig(), "missing file")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "turnstile"), 0o700))
	path := filepath.Join(dir, "turnstile", "turnstile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))

	assert.Equal(t, path, FindConfig())
}
