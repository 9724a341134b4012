// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package xdg locates Turnstile files under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	appName    = "turnstile"
	configName = "turnstile.yaml"
)

// ConfigDir returns the XDG config directory for turnstile.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), configName)
}

// FindConfig returns ConfigFile when it exists, otherwise "". Stat errors
// other than not-exist are treated as present so the loader reports them.
func FindConfig() string {
	path := ConfigFile()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return path
}
